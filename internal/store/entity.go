package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/graph"
)

const liveEdge = `r.invalidAt IS NULL`

type EntityStore struct {
	db *graph.Client
}

func NewEntityStore(db *graph.Client) *EntityStore {
	return &EntityStore{db: db}
}

// FindByName matches on (userId, lowercased name); type is not part of the
// key.
func (s *EntityStore) FindByName(ctx context.Context, userID, name string) (*domain.Entity, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity)
		 WHERE toLower(e.name) = toLower($name)
		 RETURN e
		 LIMIT 1`,
		map[string]any{"userId": userID, "name": name})
	if err != nil {
		return nil, fmt.Errorf("find entity by name: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	e := entityFromProps(nodeProps(rows[0]["e"]))
	e.UserID = userID
	return &e, nil
}

// FindPersonByPrefix looks for a PERSON whose name is a whole-word prefix of
// the incoming name, or vice versa ("Alice" matches "Alice Smith").
func (s *EntityStore) FindPersonByPrefix(ctx context.Context, userID, name string) (*domain.Entity, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity {type: 'PERSON'})
		 WHERE toLower(e.name) STARTS WITH toLower($name)
		    OR toLower($name) STARTS WITH toLower(e.name)
		 RETURN e
		 ORDER BY e.rank DESC
		 LIMIT 20`,
		map[string]any{"userId": userID, "name": name})
	if err != nil {
		return nil, fmt.Errorf("find person by prefix: %w", err)
	}
	for _, row := range rows {
		e := entityFromProps(nodeProps(row["e"]))
		if domain.PrefixOnWordBoundary(e.Name, name) && !strings.EqualFold(e.Name, name) {
			e.UserID = userID
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (s *EntityStore) Create(ctx context.Context, e *domain.Entity) error {
	now := millis(e.CreatedAt)
	_, err := s.db.RunWrite(ctx,
		`MERGE (u:User {userId: $userId})
		 CREATE (e:Entity {id: $id, name: $name, type: $type, description: $description,
		                   rank: 0, createdAt: $now, updatedAt: $now})
		 CREATE (u)-[:HAS_ENTITY]->(e)`,
		map[string]any{
			"userId":      e.UserID,
			"id":          e.ID.String(),
			"name":        e.Name,
			"type":        e.Type,
			"description": e.Description,
			"now":         now,
		})
	if err != nil {
		return fmt.Errorf("create entity: %w", err)
	}
	return nil
}

// UpdateResolved applies the merge outcome: the adopted name, the more
// specific type and the longer description.
func (s *EntityStore) UpdateResolved(ctx context.Context, id uuid.UUID, name, entityType, description string, at time.Time) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH (e:Entity {id: $id})
		 SET e.name = $name, e.type = $type, e.description = $description, e.updatedAt = $at`,
		map[string]any{
			"id": id.String(), "name": name, "type": entityType,
			"description": description, "at": millis(at),
		})
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	return nil
}

func (s *EntityStore) SetDescriptionEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH (e:Entity {id: $id})
		 SET e.descriptionEmbedding = $embedding`,
		map[string]any{"id": id.String(), "embedding": vectorParam(embedding)})
	if err != nil {
		return fmt.Errorf("set description embedding: %w", err)
	}
	return nil
}

func (s *EntityStore) SetSummary(ctx context.Context, id uuid.UUID, summary string, at time.Time) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH (e:Entity {id: $id})
		 SET e.summary = $summary, e.summaryUpdatedAt = $at`,
		map[string]any{"id": id.String(), "summary": summary, "at": millis(at)})
	if err != nil {
		return fmt.Errorf("set entity summary: %w", err)
	}
	return nil
}

// LinkMention is idempotent: linking the same memory and entity twice leaves
// exactly one MENTIONS edge.
func (s *EntityStore) LinkMention(ctx context.Context, userID string, memoryID, entityID uuid.UUID, role string, confidence float64, at time.Time) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $memoryId})
		 MATCH (u)-[:HAS_ENTITY]->(e:Entity {id: $entityId})
		 MERGE (m)-[r:MENTIONS]->(e)
		 ON CREATE SET r.role = $role, r.confidence = $confidence, r.createdAt = $at`,
		map[string]any{
			"userId": userID, "memoryId": memoryID.String(), "entityId": entityID.String(),
			"role": role, "confidence": confidence, "at": millis(at),
		})
	if err != nil {
		return fmt.Errorf("link mention: %w", err)
	}
	return nil
}

// RecomputeRank sets rank = live mentions + live related edges.
func (s *EntityStore) RecomputeRank(ctx context.Context, id uuid.UUID) (int, error) {
	rows, err := s.db.RunWrite(ctx,
		`MATCH (e:Entity {id: $id})
		 OPTIONAL MATCH (e)<-[:MENTIONS]-(m:Memory)
		 WHERE `+liveMemory+`
		 WITH e, count(m) AS mentions
		 OPTIONAL MATCH (e)-[r:RELATED_TO]-()
		 WHERE `+liveEdge+`
		 WITH e, mentions, count(r) AS rels
		 SET e.rank = mentions + rels
		 RETURN e.rank AS rank`,
		map[string]any{"id": id.String()})
	if err != nil {
		return 0, fmt.Errorf("recompute rank: %w", err)
	}
	if len(rows) == 0 {
		return 0, ErrNotFound
	}
	return intFromAny(rows[0]["rank"]), nil
}

func (s *EntityStore) LiveMentionCount(ctx context.Context, id uuid.UUID) (int, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (e:Entity {id: $id})<-[:MENTIONS]-(m:Memory)
		 WHERE `+liveMemory+`
		 RETURN count(m) AS mentions`,
		map[string]any{"id": id.String()})
	if err != nil {
		return 0, fmt.Errorf("live mention count: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return intFromAny(rows[0]["mentions"]), nil
}

func (s *EntityStore) ConnectedMemories(ctx context.Context, id uuid.UUID, limit int) ([]domain.Memory, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (e:Entity {id: $id})<-[:MENTIONS]-(m:Memory)
		 WHERE `+liveMemory+`
		 RETURN m
		 ORDER BY m.createdAt DESC
		 LIMIT $limit`,
		map[string]any{"id": id.String(), "limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("connected memories: %w", err)
	}
	out := make([]domain.Memory, 0, len(rows))
	for _, row := range rows {
		out = append(out, memoryFromProps(nodeProps(row["m"])))
	}
	return out, nil
}

func (s *EntityStore) OutgoingRelations(ctx context.Context, id uuid.UUID, limit int) ([]domain.RelatedEdge, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (e:Entity {id: $id})-[r:RELATED_TO]->(t:Entity)
		 WHERE `+liveEdge+`
		 RETURN r.id AS id, t.id AS targetId, t.name AS targetName, r.type AS type,
		        r.description AS description, r.validAt AS validAt, r.confirmedCount AS confirmedCount
		 ORDER BY r.confirmedCount DESC
		 LIMIT $limit`,
		map[string]any{"id": id.String(), "limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("outgoing relations: %w", err)
	}
	out := make([]domain.RelatedEdge, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.RelatedEdge{
			ID:             idFromAny(row["id"]),
			SourceID:       id,
			TargetID:       idFromAny(row["targetId"]),
			TargetName:     stringFromAny(row["targetName"]),
			Type:           stringFromAny(row["type"]),
			Description:    stringFromAny(row["description"]),
			ValidAt:        timeFromAny(row["validAt"]),
			ConfirmedCount: intFromAny(row["confirmedCount"]),
		})
	}
	return out, nil
}

func (s *EntityStore) GetLiveRelation(ctx context.Context, srcID, tgtID uuid.UUID, relType string) (*domain.RelatedEdge, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (sc:Entity {id: $src})-[r:RELATED_TO {type: $type}]->(t:Entity {id: $tgt})
		 WHERE `+liveEdge+`
		 RETURN r.id AS id, r.description AS description, r.validAt AS validAt,
		        r.confirmedCount AS confirmedCount
		 LIMIT 1`,
		map[string]any{"src": srcID.String(), "tgt": tgtID.String(), "type": relType})
	if err != nil {
		return nil, fmt.Errorf("get live relation: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	row := rows[0]
	return &domain.RelatedEdge{
		ID:             idFromAny(row["id"]),
		SourceID:       srcID,
		TargetID:       tgtID,
		Type:           relType,
		Description:    stringFromAny(row["description"]),
		ValidAt:        timeFromAny(row["validAt"]),
		ConfirmedCount: intFromAny(row["confirmedCount"]),
	}, nil
}

func (s *EntityStore) CreateRelation(ctx context.Context, e *domain.RelatedEdge) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH (sc:Entity {id: $src}), (t:Entity {id: $tgt})
		 CREATE (sc)-[:RELATED_TO {id: $id, type: $type, description: $description,
		                           validAt: $at, confirmedCount: $count}]->(t)`,
		map[string]any{
			"src": e.SourceID.String(), "tgt": e.TargetID.String(),
			"id": e.ID.String(), "type": e.Type, "description": e.Description,
			"at": millis(e.ValidAt), "count": int64(e.ConfirmedCount),
		})
	if err != nil {
		return fmt.Errorf("create relation: %w", err)
	}
	return nil
}

func (s *EntityStore) IncrementRelation(ctx context.Context, edgeID uuid.UUID) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH ()-[r:RELATED_TO {id: $id}]->()
		 SET r.confirmedCount = coalesce(r.confirmedCount, 0) + 1`,
		map[string]any{"id": edgeID.String()})
	if err != nil {
		return fmt.Errorf("increment relation: %w", err)
	}
	return nil
}

func (s *EntityStore) InvalidateRelation(ctx context.Context, edgeID uuid.UUID, at time.Time) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH ()-[r:RELATED_TO {id: $id}]->()
		 SET r.invalidAt = coalesce(r.invalidAt, $at)`,
		map[string]any{"id": edgeID.String(), "at": millis(at)})
	if err != nil {
		return fmt.Errorf("invalidate relation: %w", err)
	}
	return nil
}

func (s *EntityStore) List(ctx context.Context, userID string, page, size int) (*domain.EntityPage, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	countRows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity)
		 RETURN count(e) AS total`,
		map[string]any{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("count entities: %w", err)
	}
	total := 0
	if len(countRows) > 0 {
		total = intFromAny(countRows[0]["total"])
	}

	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity)
		 RETURN e
		 ORDER BY e.rank DESC, e.name ASC
		 SKIP $skip LIMIT $limit`,
		map[string]any{"userId": userID, "skip": int64((page - 1) * size), "limit": int64(size)})
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	entities := make([]domain.Entity, 0, len(rows))
	for _, row := range rows {
		e := entityFromProps(nodeProps(row["e"]))
		e.UserID = userID
		entities = append(entities, e)
	}
	return &domain.EntityPage{Entities: entities, Total: total, Page: page, Size: size}, nil
}

func (s *EntityStore) GetByID(ctx context.Context, userID string, id uuid.UUID) (*domain.Entity, int, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity {id: $id})
		 OPTIONAL MATCH (e)<-[:MENTIONS]-(m:Memory)
		 WHERE `+liveMemory+`
		 RETURN e, count(m) AS memoryCount`,
		map[string]any{"userId": userID, "id": id.String()})
	if err != nil {
		return nil, 0, fmt.Errorf("get entity: %w", err)
	}
	if len(rows) == 0 {
		return nil, 0, ErrNotFound
	}
	e := entityFromProps(nodeProps(rows[0]["e"]))
	e.UserID = userID
	return &e, intFromAny(rows[0]["memoryCount"]), nil
}

func (s *EntityStore) MemoriesFor(ctx context.Context, userID string, id uuid.UUID, page, size int) (*domain.MemoryPage, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	countRows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity {id: $id})<-[:MENTIONS]-(m:Memory)
		 WHERE `+liveMemory+`
		 RETURN count(m) AS total`,
		map[string]any{"userId": userID, "id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("count entity memories: %w", err)
	}
	total := 0
	if len(countRows) > 0 {
		total = intFromAny(countRows[0]["total"])
	}

	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity {id: $id})<-[:MENTIONS]-(m:Memory)
		 WHERE `+liveMemory+`
		 RETURN m
		 ORDER BY m.createdAt DESC
		 SKIP $skip LIMIT $limit`,
		map[string]any{
			"userId": userID, "id": id.String(),
			"skip": int64((page - 1) * size), "limit": int64(size),
		})
	if err != nil {
		return nil, fmt.Errorf("entity memories: %w", err)
	}

	items := make([]domain.Memory, 0, len(rows))
	for _, row := range rows {
		m := memoryFromProps(nodeProps(row["m"]))
		m.UserID = userID
		items = append(items, m)
	}
	pages := (total + size - 1) / size
	return &domain.MemoryPage{Items: items, Total: total, Page: page, Size: size, Pages: pages}, nil
}

// SeedSearch finds entities whose name, description or live relation
// descriptions contain any of the query terms.
func (s *EntityStore) SeedSearch(ctx context.Context, userID string, terms []string, limit int) ([]domain.Entity, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	params := map[string]any{"userId": userID, "terms": lowered, "limit": int64(limit)}

	direct, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity)
		 WHERE any(term IN $terms WHERE toLower(e.name) CONTAINS term
		       OR toLower(coalesce(e.description, '')) CONTAINS term)
		 RETURN e
		 ORDER BY e.rank DESC
		 LIMIT $limit`, params)
	if err != nil {
		return nil, fmt.Errorf("seed search: %w", err)
	}

	viaEdges, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity)-[r:RELATED_TO]-()
		 WHERE `+liveEdge+` AND any(term IN $terms WHERE toLower(coalesce(r.description, '')) CONTAINS term)
		 RETURN DISTINCT e
		 ORDER BY e.rank DESC
		 LIMIT $limit`, params)
	if err != nil {
		return nil, fmt.Errorf("seed search relations: %w", err)
	}

	seen := make(map[uuid.UUID]bool)
	var out []domain.Entity
	for _, rows := range [][]map[string]any{direct, viaEdges} {
		for _, row := range rows {
			e := entityFromProps(nodeProps(row["e"]))
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			e.UserID = userID
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Neighbors expands one hop over live RELATED_TO edges, highest-rank first.
func (s *EntityStore) Neighbors(ctx context.Context, userID string, ids []uuid.UUID, limit int) ([]domain.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity)-[r:RELATED_TO]-(n:Entity)
		 WHERE e.id IN $ids AND `+liveEdge+`
		 RETURN DISTINCT n
		 ORDER BY n.rank DESC
		 LIMIT $limit`,
		map[string]any{"userId": userID, "ids": idStrs, "limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("entity neighbors: %w", err)
	}
	out := make([]domain.Entity, 0, len(rows))
	for _, row := range rows {
		e := entityFromProps(nodeProps(row["n"]))
		e.UserID = userID
		out = append(out, e)
	}
	return out, nil
}

// MemoriesMentionedBy gathers live memories mentioning any of the entities,
// ranked by how many of them each memory touches.
func (s *EntityStore) MemoriesMentionedBy(ctx context.Context, userID string, ids []uuid.UUID, limit int) ([]domain.RankedHit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_ENTITY]->(e:Entity)<-[:MENTIONS]-(m:Memory)
		 WHERE e.id IN $ids AND `+liveMemory+`
		 WITH m, count(e) AS hits, max(e.rank) AS topRank
		 RETURN m.id AS id
		 ORDER BY hits DESC, topRank DESC
		 LIMIT $limit`,
		map[string]any{"userId": userID, "ids": idStrs, "limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("memories mentioned by: %w", err)
	}
	hits := make([]domain.RankedHit, 0, len(rows))
	for i, row := range rows {
		hits = append(hits, domain.RankedHit{ID: idFromAny(row["id"]), Rank: i + 1})
	}
	return hits, nil
}

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

// vectorOversample compensates for per-user post-filtering: the vector index
// cannot apply ownership predicates natively.
const vectorOversample = 4

type MemoryStore struct {
	db *graph.Client
}

func NewMemoryStore(db *graph.Client) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	now := millis(m.CreatedAt)
	_, err := s.db.RunWrite(ctx,
		`MERGE (u:User {userId: $userId})
		 CREATE (m:Memory {id: $id, content: $content, state: $state, embedding: $embedding,
		                   metadata: $metadata, validAt: $validAt, createdAt: $now, updatedAt: $now})
		 CREATE (u)-[:HAS_MEMORY]->(m)`,
		map[string]any{
			"userId":    m.UserID,
			"id":        m.ID.String(),
			"content":   m.Content,
			"state":     string(m.State),
			"embedding": vectorParam(m.Embedding),
			"metadata":  metadataParam(m.Metadata),
			"validAt":   millis(m.ValidAt),
			"now":       now,
		})
	if err != nil {
		return fmt.Errorf("create memory: %w", err)
	}
	return nil
}

// CreateBatch writes all memories and their ownership edges in a single
// UNWIND statement. The user node is merged first so each row is an
// independent create.
func (s *MemoryStore) CreateBatch(ctx context.Context, ms []*domain.Memory) error {
	if len(ms) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, map[string]any{
			"id":        m.ID.String(),
			"content":   m.Content,
			"state":     string(m.State),
			"embedding": vectorParam(m.Embedding),
			"metadata":  metadataParam(m.Metadata),
			"validAt":   millis(m.ValidAt),
			"createdAt": millis(m.CreatedAt),
		})
	}
	_, err := s.db.RunWrite(ctx,
		`MERGE (u:User {userId: $userId})
		 WITH u
		 UNWIND $rows AS row
		 CREATE (m:Memory {id: row.id, content: row.content, state: row.state,
		                   embedding: row.embedding, metadata: row.metadata,
		                   validAt: row.validAt, createdAt: row.createdAt, updatedAt: row.createdAt})
		 CREATE (u)-[:HAS_MEMORY]->(m)`,
		map[string]any{"userId": ms[0].UserID, "rows": rows})
	if err != nil {
		return fmt.Errorf("create memory batch: %w", err)
	}
	return nil
}

func (s *MemoryStore) AttachApp(ctx context.Context, userID string, memoryID uuid.UUID, appName string) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $id})
		 MERGE (a:App {name: $appName})
		 MERGE (u)-[:HAS_APP]->(a)
		 MERGE (m)-[:CREATED_BY]->(a)`,
		map[string]any{"userId": userID, "id": memoryID.String(), "appName": appName})
	if err != nil {
		return fmt.Errorf("attach app: %w", err)
	}
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, userID string, id uuid.UUID) (*domain.Memory, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $id})
		 OPTIONAL MATCH (m)-[:CREATED_BY]->(a:App)
		 OPTIONAL MATCH (m)-[:HAS_CATEGORY]->(c:Category)
		 RETURN m, a.name AS appName, collect(c.name) AS categories`,
		map[string]any{"userId": userID, "id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("get memory: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	m := memoryFromProps(nodeProps(rows[0]["m"]))
	m.UserID = userID
	m.AppName = stringFromAny(rows[0]["appName"])
	m.Categories = stringsFromAny(rows[0]["categories"])
	return &m, nil
}

func (s *MemoryStore) List(ctx context.Context, userID string, f domain.ListFilter) (*domain.MemoryPage, error) {
	match := `MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory)`
	params := map[string]any{"userId": userID}
	var conditions []string

	if f.AppName != "" {
		match += `
		 MATCH (m)-[:CREATED_BY]->(:App {name: $appName})`
		params["appName"] = f.AppName
	}
	if f.Category != "" {
		match += `
		 MATCH (m)-[:HAS_CATEGORY]->(:Category {name: $category})`
		params["category"] = f.Category
	}

	if f.State != nil {
		conditions = append(conditions, `m.state = $state`)
		params["state"] = string(*f.State)
	} else {
		conditions = append(conditions, `m.state <> 'deleted'`)
		if !f.ShowArchived {
			conditions = append(conditions, `m.state <> 'archived'`)
		}
	}

	if f.Contains != "" {
		conditions = append(conditions, `toLower(m.content) CONTAINS toLower($contains)`)
		params["contains"] = f.Contains
	}

	switch {
	case f.AsOf != nil:
		conditions = append(conditions, `m.validAt <= $asOf AND (m.invalidAt IS NULL OR m.invalidAt > $asOf)`)
		params["asOf"] = millis(*f.AsOf)
	case f.IncludeSuperseded:
		// No validity filter.
	default:
		conditions = append(conditions, `m.invalidAt IS NULL`)
	}

	where := ""
	if len(conditions) > 0 {
		where = "\n\t\t WHERE " + strings.Join(conditions, " AND ")
	}

	countRows, err := s.db.RunRead(ctx, match+where+`
		 RETURN count(m) AS total`, params)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	total := 0
	if len(countRows) > 0 {
		total = intFromAny(countRows[0]["total"])
	}

	page, size := f.Page, f.Size
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	params["skip"] = int64((page - 1) * size)
	params["limit"] = int64(size)

	rows, err := s.db.RunRead(ctx, match+where+`
		 OPTIONAL MATCH (m)-[:CREATED_BY]->(a:App)
		 OPTIONAL MATCH (m)-[:HAS_CATEGORY]->(c:Category)
		 RETURN m, a.name AS appName, collect(c.name) AS categories
		 ORDER BY m.createdAt DESC
		 SKIP $skip LIMIT $limit`, params)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	items := make([]domain.Memory, 0, len(rows))
	for _, row := range rows {
		m := memoryFromProps(nodeProps(row["m"]))
		m.UserID = userID
		m.AppName = stringFromAny(row["appName"])
		m.Categories = stringsFromAny(row["categories"])
		items = append(items, m)
	}

	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return &domain.MemoryPage{Items: items, Total: total, Page: page, Size: size, Pages: pages}, nil
}

func (s *MemoryStore) UpdateContent(ctx context.Context, userID string, id uuid.UUID, content string, embedding []float32, at time.Time) error {
	rows, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $id})
		 SET m.content = $content, m.embedding = $embedding, m.updatedAt = $at
		 RETURN m.id AS id`,
		map[string]any{
			"userId": userID, "id": id.String(),
			"content": content, "embedding": vectorParam(embedding), "at": millis(at),
		})
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) SetState(ctx context.Context, userID string, id uuid.UUID, state domain.MemoryState, at time.Time) error {
	set := `SET m.state = $state, m.updatedAt = $at`
	if state == domain.StateArchived {
		set += `, m.archivedAt = $at`
	}
	rows, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $id})
		 `+set+`
		 RETURN m.id AS id`,
		map[string]any{"userId": userID, "id": id.String(), "state": string(state), "at": millis(at)})
	if err != nil {
		return fmt.Errorf("set memory state: %w", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete is temporal: invalidAt is only ever set once, from null.
func (s *MemoryStore) SoftDelete(ctx context.Context, userID string, id uuid.UUID, at time.Time) error {
	rows, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $id})
		 SET m.state = 'deleted',
		     m.invalidAt = coalesce(m.invalidAt, $at),
		     m.deletedAt = $at,
		     m.updatedAt = $at
		 RETURN m.id AS id`,
		map[string]any{"userId": userID, "id": id.String(), "at": millis(at)})
	if err != nil {
		return fmt.Errorf("soft delete memory: %w", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context, userID, appName string) (int, error) {
	match := `MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory)`
	params := map[string]any{"userId": userID}
	if appName != "" {
		match += `
		 MATCH (m)-[:CREATED_BY]->(:App {name: $appName})`
		params["appName"] = appName
	}

	countRows, err := s.db.RunRead(ctx, match+`
		 RETURN count(m) AS total`, params)
	if err != nil {
		return 0, fmt.Errorf("count for delete all: %w", err)
	}
	total := 0
	if len(countRows) > 0 {
		total = intFromAny(countRows[0]["total"])
	}

	if _, err := s.db.RunWrite(ctx, match+`
		 DETACH DELETE m`, params); err != nil {
		return 0, fmt.Errorf("delete all memories: %w", err)
	}
	return total, nil
}

// Supersede invalidates the predecessor, creates the successor and the
// SUPERSEDES edge in one statement so the pair can never be observed half-linked.
func (s *MemoryStore) Supersede(ctx context.Context, userID string, oldID uuid.UUID, successor *domain.Memory, at time.Time) error {
	rows, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(old:Memory {id: $oldId})
		 SET old.invalidAt = coalesce(old.invalidAt, $at), old.updatedAt = $at
		 CREATE (m:Memory {id: $newId, content: $content, state: 'active', embedding: $embedding,
		                   metadata: $metadata, validAt: $at, createdAt: $at, updatedAt: $at})
		 CREATE (u)-[:HAS_MEMORY]->(m)
		 CREATE (m)-[:SUPERSEDES {at: $at}]->(old)
		 RETURN m.id AS id`,
		map[string]any{
			"userId":    userID,
			"oldId":     oldID.String(),
			"newId":     successor.ID.String(),
			"content":   successor.Content,
			"embedding": vectorParam(successor.Embedding),
			"metadata":  metadataParam(successor.Metadata),
			"at":        millis(at),
		})
	if err != nil {
		return fmt.Errorf("supersede memory: %w", err)
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) LastLive(ctx context.Context, userID string, n int) ([]domain.Memory, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory)
		 WHERE `+liveMemory+`
		 RETURN m
		 ORDER BY m.createdAt DESC
		 LIMIT $n`,
		map[string]any{"userId": userID, "n": int64(n)})
	if err != nil {
		return nil, fmt.Errorf("last live memories: %w", err)
	}

	// Reverse to chronological order for the context block.
	out := make([]domain.Memory, len(rows))
	for i, row := range rows {
		m := memoryFromProps(nodeProps(row["m"]))
		m.UserID = userID
		out[len(rows)-1-i] = m
	}
	return out, nil
}

func (s *MemoryStore) SimilarLive(ctx context.Context, userID string, embedding []float32, threshold float64, k int) ([]domain.ScoredMemory, error) {
	rows, err := s.db.RunRead(ctx,
		`CALL vector_search.search('memory_vectors', $k, $embedding) YIELD node AS m, similarity
		 MATCH (:User {userId: $userId})-[:HAS_MEMORY]->(m)
		 WHERE `+liveMemory+` AND similarity >= $threshold
		 RETURN m.id AS id, m.content AS content, similarity
		 ORDER BY similarity DESC
		 LIMIT $limit`,
		map[string]any{
			"userId":    userID,
			"embedding": vectorParam(embedding),
			"threshold": threshold,
			"k":         int64(k * vectorOversample),
			"limit":     int64(k),
		})
	if err != nil {
		return nil, fmt.Errorf("similar live memories: %w", err)
	}

	out := make([]domain.ScoredMemory, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ScoredMemory{
			ID:         idFromAny(row["id"]),
			Content:    stringFromAny(row["content"]),
			Similarity: floatFromAny(row["similarity"]),
		})
	}
	return out, nil
}

func (s *MemoryStore) TextSearch(ctx context.Context, userID, query string, limit int) ([]domain.RankedHit, error) {
	rows, err := s.db.RunRead(ctx,
		`CALL text_search.search('memory_text', $query) YIELD node AS m
		 MATCH (:User {userId: $userId})-[:HAS_MEMORY]->(m)
		 WHERE `+liveMemory+`
		 RETURN m.id AS id
		 LIMIT $limit`,
		map[string]any{"userId": userID, "query": query, "limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}

	hits := make([]domain.RankedHit, 0, len(rows))
	for i, row := range rows {
		hits = append(hits, domain.RankedHit{ID: idFromAny(row["id"]), Rank: i + 1})
	}
	return hits, nil
}

func (s *MemoryStore) VectorSearch(ctx context.Context, userID string, embedding []float32, limit int) ([]domain.RankedHit, error) {
	rows, err := s.db.RunRead(ctx,
		`CALL vector_search.search('memory_vectors', $k, $embedding) YIELD node AS m, similarity
		 MATCH (:User {userId: $userId})-[:HAS_MEMORY]->(m)
		 WHERE `+liveMemory+`
		 RETURN m.id AS id, similarity
		 ORDER BY similarity DESC
		 LIMIT $limit`,
		map[string]any{
			"userId":    userID,
			"embedding": vectorParam(embedding),
			"k":         int64(limit * vectorOversample),
			"limit":     int64(limit),
		})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	hits := make([]domain.RankedHit, 0, len(rows))
	for i, row := range rows {
		hits = append(hits, domain.RankedHit{
			ID:    idFromAny(row["id"]),
			Rank:  i + 1,
			Score: floatFromAny(row["similarity"]),
		})
	}
	return hits, nil
}

func (s *MemoryStore) Hydrate(ctx context.Context, userID string, ids []uuid.UUID, withEmbeddings bool) (map[uuid.UUID]*domain.SearchResult, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]*domain.SearchResult{}, nil
	}
	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	ret := `RETURN m.id AS id, m.content AS content, m.createdAt AS createdAt,
		        a.name AS appName, collect(c.name) AS categories`
	if withEmbeddings {
		ret += `, m.embedding AS embedding`
	}

	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory)
		 WHERE m.id IN $ids
		 OPTIONAL MATCH (m)-[:CREATED_BY]->(a:App)
		 OPTIONAL MATCH (m)-[:HAS_CATEGORY]->(c:Category)
		 `+ret,
		map[string]any{"userId": userID, "ids": idStrs})
	if err != nil {
		return nil, fmt.Errorf("hydrate memories: %w", err)
	}

	out := make(map[uuid.UUID]*domain.SearchResult, len(rows))
	for _, row := range rows {
		r := &domain.SearchResult{
			ID:         idFromAny(row["id"]),
			Content:    stringFromAny(row["content"]),
			CreatedAt:  timeFromAny(row["createdAt"]),
			AppName:    stringFromAny(row["appName"]),
			Categories: stringsFromAny(row["categories"]),
		}
		if withEmbeddings {
			r.Embedding = vectorFromAny(row["embedding"])
		}
		out[r.ID] = r
	}
	return out, nil
}

func (s *MemoryStore) AddCategories(ctx context.Context, userID string, id uuid.UUID, categories []string) error {
	if len(categories) == 0 {
		return nil
	}
	_, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $id})
		 UNWIND $categories AS cat
		 MERGE (c:Category {name: cat})
		 MERGE (m)-[:HAS_CATEGORY]->(c)`,
		map[string]any{"userId": userID, "id": id.String(), "categories": categories})
	if err != nil {
		return fmt.Errorf("add categories: %w", err)
	}
	return nil
}

func (s *MemoryStore) MarkExtractionPending(ctx context.Context, id uuid.UUID) (int, error) {
	rows, err := s.db.RunWrite(ctx,
		`MATCH (m:Memory {id: $id})
		 SET m.extractionStatus = 'pending',
		     m.extractionAttempts = coalesce(m.extractionAttempts, 0) + 1
		 RETURN m.extractionAttempts AS attempts`,
		map[string]any{"id": id.String()})
	if err != nil {
		return 0, fmt.Errorf("mark extraction pending: %w", err)
	}
	if len(rows) == 0 {
		return 0, ErrNotFound
	}
	return intFromAny(rows[0]["attempts"]), nil
}

func (s *MemoryStore) SetExtractionStatus(ctx context.Context, id uuid.UUID, status domain.ExtractionStatus, errMsg string) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH (m:Memory {id: $id})
		 SET m.extractionStatus = $status,
		     m.extractionError = CASE WHEN $err = '' THEN null ELSE $err END`,
		map[string]any{"id": id.String(), "status": string(status), "err": errMsg})
	if err != nil {
		return fmt.Errorf("set extraction status: %w", err)
	}
	return nil
}

// SweepStaleExtractions moves exhausted pending records to failed so no
// memory is stuck in 'pending' after a crash.
func (s *MemoryStore) SweepStaleExtractions(ctx context.Context, maxAttempts int) (int, error) {
	rows, err := s.db.RunWrite(ctx,
		`MATCH (m:Memory)
		 WHERE m.extractionStatus = 'pending' AND coalesce(m.extractionAttempts, 0) >= $max
		 SET m.extractionStatus = 'failed',
		     m.extractionError = 'extraction attempts exhausted'
		 RETURN count(m) AS swept`,
		map[string]any{"max": int64(maxAttempts)})
	if err != nil {
		return 0, fmt.Errorf("sweep stale extractions: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return intFromAny(rows[0]["swept"]), nil
}

func (s *MemoryStore) ExportAll(ctx context.Context, userID string) ([]domain.Memory, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory)
		 OPTIONAL MATCH (m)-[:CREATED_BY]->(a:App)
		 OPTIONAL MATCH (m)-[:HAS_CATEGORY]->(c:Category)
		 RETURN m, a.name AS appName, collect(c.name) AS categories
		 ORDER BY m.createdAt ASC`,
		map[string]any{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("export memories: %w", err)
	}

	out := make([]domain.Memory, 0, len(rows))
	for _, row := range rows {
		m := memoryFromProps(nodeProps(row["m"]))
		m.UserID = userID
		m.AppName = stringFromAny(row["appName"])
		m.Categories = stringsFromAny(row["categories"])
		out = append(out, m)
	}
	return out, nil
}

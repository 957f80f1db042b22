package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/graph"
)

type CommunityStore struct {
	db *graph.Client
}

func NewCommunityStore(db *graph.Client) *CommunityStore {
	return &CommunityStore{db: db}
}

// DetectCommunities runs the MAGE community-detection procedure over the
// user's live entity relationships. A missing procedure surfaces as
// domain.ErrCapabilityUnavailable so the API can answer 410.
func (s *CommunityStore) DetectCommunities(ctx context.Context, userID string) (map[int64][]uuid.UUID, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH p = (:User {userId: $userId})-[:HAS_ENTITY]->(:Entity)-[r:RELATED_TO]->(:Entity)
		 WHERE `+liveEdge+`
		 WITH project(p) AS g
		 CALL community_detection.get(g) YIELD node, community_id
		 WITH node, community_id
		 WHERE node:Entity
		 RETURN node.id AS entityId, community_id AS communityId`,
		map[string]any{"userId": userID})
	if err != nil {
		if errors.Is(err, graph.ErrProcedureMissing) {
			return nil, domain.ErrCapabilityUnavailable
		}
		return nil, fmt.Errorf("detect communities: %w", err)
	}

	out := make(map[int64][]uuid.UUID)
	for _, row := range rows {
		id := idFromAny(row["entityId"])
		if id == uuid.Nil {
			continue
		}
		cid := int64(intFromAny(row["communityId"]))
		out[cid] = append(out[cid], id)
	}
	return out, nil
}

func (s *CommunityStore) DeleteAll(ctx context.Context, userID string) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_COMMUNITY]->(c:Community)
		 DETACH DELETE c`,
		map[string]any{"userId": userID})
	if err != nil {
		return fmt.Errorf("delete communities: %w", err)
	}
	return nil
}

// Create writes the community node, attaches it to the user and links every
// live memory mentioning a member entity via IN_COMMUNITY.
func (s *CommunityStore) Create(ctx context.Context, userID string, c *domain.Community, entityIDs []uuid.UUID) error {
	idStrs := make([]string, len(entityIDs))
	for i, id := range entityIDs {
		idStrs[i] = id.String()
	}
	_, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})
		 CREATE (c:Community {id: $id, name: $name, summary: $summary,
		                      memberCount: $memberCount, createdAt: $at})
		 CREATE (u)-[:HAS_COMMUNITY]->(c)
		 WITH u, c
		 UNWIND $entityIds AS eid
		 MATCH (u)-[:HAS_ENTITY]->(e:Entity {id: eid})<-[:MENTIONS]-(m:Memory)
		 WHERE `+liveMemory+`
		 MERGE (m)-[:IN_COMMUNITY]->(c)`,
		map[string]any{
			"userId":      userID,
			"id":          c.ID.String(),
			"name":        c.Name,
			"summary":     c.Summary,
			"memberCount": int64(c.MemberCount),
			"at":          millis(c.CreatedAt),
			"entityIds":   idStrs,
		})
	if err != nil {
		return fmt.Errorf("create community: %w", err)
	}
	return nil
}

func (s *CommunityStore) List(ctx context.Context, userID string) ([]domain.Community, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_COMMUNITY]->(c:Community)
		 RETURN c
		 ORDER BY c.memberCount DESC`,
		map[string]any{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	out := make([]domain.Community, 0, len(rows))
	for _, row := range rows {
		props := nodeProps(row["c"])
		out = append(out, domain.Community{
			ID:          idFromAny(props["id"]),
			Name:        stringFromAny(props["name"]),
			Summary:     stringFromAny(props["summary"]),
			MemberCount: intFromAny(props["memberCount"]),
			CreatedAt:   timeFromAny(props["createdAt"]),
		})
	}
	return out, nil
}

func (s *CommunityStore) Memories(ctx context.Context, userID string, id uuid.UUID, limit int) ([]domain.Memory, error) {
	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_COMMUNITY]->(c:Community {id: $id})<-[:IN_COMMUNITY]-(m:Memory)
		 RETURN m
		 ORDER BY m.createdAt DESC
		 LIMIT $limit`,
		map[string]any{"userId": userID, "id": id.String(), "limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("community memories: %w", err)
	}
	out := make([]domain.Memory, 0, len(rows))
	for _, row := range rows {
		m := memoryFromProps(nodeProps(row["m"]))
		m.UserID = userID
		out = append(out, m)
	}
	return out, nil
}

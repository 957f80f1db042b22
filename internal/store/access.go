package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/graph"
)

type AccessStore struct {
	db *graph.Client
}

func NewAccessStore(db *graph.Client) *AccessStore {
	return &AccessStore{db: db}
}

// Record logs one retrieval as an ACCESSED edge from the app to the memory.
func (s *AccessStore) Record(ctx context.Context, userID string, memoryID uuid.UUID, appName, query string, at time.Time) error {
	if appName == "" {
		appName = "default"
	}
	_, err := s.db.RunWrite(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $memoryId})
		 MERGE (a:App {name: $appName})
		 MERGE (u)-[:HAS_APP]->(a)
		 CREATE (a)-[:ACCESSED {accessedAt: $at, queryUsed: $query}]->(m)`,
		map[string]any{
			"userId": userID, "memoryId": memoryID.String(),
			"appName": appName, "query": query, "at": millis(at),
		})
	if err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	return nil
}

func (s *AccessStore) ListForMemory(ctx context.Context, userID string, memoryID uuid.UUID, page, size int) (*domain.AccessLogPage, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	countRows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $memoryId})<-[r:ACCESSED]-(:App)
		 RETURN count(r) AS total`,
		map[string]any{"userId": userID, "memoryId": memoryID.String()})
	if err != nil {
		return nil, fmt.Errorf("count access log: %w", err)
	}
	total := 0
	if len(countRows) > 0 {
		total = intFromAny(countRows[0]["total"])
	}

	rows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_MEMORY]->(m:Memory {id: $memoryId})<-[r:ACCESSED]-(a:App)
		 RETURN a.name AS appName, r.accessedAt AS accessedAt, r.queryUsed AS queryUsed
		 ORDER BY r.accessedAt DESC
		 SKIP $skip LIMIT $limit`,
		map[string]any{
			"userId": userID, "memoryId": memoryID.String(),
			"skip": int64((page - 1) * size), "limit": int64(size),
		})
	if err != nil {
		return nil, fmt.Errorf("list access log: %w", err)
	}

	logs := make([]domain.AccessLogEntry, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, domain.AccessLogEntry{
			MemoryID:   memoryID,
			AppName:    stringFromAny(row["appName"]),
			QueryUsed:  stringFromAny(row["queryUsed"]),
			AccessedAt: timeFromAny(row["accessedAt"]),
		})
	}
	return &domain.AccessLogPage{Logs: logs, Total: total, Page: page, PageSize: size}, nil
}

func (s *AccessStore) UserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	totalRows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})
		 OPTIONAL MATCH (u)-[:HAS_MEMORY]->(m:Memory)
		 WHERE m.state <> 'deleted'
		 RETURN count(m) AS totalMemories`,
		map[string]any{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	stats := &domain.UserStats{Apps: []domain.AppStats{}}
	if len(totalRows) > 0 {
		stats.TotalMemories = intFromAny(totalRows[0]["totalMemories"])
	}

	appRows, err := s.db.RunRead(ctx,
		`MATCH (u:User {userId: $userId})-[:HAS_APP]->(a:App)
		 OPTIONAL MATCH (u)-[:HAS_MEMORY]->(m:Memory)-[:CREATED_BY]->(a)
		 WHERE m.state <> 'deleted'
		 RETURN a.name AS name, count(m) AS memoryCount
		 ORDER BY memoryCount DESC`,
		map[string]any{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("app stats: %w", err)
	}
	for _, row := range appRows {
		stats.Apps = append(stats.Apps, domain.AppStats{
			Name:        stringFromAny(row["name"]),
			MemoryCount: intFromAny(row["memoryCount"]),
		})
	}
	stats.TotalApps = len(stats.Apps)
	return stats, nil
}

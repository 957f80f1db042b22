package store

import (
	"context"
	"fmt"

	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/graph"
)

type HistoryStore struct {
	db *graph.Client
}

func NewHistoryStore(db *graph.Client) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record appends an audit node for a memory mutation. History survives the
// memory's soft delete; it goes away only on hard delete.
func (s *HistoryStore) Record(ctx context.Context, h *domain.MemoryHistory) error {
	_, err := s.db.RunWrite(ctx,
		`MATCH (m:Memory {id: $memoryId})
		 CREATE (h:MemoryHistory {id: $id, action: $action, previous: $previous,
		                          new: $new, createdAt: $at})
		 CREATE (m)-[:HAS_HISTORY]->(h)`,
		map[string]any{
			"memoryId": h.MemoryID.String(),
			"id":       h.ID.String(),
			"action":   h.Action,
			"previous": h.Previous,
			"new":      h.New,
			"at":       millis(h.CreatedAt),
		})
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

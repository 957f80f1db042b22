package graph

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// InitSchema creates the uniqueness constraint, property indexes, the vector
// index and the text index the core relies on. Statements are idempotent in
// effect: "already exists" failures are ignored.
func (c *Client) InitSchema(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE CONSTRAINT ON (u:User) ASSERT u.userId IS UNIQUE`,
		`CREATE INDEX ON :Memory(id)`,
		`CREATE INDEX ON :Memory(validAt)`,
		`CREATE INDEX ON :Memory(invalidAt)`,
		`CREATE INDEX ON :Entity(id)`,
		`CREATE INDEX ON :Entity(name)`,
		`CREATE INDEX ON :Entity(type)`,
		fmt.Sprintf(`CREATE VECTOR INDEX memory_vectors ON :Memory(embedding) WITH CONFIG {"dimension": %d, "capacity": 100000, "metric": "cos"}`, dims),
		`CREATE TEXT INDEX memory_text ON :Memory`,
	}

	for _, stmt := range stmts {
		if _, err := c.RunWrite(ctx, stmt, nil); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("init schema %q: %w", stmt, err)
		}
	}

	c.logger.Info("graph schema initialized", zap.Int("embedding_dims", dims))
	return nil
}

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "constraint already")
}

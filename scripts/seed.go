// Seed script for creating demo data in Recall.
// Run with: go run ./scripts/seed.go
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/embedding"
	"github.com/recallhq/recall/internal/graph"
	"github.com/recallhq/recall/internal/store"
)

func main() {
	if err := config.Load(); err != nil {
		log.Printf("Warning: %v", err)
	}

	ctx := context.Background()
	logger := zap.NewNop()

	db, err := graph.Connect(ctx, config.MemgraphURL(), config.MemgraphUser(), config.MemgraphPassword(), logger)
	if err != nil {
		log.Fatalf("Failed to connect to Memgraph: %v", err)
	}
	defer db.Close(ctx)

	dims := config.EmbeddingDims()
	if err := db.InitSchema(ctx, dims); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	fmt.Println("Connected to Memgraph, schema ready")

	// The mock embedder keeps the seed runnable without an API key. Seeded
	// vectors are deterministic, so vector search over them still behaves.
	embedder := embedding.NewMockClient(dims)
	memories := store.NewMemoryStore(db)

	userID := "demo-user"
	appName := "seed-script"

	facts := []string{
		"User works at Acme Corp as a backend engineer",
		"User's primary programming language is Go",
		"User prefers dark mode in all interfaces",
		"User is allergic to peanuts",
		"User lives in Berlin",
		"User's manager is Alice Smith",
		"User is learning Spanish on weekday evenings",
		"User decided to use Memgraph for the knowledge graph project",
	}

	now := time.Now().UTC()
	for _, content := range facts {
		vec, err := embedder.Embed(ctx, content)
		if err != nil {
			log.Fatalf("Failed to embed: %v", err)
		}
		m := &domain.Memory{
			ID:        uuid.New(),
			UserID:    userID,
			Content:   content,
			State:     domain.StateActive,
			Embedding: vec,
			ValidAt:   now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := memories.Create(ctx, m); err != nil {
			log.Printf("Warning: Failed to create memory: %v", err)
			continue
		}
		if err := memories.AttachApp(ctx, userID, m.ID, appName); err != nil {
			log.Printf("Warning: Failed to attach app: %v", err)
		}
		fmt.Printf("Created memory: %s\n", truncate(content, 60))
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Println("\nTo list the seeded memories:")
	fmt.Printf("curl -H 'X-User-ID: %s' -X POST http://localhost:8080/memories/filter -d '{}'\n", userID)
	fmt.Println("\nTo search:")
	fmt.Printf("curl -H 'X-User-ID: %s' -X POST http://localhost:8080/memories/search -d '{\"query\": \"where does the user work?\"}'\n", userID)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

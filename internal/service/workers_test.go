package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/embedding"
	"github.com/recallhq/recall/internal/llm"
)

func TestExtractionPool_ProcessesEnqueuedJobs(t *testing.T) {
	memStore := newFakeMemoryStore()
	entStore := newFakeEntityStore()
	llmClient := llm.NewMockClient()
	llmClient.ExtractEntitiesResponse = []domain.ExtractedEntity{
		{Name: "Alice", Type: "PERSON", Confidence: 0.9},
	}
	entitySvc := NewEntityService(memStore, entStore, embedding.NewMockClient(8), llmClient, testLogger())

	m := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "met Alice", State: domain.StateActive}
	require.NoError(t, memStore.Create(context.Background(), m))

	pool := NewExtractionPool(entitySvc, testLogger())
	pool.SetWorkers(1)
	pool.Start()
	defer pool.Stop()

	pool.Enqueue("u1", m.ID)

	require.Eventually(t, func() bool {
		memStore.mu.Lock()
		defer memStore.mu.Unlock()
		return memStore.statuses[m.ID] == domain.ExtractionDone
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReaper_SweepsOnSchedule(t *testing.T) {
	memStore := newFakeMemoryStore()
	memStore.sweepResult = 2

	reaper := NewReaper(memStore, testLogger())
	reaper.SetInterval(10 * time.Millisecond)
	reaper.Start()
	defer reaper.Stop()

	require.Eventually(t, func() bool {
		memStore.mu.Lock()
		defer memStore.mu.Unlock()
		return memStore.sweepCalls >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

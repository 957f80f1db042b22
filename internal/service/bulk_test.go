package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/embedding"
	"github.com/recallhq/recall/internal/llm"
)

func setupBulkTest() (*BulkService, *fakeMemoryStore, *embedding.MockClient) {
	memStore := newFakeMemoryStore()
	embClient := embedding.NewMockClient(8)
	svc := NewBulkService(memStore, embClient, 500, testLogger())
	return svc, memStore, embClient
}

func TestBulkService_Validation(t *testing.T) {
	svc, _, _ := setupBulkTest()
	ctx := context.Background()

	_, err := svc.BulkAdd(ctx, BulkRequest{Items: []BulkItem{{Text: "x"}}})
	assert.ErrorIs(t, err, ErrUserIDMissing)

	_, err = svc.BulkAdd(ctx, BulkRequest{UserID: "u1"})
	assert.ErrorIs(t, err, ErrBulkEmpty)

	items := make([]BulkItem, MaxBulkItems+1)
	for i := range items {
		items[i] = BulkItem{Text: "x"}
	}
	_, err = svc.BulkAdd(ctx, BulkRequest{UserID: "u1", Items: items})
	assert.ErrorIs(t, err, ErrBulkTooLarge)
}

func TestBulkService_InBatchDedup(t *testing.T) {
	svc, memStore, embClient := setupBulkTest()

	result, err := svc.BulkAdd(context.Background(), BulkRequest{
		UserID: "u1",
		Items: []BulkItem{
			{Text: "User likes sushi"},
			{Text: "User works at Acme"},
			{Text: "  user likes SUSHI  "}, // case/whitespace duplicate of the first
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 1, result.SkippedDuplicate)
	assert.Equal(t, 0, result.Failed)

	// Results come back in input order.
	require.Len(t, result.Results, 3)
	assert.Equal(t, BulkStatusAdded, result.Results[0].Status)
	assert.Equal(t, BulkStatusAdded, result.Results[1].Status)
	assert.Equal(t, BulkStatusSkipped, result.Results[2].Status)

	// One embedding batch over the survivors, one graph write.
	require.Len(t, embClient.EmbedBatchCalls, 1)
	assert.Len(t, embClient.EmbedBatchCalls[0], 2)
	assert.Equal(t, 1, memStore.createBatchCalls)
}

func TestBulkService_EmptyItemFails(t *testing.T) {
	svc, _, _ := setupBulkTest()

	result, err := svc.BulkAdd(context.Background(), BulkRequest{
		UserID: "u1",
		Items:  []BulkItem{{Text: "   "}, {Text: "real memory"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, BulkStatusFailed, result.Results[0].Status)
	assert.Equal(t, "empty text", result.Results[0].Detail)
	assert.Equal(t, BulkStatusAdded, result.Results[1].Status)
}

func TestBulkService_CrossStoreDedup(t *testing.T) {
	svc, memStore, _ := setupBulkTest()
	existingID := uuid.New()
	memStore.similar = []domain.ScoredMemory{
		{ID: existingID, Content: "User likes sushi", Similarity: 0.97},
	}

	llmClient := llm.NewMockClient()
	llmClient.VerifyDuplicateResponse = domain.VerdictDuplicate
	deduper, err := NewDeduper(memStore, llmClient, 0.85, testLogger())
	require.NoError(t, err)
	svc.SetDeduper(deduper)

	result, err := svc.BulkAdd(context.Background(), BulkRequest{
		UserID:       "u1",
		DedupEnabled: true,
		Items:        []BulkItem{{Text: "User really likes sushi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedDuplicate)
	assert.Equal(t, BulkStatusSkipped, result.Results[0].Status)
	assert.Equal(t, existingID, result.Results[0].ID)
	assert.Equal(t, 0, memStore.createBatchCalls)
}

func TestBulkService_DedupDisabledSkipsVerification(t *testing.T) {
	svc, memStore, _ := setupBulkTest()
	memStore.similar = []domain.ScoredMemory{
		{ID: uuid.New(), Content: "User likes sushi", Similarity: 0.97},
	}
	llmClient := llm.NewMockClient()
	deduper, err := NewDeduper(memStore, llmClient, 0.85, testLogger())
	require.NoError(t, err)
	svc.SetDeduper(deduper)

	result, err := svc.BulkAdd(context.Background(), BulkRequest{
		UserID:       "u1",
		DedupEnabled: false,
		Items:        []BulkItem{{Text: "User really likes sushi"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Added)
	assert.Empty(t, llmClient.VerifyDuplicateCalls)
}

func TestBulkService_ProgressCallback(t *testing.T) {
	svc, _, _ := setupBulkTest()

	var calls []int
	_, err := svc.BulkAdd(context.Background(), BulkRequest{
		UserID: "u1",
		Items:  []BulkItem{{Text: "a"}, {Text: "b"}, {Text: "c"}},
		OnProgress: func(completed, total int) {
			assert.Equal(t, 3, total)
			calls = append(calls, completed)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, calls)
}

func TestBulkService_ValidAtAndExtraction(t *testing.T) {
	svc, memStore, _ := setupBulkTest()
	extractor := &fakeExtractor{}
	svc.SetExtractor(extractor)

	validAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	result, err := svc.BulkAdd(context.Background(), BulkRequest{
		UserID:  "u1",
		AppName: "importer",
		Items:   []BulkItem{{Text: "historical fact", ValidAt: &validAt}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Added)

	id := result.Results[0].ID
	stored, err := memStore.GetByID(context.Background(), "u1", id)
	require.NoError(t, err)
	assert.Equal(t, validAt, stored.ValidAt)
	assert.Equal(t, "importer", memStore.attachedApps[id])
	assert.Equal(t, []uuid.UUID{id}, extractor.jobs)
}

func TestBulkService_ConcurrencyCap(t *testing.T) {
	memStore := newFakeMemoryStore()
	logger := testLogger()

	svc := NewBulkService(memStore, embedding.NewMockClient(8), 500, logger)
	assert.Equal(t, 7, svc.concurrencyCap(7))
	assert.Equal(t, 5, svc.concurrencyCap(0))

	svc = NewBulkService(memStore, embedding.NewMockClient(8), 60, logger)
	assert.Equal(t, 3, svc.concurrencyCap(0))

	svc = NewBulkService(memStore, embedding.NewMockClient(8), 10, logger)
	assert.Equal(t, 1, svc.concurrencyCap(0))
}

func TestBulkService_CanceledMidDedup_DrainsWorkers(t *testing.T) {
	memStore := newFakeMemoryStore()
	memStore.similarWait = true
	svc := NewBulkService(memStore, embedding.NewMockClient(8), 500, testLogger())
	deduper, err := NewDeduper(memStore, llm.NewMockClient(), 0.85, testLogger())
	require.NoError(t, err)
	svc.SetDeduper(deduper)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	// Concurrency 1: the first worker holds the permit while the second
	// acquire blocks until the cancel fires.
	_, err = svc.BulkAdd(ctx, BulkRequest{
		UserID:       "u1",
		Items:        []BulkItem{{Text: "first fact"}, {Text: "second fact"}},
		Concurrency:  1,
		DedupEnabled: true,
	})
	require.ErrorIs(t, err, context.Canceled)

	// The launched worker must have finished before BulkAdd returned.
	memStore.mu.Lock()
	defer memStore.mu.Unlock()
	assert.Equal(t, 1, memStore.similarDone)
}

package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/domain"
	"github.com/recallhq/recall/internal/embedding"
	"github.com/recallhq/recall/internal/llm"
)

type fakeExtractor struct {
	jobs []uuid.UUID
}

func (f *fakeExtractor) Enqueue(userID string, memoryID uuid.UUID) {
	f.jobs = append(f.jobs, memoryID)
}

func setupMemoryTest() (*MemoryService, *fakeMemoryStore, *fakeHistoryStore, *embedding.MockClient) {
	memStore := newFakeMemoryStore()
	histStore := newFakeHistoryStore()
	embClient := embedding.NewMockClient(8)
	svc := NewMemoryService(memStore, histStore, embClient, testLogger())
	return svc, memStore, histStore, embClient
}

func TestMemoryService_Add(t *testing.T) {
	svc, memStore, histStore, _ := setupMemoryTest()
	extractor := &fakeExtractor{}
	svc.SetExtractor(extractor)
	ctx := context.Background()

	result, err := svc.Add(ctx, "u1", "User prefers dark mode", "assistant", map[string]any{"source": "chat"})
	require.NoError(t, err)

	assert.Equal(t, domain.DedupInsert, result.Action)
	assert.NotEqual(t, uuid.Nil, result.Memory.ID)
	assert.Equal(t, domain.StateActive, result.Memory.State)
	assert.Len(t, result.Memory.Embedding, 8)

	stored, err := memStore.GetByID(ctx, "u1", result.Memory.ID)
	require.NoError(t, err)
	assert.Equal(t, "User prefers dark mode", stored.Content)
	assert.Equal(t, "assistant", memStore.attachedApps[result.Memory.ID])

	require.Len(t, histStore.records, 1)
	assert.Equal(t, "create", histStore.records[0].Action)
	assert.Equal(t, []uuid.UUID{result.Memory.ID}, extractor.jobs)
}

func TestMemoryService_Add_Validation(t *testing.T) {
	svc, _, _, _ := setupMemoryTest()
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", "   ", "", nil)
	assert.ErrorIs(t, err, ErrContentEmpty)

	_, err = svc.Add(ctx, "", "something", "", nil)
	assert.ErrorIs(t, err, ErrUserIDMissing)
}

func TestMemoryService_Add_DedupSkipReturnsExisting(t *testing.T) {
	svc, memStore, _, _ := setupMemoryTest()
	ctx := context.Background()

	existing := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "User likes sushi", State: domain.StateActive}
	require.NoError(t, memStore.Create(ctx, existing))
	memStore.similar = []domain.ScoredMemory{{ID: existing.ID, Content: existing.Content, Similarity: 0.97}}

	llmClient := llm.NewMockClient()
	llmClient.VerifyDuplicateResponse = domain.VerdictDuplicate
	deduper, err := NewDeduper(memStore, llmClient, 0.85, testLogger())
	require.NoError(t, err)
	svc.SetDeduper(deduper)

	result, err := svc.Add(ctx, "u1", "User likes sushi very much", "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DedupSkip, result.Action)
	assert.Equal(t, existing.ID, result.Memory.ID)
}

func TestMemoryService_Add_DedupSupersedes(t *testing.T) {
	svc, memStore, histStore, _ := setupMemoryTest()
	ctx := context.Background()

	old := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "Lives in Berlin", State: domain.StateActive}
	require.NoError(t, memStore.Create(ctx, old))
	memStore.similar = []domain.ScoredMemory{{ID: old.ID, Content: old.Content, Similarity: 0.93}}

	llmClient := llm.NewMockClient()
	llmClient.VerifyDuplicateResponse = domain.VerdictSupersedes
	deduper, err := NewDeduper(memStore, llmClient, 0.85, testLogger())
	require.NoError(t, err)
	svc.SetDeduper(deduper)

	result, err := svc.Add(ctx, "u1", "Lives in Munich", "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DedupSupersede, result.Action)
	assert.Equal(t, "Lives in Munich", result.Memory.Content)

	invalidated, err := memStore.GetByID(ctx, "u1", old.ID)
	require.NoError(t, err)
	assert.NotNil(t, invalidated.InvalidAt)

	require.NotEmpty(t, histStore.records)
	assert.Equal(t, "superseded", histStore.records[0].Action)
}

func TestMemoryService_Add_ContextWindowPrefix(t *testing.T) {
	svc, memStore, _, embClient := setupMemoryTest()
	svc.SetContextWindow(5)
	ctx := context.Background()

	require.NoError(t, memStore.Create(ctx, &domain.Memory{
		ID: uuid.New(), UserID: "u1", Content: "Works at Acme", State: domain.StateActive,
	}))

	_, err := svc.Add(ctx, "u1", "Got promoted", "", nil)
	require.NoError(t, err)

	require.NotEmpty(t, embClient.EmbedCalls)
	input := embClient.EmbedCalls[len(embClient.EmbedCalls)-1]
	assert.True(t, strings.HasPrefix(input, "Recent memories:"))
	assert.Contains(t, input, "- Works at Acme")
	assert.Contains(t, input, "New memory: Got promoted")
}

func TestMemoryService_Update(t *testing.T) {
	svc, memStore, histStore, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "old text", State: domain.StateActive}
	require.NoError(t, memStore.Create(ctx, m))

	updated, err := svc.Update(ctx, "u1", m.ID, "new text")
	require.NoError(t, err)
	assert.Equal(t, "new text", updated.Content)

	stored, err := memStore.GetByID(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "new text", stored.Content)

	require.Len(t, histStore.records, 1)
	assert.Equal(t, "update", histStore.records[0].Action)
	assert.Equal(t, "old text", histStore.records[0].Previous)
}

func TestMemoryService_Supersede(t *testing.T) {
	svc, memStore, _, _ := setupMemoryTest()
	ctx := context.Background()

	old := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "Lives in Berlin", State: domain.StateActive}
	require.NoError(t, memStore.Create(ctx, old))

	successor, err := svc.Supersede(ctx, "u1", old.ID, "Lives in Munich", "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, successor.ID)

	invalidated, err := memStore.GetByID(ctx, "u1", old.ID)
	require.NoError(t, err)
	assert.NotNil(t, invalidated.InvalidAt)
	assert.False(t, invalidated.Live())
}

func TestMemoryService_Delete_Soft(t *testing.T) {
	svc, memStore, _, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "x", State: domain.StateActive}
	require.NoError(t, memStore.Create(ctx, m))

	require.NoError(t, svc.Delete(ctx, "u1", m.ID))

	stored, err := memStore.GetByID(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDeleted, stored.State)
	assert.NotNil(t, stored.InvalidAt)
}

func TestMemoryService_Get_OtherUserNotFound(t *testing.T) {
	svc, memStore, _, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{ID: uuid.New(), UserID: "userA", Content: "private", State: domain.StateActive}
	require.NoError(t, memStore.Create(ctx, m))

	_, err := svc.Get(ctx, "userB", m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryService_StateTransitions(t *testing.T) {
	svc, memStore, _, _ := setupMemoryTest()
	ctx := context.Background()

	m := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "x", State: domain.StateActive}
	require.NoError(t, memStore.Create(ctx, m))

	require.NoError(t, svc.Pause(ctx, "u1", m.ID))
	// Pausing twice is an invalid transition.
	assert.ErrorIs(t, svc.Pause(ctx, "u1", m.ID), ErrInvalidState)

	require.NoError(t, svc.Unpause(ctx, "u1", m.ID))
	require.NoError(t, svc.Archive(ctx, "u1", m.ID))

	stored, err := memStore.GetByID(ctx, "u1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateArchived, stored.State)
}

func TestMemoryService_BatchArchive_SkipsIneligible(t *testing.T) {
	svc, memStore, _, _ := setupMemoryTest()
	ctx := context.Background()

	active := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "a", State: domain.StateActive}
	paused := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "b", State: domain.StatePaused}
	require.NoError(t, memStore.Create(ctx, active))
	require.NoError(t, memStore.Create(ctx, paused))

	archived, err := svc.BatchArchive(ctx, "u1", []uuid.UUID{active.ID, paused.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, archived)
}

func TestMemoryService_BatchSetPause(t *testing.T) {
	svc, memStore, _, _ := setupMemoryTest()
	ctx := context.Background()

	a := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "a", State: domain.StateActive}
	b := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "b", State: domain.StateActive}
	require.NoError(t, memStore.Create(ctx, a))
	require.NoError(t, memStore.Create(ctx, b))

	changed, err := svc.BatchSetPause(ctx, "u1", []uuid.UUID{a.ID, b.ID}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	changed, err = svc.BatchSetPause(ctx, "u1", []uuid.UUID{a.ID}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	stored, err := memStore.GetByID(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, stored.State)
}

func TestMemoryService_List_ExcludesSupersededByDefault(t *testing.T) {
	svc, memStore, _, _ := setupMemoryTest()
	ctx := context.Background()

	now := time.Now().UTC()
	live := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "live", State: domain.StateActive}
	dead := &domain.Memory{ID: uuid.New(), UserID: "u1", Content: "dead", State: domain.StateActive, InvalidAt: &now}
	require.NoError(t, memStore.Create(ctx, live))
	require.NoError(t, memStore.Create(ctx, dead))

	page, err := svc.List(ctx, "u1", domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "live", page.Items[0].Content)

	page, err = svc.List(ctx, "u1", domain.ListFilter{IncludeSuperseded: true})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

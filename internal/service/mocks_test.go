package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/domain"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeMemoryStore implements domain.MemoryStore in memory for testing.
// Retrieval-arm results are injected through the exported-style fields.
type fakeMemoryStore struct {
	mu       sync.Mutex
	memories map[uuid.UUID]*domain.Memory
	order    []uuid.UUID

	similar     []domain.ScoredMemory
	similarErr  error
	similarWait bool // block SimilarLive until the context is canceled
	similarDone int
	textHits    []domain.RankedHit
	textErr     error
	vectorHits  []domain.RankedHit
	vectorErr   error

	createBatchCalls int
	attachedApps     map[uuid.UUID]string
	categories       map[uuid.UUID][]string
	statuses         map[uuid.UUID]domain.ExtractionStatus
	statusErrors     map[uuid.UUID]string
	attempts         map[uuid.UUID]int
	sweepResult      int
	sweepCalls       int
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{
		memories:     make(map[uuid.UUID]*domain.Memory),
		attachedApps: make(map[uuid.UUID]string),
		categories:   make(map[uuid.UUID][]string),
		statuses:     make(map[uuid.UUID]domain.ExtractionStatus),
		statusErrors: make(map[uuid.UUID]string),
		attempts:     make(map[uuid.UUID]int),
	}
}

func (f *fakeMemoryStore) Create(ctx context.Context, m *domain.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.memories[m.ID] = &cp
	f.order = append(f.order, m.ID)
	return nil
}

func (f *fakeMemoryStore) CreateBatch(ctx context.Context, ms []*domain.Memory) error {
	f.mu.Lock()
	f.createBatchCalls++
	f.mu.Unlock()
	for _, m := range ms {
		if err := f.Create(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeMemoryStore) GetByID(ctx context.Context, userID string, id uuid.UUID) (*domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok || m.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMemoryStore) List(ctx context.Context, userID string, filter domain.ListFilter) (*domain.MemoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []domain.Memory
	for _, id := range f.order {
		m := f.memories[id]
		if m.UserID != userID {
			continue
		}
		if !filter.IncludeSuperseded && !m.Live() {
			continue
		}
		if filter.State != nil && m.State != *filter.State {
			continue
		}
		if filter.Contains != "" && !strings.Contains(strings.ToLower(m.Content), strings.ToLower(filter.Contains)) {
			continue
		}
		items = append(items, *m)
	}
	return &domain.MemoryPage{Items: items, Total: len(items), Page: 1, Size: len(items), Pages: 1}, nil
}

func (f *fakeMemoryStore) UpdateContent(ctx context.Context, userID string, id uuid.UUID, content string, embedding []float32, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok || m.UserID != userID {
		return domain.ErrNotFound
	}
	m.Content = content
	m.Embedding = embedding
	m.UpdatedAt = at
	return nil
}

func (f *fakeMemoryStore) SetState(ctx context.Context, userID string, id uuid.UUID, state domain.MemoryState, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok || m.UserID != userID {
		return domain.ErrNotFound
	}
	m.State = state
	m.UpdatedAt = at
	return nil
}

func (f *fakeMemoryStore) SoftDelete(ctx context.Context, userID string, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok || m.UserID != userID {
		return domain.ErrNotFound
	}
	m.State = domain.StateDeleted
	m.InvalidAt = &at
	m.DeletedAt = &at
	return nil
}

func (f *fakeMemoryStore) DeleteAll(ctx context.Context, userID, appName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for id, m := range f.memories {
		if m.UserID != userID {
			continue
		}
		if appName != "" && m.AppName != appName {
			continue
		}
		delete(f.memories, id)
		deleted++
	}
	return deleted, nil
}

func (f *fakeMemoryStore) Supersede(ctx context.Context, userID string, oldID uuid.UUID, successor *domain.Memory, at time.Time) error {
	f.mu.Lock()
	old, ok := f.memories[oldID]
	if !ok || old.UserID != userID {
		f.mu.Unlock()
		return domain.ErrNotFound
	}
	old.InvalidAt = &at
	f.mu.Unlock()
	return f.Create(ctx, successor)
}

func (f *fakeMemoryStore) AttachApp(ctx context.Context, userID string, memoryID uuid.UUID, appName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachedApps[memoryID] = appName
	return nil
}

func (f *fakeMemoryStore) LastLive(ctx context.Context, userID string, n int) ([]domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Memory
	for _, id := range f.order {
		m := f.memories[id]
		if m.UserID == userID && m.Live() {
			out = append(out, *m)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (f *fakeMemoryStore) SimilarLive(ctx context.Context, userID string, embedding []float32, threshold float64, k int) ([]domain.ScoredMemory, error) {
	if f.similarWait {
		<-ctx.Done()
		f.mu.Lock()
		f.similarDone++
		f.mu.Unlock()
		return nil, ctx.Err()
	}
	return f.similar, f.similarErr
}

func (f *fakeMemoryStore) TextSearch(ctx context.Context, userID, query string, limit int) ([]domain.RankedHit, error) {
	return f.textHits, f.textErr
}

func (f *fakeMemoryStore) VectorSearch(ctx context.Context, userID string, embedding []float32, limit int) ([]domain.RankedHit, error) {
	return f.vectorHits, f.vectorErr
}

func (f *fakeMemoryStore) Hydrate(ctx context.Context, userID string, ids []uuid.UUID, withEmbeddings bool) (map[uuid.UUID]*domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]*domain.SearchResult, len(ids))
	for _, id := range ids {
		m, ok := f.memories[id]
		if !ok || m.UserID != userID {
			continue
		}
		r := &domain.SearchResult{
			ID:         m.ID,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
			AppName:    m.AppName,
			Categories: m.Categories,
		}
		if withEmbeddings {
			r.Embedding = m.Embedding
		}
		out[id] = r
	}
	return out, nil
}

func (f *fakeMemoryStore) AddCategories(ctx context.Context, userID string, id uuid.UUID, categories []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories[id] = append(f.categories[id], categories...)
	return nil
}

func (f *fakeMemoryStore) MarkExtractionPending(ctx context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[id]++
	f.statuses[id] = domain.ExtractionPending
	return f.attempts[id], nil
}

func (f *fakeMemoryStore) SetExtractionStatus(ctx context.Context, id uuid.UUID, status domain.ExtractionStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	f.statusErrors[id] = errMsg
	return nil
}

func (f *fakeMemoryStore) SweepStaleExtractions(ctx context.Context, maxAttempts int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepCalls++
	return f.sweepResult, nil
}

func (f *fakeMemoryStore) ExportAll(ctx context.Context, userID string) ([]domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Memory
	for _, id := range f.order {
		m := f.memories[id]
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// fakeEntityStore implements domain.EntityStore in memory for testing.
type fakeEntityStore struct {
	mu        sync.Mutex
	entities  map[uuid.UUID]*domain.Entity
	mentions  map[uuid.UUID]int
	relations []*domain.RelatedEdge
	summaries map[uuid.UUID]string

	incremented []uuid.UUID
	invalidated []uuid.UUID

	connected    map[uuid.UUID][]domain.Memory
	seeds        []domain.Entity
	neighbors    []domain.Entity
	neighborsErr error
	mentionedBy  []domain.RankedHit
	seedErr      error
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{
		entities:  make(map[uuid.UUID]*domain.Entity),
		mentions:  make(map[uuid.UUID]int),
		summaries: make(map[uuid.UUID]string),
		connected: make(map[uuid.UUID][]domain.Memory),
	}
}

func (f *fakeEntityStore) FindByName(ctx context.Context, userID, name string) (*domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entities {
		if e.UserID == userID && strings.EqualFold(e.Name, name) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEntityStore) FindPersonByPrefix(ctx context.Context, userID, name string) (*domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entities {
		if e.UserID == userID && e.Type == domain.EntityTypePerson && domain.PrefixOnWordBoundary(e.Name, name) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEntityStore) Create(ctx context.Context, e *domain.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.entities[e.ID] = &cp
	return nil
}

func (f *fakeEntityStore) UpdateResolved(ctx context.Context, id uuid.UUID, name, entityType, description string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Name = name
	e.Type = entityType
	e.Description = description
	e.UpdatedAt = at
	return nil
}

func (f *fakeEntityStore) SetDescriptionEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entities[id]; ok {
		e.DescriptionEmbedding = embedding
	}
	return nil
}

func (f *fakeEntityStore) SetSummary(ctx context.Context, id uuid.UUID, summary string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries[id] = summary
	return nil
}

func (f *fakeEntityStore) LinkMention(ctx context.Context, userID string, memoryID, entityID uuid.UUID, role string, confidence float64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mentions[entityID]++
	return nil
}

func (f *fakeEntityStore) RecomputeRank(ctx context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rank := f.mentions[id]
	for _, r := range f.relations {
		if r.InvalidAt == nil && (r.SourceID == id || r.TargetID == id) {
			rank++
		}
	}
	if e, ok := f.entities[id]; ok {
		e.Rank = rank
	}
	return rank, nil
}

func (f *fakeEntityStore) LiveMentionCount(ctx context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mentions[id], nil
}

func (f *fakeEntityStore) ConnectedMemories(ctx context.Context, id uuid.UUID, limit int) ([]domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ms := f.connected[id]
	if len(ms) > limit {
		ms = ms[:limit]
	}
	return ms, nil
}

func (f *fakeEntityStore) OutgoingRelations(ctx context.Context, id uuid.UUID, limit int) ([]domain.RelatedEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RelatedEdge
	for _, r := range f.relations {
		if r.SourceID == id && r.InvalidAt == nil {
			out = append(out, *r)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEntityStore) GetLiveRelation(ctx context.Context, srcID, tgtID uuid.UUID, relType string) (*domain.RelatedEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.relations {
		if r.SourceID == srcID && r.TargetID == tgtID && r.Type == relType && r.InvalidAt == nil {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEntityStore) CreateRelation(ctx context.Context, e *domain.RelatedEdge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *e
	f.relations = append(f.relations, &cp)
	return nil
}

func (f *fakeEntityStore) IncrementRelation(ctx context.Context, edgeID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incremented = append(f.incremented, edgeID)
	for _, r := range f.relations {
		if r.ID == edgeID {
			r.ConfirmedCount++
		}
	}
	return nil
}

func (f *fakeEntityStore) InvalidateRelation(ctx context.Context, edgeID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, edgeID)
	for _, r := range f.relations {
		if r.ID == edgeID {
			r.InvalidAt = &at
		}
	}
	return nil
}

func (f *fakeEntityStore) List(ctx context.Context, userID string, page, size int) (*domain.EntityPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Entity
	for _, e := range f.entities {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return &domain.EntityPage{Entities: out, Total: len(out), Page: page, Size: size}, nil
}

func (f *fakeEntityStore) GetByID(ctx context.Context, userID string, id uuid.UUID) (*domain.Entity, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok || e.UserID != userID {
		return nil, 0, domain.ErrNotFound
	}
	cp := *e
	return &cp, f.mentions[id], nil
}

func (f *fakeEntityStore) MemoriesFor(ctx context.Context, userID string, id uuid.UUID, page, size int) (*domain.MemoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ms := f.connected[id]
	return &domain.MemoryPage{Items: ms, Total: len(ms), Page: page, Size: size, Pages: 1}, nil
}

func (f *fakeEntityStore) SeedSearch(ctx context.Context, userID string, terms []string, limit int) ([]domain.Entity, error) {
	return f.seeds, f.seedErr
}

func (f *fakeEntityStore) Neighbors(ctx context.Context, userID string, ids []uuid.UUID, limit int) ([]domain.Entity, error) {
	return f.neighbors, f.neighborsErr
}

func (f *fakeEntityStore) MemoriesMentionedBy(ctx context.Context, userID string, ids []uuid.UUID, limit int) ([]domain.RankedHit, error) {
	return f.mentionedBy, nil
}

// fakeCommunityStore implements domain.CommunityStore for testing.
type fakeCommunityStore struct {
	detected    map[int64][]uuid.UUID
	detectErr   error
	deletedAll  bool
	created     []*domain.Community
	communities []domain.Community
	memories    map[uuid.UUID][]domain.Memory
}

func newFakeCommunityStore() *fakeCommunityStore {
	return &fakeCommunityStore{memories: make(map[uuid.UUID][]domain.Memory)}
}

func (f *fakeCommunityStore) DetectCommunities(ctx context.Context, userID string) (map[int64][]uuid.UUID, error) {
	return f.detected, f.detectErr
}

func (f *fakeCommunityStore) DeleteAll(ctx context.Context, userID string) error {
	f.deletedAll = true
	return nil
}

func (f *fakeCommunityStore) Create(ctx context.Context, userID string, c *domain.Community, entityIDs []uuid.UUID) error {
	f.created = append(f.created, c)
	return nil
}

func (f *fakeCommunityStore) List(ctx context.Context, userID string) ([]domain.Community, error) {
	return f.communities, nil
}

func (f *fakeCommunityStore) Memories(ctx context.Context, userID string, id uuid.UUID, limit int) ([]domain.Memory, error) {
	return f.memories[id], nil
}

type accessRecord struct {
	UserID   string
	MemoryID uuid.UUID
	AppName  string
	Query    string
}

// fakeAccessStore implements domain.AccessStore for testing.
type fakeAccessStore struct {
	mu      sync.Mutex
	records []accessRecord
	stats   *domain.UserStats
}

func newFakeAccessStore() *fakeAccessStore {
	return &fakeAccessStore{stats: &domain.UserStats{}}
}

func (f *fakeAccessStore) Record(ctx context.Context, userID string, memoryID uuid.UUID, appName, query string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, accessRecord{UserID: userID, MemoryID: memoryID, AppName: appName, Query: query})
	return nil
}

func (f *fakeAccessStore) ListForMemory(ctx context.Context, userID string, memoryID uuid.UUID, page, size int) (*domain.AccessLogPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var logs []domain.AccessLogEntry
	for _, r := range f.records {
		if r.UserID == userID && r.MemoryID == memoryID {
			logs = append(logs, domain.AccessLogEntry{MemoryID: r.MemoryID, AppName: r.AppName, QueryUsed: r.Query})
		}
	}
	return &domain.AccessLogPage{Logs: logs, Total: len(logs), Page: page, PageSize: size}, nil
}

func (f *fakeAccessStore) UserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	return f.stats, nil
}

// fakeHistoryStore implements domain.HistoryStore for testing.
type fakeHistoryStore struct {
	mu      sync.Mutex
	records []*domain.MemoryHistory
}

func newFakeHistoryStore() *fakeHistoryStore {
	return &fakeHistoryStore{}
}

func (f *fakeHistoryStore) Record(ctx context.Context, h *domain.MemoryHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, h)
	return nil
}

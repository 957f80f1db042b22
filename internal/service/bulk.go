package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/recallhq/recall/internal/domain"
)

const (
	// MaxBulkItems caps one bulk request.
	MaxBulkItems = 500

	defaultBulkConcurrency = 5
)

// Bulk item statuses.
const (
	BulkStatusAdded   = "added"
	BulkStatusSkipped = "skipped_duplicate"
	BulkStatusFailed  = "failed"
)

type BulkItem struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	ValidAt  *time.Time     `json:"valid_at,omitempty"`
}

type BulkItemResult struct {
	Text   string    `json:"text"`
	Status string    `json:"status"`
	ID     uuid.UUID `json:"id,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

type BulkResult struct {
	Total            int              `json:"total"`
	Added            int              `json:"added"`
	SkippedDuplicate int              `json:"skipped_duplicate"`
	Failed           int              `json:"failed"`
	Results          []BulkItemResult `json:"results"`
}

type BulkRequest struct {
	UserID       string
	AppName      string
	Items        []BulkItem
	Concurrency  int
	DedupEnabled bool
	OnProgress   func(completed, total int)
}

// BulkService ingests up to MaxBulkItems memories in one pass: in-batch exact
// dedup, concurrency-capped near-dedup, a single batched embedding call and a
// single batched graph write.
type BulkService struct {
	memories  domain.MemoryStore
	embedder  domain.EmbeddingClient
	deduper   *Deduper
	extractor Extractor
	rpm       int
	logger    *zap.Logger
}

func NewBulkService(ms domain.MemoryStore, ec domain.EmbeddingClient, rpm int, logger *zap.Logger) *BulkService {
	return &BulkService{
		memories: ms,
		embedder: ec,
		rpm:      rpm,
		logger:   logger,
	}
}

func (s *BulkService) SetDeduper(d *Deduper) {
	s.deduper = d
}

func (s *BulkService) SetExtractor(e Extractor) {
	s.extractor = e
}

// concurrencyCap derives the dedup fan-out width from the provider's RPM
// allowance so bulk ingest cannot starve the hot path.
func (s *BulkService) concurrencyCap(requested int) int {
	if requested > 0 {
		return requested
	}
	n := defaultBulkConcurrency
	if s.rpm > 0 && s.rpm/20 < n {
		n = s.rpm / 20
	}
	if n < 1 {
		n = 1
	}
	return n
}

// BulkAdd processes the items and returns one result per input, in input
// order.
func (s *BulkService) BulkAdd(ctx context.Context, req BulkRequest) (*BulkResult, error) {
	if req.UserID == "" {
		return nil, ErrUserIDMissing
	}
	if len(req.Items) == 0 {
		return nil, ErrBulkEmpty
	}
	if len(req.Items) > MaxBulkItems {
		return nil, ErrBulkTooLarge
	}

	total := len(req.Items)
	results := make([]BulkItemResult, total)

	var mu sync.Mutex
	completed := 0
	finalize := func(i int, r BulkItemResult) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
		completed++
		if req.OnProgress != nil {
			req.OnProgress(completed, total)
		}
	}

	// Stage 1: in-batch exact dedup on case-insensitive trimmed text.
	seen := make(map[string]bool, total)
	var survivors []int
	for i, item := range req.Items {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			finalize(i, BulkItemResult{Text: item.Text, Status: BulkStatusFailed, Detail: "empty text"})
			continue
		}
		key := strings.ToLower(text)
		if seen[key] {
			finalize(i, BulkItemResult{Text: item.Text, Status: BulkStatusSkipped})
			continue
		}
		seen[key] = true
		survivors = append(survivors, i)
	}
	if len(survivors) == 0 {
		return s.summarize(results), nil
	}

	// One embedding call covers every survivor.
	texts := make([]string, len(survivors))
	for si, i := range survivors {
		texts[si] = strings.TrimSpace(req.Items[i].Text)
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	// Stage 2: cross-store near-dedup, fan-out capped by the semaphore.
	// Dedup failures fail open; the item stays in.
	keep := make([]bool, len(survivors))
	if s.deduper != nil && req.DedupEnabled {
		sem := semaphore.NewWeighted(int64(s.concurrencyCap(req.Concurrency)))
		var wg sync.WaitGroup
		for si, i := range survivors {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Drain the workers already launched so no result or
				// progress callback lands after we return.
				wg.Wait()
				return nil, err
			}
			wg.Add(1)
			go func(si, i int) {
				defer wg.Done()
				defer sem.Release(1)
				decision := s.deduper.Decide(ctx, req.UserID, texts[si], embeddings[si])
				if decision.Action == domain.DedupInsert {
					keep[si] = true
					return
				}
				finalize(i, BulkItemResult{Text: req.Items[i].Text, Status: BulkStatusSkipped, ID: decision.ExistingID})
			}(si, i)
		}
		wg.Wait()
	} else {
		for si := range survivors {
			keep[si] = true
		}
	}

	// Single batched write for everything that survived.
	now := time.Now().UTC()
	var memories []*domain.Memory
	var memoryIdx []int
	for si, i := range survivors {
		if !keep[si] {
			continue
		}
		item := req.Items[i]
		validAt := now
		if item.ValidAt != nil {
			validAt = item.ValidAt.UTC()
		}
		memories = append(memories, &domain.Memory{
			ID:        uuid.New(),
			UserID:    req.UserID,
			Content:   strings.TrimSpace(item.Text),
			State:     domain.StateActive,
			Embedding: embeddings[si],
			Metadata:  item.Metadata,
			AppName:   req.AppName,
			ValidAt:   validAt,
			CreatedAt: now,
			UpdatedAt: now,
		})
		memoryIdx = append(memoryIdx, i)
	}

	if len(memories) > 0 {
		if err := s.memories.CreateBatch(ctx, memories); err != nil {
			return nil, err
		}
		for mi, m := range memories {
			if req.AppName != "" {
				if err := s.memories.AttachApp(ctx, req.UserID, m.ID, req.AppName); err != nil {
					s.logger.Warn("bulk app attach failed", zap.String("memory_id", m.ID.String()), zap.Error(err))
				}
			}
			if s.extractor != nil {
				s.extractor.Enqueue(req.UserID, m.ID)
			}
			finalize(memoryIdx[mi], BulkItemResult{Text: req.Items[memoryIdx[mi]].Text, Status: BulkStatusAdded, ID: m.ID})
		}
	}

	return s.summarize(results), nil
}

func (s *BulkService) summarize(results []BulkItemResult) *BulkResult {
	out := &BulkResult{Total: len(results), Results: results}
	for _, r := range results {
		switch r.Status {
		case BulkStatusAdded:
			out.Added++
		case BulkStatusSkipped:
			out.SkippedDuplicate++
		default:
			out.Failed++
		}
	}
	return out
}

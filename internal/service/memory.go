package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/domain"
)

var (
	ErrContentEmpty      = errors.New("content is required")
	ErrUserIDMissing     = errors.New("user_id is required")
	ErrInvalidState      = errors.New("invalid state transition")
	ErrQueryEmpty        = errors.New("query is required")
	ErrBulkTooLarge      = errors.New("bulk request exceeds 500 items")
	ErrBulkEmpty         = errors.New("bulk request has no items")
	ErrInvalidBackupBlob = errors.New("unrecognized backup format")
)

// Extractor receives fire-and-forget entity-extraction jobs.
type Extractor interface {
	Enqueue(userID string, memoryID uuid.UUID)
}

// MemoryService is the write path: ingestion with dedup, temporal mutations
// and listing.
type MemoryService struct {
	memories      domain.MemoryStore
	history       domain.HistoryStore
	embedder      domain.EmbeddingClient
	deduper       *Deduper
	extractor     Extractor
	contextWindow int
	logger        *zap.Logger
}

func NewMemoryService(ms domain.MemoryStore, hs domain.HistoryStore, ec domain.EmbeddingClient, logger *zap.Logger) *MemoryService {
	return &MemoryService{
		memories: ms,
		history:  hs,
		embedder: ec,
		logger:   logger,
	}
}

// SetDeduper enables deduplication on the add path.
func (s *MemoryService) SetDeduper(d *Deduper) {
	s.deduper = d
}

// SetExtractor enables asynchronous entity extraction for new memories.
func (s *MemoryService) SetExtractor(e Extractor) {
	s.extractor = e
}

// SetContextWindow sets how many recent memories prefix the embedding input.
// Zero disables the prefix.
func (s *MemoryService) SetContextWindow(n int) {
	s.contextWindow = n
}

// AddResult reports what happened to an added memory: Memory is the new
// record, or the existing one when dedup skipped the write.
type AddResult struct {
	Memory *domain.Memory
	Action domain.DedupAction
}

// Add ingests one text memory: context-enriched embedding, dedup, temporal
// write, app attachment, then fire-and-forget extraction.
func (s *MemoryService) Add(ctx context.Context, userID, content, appName string, metadata map[string]any) (*AddResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrContentEmpty
	}
	if userID == "" {
		return nil, ErrUserIDMissing
	}

	embedding, err := s.embedder.Embed(ctx, s.embedInput(ctx, userID, content))
	if err != nil {
		return nil, err
	}

	if s.deduper != nil {
		decision := s.deduper.Decide(ctx, userID, content, embedding)
		switch decision.Action {
		case domain.DedupSkip:
			existing, err := s.memories.GetByID(ctx, userID, decision.ExistingID)
			if err != nil {
				return nil, err
			}
			return &AddResult{Memory: existing, Action: domain.DedupSkip}, nil
		case domain.DedupSupersede:
			successor, err := s.supersedeWith(ctx, userID, decision.ExistingID, content, appName, metadata, embedding)
			if err != nil {
				return nil, err
			}
			return &AddResult{Memory: successor, Action: domain.DedupSupersede}, nil
		}
	}

	now := time.Now().UTC()
	m := &domain.Memory{
		ID:        uuid.New(),
		UserID:    userID,
		Content:   content,
		State:     domain.StateActive,
		Embedding: embedding,
		Metadata:  metadata,
		AppName:   appName,
		ValidAt:   now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.memories.Create(ctx, m); err != nil {
		return nil, err
	}
	if appName != "" {
		if err := s.memories.AttachApp(ctx, userID, m.ID, appName); err != nil {
			return nil, err
		}
	}

	s.recordHistory(ctx, m.ID, "create", "", content)
	s.enqueueExtraction(userID, m.ID)

	return &AddResult{Memory: m, Action: domain.DedupInsert}, nil
}

// Update re-embeds the new content and rewrites the memory in place. The
// valid-time range is untouched; for a temporal replacement use Supersede.
func (s *MemoryService) Update(ctx context.Context, userID string, id uuid.UUID, content string) (*domain.Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrContentEmpty
	}

	previous, err := s.memories.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.memories.UpdateContent(ctx, userID, id, content, embedding, now); err != nil {
		return nil, err
	}

	s.recordHistory(ctx, id, "update", previous.Content, content)
	s.enqueueExtraction(userID, id)

	updated := *previous
	updated.Content = content
	updated.UpdatedAt = now
	return &updated, nil
}

// Supersede invalidates the old memory and creates a successor carrying the
// new content, linked by a SUPERSEDES edge.
func (s *MemoryService) Supersede(ctx context.Context, userID string, oldID uuid.UUID, content, appName string, metadata map[string]any) (*domain.Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrContentEmpty
	}
	embedding, err := s.embedder.Embed(ctx, s.embedInput(ctx, userID, content))
	if err != nil {
		return nil, err
	}
	return s.supersedeWith(ctx, userID, oldID, content, appName, metadata, embedding)
}

func (s *MemoryService) supersedeWith(ctx context.Context, userID string, oldID uuid.UUID, content, appName string, metadata map[string]any, embedding []float32) (*domain.Memory, error) {
	now := time.Now().UTC()
	successor := &domain.Memory{
		ID:        uuid.New(),
		UserID:    userID,
		Content:   content,
		State:     domain.StateActive,
		Embedding: embedding,
		Metadata:  metadata,
		AppName:   appName,
		ValidAt:   now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.memories.Supersede(ctx, userID, oldID, successor, now); err != nil {
		return nil, err
	}
	if appName != "" {
		if err := s.memories.AttachApp(ctx, userID, successor.ID, appName); err != nil {
			return nil, err
		}
	}

	s.recordHistory(ctx, oldID, "superseded", "", successor.ID.String())
	s.enqueueExtraction(userID, successor.ID)

	return successor, nil
}

// Delete is a temporal soft-delete: the memory stays in the graph with
// state 'deleted' and a set invalidAt.
func (s *MemoryService) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if err := s.memories.SoftDelete(ctx, userID, id, time.Now().UTC()); err != nil {
		return err
	}
	s.recordHistory(ctx, id, "delete", "", "")
	return nil
}

// DeleteAll hard-deletes every memory of the user, optionally restricted to
// one app. Returns the number removed.
func (s *MemoryService) DeleteAll(ctx context.Context, userID, appName string) (int, error) {
	return s.memories.DeleteAll(ctx, userID, appName)
}

// Archive moves a memory from active to archived.
func (s *MemoryService) Archive(ctx context.Context, userID string, id uuid.UUID) error {
	return s.transition(ctx, userID, id, domain.StateActive, domain.StateArchived)
}

// Pause moves a memory from active to paused.
func (s *MemoryService) Pause(ctx context.Context, userID string, id uuid.UUID) error {
	return s.transition(ctx, userID, id, domain.StateActive, domain.StatePaused)
}

// Unpause moves a memory from paused back to active.
func (s *MemoryService) Unpause(ctx context.Context, userID string, id uuid.UUID) error {
	return s.transition(ctx, userID, id, domain.StatePaused, domain.StateActive)
}

func (s *MemoryService) transition(ctx context.Context, userID string, id uuid.UUID, from, to domain.MemoryState) error {
	m, err := s.memories.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if m.State != from {
		return ErrInvalidState
	}
	if err := s.memories.SetState(ctx, userID, id, to, time.Now().UTC()); err != nil {
		return err
	}
	s.recordHistory(ctx, id, "state", string(from), string(to))
	return nil
}

// BatchArchive archives each owned active memory and reports how many
// changed. Ids that are missing, foreign or not active are skipped.
func (s *MemoryService) BatchArchive(ctx context.Context, userID string, ids []uuid.UUID) (int, error) {
	changed := 0
	for _, id := range ids {
		if err := s.Archive(ctx, userID, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, ErrInvalidState) {
				continue
			}
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// BatchSetPause pauses or unpauses each owned memory and reports how many
// changed.
func (s *MemoryService) BatchSetPause(ctx context.Context, userID string, ids []uuid.UUID, pause bool) (int, error) {
	changed := 0
	for _, id := range ids {
		var err error
		if pause {
			err = s.Pause(ctx, userID, id)
		} else {
			err = s.Unpause(ctx, userID, id)
		}
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, ErrInvalidState) {
				continue
			}
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func (s *MemoryService) Get(ctx context.Context, userID string, id uuid.UUID) (*domain.Memory, error) {
	return s.memories.GetByID(ctx, userID, id)
}

func (s *MemoryService) List(ctx context.Context, userID string, f domain.ListFilter) (*domain.MemoryPage, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	return s.memories.List(ctx, userID, f)
}

// embedInput prepends the user's recent memories to the embedding input so
// near-identical texts land close even when phrased tersely. The stored
// content is never rewritten.
func (s *MemoryService) embedInput(ctx context.Context, userID, content string) string {
	if s.contextWindow <= 0 {
		return content
	}
	recent, err := s.memories.LastLive(ctx, userID, s.contextWindow)
	if err != nil {
		s.logger.Warn("context window lookup failed, embedding without prefix", zap.Error(err))
		return content
	}
	if len(recent) == 0 {
		return content
	}

	var sb strings.Builder
	sb.WriteString("Recent memories:\n")
	for _, m := range recent {
		sb.WriteString("- ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	sb.WriteString("\nNew memory: ")
	sb.WriteString(content)
	return sb.String()
}

func (s *MemoryService) recordHistory(ctx context.Context, memoryID uuid.UUID, action, previous, next string) {
	if s.history == nil {
		return
	}
	h := &domain.MemoryHistory{
		ID:        uuid.New(),
		MemoryID:  memoryID,
		Action:    action,
		Previous:  previous,
		New:       next,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.history.Record(ctx, h); err != nil {
		s.logger.Warn("history record failed", zap.String("memory_id", memoryID.String()), zap.Error(err))
	}
}

func (s *MemoryService) enqueueExtraction(userID string, memoryID uuid.UUID) {
	if s.extractor == nil {
		return
	}
	s.extractor.Enqueue(userID, memoryID)
}

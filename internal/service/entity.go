package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/domain"
)

const (
	// MaxExtractionAttempts bounds retries before a memory's extraction is
	// marked failed for good.
	MaxExtractionAttempts = 3

	// summaryMentionThreshold is the live mention count at which an entity
	// earns a regenerated profile summary.
	summaryMentionThreshold = 5
	summaryMemoryLimit      = 10
	summaryRelationLimit    = 15
)

// EntityService runs the extraction worker and serves entity reads.
type EntityService struct {
	memories domain.MemoryStore
	entities domain.EntityStore
	embedder domain.EmbeddingClient
	llm      domain.LLMClient
	logger   *zap.Logger
}

func NewEntityService(ms domain.MemoryStore, es domain.EntityStore, ec domain.EmbeddingClient, lc domain.LLMClient, logger *zap.Logger) *EntityService {
	return &EntityService{
		memories: ms,
		entities: es,
		embedder: ec,
		llm:      lc,
		logger:   logger,
	}
}

// ProcessMemory extracts entities and relationships from one memory and
// merges them into the user's entity graph. Failures are recorded on the
// memory node; the worker never panics the caller.
func (s *EntityService) ProcessMemory(ctx context.Context, userID string, memoryID uuid.UUID) error {
	attempts, err := s.memories.MarkExtractionPending(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}
	if attempts > MaxExtractionAttempts {
		return s.fail(ctx, memoryID, "extraction attempts exhausted")
	}

	m, err := s.memories.GetByID(ctx, userID, memoryID)
	if err != nil {
		return s.fail(ctx, memoryID, err.Error())
	}

	extracted, relations, err := s.llm.ExtractEntities(ctx, m.Content)
	if err != nil {
		return s.fail(ctx, memoryID, err.Error())
	}

	now := time.Now().UTC()
	resolved := make(map[string]*domain.Entity, len(extracted))
	for _, ex := range extracted {
		e, err := s.resolve(ctx, userID, ex, now)
		if err != nil {
			s.logger.Warn("entity resolve failed",
				zap.String("name", ex.Name), zap.Error(err))
			continue
		}
		resolved[strings.ToLower(strings.TrimSpace(ex.Name))] = e

		if err := s.entities.LinkMention(ctx, userID, memoryID, e.ID, ex.Role, ex.Confidence, now); err != nil {
			s.logger.Warn("link mention failed",
				zap.String("entity_id", e.ID.String()), zap.Error(err))
			continue
		}
		if _, err := s.entities.RecomputeRank(ctx, e.ID); err != nil {
			s.logger.Warn("rank recompute failed",
				zap.String("entity_id", e.ID.String()), zap.Error(err))
		}
		s.maybeSummarize(ctx, e)
	}

	for _, rel := range relations {
		src := resolved[strings.ToLower(strings.TrimSpace(rel.Source))]
		tgt := resolved[strings.ToLower(strings.TrimSpace(rel.Target))]
		if src == nil || tgt == nil || src.ID == tgt.ID {
			continue
		}
		if err := s.LinkEntities(ctx, src.ID, tgt.ID, rel.Type, rel.Description); err != nil {
			s.logger.Warn("relation link failed",
				zap.String("source", rel.Source), zap.String("target", rel.Target), zap.Error(err))
		}
	}

	s.categorize(ctx, userID, m)

	if err := s.memories.SetExtractionStatus(ctx, memoryID, domain.ExtractionDone, ""); err != nil {
		return fmt.Errorf("set extraction done: %w", err)
	}
	return nil
}

func (s *EntityService) fail(ctx context.Context, memoryID uuid.UUID, msg string) error {
	if err := s.memories.SetExtractionStatus(ctx, memoryID, domain.ExtractionFailed, msg); err != nil {
		s.logger.Error("set extraction failed status",
			zap.String("memory_id", memoryID.String()), zap.Error(err))
	}
	return errors.New(msg)
}

// resolve finds or creates the entity for one extraction. On a name hit the
// more specific type and the longer description win; a PERSON without an
// exact match may merge into an existing person by the whole-word prefix rule
// after LLM confirmation.
func (s *EntityService) resolve(ctx context.Context, userID string, ex domain.ExtractedEntity, now time.Time) (*domain.Entity, error) {
	name := strings.TrimSpace(ex.Name)
	if name == "" {
		return nil, errors.New("empty entity name")
	}
	exType := strings.ToUpper(strings.TrimSpace(ex.Type))
	if exType == "" {
		exType = domain.EntityTypeOther
	}

	existing, err := s.entities.FindByName(ctx, userID, name)
	switch {
	case err == nil:
		return s.merge(ctx, existing, existing.Name, exType, ex.Description, now)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	if exType == domain.EntityTypePerson {
		if person, err := s.entities.FindPersonByPrefix(ctx, userID, name); err == nil {
			same, err := s.llm.ConfirmEntityMerge(ctx, person.Name, name)
			if err != nil {
				s.logger.Warn("entity merge confirmation failed, keeping separate", zap.Error(err))
			}
			if same {
				longer := person.Name
				if len(name) > len(longer) {
					longer = name
				}
				return s.merge(ctx, person, longer, exType, ex.Description, now)
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	e := &domain.Entity{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Type:        exType,
		Description: strings.TrimSpace(ex.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.entities.Create(ctx, e); err != nil {
		return nil, err
	}
	s.embedDescription(e.ID, e.Description)
	return e, nil
}

func (s *EntityService) merge(ctx context.Context, existing *domain.Entity, name, incomingType, incomingDesc string, now time.Time) (*domain.Entity, error) {
	mergedType := domain.MoreSpecificType(existing.Type, incomingType)
	mergedDesc := existing.Description
	if len(strings.TrimSpace(incomingDesc)) > len(mergedDesc) {
		mergedDesc = strings.TrimSpace(incomingDesc)
	}

	if name == existing.Name && mergedType == existing.Type && mergedDesc == existing.Description {
		return existing, nil
	}
	if err := s.entities.UpdateResolved(ctx, existing.ID, name, mergedType, mergedDesc, now); err != nil {
		return nil, err
	}
	if mergedDesc != existing.Description {
		s.embedDescription(existing.ID, mergedDesc)
	}

	merged := *existing
	merged.Name = name
	merged.Type = mergedType
	merged.Description = mergedDesc
	merged.UpdatedAt = now
	return &merged, nil
}

// embedDescription computes the description embedding off the request path.
func (s *EntityService) embedDescription(id uuid.UUID, description string) {
	if description == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		vec, err := s.embedder.Embed(ctx, description)
		if err != nil {
			s.logger.Warn("description embedding failed", zap.String("entity_id", id.String()), zap.Error(err))
			return
		}
		if err := s.entities.SetDescriptionEmbedding(ctx, id, vec); err != nil {
			s.logger.Warn("description embedding write failed", zap.String("entity_id", id.String()), zap.Error(err))
		}
	}()
}

// maybeSummarize regenerates the entity's profile once it accumulates enough
// live mentions. Fail-open: the summary is advisory.
func (s *EntityService) maybeSummarize(ctx context.Context, e *domain.Entity) {
	count, err := s.entities.LiveMentionCount(ctx, e.ID)
	if err != nil || count < summaryMentionThreshold {
		return
	}

	memories, err := s.entities.ConnectedMemories(ctx, e.ID, summaryMemoryLimit)
	if err != nil {
		s.logger.Warn("summary memory fetch failed", zap.String("entity_id", e.ID.String()), zap.Error(err))
		return
	}
	relations, err := s.entities.OutgoingRelations(ctx, e.ID, summaryRelationLimit)
	if err != nil {
		s.logger.Warn("summary relation fetch failed", zap.String("entity_id", e.ID.String()), zap.Error(err))
		return
	}

	memTexts := make([]string, 0, len(memories))
	for _, m := range memories {
		memTexts = append(memTexts, m.Content)
	}
	relTexts := make([]string, 0, len(relations))
	for _, r := range relations {
		relTexts = append(relTexts, fmt.Sprintf("%s %s %s: %s", e.Name, r.Type, r.TargetName, r.Description))
	}

	summary, err := s.llm.SummarizeEntity(ctx, e.Name, e.Type, memTexts, relTexts)
	if err != nil {
		s.logger.Warn("entity summary failed", zap.String("entity_id", e.ID.String()), zap.Error(err))
		return
	}
	if err := s.entities.SetSummary(ctx, e.ID, summary, time.Now().UTC()); err != nil {
		s.logger.Warn("entity summary write failed", zap.String("entity_id", e.ID.String()), zap.Error(err))
	}
}

func (s *EntityService) categorize(ctx context.Context, userID string, m *domain.Memory) {
	categories, err := s.llm.Categorize(ctx, m.Content)
	if err != nil {
		s.logger.Warn("categorization failed", zap.String("memory_id", m.ID.String()), zap.Error(err))
		return
	}
	if len(categories) == 0 {
		return
	}
	if err := s.memories.AddCategories(ctx, userID, m.ID, categories); err != nil {
		s.logger.Warn("category write failed", zap.String("memory_id", m.ID.String()), zap.Error(err))
	}
}

func (s *EntityService) List(ctx context.Context, userID string, page, size int) (*domain.EntityPage, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	return s.entities.List(ctx, userID, page, size)
}

func (s *EntityService) Get(ctx context.Context, userID string, id uuid.UUID) (*domain.Entity, int, error) {
	return s.entities.GetByID(ctx, userID, id)
}

func (s *EntityService) Memories(ctx context.Context, userID string, id uuid.UUID, page, size int) (*domain.MemoryPage, error) {
	return s.entities.MemoriesFor(ctx, userID, id, page, size)
}

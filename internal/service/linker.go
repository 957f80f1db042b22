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

// LinkEntities records one entity-entity fact. A repeated assertion either
// confirms the live edge, refines it or contradicts it; the old edge is never
// mutated in place, only invalidated and replaced.
func (s *EntityService) LinkEntities(ctx context.Context, srcID, tgtID uuid.UUID, relType, description string) error {
	relType = domain.NormalizeRelationType(relType)
	if relType == "" {
		relType = "RELATED_TO"
	}
	description = strings.TrimSpace(description)
	now := time.Now().UTC()

	existing, err := s.entities.GetLiveRelation(ctx, srcID, tgtID, relType)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.createRelation(ctx, srcID, tgtID, relType, description, 1, now)
	case err != nil:
		return err
	}

	switch {
	case strings.EqualFold(strings.TrimSpace(existing.Description), description):
		// Same fact restated: one cheap write, no LLM.
		return s.entities.IncrementRelation(ctx, existing.ID)

	case existing.Description == "" && description != "":
		return s.replaceRelation(ctx, existing, description, now)

	default:
		verdict, err := s.llm.ClassifyRelation(ctx, relType, existing.Description, description)
		if err != nil {
			s.logger.Warn("relation classification failed, treating as update", zap.Error(err))
			verdict = domain.RelationUpdate
		}
		if verdict == domain.RelationSame {
			return s.entities.IncrementRelation(ctx, existing.ID)
		}
		return s.replaceRelation(ctx, existing, description, now)
	}
}

func (s *EntityService) replaceRelation(ctx context.Context, existing *domain.RelatedEdge, description string, now time.Time) error {
	if err := s.entities.InvalidateRelation(ctx, existing.ID, now); err != nil {
		return err
	}
	return s.createRelation(ctx, existing.SourceID, existing.TargetID, existing.Type, description, existing.ConfirmedCount+1, now)
}

func (s *EntityService) createRelation(ctx context.Context, srcID, tgtID uuid.UUID, relType, description string, confirmed int, now time.Time) error {
	edge := &domain.RelatedEdge{
		ID:             uuid.New(),
		SourceID:       srcID,
		TargetID:       tgtID,
		Type:           relType,
		Description:    description,
		ValidAt:        now,
		ConfirmedCount: confirmed,
	}
	if err := s.entities.CreateRelation(ctx, edge); err != nil {
		return err
	}
	for _, id := range []uuid.UUID{srcID, tgtID} {
		if _, err := s.entities.RecomputeRank(ctx, id); err != nil {
			s.logger.Warn("rank recompute failed", zap.String("entity_id", id.String()), zap.Error(err))
		}
	}
	return nil
}

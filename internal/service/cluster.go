package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/domain"
)

const (
	// clusterMinMembers drops trivial communities.
	clusterMinMembers = 2
	// clusterSnippetLimit caps the memory snippets fed to the naming LLM.
	clusterSnippetLimit = 10
	clusterMemoryFetch  = 50
	fallbackClusterName = "Unnamed cluster"
)

// ClusterService groups a user's entities into communities and names them.
type ClusterService struct {
	communities domain.CommunityStore
	entities    domain.EntityStore
	llm         domain.LLMClient
	logger      *zap.Logger
}

func NewClusterService(cs domain.CommunityStore, es domain.EntityStore, lc domain.LLMClient, logger *zap.Logger) *ClusterService {
	return &ClusterService{
		communities: cs,
		entities:    es,
		llm:         lc,
		logger:      logger,
	}
}

// Rebuild re-detects communities over the user's live entity relationships
// and replaces the stored clusters. Communities with fewer than two members
// are dropped. Returns domain.ErrCapabilityUnavailable when the store lacks
// the detection procedure.
func (s *ClusterService) Rebuild(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDMissing
	}

	detected, err := s.communities.DetectCommunities(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.communities.DeleteAll(ctx, userID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for cid, members := range detected {
		if len(members) < clusterMinMembers {
			continue
		}

		name, summary := s.describe(ctx, members)
		c := &domain.Community{
			ID:          uuid.New(),
			Name:        name,
			Summary:     summary,
			MemberCount: len(members),
			CreatedAt:   now,
		}
		if err := s.communities.Create(ctx, userID, c, members); err != nil {
			s.logger.Error("community create failed",
				zap.Int64("community", cid), zap.Error(err))
			return err
		}
	}
	return nil
}

// describe asks the LLM for a name and summary from member memory snippets,
// with a fixed fallback when the LLM is unavailable.
func (s *ClusterService) describe(ctx context.Context, members []uuid.UUID) (string, string) {
	var snippets []string
	for _, entityID := range members {
		if len(snippets) >= clusterSnippetLimit {
			break
		}
		memories, err := s.entities.ConnectedMemories(ctx, entityID, 2)
		if err != nil {
			s.logger.Warn("cluster snippet fetch failed",
				zap.String("entity_id", entityID.String()), zap.Error(err))
			continue
		}
		for _, m := range memories {
			if len(snippets) >= clusterSnippetLimit {
				break
			}
			snippets = append(snippets, m.Content)
		}
	}
	if len(snippets) == 0 {
		return fallbackClusterName, ""
	}

	name, summary, err := s.llm.SummarizeCluster(ctx, snippets)
	if err != nil || name == "" {
		if err != nil {
			s.logger.Warn("cluster naming failed, using fallback", zap.Error(err))
		}
		return fallbackClusterName, ""
	}
	return name, summary
}

func (s *ClusterService) List(ctx context.Context, userID string) ([]domain.Community, error) {
	if userID == "" {
		return nil, ErrUserIDMissing
	}
	return s.communities.List(ctx, userID)
}

func (s *ClusterService) Memories(ctx context.Context, userID string, id uuid.UUID) ([]domain.Memory, error) {
	return s.communities.Memories(ctx, userID, id, clusterMemoryFetch)
}

package service

import (
	"context"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/domain"
)

const (
	graphSeedLimit     = 5
	graphNeighborLimit = 10
)

var termPattern = regexp.MustCompile(`[A-Za-z0-9]{3,}`)

// graphArm retrieves memories by walking the entity graph: extract query
// terms, seed matching entities, expand one hop by rank, then collect the
// memories mentioning the seed+neighbor set.
func (s *SearchService) graphArm(ctx context.Context, userID, query string, limit int) ([]domain.RankedHit, error) {
	terms := s.searchTerms(ctx, query)
	if len(terms) == 0 {
		return nil, nil
	}

	seeds, err := s.entities.SeedSearch(ctx, userID, terms, graphSeedLimit)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	seedIDs := make([]uuid.UUID, len(seeds))
	for i, e := range seeds {
		seedIDs[i] = e.ID
	}

	ids := append([]uuid.UUID{}, seedIDs...)
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}

	neighbors, err := s.entities.Neighbors(ctx, userID, seedIDs, graphNeighborLimit)
	if err != nil {
		s.logger.Warn("graph neighbor expansion failed", zap.Error(err))
	} else {
		for _, e := range neighbors {
			if !seen[e.ID] {
				seen[e.ID] = true
				ids = append(ids, e.ID)
			}
		}
	}

	return s.entities.MemoriesMentionedBy(ctx, userID, ids, limit)
}

// searchTerms asks the LLM for the query's key terms and falls back to a
// token filter keeping words of at least three characters.
func (s *SearchService) searchTerms(ctx context.Context, query string) []string {
	if s.llm != nil {
		terms, err := s.llm.ExtractSearchTerms(ctx, query)
		if err == nil && len(terms) > 0 {
			return terms
		}
		if err != nil {
			s.logger.Warn("search term extraction failed, using token fallback", zap.Error(err))
		}
	}
	return termPattern.FindAllString(query, -1)
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/domain"
)

const (
	defaultTopK = 10
	// armOversample widens each retrieval arm so fusion has candidates beyond
	// the final cut.
	armOversample = 2
)

// SearchService is the read path: hybrid retrieval over a user's live
// memories with RRF fusion, optional MMR diversification and an optional
// graph-traversal arm.
type SearchService struct {
	memories domain.MemoryStore
	entities domain.EntityStore
	access   domain.AccessStore
	embedder domain.EmbeddingClient
	llm      domain.LLMClient
	logger   *zap.Logger
}

func NewSearchService(ms domain.MemoryStore, es domain.EntityStore, as domain.AccessStore, ec domain.EmbeddingClient, lc domain.LLMClient, logger *zap.Logger) *SearchService {
	return &SearchService{
		memories: ms,
		entities: es,
		access:   as,
		embedder: ec,
		llm:      lc,
		logger:   logger,
	}
}

// Search runs the requested arms, fuses their rankings and hydrates the
// survivors. A single failing arm is tolerated; the other arm's ranking is
// used alone.
func (s *SearchService) Search(ctx context.Context, req domain.SearchRequest) ([]*domain.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrQueryEmpty
	}
	if req.UserID == "" {
		return nil, ErrUserIDMissing
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.SearchHybrid
	}
	armLimit := topK * armOversample

	var textHits, vectorHits, graphHits []domain.RankedHit
	var textErr, vectorErr error

	if mode != domain.SearchVector {
		textHits, textErr = s.memories.TextSearch(ctx, req.UserID, req.Query, armLimit)
		if textErr != nil {
			s.logger.Warn("text arm failed", zap.Error(textErr))
		}
	}
	if mode != domain.SearchText {
		var embedding []float32
		embedding, vectorErr = s.embedder.Embed(ctx, req.Query)
		if vectorErr == nil {
			vectorHits, vectorErr = s.memories.VectorSearch(ctx, req.UserID, embedding, armLimit)
		}
		if vectorErr != nil {
			s.logger.Warn("vector arm failed", zap.Error(vectorErr))
		}
	}
	if textErr != nil && vectorErr != nil {
		return nil, textErr
	}
	if mode == domain.SearchText && textErr != nil {
		return nil, textErr
	}
	if mode == domain.SearchVector && vectorErr != nil {
		return nil, vectorErr
	}

	if req.UseGraph {
		var err error
		graphHits, err = s.graphArm(ctx, req.UserID, req.Query, armLimit)
		if err != nil {
			s.logger.Warn("graph arm failed", zap.Error(err))
			graphHits = nil
		}
	}

	fused := fuseRRF(textHits, vectorHits, graphHits)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	if len(fused) == 0 {
		return []*domain.SearchResult{}, nil
	}

	ids := make([]uuid.UUID, len(fused))
	for i, f := range fused {
		ids[i] = f.ID
	}
	hydrated, err := s.memories.Hydrate(ctx, req.UserID, ids, req.Rerank)
	if err != nil {
		return nil, err
	}

	results := make([]*domain.SearchResult, 0, len(fused))
	for _, f := range fused {
		r, ok := hydrated[f.ID]
		if !ok {
			continue
		}
		r.RRFScore = f.Score
		r.TextRank = f.Ranks[0]
		r.VectorRank = f.Ranks[1]
		r.GraphRank = f.Ranks[2]
		results = append(results, r)
	}

	if req.Rerank {
		lambda := req.MMRLambda
		if lambda == 0 {
			lambda = defaultMMRLambda
		}
		results = mmrSelect(results, lambda, topK)
	}

	s.recordAccess(req, results)
	return results, nil
}

// recordAccess logs the hits asynchronously; retrieval never waits on the
// access log.
func (s *SearchService) recordAccess(req domain.SearchRequest, results []*domain.SearchResult) {
	if s.access == nil || len(results) == 0 {
		return
	}
	ids := make([]uuid.UUID, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		now := time.Now().UTC()
		for _, id := range ids {
			if err := s.access.Record(ctx, req.UserID, id, req.AppName, req.Query, now); err != nil {
				s.logger.Warn("access log record failed", zap.String("memory_id", id.String()), zap.Error(err))
				return
			}
		}
	}()
}

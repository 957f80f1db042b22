package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/domain"
)

func TestFuseRRF_DoubleListedWins(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	text := []domain.RankedHit{{ID: a, Rank: 1}, {ID: b, Rank: 2}}
	vector := []domain.RankedHit{{ID: a, Rank: 2}, {ID: c, Rank: 1}}

	fused := fuseRRF(text, vector)

	require.Len(t, fused, 3)
	// a scores 1/61 + 1/62; b and c score a single 1/62 and 1/61.
	assert.Equal(t, a, fused[0].ID)
	assert.InDelta(t, 1.0/61+1.0/62, fused[0].Score, 1e-12)
	assert.Equal(t, c, fused[1].ID)
	assert.Equal(t, b, fused[2].ID)
}

func TestFuseRRF_TiesKeepFirstSeenOrder(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	// a appears at rank 1 in both lists; b and c tie at 1/62 each.
	text := []domain.RankedHit{{ID: a, Rank: 1}, {ID: b, Rank: 2}}
	vector := []domain.RankedHit{{ID: a, Rank: 1}, {ID: c, Rank: 2}}

	fused := fuseRRF(text, vector)

	require.Len(t, fused, 3)
	assert.Equal(t, a, fused[0].ID)
	assert.Equal(t, b, fused[1].ID)
	assert.Equal(t, c, fused[2].ID)
}

func TestFuseRRF_RecordsPerListRanks(t *testing.T) {
	a := uuid.New()
	text := []domain.RankedHit{{ID: a, Rank: 3}}
	var vector, graph []domain.RankedHit

	fused := fuseRRF(text, vector, graph)

	require.Len(t, fused, 1)
	assert.Equal(t, []int{3, 0, 0}, fused[0].Ranks)
}

func TestFuseRRF_Empty(t *testing.T) {
	assert.Empty(t, fuseRRF(nil, nil, nil))
}

func TestMMRSelect_RelevanceOrderWhenLambdaOne(t *testing.T) {
	results := []*domain.SearchResult{
		{ID: uuid.New(), RRFScore: 0.3},
		{ID: uuid.New(), RRFScore: 0.2},
		{ID: uuid.New(), RRFScore: 0.1},
	}

	out := mmrSelect(results, 1.0, 3)

	require.Len(t, out, 3)
	assert.Equal(t, results[0].ID, out[0].ID)
	assert.Equal(t, results[1].ID, out[1].ID)
	assert.Equal(t, results[2].ID, out[2].ID)
}

func TestMMRSelect_DiversityPenalizesNearDuplicates(t *testing.T) {
	// First two results are identical vectors; the third is orthogonal with a
	// slightly lower fused score. With diversity on, it beats the duplicate.
	results := []*domain.SearchResult{
		{ID: uuid.New(), RRFScore: 0.5, Embedding: []float32{1, 0}},
		{ID: uuid.New(), RRFScore: 0.45, Embedding: []float32{1, 0}},
		{ID: uuid.New(), RRFScore: 0.4, Embedding: []float32{0, 1}},
	}

	out := mmrSelect(results, 0.5, 2)

	require.Len(t, out, 2)
	assert.Equal(t, results[0].ID, out[0].ID)
	assert.Equal(t, results[2].ID, out[1].ID)
}

func TestMMRSelect_RankProxyWithoutEmbeddings(t *testing.T) {
	// No embeddings: adjacency in the fused order stands in for similarity,
	// so the pick after the top is the most distant candidate.
	results := []*domain.SearchResult{
		{ID: uuid.New(), RRFScore: 0.50},
		{ID: uuid.New(), RRFScore: 0.49},
		{ID: uuid.New(), RRFScore: 0.48},
	}

	out := mmrSelect(results, 0.5, 3)

	require.Len(t, out, 3)
	assert.Equal(t, results[0].ID, out[0].ID)
	assert.Equal(t, results[2].ID, out[1].ID)
	assert.Equal(t, results[1].ID, out[2].ID)
}

func TestMMRSelect_OutOfRangeLambdaUsesDefault(t *testing.T) {
	results := []*domain.SearchResult{
		{ID: uuid.New(), RRFScore: 0.3},
		{ID: uuid.New(), RRFScore: 0.2},
	}

	out := mmrSelect(results, 1.5, 2)
	require.Len(t, out, 2)
	assert.Equal(t, results[0].ID, out[0].ID)
}

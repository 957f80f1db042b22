package service

import (
	"github.com/recallhq/recall/internal/domain"
)

// defaultMMRLambda trades relevance against diversity; 0.7 leans toward
// relevance.
const defaultMMRLambda = 0.7

// mmrSelect reranks results with Maximal Marginal Relevance: greedily pick
// the candidate maximizing lambda*relevance - (1-lambda)*maxSimToSelected.
// Relevance is the fused score. Similarity uses embeddings when present and
// falls back to a rank-position proxy, so the selection is deterministic
// either way.
func mmrSelect(results []*domain.SearchResult, lambda float64, k int) []*domain.SearchResult {
	if lambda < 0 || lambda > 1 {
		lambda = defaultMMRLambda
	}
	if k <= 0 || k > len(results) {
		k = len(results)
	}
	if len(results) <= 1 {
		return results
	}

	remaining := make([]int, len(results))
	for i := range results {
		remaining[i] = i
	}
	selected := make([]*domain.SearchResult, 0, k)
	selectedIdx := make([]int, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		bestPos, bestScore := -1, 0.0
		for pos, ci := range remaining {
			score := lambda * results[ci].RRFScore
			maxSim := 0.0
			for _, si := range selectedIdx {
				if sim := similarity(results, ci, si); sim > maxSim {
					maxSim = sim
				}
			}
			score -= (1 - lambda) * maxSim
			if bestPos == -1 || score > bestScore {
				bestPos, bestScore = pos, score
			}
		}
		ci := remaining[bestPos]
		selected = append(selected, results[ci])
		selectedIdx = append(selectedIdx, ci)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

func similarity(results []*domain.SearchResult, i, j int) float64 {
	a, b := results[i].Embedding, results[j].Embedding
	if len(a) > 0 && len(a) == len(b) {
		return cosine(a, b)
	}
	// Rank-position proxy: neighbors in the fused ranking are treated as
	// similar, distant positions as diverse.
	d := i - j
	if d < 0 {
		d = -d
	}
	return 1.0 - float64(d)/float64(len(results))
}

// cosine assumes unit-norm vectors, so the dot product is the similarity.
func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

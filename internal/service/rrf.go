package service

import (
	"sort"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/domain"
)

// rrfK dampens the weight of rank differences; 60 is the value from the
// original RRF paper and works well without tuning.
const rrfK = 60

// fusedHit is one document after rank fusion. Ranks holds the document's
// 1-based rank per input list, zero where absent.
type fusedHit struct {
	ID    uuid.UUID
	Score float64
	Ranks []int
}

// fuseRRF merges ranked lists with Reciprocal Rank Fusion:
// score(d) = sum over lists of 1/(K + rank(d)). Documents absent from a list
// contribute nothing for it. Ties keep first-seen order, which makes the
// fusion deterministic for identical inputs.
func fuseRRF(lists ...[]domain.RankedHit) []fusedHit {
	index := make(map[uuid.UUID]int)
	var fused []fusedHit

	for li, list := range lists {
		for _, hit := range list {
			i, ok := index[hit.ID]
			if !ok {
				i = len(fused)
				index[hit.ID] = i
				fused = append(fused, fusedHit{ID: hit.ID, Ranks: make([]int, len(lists))})
			}
			fused[i].Ranks[li] = hit.Rank
			fused[i].Score += 1.0 / float64(rrfK+hit.Rank)
		}
	}

	sort.SliceStable(fused, func(a, b int) bool {
		return fused[a].Score > fused[b].Score
	})
	return fused
}

package detector

import (
	"sort"

	"github.com/MeKo-Tech/platescan/internal/utils"
)

// candidate is a scored box in model input coordinates.
type candidate struct {
	Box   utils.Box
	Score float64
	Class int
}

// NonMaxSuppression performs class-agnostic greedy NMS. The survivors are
// returned in descending score order.
func NonMaxSuppression(cands []candidate, iouThreshold float64) []candidate {
	if len(cands) <= 1 {
		return cands
	}

	indices := sortByScore(cands)
	suppressed := make([]bool, len(cands))
	kept := make([]candidate, 0, len(cands))

	for _, a := range indices {
		if suppressed[a] {
			continue
		}
		kept = append(kept, cands[a])

		for _, b := range indices {
			if suppressed[b] || a == b {
				continue
			}
			if cands[a].Box.IoU(cands[b].Box) > iouThreshold {
				suppressed[b] = true
			}
		}
	}

	return kept
}

// sortByScore returns candidate indices ordered by descending score; ties keep input order.
func sortByScore(cands []candidate) []int {
	indices := make([]int, len(cands))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return cands[indices[i]].Score > cands[indices[j]].Score
	})
	return indices
}

package postprocess

import (
	"cmp"
	"slices"
)

// SelectTopK returns the indices of the k highest raw scores, highest first.
// Equal scores keep their original order. k is clamped to len(scores).
func SelectTopK(scores []int16, k int) []int {
	k = max(0, min(k, len(scores)))

	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	slices.SortStableFunc(indices, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})
	return indices[:k]
}

// Package postprocess - Decoding, filtering and merging of raw detection
// outputs.
//
// Detections travel through the stages as parallel slices (indices, scores,
// boxes and optionally classes) sharing one logical size. Every stage shrinks
// that size in place and returns the new value; slots past the returned size
// hold stale data. Survivor order is not preserved.
package postprocess

import (
	fp "github.com/nvr-ai/go-detect/fixedpoint"
	"github.com/nvr-ai/go-detect/geometry"
)

// Compactor is a set of parallel slices whose slots can be overwritten as a
// whole.
type Compactor interface {
	// Move copies the record at src over the record at dst.
	Move(dst, src int)
}

// SwapRemove drops slot i from the first size slots by moving the last live
// slot onto it. It returns the new size.
func SwapRemove(c Compactor, i, size int) int {
	last := size - 1
	if i != last {
		c.Move(i, last)
	}
	return last
}

// Compact removes every slot for which remove reports true and returns the
// new size.
//
// The scan runs left to right. A removed slot is refilled with the last live
// slot, the size shrinks by one and the same position is tested again, so the
// moved-in record is never skipped.
//
// Arguments:
//   - c: The parallel slices to compact.
//   - size: The current logical size.
//   - remove: Reports whether the record currently at slot i must go.
//
// Returns:
//   - int: The new logical size.
//
// @example
// size := postprocess.Compact(slots, len(scores), func(i int) bool { return scores[i].N == 0 })
func Compact(c Compactor, size int, remove func(i int) bool) int {
	i := 0
	for i < size {
		if remove(i) {
			size = SwapRemove(c, i, size)
			continue
		}
		i++
	}
	return size
}

// scoredSlots is the index and score pair shared by every stage.
type scoredSlots struct {
	indices []int
	scores  []fp.Scalar
}

func (s scoredSlots) Move(dst, src int) {
	s.indices[dst] = s.indices[src]
	s.scores[dst] = s.scores[src]
}

// detectionSlots extends scoredSlots with boxes and, when classes is not nil,
// class ids.
type detectionSlots struct {
	scoredSlots
	boxes   []geometry.Box
	classes []int
}

func (s detectionSlots) Move(dst, src int) {
	s.scoredSlots.Move(dst, src)
	s.boxes[dst] = s.boxes[src]
	if s.classes != nil {
		s.classes[dst] = s.classes[src]
	}
}

package postprocess

import (
	fp "github.com/nvr-ai/go-detect/fixedpoint"
	"github.com/nvr-ai/go-detect/geometry"
)

// FilterOutBelowThreshold removes every entry whose score is lower than or
// equal to threshold.
//
// Arguments:
//   - threshold: Scores at or below this value are dropped.
//   - size: The logical size of indices and scores.
//   - indices: Indices into the unfiltered outputs.
//   - scores: The score of each entry.
//
// Returns:
//   - int: The new logical size. Survivors occupy the first slots in no
//     particular order.
//
// @example
// size := postprocess.FilterOutBelowThreshold(fp.New(1, 2, 10), len(scores), indices, scores)
func FilterOutBelowThreshold(threshold fp.Scalar, size int, indices []int, scores []fp.Scalar) int {
	slots := scoredSlots{indices: indices, scores: scores}
	return Compact(slots, size, func(i int) bool {
		return fp.Le(scores[i], threshold)
	})
}

// FilterOutOverlapping merges duplicate detections regardless of their class.
// The classes of the detections, if any, are not touched.
func FilterOutOverlapping(
	iouThreshold fp.Scalar,
	size int,
	indices []int,
	scores []fp.Scalar,
	boxes []geometry.Box,
) int {
	slots := detectionSlots{
		scoredSlots: scoredSlots{indices: indices, scores: scores},
		boxes:       boxes,
	}
	return mergeOverlapping(iouThreshold, size, slots, nil)
}

// FilterOutSameClassOverlapping merges duplicate detections sharing a class.
// Class ids move along with the rest of each record.
func FilterOutSameClassOverlapping(
	iouThreshold fp.Scalar,
	size int,
	indices []int,
	scores []fp.Scalar,
	boxes []geometry.Box,
	classes []int,
) int {
	slots := detectionSlots{
		scoredSlots: scoredSlots{indices: indices, scores: scores},
		boxes:       boxes,
		classes:     classes,
	}
	return mergeOverlapping(iouThreshold, size, slots, classes)
}

// mergeOverlapping is a greedy, first-found merge. No sorting happens first.
//
// For each outer slot the box is read once. Every later slot whose IoU with
// that box reaches the threshold is a duplicate: the outer slot receives the
// record with the strictly higher score (ties keep the outer record) and the
// inner slot is refilled with the last live record, which is examined next.
// Class-aware merging only compares records of the same class.
func mergeOverlapping(iouThreshold fp.Scalar, size int, slots detectionSlots, classes []int) int {
	classAware := classes != nil

	for index1 := 0; index1 < size; index1++ {
		box1 := slots.boxes[index1]

		index2 := index1 + 1
		for index2 < size {
			if classAware && classes[index1] != classes[index2] {
				index2++
				continue
			}

			if fp.Lt(geometry.IoU(box1, slots.boxes[index2]), iouThreshold) {
				index2++
				continue
			}

			if fp.Gt(slots.scores[index2], slots.scores[index1]) {
				slots.Move(index1, index2)
			}
			size = SwapRemove(slots, index2, size)
		}
	}
	return size
}

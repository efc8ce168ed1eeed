package postprocess

import (
	"fmt"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
	"github.com/nvr-ai/go-detect/geometry"
)

// Result represents a single detection result.
type Result struct {
	// Index of the detection in the raw outputs of its layer.
	Index int
	// Layer is the resolution layer the detection comes from.
	Layer int
	// The bounding box of the result.
	Box geometry.Box
	// The confidence score of the result.
	Score fp.Scalar
	// The predicted class index of the result.
	Class int
	// ClassScore is the share of the winning class among all class scores.
	ClassScore fp.Scalar
	// Rotation is the orientation of the object, or nil when the network
	// does not output one or it could not be decoded.
	Rotation *geometry.Rotation
}

// String formats the result for logs.
func (r Result) String() string {
	rect := r.Box.ToRect()
	return fmt.Sprintf("class %d (score %.3f) layer %d index %d: (%d, %d), (%d, %d)",
		r.Class, r.Score.Float32(), r.Layer, r.Index, rect.X1, rect.Y1, rect.X2, rect.Y2)
}

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	// IoUThreshold is the overlap at which two boxes are duplicates.
	IoUThreshold fp.Scalar
	// ClassAware restricts merging to detections of the same class.
	ClassAware bool
}

// ApplyNMS merges overlapping detections.
//
// Arguments:
//   - detections: The detections, in any order. The slice is not modified.
//   - config: NMS configuration.
//
// Returns:
//   - The surviving detections, or nil if no detections are provided.
func ApplyNMS(detections []Result, config NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}

	indices := make([]int, n)
	scores := make([]fp.Scalar, n)
	boxes := make([]geometry.Box, n)
	var classes []int
	if config.ClassAware {
		classes = make([]int, n)
	}
	for i, d := range detections {
		indices[i] = i
		scores[i] = d.Score
		boxes[i] = d.Box
		if classes != nil {
			classes[i] = d.Class
		}
	}

	var size int
	if config.ClassAware {
		size = FilterOutSameClassOverlapping(config.IoUThreshold, n, indices, scores, boxes, classes)
	} else {
		size = FilterOutOverlapping(config.IoUThreshold, n, indices, scores, boxes)
	}

	filtered := make([]Result, size)
	for i := range filtered {
		filtered[i] = detections[indices[i]]
	}
	return filtered
}

// Package detector - Decodes the raw outputs of an anchor free, multi
// resolution object detection network into detections.
package detector

import (
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/geometry"
	"github.com/nvr-ai/go-detect/postprocess"
)

// ErrInvalidConfig is returned for unusable pipeline configurations.
var ErrInvalidConfig = errors.New("detector: invalid configuration")

// Config represents the configuration of the decoding pipeline.
type Config struct {
	// MaxBoxes caps the detections kept over all layers.
	MaxBoxes int `json:"max_boxes" yaml:"max_boxes"`

	// ConfidenceThreshold filters detections at or below this confidence level.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// IoUThreshold controls the final, class aware merge over all layers.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`

	// LayerIoUThreshold controls the class agnostic merge run on each layer.
	// Values of 1 or more skip it.
	LayerIoUThreshold float32 `json:"layer_iou_threshold" yaml:"layer_iou_threshold"`

	// FracBits is the precision of the raw network outputs.
	FracBits uint8 `json:"frac_bits" yaml:"frac_bits"`

	// InputShape defines the network input dimensions (width, height).
	InputShape image.Point `json:"input_shape" yaml:"input_shape"`

	// Grids lists the output grid of each resolution layer, coarsest first.
	Grids []postprocess.GridDim `json:"grids" yaml:"grids"`

	// Classes lists the labels of the network, in output order.
	Classes []string `json:"classes" yaml:"classes"`

	// Rotation reports whether every layer also outputs a rotation, as six
	// raw samples per cell.
	Rotation bool `json:"rotation" yaml:"rotation"`

	// RotationRange is the magnitude of the raw rotation samples. Samples in
	// [-RotationRange, RotationRange] are mapped onto [-1, 1].
	RotationRange float32 `json:"rotation_range" yaml:"rotation_range"`
}

// DefaultConfig returns the configuration of the stock 384x288 network.
//
// Returns:
//   - Config: Three layers of 12x9, 24x18 and 48x36 cells, 10 fractional
//     bits and the eight default classes.
//
// @example
// cfg := detector.DefaultConfig()
// cfg.ConfidenceThreshold = 0.6
// pipeline, err := detector.NewPipeline(cfg)
func DefaultConfig() Config {
	return Config{
		MaxBoxes:            30,
		ConfidenceThreshold: 0.5,
		IoUThreshold:        0.45,
		LayerIoUThreshold:   1,
		FracBits:            10,
		InputShape:          image.Point{X: 384, Y: 288},
		Grids: []postprocess.GridDim{
			{Width: 12, Height: 9},
			{Width: 24, Height: 18},
			{Width: 48, Height: 36},
		},
		Classes:       DefaultClasses(),
		RotationRange: 4,
	}
}

// Validate checks that the configuration can drive a pipeline.
func (c Config) Validate() error {
	if c.MaxBoxes <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "max_boxes must be positive, got %d", c.MaxBoxes)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "confidence_threshold %v outside [0, 1)", c.ConfidenceThreshold)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return errors.Wrapf(ErrInvalidConfig, "iou_threshold %v outside (0, 1]", c.IoUThreshold)
	}
	if c.LayerIoUThreshold <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "layer_iou_threshold must be positive, got %v", c.LayerIoUThreshold)
	}
	if c.InputShape.X < 32 || c.InputShape.Y <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "invalid input_shape %v", c.InputShape)
	}
	// Distances are square roots, which need an even precision, and IoU
	// sums the areas of two boxes.
	limit := geometry.MaxFracBits(int64(c.InputShape.X), int64(c.InputShape.Y), 2)
	if c.FracBits == 0 || c.FracBits > limit || c.FracBits%2 != 0 {
		return errors.Wrapf(ErrInvalidConfig, "frac_bits must be even and in [2, %d] for input_shape %v, got %d",
			limit, c.InputShape, c.FracBits)
	}
	if len(c.Grids) == 0 {
		return errors.Wrap(ErrInvalidConfig, "at least one grid is required")
	}
	for i, g := range c.Grids {
		if g.Width <= 0 || g.Height <= 0 || g.Width > c.InputShape.X || g.Height > c.InputShape.Y {
			return errors.Wrapf(ErrInvalidConfig, "invalid grid %d: %dx%d", i, g.Width, g.Height)
		}
	}
	if len(c.Classes) == 0 {
		return errors.Wrap(ErrInvalidConfig, "at least one class is required")
	}
	if c.Rotation && c.RotationRange <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "rotation_range must be positive, got %v", c.RotationRange)
	}
	return nil
}

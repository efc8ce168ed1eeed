package tracker

import (
	fp "github.com/nvr-ai/go-detect/fixedpoint"
)

// Settings is the file representation of a tracker configuration.
type Settings struct {
	// IoU at which a detection is the previous subject.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// Relative area difference under which two boxes have the same size.
	SimilarityRatio float32 `json:"similarity_ratio" yaml:"similarity_ratio"`
	// Incumbent bias. Values above 1 make switching harder.
	PreferenceCoef float32 `json:"preference_coef" yaml:"preference_coef"`
	// Source image size, in the coordinates of the boxes.
	ImageWidth  int `json:"image_width" yaml:"image_width"`
	ImageHeight int `json:"image_height" yaml:"image_height"`
	// Maximum number of candidates per frame.
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates"`
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		IoUThreshold:    0.3,
		SimilarityRatio: 0.2,
		PreferenceCoef:  1.2,
		ImageWidth:      384,
		ImageHeight:     288,
		MaxCandidates:   10,
	}
}

// Config converts the settings to fixed point with fracBits fractional bits.
func (s Settings) Config(fracBits uint8) Config {
	return Config{
		IoUThreshold:    fp.FromFloat32(s.IoUThreshold, fracBits),
		SimilarityRatio: fp.FromFloat32(s.SimilarityRatio, fracBits),
		PreferenceCoef:  fp.FromFloat32(s.PreferenceCoef, fracBits),
		ImageWidth:      int32(s.ImageWidth),
		ImageHeight:     int32(s.ImageHeight),
		MaxCandidates:   s.MaxCandidates,
	}
}

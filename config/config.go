// Package config - File configuration of the detection and tracking stages.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/tracker"
)

// MaxFileSize is the largest configuration file accepted by Load.
const MaxFileSize = 1 * 1024 * 1024

// ErrUnsupportedFormat is returned for files that are neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Config is the root configuration of a stream.
type Config struct {
	Detector detector.Config  `json:"detector" yaml:"detector"`
	Tracker  tracker.Settings `json:"tracker" yaml:"tracker"`

	// RelevantClasses lists the labels the tracker follows. Empty means every
	// class.
	RelevantClasses []string `json:"relevant_classes" yaml:"relevant_classes"`

	// ProfilerSamples is the timing window of each stage.
	ProfilerSamples int `json:"profiler_samples" yaml:"profiler_samples"`
}

// Default returns the configuration used when no file is given: the stock
// network, the default tracker and people only.
func Default() Config {
	det := detector.DefaultConfig()
	trk := tracker.DefaultSettings()
	trk.ImageWidth = det.InputShape.X
	trk.ImageHeight = det.InputShape.Y

	return Config{
		Detector:        det,
		Tracker:         trk,
		RelevantClasses: []string{"person"},
		ProfilerSamples: 600,
	}
}

// Load reads a configuration from a .json, .yaml or .yml file.
// Fields omitted from the file retain their default values, so partial
// configs are safe.
//
// Arguments:
//   - path: The configuration file.
//
// Returns:
//   - Config: The validated configuration.
//   - error: ErrUnsupportedFormat for other extensions, or a read, parse or
//     validation error.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))

	var unmarshal func([]byte, any) error
	switch ext {
	case ".json":
		unmarshal = json.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		return Config{}, errors.Wrapf(ErrUnsupportedFormat, "extension %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to stat config file")
	}
	if info.Size() > MaxFileSize {
		return Config{}, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config file")
	}

	cfg := Default()
	if err := unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse %s", cleanPath)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks every stage and the class names.
func (c Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if err := c.TrackerConfig().Validate(); err != nil {
		return err
	}
	if _, err := c.RelevantClassIndices(); err != nil {
		return err
	}
	if c.ProfilerSamples < 0 {
		return errors.Errorf("profiler_samples must not be negative, got %d", c.ProfilerSamples)
	}
	return nil
}

// TrackerConfig converts the tracker settings to the detector precision.
func (c Config) TrackerConfig() tracker.Config {
	return c.Tracker.Config(c.Detector.FracBits)
}

// RelevantClassIndices resolves RelevantClasses against the detector labels.
func (c Config) RelevantClassIndices() ([]int, error) {
	return detector.NewClassSet(c.Detector.Classes...).Indices(c.RelevantClasses)
}

package util

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/postprocess"
)

// FrameExt is the extension of raw frame dumps.
const FrameExt = ".bin"

// FrameFile represents one dumped frame of raw network outputs.
type FrameFile struct {
	// Path is the path to the frame file.
	Path string
	// Frame is the frame number parsed from the file name.
	Frame int
	// Layers holds the decoded outputs, one per configured grid.
	Layers []detector.LayerOutput
}

// FrameSize returns the number of int16 samples of one frame for cfg: for
// every layer, four coordinate planes followed by the objectness plane, one
// plane per class and, when cfg.Rotation is set, six rotation samples per
// cell.
func FrameSize(cfg detector.Config) int {
	n := 0
	for _, g := range cfg.Grids {
		n += g.Cells() * layerPlanes(cfg)
	}
	return n
}

func layerPlanes(cfg detector.Config) int {
	planes := 4 + 1 + len(cfg.Classes)
	if cfg.Rotation {
		planes += postprocess.RotationArgs
	}
	return planes
}

// LoadDirectoryFrames reads all frame-<n>.bin files from a directory.
//
// Arguments:
// - dir: Directory path containing frame dumps.
// - cfg: The pipeline configuration describing the layer layout.
//
// Returns:
// - []FrameFile: The frames, sorted by frame number.
// - error: Error if a file cannot be read, is misnamed or has the wrong size.
func LoadDirectoryFrames(dir string, cfg detector.Config) ([]FrameFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var frames []FrameFile
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != FrameExt {
			continue
		}

		path := filepath.Join(dir, file.Name())
		frame, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file.Name(), "frame-"), FrameExt))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid frame file name %q", file.Name())
		}

		layers, err := ReadFrame(path, cfg)
		if err != nil {
			return nil, err
		}
		frames = append(frames, FrameFile{Path: path, Frame: frame, Layers: layers})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Frame < frames[j].Frame
	})

	return frames, nil
}

// ReadFrame decodes one frame dump of little-endian int16 samples.
func ReadFrame(path string, cfg detector.Config) ([]detector.LayerOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if want := 2 * FrameSize(cfg); len(data) != want {
		return nil, errors.Errorf("%s: got %d bytes, want %d", path, len(data), want)
	}

	samples := make([]int16, len(data)/2)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, samples); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}

	layers := make([]detector.LayerOutput, len(cfg.Grids))
	offset := 0
	for j, g := range cfg.Grids {
		coords := 4 * g.Cells()
		confidence := g.Cells() * (1 + len(cfg.Classes))
		layers[j] = detector.LayerOutput{
			Coords:     samples[offset : offset+coords],
			Confidence: samples[offset+coords : offset+coords+confidence],
		}
		if cfg.Rotation {
			start := offset + coords + confidence
			layers[j].Rotation = samples[start : start+g.Cells()*postprocess.RotationArgs]
		}
		offset += g.Cells() * layerPlanes(cfg)
	}
	return layers, nil
}

// WriteFrame dumps layers to path in the format read by ReadFrame. Rotation
// samples are written when present.
func WriteFrame(path string, layers []detector.LayerOutput) error {
	var buf bytes.Buffer
	for _, l := range layers {
		if err := binary.Write(&buf, binary.LittleEndian, l.Coords); err != nil {
			return err
		}
		if err := binary.Write(&buf, binary.LittleEndian, l.Confidence); err != nil {
			return err
		}
		if err := binary.Write(&buf, binary.LittleEndian, l.Rotation); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

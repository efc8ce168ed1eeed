package detector

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
	"github.com/nvr-ai/go-detect/geometry"
	"github.com/nvr-ai/go-detect/postprocess"
)

const (
	fb = 10
	// Raw logits with 10 fractional bits and their sigmoid.
	background int16 = -4096 // 0.077
	likely     int16 = 2048  // 0.850
	certain    int16 = 3072  // 0.895
)

// testConfig describes a 64x32 input with a 4x2 grid (stride 16) and an 8x4
// grid (stride 8). Box deltas are scaled by 64/32 = 2.
func testConfig() Config {
	return Config{
		MaxBoxes:            10,
		ConfidenceThreshold: 0.5,
		IoUThreshold:        0.45,
		LayerIoUThreshold:   1,
		FracBits:            fb,
		InputShape:          image.Point{X: 64, Y: 32},
		Grids:               []postprocess.GridDim{{Width: 4, Height: 2}, {Width: 8, Height: 4}},
		Classes:             []string{"person", "car", "dog"},
	}
}

func emptyLayers(cfg Config) []LayerOutput {
	layers := make([]LayerOutput, len(cfg.Grids))
	for j, grid := range cfg.Grids {
		cells := grid.Cells()
		layers[j] = LayerOutput{
			Coords:     make([]int16, 4*cells),
			Confidence: make([]int16, cells*(1+len(cfg.Classes))),
		}
		for i := range layers[j].Confidence {
			layers[j].Confidence[i] = background
		}
	}
	return layers
}

type cell struct {
	layer      int
	index      int
	objectness int16
	// deltas are left, top, right, bottom in units of 1/1024 before scaling.
	deltas [4]int16
	class  int
}

func setCell(cfg Config, layers []LayerOutput, c cell) {
	cells := cfg.Grids[c.layer].Cells()
	l := layers[c.layer]
	l.Confidence[c.index] = c.objectness
	l.Confidence[cells*(1+c.class)+c.index] = likely
	for k, d := range c.deltas {
		l.Coords[k*cells+c.index] = d
	}
}

func newPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	return p
}

var (
	// Layer 0, row 1, col 1: anchor (24, 24), box (16, 16, 32, 32).
	coarsePerson = cell{layer: 0, index: 5, objectness: likely, deltas: [4]int16{4096, 4096, 4096, 4096}, class: 0}
	// Layer 1, row 2, col 2: anchor (20, 20), box (16, 16, 32, 32).
	finePerson = cell{layer: 1, index: 18, objectness: certain, deltas: [4]int16{2048, 2048, 6144, 6144}, class: 0}
	// Layer 0, row 1, col 2: anchor (40, 24), box (20, 16, 36, 32), IoU 0.6 with coarsePerson.
	coarseDog = cell{layer: 0, index: 6, objectness: certain, deltas: [4]int16{10240, 4096, -2048, 4096}, class: 2}
)

func TestPipelineSingleDetection(t *testing.T) {
	cfg := testConfig()
	layers := emptyLayers(cfg)
	setCell(cfg, layers, coarsePerson)

	results, err := newPipeline(t, cfg).Process(layers)
	require.NoError(t, err)

	expected := []postprocess.Result{{
		Index:      5,
		Layer:      0,
		Box:        geometry.IntBox(16, 16, 32, 32, fb),
		Score:      fp.FromRaw(870, fb),
		Class:      0,
		ClassScore: fp.FromRaw(866, fb),
	}}
	if diff := cmp.Diff(expected, results); diff != "" {
		t.Errorf("Process() mismatch (-want +got):\n%s", diff)
	}
}

func TestPipelineRotation(t *testing.T) {
	cfg := testConfig()
	cfg.Rotation = true
	cfg.RotationRange = 4
	layers := emptyLayers(cfg)
	for j, grid := range cfg.Grids {
		layers[j].Rotation = make([]int16, grid.Cells()*postprocess.RotationArgs)
	}
	setCell(cfg, layers, coarsePerson)
	setCell(cfg, layers, coarseDog)
	// A quarter turn around the vertical axis for the person. The dog keeps
	// all zero samples, which describe no rotation.
	copy(layers[0].Rotation[coarsePerson.index*postprocess.RotationArgs:], []int16{0, 0, -4096, 0, 4096, 0})

	results, err := newPipeline(t, cfg).Process(layers)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byClass := map[int]postprocess.Result{}
	for _, r := range results {
		byClass[r.Class] = r
	}
	assert.Nil(t, byClass[2].Rotation)

	rotation := byClass[0].Rotation
	require.NotNil(t, rotation)
	assert.InDelta(t, 0, rotation.OrthonormalityError(), 1e-6)
	angles := rotation.EulerAngles().Degrees()
	assert.InDelta(t, 90, angles.Yaw, 1e-6)
	assert.InDelta(t, 0, angles.Pitch, 1e-6)
	assert.InDelta(t, 0, angles.Roll, 1e-6)

	layers[1].Rotation = layers[1].Rotation[:10]
	_, err = newPipeline(t, cfg).Process(layers)
	assert.True(t, errors.Is(err, ErrLayerMismatch), "got %v", err)
}

func TestPipelineNothingAboveThreshold(t *testing.T) {
	cfg := testConfig()
	layers := emptyLayers(cfg)
	// sigmoid(0) is just below one half.
	layers[0].Confidence[3] = 0

	results, err := newPipeline(t, cfg).Process(layers)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPipelineMergesAcrossLayers(t *testing.T) {
	tests := []struct {
		name      string
		fineClass int
		expected  []int
	}{
		{name: "same class keeps the higher score", fineClass: 0, expected: []int{1}},
		{name: "different classes are kept", fineClass: 1, expected: []int{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			layers := emptyLayers(cfg)
			fine := finePerson
			fine.class = tt.fineClass
			setCell(cfg, layers, coarsePerson)
			setCell(cfg, layers, fine)

			results, err := newPipeline(t, cfg).Process(layers)
			require.NoError(t, err)

			layerOf := make([]int, len(results))
			for i, r := range results {
				layerOf[i] = r.Layer
				assert.Equal(t, geometry.IntBox(16, 16, 32, 32, fb), r.Box)
			}
			assert.Equal(t, tt.expected, layerOf)
		})
	}
}

func TestPipelineLayerMerge(t *testing.T) {
	tests := []struct {
		name     string
		layerIoU float32
		expected []int
	}{
		{name: "skipped at one", layerIoU: 1, expected: []int{2, 0}},
		{name: "class agnostic below one", layerIoU: 0.5, expected: []int{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.LayerIoUThreshold = tt.layerIoU
			layers := emptyLayers(cfg)
			setCell(cfg, layers, coarsePerson)
			setCell(cfg, layers, coarseDog)

			results, err := newPipeline(t, cfg).Process(layers)
			require.NoError(t, err)

			classes := make([]int, len(results))
			for i, r := range results {
				classes[i] = r.Class
			}
			assert.Equal(t, tt.expected, classes)
			assert.Equal(t, geometry.IntBox(20, 16, 36, 32, fb), results[0].Box)
		})
	}
}

func TestPipelineBudget(t *testing.T) {
	cfg := testConfig()
	// Layer 0 gets 1/2 = 0 boxes, layer 1 gets the single remaining one.
	cfg.MaxBoxes = 1
	layers := emptyLayers(cfg)
	setCell(cfg, layers, coarsePerson)
	setCell(cfg, layers, finePerson)

	results, err := newPipeline(t, cfg).Process(layers)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Layer)
	assert.Equal(t, 18, results[0].Index)
	assert.Equal(t, fp.FromRaw(916, fb), results[0].Score)
}

func TestPipelineClassTie(t *testing.T) {
	cfg := testConfig()
	layers := emptyLayers(cfg)
	layers[0].Confidence[2] = likely

	results, err := newPipeline(t, cfg).Process(layers)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Class)
	assert.Equal(t, fp.FromRaw(341, fb), results[0].ClassScore)
}

func TestPipelineLayerMismatch(t *testing.T) {
	cfg := testConfig()
	p := newPipeline(t, cfg)

	tests := []struct {
		name   string
		mutate func([]LayerOutput) []LayerOutput
	}{
		{name: "missing layer", mutate: func(l []LayerOutput) []LayerOutput { return l[:1] }},
		{name: "short coords", mutate: func(l []LayerOutput) []LayerOutput {
			l[1].Coords = l[1].Coords[:10]
			return l
		}},
		{name: "short confidence", mutate: func(l []LayerOutput) []LayerOutput {
			l[0].Confidence = l[0].Confidence[:8]
			return l
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := p.Process(tt.mutate(emptyLayers(cfg)))
			assert.Nil(t, results)
			assert.True(t, errors.Is(err, ErrLayerMismatch), "got %v", err)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, testConfig().Validate())

	wide := DefaultConfig()
	wide.FracBits = 12
	require.NoError(t, wide.Validate())
	wide.FracBits = 14
	assert.True(t, errors.Is(wide.Validate(), ErrInvalidConfig))

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "no boxes", mutate: func(c *Config) { c.MaxBoxes = 0 }},
		{name: "confidence of one", mutate: func(c *Config) { c.ConfidenceThreshold = 1 }},
		{name: "zero iou", mutate: func(c *Config) { c.IoUThreshold = 0 }},
		{name: "zero layer iou", mutate: func(c *Config) { c.LayerIoUThreshold = 0 }},
		{name: "odd precision", mutate: func(c *Config) { c.FracBits = 9 }},
		{name: "zero precision", mutate: func(c *Config) { c.FracBits = 0 }},
		{name: "areas overflow", mutate: func(c *Config) { c.FracBits = 20 }},
		{name: "narrow input", mutate: func(c *Config) { c.InputShape = image.Point{X: 16, Y: 16} }},
		{name: "no grids", mutate: func(c *Config) { c.Grids = nil }},
		{name: "grid finer than input", mutate: func(c *Config) { c.Grids[0].Width = 65 }},
		{name: "no classes", mutate: func(c *Config) { c.Classes = nil }},
		{name: "empty rotation range", mutate: func(c *Config) { c.Rotation = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			p, err := NewPipeline(cfg)
			assert.Nil(t, p)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestClassSet(t *testing.T) {
	s := NewClassSet(DefaultClasses()...)
	assert.Equal(t, 8, s.Len())

	name, err := s.Name(7)
	require.NoError(t, err)
	assert.Equal(t, "stop sign", name)

	_, err = s.Name(8)
	assert.Error(t, err)

	idx, err := s.Index("car")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	_, err = s.Index("giraffe")
	assert.Error(t, err)

	indices, err := s.Indices([]string{"truck", "person"})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 0}, indices)

	indices, err = s.Indices(nil)
	require.NoError(t, err)
	assert.Nil(t, indices)
}

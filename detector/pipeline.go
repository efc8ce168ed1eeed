package detector

import (
	"github.com/pkg/errors"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
	"github.com/nvr-ai/go-detect/geometry"
	"github.com/nvr-ai/go-detect/postprocess"
)

// ErrLayerMismatch is returned when the raw outputs do not match the
// configured layers.
var ErrLayerMismatch = errors.New("detector: raw outputs do not match the configured layers")

// LayerOutput holds the planar raw outputs of one resolution layer.
//
// Coords holds four planes of one sample per cell: the left, top, right and
// bottom deltas. Confidence holds the objectness plane followed by one plane
// per class. Rotation, read only when the pipeline is configured for it,
// holds six consecutive samples per cell.
type LayerOutput struct {
	Coords     []int16
	Confidence []int16
	Rotation   []int16
}

// MaxRotationError is the largest orthonormality error of a decoded rotation
// kept on a result.
const MaxRotationError = 0.1

// Pipeline turns raw layer outputs into detections. A Pipeline only reads its
// configuration and may be shared between goroutines.
type Pipeline struct {
	cfg     Config
	classes *ClassSet

	confidenceThreshold fp.Scalar
	iouThreshold        fp.Scalar
	layerIoUThreshold   fp.Scalar
	layerNMS            bool

	anchors  []postprocess.AnchorFunc
	builder  postprocess.BoxBuilder
	rotation geometry.RotationBuilder
}

// NewPipeline validates cfg and precomputes the per layer anchors.
//
// Arguments:
//   - cfg: The pipeline configuration.
//
// Returns:
//   - *Pipeline: The pipeline.
//   - error: ErrInvalidConfig when cfg does not validate.
//
// @example
// pipeline, err := detector.NewPipeline(detector.DefaultConfig())
// results, err := pipeline.Process(layers)
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fb := cfg.FracBits
	p := &Pipeline{
		cfg:                 cfg,
		classes:             NewClassSet(cfg.Classes...),
		confidenceThreshold: fp.FromFloat32(cfg.ConfidenceThreshold, fb),
		iouThreshold:        fp.FromFloat32(cfg.IoUThreshold, fb),
		layerIoUThreshold:   fp.FromFloat32(cfg.LayerIoUThreshold, fb),
		anchors:             make([]postprocess.AnchorFunc, len(cfg.Grids)),
		builder:             postprocess.AnchorFreeBuilder(fp.FromInt(int32(cfg.InputShape.X/32), fb)),
	}
	p.layerNMS = fp.Lt(p.layerIoUThreshold, fp.FromInt(1, fb))

	if cfg.Rotation {
		limit := fp.FromFloat32(cfg.RotationRange, fb)
		p.rotation = geometry.NewRotationBuilder(
			fp.NewRange(fp.Neg(limit), limit),
			fp.NewRange(fp.FromInt(-1, fb), fp.FromInt(1, fb)),
		)
	}

	for i, grid := range cfg.Grids {
		p.anchors[i] = postprocess.StrideAnchors(cfg.InputShape.X, cfg.InputShape.Y, grid, fb)
	}
	return p, nil
}

// Config returns the configuration of the pipeline.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Classes returns the label table of the pipeline.
func (p *Pipeline) Classes() *ClassSet {
	return p.classes
}

// Process decodes one frame.
//
// Each layer gets an equal share of the boxes not used by the previous
// layers. Within a layer the cells with the highest raw objectness are
// decoded, the ones at or below the confidence threshold are dropped and
// the rest are classified. Duplicates of the same class are finally merged
// across all layers.
//
// Arguments:
//   - layers: One output per configured grid, in the same order.
//
// Returns:
//   - []postprocess.Result: The detections, in no particular order.
//   - error: ErrLayerMismatch when a buffer is too short for its grid.
func (p *Pipeline) Process(layers []LayerOutput) ([]postprocess.Result, error) {
	if err := p.check(layers); err != nil {
		return nil, err
	}

	collected := make([]postprocess.Result, 0, p.cfg.MaxBoxes)
	remaining := p.cfg.MaxBoxes

	for j, layer := range layers {
		grid := p.cfg.Grids[j]
		budget := min(grid.Cells(), remaining/(len(layers)-j))

		found := p.processLayer(j, layer, budget)
		remaining -= len(found)
		collected = append(collected, found...)
	}

	return postprocess.ApplyNMS(collected, postprocess.NMSConfig{
		IoUThreshold: p.iouThreshold,
		ClassAware:   true,
	}), nil
}

func (p *Pipeline) check(layers []LayerOutput) error {
	if len(layers) != len(p.cfg.Grids) {
		return errors.Wrapf(ErrLayerMismatch, "got %d layers, want %d", len(layers), len(p.cfg.Grids))
	}
	for j, layer := range layers {
		cells := p.cfg.Grids[j].Cells()
		if len(layer.Coords) < 4*cells {
			return errors.Wrapf(ErrLayerMismatch, "layer %d: %d coordinate samples, want %d",
				j, len(layer.Coords), 4*cells)
		}
		if want := cells * (1 + p.classes.Len()); len(layer.Confidence) < want {
			return errors.Wrapf(ErrLayerMismatch, "layer %d: %d confidence samples, want %d",
				j, len(layer.Confidence), want)
		}
		if want := cells * postprocess.RotationArgs; p.cfg.Rotation && len(layer.Rotation) < want {
			return errors.Wrapf(ErrLayerMismatch, "layer %d: %d rotation samples, want %d",
				j, len(layer.Rotation), want)
		}
	}
	return nil
}

func (p *Pipeline) processLayer(j int, layer LayerOutput, budget int) []postprocess.Result {
	fb := p.cfg.FracBits
	grid := p.cfg.Grids[j]
	cells := grid.Cells()

	indices := postprocess.SelectTopK(layer.Confidence[:cells], budget)
	scores := make([]fp.Scalar, len(indices))

	objectness := postprocess.Decoder{Data: layer.Confidence[:cells], FracBits: fb, Mapper: fp.Sigmoid}
	objectness.Decode(indices, scores)

	size := postprocess.FilterOutBelowThreshold(p.confidenceThreshold, len(indices), indices, scores)

	boxes := make([]geometry.Box, size)
	decoder := postprocess.BoxDecoder{
		FracBits: fb,
		Grid:     grid,
		Anchors:  p.anchors[j],
		Build:    p.builder,
	}
	for c := range decoder.Deltas {
		decoder.Deltas[c] = layer.Coords[c*cells : (c+1)*cells]
	}
	decoder.Decode(indices[:size], boxes)

	if p.layerNMS {
		size = postprocess.FilterOutOverlapping(p.layerIoUThreshold, size, indices, scores, boxes)
	}

	rotations := p.decodeRotations(layer, indices[:size])

	results := make([]postprocess.Result, size)
	for i := range results {
		class, classScore := p.classify(layer.Confidence, cells, indices[i])
		results[i] = postprocess.Result{
			Index:      indices[i],
			Layer:      j,
			Box:        boxes[i],
			Score:      scores[i],
			Class:      class,
			ClassScore: classScore,
		}
		if rotations != nil {
			results[i].Rotation = rotations[i]
		}
	}
	return results
}

// decodeRotations returns the rotation of each index, nil for the ones that
// fail to decode or are too far from a rotation. It returns nil when the
// pipeline does not decode rotations.
func (p *Pipeline) decodeRotations(layer LayerOutput, indices []int) []*geometry.Rotation {
	if p.rotation == nil {
		return nil
	}

	matrices := make([]geometry.Rotation, len(indices))
	valid := make([]bool, len(indices))
	decoder := postprocess.RotationDecoder{Data: layer.Rotation, FracBits: p.cfg.FracBits, Build: p.rotation}
	decoder.Decode(indices, valid, matrices)

	rotations := make([]*geometry.Rotation, len(indices))
	for i := range matrices {
		if valid[i] && matrices[i].OrthonormalityError() <= MaxRotationError {
			rotations[i] = &matrices[i]
		}
	}
	return rotations
}

// classify returns the class with the highest sigmoid score at index and the
// share of that score among all class scores. Ties keep the lowest class.
func (p *Pipeline) classify(confidence []int16, cells, index int) (int, fp.Scalar) {
	fb := p.cfg.FracBits
	sum := fp.FromInt(0, fb)
	best := fp.FromInt(0, fb)
	bestClass := 0

	for c := 0; c < p.classes.Len(); c++ {
		score := fp.Sigmoid(postprocess.Decode(confidence[cells*(1+c)+index], fb))
		sum = fp.Add(sum, score)
		if fp.Gt(score, best) {
			best = score
			bestClass = c
		}
	}

	if sum.N == 0 {
		return bestClass, sum
	}
	return bestClass, fp.Div(best, sum)
}

package postprocess

import (
	"github.com/pkg/errors"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
	"github.com/nvr-ai/go-detect/geometry"
)

// MaxCombineArgs is the largest number of channels a MultiDecoder combines.
const MaxCombineArgs = 3

// RotationArgs is the number of raw values describing one rotation.
const RotationArgs = 6

var (
	// ErrTooManyArgs is returned when a MultiDecoder is given more than
	// MaxCombineArgs channels.
	ErrTooManyArgs = errors.New("postprocess: too many channels to combine")

	// ErrMissingFunc is returned when a decoder is built without its
	// combining function.
	ErrMissingFunc = errors.New("postprocess: combining function is required")
)

// ScoreMapper transforms a decoded value, for instance a logit into a score.
type ScoreMapper func(fp.Scalar) fp.Scalar

// Combiner derives one value from the values decoded at the same index of
// several channels.
type Combiner func(args []fp.Scalar) fp.Scalar

// Decode reinterprets a raw sample as a fixed point number.
func Decode(raw int16, fracBits uint8) fp.Scalar {
	return fp.FromRaw(int32(raw), fracBits)
}

// Decoder reads one channel of raw samples.
type Decoder struct {
	// Data holds one raw sample per output.
	Data []int16
	// FracBits is the precision of the raw samples.
	FracBits uint8
	// Mapper is applied to every decoded value when set.
	Mapper ScoreMapper
}

// At decodes the sample at index.
func (d Decoder) At(index int) fp.Scalar {
	v := Decode(d.Data[index], d.FracBits)
	if d.Mapper != nil {
		v = d.Mapper(v)
	}
	return v
}

// Decode writes the decoded sample of indices[i] to out[i]. out must hold at
// least len(indices) values.
func (d Decoder) Decode(indices []int, out []fp.Scalar) {
	for i, index := range indices {
		out[i] = d.At(index)
	}
}

// MultiDecoder combines up to MaxCombineArgs parallel channels into one value
// per index.
type MultiDecoder struct {
	channels [][]int16
	fracBits uint8
	combine  Combiner
}

// NewMultiDecoder returns a decoder over channels.
//
// Arguments:
//   - channels: Parallel raw channels, at most MaxCombineArgs of them.
//   - fracBits: The precision of the raw samples.
//   - combine: Receives the decoded values of every channel for one index.
//
// Returns:
//   - *MultiDecoder: The decoder.
//   - error: ErrTooManyArgs when there are more than MaxCombineArgs
//     channels, ErrMissingFunc when combine is nil.
//
// @example
// sum, err := postprocess.NewMultiDecoder([][]int16{a, b}, 10, func(args []fp.Scalar) fp.Scalar {
// 	return fp.Add(args[0], args[1])
// })
func NewMultiDecoder(channels [][]int16, fracBits uint8, combine Combiner) (*MultiDecoder, error) {
	if len(channels) > MaxCombineArgs {
		return nil, errors.Wrapf(ErrTooManyArgs, "got %d, max %d", len(channels), MaxCombineArgs)
	}
	if combine == nil {
		return nil, ErrMissingFunc
	}
	return &MultiDecoder{channels: channels, fracBits: fracBits, combine: combine}, nil
}

// Decode writes the combined value of indices[i] to out[i]. out must hold at
// least len(indices) values.
func (d *MultiDecoder) Decode(indices []int, out []fp.Scalar) {
	var buf [MaxCombineArgs]fp.Scalar
	args := buf[:len(d.channels)]
	for i, index := range indices {
		for c, channel := range d.channels {
			args[c] = Decode(channel[index], d.fracBits)
		}
		out[i] = d.combine(args)
	}
}

// RotationDecoder decodes RotationArgs consecutive raw samples per index into
// a rotation matrix.
type RotationDecoder struct {
	// Data holds RotationArgs samples per output, laid out contiguously.
	Data []int16
	// FracBits is the precision of the raw samples.
	FracBits uint8
	// Build turns the decoded samples into a matrix.
	Build geometry.RotationBuilder
}

// Decode builds the rotation of indices[i] into out[i] and records in
// valid[i] whether it succeeded. A failed slot is zeroed.
func (d RotationDecoder) Decode(indices []int, valid []bool, out []geometry.Rotation) {
	for i, index := range indices {
		var raw [RotationArgs]fp.Scalar
		for j := range raw {
			raw[j] = Decode(d.Data[index*RotationArgs+j], d.FracBits)
		}
		valid[i] = d.Build(raw, &out[i])
		if !valid[i] {
			out[i].Zero(d.FracBits)
		}
	}
}

// PointBuilder derives a point from two decoded values and the anchor of
// their grid cell.
type PointBuilder func(x, y fp.Scalar, anchor Anchor) geometry.Point

// PointDecoder decodes landmarks from two parallel channels.
type PointDecoder struct {
	X, Y     []int16
	FracBits uint8
	// Grid and Anchors are optional; without them builders receive the zero
	// anchor.
	Grid    GridDim
	Anchors AnchorFunc
	Build   PointBuilder
}

// Decode writes the point of indices[i] to out[i].
func (d PointDecoder) Decode(indices []int, out []geometry.Point) {
	for i, index := range indices {
		var anchor Anchor
		if d.Anchors != nil {
			anchor = d.Anchors(GridCoordinates(index, d.Grid))
		}
		out[i] = d.Build(Decode(d.X[index], d.FracBits), Decode(d.Y[index], d.FracBits), anchor)
	}
}

// AnchorOffsetPoint places the decoded offset, multiplied by scale, relative
// to the anchor center.
func AnchorOffsetPoint(scale fp.Scalar) PointBuilder {
	return func(x, y fp.Scalar, anchor Anchor) geometry.Point {
		if anchor.Center == (geometry.Point{}) {
			return geometry.NewPoint(fp.Mul(x, scale), fp.Mul(y, scale))
		}
		return geometry.NewPoint(
			fp.Add(anchor.Center.X, fp.Mul(x, scale)),
			fp.Add(anchor.Center.Y, fp.Mul(y, scale)),
		)
	}
}

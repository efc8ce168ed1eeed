// Package geometry - Fixed point boxes, points and vectors shared by the
// post-processing stages and the subject tracker.
package geometry

import (
	"math"

	"github.com/pkg/errors"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
)

// MaxFracBits returns the highest even precision at which the areas of boxes
// inside a width x height image, and the distances between their centers and
// the image center, fit in an int32 once multiplied by scale. It returns 0
// when no precision fits.
func MaxFracBits(width, height, scale int64) uint8 {
	extent := max(width*height, (width*width+height*height)/4) * max(scale, 1)
	if extent <= 0 || extent > math.MaxInt32 {
		return 0
	}
	var fracBits uint8
	for fracBits+2 < 31 && extent<<(fracBits+2) <= math.MaxInt32 {
		fracBits += 2
	}
	return fracBits
}

// Point is a 2D point.
type Point struct {
	X fp.Scalar
	Y fp.Scalar
}

// Vector is a 2D displacement.
type Vector struct {
	X fp.Scalar
	Y fp.Scalar
}

// Dim holds a width and a height.
type Dim struct {
	Width  fp.Scalar
	Height fp.Scalar
}

// Box is an axis-aligned rectangle. Callers must keep Right >= Left and
// Bottom >= Top; nothing in this package repairs a malformed box.
type Box struct {
	Left   fp.Scalar
	Top    fp.Scalar
	Right  fp.Scalar
	Bottom fp.Scalar
}

// NewPoint returns the point (x, y). It panics if x and y use different
// fractional bits.
func NewPoint(x, y fp.Scalar) Point {
	if x.FracBits != y.FracBits {
		panic(errors.Errorf("geometry: point coordinates use %d and %d fractional bits", x.FracBits, y.FracBits))
	}
	return Point{X: x, Y: y}
}

// NewBox returns the box delimited by the four coordinates.
//
// Arguments:
//   - left, top, right, bottom: The coordinates. All must share the same
//     number of fractional bits.
//
// Returns:
//   - Box: The box. NewBox panics when left > right or top > bottom.
//
// @example
// box := geometry.NewBox(fp.FromInt(0, 10), fp.FromInt(0, 10), fp.FromInt(4, 10), fp.FromInt(2, 10))
// area := box.Area() // 8
func NewBox(left, top, right, bottom fp.Scalar) Box {
	if fp.Gt(left, right) {
		panic(errors.Errorf("geometry: invalid box: left %d > right %d (%d bits)", left.N, right.N, left.FracBits))
	}
	if fp.Gt(top, bottom) {
		panic(errors.Errorf("geometry: invalid box: top %d > bottom %d (%d bits)", top.N, bottom.N, top.FracBits))
	}
	if left.FracBits != top.FracBits {
		panic(errors.Errorf("geometry: box coordinates use %d and %d fractional bits", left.FracBits, top.FracBits))
	}
	return Box{Left: left, Top: top, Right: right, Bottom: bottom}
}

// IntBox builds a box from integer coordinates.
func IntBox(left, top, right, bottom int32, fracBits uint8) Box {
	return NewBox(
		fp.FromInt(left, fracBits),
		fp.FromInt(top, fracBits),
		fp.FromInt(right, fracBits),
		fp.FromInt(bottom, fracBits),
	)
}

// ZeroBox returns the degenerate box at the origin.
func ZeroBox(fracBits uint8) Box {
	zero := fp.FromInt(0, fracBits)
	return Box{Left: zero, Top: zero, Right: zero, Bottom: zero}
}

// FracBits returns the precision of the box coordinates.
func (b Box) FracBits() uint8 {
	return b.Left.FracBits
}

// Width returns Right - Left.
func (b Box) Width() fp.Scalar {
	return fp.Sub(b.Right, b.Left)
}

// Height returns Bottom - Top.
func (b Box) Height() fp.Scalar {
	return fp.Sub(b.Bottom, b.Top)
}

// Dim returns the width and height of the box.
func (b Box) Dim() Dim {
	return Dim{Width: b.Width(), Height: b.Height()}
}

// Center returns the middle of the box. Half sizes are computed with a right
// shift.
func (b Box) Center() Point {
	return Point{
		X: fp.Add(b.Left, fp.RShift(b.Width(), 1)),
		Y: fp.Add(b.Top, fp.RShift(b.Height(), 1)),
	}
}

// Area returns Width * Height.
func (b Box) Area() fp.Scalar {
	return fp.Mul(b.Width(), b.Height())
}

// IoU returns the intersection over union of two boxes.
//
// The intersection is clamped at zero on each axis. A zero or negative union,
// which only happens with degenerate boxes, yields zero.
//
// Arguments:
//   - a: The first box.
//   - b: The second box. Must use the same fractional bits as a.
//
// Returns:
//   - fp.Scalar: The ratio in [0, 1] with the precision of a.
//
// @example
// a := geometry.IntBox(0, 0, 10, 10, 10)
// b := geometry.IntBox(5, 5, 15, 15, 10)
// iou := geometry.IoU(a, b) // 25 / 175
func IoU(a, b Box) fp.Scalar {
	if a.FracBits() != b.FracBits() {
		panic(errors.Errorf("geometry: iou: boxes use %d and %d fractional bits", a.FracBits(), b.FracBits()))
	}
	zero := fp.FromInt(0, a.FracBits())

	left := fp.MaxOf(a.Left, b.Left)
	top := fp.MaxOf(a.Top, b.Top)
	right := fp.MinOf(a.Right, b.Right)
	bottom := fp.MinOf(a.Bottom, b.Bottom)

	width := fp.MaxOf(fp.Sub(right, left), zero)
	height := fp.MaxOf(fp.Sub(bottom, top), zero)

	inter := fp.Mul(width, height)
	union := fp.Sub(fp.Add(a.Area(), b.Area()), inter)
	if fp.Le(union, zero) {
		return zero
	}
	return fp.Div(inter, union)
}

// Crop returns the part of b lying inside container. A box entirely outside
// the container collapses to the zero box.
func Crop(b, container Box) Box {
	if fp.Lt(b.Right, container.Left) ||
		fp.Lt(b.Bottom, container.Top) ||
		fp.Gt(b.Left, container.Right) ||
		fp.Gt(b.Top, container.Bottom) {
		return ZeroBox(container.FracBits())
	}
	return Box{
		Left:   fp.MaxOf(b.Left, container.Left),
		Top:    fp.MaxOf(b.Top, container.Top),
		Right:  fp.MinOf(b.Right, container.Right),
		Bottom: fp.MinOf(b.Bottom, container.Bottom),
	}
}

// Envelope returns the smallest box containing every point. It returns false
// when points is empty.
func Envelope(points []Point) (Box, bool) {
	if len(points) == 0 {
		return Box{}, false
	}
	b := Box{Left: points[0].X, Top: points[0].Y, Right: points[0].X, Bottom: points[0].Y}
	for _, p := range points[1:] {
		b.Left = fp.MinOf(b.Left, p.X)
		b.Right = fp.MaxOf(b.Right, p.X)
		b.Top = fp.MinOf(b.Top, p.Y)
		b.Bottom = fp.MaxOf(b.Bottom, p.Y)
	}
	return b, true
}

// Translate moves the box by v.
func (b Box) Translate(v Vector) Box {
	return Box{
		Left:   fp.Add(b.Left, v.X),
		Top:    fp.Add(b.Top, v.Y),
		Right:  fp.Add(b.Right, v.X),
		Bottom: fp.Add(b.Bottom, v.Y),
	}
}

// CenteredOn returns a box of size dim whose center is c.
func CenteredOn(c Point, dim Dim) Box {
	halfW := fp.RShift(dim.Width, 1)
	halfH := fp.RShift(dim.Height, 1)
	return Box{
		Left:   fp.Sub(c.X, halfW),
		Top:    fp.Sub(c.Y, halfH),
		Right:  fp.Add(c.X, halfW),
		Bottom: fp.Add(c.Y, halfH),
	}
}

// Translate moves the point by v.
func (p Point) Translate(v Vector) Point {
	return Point{X: fp.Add(p.X, v.X), Y: fp.Add(p.Y, v.Y)}
}

// NewVector returns the displacement from src to dst.
func NewVector(src, dst Point) Vector {
	return Vector{X: fp.Sub(dst.X, src.X), Y: fp.Sub(dst.Y, src.Y)}
}

// Norm returns the euclidean length of the vector. Intermediate squares are
// 32-bit, so the components must stay well inside the representable range.
func (v Vector) Norm() fp.Scalar {
	return fp.Sqrt(fp.Add(fp.Sqr(v.X), fp.Sqr(v.Y)))
}

// MatchBox returns the index of the box in boxes that best overlaps target.
// A candidate matches when its IoU with target is at least threshold; the
// highest IoU wins and ties keep the lowest index. When nothing matches the
// result is len(boxes).
func MatchBox(boxes []Box, target Box, threshold fp.Scalar) int {
	best := len(boxes)
	var bestIoU fp.Scalar
	for i, b := range boxes {
		iou := IoU(target, b)
		if fp.Lt(iou, threshold) {
			continue
		}
		if best == len(boxes) || fp.Gt(iou, bestIoU) {
			best = i
			bestIoU = iou
		}
	}
	return best
}

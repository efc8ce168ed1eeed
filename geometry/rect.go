package geometry

import (
	"image"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
)

// Rect is a box in integer pixel coordinates.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// ToRect rounds the box coordinates to the nearest pixel, halves to even.
func (b Box) ToRect() Rect {
	return Rect{
		X1: int(b.Left.Round()),
		Y1: int(b.Top.Round()),
		X2: int(b.Right.Round()),
		Y2: int(b.Bottom.Round()),
	}
}

// FromRect converts a pixel rectangle to a box with fracBits fractional bits.
func FromRect(r Rect, fracBits uint8) Box {
	return IntBox(int32(r.X1), int32(r.Y1), int32(r.X2), int32(r.Y2), fracBits)
}

// Rectangle returns the image.Rectangle covering r.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2).Canon()
}

// Area returns the number of pixels covered by r.
func (r Rect) Area() int {
	if r.X2 <= r.X1 || r.Y2 <= r.Y1 {
		return 0
	}
	return (r.X2 - r.X1) * (r.Y2 - r.Y1)
}

// IoU returns the floating point intersection over union of r and o.
//
// Arguments:
//   - o: The other rectangle.
//
// Returns:
//   - float32: A value between 0.0 and 1.0.
//
// @example
// a := geometry.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
// b := geometry.Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
// iou := a.IoU(b) // 25 / 175 = 0.142857
func (r Rect) IoU(o Rect) float32 {
	interW := min(r.X2, o.X2) - max(r.X1, o.X1)
	interH := min(r.Y2, o.Y2) - max(r.Y1, o.Y1)
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH
	unionArea := r.Area() + o.Area() - interArea
	return float32(interArea) / float32(unionArea)
}

// Float returns the box coordinates as float32 values, in the order
// left, top, right, bottom.
func (b Box) Float() [4]float32 {
	return [4]float32{b.Left.Float32(), b.Top.Float32(), b.Right.Float32(), b.Bottom.Float32()}
}

// Scale multiplies every coordinate by s.
func (b Box) Scale(s fp.Scalar) Box {
	return Box{
		Left:   fp.Mul(b.Left, s),
		Top:    fp.Mul(b.Top, s),
		Right:  fp.Mul(b.Right, s),
		Bottom: fp.Mul(b.Bottom, s),
	}
}

package postprocess

import (
	fp "github.com/nvr-ai/go-detect/fixedpoint"
	"github.com/nvr-ai/go-detect/geometry"
)

// GridDim is the size of an output grid, in cells.
type GridDim struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Cells returns the number of cells of the grid.
func (g GridDim) Cells() int {
	return g.Width * g.Height
}

// GridCoords locates one cell of a grid.
type GridCoords struct {
	Row int
	Col int
}

// GridCoordinates converts a flat, row major output index into grid
// coordinates.
func GridCoordinates(index int, grid GridDim) GridCoords {
	return GridCoords{Row: index / grid.Width, Col: index % grid.Width}
}

// Anchor is the reference a cell's raw outputs are relative to.
type Anchor struct {
	Center geometry.Point
	// Dim is zero for anchor free models.
	Dim geometry.Dim
}

// AnchorFunc maps grid coordinates to their anchor.
type AnchorFunc func(GridCoords) Anchor

// StrideAnchors returns anchors centred on each cell of grid laid over an
// input of inputWidth x inputHeight pixels. The stride is the integer ratio
// of the input size to the grid size.
func StrideAnchors(inputWidth, inputHeight int, grid GridDim, fracBits uint8) AnchorFunc {
	strideX := fp.FromInt(int32(inputWidth/grid.Width), fracBits)
	strideY := fp.FromInt(int32(inputHeight/grid.Height), fracBits)
	half := fp.New(1, 2, fracBits)
	zero := fp.FromInt(0, fracBits)

	return func(c GridCoords) Anchor {
		cx := fp.Add(fp.Mul(strideX, half), fp.Mul(strideX, fp.FromInt(int32(c.Col), fracBits)))
		cy := fp.Add(fp.Mul(strideY, half), fp.Mul(strideY, fp.FromInt(int32(c.Row), fracBits)))
		return Anchor{
			Center: geometry.NewPoint(cx, cy),
			Dim:    geometry.Dim{Width: zero, Height: zero},
		}
	}
}

// BoxBuilder derives a box from the four decoded deltas of a cell, in the
// order left, top, right, bottom.
type BoxBuilder func(deltas [4]fp.Scalar, anchor Anchor) geometry.Box

// AnchorFreeBuilder returns a builder that offsets each side of the box from
// the anchor center by its delta multiplied by scale. Sides that end up
// crossed are swapped.
func AnchorFreeBuilder(scale fp.Scalar) BoxBuilder {
	return func(d [4]fp.Scalar, anchor Anchor) geometry.Box {
		left := fp.Sub(anchor.Center.X, fp.Mul(d[0], scale))
		right := fp.Add(anchor.Center.X, fp.Mul(d[2], scale))
		if fp.Gt(left, right) {
			left, right = right, left
		}

		top := fp.Sub(anchor.Center.Y, fp.Mul(d[1], scale))
		bottom := fp.Add(anchor.Center.Y, fp.Mul(d[3], scale))
		if fp.Gt(top, bottom) {
			top, bottom = bottom, top
		}

		return geometry.NewBox(left, top, right, bottom)
	}
}

// BoxDecoder decodes boxes from four delta channels.
type BoxDecoder struct {
	// Deltas holds the left, top, right and bottom channels.
	Deltas   [4][]int16
	FracBits uint8
	Grid     GridDim
	Anchors  AnchorFunc
	Build    BoxBuilder
}

// Decode writes the box of indices[i] to out[i]. out must hold at least
// len(indices) boxes.
func (d BoxDecoder) Decode(indices []int, out []geometry.Box) {
	for i, index := range indices {
		anchor := d.Anchors(GridCoordinates(index, d.Grid))
		var deltas [4]fp.Scalar
		for c, channel := range d.Deltas {
			deltas[c] = Decode(channel[index], d.FracBits)
		}
		out[i] = d.Build(deltas, anchor)
	}
}

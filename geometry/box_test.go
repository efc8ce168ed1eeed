package geometry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
)

const fb = 10

func TestNewBoxRejectsInvertedCoordinates(t *testing.T) {
	assert.Panics(t, func() { IntBox(5, 0, 4, 1, fb) })
	assert.Panics(t, func() { IntBox(0, 5, 1, 4, fb) })
	assert.Panics(t, func() {
		NewBox(fp.FromInt(0, fb), fp.FromInt(0, 8), fp.FromInt(1, fb), fp.FromInt(1, 8))
	})
	assert.NotPanics(t, func() { IntBox(3, 3, 3, 3, fb) })
}

func TestBoxDerivedValues(t *testing.T) {
	b := IntBox(2, 1, 12, 5, fb)

	assert.Equal(t, fp.FromInt(10, fb), b.Width())
	assert.Equal(t, fp.FromInt(4, fb), b.Height())
	assert.Equal(t, fp.FromInt(40, fb), b.Area())
	assert.Equal(t, NewPoint(fp.FromInt(7, fb), fp.FromInt(3, fb)), b.Center())
	assert.Equal(t, Dim{Width: fp.FromInt(10, fb), Height: fp.FromInt(4, fb)}, b.Dim())

	odd := IntBox(1, 1, 4, 4, fb)
	assert.Equal(t, fp.New(5, 2, fb), odd.Center().X)
}

func TestIoU(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Box
		expected fp.Scalar
	}{
		{
			name:     "identical",
			a:        IntBox(0, 0, 10, 10, fb),
			b:        IntBox(0, 0, 10, 10, fb),
			expected: fp.FromInt(1, fb),
		},
		{
			name:     "disjoint",
			a:        IntBox(0, 0, 10, 10, fb),
			b:        IntBox(20, 20, 30, 30, fb),
			expected: fp.FromInt(0, fb),
		},
		{
			name:     "touching edges",
			a:        IntBox(0, 0, 10, 10, fb),
			b:        IntBox(10, 0, 20, 10, fb),
			expected: fp.FromInt(0, fb),
		},
		{
			name:     "half contained",
			a:        IntBox(0, 0, 10, 10, fb),
			b:        IntBox(0, 0, 10, 5, fb),
			expected: fp.New(1, 2, fb),
		},
		{
			name:     "degenerate boxes",
			a:        ZeroBox(fb),
			b:        ZeroBox(fb),
			expected: fp.FromInt(0, fb),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IoU(tt.a, tt.b))
			assert.Equal(t, tt.expected, IoU(tt.b, tt.a))
		})
	}
}

func TestIoUAgreesWithPixelRect(t *testing.T) {
	a := IntBox(0, 0, 10, 10, fb)
	b := IntBox(5, 5, 15, 15, fb)

	got := IoU(a, b).Float32()
	assert.InDelta(t, a.ToRect().IoU(b.ToRect()), got, 0.002)
}

func TestIoUMismatchedPrecisionPanics(t *testing.T) {
	assert.Panics(t, func() { IoU(IntBox(0, 0, 1, 1, 10), IntBox(0, 0, 1, 1, 8)) })
}

func TestVectorNorm(t *testing.T) {
	origin := NewPoint(fp.FromInt(1, fb), fp.FromInt(1, fb))
	target := NewPoint(fp.FromInt(4, fb), fp.FromInt(5, fb))

	v := NewVector(origin, target)
	assert.Equal(t, fp.FromInt(3, fb), v.X)
	assert.Equal(t, fp.FromInt(4, fb), v.Y)
	assert.Equal(t, fp.FromInt(5, fb), v.Norm())
	assert.Equal(t, target, origin.Translate(v))
}

func TestMatchBox(t *testing.T) {
	target := IntBox(0, 0, 10, 10, fb)
	half := fp.New(1, 2, fb)

	tests := []struct {
		name      string
		boxes     []Box
		threshold fp.Scalar
		expected  int
	}{
		{name: "empty", boxes: nil, threshold: half, expected: 0},
		{
			name:      "no overlap",
			boxes:     []Box{IntBox(100, 100, 110, 110, fb)},
			threshold: half,
			expected:  1,
		},
		{
			name: "best overlap wins",
			boxes: []Box{
				IntBox(100, 100, 110, 110, fb),
				IntBox(0, 0, 10, 5, fb),
				IntBox(0, 0, 10, 10, fb),
			},
			threshold: half,
			expected:  2,
		},
		{
			name:      "threshold is inclusive",
			boxes:     []Box{IntBox(0, 0, 10, 5, fb)},
			threshold: half,
			expected:  0,
		},
		{
			name:      "ties keep lowest index",
			boxes:     []Box{IntBox(0, 0, 10, 5, fb), IntBox(0, 5, 10, 10, fb)},
			threshold: half,
			expected:  0,
		},
		{
			name:      "below threshold",
			boxes:     []Box{IntBox(0, 0, 10, 5, fb)},
			threshold: fp.New(3, 4, fb),
			expected:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchBox(tt.boxes, target, tt.threshold))
		})
	}
}

func TestCrop(t *testing.T) {
	container := IntBox(0, 0, 10, 10, fb)

	assert.Equal(t, IntBox(0, 0, 5, 5, fb), Crop(IntBox(-5, -5, 5, 5, fb), container))
	assert.Equal(t, IntBox(2, 2, 4, 4, fb), Crop(IntBox(2, 2, 4, 4, fb), container))
	assert.Equal(t, ZeroBox(fb), Crop(IntBox(20, 20, 30, 30, fb), container))
}

func TestEnvelope(t *testing.T) {
	_, ok := Envelope(nil)
	assert.False(t, ok)

	points := []Point{
		NewPoint(fp.FromInt(1, fb), fp.FromInt(5, fb)),
		NewPoint(fp.FromInt(3, fb), fp.FromInt(2, fb)),
		NewPoint(fp.FromInt(-1, fb), fp.FromInt(4, fb)),
	}
	box, ok := Envelope(points)
	require.True(t, ok)
	if diff := cmp.Diff(IntBox(-1, 2, 3, 5, fb), box); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}
}

func TestTranslateAndCenteredOn(t *testing.T) {
	b := IntBox(0, 0, 4, 2, fb)
	moved := b.Translate(Vector{X: fp.FromInt(1, fb), Y: fp.FromInt(-1, fb)})
	assert.Equal(t, IntBox(1, -1, 5, 1, fb), moved)

	centered := CenteredOn(b.Center(), Dim{Width: fp.FromInt(8, fb), Height: fp.FromInt(6, fb)})
	assert.Equal(t, IntBox(-2, -2, 6, 4, fb), centered)
}

func TestRectConversion(t *testing.T) {
	b := NewBox(fp.New(5, 2, fb), fp.New(7, 2, fb), fp.New(21, 2, fb), fp.FromInt(12, fb))
	r := b.ToRect()
	assert.Equal(t, Rect{X1: 2, Y1: 4, X2: 10, Y2: 12}, r)
	assert.Equal(t, 64, r.Area())
	assert.Equal(t, IntBox(2, 4, 10, 12, fb), FromRect(r, fb))
	assert.Equal(t, 8, r.Rectangle().Dx())
	assert.Equal(t, [4]float32{2.5, 3.5, 10.5, 12}, b.Float())
}

func TestRectIoU(t *testing.T) {
	a := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}

	assert.InDelta(t, 25.0/175.0, a.IoU(b), 1e-6)
	assert.Equal(t, float32(0), a.IoU(Rect{X1: 20, Y1: 20, X2: 30, Y2: 30}))
}

func TestScale(t *testing.T) {
	b := IntBox(1, 2, 3, 4, fb)
	assert.Equal(t, IntBox(2, 4, 6, 8, fb), b.Scale(fp.FromInt(2, fb)))
}

func TestMaxFracBits(t *testing.T) {
	tests := []struct {
		name          string
		width, height int64
		scale         int64
		expected      uint8
	}{
		{name: "default input", width: 384, height: 288, scale: 1, expected: 14},
		{name: "default input with preference", width: 384, height: 288, scale: 2, expected: 12},
		{name: "small input", width: 64, height: 32, scale: 1, expected: 18},
		{name: "scale below one", width: 64, height: 32, scale: 0, expected: 18},
		{name: "too large", width: 1 << 20, height: 1 << 20, scale: 1, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaxFracBits(tt.width, tt.height, tt.scale))
		})
	}

	// With a scale of two, the union of two image sized boxes still fits.
	limit := MaxFracBits(384, 288, 2)
	whole := IntBox(0, 0, 384, 288, limit)
	assert.Equal(t, fp.FromInt(384*288, limit), whole.Area())
	assert.Equal(t, fp.FromInt(1, limit), IoU(whole, whole))
	assert.Equal(t, fp.New(1, 2, limit), IoU(whole, IntBox(0, 0, 192, 288, limit)))
}

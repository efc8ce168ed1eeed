package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// gimbalLock is the |r[1][2]| above which pitch is taken as ±π/2 and roll is
// folded into yaw.
const gimbalLock = 0.998

// EulerAngles are rotations in radians: pitch around x, yaw around y and
// roll around z, applied roll first, then pitch, then yaw.
type EulerAngles struct {
	Yaw   float64
	Pitch float64
	Roll  float64
}

// Degrees returns the angles in degrees.
func (e EulerAngles) Degrees() EulerAngles {
	const k = 180 / math.Pi
	return EulerAngles{Yaw: e.Yaw * k, Pitch: e.Pitch * k, Roll: e.Roll * k}
}

// EulerAngles decomposes r.
func (r *Rotation) EulerAngles() EulerAngles {
	d := r.Dense()

	switch s := d.At(1, 2); {
	case s > gimbalLock:
		return EulerAngles{Yaw: -math.Atan2(d.At(0, 1), d.At(0, 0)), Pitch: -math.Pi / 2}
	case s < -gimbalLock:
		return EulerAngles{Yaw: math.Atan2(d.At(0, 1), d.At(0, 0)), Pitch: math.Pi / 2}
	default:
		return EulerAngles{
			Yaw:   math.Atan2(d.At(0, 2), d.At(2, 2)),
			Pitch: math.Asin(-s),
			Roll:  math.Atan2(d.At(1, 0), d.At(1, 1)),
		}
	}
}

// OrthonormalityError returns the Frobenius norm of RᵀR - I, which is zero
// for an exact rotation.
func (r *Rotation) OrthonormalityError() float64 {
	d := r.Dense()
	var product mat.Dense
	product.Mul(d.T(), d)
	product.Sub(&product, mat.NewDiagDense(3, []float64{1, 1, 1}))
	return mat.Norm(&product, 2)
}

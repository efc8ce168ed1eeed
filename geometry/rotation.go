package geometry

import (
	"gonum.org/v1/gonum/mat"

	fp "github.com/nvr-ai/go-detect/fixedpoint"
)

// Vec3 is a 3D column vector.
type Vec3 [3]fp.Scalar

// Rotation is a 3x3 matrix stored row major.
type Rotation [3][3]fp.Scalar

// RotationBuilder turns six decoded values into a rotation matrix. It
// reports false when the values do not describe a rotation.
type RotationBuilder func(raw [6]fp.Scalar, out *Rotation) bool

// Cross returns a × b.
func Cross(a, b Vec3) Vec3 {
	return Vec3{
		fp.Sub(fp.Mul(a[1], b[2]), fp.Mul(a[2], b[1])),
		fp.Sub(fp.Mul(a[2], b[0]), fp.Mul(a[0], b[2])),
		fp.Sub(fp.Mul(a[0], b[1]), fp.Mul(a[1], b[0])),
	}
}

// Norm returns the euclidean length of v.
func (v Vec3) Norm() fp.Scalar {
	return fp.Sqrt(fp.Add(fp.Add(fp.Sqr(v[0]), fp.Sqr(v[1])), fp.Sqr(v[2])))
}

// Scale divides every component by d.
func (v Vec3) Scale(d fp.Scalar) Vec3 {
	return Vec3{fp.Div(v[0], d), fp.Div(v[1], d), fp.Div(v[2], d)}
}

// Column returns column j of r.
func (r *Rotation) Column(j int) Vec3 {
	return Vec3{r[0][j], r[1][j], r[2][j]}
}

// SetColumn overwrites column j of r.
func (r *Rotation) SetColumn(j int, v Vec3) {
	r[0][j], r[1][j], r[2][j] = v[0], v[1], v[2]
}

// Zero sets every coefficient of r to zero with fracBits fractional bits.
func (r *Rotation) Zero(fracBits uint8) {
	zero := fp.FromInt(0, fracBits)
	for i := range r {
		for j := range r[i] {
			r[i][j] = zero
		}
	}
}

// Dense returns r as a float64 gonum matrix.
func (r *Rotation) Dense() *mat.Dense {
	data := make([]float64, 0, 9)
	for i := range r {
		for j := range r[i] {
			data = append(data, float64(r[i][j].Float32()))
		}
	}
	return mat.NewDense(3, 3, data)
}

// NewRotationBuilder returns the default builder. The six raw values are
// mapped from origin onto image. The first three form the first column once
// normalised. The third column is the normalised cross product of the first
// column with the last three values, and the second column closes the basis.
func NewRotationBuilder(origin, image fp.Range) RotationBuilder {
	mapper := fp.Mapper(origin, image)
	return func(raw [6]fp.Scalar, out *Rotation) bool {
		var mapped [6]fp.Scalar
		for i, v := range raw {
			mapped[i] = mapper(v)
		}
		zero := fp.FromInt(0, mapped[0].FracBits)

		v1 := Vec3{mapped[0], mapped[1], mapped[2]}
		n1 := v1.Norm()
		if fp.Eq(n1, zero) {
			return false
		}
		v1 = v1.Scale(n1)

		v4 := Vec3{mapped[3], mapped[4], mapped[5]}
		v3 := Cross(v1, v4)
		n3 := v3.Norm()
		if fp.Eq(n3, zero) {
			return false
		}
		v3 = v3.Scale(n3)

		v2 := Cross(v3, v1)

		out.SetColumn(0, v1)
		out.SetColumn(1, v2)
		out.SetColumn(2, v3)
		return true
	}
}

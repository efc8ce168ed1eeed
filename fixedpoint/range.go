package fixedpoint

import "github.com/pkg/errors"

// Range is a closed interval [Min, Max].
type Range struct {
	Min Scalar
	Max Scalar
}

// NewRange returns [lower, upper]. It panics if lower > upper.
func NewRange(lower, upper Scalar) Range {
	if Gt(lower, upper) {
		panic(errors.Errorf("fixedpoint: range bounds out of order: %d > %d", lower.N, upper.N))
	}
	return Range{Min: lower, Max: upper}
}

// Size returns Max - Min.
func (r Range) Size() Scalar {
	return Sub(r.Max, r.Min)
}

// Map linearly maps n from the origin range onto the image range.
func Map(n Scalar, origin, image Range) Scalar {
	result := Sub(n, origin.Min)
	result = Mul(result, image.Size())
	result = Div(result, origin.Size())
	return Add(result, image.Min)
}

// Mapper returns a function mapping values from origin onto image.
func Mapper(origin, image Range) func(Scalar) Scalar {
	return func(n Scalar) Scalar {
		return Map(n, origin, image)
	}
}

// Package fixedpoint - Integer backed real numbers used by the post-processing core.
//
// A Scalar represents the real number N * 2^-FracBits. Additions, subtractions
// and comparisons require both operands to share the same number of fractional
// bits; multiplications and divisions keep the representation of the first
// operand. Violating a precondition is a programming error and panics.
package fixedpoint

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
)

// Scalar is a signed 32-bit fixed point number.
type Scalar struct {
	// N is the raw mantissa.
	N int32
	// FracBits is the number of fractional bits of N.
	FracBits uint8
}

// New returns the fixed point representation of num / den.
//
// Arguments:
//   - num: The numerator.
//   - den: The denominator. Must not be zero.
//   - fracBits: The number of fractional bits of the result.
//
// Returns:
//   - Scalar: num / den, truncated toward zero.
//
// @example
// half := fixedpoint.New(1, 2, 10) // N == 512
func New(num, den int32, fracBits uint8) Scalar {
	if den == 0 {
		panic(errors.New("fixedpoint: denominator equal to 0"))
	}
	return Scalar{N: (num << fracBits) / den, FracBits: fracBits}
}

// FromInt returns the fixed point representation of the integer n.
// It panics if n cannot be represented with 32-fracBits integer bits.
func FromInt(n int32, fracBits uint8) Scalar {
	if (n >= 0 && n > math.MaxInt32>>fracBits) || (n < 0 && n < math.MinInt32>>fracBits) {
		panic(errors.Errorf(
			"fixedpoint: integer %d cannot be represented using %d fractional bits", n, fracBits))
	}
	return Scalar{N: n << fracBits, FracBits: fracBits}
}

// FromRaw reinterprets n as a mantissa with fracBits fractional bits.
func FromRaw(n int32, fracBits uint8) Scalar {
	return Scalar{N: n, FracBits: fracBits}
}

// FromFloat32 returns the greatest fixed point number lower than or equal to f.
func FromFloat32(f float32, fracBits uint8) Scalar {
	return Scalar{N: int32(math32.Floor(f * float32(uint32(1)<<fracBits))), FracBits: fracBits}
}

// Max returns the greatest representable number for fracBits.
func Max(fracBits uint8) Scalar {
	return Scalar{N: math.MaxInt32, FracBits: fracBits}
}

// Min returns the lowest representable number for fracBits.
func Min(fracBits uint8) Scalar {
	return Scalar{N: math.MinInt32, FracBits: fracBits}
}

// Float32 returns the floating point value of s.
func (s Scalar) Float32() float32 {
	return float32(s.N) / float32(uint32(1)<<s.FracBits)
}

// Convert returns s represented with fracBits fractional bits.
// Lowering the precision truncates toward negative infinity.
func (s Scalar) Convert(fracBits uint8) Scalar {
	if s.FracBits >= fracBits {
		return Scalar{N: s.N >> (s.FracBits - fracBits), FracBits: fracBits}
	}
	return Scalar{N: s.N << (fracBits - s.FracBits), FracBits: fracBits}
}

// IsNegative reports whether s < 0.
func (s Scalar) IsNegative() bool {
	return s.N < 0
}

// Floor returns the greatest integer lower than or equal to s.
func (s Scalar) Floor() int32 {
	return s.N >> s.FracBits
}

// Ceil returns the lowest integer greater than or equal to s.
func (s Scalar) Ceil() int32 {
	result := s.N >> s.FracBits
	if s.N&(int32(1)<<s.FracBits-1) != 0 {
		result++
	}
	return result
}

// Round returns the nearest integer to s, rounding halves to even.
func (s Scalar) Round() int32 {
	if s.FracBits == 0 {
		return s.N
	}
	fracMask := int32(1)<<s.FracBits - 1
	half := int32(1) << (s.FracBits - 1)
	frac := s.N & fracMask
	floor := s.N >> s.FracBits
	switch {
	case frac == half:
		if floor%2 == 0 {
			return floor
		}
		return floor + 1
	case frac > half:
		return floor + 1
	default:
		return floor
	}
}

func mustMatch(op string, a, b Scalar) {
	if a.FracBits != b.FracBits {
		panic(errors.Errorf("fixedpoint: %s: fractional bits differ: %d != %d", op, a.FracBits, b.FracBits))
	}
}

// Add returns a + b.
func Add(a, b Scalar) Scalar {
	mustMatch("add", a, b)
	return Scalar{N: a.N + b.N, FracBits: a.FracBits}
}

// AddMax0 returns max(a + b, 0).
func AddMax0(a, b Scalar) Scalar {
	mustMatch("add", a, b)
	n := a.N + b.N
	if n < 0 {
		n = 0
	}
	return Scalar{N: n, FracBits: a.FracBits}
}

// Sub returns a - b.
func Sub(a, b Scalar) Scalar {
	mustMatch("sub", a, b)
	return Scalar{N: a.N - b.N, FracBits: a.FracBits}
}

// Mul returns a * b using the representation of a. The intermediate product
// is computed on 64 bits; the result is truncated back to 32 bits.
func Mul(a, b Scalar) Scalar {
	n := (int64(a.N) * int64(b.N)) >> b.FracBits
	return Scalar{N: int32(n), FracBits: a.FracBits}
}

// Sqr returns a * a.
func Sqr(a Scalar) Scalar {
	return Mul(a, a)
}

// Div returns a / b using the representation of a. It panics if b is zero.
func Div(a, b Scalar) Scalar {
	if b.N == 0 {
		panic(errors.New("fixedpoint: division by 0"))
	}
	n := (int64(a.N) << b.FracBits) / int64(b.N)
	return Scalar{N: int32(n), FracBits: a.FracBits}
}

// LShift multiplies a by 2^n.
func LShift(a Scalar, n uint) Scalar {
	return Scalar{N: a.N << n, FracBits: a.FracBits}
}

// RShift divides a by 2^n, rounding toward negative infinity.
func RShift(a Scalar, n uint) Scalar {
	return Scalar{N: a.N >> n, FracBits: a.FracBits}
}

// Abs returns |a|.
func Abs(a Scalar) Scalar {
	if a.N < 0 {
		return Scalar{N: -a.N, FracBits: a.FracBits}
	}
	return a
}

// Neg returns -a.
func Neg(a Scalar) Scalar {
	return Scalar{N: -a.N, FracBits: a.FracBits}
}

// Gt reports whether a > b.
func Gt(a, b Scalar) bool {
	mustMatch("gt", a, b)
	return a.N > b.N
}

// Ge reports whether a >= b.
func Ge(a, b Scalar) bool {
	mustMatch("ge", a, b)
	return a.N >= b.N
}

// Lt reports whether a < b.
func Lt(a, b Scalar) bool {
	mustMatch("lt", a, b)
	return a.N < b.N
}

// Le reports whether a <= b.
func Le(a, b Scalar) bool {
	mustMatch("le", a, b)
	return a.N <= b.N
}

// Eq reports whether a == b.
func Eq(a, b Scalar) bool {
	mustMatch("eq", a, b)
	return a.N == b.N
}

// Ne reports whether a != b.
func Ne(a, b Scalar) bool {
	mustMatch("ne", a, b)
	return a.N != b.N
}

// Between reports whether lower <= v <= upper.
func Between(v, lower, upper Scalar) bool {
	return Ge(v, lower) && Le(v, upper)
}

// MaxOf returns the greatest of a and b.
func MaxOf(a, b Scalar) Scalar {
	if Gt(a, b) {
		return a
	}
	return b
}

// MinOf returns the lowest of a and b.
func MinOf(a, b Scalar) Scalar {
	if Lt(a, b) {
		return a
	}
	return b
}

// Clip restricts v to [lower, upper].
func Clip(v, lower, upper Scalar) Scalar {
	mustMatch("clip", lower, upper)
	return MaxOf(lower, MinOf(upper, v))
}

// IsCloseToZero reports whether |a| is at most one unit in the last place.
func IsCloseToZero(a Scalar) bool {
	tolerance := Scalar{N: 1, FracBits: a.FracBits}
	return Ge(a, Neg(tolerance)) && Le(a, tolerance)
}

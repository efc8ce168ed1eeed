package fixedpoint

// Approximations of common angles using 10 fractional bits. They are
// converted to the precision of the operand they are combined with.
var (
	QuarterPi = Scalar{N: 804, FracBits: 10}
	HalfPi    = Scalar{N: 1608, FracBits: 10}
	Pi        = Scalar{N: 3217, FracBits: 10}
	Tau       = Scalar{N: 3217 * 2, FracBits: 10}
)

// sigmoidScale is 1/π with 10 fractional bits.
var sigmoidScale = Scalar{N: 325, FracBits: 10}

// Atan approximates arctan(x) in radians.
//
// The core interval [0, 1] uses
//
//	atan(x) ≈ π/4·x - x·(|x| - 1)·(0.2447 + 0.0663·|x|)
//
// (Rajan, Wang, Inkol & Joyal, 2006). Negative inputs use atan(-x) = -atan(x)
// and inputs greater than 1 use atan(x) = π/2 - atan(1/x).
func Atan(x Scalar) Scalar {
	fracBits := x.FracBits
	one := FromInt(1, fracBits)
	zero := FromInt(0, fracBits)

	if Lt(x, zero) {
		return Neg(Atan(Neg(x)))
	}

	if Gt(x, one) {
		return Sub(HalfPi.Convert(fracBits), Atan(Div(one, x)))
	}

	absX := Abs(x)
	return Sub(
		Mul(QuarterPi.Convert(fracBits), x),
		Mul(x, Mul(
			Sub(absX, one),
			Add(New(2447, 10000, fracBits), Mul(New(663, 10000, fracBits), absX)),
		)),
	)
}

// Sigmoid maps a logit to (0, 1) using the arctangent as a squashing
// function: (atan(x) + π/2) / π.
func Sigmoid(x Scalar) Scalar {
	return Mul(Add(Atan(x), HalfPi.Convert(x.FracBits)), sigmoidScale)
}

// SigmoidWithParams returns Sigmoid(a·x + b).
func SigmoidWithParams(x, a, b Scalar) Scalar {
	return Sigmoid(Add(Mul(x, a), b))
}

// RadiansToDegrees converts an angle in radians to degrees.
func RadiansToDegrees(radians Scalar) Scalar {
	return Div(Mul(radians, FromInt(360, radians.FracBits)), Tau.Convert(radians.FracBits))
}

// DegreesToRadians converts an angle in degrees to radians.
func DegreesToRadians(degrees Scalar) Scalar {
	return Div(Mul(degrees, Tau.Convert(degrees.FracBits)), FromInt(360, degrees.FracBits))
}

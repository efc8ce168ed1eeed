package fixedpoint

import "github.com/pkg/errors"

// ISqrt returns the greatest integer r such that r*r <= n.
// It panics if n is negative.
func ISqrt(n int32) int32 {
	if n < 0 {
		panic(errors.Errorf("fixedpoint: square root of negative number %d", n))
	}

	q := int32(1)
	r := int32(0)

	if n >= 1<<30 {
		// q would overflow while searching for the highest power of 4.
		q = 1 << 30
		n = n - r - q
		r += q
	} else {
		for q <= n {
			q <<= 2
		}
	}

	for q > 1 {
		q >>= 2
		t := n - r - q
		r >>= 1
		if t >= 0 {
			n = t
			r += q
		}
	}
	return r
}

// Sqrt returns the greatest representable number whose square is lower than
// or equal to a. The representation of a must use an even number of
// fractional bits and a must not be negative.
func Sqrt(a Scalar) Scalar {
	if a.N < 0 {
		panic(errors.Errorf("fixedpoint: square root of negative number %d (%d bits)", a.N, a.FracBits))
	}
	if a.FracBits%2 != 0 {
		panic(errors.Errorf("fixedpoint: square root needs an even number of fractional bits, got %d", a.FracBits))
	}

	// sqrt(n * 2^-f) = (sqrt(n) * 2^(f/2)) * 2^-f, and
	// isqrt(n) <= sqrt(n) < isqrt(n)+1, so the answer lies within
	// [isqrt(n) << f/2, (isqrt(n)+1) << f/2). Bisect that interval.
	half := a.FracBits / 2
	base := int64(ISqrt(a.N)) << half

	left := int64(0)
	right := int64(1)<<half - 1
	target := int64(a.N) << a.FracBits

	// Invariant: (base + left)^2 <= target.
	for left != right {
		middle := (left + right) / 2
		candidate := base + middle
		squared := candidate * candidate

		if squared == target {
			return Scalar{N: int32(candidate), FracBits: a.FracBits}
		}

		if squared < target {
			if left != middle {
				left = middle
				continue
			}
			// Only left and right remain.
			candidate = base + right
			if candidate*candidate <= target {
				left = right
			} else {
				right = left
			}
		} else {
			right = middle - 1
		}
	}
	return Scalar{N: int32(base + left), FracBits: a.FracBits}
}

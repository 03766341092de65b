package mathx

import "math"

// Epsilon is the default tolerance for floating-point comparisons of
// probabilities and currency amounts.
const Epsilon = 1e-8

// FloatingEqual reports whether a and b are equal within Epsilon.
func FloatingEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// FloatingGreaterEqual reports whether a >= b, treating values within
// Epsilon as equal.
func FloatingGreaterEqual(a, b float64) bool {
	return a > b || FloatingEqual(a, b)
}

// FloatingLesserEqual reports whether a <= b, treating values within
// Epsilon as equal.
func FloatingLesserEqual(a, b float64) bool {
	return a < b || FloatingEqual(a, b)
}

// Clamp restricts v to the closed interval [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

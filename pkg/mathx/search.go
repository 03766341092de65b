package mathx

import (
	"errors"
	"fmt"
)

// ErrNoConvergence is returned when an iterative solver exhausts its
// iteration cap without reaching tolerance.
var ErrNoConvergence = errors.New("solver did not converge")

// ConvergenceError wraps ErrNoConvergence with the solver context.
type ConvergenceError struct {
	Op         string
	Iterations int
	Residual   float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s: no convergence after %d iterations (residual %g)", e.Op, e.Iterations, e.Residual)
}

func (e *ConvergenceError) Unwrap() error { return ErrNoConvergence }

// BinarySearchIterations bounds every bisection solve. Practical
// brackets collapse to adjacent floats within ~60 halvings; hitting the
// cap means the bracket was pathologically wide for the root sought.
const BinarySearchIterations = 100

// BinarySearch finds x in [min, max] such that cmp(x) is approximately
// zero, assuming cmp is monotonically increasing. It bisects until the
// comparator is within Epsilon or the interval collapses.
func BinarySearch(min, max float64, cmp func(x float64) float64) (float64, error) {
	mid := min
	for i := 0; i < BinarySearchIterations; i++ {
		mid = min + (max-min)/2
		if mid == min || mid == max {
			// Interval collapsed to adjacent floats; closest answer.
			return mid, nil
		}
		c := cmp(mid)
		switch {
		case FloatingEqual(c, 0):
			return mid, nil
		case c > 0:
			max = mid
		default:
			min = mid
		}
	}
	return mid, &ConvergenceError{Op: "mathx.BinarySearch", Iterations: BinarySearchIterations, Residual: cmp(mid)}
}

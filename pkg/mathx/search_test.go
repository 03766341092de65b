package mathx

import (
	"errors"
	"math"
	"testing"
)

func TestBinarySearch_FindsRoot(t *testing.T) {
	// x^2 - 2 = 0 over [0, 2]
	x, err := BinarySearch(0, 2, func(x float64) float64 {
		return x*x - 2
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(x-math.Sqrt2) > 1e-7 {
		t.Errorf("Expected sqrt(2)=%g, got %g", math.Sqrt2, x)
	}
}

func TestBinarySearch_LinearRoot(t *testing.T) {
	x, err := BinarySearch(-10, 10, func(x float64) float64 {
		return 3*x - 1.5
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !FloatingEqual(x, 0.5) {
		t.Errorf("Expected 0.5, got %g", x)
	}
}

func TestBinarySearch_CollapsedInterval(t *testing.T) {
	// Root lies outside the bracket; the interval collapses to an
	// endpoint instead of erroring.
	x, err := BinarySearch(0, 1, func(x float64) float64 {
		return x - 5
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x < 0.999 {
		t.Errorf("Expected collapse near upper bound, got %g", x)
	}
}

func TestBinarySearch_NonMonotonicComparator(t *testing.T) {
	// A comparator that flips sign randomly never settles on a root; the
	// bracket still collapses to adjacent floats and returns cleanly.
	flip := 1.0
	x, err := BinarySearch(0, 1, func(x float64) float64 {
		flip = -flip
		return flip
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x < 0 || x > 1 {
		t.Errorf("Expected result inside [0,1], got %g", x)
	}
}

func TestBinarySearch_IterationCap(t *testing.T) {
	// A bracket spanning the full float64 range cannot collapse within
	// the cap; the solver must surface a typed convergence error.
	_, err := BinarySearch(0, math.MaxFloat64, func(x float64) float64 {
		return 1
	})
	if err == nil {
		t.Fatal("Expected convergence error")
	}
	if !errors.Is(err, ErrNoConvergence) {
		t.Errorf("Expected ErrNoConvergence, got %v", err)
	}
	var ce *ConvergenceError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected *ConvergenceError, got %T", err)
	}
	if ce.Iterations != BinarySearchIterations {
		t.Errorf("Expected %d iterations, got %d", BinarySearchIterations, ce.Iterations)
	}
	if ce.Residual != 1 {
		t.Errorf("Expected residual 1, got %g", ce.Residual)
	}
}

func TestFloatingEqual(t *testing.T) {
	if !FloatingEqual(1.0, 1.0+1e-10) {
		t.Error("Values within epsilon should compare equal")
	}
	if FloatingEqual(1.0, 1.001) {
		t.Error("Values beyond epsilon should not compare equal")
	}
}

func TestFloatingGreaterEqual(t *testing.T) {
	if !FloatingGreaterEqual(1.0-1e-10, 1.0) {
		t.Error("Near-equal values should satisfy >=")
	}
	if FloatingGreaterEqual(0.9, 1.0) {
		t.Error("0.9 >= 1.0 should be false")
	}
	if !FloatingGreaterEqual(2.0, 1.0) {
		t.Error("2.0 >= 1.0 should be true")
	}
}

func TestClamp(t *testing.T) {
	cases := []struct {
		name     string
		v, lo, hi float64
		want     float64
	}{
		{"inside", 0.5, 0, 1, 0.5},
		{"below", -1, 0, 1, 0},
		{"above", 2, 0, 1, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clamp(tc.v, tc.lo, tc.hi); got != tc.want {
				t.Errorf("Clamp(%g, %g, %g) = %g, want %g", tc.v, tc.lo, tc.hi, got, tc.want)
			}
		})
	}
}

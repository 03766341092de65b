// Package cpmm implements constant-product market-maker pricing for a
// single two-sided pool: the probability curve, share purchase and sale
// math, and matching of incoming trades against resting limit orders.
//
// Every function is a pure computation over its inputs. Callers own
// serialization per contract: the snapshot a calculation reads must
// still be current when its result is committed.
package cpmm

import (
	"math"

	"predict_go/internal/domain"
)

// State is one pool plus its curve weight, the unit every calculation
// here operates on.
type State struct {
	Pool domain.Pool
	P    float64
}

// AnswerState returns the fixed-weight state of a multi-answer pool.
func AnswerState(a *domain.Answer) State {
	return State{Pool: a.Pool(), P: domain.MultiP}
}

// Probability returns P(YES) for the pool. Reserves relate inversely to
// probability: the more YES shares the pool holds, the cheaper they
// are.
//
//	P(YES) = p*no / ((1-p)*yes + p*no)
func Probability(pool domain.Pool, p float64) float64 {
	return p * pool.No / ((1-p)*pool.Yes + p*pool.No)
}

// Validate rejects non-positive reserves and out-of-range weights
// before any math runs on them.
func (s State) Validate() error {
	if !s.Pool.Valid() {
		return &domain.PreconditionError{Field: "pool", Err: domain.ErrNonPositiveReserves}
	}
	if s.P <= 0 || s.P >= 1 || math.IsNaN(s.P) {
		return &domain.PreconditionError{Field: "p", Err: domain.ErrInvalidLimitProb}
	}
	return nil
}

// Prob returns the state's current P(YES).
func (s State) Prob() float64 {
	return Probability(s.Pool, s.P)
}

// Liquidity returns the conserved quantity of the curve,
// yes^p * no^(1-p).
func Liquidity(pool domain.Pool, p float64) float64 {
	return math.Pow(pool.Yes, p) * math.Pow(pool.No, 1-p)
}

// AddLiquidity injects amount into both reserves and solves for the new
// weight that keeps the displayed probability unchanged.
func AddLiquidity(pool domain.Pool, p, amount float64) (domain.Pool, float64) {
	prob := Probability(pool, p)

	y, n := pool.Yes, pool.No
	newP := prob * (amount + y) / (amount - n*(prob-1) + prob*y)
	newPool := domain.Pool{Yes: y + amount, No: n + amount}
	return newPool, newP
}

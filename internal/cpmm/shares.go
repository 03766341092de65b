package cpmm

import (
	"math"

	"predict_go/internal/domain"
	"predict_go/pkg/mathx"
)

// Shares solves for the shares bought with betAmount on the given
// outcome such that the curve invariant yes^p * no^(1-p) is conserved:
//
//	(y + b - s)^p * (n + b)^(1-p) = y^p * n^(1-p)   (YES side)
//
// The solution is closed-form; no fees are applied here.
func Shares(pool domain.Pool, p, betAmount float64, outcome domain.Outcome) float64 {
	if betAmount == 0 {
		return 0
	}

	y, n := pool.Yes, pool.No
	k := math.Pow(y, p) * math.Pow(n, 1-p)

	if outcome == domain.OutcomeYes {
		return y + betAmount - math.Pow(k*math.Pow(betAmount+n, p-1), 1/p)
	}
	return n + betAmount - math.Pow(k*math.Pow(betAmount+y, -p), 1/(1-p))
}

// feeIterations bounds the fixed point solving for the post-fee average
// probability; the iteration contracts fast enough that ten rounds land
// well inside currency precision.
const feeIterations = 10

// Fees computes the taker fee for a bet by iterating toward the average
// probability of the bet net of fees: charging a fee shrinks the bet,
// which moves the average probability slightly less far.
func Fees(s State, betAmount float64, outcome domain.Outcome) (remaining float64, fees domain.Fees) {
	fee := 0.0
	for i := 0; i < feeIterations; i++ {
		afterFee := betAmount - fee
		shares := Shares(s.Pool, s.P, afterFee, outcome)
		avgProb := afterFee / shares
		fee = domain.TakerFee(shares, avgProb)
	}
	if betAmount == 0 {
		fee = 0
	}
	return betAmount - fee, domain.SplitFees(fee)
}

// PurchaseResult is the outcome of applying one pool trade.
type PurchaseResult struct {
	Shares float64
	State  State
	Fees   domain.Fees
}

// Purchase applies a bet to the pool: deducts fees, buys shares along
// the curve, and folds the liquidity fee back into both reserves.
// freeFees skips the fee (used for arbitrage legs whose fees are
// accounted on the primary leg).
func Purchase(s State, betAmount float64, outcome domain.Outcome, freeFees bool) PurchaseResult {
	remaining, fees := betAmount, domain.NoFees
	if !freeFees {
		remaining, fees = Fees(s, betAmount, outcome)
	}

	shares := Shares(s.Pool, s.P, remaining, outcome)
	y, n := s.Pool.Yes, s.Pool.No
	lf := fees.LiquidityFee

	var postPool domain.Pool
	if outcome == domain.OutcomeYes {
		postPool = domain.Pool{Yes: y - shares + remaining + lf, No: n + remaining + lf}
	} else {
		postPool = domain.Pool{Yes: y + remaining + lf, No: n - shares + remaining + lf}
	}

	newPool, newP := AddLiquidity(postPool, s.P, lf)
	return PurchaseResult{Shares: shares, State: State{Pool: newPool, P: newP}, Fees: fees}
}

// AmountToProb returns the bet amount that moves the pool's probability
// to prob on the given outcome. Unreachable targets return +Inf.
func AmountToProb(s State, prob float64, outcome domain.Outcome) float64 {
	if prob <= 0 || prob >= 1 || math.IsNaN(prob) {
		return math.Inf(1)
	}
	if outcome == domain.OutcomeNo {
		prob = 1 - prob
	}

	p := s.P
	y, n := s.Pool.Yes, s.Pool.No
	k := math.Pow(y, p) * math.Pow(n, 1-p)
	if outcome == domain.OutcomeYes {
		r := p * (prob - 1) / ((p - 1) * prob)
		return math.Pow(r, -p) * (k - n*math.Pow(r, p))
	}
	r := (1 - p) * (prob - 1) / (-p * prob)
	return math.Pow(r, p-1) * (k - y*math.Pow(r, 1-p))
}

// AmountToProbWithFees is AmountToProb grossed up by the taker fee on
// the shares acquired along the way.
func AmountToProbWithFees(s State, prob float64, outcome domain.Outcome) float64 {
	amount := AmountToProb(s, prob, outcome)
	shares := Shares(s.Pool, s.P, amount, outcome)
	avgProb := amount / shares
	return amount + domain.TakerFee(shares, avgProb)
}

// AmountForSharesFixedP returns the bet amount that buys exactly shares
// on the given outcome, valid only for the fixed multi-answer weight
// p = 0.5 where the quadratic admits a closed form.
func AmountForSharesFixedP(s State, shares float64, outcome domain.Outcome) (float64, error) {
	if !mathx.FloatingEqual(s.P, domain.MultiP) {
		return 0, &domain.PreconditionError{Field: "p", Err: domain.ErrWrongMechanism}
	}

	y, n := s.Pool.Yes, s.Pool.No
	if outcome == domain.OutcomeYes {
		return (shares - y - n + math.Sqrt(4*n*shares+math.Pow(y+n-shares, 2))) / 2, nil
	}
	return (shares - y - n + math.Sqrt(4*y*shares+math.Pow(y+n-shares, 2))) / 2, nil
}

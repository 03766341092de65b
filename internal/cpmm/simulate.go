package cpmm

import (
	"predict_go/internal/domain"
)

// BetResult is the full output of simulating one trade against a single
// pool: fills in execution order, replacement pool state, pricing
// before and after, and any recoverable condition hit on the way.
type BetResult struct {
	State          State
	Takers         []domain.Fill
	Makers         []domain.Maker
	OrdersToCancel []*domain.LimitOrder
	TotalFees      domain.Fees

	ProbBefore float64
	ProbAfter  float64
	Amount     float64 // amount actually filled
	Shares     float64 // shares acquired

	CalcErr *domain.CalcError
}

// SimulateBet prices a trade of amount on outcome against the book and
// the pool.
//
// A zero amount is a no-op with ProbBefore == ProbAfter. A market order
// (nil limitProb) that would push the probability past
// [MinProb, MaxProb] is clamped to the maximum fillable amount and the
// shortfall reported in CalcErr. A limit order simply rests whatever
// cannot fill.
func SimulateBet(s State, outcome domain.Outcome, amount float64, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*BetResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if amount == 0 {
		prob := s.Prob()
		return &BetResult{State: s, ProbBefore: prob, ProbAfter: prob}, nil
	}

	res, err := ComputeFills(s, outcome, amount, limitProb, orders, balances, now)
	if err != nil {
		return nil, err
	}

	var calcErr *domain.CalcError
	if limitProb == nil {
		probAfter := res.State.Prob()
		if probAfter > domain.MaxProb || probAfter < domain.MinProb {
			// Re-run as a limit order pinned at the bound: orders at
			// better prices still fill, the pool fills up to the bound,
			// and the remainder is the reported shortfall.
			bound := domain.MaxProb
			if outcome == domain.OutcomeNo {
				bound = domain.MinProb
			}
			res, err = ComputeFills(s, outcome, amount, &bound, orders, balances, now)
			if err != nil {
				return nil, err
			}
			calcErr = &domain.CalcError{
				Kind:            domain.CalcErrorProbBound,
				RequestedAmount: amount,
				FilledAmount:    sumAmounts(res.Takers),
				Detail:          "trade clamped at probability bound",
			}
		}
	}

	return &BetResult{
		State:          res.State,
		Takers:         res.Takers,
		Makers:         res.Makers,
		OrdersToCancel: res.OrdersToCancel,
		TotalFees:      res.TotalFees,
		ProbBefore:     s.Prob(),
		ProbAfter:      res.State.Prob(),
		Amount:         sumAmounts(res.Takers),
		Shares:         sumShares(res.Takers),
		CalcErr:        calcErr,
	}, nil
}

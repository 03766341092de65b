package cpmm

import (
	"predict_go/internal/domain"
	"predict_go/pkg/mathx"
)

// AmountForShares solves for the bet amount that acquires exactly the
// given number of shares against the current book and pool, by binary
// search between the current-probability price and 1 per share.
func AmountForShares(s State, shares float64, outcome domain.Outcome, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (float64, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}

	prob := s.Prob()
	minAmount := shares * prob
	if outcome == domain.OutcomeNo {
		minAmount = shares * (1 - prob)
	}

	var fillErr error
	amount, err := mathx.BinarySearch(minAmount, shares, func(amount float64) float64 {
		res, err := ComputeFills(s, outcome, amount, nil, orders, balances, now)
		if err != nil {
			fillErr = err
			return 0
		}
		return sumShares(res.Takers) - shares
	})
	if fillErr != nil {
		return 0, fillErr
	}
	return amount, err
}

// AmountForSharesFixedPWithOrders is the fast fixed-p variant used by
// the multi-answer solver: it walks the fills of an oversized trade to
// find the exact amount, splitting the final fill proportionally when
// it lands inside a resting order, and closed-form when it lands in the
// pool.
func AmountForSharesFixedPWithOrders(s State, shares float64, outcome domain.Outcome, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (float64, error) {
	// Betting the full share count always overshoots: every share costs
	// less than 1.
	res, err := ComputeFills(s, outcome, shares, nil, orders, balances, now)
	if err != nil {
		return 0, err
	}

	currShares, currAmount := 0.0, 0.0
	for _, fill := range res.Takers {
		if mathx.FloatingEqual(currShares+fill.Shares, shares) {
			return currAmount + fill.Amount, nil
		}
		if currShares+fill.Shares > shares {
			if fill.MatchedOrderID != "" {
				// Take the slice of this order that lands exactly on
				// the target.
				remainingShares := shares - currShares
				return currAmount + fill.Amount*(remainingShares/fill.Shares), nil
			}
			// Final fill came from the pool; solve it closed-form
			// below from the state at currAmount.
			break
		}
		currShares += fill.Shares
		currAmount += fill.Amount
	}
	remainingShares := shares - currShares

	// Re-run up to currAmount to recover the pool state at the point
	// the final pool fill starts.
	partial, err := ComputeFills(s, outcome, currAmount, nil, orders, balances, now)
	if err != nil {
		return 0, err
	}
	fillAmount, err := AmountForSharesFixedP(partial.State, remainingShares, outcome)
	if err != nil {
		return 0, err
	}
	fee := domain.TakerFee(remainingShares, fillAmount/remainingShares)
	return currAmount + fillAmount + fee, nil
}

func sumShares(fills []domain.Fill) float64 {
	total := 0.0
	for _, f := range fills {
		total += f.Shares
	}
	return total
}

func sumAmounts(fills []domain.Fill) float64 {
	total := 0.0
	for _, f := range fills {
		total += f.Amount
	}
	return total
}

package cpmm

import (
	"math"
	"sort"

	"predict_go/internal/domain"
	"predict_go/pkg/mathx"
)

// FillResult is the outcome of matching one incoming trade against the
// book and the pool: the taker's fills in execution order, the resting
// orders consumed, the post-trade pool state, and the orders whose
// owners ran out of balance along the way.
type FillResult struct {
	Takers         []domain.Fill
	Makers         []domain.Maker
	State          State
	TotalFees      domain.Fees
	OrdersToCancel []*domain.LimitOrder
}

// singleFill is one matching step: either a slice of a resting order or
// a pool trade.
type singleFill struct {
	taker      domain.Fill
	makerOrder *domain.LimitOrder
	makerFill  domain.Maker
	state      State // post-fill pool state when matched against pool
	fees       domain.Fees
}

// computeFill matches as much of amount as possible against either the
// best resting order or the pool, whichever offers the better price at
// the current pool probability. A nil return means no further fill is
// possible (the taker's own limit would be crossed).
func computeFill(amount float64, outcome domain.Outcome, limitProb *float64, s State, matched *domain.LimitOrder, makerBalance float64, hasBalance bool, now int64) *singleFill {
	prob := s.Prob()

	if limitProb != nil {
		lp := *limitProb
		// The taker's limit is crossed once the pool probability is no
		// longer favorable and no resting order beats the limit either.
		if outcome == domain.OutcomeYes {
			matchedLimit := 1.0
			if matched != nil {
				matchedLimit = matched.LimitProb
			}
			if mathx.FloatingGreaterEqual(prob, lp) && matchedLimit > lp {
				return nil
			}
		} else {
			matchedLimit := 0.0
			if matched != nil {
				matchedLimit = matched.LimitProb
			}
			if mathx.FloatingLesserEqual(prob, lp) && matchedLimit < lp {
				return nil
			}
		}
	}

	poolCrossedMaker := matched != nil
	if matched != nil {
		if outcome == domain.OutcomeYes {
			poolCrossedMaker = mathx.FloatingGreaterEqual(prob, matched.LimitProb)
		} else {
			poolCrossedMaker = mathx.FloatingLesserEqual(prob, matched.LimitProb)
		}
	}

	if !poolCrossedMaker {
		// Fill from the pool up to the binding limit: the taker's own
		// limit, or the best maker's price, whichever binds first.
		var limit *float64
		if matched == nil {
			limit = limitProb
		} else {
			bound := matched.LimitProb
			if limitProb != nil {
				if outcome == domain.OutcomeYes {
					bound = math.Min(matched.LimitProb, *limitProb)
				} else {
					bound = math.Max(matched.LimitProb, *limitProb)
				}
			}
			limit = &bound
		}

		buyAmount := amount
		if limit != nil {
			buyAmount = math.Min(amount, AmountToProb(s, *limit, outcome))
		}

		purchase := Purchase(s, buyAmount, outcome, false)
		return &singleFill{
			taker: domain.Fill{
				Amount:    buyAmount,
				Shares:    purchase.Shares,
				Timestamp: now,
			},
			state: purchase.State,
			fees:  purchase.Fees,
		}
	}

	// Fill from the resting order at the maker's price.
	amountRemaining := matched.Remaining()
	amountToFill := amountRemaining
	if hasBalance {
		amountToFill = math.Min(amountRemaining, makerBalance)
	}

	takerPrice, makerPrice := matched.LimitProb, 1-matched.LimitProb
	if outcome == domain.OutcomeNo {
		takerPrice, makerPrice = 1-matched.LimitProb, matched.LimitProb
	}
	shares := math.Min(amount/takerPrice, amountToFill/makerPrice)

	return &singleFill{
		taker: domain.Fill{
			MatchedOrderID: matched.ID,
			Amount:         shares * takerPrice,
			Shares:         shares,
			Timestamp:      now,
		},
		makerOrder: matched,
		makerFill: domain.Maker{
			Order:     matched,
			Amount:    shares * makerPrice,
			Shares:    shares,
			Timestamp: now,
		},
	}
}

// ComputeFills matches an incoming trade of amount on outcome against
// the opposite side of the book, then the pool.
//
// Resting orders are taken best price first (for a YES taker, the
// lowest maker limitProb sells YES cheapest), ties broken by earlier
// creation. A maker fill is capped by the owner's spendable balance;
// owners drained to zero have their orders reported in OrdersToCancel.
// Expiry is evaluated against the single now timestamp for the whole
// pass.
func ComputeFills(s State, outcome domain.Outcome, amount float64, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*FillResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !outcome.Valid() {
		return nil, &domain.PreconditionError{Field: "outcome", Err: domain.ErrUnknownOutcome}
	}
	if amount < 0 || math.IsNaN(amount) {
		return nil, &domain.PreconditionError{Field: "amount", Err: domain.ErrNegativeAmount}
	}
	if limitProb != nil {
		if lp := *limitProb; math.IsNaN(lp) || lp < domain.MinProb || lp > domain.MaxProb {
			return nil, &domain.PreconditionError{Field: "limitProb", Err: domain.ErrInvalidLimitProb}
		}
	}

	sorted := sortedOpposingOrders(orders, outcome, now)

	result := &FillResult{State: s}
	balance := make(map[string]float64, len(balances))
	for id, b := range balances {
		balance[id] = b
	}

	i := 0
	for {
		var matched *domain.LimitOrder
		if i < len(sorted) {
			matched = sorted[i]
		}
		makerBalance, hasBalance := 0.0, false
		if matched != nil {
			makerBalance, hasBalance = balance[matched.UserID], true
			if _, ok := balances[matched.UserID]; !ok {
				hasBalance = false
			}
		}

		fill := computeFill(amount, outcome, limitProb, result.State, matched, makerBalance, hasBalance, now)
		if fill == nil {
			break
		}

		if fill.makerOrder == nil {
			// Matched against the pool.
			result.State = fill.state
			result.TotalFees = result.TotalFees.Add(fill.fees)
			result.Takers = append(result.Takers, fill.taker)
		} else {
			// Matched against a resting order.
			i++
			userID := fill.makerOrder.UserID
			if _, ok := balances[userID]; ok && mathx.FloatingGreaterEqual(fill.makerFill.Amount, 0) {
				balance[userID] -= fill.makerFill.Amount
				if mathx.FloatingEqual(balance[userID], 0) {
					result.OrdersToCancel = append(result.OrdersToCancel, fill.makerOrder)
				}
			}
			if mathx.FloatingEqual(fill.makerFill.Amount, 0) {
				continue
			}
			result.Takers = append(result.Takers, fill.taker)
			result.Makers = append(result.Makers, fill.makerFill)
		}

		amount -= fill.taker.Amount
		if mathx.FloatingEqual(amount, 0) {
			break
		}
	}

	return result, nil
}

// sortedOpposingOrders filters the book down to open opposite-outcome
// orders and sorts them most favorable to the taker first.
func sortedOpposingOrders(orders []*domain.LimitOrder, outcome domain.Outcome, now int64) []*domain.LimitOrder {
	opposing := make([]*domain.LimitOrder, 0, len(orders))
	for _, o := range orders {
		if o.Outcome != outcome && o.Open(now) {
			opposing = append(opposing, o)
		}
	}
	sort.SliceStable(opposing, func(a, b int) bool {
		oa, ob := opposing[a], opposing[b]
		if oa.LimitProb != ob.LimitProb {
			if outcome == domain.OutcomeYes {
				return oa.LimitProb < ob.LimitProb
			}
			return oa.LimitProb > ob.LimitProb
		}
		return oa.CreatedTime < ob.CreatedTime
	})
	return opposing
}

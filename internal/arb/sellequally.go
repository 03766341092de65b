package arb

import (
	"math"

	"predict_go/internal/cpmm"
	"predict_go/internal/domain"
)

// SellYesEqually unwinds YES positions held across several answers (a
// numeric-range position, for example) by repeatedly selling the
// largest share quantity common to the remaining positions. Selling
// equal YES in a subset is realized as buying YES in the complement and
// rebalancing; holding equal YES in every answer redeems at face value
// directly.
func SellYesEqually(answers []*domain.Answer, sharesByAnswerID map[string]float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*MultiBuyResult, error) {
	remaining := make(map[string]float64, len(sharesByAnswerID))
	sellIDs := make(map[string]bool, len(sharesByAnswerID))
	for id, shares := range sharesByAnswerID {
		if shares < 0 || math.IsNaN(shares) {
			return nil, &domain.PreconditionError{Field: "shares", Err: domain.ErrNegativeAmount}
		}
		if shares > 0 {
			remaining[id] = shares
			sellIDs[id] = true
		}
	}
	if len(remaining) == 0 {
		return &MultiBuyResult{UpdatedAnswers: answers}, nil
	}

	var saleLegs, oppositeLegs []*preliminary
	updatedAnswers := answers
	sharesToSell := minShares(remaining)

	for sharesToSell > 0 {
		sellingNow := make(map[string]bool, len(remaining))
		for id, shares := range remaining {
			if shares >= sharesToSell {
				sellingNow[id] = true
			}
		}

		if len(sellingNow) == len(answers) {
			// Equal YES in every answer is a complete set: it redeems
			// at face value without touching any pool.
			saleLegs = append(saleLegs, redeemCompleteSet(updatedAnswers, sharesToSell, now)...)
		} else {
			iterLegs, oppLegs, after, err := sellSubsetEqually(updatedAnswers, sellingNow, sharesToSell, orders, balances, now)
			if err != nil {
				return nil, err
			}
			saleLegs = append(saleLegs, iterLegs...)
			oppositeLegs = append(oppositeLegs, oppLegs...)
			updatedAnswers = after
		}

		for id := range sellingNow {
			remaining[id] -= sharesToSell
			if remaining[id] <= 0 {
				delete(remaining, id)
			}
		}
		if len(remaining) == 0 {
			break
		}
		sharesToSell = minShares(remaining)
	}

	newResults := combineOnSameAnswers(saleLegs, domain.OutcomeYes, filterAnswers(updatedAnswers, sellIDs, true), false, nil)
	otherResults := combineOnSameAnswers(oppositeLegs, domain.OutcomeYes, filterAnswers(updatedAnswers, sellIDs, false), false, nil)

	return &MultiBuyResult{
		NewBetResults:   newResults,
		OtherBetResults: otherResults,
		UpdatedAnswers:  updatedAnswers,
		TotalFee:        totalFeeOf(newResults, otherResults),
	}, nil
}

// sellSubsetEqually sells sharesToSell YES from each answer in
// sellingNow by buying the same quantity of YES in every other answer
// and rebalancing the contract back to sum-to-one.
func sellSubsetEqually(updatedAnswers []*domain.Answer, sellingNow map[string]bool, sharesToSell float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (saleLegs, oppositeLegs []*preliminary, after []*domain.Answer, err error) {
	ordersByAnswer := OrdersByAnswer(orders)
	complement := filterAnswers(updatedAnswers, sellingNow, false)

	yesAmounts := make([]float64, len(complement))
	totalYesAmount := 0.0
	for i, a := range complement {
		amount, err := cpmm.AmountForSharesFixedPWithOrders(cpmm.AnswerState(a), sharesToSell, domain.OutcomeYes, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, nil, nil, err
		}
		yesAmounts[i] = amount
		totalYesAmount += amount
	}

	iter, err := betAndRebalance(complement, yesAmounts, updatedAnswers, nil, orders, balances, now)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, leg := range iter.yesLegs {
		appendRedemptionFill(leg, now)
	}
	oppositeLegs = iter.yesLegs

	// Each sold answer's proceeds: the face value of the sold shares,
	// less what the complementary YES buys cost, plus the rebalance
	// surplus, split across the answers sold this round.
	proceeds := (sharesToSell - totalYesAmount + iter.extraMana) / float64(len(sellingNow))

	for _, leg := range iter.noLegs {
		if !sellingNow[leg.Answer.ID] {
			continue
		}
		answer := findAnswer(iter.updatedAnswers, leg.Answer.ID)
		saleLeg := &preliminary{
			FillResult: &cpmm.FillResult{
				Takers: []domain.Fill{{
					Amount:    -proceeds,
					Shares:    -sharesToSell,
					Timestamp: now,
					IsSale:    true,
					Fees:      leg.TotalFees,
				}},
				State:     cpmm.AnswerState(answer),
				TotalFees: leg.TotalFees,
			},
			Answer: answer,
		}
		saleLegs = append(saleLegs, saleLeg)
	}

	return saleLegs, oppositeLegs, iter.updatedAnswers, nil
}

// redeemCompleteSet returns sale legs for an equal YES holding in every
// answer: one of the shares must resolve YES, so the set redeems at
// face value with no pool trade.
func redeemCompleteSet(answers []*domain.Answer, sharesToSell float64, now int64) []*preliminary {
	legs := make([]*preliminary, len(answers))
	for i, a := range answers {
		legs[i] = &preliminary{
			FillResult: &cpmm.FillResult{
				Takers: []domain.Fill{{
					Amount:    -sharesToSell / float64(len(answers)),
					Shares:    -sharesToSell,
					Timestamp: now,
					IsSale:    true,
				}},
				State: cpmm.AnswerState(a),
			},
			Answer: a,
		}
	}
	return legs
}

func minShares(m map[string]float64) float64 {
	min := math.Inf(1)
	for _, v := range m {
		if v < min {
			min = v
		}
	}
	if math.IsInf(min, 1) {
		return 0
	}
	return min
}

func findAnswer(answers []*domain.Answer, id string) *domain.Answer {
	for _, a := range answers {
		if a.ID == id {
			return a
		}
	}
	return nil
}

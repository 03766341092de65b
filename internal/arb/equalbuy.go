package arb

import (
	"predict_go/internal/cpmm"
	"predict_go/internal/domain"
	"predict_go/pkg/mathx"
)

// residualCutoff is the leftover amount below which the equal-buy loop
// stops reinvesting redemption proceeds.
const residualCutoff = 0.01

// MultiBuyResult aggregates an equal buy across several answers.
type MultiBuyResult struct {
	NewBetResults   []*BetResult
	OtherBetResults []*BetResult
	UpdatedAnswers  []*domain.Answer
	TotalFee        float64
}

// BuyAnswersEqually spends betAmount buying the same number of YES
// shares in each of answersToBuy (a numeric range position, for
// example). Each iteration buys equal shares across the set, then
// rebalances every answer back to the sum-to-one invariant; the mana
// redeemed by the rebalance is reinvested until it dwindles.
func BuyAnswersEqually(answers []*domain.Answer, answersToBuy []*domain.Answer, betAmount float64, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*MultiBuyResult, error) {
	if len(answersToBuy) == 0 {
		return nil, &domain.PreconditionError{Field: "answersToBuy", Err: domain.ErrUnknownAnswer}
	}
	if betAmount < 0 {
		return nil, &domain.PreconditionError{Field: "amount", Err: domain.ErrNegativeAmount}
	}
	buyIDs := make(map[string]bool, len(answersToBuy))
	for _, a := range answersToBuy {
		buyIDs[a.ID] = true
	}

	ordersByAnswer := OrdersByAnswer(orders)
	var noLegs, yesLegs []*preliminary
	updatedAnswers := answers
	amountToBet := betAmount

	for amountToBet > residualCutoff {
		targets := filterAnswers(updatedAnswers, buyIDs, true)

		// Upper bound: every YES share costs at least its current prob.
		priceSum := 0.0
		for _, a := range targets {
			priceSum += a.Prob
		}
		maxYesShares := amountToBet / priceSum

		var solveErr error
		yesAmounts := make([]float64, len(targets))
		_, err := mathx.BinarySearch(0, maxYesShares, func(yesShares float64) float64 {
			total := 0.0
			for i, a := range targets {
				amount, err := cpmm.AmountForSharesFixedPWithOrders(cpmm.AnswerState(a), yesShares, domain.OutcomeYes, ordersByAnswer[a.ID], balances, now)
				if err != nil {
					solveErr = err
					return 0
				}
				yesAmounts[i] = amount
				total += amount
			}
			return total - amountToBet
		})
		if solveErr != nil {
			return nil, solveErr
		}
		if err != nil {
			return nil, err
		}

		iter, err := betAndRebalance(targets, yesAmounts, updatedAnswers, limitProb, orders, balances, now)
		if err != nil {
			return nil, err
		}
		updatedAnswers = iter.updatedAnswers
		amountToBet = iter.extraMana
		noLegs = append(noLegs, iter.noLegs...)
		yesLegs = append(yesLegs, iter.yesLegs...)
	}

	// Fees paid on the NO rebalance of the bought answers are charged
	// to the buyer's combined YES results.
	boughtAnswers := filterAnswers(updatedAnswers, buyIDs, true)
	noOnBought := combineOnSameAnswers(noLegs, domain.OutcomeNo, boughtAnswers, false, nil)
	extraFees := make(map[string]domain.Fees, len(noOnBought))
	for _, r := range noOnBought {
		extraFees[r.Answer.ID] = r.TotalFees
	}

	newResults := combineOnSameAnswers(yesLegs, domain.OutcomeYes, boughtAnswers, true, extraFees)
	otherResults := combineOnSameAnswers(noLegs, domain.OutcomeNo, filterAnswers(updatedAnswers, buyIDs, false), false, nil)

	return &MultiBuyResult{
		NewBetResults:   newResults,
		OtherBetResults: otherResults,
		UpdatedAnswers:  updatedAnswers,
		TotalFee:        totalFeeOf(newResults, otherResults),
	}, nil
}

type rebalanceIteration struct {
	yesLegs        []*preliminary
	noLegs         []*preliminary
	updatedAnswers []*domain.Answer
	extraMana      float64
}

// betAndRebalance places the YES legs and then buys NO across all
// answers until the probabilities sum to one again.
func betAndRebalance(targets []*domain.Answer, yesAmounts []float64, updatedAnswers []*domain.Answer, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*rebalanceIteration, error) {
	ordersByAnswer := OrdersByAnswer(orders)

	yesLegs := make([]*preliminary, len(targets))
	newStates := make(map[string]*domain.Answer, len(targets))
	for i, a := range targets {
		res, err := cpmm.ComputeFills(cpmm.AnswerState(a), domain.OutcomeYes, yesAmounts[i], limitProb, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, err
		}
		yesLegs[i] = &preliminary{FillResult: res, Answer: a}
		newStates[a.ID] = updatedAnswer(a, res.State)
	}

	afterYes := make([]*domain.Answer, len(updatedAnswers))
	for i, a := range updatedAnswers {
		if ns, ok := newStates[a.ID]; ok {
			afterYes[i] = ns
		} else {
			afterYes[i] = a
		}
	}

	noLegs, extraMana, err := buyNoUntilSumToOne(afterYes, orders, balances, now)
	if err != nil {
		return nil, err
	}

	after := make([]*domain.Answer, len(noLegs))
	for i, leg := range noLegs {
		after[i] = updatedAnswer(leg.Answer, leg.State)
	}

	return &rebalanceIteration{
		yesLegs:        yesLegs,
		noLegs:         noLegs,
		updatedAnswers: after,
		extraMana:      extraMana,
	}, nil
}

// buyNoUntilSumToOne buys an equal number of NO shares in every answer,
// solved so the probabilities sum back to one. Returns the legs and the
// mana redeemed in excess of what the NO purchases cost (fees on
// arbitrage legs are returned to the trader).
func buyNoUntilSumToOne(answers []*domain.Answer, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) ([]*preliminary, float64, error) {
	ordersByAnswer := OrdersByAnswer(orders)

	// Grow the bracket until buying maxNoShares overshoots below 1.
	maxNoShares := 10.0
	for {
		legs, _, err := buyNoInAnswers(answers, ordersByAnswer, balances, maxNoShares, now)
		if err != nil {
			return nil, 0, err
		}
		if probSum(legs) < 1 {
			break
		}
		maxNoShares *= 10
	}

	var solveErr error
	noShares, err := mathx.BinarySearch(0, maxNoShares, func(noShares float64) float64 {
		legs, _, err := buyNoInAnswers(answers, ordersByAnswer, balances, noShares, now)
		if err != nil {
			solveErr = err
			return 0
		}
		return 1 - probSum(legs)
	})
	if solveErr != nil {
		return nil, 0, solveErr
	}
	if err != nil {
		return nil, 0, err
	}

	legs, extraMana, err := buyNoInAnswers(answers, ordersByAnswer, balances, noShares, now)
	if err != nil {
		return nil, 0, err
	}
	for _, leg := range legs {
		appendRedemptionFill(leg, now)
	}
	return legs, extraMana, nil
}

func buyNoInAnswers(answers []*domain.Answer, ordersByAnswer map[string][]*domain.LimitOrder, balances domain.BalanceByUserID, noShares float64, now int64) ([]*preliminary, float64, error) {
	totalNoAmount := 0.0
	legs := make([]*preliminary, len(answers))
	fees := 0.0
	for i, a := range answers {
		amount, err := cpmm.AmountForSharesFixedPWithOrders(cpmm.AnswerState(a), noShares, domain.OutcomeNo, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, 0, err
		}
		res, err := cpmm.ComputeFills(cpmm.AnswerState(a), domain.OutcomeNo, amount, nil, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, 0, err
		}
		legs[i] = &preliminary{FillResult: res, Answer: a}
		totalNoAmount += amount
		fees += res.TotalFees.Total()
	}

	// Holding NO in all n answers redeems for noShares*(n-1) mana.
	redeemed := noShares * float64(len(answers)-1)
	extraMana := fees + redeemed - totalNoAmount
	return legs, extraMana, nil
}

func filterAnswers(answers []*domain.Answer, ids map[string]bool, keep bool) []*domain.Answer {
	out := make([]*domain.Answer, 0, len(answers))
	for _, a := range answers {
		if ids[a.ID] == keep {
			out = append(out, a)
		}
	}
	return out
}

package arb

import (
	"errors"

	"predict_go/internal/cpmm"
	"predict_go/internal/domain"
	"predict_go/pkg/mathx"
)

// errBudgetExhausted reports a final pricing pass where the solved
// share quantity costs more than the bet amount.
var errBudgetExhausted = errors.New("arb: solved shares cost more than the bet amount")

// BuyAnswer prices a bet of amount on one outcome of one answer of a
// sum-to-one contract, repricing every other answer so the probability
// mass stays conserved.
//
// A market order that would push the target answer past its probability
// bound is clamped there and the shortfall reported in CalcErr. A
// solver that cannot reach the sum-to-one tolerance is a fatal error:
// no state is returned.
func BuyAnswer(answers []*domain.Answer, answerToBuy *domain.Answer, outcome domain.Outcome, amount float64, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*MultiBetResult, error) {
	if err := validateMultiBet(answers, answerToBuy, outcome, amount); err != nil {
		return nil, err
	}

	result, err := buyAnswer(answers, answerToBuy, outcome, amount, limitProb, orders, balances, now)
	if err != nil {
		return nil, err
	}

	// Market orders get one retry pinned at the probability bound when
	// the unbounded solve breached it.
	if limitProb == nil {
		probAfter := result.NewBetResult.State.Prob()
		breached := outcome == domain.OutcomeYes && probAfter > domain.MaxProb ||
			outcome == domain.OutcomeNo && probAfter < domain.MinProb
		if breached {
			bound := domain.MaxProb
			if outcome == domain.OutcomeNo {
				bound = domain.MinProb
			}
			result, err = buyAnswer(answers, answerToBuy, outcome, amount, &bound, orders, balances, now)
			if err != nil {
				return nil, err
			}
			result.CalcErr = &domain.CalcError{
				Kind:            domain.CalcErrorProbBound,
				RequestedAmount: amount,
				FilledAmount:    sumTakerAmounts(result.NewBetResult.Takers),
				Detail:          "trade clamped at probability bound",
			}
		}
	}
	return result, nil
}

func validateMultiBet(answers []*domain.Answer, target *domain.Answer, outcome domain.Outcome, amount float64) error {
	if !outcome.Valid() {
		return &domain.PreconditionError{Field: "outcome", Err: domain.ErrUnknownOutcome}
	}
	if amount < 0 {
		return &domain.PreconditionError{Field: "amount", Err: domain.ErrNegativeAmount}
	}
	if target == nil {
		return &domain.PreconditionError{Field: "answer", Err: domain.ErrUnknownAnswer}
	}
	found := false
	for _, a := range answers {
		if !(domain.Pool{Yes: a.PoolYes, No: a.PoolNo}).Valid() {
			return &domain.PreconditionError{Field: "answers", Err: domain.ErrNonPositiveReserves}
		}
		if a.ID == target.ID {
			found = true
		}
	}
	if !found {
		return &domain.PreconditionError{Field: "answer", Err: domain.ErrUnknownAnswer}
	}
	return nil
}

func buyAnswer(answers []*domain.Answer, answerToBuy *domain.Answer, outcome domain.Outcome, amount float64, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*MultiBetResult, error) {
	var newLeg *preliminary
	var otherLegs []*preliminary
	var err error
	if outcome == domain.OutcomeYes {
		newLeg, otherLegs, err = buyYes(answers, answerToBuy, amount, limitProb, orders, balances, now)
	} else {
		newLeg, otherLegs, err = buyNo(answers, answerToBuy, amount, limitProb, orders, balances, now)
	}
	if err != nil {
		return nil, err
	}

	if mathx.FloatingEqual(sumTakerAmounts(newLeg.Takers), 0) {
		// Nothing matched; return the untouched answer state.
		return &MultiBetResult{
			NewBetResult: &BetResult{
				Answer:  answerToBuy,
				Outcome: outcome,
				State:   cpmm.AnswerState(answerToBuy),
			},
			UpdatedAnswers: answers,
		}, nil
	}

	newResult := toBetResult(newLeg, outcome)
	otherResults := make([]*BetResult, len(otherLegs))
	for i, leg := range otherLegs {
		otherResults[i] = toBetResult(leg, outcome.Opposite())
	}

	updated := make([]*domain.Answer, len(answers))
	for i, a := range answers {
		updated[i] = a
		if a.ID == answerToBuy.ID {
			updated[i] = updatedAnswer(a, newLeg.State)
			continue
		}
		for _, leg := range otherLegs {
			if leg.Answer.ID == a.ID {
				updated[i] = updatedAnswer(a, leg.State)
				break
			}
		}
	}

	return &MultiBetResult{
		NewBetResult:    newResult,
		OtherBetResults: otherResults,
		UpdatedAnswers:  updated,
		TotalFee:        totalFeeOf([]*BetResult{newResult}, otherResults),
	}, nil
}

// buyYes buys noShares NO in every other answer and YES in the target,
// with noShares solved so the post-trade probabilities sum to one.
func buyYes(answers []*domain.Answer, answerToBuy *domain.Answer, betAmount float64, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*preliminary, []*preliminary, error) {
	ordersByAnswer := OrdersByAnswer(orders)

	noSharePriceSum := 0.0
	for _, a := range answers {
		if a.ID != answerToBuy.ID {
			noSharePriceSum += 1 - a.Prob
		}
	}
	// Spending everything on NO shares at current prices, net of the
	// redemption value of holding NO in every other answer.
	maxNoShares := betAmount / (noSharePriceSum - float64(len(answers)) + 2)

	var solveErr error
	noShares, err := mathx.BinarySearch(0, maxNoShares, func(noShares float64) float64 {
		yesLeg, noLegs, err := buyNoInOthersThenYes(answers, answerToBuy, ordersByAnswer, balances, betAmount, limitProb, noShares, now)
		if err != nil {
			solveErr = err
			return 0
		}
		if yesLeg == nil {
			return 1 // noShares too large, shrink
		}
		return 1 - (probSum(noLegs) + yesLeg.State.Prob())
	})
	if solveErr != nil {
		return nil, nil, solveErr
	}
	if err != nil {
		return nil, nil, err
	}

	yesLeg, noLegs, err := buyNoInOthersThenYes(answers, answerToBuy, ordersByAnswer, balances, betAmount, limitProb, noShares, now)
	if err != nil {
		return nil, nil, err
	}
	if yesLeg == nil {
		return nil, nil, errBudgetExhausted
	}
	return yesLeg, noLegs, nil
}

func buyNoInOthersThenYes(answers []*domain.Answer, answerToBuy *domain.Answer, ordersByAnswer map[string][]*domain.LimitOrder, balances domain.BalanceByUserID, betAmount float64, limitProb *float64, noShares float64, now int64) (*preliminary, []*preliminary, error) {
	others := withoutAnswer(answers, answerToBuy.ID)

	totalNoAmount := 0.0
	noAmounts := make([]float64, len(others))
	for i, a := range others {
		amount, err := cpmm.AmountForSharesFixedPWithOrders(cpmm.AnswerState(a), noShares, domain.OutcomeNo, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, nil, err
		}
		noAmounts[i] = amount
		totalNoAmount += amount
	}

	noLegs := make([]*preliminary, len(others))
	for i, a := range others {
		res, err := cpmm.ComputeFills(cpmm.AnswerState(a), domain.OutcomeNo, noAmounts[i], nil, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, nil, err
		}
		noLegs[i] = &preliminary{FillResult: res, Answer: a}
	}

	// Holding NO in all n-1 other answers redeems for noShares*(n-2)
	// plus noShares YES in the target.
	redeemed := noShares * float64(len(answers)-2)
	netNoAmount := totalNoAmount - redeemed
	yesBetAmount := betAmount - netNoAmount
	if yesBetAmount < 0 {
		return nil, nil, nil
	}

	for _, leg := range noLegs {
		appendRedemptionFill(leg, now)
	}

	res, err := cpmm.ComputeFills(cpmm.AnswerState(answerToBuy), domain.OutcomeYes, yesBetAmount, limitProb, ordersByAnswer[answerToBuy.ID], balances, now)
	if err != nil {
		return nil, nil, err
	}
	yesLeg := &preliminary{FillResult: res, Answer: answerToBuy}

	// The NO shares bought in the other answers surface here as YES
	// shares in the target.
	yesLeg.Takers = append(yesLeg.Takers, domain.Fill{
		Amount:    netNoAmount,
		Shares:    noShares,
		Timestamp: now,
	})
	return yesLeg, noLegs, nil
}

// buyNo mirrors buyYes: buy yesShares YES in every other answer and NO
// in the target.
func buyNo(answers []*domain.Answer, answerToBuy *domain.Answer, betAmount float64, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*preliminary, []*preliminary, error) {
	ordersByAnswer := OrdersByAnswer(orders)

	yesSharePriceSum := 0.0
	for _, a := range answers {
		if a.ID != answerToBuy.ID {
			yesSharePriceSum += a.Prob
		}
	}
	maxYesShares := betAmount / yesSharePriceSum

	var solveErr error
	yesShares, err := mathx.BinarySearch(0, maxYesShares, func(yesShares float64) float64 {
		noLeg, yesLegs, err := buyYesInOthersThenNo(answers, answerToBuy, ordersByAnswer, balances, betAmount, limitProb, yesShares, now)
		if err != nil {
			solveErr = err
			return 0
		}
		if noLeg == nil {
			return 1
		}
		return (probSum(yesLegs) + noLeg.State.Prob()) - 1
	})
	if solveErr != nil {
		return nil, nil, solveErr
	}
	if err != nil {
		return nil, nil, err
	}

	noLeg, yesLegs, err := buyYesInOthersThenNo(answers, answerToBuy, ordersByAnswer, balances, betAmount, limitProb, yesShares, now)
	if err != nil {
		return nil, nil, err
	}
	if noLeg == nil {
		return nil, nil, errBudgetExhausted
	}
	return noLeg, yesLegs, nil
}

func buyYesInOthersThenNo(answers []*domain.Answer, answerToBuy *domain.Answer, ordersByAnswer map[string][]*domain.LimitOrder, balances domain.BalanceByUserID, betAmount float64, limitProb *float64, yesShares float64, now int64) (*preliminary, []*preliminary, error) {
	others := withoutAnswer(answers, answerToBuy.ID)

	totalYesAmount := 0.0
	yesAmounts := make([]float64, len(others))
	for i, a := range others {
		amount, err := cpmm.AmountForSharesFixedPWithOrders(cpmm.AnswerState(a), yesShares, domain.OutcomeYes, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, nil, err
		}
		yesAmounts[i] = amount
		totalYesAmount += amount
	}

	yesLegs := make([]*preliminary, len(others))
	for i, a := range others {
		res, err := cpmm.ComputeFills(cpmm.AnswerState(a), domain.OutcomeYes, yesAmounts[i], nil, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, nil, err
		}
		yesLegs[i] = &preliminary{FillResult: res, Answer: a}
	}

	noBetAmount := betAmount - totalYesAmount
	if noBetAmount < 0 {
		return nil, nil, nil
	}

	for _, leg := range yesLegs {
		appendRedemptionFill(leg, now)
	}

	res, err := cpmm.ComputeFills(cpmm.AnswerState(answerToBuy), domain.OutcomeNo, noBetAmount, limitProb, ordersByAnswer[answerToBuy.ID], balances, now)
	if err != nil {
		return nil, nil, err
	}
	noLeg := &preliminary{FillResult: res, Answer: answerToBuy}

	// YES shares held in every other answer redeem as NO shares here.
	noLeg.Takers = append(noLeg.Takers, domain.Fill{
		Amount:    totalYesAmount,
		Shares:    yesShares,
		Timestamp: now,
	})
	return noLeg, yesLegs, nil
}

func withoutAnswer(answers []*domain.Answer, id string) []*domain.Answer {
	out := make([]*domain.Answer, 0, len(answers)-1)
	for _, a := range answers {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

package arb

import (
	"math"

	"predict_go/internal/cpmm"
	"predict_go/internal/domain"
	"predict_go/pkg/mathx"
)

// MultiSaleResult aggregates a sale of one answer's shares with the
// arbitrage legs it forced on the rest of the contract.
type MultiSaleResult struct {
	SaleValue       float64
	BuyAmount       float64
	NewBetResult    *BetResult
	OtherBetResults []*BetResult
	UpdatedAnswers  []*domain.Answer
	TotalFee        float64
}

// SellAnswer converts held shares of one outcome of one answer back
// into currency, keeping the contract arbitrage-free. The proceeds come
// partly from an opposite-outcome buy in the answer itself and partly
// from converting shares through every other answer; the split is
// solved so probabilities still sum to one.
func SellAnswer(answers []*domain.Answer, answerToSell *domain.Answer, shares float64, outcome domain.Outcome, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*MultiSaleResult, error) {
	if math.Round(shares) < 0 || math.IsNaN(shares) {
		return nil, &domain.PreconditionError{Field: "shares", Err: domain.ErrNegativeAmount}
	}
	if err := validateMultiBet(answers, answerToSell, outcome, shares); err != nil {
		return nil, err
	}

	var newLeg *preliminary
	var otherLegs []*preliminary
	var err error
	if outcome == domain.OutcomeYes {
		newLeg, otherLegs, err = sellYes(answers, answerToSell, shares, limitProb, orders, balances, now)
	} else {
		newLeg, otherLegs, err = sellNo(answers, answerToSell, shares, limitProb, orders, balances, now)
	}
	if err != nil {
		return nil, err
	}

	buyAmount := sumTakerAmounts(newLeg.Takers)
	saleTakers := cpmm.TransformSaleTakers(newLeg.Takers)
	saleValue := -sumTakerAmounts(saleTakers)

	newResult := toBetResult(newLeg, outcome)
	newResult.Takers = saleTakers

	oppositeOutcome := outcome.Opposite()
	otherResults := make([]*BetResult, len(otherLegs))
	for i, leg := range otherLegs {
		otherResults[i] = toBetResult(leg, oppositeOutcome)
	}

	updated := make([]*domain.Answer, len(answers))
	for i, a := range answers {
		updated[i] = a
		if a.ID == answerToSell.ID {
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

	return &MultiSaleResult{
		SaleValue:       saleValue,
		BuyAmount:       buyAmount,
		NewBetResult:    newResult,
		OtherBetResults: otherResults,
		UpdatedAnswers:  updated,
		TotalFee:        totalFeeOf([]*BetResult{newResult}, otherResults),
	}, nil
}

// sellYes unwinds yesShares held in the target: some are cancelled by a
// direct NO buy in the target, the rest are converted through YES buys
// in every other answer. The split is the solved quantity.
func sellYes(answers []*domain.Answer, answerToSell *domain.Answer, yesShares float64, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*preliminary, []*preliminary, error) {
	ordersByAnswer := OrdersByAnswer(orders)
	others := withoutAnswer(answers, answerToSell.ID)

	var solveErr error
	noShares, err := mathx.BinarySearch(0, yesShares, func(noShares float64) float64 {
		noLeg, yesLegs, err := sellYesLegs(answerToSell, others, ordersByAnswer, balances, yesShares, noShares, limitProb, now)
		if err != nil {
			solveErr = err
			return 0
		}
		return 1 - (probSum(yesLegs) + noLeg.State.Prob())
	})
	if solveErr != nil {
		return nil, nil, solveErr
	}
	if err != nil {
		return nil, nil, err
	}

	noLeg, yesLegs, err := sellYesLegs(answerToSell, others, ordersByAnswer, balances, yesShares, noShares, limitProb, now)
	if err != nil {
		return nil, nil, err
	}

	yesSharesInOthers := yesShares - noShares
	totalYesAmount := 0.0
	for _, leg := range yesLegs {
		totalYesAmount += sumTakerAmounts(leg.Takers)
		appendRedemptionFill(leg, now)
	}

	// YES shares converted through the other answers resolve to NO
	// shares here, completing the unwind.
	noLeg.Takers = append(noLeg.Takers, domain.Fill{
		Amount:    totalYesAmount,
		Shares:    yesSharesInOthers,
		Timestamp: now,
	})
	return noLeg, yesLegs, nil
}

func sellYesLegs(answerToSell *domain.Answer, others []*domain.Answer, ordersByAnswer map[string][]*domain.LimitOrder, balances domain.BalanceByUserID, yesShares, noShares float64, limitProb *float64, now int64) (*preliminary, []*preliminary, error) {
	yesSharesInOthers := yesShares - noShares

	noAmount, err := cpmm.AmountForSharesFixedPWithOrders(cpmm.AnswerState(answerToSell), noShares, domain.OutcomeNo, ordersByAnswer[answerToSell.ID], balances, now)
	if err != nil {
		return nil, nil, err
	}
	noRes, err := cpmm.ComputeFills(cpmm.AnswerState(answerToSell), domain.OutcomeNo, noAmount, limitProb, ordersByAnswer[answerToSell.ID], balances, now)
	if err != nil {
		return nil, nil, err
	}
	noLeg := &preliminary{FillResult: noRes, Answer: answerToSell}

	yesLegs := make([]*preliminary, len(others))
	for i, a := range others {
		yesAmount, err := cpmm.AmountForSharesFixedPWithOrders(cpmm.AnswerState(a), yesSharesInOthers, domain.OutcomeYes, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, nil, err
		}
		res, err := cpmm.ComputeFills(cpmm.AnswerState(a), domain.OutcomeYes, yesAmount, nil, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, nil, err
		}
		yesLegs[i] = &preliminary{FillResult: res, Answer: a}
	}
	return noLeg, yesLegs, nil
}

// sellNo mirrors sellYes for a held NO position: a direct YES buy in
// the target plus NO buys in every other answer.
func sellNo(answers []*domain.Answer, answerToSell *domain.Answer, noShares float64, limitProb *float64, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*preliminary, []*preliminary, error) {
	ordersByAnswer := OrdersByAnswer(orders)
	others := withoutAnswer(answers, answerToSell.ID)

	var solveErr error
	yesShares, err := mathx.BinarySearch(0, noShares, func(yesShares float64) float64 {
		yesLeg, noLegs, err := sellNoLegs(answerToSell, others, ordersByAnswer, balances, noShares, yesShares, limitProb, now)
		if err != nil {
			solveErr = err
			return 0
		}
		return (probSum(noLegs) + yesLeg.State.Prob()) - 1
	})
	if solveErr != nil {
		return nil, nil, solveErr
	}
	if err != nil {
		return nil, nil, err
	}

	yesLeg, noLegs, err := sellNoLegs(answerToSell, others, ordersByAnswer, balances, noShares, yesShares, limitProb, now)
	if err != nil {
		return nil, nil, err
	}

	noSharesInOthers := noShares - yesShares
	totalNoAmount := 0.0
	for _, leg := range noLegs {
		totalNoAmount += sumTakerAmounts(leg.Takers)
		appendRedemptionFill(leg, now)
	}
	redeemed := noSharesInOthers * float64(len(answers)-2)

	yesLeg.Takers = append(yesLeg.Takers, domain.Fill{
		Amount:    totalNoAmount - redeemed,
		Shares:    noSharesInOthers,
		Timestamp: now,
	})
	return yesLeg, noLegs, nil
}

func sellNoLegs(answerToSell *domain.Answer, others []*domain.Answer, ordersByAnswer map[string][]*domain.LimitOrder, balances domain.BalanceByUserID, noShares, yesShares float64, limitProb *float64, now int64) (*preliminary, []*preliminary, error) {
	noSharesInOthers := noShares - yesShares

	yesAmount, err := cpmm.AmountForSharesFixedPWithOrders(cpmm.AnswerState(answerToSell), yesShares, domain.OutcomeYes, ordersByAnswer[answerToSell.ID], balances, now)
	if err != nil {
		return nil, nil, err
	}
	yesRes, err := cpmm.ComputeFills(cpmm.AnswerState(answerToSell), domain.OutcomeYes, yesAmount, limitProb, ordersByAnswer[answerToSell.ID], balances, now)
	if err != nil {
		return nil, nil, err
	}
	yesLeg := &preliminary{FillResult: yesRes, Answer: answerToSell}

	noLegs := make([]*preliminary, len(others))
	for i, a := range others {
		noAmount, err := cpmm.AmountForSharesFixedPWithOrders(cpmm.AnswerState(a), noSharesInOthers, domain.OutcomeNo, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, nil, err
		}
		res, err := cpmm.ComputeFills(cpmm.AnswerState(a), domain.OutcomeNo, noAmount, nil, ordersByAnswer[a.ID], balances, now)
		if err != nil {
			return nil, nil, err
		}
		noLegs[i] = &preliminary{FillResult: res, Answer: a}
	}
	return yesLeg, noLegs, nil
}

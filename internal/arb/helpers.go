// Package arb keeps a sum-to-one multi-answer contract arbitrage-free:
// buying YES on one answer implicitly sells NO exposure across every
// other answer, so each trade is decomposed into per-answer pool trades
// whose joint result leaves the probabilities summing to one.
//
// Every solver here is a bounded binary search over a share quantity;
// failure to converge is fatal and no state is returned.
package arb

import (
	"predict_go/internal/cpmm"
	"predict_go/internal/domain"
)

// BetResult is the outcome of the trade's leg on one answer.
type BetResult struct {
	Answer         *domain.Answer
	Outcome        domain.Outcome
	Takers         []domain.Fill
	Makers         []domain.Maker
	OrdersToCancel []*domain.LimitOrder
	State          cpmm.State
	TotalFees      domain.Fees
}

// MultiBetResult aggregates the target answer's leg with the implicit
// arbitrage legs on every other answer.
type MultiBetResult struct {
	NewBetResult    *BetResult
	OtherBetResults []*BetResult
	UpdatedAnswers  []*domain.Answer
	TotalFee        float64
	CalcErr         *domain.CalcError
}

// preliminary is one computed leg before outcomes are assigned.
type preliminary struct {
	*cpmm.FillResult
	Answer *domain.Answer
}

func toBetResult(p *preliminary, outcome domain.Outcome) *BetResult {
	return &BetResult{
		Answer:         p.Answer,
		Outcome:        outcome,
		Takers:         p.Takers,
		Makers:         p.Makers,
		OrdersToCancel: p.OrdersToCancel,
		State:          p.State,
		TotalFees:      p.TotalFees,
	}
}

// updatedAnswer clones a with the pool state and denormalized prob of
// st.
func updatedAnswer(a *domain.Answer, st cpmm.State) *domain.Answer {
	clone := *a
	clone.PoolYes = st.Pool.Yes
	clone.PoolNo = st.Pool.No
	clone.Prob = st.Prob()
	return &clone
}

// OrdersByAnswer groups a contract's open orders by answer id.
func OrdersByAnswer(orders []*domain.LimitOrder) map[string][]*domain.LimitOrder {
	grouped := make(map[string][]*domain.LimitOrder)
	for _, o := range orders {
		grouped[o.AnswerID] = append(grouped[o.AnswerID], o)
	}
	return grouped
}

func sumTakerAmounts(takers []domain.Fill) float64 {
	total := 0.0
	for _, t := range takers {
		total += t.Amount
	}
	return total
}

func sumTakerShares(takers []domain.Fill) float64 {
	total := 0.0
	for _, t := range takers {
		total += t.Shares
	}
	return total
}

func probSum(legs []*preliminary) float64 {
	total := 0.0
	for _, l := range legs {
		total += l.State.Prob()
	}
	return total
}

// appendRedemptionFill negates a leg's fills: the shares it acquired
// were immediately redeemed against the other answers' shares, so the
// leg nets to zero for the trader.
func appendRedemptionFill(leg *preliminary, now int64) {
	leg.Takers = append(leg.Takers, domain.Fill{
		Amount:    -sumTakerAmounts(leg.Takers),
		Shares:    -sumTakerShares(leg.Takers),
		Timestamp: now,
		Fees:      leg.TotalFees,
	})
}

// combineOnSameAnswers merges per-iteration legs that touched the same
// answer into one BetResult per answer, in answer order. When
// followingFillsFree is set only the first iteration's taker is kept,
// carrying the combined share total (later fills were pure arbitrage).
func combineOnSameAnswers(legs []*preliminary, outcome domain.Outcome, answers []*domain.Answer, followingFillsFree bool, extraFees map[string]domain.Fees) []*BetResult {
	results := make([]*BetResult, 0, len(answers))
	for _, answer := range answers {
		var forAnswer []*preliminary
		for _, leg := range legs {
			if leg.Answer.ID == answer.ID {
				forAnswer = append(forAnswer, leg)
			}
		}
		if len(forAnswer) == 0 {
			continue
		}

		totalFees := extraFees[answer.ID]
		var takers []domain.Fill
		var makers []domain.Maker
		var cancels []*domain.LimitOrder
		for _, leg := range forAnswer {
			totalFees = totalFees.Add(leg.TotalFees)
			takers = append(takers, leg.Takers...)
			makers = append(makers, leg.Makers...)
			cancels = append(cancels, leg.OrdersToCancel...)
		}
		if followingFillsFree {
			first := forAnswer[0].Takers[0]
			first.Shares = sumTakerShares(takers)
			takers = []domain.Fill{first}
		}

		results = append(results, &BetResult{
			Answer:         answer,
			Outcome:        outcome,
			Takers:         takers,
			Makers:         makers,
			OrdersToCancel: cancels,
			State:          cpmm.State{Pool: answer.Pool(), P: domain.MultiP},
			TotalFees:      totalFees,
		})
	}
	return results
}

func totalFeeOf(results ...[]*BetResult) float64 {
	total := 0.0
	for _, rs := range results {
		for _, r := range rs {
			total += r.TotalFees.Total()
		}
	}
	return total
}

package cpmm

import (
	"math"

	"predict_go/internal/domain"
)

// SaleResult is the output of unwinding a share position against a
// single pool.
type SaleResult struct {
	SaleValue float64 // gross proceeds before loan netting
	BuyAmount float64 // the opposite-outcome buy that realized the sale
	State     State
	Takers    []domain.Fill
	Makers    []domain.Maker

	OrdersToCancel []*domain.LimitOrder
	Fees           domain.Fees
	ProbBefore     float64
	ProbAfter      float64

	// Loan netting, populated by ApplyLoan.
	LoanRepaid    float64
	LoanRemaining float64
	NetPayout     float64
	CalcErr       *domain.CalcError
}

// Sale converts held shares of outcome back into currency by buying the
// opposite outcome: the bought shares cancel against the held ones,
// returning their combined redemption value. Taker records are
// transformed into sale terms (negative shares, proceeds as negative
// amounts).
func Sale(s State, shares float64, outcome domain.Outcome, orders []*domain.LimitOrder, balances domain.BalanceByUserID, now int64) (*SaleResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if math.Round(shares) < 0 || math.IsNaN(shares) {
		return nil, &domain.PreconditionError{Field: "shares", Err: domain.ErrNegativeAmount}
	}
	if !outcome.Valid() {
		return nil, &domain.PreconditionError{Field: "outcome", Err: domain.ErrUnknownOutcome}
	}

	opposite := outcome.Opposite()
	buyAmount, err := AmountForShares(s, shares, opposite, orders, balances, now)
	if err != nil {
		return nil, err
	}

	res, err := ComputeFills(s, opposite, buyAmount, nil, orders, balances, now)
	if err != nil {
		return nil, err
	}

	saleTakers := TransformSaleTakers(res.Takers)
	saleValue := -sumAmounts(saleTakers)

	return &SaleResult{
		SaleValue:      saleValue,
		BuyAmount:      buyAmount,
		State:          res.State,
		Takers:         saleTakers,
		Makers:         res.Makers,
		OrdersToCancel: res.OrdersToCancel,
		Fees:           res.TotalFees,
		ProbBefore:     s.Prob(),
		ProbAfter:      res.State.Prob(),
		NetPayout:      saleValue,
	}, nil
}

// TransformSaleTakers rewrites opposite-outcome buy fills as sale
// fills: the bought shares cancel held shares (negative), and the
// redemption value net of what was paid for them flows back to the
// seller (negative amount = money gained).
func TransformSaleTakers(takers []domain.Fill) []domain.Fill {
	out := make([]domain.Fill, len(takers))
	for i, t := range takers {
		out[i] = t
		out[i].Shares = -t.Shares
		out[i].Amount = -(t.Shares - t.Amount)
		out[i].IsSale = true
	}
	return out
}

// ApplyLoan nets an outstanding loan out of gross sale proceeds. The
// repayment is capped at the actual proceeds, never pushing the payout
// negative; any shortfall stays owed and is reported in CalcErr.
func (r *SaleResult) ApplyLoan(loanOwed float64) {
	if loanOwed <= 0 {
		r.NetPayout = r.SaleValue
		return
	}
	proceeds := math.Max(r.SaleValue, 0)
	r.LoanRepaid = math.Min(loanOwed, proceeds)
	r.LoanRemaining = loanOwed - r.LoanRepaid
	r.NetPayout = r.SaleValue - r.LoanRepaid
	if r.LoanRemaining > 0 {
		r.CalcErr = &domain.CalcError{
			Kind:            domain.CalcErrorLoanShortfall,
			RequestedAmount: loanOwed,
			FilledAmount:    r.LoanRepaid,
			Detail:          "sale proceeds did not cover outstanding loan",
		}
	}
}

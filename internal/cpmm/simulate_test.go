package cpmm

import (
	"math"
	"testing"

	"predict_go/internal/domain"
)

func TestSimulateBet_ZeroAmountIsNoOp(t *testing.T) {
	s := evenState()

	res, err := SimulateBet(s, domain.OutcomeYes, 0, nil, nil, nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ProbBefore != res.ProbAfter {
		t.Errorf("Zero amount must not move the price: %g -> %g", res.ProbBefore, res.ProbAfter)
	}
	if res.State.Pool != s.Pool {
		t.Errorf("Zero amount must not touch the pool: %+v", res.State.Pool)
	}
	if len(res.Takers) != 0 || res.Shares != 0 {
		t.Error("Zero amount produces no fills")
	}
}

func TestSimulateBet_MarketBuy(t *testing.T) {
	s := evenState()

	res, err := SimulateBet(s, domain.OutcomeYes, 10, nil, nil, nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Shares <= 10 {
		t.Errorf("At even odds 10 should buy more than 10 shares, got %g", res.Shares)
	}
	if res.ProbAfter <= res.ProbBefore {
		t.Errorf("Buying YES must raise the price: %g -> %g", res.ProbBefore, res.ProbAfter)
	}
	if res.ProbAfter >= domain.MaxProb {
		t.Errorf("A modest buy stays inside the price bounds, got %g", res.ProbAfter)
	}
	if math.Abs(res.Amount-10) > 1e-9 {
		t.Errorf("The whole 10 should fill, got %g", res.Amount)
	}
	if res.CalcErr != nil {
		t.Errorf("No recoverable condition expected, got %v", res.CalcErr)
	}
}

func TestSimulateBet_MarketOrderClampedAtBound(t *testing.T) {
	s := State{Pool: domain.Pool{Yes: 10, No: 10}, P: 0.5}

	res, err := SimulateBet(s, domain.OutcomeYes, 1e6, nil, nil, nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CalcErr == nil {
		t.Fatal("Expected the oversized market order to be clamped")
	}
	if res.CalcErr.Kind != domain.CalcErrorProbBound {
		t.Errorf("Expected %s, got %s", domain.CalcErrorProbBound, res.CalcErr.Kind)
	}
	if res.CalcErr.FilledAmount >= res.CalcErr.RequestedAmount {
		t.Error("Clamping means a shortfall between requested and filled")
	}
	if res.ProbAfter > domain.MaxProb+1e-9 {
		t.Errorf("Clamped trade must not breach the bound, got %g", res.ProbAfter)
	}
	if math.Abs(res.ProbAfter-domain.MaxProb) > 1e-6 {
		t.Errorf("Clamped trade should land at the bound, got %g", res.ProbAfter)
	}
}

func TestSimulateBet_LimitOrderRestsUnfilled(t *testing.T) {
	s := evenState()
	lp := 0.55

	res, err := SimulateBet(s, domain.OutcomeYes, 1000, &lp, nil, nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CalcErr != nil {
		t.Errorf("A limit order rests its remainder, no recoverable condition: %v", res.CalcErr)
	}
	if res.Amount >= 1000 {
		t.Error("The pool cannot absorb 1000 before hitting the limit")
	}
	if math.Abs(res.ProbAfter-lp) > 1e-6 {
		t.Errorf("Pool should stop at the limit, got %g", res.ProbAfter)
	}
}

func TestSimulateBet_ClampStillCrossesBook(t *testing.T) {
	// An order priced inside the bound fills even when the pool leg
	// clamps.
	s := State{Pool: domain.Pool{Yes: 10, No: 10}, P: 0.5}
	order := restingNo("o1", "maker", 500, 0.9, 100)
	balances := domain.BalanceByUserID{"maker": 10000}

	res, err := SimulateBet(s, domain.OutcomeYes, 1e6, nil, []*domain.LimitOrder{order}, balances, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CalcErr == nil || res.CalcErr.Kind != domain.CalcErrorProbBound {
		t.Fatalf("Expected a bound clamp, got %v", res.CalcErr)
	}
	matchedOrder := false
	for _, f := range res.Takers {
		if f.MatchedOrderID == "o1" {
			matchedOrder = true
		}
	}
	if !matchedOrder {
		t.Error("The resting order inside the bound should still fill")
	}
}

func TestSale_RoundTrip(t *testing.T) {
	s := evenState()

	buy, err := SimulateBet(s, domain.OutcomeYes, 50, nil, nil, nil, 1000)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	sale, err := Sale(buy.State, buy.Shares, domain.OutcomeYes, nil, nil, 2000)
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	if sale.SaleValue <= 0 {
		t.Fatalf("Selling a position returns positive proceeds, got %g", sale.SaleValue)
	}
	// Fees are paid on both legs, so the round trip loses a little.
	if sale.SaleValue >= 50 {
		t.Errorf("Round trip cannot beat the entry amount: %g", sale.SaleValue)
	}
	if sale.SaleValue < 40 {
		t.Errorf("Round trip loss should be fees only, got proceeds %g", sale.SaleValue)
	}
	// Unwinding the position brings the price back toward the start.
	if math.Abs(sale.ProbAfter-0.5) > 0.02 {
		t.Errorf("Price should roughly return to even odds, got %g", sale.ProbAfter)
	}
	for _, f := range sale.Takers {
		if !f.IsSale {
			t.Error("Sale fills should be flagged IsSale")
		}
		if f.Shares >= 0 {
			t.Errorf("Sale fills carry negative shares, got %g", f.Shares)
		}
		if f.Amount >= 0 {
			t.Errorf("Sale fills carry negative amounts (money out of the pool), got %g", f.Amount)
		}
	}
}

func TestSale_MovesPriceDown(t *testing.T) {
	s := State{Pool: domain.Pool{Yes: 80, No: 120}, P: 0.5}

	sale, err := Sale(s, 30, domain.OutcomeYes, nil, nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sale.ProbAfter >= sale.ProbBefore {
		t.Errorf("Selling YES must lower the price: %g -> %g", sale.ProbBefore, sale.ProbAfter)
	}
}

func TestSale_RejectsNegativeShares(t *testing.T) {
	if _, err := Sale(evenState(), -10, domain.OutcomeYes, nil, nil, 0); err == nil {
		t.Error("Expected error for negative shares")
	}
}

func TestApplyLoan(t *testing.T) {
	t.Run("fully repaid", func(t *testing.T) {
		r := &SaleResult{SaleValue: 100}
		r.ApplyLoan(30)
		if r.LoanRepaid != 30 || r.LoanRemaining != 0 {
			t.Errorf("repaid=%g remaining=%g", r.LoanRepaid, r.LoanRemaining)
		}
		if r.NetPayout != 70 {
			t.Errorf("NetPayout = %g, want 70", r.NetPayout)
		}
		if r.CalcErr != nil {
			t.Errorf("No shortfall expected: %v", r.CalcErr)
		}
	})

	t.Run("shortfall", func(t *testing.T) {
		r := &SaleResult{SaleValue: 20}
		r.ApplyLoan(50)
		if r.LoanRepaid != 20 {
			t.Errorf("LoanRepaid = %g, want 20", r.LoanRepaid)
		}
		if r.LoanRemaining != 30 {
			t.Errorf("LoanRemaining = %g, want 30", r.LoanRemaining)
		}
		if r.NetPayout != 0 {
			t.Errorf("NetPayout = %g, payout never goes negative", r.NetPayout)
		}
		if r.CalcErr == nil || r.CalcErr.Kind != domain.CalcErrorLoanShortfall {
			t.Errorf("Expected a loan shortfall, got %v", r.CalcErr)
		}
	})

	t.Run("no loan", func(t *testing.T) {
		r := &SaleResult{SaleValue: 40}
		r.ApplyLoan(0)
		if r.NetPayout != 40 || r.LoanRepaid != 0 {
			t.Errorf("NetPayout = %g, LoanRepaid = %g", r.NetPayout, r.LoanRepaid)
		}
	})
}

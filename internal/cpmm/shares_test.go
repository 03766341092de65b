package cpmm

import (
	"math"
	"testing"

	"predict_go/internal/domain"
)

func evenState() State {
	return State{Pool: domain.Pool{Yes: 100, No: 100}, P: 0.5}
}

func TestShares_FavorablePricing(t *testing.T) {
	// Buying the currently losing side yields more than one share per
	// unit spent.
	s := evenState()

	shares := Shares(s.Pool, s.P, 10, domain.OutcomeYes)
	if shares <= 10 {
		t.Errorf("Expected more than 10 shares for a 10 buy at even odds, got %g", shares)
	}
	// Each share pays out 1, so the pool never sells below cost.
	if shares >= 20 {
		t.Errorf("Shares %g implies an average price below the curve's floor", shares)
	}
}

func TestShares_ZeroAmount(t *testing.T) {
	s := evenState()
	if got := Shares(s.Pool, s.P, 0, domain.OutcomeYes); got != 0 {
		t.Errorf("Zero amount should buy zero shares, got %g", got)
	}
}

func TestShares_SymmetricAtEvenOdds(t *testing.T) {
	s := evenState()
	yes := Shares(s.Pool, s.P, 25, domain.OutcomeYes)
	no := Shares(s.Pool, s.P, 25, domain.OutcomeNo)
	if math.Abs(yes-no) > 1e-9 {
		t.Errorf("YES and NO purchases should be symmetric at even odds: %g vs %g", yes, no)
	}
}

func TestPurchase_ConservesCurveInvariant(t *testing.T) {
	s := State{Pool: domain.Pool{Yes: 150, No: 80}, P: 0.35}
	k := Liquidity(s.Pool, s.P)

	for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
		t.Run(string(outcome), func(t *testing.T) {
			res := Purchase(s, 40, outcome, true)
			kAfter := Liquidity(res.State.Pool, res.State.P)
			if math.Abs(k-kAfter)/k > 1e-9 {
				t.Errorf("Invariant moved from %g to %g", k, kAfter)
			}
		})
	}
}

func TestPurchase_MovesProbabilityTowardOutcome(t *testing.T) {
	s := evenState()

	yes := Purchase(s, 30, domain.OutcomeYes, false)
	if yes.State.Prob() <= s.Prob() {
		t.Errorf("YES buy should raise probability: %g -> %g", s.Prob(), yes.State.Prob())
	}

	no := Purchase(s, 30, domain.OutcomeNo, false)
	if no.State.Prob() >= s.Prob() {
		t.Errorf("NO buy should lower probability: %g -> %g", s.Prob(), no.State.Prob())
	}
}

func TestPurchase_Monotonic(t *testing.T) {
	s := evenState()

	prevProb := s.Prob()
	prevShares := 0.0
	for _, amount := range []float64{1, 5, 20, 50, 200} {
		res := Purchase(s, amount, domain.OutcomeYes, false)
		if res.State.Prob() <= prevProb {
			t.Fatalf("Probability after %g buy (%g) not above previous (%g)", amount, res.State.Prob(), prevProb)
		}
		if res.Shares <= prevShares {
			t.Fatalf("Shares for %g buy (%g) not above previous (%g)", amount, res.Shares, prevShares)
		}
		prevProb = res.State.Prob()
		prevShares = res.Shares
	}
}

func TestFees_IteratedTakerFee(t *testing.T) {
	s := evenState()

	remaining, fees := Fees(s, 100, domain.OutcomeYes)
	total := fees.Total()
	if total <= 0 {
		t.Fatal("Expected a positive fee on a 100 buy")
	}
	if total >= 100*domain.TakerFeeRate {
		t.Errorf("Fee %g exceeds the rate cap", total)
	}
	if math.Abs(remaining+total-100) > 1e-9 {
		t.Errorf("Remaining %g plus fee %g should equal the bet", remaining, total)
	}

	// The fixed point: the fee equals the taker fee on the post-fee
	// shares at their average probability.
	shares := Shares(s.Pool, s.P, remaining, domain.OutcomeYes)
	want := domain.TakerFee(shares, remaining/shares)
	if math.Abs(total-want) > 1e-6 {
		t.Errorf("Fee %g is not the fixed point %g", total, want)
	}
}

func TestFees_ZeroAmount(t *testing.T) {
	s := evenState()
	remaining, fees := Fees(s, 0, domain.OutcomeYes)
	if remaining != 0 || fees.Total() != 0 {
		t.Errorf("Zero bet should pay zero fee, got remaining %g fee %g", remaining, fees.Total())
	}
}

func TestFees_AllPlatform(t *testing.T) {
	s := evenState()
	_, fees := Fees(s, 50, domain.OutcomeNo)
	if fees.CreatorFee != 0 || fees.LiquidityFee != 0 {
		t.Errorf("Entire fee should go to the platform, got %+v", fees)
	}
}

func TestAmountToProb_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		outcome domain.Outcome
		target  float64
	}{
		{"yes to 0.7", domain.OutcomeYes, 0.7},
		{"yes to 0.55", domain.OutcomeYes, 0.55},
		{"no to 0.3", domain.OutcomeNo, 0.3},
		{"no to 0.45", domain.OutcomeNo, 0.45},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := evenState()
			amount := AmountToProb(s, tc.target, tc.outcome)
			if amount <= 0 {
				t.Fatalf("Expected positive amount, got %g", amount)
			}
			res := Purchase(s, amount, tc.outcome, true)
			if math.Abs(res.State.Prob()-tc.target) > 1e-9 {
				t.Errorf("Buying %g moved probability to %g, want %g", amount, res.State.Prob(), tc.target)
			}
		})
	}
}

func TestAmountToProb_Unreachable(t *testing.T) {
	s := evenState()
	for _, prob := range []float64{0, 1, -0.5, 1.5, math.NaN()} {
		if got := AmountToProb(s, prob, domain.OutcomeYes); !math.IsInf(got, 1) {
			t.Errorf("AmountToProb(%g) = %g, want +Inf", prob, got)
		}
	}
}

func TestAmountForSharesFixedP_RoundTrip(t *testing.T) {
	s := State{Pool: domain.Pool{Yes: 120, No: 90}, P: domain.MultiP}

	for _, outcome := range []domain.Outcome{domain.OutcomeYes, domain.OutcomeNo} {
		t.Run(string(outcome), func(t *testing.T) {
			amount, err := AmountForSharesFixedP(s, 35, outcome)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			shares := Shares(s.Pool, s.P, amount, outcome)
			if math.Abs(shares-35) > 1e-6 {
				t.Errorf("Amount %g buys %g shares, want 35", amount, shares)
			}
		})
	}
}

func TestAmountForSharesFixedP_RejectsOtherWeights(t *testing.T) {
	s := State{Pool: domain.Pool{Yes: 100, No: 100}, P: 0.3}
	if _, err := AmountForSharesFixedP(s, 10, domain.OutcomeYes); err == nil {
		t.Error("Expected error for p != 1/2")
	}
}

package domain

import "testing"

func TestOutcome_Valid(t *testing.T) {
	if !OutcomeYes.Valid() || !OutcomeNo.Valid() {
		t.Error("YES and NO must be valid outcomes")
	}
	if Outcome("MAYBE").Valid() {
		t.Error("Unknown outcome must not be valid")
	}
}

func TestOutcome_Opposite(t *testing.T) {
	if OutcomeYes.Opposite() != OutcomeNo {
		t.Error("Opposite of YES should be NO")
	}
	if OutcomeNo.Opposite() != OutcomeYes {
		t.Error("Opposite of NO should be YES")
	}
}

func TestMechanism_RoundTrip(t *testing.T) {
	for _, m := range []Mechanism{MechanismBinary, MechanismMultiSumToOne, MechanismMultiIndependent} {
		parsed, err := ParseMechanism(m.String())
		if err != nil {
			t.Fatalf("ParseMechanism(%q): %v", m.String(), err)
		}
		if parsed != m {
			t.Errorf("Round trip of %v gave %v", m, parsed)
		}
	}

	if _, err := ParseMechanism("dpm-2"); err == nil {
		t.Error("Expected error for unknown mechanism tag")
	}
}

func TestLimitOrder_Open(t *testing.T) {
	base := LimitOrder{OrderAmount: 100, Amount: 40, CreatedTime: 1000}

	t.Run("open order", func(t *testing.T) {
		o := base
		if !o.Open(2000) {
			t.Error("Partially filled, unexpired order should be open")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		o := base
		o.IsCancelled = true
		if o.Open(2000) {
			t.Error("Cancelled order should not be open")
		}
	})

	t.Run("filled", func(t *testing.T) {
		o := base
		o.IsFilled = true
		if o.Open(2000) {
			t.Error("Filled order should not be open")
		}
	})

	t.Run("expired at pass timestamp", func(t *testing.T) {
		o := base
		o.ExpiresAt = 2000
		if o.Open(2000) {
			t.Error("Order expiring exactly at the pass timestamp should be closed")
		}
		if !o.Open(1999) {
			t.Error("Order should be open one tick before expiry")
		}
	})

	t.Run("drained", func(t *testing.T) {
		o := base
		o.Amount = o.OrderAmount
		if o.Open(2000) {
			t.Error("Fully consumed order should not be open")
		}
	})
}

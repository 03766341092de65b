package storage

import (
	"context"
	"errors"
	"testing"

	"predict_go/internal/domain"
	"predict_go/internal/event"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory store: %v", err)
	}
	return s
}

func binaryContract(id string) *domain.Contract {
	return &domain.Contract{
		ID:        id,
		Question:  "Will it rain tomorrow?",
		Mechanism: domain.MechanismBinary,
		Pool:      domain.Pool{Yes: 100, No: 100},
		P:         0.5,
		Version:   1,
	}
}

func TestContract_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	c := &domain.Contract{
		ID:        "c1",
		Question:  "Which bucket?",
		Mechanism: domain.MechanismMultiSumToOne,
		Answers: []*domain.Answer{
			{ID: "a1", ContractID: "c1", Text: "low", Index: 1, PoolYes: 120, PoolNo: 80, Prob: 0.4},
			{ID: "a0", ContractID: "c1", Text: "high", Index: 0, PoolYes: 80, PoolNo: 120, Prob: 0.6},
		},
		CollectedFees: domain.Fees{PlatformFee: 2.5},
		Version:       1,
	}
	if err := s.CreateContract(c); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}

	got, err := s.GetContract("c1")
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected contract, got nil")
	}
	if got.Mechanism != domain.MechanismMultiSumToOne {
		t.Errorf("Mechanism = %v", got.Mechanism)
	}
	if got.CollectedFees.PlatformFee != 2.5 {
		t.Errorf("PlatformFee = %g", got.CollectedFees.PlatformFee)
	}
	if len(got.Answers) != 2 {
		t.Fatalf("Expected 2 answers, got %d", len(got.Answers))
	}
	// Answers come back in index order regardless of insert order.
	if got.Answers[0].ID != "a0" || got.Answers[1].ID != "a1" {
		t.Errorf("Answers out of order: %s, %s", got.Answers[0].ID, got.Answers[1].ID)
	}
}

func TestGetContract_Missing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetContract("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for a missing contract, got %+v", got)
	}
}

func TestOpenOrders_Filtering(t *testing.T) {
	s := newTestStore(t)

	orders := []*domain.LimitOrder{
		{ID: "open-2", UserID: "u1", ContractID: "c1", Outcome: domain.OutcomeNo, OrderAmount: 10, LimitProb: 0.6, CreatedTime: 200},
		{ID: "open-1", UserID: "u1", ContractID: "c1", Outcome: domain.OutcomeYes, OrderAmount: 10, LimitProb: 0.4, CreatedTime: 100},
		{ID: "filled", UserID: "u1", ContractID: "c1", Outcome: domain.OutcomeYes, OrderAmount: 10, LimitProb: 0.4, CreatedTime: 50, IsFilled: true},
		{ID: "cancelled", UserID: "u1", ContractID: "c1", Outcome: domain.OutcomeYes, OrderAmount: 10, LimitProb: 0.4, CreatedTime: 60, IsCancelled: true},
		{ID: "other", UserID: "u1", ContractID: "c2", Outcome: domain.OutcomeYes, OrderAmount: 10, LimitProb: 0.4, CreatedTime: 70},
	}
	for _, o := range orders {
		if err := s.CreateOrder(o); err != nil {
			t.Fatalf("CreateOrder(%s) failed: %v", o.ID, err)
		}
	}

	got, err := s.OpenOrders("c1")
	if err != nil {
		t.Fatalf("OpenOrders failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 open orders, got %d", len(got))
	}
	if got[0].ID != "open-1" || got[1].ID != "open-2" {
		t.Errorf("Orders should come back oldest first: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestOrder_FillsSurviveRoundTrip(t *testing.T) {
	s := newTestStore(t)

	o := &domain.LimitOrder{
		ID: "o1", UserID: "u1", ContractID: "c1",
		Outcome: domain.OutcomeNo, OrderAmount: 20, Amount: 5, Shares: 11,
		LimitProb: 0.55, CreatedTime: 100,
		Fills: []domain.OrderFill{
			{MatchedBetID: "b1", Amount: 5, Shares: 11, Timestamp: 150},
		},
	}
	if err := s.CreateOrder(o); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	got, err := s.GetOrder("o1")
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if len(got.Fills) != 1 || got.Fills[0].MatchedBetID != "b1" {
		t.Errorf("Fills lost in round trip: %+v", got.Fills)
	}
}

func TestBalances(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertUser(&UserRow{ID: "u1", Name: "alice", Balance: 100}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	if err := s.UpsertUser(&UserRow{ID: "u2", Name: "bob", Balance: 50}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	got, err := s.Balances([]string{"u1", "u2", "ghost"})
	if err != nil {
		t.Fatalf("Balances failed: %v", err)
	}
	if got["u1"] != 100 || got["u2"] != 50 {
		t.Errorf("Balances = %v", got)
	}
	if _, ok := got["ghost"]; ok {
		t.Error("Unknown users must be absent, not zero")
	}
}

func TestCommitTrade_AppliesWriteSet(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateContract(binaryContract("c1")); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	if err := s.UpsertUser(&UserRow{ID: "u1", Balance: 100}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}

	tc := &TradeCommit{
		ContractID:      "c1",
		ExpectedVersion: 1,
		Pool:            &domain.Pool{Yes: 90, No: 110},
		P:               0.5,
		CollectedFees:   domain.Fees{PlatformFee: 1.2},
		Bets: []*domain.Bet{
			{ID: "b1", UserID: "u1", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 10, Shares: 18, IsFilled: true},
		},
		BalanceDeltas: map[string]float64{"u1": -10},
	}
	if err := s.CommitTrade(tc); err != nil {
		t.Fatalf("CommitTrade failed: %v", err)
	}

	c, err := s.GetContract("c1")
	if err != nil {
		t.Fatalf("GetContract failed: %v", err)
	}
	if c.Version != 2 {
		t.Errorf("Version should advance to 2, got %d", c.Version)
	}
	if c.Pool.Yes != 90 || c.Pool.No != 110 {
		t.Errorf("Pool not applied: %+v", c.Pool)
	}
	if c.CollectedFees.PlatformFee != 1.2 {
		t.Errorf("Fees not applied: %+v", c.CollectedFees)
	}

	u, err := s.GetUser("u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u.Balance != 90 {
		t.Errorf("Balance delta not applied, got %g", u.Balance)
	}
}

func TestCommitTrade_StaleVersion(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateContract(binaryContract("c1")); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}

	fresh := &TradeCommit{ContractID: "c1", ExpectedVersion: 1, Pool: &domain.Pool{Yes: 95, No: 105}, P: 0.5}
	if err := s.CommitTrade(fresh); err != nil {
		t.Fatalf("First commit failed: %v", err)
	}

	// A second writer still holding version 1 must lose.
	stale := &TradeCommit{ContractID: "c1", ExpectedVersion: 1, Pool: &domain.Pool{Yes: 80, No: 120}, P: 0.5}
	err := s.CommitTrade(stale)
	if !errors.Is(err, domain.ErrStaleSnapshot) {
		t.Fatalf("Expected ErrStaleSnapshot, got %v", err)
	}
	if !domain.IsRetriable(err) {
		t.Error("A stale snapshot should be retriable")
	}

	// The losing write must leave no trace.
	c, _ := s.GetContract("c1")
	if c.Pool.Yes != 95 {
		t.Errorf("Stale commit leaked into the pool: %+v", c.Pool)
	}
}

func TestCommitTrade_CancelsAndNewOrder(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateContract(binaryContract("c1")); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	drained := &domain.LimitOrder{ID: "drained", UserID: "u2", ContractID: "c1", Outcome: domain.OutcomeNo, OrderAmount: 20, LimitProb: 0.55, CreatedTime: 100}
	if err := s.CreateOrder(drained); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	tc := &TradeCommit{
		ContractID:      "c1",
		ExpectedVersion: 1,
		NewOrder: &domain.LimitOrder{
			ID: "rest", UserID: "u1", ContractID: "c1", Outcome: domain.OutcomeYes,
			OrderAmount: 50, Amount: 30, LimitProb: 0.6, CreatedTime: 200,
		},
		CancelOrders: []string{"drained"},
	}
	if err := s.CommitTrade(tc); err != nil {
		t.Fatalf("CommitTrade failed: %v", err)
	}

	open, err := s.OpenOrders("c1")
	if err != nil {
		t.Fatalf("OpenOrders failed: %v", err)
	}
	if len(open) != 1 || open[0].ID != "rest" {
		t.Fatalf("Expected only the resting remainder open, got %+v", open)
	}

	cancelled, _ := s.GetOrder("drained")
	if !cancelled.IsCancelled {
		t.Error("Cancelled order should be flagged")
	}
}

func TestCommitTrade_UpdatesAnswers(t *testing.T) {
	s := newTestStore(t)

	c := &domain.Contract{
		ID: "c1", Question: "multi", Mechanism: domain.MechanismMultiSumToOne, Version: 1,
		Answers: []*domain.Answer{
			{ID: "a0", ContractID: "c1", Index: 0, PoolYes: 100, PoolNo: 100, Prob: 0.5},
			{ID: "a1", ContractID: "c1", Index: 1, PoolYes: 100, PoolNo: 100, Prob: 0.5},
		},
	}
	if err := s.CreateContract(c); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}

	tc := &TradeCommit{
		ContractID:      "c1",
		ExpectedVersion: 1,
		Answers: []*domain.Answer{
			{ID: "a0", PoolYes: 80, PoolNo: 125, Prob: 0.61},
			{ID: "a1", PoolYes: 125, PoolNo: 80, Prob: 0.39},
		},
	}
	if err := s.CommitTrade(tc); err != nil {
		t.Fatalf("CommitTrade failed: %v", err)
	}

	got, _ := s.GetContract("c1")
	if got.Answers[0].Prob != 0.61 || got.Answers[1].Prob != 0.39 {
		t.Errorf("Answer probs not applied: %g, %g", got.Answers[0].Prob, got.Answers[1].Prob)
	}
	if got.Answers[0].PoolYes != 80 {
		t.Errorf("Answer pool not applied: %g", got.Answers[0].PoolYes)
	}
}

func TestLoadSnapshot(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateContract(binaryContract("c1")); err != nil {
		t.Fatalf("CreateContract failed: %v", err)
	}
	if err := s.UpsertUser(&UserRow{ID: "maker", Balance: 42}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	o := &domain.LimitOrder{ID: "o1", UserID: "maker", ContractID: "c1", Outcome: domain.OutcomeNo, OrderAmount: 20, LimitProb: 0.55, CreatedTime: 100}
	if err := s.CreateOrder(o); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	snap, err := s.LoadSnapshot("c1")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snap.Contract.ID != "c1" {
		t.Errorf("Contract = %s", snap.Contract.ID)
	}
	if len(snap.Orders) != 1 {
		t.Fatalf("Expected 1 open order, got %d", len(snap.Orders))
	}
	if snap.Balances["maker"] != 42 {
		t.Errorf("Owner balance missing: %v", snap.Balances)
	}

	if _, err := s.LoadSnapshot("nope"); err == nil {
		t.Error("Expected error for a missing contract")
	}
}

func TestEventWAL_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	lp := 0.55
	events := []event.Event{
		&event.BetRequestEvent{
			BaseEvent:  event.BaseEvent{Seq: 1, Ts: 1000},
			BetID:      "b1",
			UserID:     "u1",
			ContractID: "c1",
			Outcome:    domain.OutcomeYes,
			Amount:     20,
			LimitProb:  &lp,
		},
		&event.SellRequestEvent{
			BaseEvent:  event.BaseEvent{Seq: 2, Ts: 1001},
			BetID:      "b2",
			UserID:     "u1",
			ContractID: "c1",
			Outcome:    domain.OutcomeYes,
			Shares:     15,
		},
		&event.CancelRequestEvent{
			BaseEvent: event.BaseEvent{Seq: 3, Ts: 1002},
			UserID:    "u1",
			OrderID:   "o1",
		},
	}
	for _, ev := range events {
		if err := s.SaveEvent(ctx, ev); err != nil {
			t.Fatalf("SaveEvent(%d) failed: %v", ev.GetSeq(), err)
		}
	}

	last, err := s.LastSeq()
	if err != nil {
		t.Fatalf("LastSeq failed: %v", err)
	}
	if last != 3 {
		t.Errorf("LastSeq = %d, want 3", last)
	}

	loaded, err := s.LoadEvents(1)
	if err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(loaded))
	}

	bet, ok := loaded[0].(*event.BetRequestEvent)
	if !ok {
		t.Fatalf("Event 1 decoded as %T", loaded[0])
	}
	if bet.BetID != "b1" || bet.Amount != 20 {
		t.Errorf("Bet event lost fields: %+v", bet)
	}
	if bet.LimitProb == nil || *bet.LimitProb != 0.55 {
		t.Errorf("LimitProb lost: %v", bet.LimitProb)
	}

	if _, ok := loaded[1].(*event.SellRequestEvent); !ok {
		t.Errorf("Event 2 decoded as %T", loaded[1])
	}
	if _, ok := loaded[2].(*event.CancelRequestEvent); !ok {
		t.Errorf("Event 3 decoded as %T", loaded[2])
	}

	// Partial reads start at the requested sequence.
	tail, err := s.LoadEvents(3)
	if err != nil {
		t.Fatalf("LoadEvents(3) failed: %v", err)
	}
	if len(tail) != 1 || tail[0].GetSeq() != 3 {
		t.Errorf("Expected only seq 3, got %d events", len(tail))
	}
}

func TestSaveEvent_RejectsDuplicateSeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := &event.BetRequestEvent{BaseEvent: event.BaseEvent{Seq: 7, Ts: 1000}, BetID: "b1", UserID: "u1", ContractID: "c1", Outcome: domain.OutcomeYes, Amount: 5}
	if err := s.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
	if err := s.SaveEvent(ctx, ev); err == nil {
		t.Error("Duplicate sequence number must be rejected")
	}
}

func TestCancelOrder(t *testing.T) {
	s := newTestStore(t)

	o := &domain.LimitOrder{ID: "o1", UserID: "u1", ContractID: "c1", Outcome: domain.OutcomeYes, OrderAmount: 10, LimitProb: 0.4, CreatedTime: 100}
	if err := s.CreateOrder(o); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if err := s.CancelOrder("o1"); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	got, _ := s.GetOrder("o1")
	if !got.IsCancelled {
		t.Error("Order should be cancelled")
	}

	if err := s.CancelOrder("nope"); err == nil {
		t.Error("Expected error for a missing order")
	}
}

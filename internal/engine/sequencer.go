package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"predict_go/internal/domain"
	"predict_go/internal/event"
	"predict_go/internal/infra"
	"predict_go/internal/infra/storage"
	"predict_go/internal/service"
)

// Result is what the sequencer hands to the boundary after each
// request: the primary bet (if any) and the error, tagged with the
// request's sequence number.
type Result struct {
	Seq     uint64
	Type    event.Type
	Bet     *domain.Bet
	CalcErr *domain.CalcError
	Err     error
}

// Sequencer is the core single-threaded trade processor. All trades
// against all contracts flow through one inbox, giving total ordering
// per contract for free.
type Sequencer struct {
	inbox   chan event.Event
	nextSeq uint64
	store   *storage.Store
	svc     *service.MarketService

	// Boundary: used to notify UI or other systems of trade results
	onResult func(Result)

	mu sync.RWMutex // Used only for external reads (e.g. UI)
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, store *storage.Store, svc *service.MarketService, onResult func(Result)) *Sequencer {
	return &Sequencer{
		inbox:    make(chan event.Event, inboxSize),
		nextSeq:  1,
		store:    store,
		svc:      svc,
		onResult: onResult,
	}
}

// Inbox returns the event channel. External producers send requests here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started (Single-Thread Hotpath)")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			// Halt after dump: an invariant violation must not keep trading.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case ev := <-s.inbox:
			s.processEvent(ctx, ev)
		}
	}
}

func (s *Sequencer) processEvent(ctx context.Context, ev event.Event) {
	start := time.Now()

	// 1. Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	// 2. WAL-first: Persistence
	if s.store != nil {
		if err := s.store.SaveEvent(ctx, ev); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	// 3. Logic Dispatch
	s.dispatch(ctx, ev)

	// 4. Increment Sequence
	s.mu.Lock()
	s.nextSeq++
	s.mu.Unlock()

	infra.GlobalMetrics.RecordTrade(time.Since(start).Nanoseconds())
}

// ReplayEvent processes an event synchronously without WAL logging.
// It exists to rebuild a fresh database from a saved WAL; replaying
// against a database that already saw the event double-applies it.
func (s *Sequencer) ReplayEvent(ctx context.Context, ev event.Event) {
	// Replay must still respect sequence order
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	s.dispatch(ctx, ev)
	s.mu.Lock()
	s.nextSeq++
	s.mu.Unlock()
}

func (s *Sequencer) dispatch(ctx context.Context, ev event.Event) {
	switch e := ev.(type) {
	case *event.BetRequestEvent:
		s.handleBetRequest(ctx, e)
	case *event.SellRequestEvent:
		s.handleSellRequest(ctx, e)
	case *event.CancelRequestEvent:
		s.handleCancelRequest(ctx, e)
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}
}

func (s *Sequencer) handleBetRequest(ctx context.Context, e *event.BetRequestEvent) {
	res, err := s.svc.PlaceBet(ctx, &service.PlaceBetRequest{
		BetID:      e.BetID,
		UserID:     e.UserID,
		ContractID: e.ContractID,
		AnswerID:   e.AnswerID,
		Outcome:    e.Outcome,
		Amount:     e.Amount,
		LimitProb:  e.LimitProb,
		ExpiresAt:  e.ExpiresAt,
		Now:        e.Ts,
	})

	out := Result{Seq: e.Seq, Type: event.TypeBetRequest, Err: err}
	if err != nil {
		infra.GlobalMetrics.RecordRejected()
		slog.Error("bet rejected",
			slog.String("contract", e.ContractID),
			slog.String("user", e.UserID),
			slog.Any("error", err))
	} else {
		out.Bet = res.Bet
		out.CalcErr = res.CalcErr
		infra.GlobalMetrics.RecordFills(len(res.Bet.Fills))
		infra.GlobalMetrics.RecordCancellations(len(res.CancelledOrders))
	}

	if s.onResult != nil {
		s.onResult(out)
	}
}

func (s *Sequencer) handleSellRequest(ctx context.Context, e *event.SellRequestEvent) {
	res, err := s.svc.SellShares(ctx, &service.SellSharesRequest{
		BetID:      e.BetID,
		UserID:     e.UserID,
		ContractID: e.ContractID,
		AnswerID:   e.AnswerID,
		Outcome:    e.Outcome,
		Shares:     e.Shares,
		LoanOwed:   e.LoanOwed,
		Now:        e.Ts,
	})

	out := Result{Seq: e.Seq, Type: event.TypeSellRequest, Err: err}
	if err != nil {
		infra.GlobalMetrics.RecordRejected()
		slog.Error("sale rejected",
			slog.String("contract", e.ContractID),
			slog.String("user", e.UserID),
			slog.Any("error", err))
	} else {
		out.Bet = res.Bet
		out.CalcErr = res.CalcErr
		infra.GlobalMetrics.RecordFills(len(res.Bet.Fills))
		infra.GlobalMetrics.RecordCancellations(len(res.CancelledOrders))
	}

	if s.onResult != nil {
		s.onResult(out)
	}
}

func (s *Sequencer) handleCancelRequest(ctx context.Context, e *event.CancelRequestEvent) {
	err := s.svc.CancelOrder(ctx, e.UserID, e.OrderID)
	if err != nil {
		infra.GlobalMetrics.RecordRejected()
		slog.Error("cancel rejected",
			slog.String("order", e.OrderID),
			slog.Any("error", err))
	} else {
		infra.GlobalMetrics.RecordCancellations(1)
	}

	if s.onResult != nil {
		s.onResult(Result{Seq: e.Seq, Type: event.TypeCancelRequest, Err: err})
	}
}

// NextSeq returns the sequence number the sequencer expects next
// (external read).
func (s *Sequencer) NextSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

// DumpState writes the sequencer's position and counters to a file
// (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq uint64                `json:"next_seq"`
		Metrics infra.MetricsSnapshot `json:"metrics"`
	}{
		NextSeq: s.nextSeq,
		Metrics: infra.GlobalMetrics.Snapshot(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}

// Package service orchestrates one trade end to end: load a snapshot,
// run the pricing engine on it, and commit the result. The engine
// packages stay pure; everything stateful lives here and in the store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"predict_go/internal/arb"
	"predict_go/internal/cpmm"
	"predict_go/internal/domain"
	"predict_go/internal/infra/storage"
	"predict_go/pkg/mathx"

	"github.com/google/uuid"
)

// commitRetries bounds the optimistic-concurrency retry loop. Each
// retry re-snapshots, so a loser of the race prices against the
// winner's state.
const commitRetries = 3

// MarketService is the trade orchestrator for all contracts.
type MarketService struct {
	store *storage.Store
	log   *slog.Logger
}

// NewMarketService creates a service over the given store.
func NewMarketService(store *storage.Store, log *slog.Logger) *MarketService {
	if log == nil {
		log = slog.Default()
	}
	return &MarketService{store: store, log: log}
}

// PlaceBetRequest is one incoming trade. LimitProb nil means a market
// order. Now is the matching-pass timestamp in unix millis; every
// expiry check in the pass uses it.
type PlaceBetRequest struct {
	BetID      string // generated when empty
	UserID     string
	ContractID string
	AnswerID   string
	Outcome    domain.Outcome
	Amount     float64
	LimitProb  *float64
	ExpiresAt  int64
	Now        int64
}

// PlaceBetResult is what the caller gets back: the primary bet record,
// any redemption bets the arbitrage produced, the resting remainder of
// a limit order, and cancelled order ids.
type PlaceBetResult struct {
	Bet             *domain.Bet
	RedemptionBets  []*domain.Bet
	NewOrder        *domain.LimitOrder
	CancelledOrders []string
	CalcErr         *domain.CalcError
}

// PlaceBet prices and commits one bet. A stale snapshot (a concurrent
// trade won the commit race) is retried with a fresh snapshot up to
// commitRetries times.
func (s *MarketService) PlaceBet(ctx context.Context, req *PlaceBetRequest) (*PlaceBetResult, error) {
	if req.Amount < 0 || math.IsNaN(req.Amount) {
		return nil, &domain.PreconditionError{Field: "amount", Err: domain.ErrNegativeAmount}
	}
	if !req.Outcome.Valid() {
		return nil, &domain.PreconditionError{Field: "outcome", Err: domain.ErrUnknownOutcome}
	}
	if req.BetID == "" {
		req.BetID = uuid.NewString()
	}

	var lastErr error
	for attempt := 0; attempt < commitRetries; attempt++ {
		res, err := s.placeBetOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		if !domain.IsRetriable(err) {
			return nil, err
		}
		lastErr = err
		s.log.Warn("stale snapshot, retrying",
			slog.String("contract", req.ContractID),
			slog.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("place bet on %s: %w", req.ContractID, lastErr)
}

func (s *MarketService) placeBetOnce(ctx context.Context, req *PlaceBetRequest) (*PlaceBetResult, error) {
	snap, err := s.store.LoadSnapshot(req.ContractID)
	if err != nil {
		return nil, err
	}

	switch snap.Contract.Mechanism {
	case domain.MechanismBinary:
		return s.placeBinaryBet(snap, req)
	case domain.MechanismMultiSumToOne:
		return s.placeMultiBet(snap, req)
	case domain.MechanismMultiIndependent:
		return s.placeIndependentBet(snap, req)
	default:
		return nil, &domain.PreconditionError{Field: "mechanism", Err: domain.ErrWrongMechanism}
	}
}

func (s *MarketService) placeBinaryBet(snap *storage.Snapshot, req *PlaceBetRequest) (*PlaceBetResult, error) {
	c := snap.Contract
	state := cpmm.State{Pool: c.Pool, P: c.P}

	res, err := cpmm.SimulateBet(state, req.Outcome, req.Amount, req.LimitProb, snap.Orders, snap.Balances, req.Now)
	if err != nil {
		return nil, err
	}

	bet := s.betFromResult(req, res)
	newOrder := s.restingRemainder(req, res)
	updated, cancelled := applyMakerFills(res.Makers, res.OrdersToCancel, bet.ID, req.Now)

	deltas := makerBalanceDeltas(res.Makers)
	deltas[req.UserID] -= res.Amount

	tc := &storage.TradeCommit{
		ContractID:      c.ID,
		ExpectedVersion: c.Version,
		Pool:            &res.State.Pool,
		P:               res.State.P,
		CollectedFees:   c.CollectedFees.Add(res.TotalFees),
		Bets:            []*domain.Bet{bet},
		UpdatedOrders:   updated,
		NewOrder:        newOrder,
		CancelOrders:    cancelled,
		BalanceDeltas:   deltas,
	}
	if err := s.store.CommitTrade(tc); err != nil {
		return nil, err
	}

	return &PlaceBetResult{
		Bet:             bet,
		NewOrder:        newOrder,
		CancelledOrders: cancelled,
		CalcErr:         res.CalcErr,
	}, nil
}

func (s *MarketService) placeMultiBet(snap *storage.Snapshot, req *PlaceBetRequest) (*PlaceBetResult, error) {
	c := snap.Contract
	answers := c.LiveAnswers()
	target := c.Answer(req.AnswerID)
	if target == nil {
		return nil, &domain.PreconditionError{Field: "answerId", Err: domain.ErrUnknownAnswer}
	}

	res, err := arb.BuyAnswer(answers, target, req.Outcome, req.Amount, req.LimitProb, snap.Orders, snap.Balances, req.Now)
	if err != nil {
		return nil, err
	}

	bet := s.betFromLeg(req, res.NewBetResult, res.CalcErr)
	redemptions := make([]*domain.Bet, 0, len(res.OtherBetResults))
	var makers []domain.Maker
	var toCancel []*domain.LimitOrder
	if res.NewBetResult != nil {
		makers = append(makers, res.NewBetResult.Makers...)
		toCancel = append(toCancel, res.NewBetResult.OrdersToCancel...)
	}
	for _, leg := range res.OtherBetResults {
		redemptions = append(redemptions, s.redemptionBet(req, leg))
		makers = append(makers, leg.Makers...)
		toCancel = append(toCancel, leg.OrdersToCancel...)
	}

	updated, cancelled := applyMakerFills(makers, toCancel, bet.ID, req.Now)

	deltas := makerBalanceDeltas(makers)
	deltas[req.UserID] -= bet.Amount
	for _, r := range redemptions {
		deltas[req.UserID] -= r.Amount // redemption legs net to zero
	}

	tc := &storage.TradeCommit{
		ContractID:      c.ID,
		ExpectedVersion: c.Version,
		Answers:         res.UpdatedAnswers,
		CollectedFees:   c.CollectedFees.Add(domain.SplitFees(res.TotalFee)),
		Bets:            append([]*domain.Bet{bet}, redemptions...),
		UpdatedOrders:   updated,
		CancelOrders:    cancelled,
		BalanceDeltas:   deltas,
	}
	if err := s.store.CommitTrade(tc); err != nil {
		return nil, err
	}

	return &PlaceBetResult{
		Bet:             bet,
		RedemptionBets:  redemptions,
		CancelledOrders: cancelled,
		CalcErr:         res.CalcErr,
	}, nil
}

// placeIndependentBet prices an answer of an independent-answers
// contract as its own two-sided pool; no cross-answer legs exist.
func (s *MarketService) placeIndependentBet(snap *storage.Snapshot, req *PlaceBetRequest) (*PlaceBetResult, error) {
	c := snap.Contract
	target := c.Answer(req.AnswerID)
	if target == nil {
		return nil, &domain.PreconditionError{Field: "answerId", Err: domain.ErrUnknownAnswer}
	}

	orders := arb.OrdersByAnswer(snap.Orders)[target.ID]
	res, err := cpmm.SimulateBet(cpmm.AnswerState(target), req.Outcome, req.Amount, req.LimitProb, orders, snap.Balances, req.Now)
	if err != nil {
		return nil, err
	}

	bet := s.betFromResult(req, res)
	newOrder := s.restingRemainder(req, res)
	updated, cancelled := applyMakerFills(res.Makers, res.OrdersToCancel, bet.ID, req.Now)

	after := *target
	after.PoolYes = res.State.Pool.Yes
	after.PoolNo = res.State.Pool.No
	after.Prob = res.State.Prob()

	deltas := makerBalanceDeltas(res.Makers)
	deltas[req.UserID] -= res.Amount

	tc := &storage.TradeCommit{
		ContractID:      c.ID,
		ExpectedVersion: c.Version,
		Answers:         []*domain.Answer{&after},
		CollectedFees:   c.CollectedFees.Add(res.TotalFees),
		Bets:            []*domain.Bet{bet},
		UpdatedOrders:   updated,
		NewOrder:        newOrder,
		CancelOrders:    cancelled,
		BalanceDeltas:   deltas,
	}
	if err := s.store.CommitTrade(tc); err != nil {
		return nil, err
	}

	return &PlaceBetResult{
		Bet:             bet,
		NewOrder:        newOrder,
		CancelledOrders: cancelled,
		CalcErr:         res.CalcErr,
	}, nil
}

// SellSharesRequest unwinds a held position. LoanOwed is netted out of
// gross proceeds, never below zero payout.
type SellSharesRequest struct {
	BetID      string
	UserID     string
	ContractID string
	AnswerID   string
	Outcome    domain.Outcome
	Shares     float64
	LoanOwed   float64
	Now        int64
}

// SellSharesResult reports proceeds after loan netting.
type SellSharesResult struct {
	Bet             *domain.Bet
	RedemptionBets  []*domain.Bet
	SaleValue       float64
	NetPayout       float64
	LoanRepaid      float64
	LoanRemaining   float64
	CancelledOrders []string
	CalcErr         *domain.CalcError
}

// SellShares prices and commits a sale, with the same retry discipline
// as PlaceBet.
func (s *MarketService) SellShares(ctx context.Context, req *SellSharesRequest) (*SellSharesResult, error) {
	if req.Shares < 0 || math.IsNaN(req.Shares) {
		return nil, &domain.PreconditionError{Field: "shares", Err: domain.ErrNegativeAmount}
	}
	if req.BetID == "" {
		req.BetID = uuid.NewString()
	}

	var lastErr error
	for attempt := 0; attempt < commitRetries; attempt++ {
		res, err := s.sellSharesOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		if !domain.IsRetriable(err) {
			return nil, err
		}
		lastErr = err
		s.log.Warn("stale snapshot, retrying",
			slog.String("contract", req.ContractID),
			slog.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("sell shares on %s: %w", req.ContractID, lastErr)
}

func (s *MarketService) sellSharesOnce(ctx context.Context, req *SellSharesRequest) (*SellSharesResult, error) {
	snap, err := s.store.LoadSnapshot(req.ContractID)
	if err != nil {
		return nil, err
	}

	switch snap.Contract.Mechanism {
	case domain.MechanismBinary:
		return s.sellBinary(snap, req)
	case domain.MechanismMultiSumToOne:
		return s.sellMulti(snap, req)
	default:
		return nil, &domain.PreconditionError{Field: "mechanism", Err: domain.ErrWrongMechanism}
	}
}

func (s *MarketService) sellBinary(snap *storage.Snapshot, req *SellSharesRequest) (*SellSharesResult, error) {
	c := snap.Contract
	state := cpmm.State{Pool: c.Pool, P: c.P}

	res, err := cpmm.Sale(state, req.Shares, req.Outcome, snap.Orders, snap.Balances, req.Now)
	if err != nil {
		return nil, err
	}
	res.ApplyLoan(req.LoanOwed)

	bet := &domain.Bet{
		ID:          req.BetID,
		UserID:      req.UserID,
		ContractID:  req.ContractID,
		Outcome:     req.Outcome,
		OrderAmount: -res.SaleValue,
		Amount:      -res.SaleValue,
		Shares:      -req.Shares,
		IsFilled:    true,
		Fills:       res.Takers,
		ProbBefore:  res.ProbBefore,
		ProbAfter:   res.ProbAfter,
		Fees:        res.Fees,
		IsSale:      true,
		CreatedTime: req.Now,
	}

	updated, cancelled := applyMakerFills(res.Makers, res.OrdersToCancel, bet.ID, req.Now)

	payout := domain.RoundCurrency(res.NetPayout)
	deltas := makerBalanceDeltas(res.Makers)
	deltas[req.UserID] += payout

	tc := &storage.TradeCommit{
		ContractID:      c.ID,
		ExpectedVersion: c.Version,
		Pool:            &res.State.Pool,
		P:               res.State.P,
		CollectedFees:   c.CollectedFees.Add(res.Fees),
		Bets:            []*domain.Bet{bet},
		UpdatedOrders:   updated,
		CancelOrders:    cancelled,
		BalanceDeltas:   deltas,
	}
	if err := s.store.CommitTrade(tc); err != nil {
		return nil, err
	}

	return &SellSharesResult{
		Bet:             bet,
		SaleValue:       res.SaleValue,
		NetPayout:       payout,
		LoanRepaid:      res.LoanRepaid,
		LoanRemaining:   res.LoanRemaining,
		CancelledOrders: cancelled,
		CalcErr:         res.CalcErr,
	}, nil
}

func (s *MarketService) sellMulti(snap *storage.Snapshot, req *SellSharesRequest) (*SellSharesResult, error) {
	c := snap.Contract
	answers := c.LiveAnswers()
	target := c.Answer(req.AnswerID)
	if target == nil {
		return nil, &domain.PreconditionError{Field: "answerId", Err: domain.ErrUnknownAnswer}
	}

	res, err := arb.SellAnswer(answers, target, req.Shares, req.Outcome, nil, snap.Orders, snap.Balances, req.Now)
	if err != nil {
		return nil, err
	}

	bet := &domain.Bet{
		ID:          req.BetID,
		UserID:      req.UserID,
		ContractID:  req.ContractID,
		AnswerID:    req.AnswerID,
		Outcome:     req.Outcome,
		OrderAmount: -res.SaleValue,
		Amount:      -res.SaleValue,
		Shares:      -req.Shares,
		IsFilled:    true,
		Fills:       res.NewBetResult.Takers,
		ProbBefore:  target.Prob,
		ProbAfter:   res.NewBetResult.State.Prob(),
		Fees:        res.NewBetResult.TotalFees,
		IsSale:      true,
		CreatedTime: req.Now,
	}

	betReq := &PlaceBetRequest{UserID: req.UserID, ContractID: req.ContractID, Now: req.Now}
	redemptions := make([]*domain.Bet, 0, len(res.OtherBetResults))
	makers := append([]domain.Maker{}, res.NewBetResult.Makers...)
	toCancel := append([]*domain.LimitOrder{}, res.NewBetResult.OrdersToCancel...)
	for _, leg := range res.OtherBetResults {
		redemptions = append(redemptions, s.redemptionBet(betReq, leg))
		makers = append(makers, leg.Makers...)
		toCancel = append(toCancel, leg.OrdersToCancel...)
	}

	updated, cancelled := applyMakerFills(makers, toCancel, bet.ID, req.Now)

	gross := res.SaleValue
	repaid := math.Min(req.LoanOwed, math.Max(gross, 0))
	remaining := math.Max(req.LoanOwed-repaid, 0)
	payout := domain.RoundCurrency(gross - repaid)

	var calcErr *domain.CalcError
	if remaining > 0 {
		calcErr = &domain.CalcError{
			Kind:            domain.CalcErrorLoanShortfall,
			RequestedAmount: req.LoanOwed,
			FilledAmount:    repaid,
			Detail:          "sale proceeds did not cover outstanding loan",
		}
	}

	deltas := makerBalanceDeltas(makers)
	deltas[req.UserID] += payout
	for _, r := range redemptions {
		deltas[req.UserID] -= r.Amount
	}

	tc := &storage.TradeCommit{
		ContractID:      c.ID,
		ExpectedVersion: c.Version,
		Answers:         res.UpdatedAnswers,
		CollectedFees:   c.CollectedFees.Add(domain.SplitFees(res.TotalFee)),
		Bets:            append([]*domain.Bet{bet}, redemptions...),
		UpdatedOrders:   updated,
		CancelOrders:    cancelled,
		BalanceDeltas:   deltas,
	}
	if err := s.store.CommitTrade(tc); err != nil {
		return nil, err
	}

	return &SellSharesResult{
		Bet:             bet,
		RedemptionBets:  redemptions,
		SaleValue:       gross,
		NetPayout:       payout,
		LoanRepaid:      repaid,
		LoanRemaining:   remaining,
		CancelledOrders: cancelled,
		CalcErr:         calcErr,
	}, nil
}

// CancelOrder cancels a resting limit order owned by userID.
func (s *MarketService) CancelOrder(ctx context.Context, userID, orderID string) error {
	o, err := s.store.GetOrder(orderID)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.UserID != userID {
		return fmt.Errorf("order %s is not owned by %s", orderID, userID)
	}
	if o.IsFilled || o.IsCancelled {
		return nil
	}
	return s.store.CancelOrder(orderID)
}

// ======================================================================================
// Result assembly
// ======================================================================================

func (s *MarketService) betFromResult(req *PlaceBetRequest, res *cpmm.BetResult) *domain.Bet {
	bet := &domain.Bet{
		ID:          req.BetID,
		UserID:      req.UserID,
		ContractID:  req.ContractID,
		AnswerID:    req.AnswerID,
		Outcome:     req.Outcome,
		OrderAmount: req.Amount,
		Amount:      res.Amount,
		Shares:      res.Shares,
		Fills:       res.Takers,
		ProbBefore:  res.ProbBefore,
		ProbAfter:   res.ProbAfter,
		Fees:        res.TotalFees,
		ExpiresAt:   req.ExpiresAt,
		CreatedTime: req.Now,
	}
	if req.LimitProb != nil {
		bet.HasLimit = true
		bet.LimitProb = *req.LimitProb
	}
	bet.IsFilled = mathx.FloatingGreaterEqual(res.Amount, req.Amount)
	return bet
}

// betFromLeg builds the primary bet record of a multi-answer trade.
func (s *MarketService) betFromLeg(req *PlaceBetRequest, leg *arb.BetResult, calcErr *domain.CalcError) *domain.Bet {
	bet := &domain.Bet{
		ID:          req.BetID,
		UserID:      req.UserID,
		ContractID:  req.ContractID,
		AnswerID:    req.AnswerID,
		Outcome:     req.Outcome,
		OrderAmount: req.Amount,
		ExpiresAt:   req.ExpiresAt,
		CreatedTime: req.Now,
	}
	if req.LimitProb != nil {
		bet.HasLimit = true
		bet.LimitProb = *req.LimitProb
	}
	if leg == nil {
		// nothing matched; the full amount would rest (limit) or was
		// rejected at the bound (market)
		return bet
	}
	bet.Amount = sumFillAmounts(leg.Takers)
	bet.Shares = sumFillShares(leg.Takers)
	bet.Fills = leg.Takers
	bet.ProbBefore = leg.Answer.Prob
	bet.ProbAfter = leg.State.Prob()
	bet.Fees = leg.TotalFees
	bet.IsFilled = mathx.FloatingGreaterEqual(bet.Amount, req.Amount) && calcErr == nil
	return bet
}

// redemptionBet records an arbitrage leg on a non-target answer. Its
// fills net to zero currency and shares for the trader.
func (s *MarketService) redemptionBet(req *PlaceBetRequest, leg *arb.BetResult) *domain.Bet {
	return &domain.Bet{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		ContractID:   req.ContractID,
		AnswerID:     leg.Answer.ID,
		Outcome:      leg.Outcome,
		Amount:       sumFillAmounts(leg.Takers),
		Shares:       sumFillShares(leg.Takers),
		Fills:        leg.Takers,
		ProbBefore:   leg.Answer.Prob,
		ProbAfter:    leg.State.Prob(),
		Fees:         leg.TotalFees,
		IsFilled:     true,
		IsRedemption: true,
		CreatedTime:  req.Now,
	}
}

// restingRemainder turns the unfilled part of a limit bet into a
// resting order, carrying what already filled.
func (s *MarketService) restingRemainder(req *PlaceBetRequest, res *cpmm.BetResult) *domain.LimitOrder {
	if req.LimitProb == nil {
		return nil
	}
	if mathx.FloatingGreaterEqual(res.Amount, req.Amount) {
		return nil
	}

	fills := make([]domain.OrderFill, len(res.Takers))
	for i, t := range res.Takers {
		fills[i] = domain.OrderFill{
			Amount:       t.Amount,
			Shares:       t.Shares,
			MatchedBetID: t.MatchedOrderID,
			Timestamp:    t.Timestamp,
		}
	}

	return &domain.LimitOrder{
		ID:          req.BetID,
		UserID:      req.UserID,
		ContractID:  req.ContractID,
		AnswerID:    req.AnswerID,
		Outcome:     req.Outcome,
		OrderAmount: req.Amount,
		Amount:      res.Amount,
		Shares:      res.Shares,
		LimitProb:   *req.LimitProb,
		Fills:       fills,
		CreatedTime: req.Now,
		ExpiresAt:   req.ExpiresAt,
	}
}

// applyMakerFills folds maker executions into their orders and returns
// the updated rows plus ids to cancel. One order can be touched by
// several legs of the same pass.
func applyMakerFills(makers []domain.Maker, toCancel []*domain.LimitOrder, betID string, now int64) ([]*domain.LimitOrder, []string) {
	byID := make(map[string]*domain.LimitOrder)
	var updated []*domain.LimitOrder
	for _, m := range makers {
		o := byID[m.Order.ID]
		if o == nil {
			o = m.Order
			byID[o.ID] = o
			updated = append(updated, o)
		}
		o.Amount += m.Amount
		o.Shares += m.Shares
		o.Fills = append(o.Fills, domain.OrderFill{
			Amount:       m.Amount,
			Shares:       m.Shares,
			MatchedBetID: betID,
			Timestamp:    now,
		})
		if mathx.FloatingGreaterEqual(o.Amount, o.OrderAmount) {
			o.IsFilled = true
		}
	}

	seen := make(map[string]bool)
	var cancelled []string
	for _, o := range toCancel {
		if !seen[o.ID] {
			seen[o.ID] = true
			cancelled = append(cancelled, o.ID)
		}
	}
	return updated, cancelled
}

func makerBalanceDeltas(makers []domain.Maker) map[string]float64 {
	deltas := make(map[string]float64)
	for _, m := range makers {
		deltas[m.Order.UserID] -= m.Amount
	}
	return deltas
}

func sumFillAmounts(fills []domain.Fill) float64 {
	total := 0.0
	for _, f := range fills {
		total += f.Amount
	}
	return total
}

func sumFillShares(fills []domain.Fill) float64 {
	total := 0.0
	for _, f := range fills {
		total += f.Shares
	}
	return total
}

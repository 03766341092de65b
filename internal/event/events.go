// Package event defines the sequenced trade requests flowing through
// the engine inbox, plus sync.Pool helpers for the hotpath.
package event

import (
	"predict_go/internal/domain"
)

// Type identifies the concrete event kind for dispatch and WAL records.
type Type string

const (
	TypeBetRequest    Type = "BET_REQUEST"
	TypeSellRequest   Type = "SELL_REQUEST"
	TypeCancelRequest Type = "CANCEL_REQUEST"
)

// Event is anything the sequencer can consume. Seq numbers are assigned
// by the producer and must be gapless.
type Event interface {
	GetSeq() uint64
	GetTs() int64
	GetType() Type
}

// BaseEvent carries the fields every event shares.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"` // unix millis, the matching-pass timestamp
}

func (b *BaseEvent) GetSeq() uint64 { return b.Seq }
func (b *BaseEvent) GetTs() int64   { return b.Ts }

// BetRequestEvent asks the engine to place a bet. LimitProb nil means a
// market order.
type BetRequestEvent struct {
	BaseEvent
	BetID      string         `json:"bet_id"`
	UserID     string         `json:"user_id"`
	ContractID string         `json:"contract_id"`
	AnswerID   string         `json:"answer_id,omitempty"`
	Outcome    domain.Outcome `json:"outcome"`
	Amount     float64        `json:"amount"`
	LimitProb  *float64       `json:"limit_prob,omitempty"`
	ExpiresAt  int64          `json:"expires_at,omitempty"`
}

func (e *BetRequestEvent) GetType() Type { return TypeBetRequest }

// SellRequestEvent asks the engine to sell shares the user holds.
type SellRequestEvent struct {
	BaseEvent
	BetID      string         `json:"bet_id"`
	UserID     string         `json:"user_id"`
	ContractID string         `json:"contract_id"`
	AnswerID   string         `json:"answer_id,omitempty"`
	Outcome    domain.Outcome `json:"outcome"`
	Shares     float64        `json:"shares"`
	LoanOwed   float64        `json:"loan_owed,omitempty"`
}

func (e *SellRequestEvent) GetType() Type { return TypeSellRequest }

// CancelRequestEvent cancels a resting limit order.
type CancelRequestEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
}

func (e *CancelRequestEvent) GetType() Type { return TypeCancelRequest }

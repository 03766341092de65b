package domain

// OrderFill is one partial execution recorded against a resting order
// or a bet.
type OrderFill struct {
	Amount       float64 `json:"amount"`
	Shares       float64 `json:"shares"`
	MatchedBetID string  `json:"matched_bet_id,omitempty"`
	Timestamp    int64   `json:"timestamp"`
}

// LimitOrder is a standing offer to buy an outcome up to OrderAmount at
// LimitProb. Amount tracks how much has filled so far; the invariant
// Amount <= OrderAmount always holds.
type LimitOrder struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	ContractID string  `json:"contract_id"`
	AnswerID   string  `json:"answer_id,omitempty"`
	Outcome    Outcome `json:"outcome"`

	OrderAmount float64     `json:"order_amount"`
	Amount      float64     `json:"amount"` // filled so far
	Shares      float64     `json:"shares"` // acquired so far
	LimitProb   float64     `json:"limit_prob"`
	Fills       []OrderFill `json:"fills"`

	CreatedTime int64 `json:"created_time"` // unix millis
	ExpiresAt   int64 `json:"expires_at"`   // unix millis, 0 = good-til-cancelled

	IsFilled    bool `json:"is_filled"`
	IsCancelled bool `json:"is_cancelled"`

	// SilentExpiry marks a probe order that expires as soon as the
	// synchronous response returns. The caller applies the TTL; the
	// matching pass treats it like any other order.
	SilentExpiry bool `json:"silent_expiry,omitempty"`
}

// Remaining returns the unfilled portion of the order.
func (o *LimitOrder) Remaining() float64 {
	return o.OrderAmount - o.Amount
}

// Open reports whether the order can still accept fills at the given
// timestamp. The same timestamp must be used for every order in one
// matching pass.
func (o *LimitOrder) Open(now int64) bool {
	if o.IsFilled || o.IsCancelled {
		return false
	}
	if o.ExpiresAt != 0 && now >= o.ExpiresAt {
		return false
	}
	return o.Remaining() > 0
}

// Fill is one matched quantity of an incoming trade. MatchedOrderID is
// empty when the pool itself was the counterparty.
type Fill struct {
	MatchedOrderID string  `json:"matched_order_id,omitempty"`
	Amount         float64 `json:"amount"`
	Shares         float64 `json:"shares"`
	Timestamp      int64   `json:"timestamp"`
	IsSale         bool    `json:"is_sale,omitempty"`
	Fees           Fees    `json:"fees"`
}

// Maker is the resting-order side of a fill: the order touched, how
// much of it was consumed and the shares it acquired in exchange.
type Maker struct {
	Order     *LimitOrder `json:"order"`
	Amount    float64     `json:"amount"`
	Shares    float64     `json:"shares"`
	Timestamp int64       `json:"timestamp"`
}

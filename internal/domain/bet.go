package domain

// Bet is the record of one executed trade, built from the engine's
// fills by the service layer and persisted by the store.
type Bet struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	ContractID string  `json:"contract_id"`
	AnswerID   string  `json:"answer_id,omitempty"`
	Outcome    Outcome `json:"outcome"`

	// OrderAmount is what the user asked to trade; Amount is what
	// actually filled. They differ for partially-filled limit orders.
	OrderAmount float64 `json:"order_amount"`
	Amount      float64 `json:"amount"`
	Shares      float64 `json:"shares"`

	LimitProb   float64 `json:"limit_prob,omitempty"`
	HasLimit    bool    `json:"has_limit,omitempty"`
	IsFilled    bool    `json:"is_filled"`
	IsCancelled bool    `json:"is_cancelled"`
	ExpiresAt   int64   `json:"expires_at,omitempty"`

	Fills      []Fill  `json:"fills"`
	ProbBefore float64 `json:"prob_before"`
	ProbAfter  float64 `json:"prob_after"`

	LoanAmount   float64 `json:"loan_amount"`
	Fees         Fees    `json:"fees"`
	IsRedemption bool    `json:"is_redemption"`
	IsSale       bool    `json:"is_sale,omitempty"`

	CreatedTime int64 `json:"created_time"`
}

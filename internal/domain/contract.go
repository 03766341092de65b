package domain

// Contract is the immutable-for-one-calculation snapshot of a market
// handed to the engine. The engine never mutates it; results carry the
// replacement state.
type Contract struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Mechanism Mechanism `json:"mechanism"`

	// Binary mechanism state.
	Pool Pool    `json:"pool"`
	P    float64 `json:"p"`

	// Multi mechanism state.
	Answers []*Answer `json:"answers,omitempty"`

	CollectedFees Fees `json:"collected_fees"`

	// Numeric bucket-range parameters (numeric contracts only).
	Min        float64 `json:"min,omitempty"`
	Max        float64 `json:"max,omitempty"`
	IsLogScale bool    `json:"is_log_scale,omitempty"`

	Version int64 `json:"version"` // optimistic-concurrency token
}

// Answer returns the answer with the given id, or nil.
func (c *Contract) Answer(id string) *Answer {
	for _, a := range c.Answers {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// LiveAnswers returns the answers still open for trading.
func (c *Contract) LiveAnswers() []*Answer {
	live := make([]*Answer, 0, len(c.Answers))
	for _, a := range c.Answers {
		if !a.IsResolved {
			live = append(live, a)
		}
	}
	return live
}

// BalanceByUserID maps a counterparty user id to their spendable
// balance. It caps how much of a resting order can actually match.
type BalanceByUserID map[string]float64

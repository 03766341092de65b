package domain

const (
	// MinProb and MaxProb bound every tradable probability. A market
	// order that would push the pool past a bound is clamped at it.
	MinProb = 0.001
	MaxProb = 0.999

	// MultiP is the fixed curve weight of every answer pool in a
	// multi-answer contract.
	MultiP = 0.5
)

// Pool holds the two-sided liquidity reserve backing a binary outcome.
// Both reserves must stay strictly positive.
type Pool struct {
	Yes float64 `json:"yes"`
	No  float64 `json:"no"`
}

// Valid reports whether both reserves are strictly positive.
func (p Pool) Valid() bool {
	return p.Yes > 0 && p.No > 0
}

// Answer is one outcome of a multi-answer contract. Prob is
// denormalized from the pool and kept in sync by the engine.
type Answer struct {
	ID          string  `json:"id"`
	ContractID  string  `json:"contract_id"`
	Text        string  `json:"text"`
	PoolYes     float64 `json:"pool_yes"`
	PoolNo      float64 `json:"pool_no"`
	Prob        float64 `json:"prob"`
	Index       int     `json:"index"`
	IsResolved  bool    `json:"is_resolved"`
	CreatedTime int64   `json:"created_time"`
}

// Pool returns the answer's reserves as a Pool.
func (a *Answer) Pool() Pool {
	return Pool{Yes: a.PoolYes, No: a.PoolNo}
}

package domain

import "github.com/shopspring/decimal"

const (
	// TakerFeeRate scales the per-trade taker fee:
	// fee = TakerFeeRate * prob * (1 - prob) * shares.
	// Fees peak at even odds and vanish near certainty.
	TakerFeeRate = 0.07

	// CurrencyUnit is the smallest representable amount of mana.
	// All reported fees and payouts are rounded to it.
	CurrencyUnit = 0.01
)

// Fees is a per-trade fee split. The liquidity fee is folded back into
// the pool; creator and platform fees leave it.
type Fees struct {
	CreatorFee   float64 `json:"creator_fee"`
	PlatformFee  float64 `json:"platform_fee"`
	LiquidityFee float64 `json:"liquidity_fee"`
}

// NoFees is the zero fee split.
var NoFees = Fees{}

// Add returns the component-wise sum of two fee splits.
func (f Fees) Add(o Fees) Fees {
	return Fees{
		CreatorFee:   f.CreatorFee + o.CreatorFee,
		PlatformFee:  f.PlatformFee + o.PlatformFee,
		LiquidityFee: f.LiquidityFee + o.LiquidityFee,
	}
}

// Total returns the sum of all fee components.
func (f Fees) Total() float64 {
	return f.CreatorFee + f.PlatformFee + f.LiquidityFee
}

// TakerFee returns the fee for acquiring shares at the given average
// probability. Zero shares pay zero fee.
func TakerFee(shares, prob float64) float64 {
	return TakerFeeRate * prob * (1 - prob) * shares
}

// SplitFees allocates a total fee across the schedule. The whole fee
// goes to the platform; creator and liquidity shares are retired.
func SplitFees(total float64) Fees {
	return Fees{PlatformFee: total}
}

// RoundCurrency rounds v half-up to the smallest currency unit using
// exact decimal arithmetic. Per-trade rounding error is bounded by one
// half unit and carries no direction bias dependent on trade order.
func RoundCurrency(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

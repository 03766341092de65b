package event

import (
	"sync"
)

// Pools reduce GC pressure on the trade hotpath.
//
// Usage:
//
//	ev := AcquireBetRequestEvent()
//	ev.ContractID = "c1"
//	// ... send through the inbox, then after processing ...
//	ReleaseBetRequestEvent(ev)
var betRequestPool = sync.Pool{
	New: func() interface{} {
		return &BetRequestEvent{}
	},
}

// AcquireBetRequestEvent gets a BetRequestEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireBetRequestEvent() *BetRequestEvent {
	return betRequestPool.Get().(*BetRequestEvent)
}

// ReleaseBetRequestEvent returns a BetRequestEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleaseBetRequestEvent(ev *BetRequestEvent) {
	if ev == nil {
		return
	}
	*ev = BetRequestEvent{}
	betRequestPool.Put(ev)
}

var sellRequestPool = sync.Pool{
	New: func() interface{} {
		return &SellRequestEvent{}
	},
}

// AcquireSellRequestEvent gets a SellRequestEvent from the pool.
func AcquireSellRequestEvent() *SellRequestEvent {
	return sellRequestPool.Get().(*SellRequestEvent)
}

// ReleaseSellRequestEvent returns a SellRequestEvent to the pool.
func ReleaseSellRequestEvent(ev *SellRequestEvent) {
	if ev == nil {
		return
	}
	*ev = SellRequestEvent{}
	sellRequestPool.Put(ev)
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	bets := make([]*BetRequestEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		bets = append(bets, AcquireBetRequestEvent())
	}
	for _, ev := range bets {
		ReleaseBetRequestEvent(ev)
	}

	sells := make([]*SellRequestEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		sells = append(sells, AcquireSellRequestEvent())
	}
	for _, ev := range sells {
		ReleaseSellRequestEvent(ev)
	}
}

package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	tradesProcessed atomic.Uint64
	fillsTotal      atomic.Uint64
	cancellations   atomic.Uint64
	tradesRejected  atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	inboxDepth atomic.Int32
	halted     atomic.Int32 // 1 = engine halted after invariant violation
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordTrade records one processed trade request with its latency.
func (m *Metrics) RecordTrade(latencyNs int64) {
	m.tradesProcessed.Add(1)
	m.latencySumNs.Add(latencyNs)
	m.latencyCount.Add(1)
}

// RecordRejected records a trade request that was rejected.
func (m *Metrics) RecordRejected() {
	m.tradesRejected.Add(1)
}

// RecordFills records the fills produced by one trade.
func (m *Metrics) RecordFills(n int) {
	if n > 0 {
		m.fillsTotal.Add(uint64(n))
	}
}

// RecordCancellations records resting orders cancelled.
func (m *Metrics) RecordCancellations(n int) {
	if n > 0 {
		m.cancellations.Add(uint64(n))
	}
}

// SetInboxDepth sets the current sequencer inbox depth.
func (m *Metrics) SetInboxDepth(depth int32) {
	m.inboxDepth.Store(depth)
}

// SetHalted marks the engine halted (true) or running (false).
func (m *Metrics) SetHalted(halted bool) {
	if halted {
		m.halted.Store(1)
	} else {
		m.halted.Store(0)
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TradesProcessed uint64    `json:"trades_processed"`
	FillsTotal      uint64    `json:"fills_total"`
	Cancellations   uint64    `json:"cancellations"`
	TradesRejected  uint64    `json:"trades_rejected"`
	AvgLatencyNs    int64     `json:"avg_latency_ns"`
	InboxDepth      int32     `json:"inbox_depth"`
	Halted          bool      `json:"halted"`
	Timestamp       time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		TradesProcessed: m.tradesProcessed.Load(),
		FillsTotal:      m.fillsTotal.Load(),
		Cancellations:   m.cancellations.Load(),
		TradesRejected:  m.tradesRejected.Load(),
		AvgLatencyNs:    avgLatency,
		InboxDepth:      m.inboxDepth.Load(),
		Halted:          m.halted.Load() == 1,
		Timestamp:       time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.tradesProcessed.Store(0)
	m.fillsTotal.Store(0)
	m.cancellations.Store(0)
	m.tradesRejected.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.inboxDepth.Store(0)
	m.halted.Store(0)
}

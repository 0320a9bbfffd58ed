package llm

import "sync/atomic"

// UsageTracker accumulates process-wide token and cost counters across
// all completion calls. Counters advance on failed calls too, since a
// failed call may still have consumed tokens before erroring.
type UsageTracker struct {
	totalRequests atomic.Int64
	totalTokens   atomic.Int64
	// Cost is tracked in micro-dollars so it can be an atomic integer.
	totalCostMicroUSD atomic.Int64
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Record adds one request's token usage and estimated cost.
func (u *UsageTracker) Record(tokens int, costUSD float64) {
	u.totalRequests.Add(1)
	u.totalTokens.Add(int64(tokens))
	u.totalCostMicroUSD.Add(int64(costUSD * 1_000_000))
}

// UsageSnapshot is a point-in-time copy of the tracker's counters.
type UsageSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
}

// Snapshot returns the current counter values.
func (u *UsageTracker) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		TotalRequests: u.totalRequests.Load(),
		TotalTokens:   u.totalTokens.Load(),
		TotalCostUSD:  float64(u.totalCostMicroUSD.Load()) / 1_000_000,
	}
}

// Reset zeroes all counters. Intended for operator use only.
func (u *UsageTracker) Reset() {
	u.totalRequests.Store(0)
	u.totalTokens.Store(0)
	u.totalCostMicroUSD.Store(0)
}

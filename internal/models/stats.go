// Package models defines the core domain entities: miner activity windows,
// normalization ceilings, campaigns, and scoring results.
package models

import (
	"errors"
)

// WindowStats is one miner's aggregated conversion activity over the scoring
// window. All counters refer to the same window; refunds are counted against
// the orders placed inside it.
type WindowStats struct {
	Sales        int     `json:"sales"`
	RevenueUSD   float64 `json:"revenue_usd"`
	RefundOrders int     `json:"refund_orders"`
}

// Validate checks window stat field constraints. Negative values mean the
// upstream aggregator broke its contract, so they are rejected rather than
// clamped.
func (w *WindowStats) Validate() error {
	if w.Sales < 0 {
		return errors.New("sales count must not be negative")
	}
	if w.RevenueUSD < 0 {
		return errors.New("revenue must not be negative")
	}
	if w.RefundOrders < 0 {
		return errors.New("refund count must not be negative")
	}
	return nil
}

// MinerStats pairs a miner hotkey with its window activity.
type MinerStats struct {
	MinerID string      `json:"miner_id"`
	Stats   WindowStats `json:"stats"`
}

// ScoreResult carries the intermediate and final values of one miner's score
// so callers can log and audit how a weight was produced.
type ScoreResult struct {
	MinerID          string
	Base             float64
	RefundMultiplier float64
	Score            float64
}

// Package burn forces a configured share of a campaign's weight mass onto a
// beneficiary account and rescales the remaining miners proportionally.
package burn

import (
	"github.com/adgrid-network/weightd/internal/logger"
)

// Normalize converts a non-negative score map into a weight map summing to 1.
// An all-zero or empty input returns an all-zero copy; callers decide whether
// that triggers the owner fallback.
func Normalize(scores map[string]float64) map[string]float64 {
	weights := make(map[string]float64, len(scores))
	var total float64
	for _, s := range scores {
		total += s
	}
	for id, s := range scores {
		if total > 0 {
			weights[id] = s / total
		} else {
			weights[id] = 0
		}
	}
	return weights
}

// Fallback returns the owner-only vector over the given miner set: 1.0 at the
// beneficiary, 0 elsewhere. The beneficiary is added if absent, so the result
// is always submittable.
func Fallback(miners map[string]float64, beneficiary string) map[string]float64 {
	out := make(map[string]float64, len(miners)+1)
	for id := range miners {
		out[id] = 0
	}
	out[beneficiary] = 1.0
	return out
}

// Redistribute pins the beneficiary's weight to pct/100 and splits the
// remaining mass across all other entries in proportion to their pre-burn
// weights. The beneficiary's own pre-burn weight is superseded, never added
// to the proportional pool.
//
// pct at or above 100 routes everything to the beneficiary. If the pool of
// other entries carries no weight at all, the owner-only fallback applies
// because an all-zero vector is invalid for submission. pct at or below 0 is
// the caller's cue to skip this component; it returns an unmodified copy.
func Redistribute(weights map[string]float64, beneficiary string, pct float64) map[string]float64 {
	if pct <= 0 {
		out := make(map[string]float64, len(weights))
		for id, w := range weights {
			out[id] = w
		}
		return out
	}
	if pct >= 100 {
		return Fallback(weights, beneficiary)
	}

	var pool float64
	for id, w := range weights {
		if id != beneficiary {
			pool += w
		}
	}
	if pool <= 0 {
		logger.Warn("Burn pool is empty, falling back to beneficiary-only weights")
		return Fallback(weights, beneficiary)
	}

	burnShare := pct / 100
	remainder := 1 - burnShare
	out := make(map[string]float64, len(weights)+1)
	for id, w := range weights {
		if id == beneficiary {
			continue
		}
		out[id] = remainder * w / pool
	}
	out[beneficiary] = burnShare
	return out
}

// FromEmissions derives a burn percentage from the balance between a scope's
// emission value and its observed sales volume. When emissions exceed
// ratio-adjusted sales, the excess share is burned; when sales cover the
// emissions, nothing is burned.
func FromEmissions(emissionTAO, taoPriceUSD, totalSalesUSD, ratio float64) float64 {
	emissionUSD := emissionTAO * taoPriceUSD
	if emissionUSD <= 0 {
		return 0
	}
	target := totalSalesUSD * ratio
	if target >= emissionUSD {
		return 0
	}
	pct := (emissionUSD - target) / emissionUSD * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

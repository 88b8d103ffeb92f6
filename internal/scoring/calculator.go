// Package scoring converts per-miner window statistics into bounded scores
// normalized against a scope's ceiling pair.
package scoring

import (
	"fmt"
	"math"

	"github.com/adgrid-network/weightd/internal/logger"
	"github.com/adgrid-network/weightd/internal/models"
)

// Params is a scope's weighting and shaping configuration. WSales and WRev
// conventionally sum to 1; the calculator does not renormalize them.
type Params struct {
	WSales           float64
	WRev             float64
	UseSoftCap       bool
	SoftCapThreshold int
	SoftCapFactor    float64
}

// ParamsFrom extracts the calculator knobs from a scope config.
func ParamsFrom(cfg models.ScopeConfig) Params {
	return Params{
		WSales:           cfg.WSales,
		WRev:             cfg.WRev,
		UseSoftCap:       cfg.UseSoftCap,
		SoftCapThreshold: cfg.SoftCapThreshold,
		SoftCapFactor:    cfg.SoftCapFactor,
	}
}

// Score maps one miner's window statistics to a ScoreResult.
//
// Each metric is normalized against its ceiling and clamped to [0, 1]; a zero
// ceiling disables that metric rather than failing. The base score is the
// weighted sum of the normalized metrics, and the refund multiplier drives a
// miner whose refunded fraction approaches 100% of its sales toward zero.
func Score(ms models.MinerStats, ceilings models.Thresholds, p Params) (models.ScoreResult, error) {
	if err := ms.Stats.Validate(); err != nil {
		return models.ScoreResult{}, fmt.Errorf("miner %s: %w", ms.MinerID, err)
	}

	sales := float64(ms.Stats.Sales)
	if p.UseSoftCap && ms.Stats.Sales > p.SoftCapThreshold {
		// Sales beyond the cap threshold count at a fraction of face value,
		// so volume-gaming past proven legitimate activity pays off less.
		excess := sales - float64(p.SoftCapThreshold)
		sales = float64(p.SoftCapThreshold) + excess*p.SoftCapFactor
	}

	var normSales, normRev float64
	if ceilings.Sales > 0 {
		normSales = math.Min(sales/ceilings.Sales, 1.0)
	}
	if ceilings.RevenueUSD > 0 {
		normRev = math.Min(ms.Stats.RevenueUSD/ceilings.RevenueUSD, 1.0)
	}

	base := p.WSales*normSales + p.WRev*normRev

	// max(sales, 1) guards the zero-sales case; a refunded order with no
	// recorded sales still zeroes the multiplier.
	refundFrac := math.Min(float64(ms.Stats.RefundOrders)/math.Max(float64(ms.Stats.Sales), 1), 1.0)
	multiplier := 1.0 - refundFrac

	return models.ScoreResult{
		MinerID:          ms.MinerID,
		Base:             base,
		RefundMultiplier: multiplier,
		Score:            base * multiplier,
	}, nil
}

// ScoreMany scores every entry against the same ceilings. Entries that break
// the stats contract are dropped with a warning so one bad row cannot poison
// the scope. Miners absent from the input get no implicit entry.
func ScoreMany(stats []models.MinerStats, ceilings models.Thresholds, p Params) []models.ScoreResult {
	results := make([]models.ScoreResult, 0, len(stats))
	for _, ms := range stats {
		res, err := Score(ms, ceilings, p)
		if err != nil {
			logger.Warn("Dropping miner from scoring: %v", err)
			continue
		}
		results = append(results, res)
	}
	return results
}

package percentile

import (
	"math"
	"sync"

	"github.com/adgrid-network/weightd/internal/logger"
	"github.com/adgrid-network/weightd/internal/models"
	"github.com/adgrid-network/weightd/internal/storage"
)

// Tracker carries smoothed ceiling pairs across epochs. The pair committed in
// one epoch becomes the blending prior of the next, so ceilings follow the
// network's activity level without jumping on a single outlier epoch.
//
// Effective may be called from concurrent per-campaign workers; all state is
// guarded by a single mutex.
type Tracker struct {
	mu      sync.Mutex
	storage *storage.Storage
	prev    map[string]models.Thresholds
	current map[string]models.Thresholds
	cache   map[string]models.Thresholds
}

// NewTracker loads the ceilings committed before the last shutdown so
// smoothing priors survive restarts.
func NewTracker(s *storage.Storage) *Tracker {
	t := &Tracker{
		storage: s,
		prev:    make(map[string]models.Thresholds),
		current: make(map[string]models.Thresholds),
		cache:   make(map[string]models.Thresholds),
	}

	persisted, err := s.LoadThresholds()
	if err != nil {
		logger.Warn("Failed to load persisted thresholds: %v", err)
	} else {
		t.prev = persisted
		logger.Info("Loaded %d persisted threshold pairs", len(persisted))
	}

	return t
}

// Effective returns the ceiling pair to score the scope with this epoch.
// Fixed mode passes the configured pair through untouched. Adaptive mode
// estimates the configured percentile over the miners' window metrics, blends
// it with the scope's prior, and optionally floors it to that prior. The
// result is cached until Advance so every caller inside one epoch normalizes
// against the same pair.
func (t *Tracker) Effective(scope string, stats []models.MinerStats, cfg models.ThresholdConfig) models.Thresholds {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cached, ok := t.cache[scope]; ok {
		return cached
	}

	var eff models.Thresholds
	if cfg.Mode == models.ThresholdFixed {
		eff = cfg.Fixed
	} else {
		eff = t.adaptive(scope, stats, cfg)
	}

	t.cache[scope] = eff
	t.current[scope] = eff
	return eff
}

func (t *Tracker) adaptive(scope string, stats []models.MinerStats, cfg models.ThresholdConfig) models.Thresholds {
	sales := make([]float64, 0, len(stats))
	revenue := make([]float64, 0, len(stats))
	for _, ms := range stats {
		sales = append(sales, float64(ms.Stats.Sales))
		revenue = append(revenue, ms.Stats.RevenueUSD)
	}

	raw := models.Thresholds{
		Sales:      Estimate(sales, cfg.Percentile),
		RevenueUSD: Estimate(revenue, cfg.Percentile),
	}

	// First observation for a scope seeds the series directly.
	eff := raw
	prior, hasPrior := t.prev[scope]
	if hasPrior {
		eff.Sales = cfg.Alpha*raw.Sales + (1-cfg.Alpha)*prior.Sales
		eff.RevenueUSD = cfg.Alpha*raw.RevenueUSD + (1-cfg.Alpha)*prior.RevenueUSD
	}

	// Floor after blending: ceilings may only rise, so miners near the old
	// ceiling do not look over-performing when network volume dips.
	if cfg.FloorToPrior && hasPrior {
		eff.Sales = math.Max(eff.Sales, prior.Sales)
		eff.RevenueUSD = math.Max(eff.RevenueUSD, prior.RevenueUSD)
	}

	logger.Debug("Scope %s ceilings: raw=(%.2f, %.2f) effective=(%.2f, %.2f)",
		scope, raw.Sales, raw.RevenueUSD, eff.Sales, eff.RevenueUSD)
	return eff
}

// Prior returns the committed pair a scope would blend against, if any.
func (t *Tracker) Prior(scope string) (models.Thresholds, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	th, ok := t.prev[scope]
	return th, ok
}

// Advance commits this epoch's effective pairs as the next epoch's priors and
// clears the per-epoch cache. Scopes not scored this epoch keep their
// existing prior. Call exactly once per epoch; the commit itself cannot fail,
// a checkpoint failure only costs durability.
func (t *Tracker) Advance() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for scope, th := range t.current {
		t.prev[scope] = th
	}
	t.current = make(map[string]models.Thresholds)
	t.cache = make(map[string]models.Thresholds)

	if err := t.storage.SaveThresholds(t.prev); err != nil {
		logger.Warn("Failed to checkpoint thresholds: %v", err)
	}
}

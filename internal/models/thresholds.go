package models

import (
	"errors"
)

// Thresholds is a per-scope ceiling pair. Metrics at or above a ceiling
// normalize to 1.0.
type Thresholds struct {
	Sales      float64 `json:"sales"`
	RevenueUSD float64 `json:"revenue_usd"`
}

// ThresholdMode selects how a scope's ceilings are produced.
type ThresholdMode string

const (
	// ThresholdFixed uses operator-supplied ceilings as-is.
	ThresholdFixed ThresholdMode = "fixed"
	// ThresholdAdaptive estimates ceilings from the observed activity
	// distribution and smooths them across epochs.
	ThresholdAdaptive ThresholdMode = "adaptive"
)

// ThresholdConfig describes either a fixed ceiling pair or the parameters of
// the adaptive estimator. Fields outside the selected mode are ignored.
type ThresholdConfig struct {
	Mode ThresholdMode `json:"mode"`

	// Fixed mode.
	Fixed Thresholds `json:"fixed"`

	// Adaptive mode. FloorToPrior keeps ceilings from decreasing between
	// epochs: the blended pair is raised to the prior pair component-wise.
	Percentile   float64 `json:"percentile,omitempty"`
	Alpha        float64 `json:"alpha,omitempty"`
	FloorToPrior bool    `json:"floor_to_prior,omitempty"`
}

// Validate checks threshold config constraints for the selected mode.
func (c *ThresholdConfig) Validate() error {
	switch c.Mode {
	case ThresholdFixed:
		if c.Fixed.Sales < 0 || c.Fixed.RevenueUSD < 0 {
			return errors.New("fixed ceilings must not be negative")
		}
	case ThresholdAdaptive:
		if c.Percentile <= 0 || c.Percentile > 1 {
			return errors.New("percentile must be in (0, 1]")
		}
		if c.Alpha <= 0 || c.Alpha > 1 {
			return errors.New("smoothing alpha must be in (0, 1]")
		}
	default:
		return errors.New("threshold mode must be fixed or adaptive")
	}
	return nil
}

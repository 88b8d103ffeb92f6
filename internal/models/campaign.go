package models

import (
	"errors"
)

// Default scoring parameters, applied when the config endpoint omits a field.
const (
	DefaultWindowDays       = 30
	DefaultWSales           = 0.40
	DefaultWRev             = 0.60
	DefaultSoftCapThreshold = 3
	DefaultSoftCapFactor    = 0.30
	DefaultPercentile       = 0.95
	DefaultAlpha            = 0.1
	DefaultCeilingSales     = 60.0
	DefaultCeilingRevenue   = 4000.0
)

// Campaign is one scoring scope together with its on-chain mechanism binding
// and optional share of subnet emissions. A nil EmissionSplit means the
// campaign was scored but never declared a share, which is different from
// declaring zero.
type Campaign struct {
	Scope         string   `json:"scope"`
	MechanismID   int      `json:"mechanism_id"`
	EmissionSplit *float64 `json:"emission_split,omitempty"`
}

// Validate checks campaign field constraints.
func (c *Campaign) Validate() error {
	if c.Scope == "" {
		return errors.New("campaign scope must not be empty")
	}
	if c.MechanismID < 0 {
		return errors.New("mechanism ID must not be negative")
	}
	if c.EmissionSplit != nil && (*c.EmissionSplit <= 0 || *c.EmissionSplit > 100) {
		return errors.New("emission split must be in (0, 100]")
	}
	return nil
}

// BurnPolicy directs a fixed share of a campaign's weight mass to a
// beneficiary account before submission.
type BurnPolicy struct {
	Percentage    float64 `json:"percentage"`
	BeneficiaryID string  `json:"beneficiary_id"`
}

// BurnData is the raw input for deriving a burn percentage from the
// emission-versus-sales balance of a scope over the scoring window.
type BurnData struct {
	EmissionTAO        float64 `json:"emission_tao"`
	TAOPriceUSD        float64 `json:"tao_price_usd"`
	TotalSalesUSD      float64 `json:"total_sales_usd"`
	SalesEmissionRatio float64 `json:"sales_emission_ratio"`
}

// Validate checks burn policy field constraints.
func (b *BurnPolicy) Validate() error {
	if b.Percentage < 0 || b.Percentage > 100 {
		return errors.New("burn percentage must be in [0, 100]")
	}
	if b.Percentage > 0 && b.BeneficiaryID == "" {
		return errors.New("burn beneficiary must be set when percentage is positive")
	}
	return nil
}

// ScopeConfig is the per-scope scoring parameter set served by the config
// endpoint. Decode responses over DefaultScopeConfig so omitted fields keep
// their defaults.
type ScopeConfig struct {
	Scope            string          `json:"scope"`
	WindowDays       int             `json:"window_days"`
	WSales           float64         `json:"w_sales"`
	WRev             float64         `json:"w_rev"`
	UseSoftCap       bool            `json:"use_soft_cap"`
	SoftCapThreshold int             `json:"soft_cap_threshold"`
	SoftCapFactor    float64         `json:"soft_cap_factor"`
	Thresholds       ThresholdConfig `json:"thresholds"`
	BurnPercentage   *float64        `json:"burn_percentage,omitempty"`
	PendingMinScore  float64         `json:"pending_min_score,omitempty"`
}

// DefaultScopeConfig returns the parameter set used when the config endpoint
// is unreachable or omits fields for a scope.
func DefaultScopeConfig(scope string) ScopeConfig {
	return ScopeConfig{
		Scope:            scope,
		WindowDays:       DefaultWindowDays,
		WSales:           DefaultWSales,
		WRev:             DefaultWRev,
		UseSoftCap:       false,
		SoftCapThreshold: DefaultSoftCapThreshold,
		SoftCapFactor:    DefaultSoftCapFactor,
		Thresholds: ThresholdConfig{
			Mode:       ThresholdAdaptive,
			Percentile: DefaultPercentile,
			Alpha:      DefaultAlpha,
			// Populated so a scope switched to fixed mode without explicit
			// ceilings falls back to the network-wide defaults.
			Fixed: Thresholds{
				Sales:      DefaultCeilingSales,
				RevenueUSD: DefaultCeilingRevenue,
			},
		},
	}
}

// Validate checks scope config field constraints.
func (s *ScopeConfig) Validate() error {
	if s.Scope == "" {
		return errors.New("scope must not be empty")
	}
	if s.WindowDays < 1 {
		return errors.New("window days must be at least 1")
	}
	if s.WSales < 0 || s.WRev < 0 {
		return errors.New("metric weights must not be negative")
	}
	if s.WSales+s.WRev == 0 {
		return errors.New("at least one metric weight must be positive")
	}
	if s.UseSoftCap {
		if s.SoftCapThreshold < 0 {
			return errors.New("soft cap threshold must not be negative")
		}
		if s.SoftCapFactor <= 0 || s.SoftCapFactor >= 1 {
			return errors.New("soft cap factor must be in (0, 1)")
		}
	}
	if err := s.Thresholds.Validate(); err != nil {
		return err
	}
	if s.BurnPercentage != nil && (*s.BurnPercentage < 0 || *s.BurnPercentage > 100) {
		return errors.New("burn percentage must be in [0, 100]")
	}
	if s.PendingMinScore < 0 || s.PendingMinScore > 1 {
		return errors.New("pending minimum score must be in [0, 1]")
	}
	return nil
}

// Package aggregate combines independently scored per-campaign weight
// vectors into the single vector submitted to the ledger.
package aggregate

import (
	"errors"

	"github.com/adgrid-network/weightd/internal/burn"
	"github.com/adgrid-network/weightd/internal/logger"
)

// CampaignVector is one campaign's burn-adjusted weight vector together with
// its declared emission share. A nil Split excludes the campaign from the
// aggregate while keeping its weights available for auditing.
type CampaignVector struct {
	Scope       string
	MechanismID int
	Split       *float64
	Weights     map[string]float64
}

// ErrNoBeneficiary is returned when every campaign nets zero weight and no
// fallback beneficiary is known; an all-zero vector must never be submitted.
var ErrNoBeneficiary = errors.New("all campaign weights are zero and no beneficiary is resolved")

// Combine merges the campaign vectors into one weight map using each
// campaign's emission share.
//
// Declared splits are normalized to sum to 1 across only the campaigns that
// declared one; the rest contribute zero mass. When no campaign declares a
// split, every campaign gets a uniform 1/N share. A globally zero result,
// including the empty campaign list, yields the owner-only fallback. The
// returned vector always sums to exactly 1.
func Combine(vectors []CampaignVector, beneficiary string) (map[string]float64, error) {
	shares := emissionShares(vectors)

	combined := make(map[string]float64)
	for i, v := range vectors {
		share := shares[i]
		if share == 0 {
			continue
		}
		for id, w := range v.Weights {
			combined[id] += share * w
		}
	}

	var total float64
	for _, w := range combined {
		total += w
	}
	if total == 0 {
		if beneficiary == "" {
			return nil, ErrNoBeneficiary
		}
		logger.Warn("All campaign weights are zero, using beneficiary-only fallback")
		return burn.Fallback(combined, beneficiary), nil
	}

	// Squeeze out floating-point drift so the submitted vector sums to 1.
	for id := range combined {
		combined[id] /= total
	}
	return combined, nil
}

// emissionShares returns each vector's share of the aggregate, index-aligned
// with the input.
func emissionShares(vectors []CampaignVector) []float64 {
	shares := make([]float64, len(vectors))

	var declared float64
	anyDeclared := false
	for _, v := range vectors {
		if v.Split != nil {
			declared += *v.Split
			anyDeclared = true
		}
	}

	if !anyDeclared {
		if len(vectors) == 0 {
			return shares
		}
		uniform := 1.0 / float64(len(vectors))
		for i := range shares {
			shares[i] = uniform
		}
		return shares
	}

	for i, v := range vectors {
		if v.Split != nil && declared > 0 {
			shares[i] = *v.Split / declared
		}
	}
	return shares
}

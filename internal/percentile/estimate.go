// Package percentile maintains adaptive per-scope normalization ceilings,
// smoothing raw percentile observations across epochs.
package percentile

import (
	"math"
	"sort"
)

// Estimate returns the p-th percentile of values using linear interpolation
// between adjacent order statistics. An empty input estimates to 0, which
// downstream scoring treats as a disabled ceiling.
func Estimate(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}

	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

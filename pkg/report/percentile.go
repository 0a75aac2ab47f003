package report

import (
	"fmt"
	"math"
	"slices"
)

// TopShares are the upper-tail shares reported, in percent.
var TopShares = []float64{1, 0.5, 0.2, 0.1, 0.05, 0.02, 0.01}

// Cutoff is the star count needed to be in the top Share percent.
type Cutoff struct {
	Share float64
	Stars float64
}

// Label names the cutoff, e.g. "Top 0.1%".
func (c Cutoff) Label() string {
	return fmt.Sprintf("Top %g%%", c.Share)
}

// Cutoffs computes one cutoff per TopShares entry.
func Cutoffs(stars []int64) []Cutoff {
	if len(stars) == 0 {
		return nil
	}

	sorted := make([]float64, len(stars))
	for i, s := range stars {
		sorted[i] = float64(s)
	}
	slices.Sort(sorted)

	cutoffs := make([]Cutoff, len(TopShares))
	for i, share := range TopShares {
		cutoffs[i] = Cutoff{Share: share, Stars: Percentile(sorted, 100-share)}
	}
	return cutoffs
}

// Percentile returns the p-th percentile of sorted with linear
// interpolation between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	p = min(max(p, 0), 100)
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)

	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

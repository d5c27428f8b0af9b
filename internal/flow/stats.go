package flow

import (
	"fmt"
	"math"
	"slices"
)

// round1 rounds to one decimal. Applied when values cross the report
// boundary; intermediate math keeps full precision.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// round2 rounds rates and ratios to two decimals at the same boundary.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 { return &v }

func round1Ptr(v float64) *float64 { return ptr(round1(v)) }

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// percentile computes the p-th percentile of sorted (ascending) values using
// linear interpolation between the two nearest ranks: h = (n-1) * p / 100.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch n {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	h := float64(n-1) * p / 100
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// buildStats aggregates a duration sample into report form. The sample is
// copied before sorting, so callers keep their ordering.
func buildStats(vals []float64, percentiles []int) Stats {
	s := Stats{Count: len(vals)}
	if len(vals) == 0 {
		return s
	}

	sorted := slices.Clone(vals)
	slices.Sort(sorted)

	s.Mean = round1Ptr(mean(sorted))
	s.Median = round1Ptr(percentile(sorted, 50))
	s.Min = round1Ptr(sorted[0])
	s.Max = round1Ptr(sorted[len(sorted)-1])

	if len(percentiles) > 0 {
		s.Percentiles = make(map[string]float64, len(percentiles))
		for _, p := range percentiles {
			s.Percentiles[fmt.Sprintf("p%d", p)] = round1(percentile(sorted, float64(p)))
		}
	}
	return s
}

package metrics

import (
	"math"
	"sort"
)

// Percentile is nearest-rank, not interpolated: sort ascending, take the
// value at floor(n*p/100) clamped to the last index. Returns 0 for an empty
// sample. Result rounded to 2 decimals.
func Percentile(sample []float64, p int) float64 {
	if len(sample) == 0 {
		return 0
	}
	s := make([]float64, len(sample))
	copy(s, sample)
	sort.Float64s(s)
	idx := len(s) * p / 100
	if idx >= len(s) {
		idx = len(s) - 1
	}
	return Round2(s[idx])
}

// Mean returns the arithmetic mean rounded to 2 decimals, and ok=false for
// an empty sample so callers can render an empty cell instead of 0.
func Mean(sample []float64) (float64, bool) {
	if len(sample) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range sample {
		sum += v
	}
	return Round2(sum / float64(len(sample))), true
}

// Round2 rounds to 2 decimals, the precision every day/hour cell is
// reported at.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

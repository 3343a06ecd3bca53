package apm

import "math"

// percentile indexes a sorted-ascending duration list at round(q*(n-1)),
// clamped to n-1. durations must already be sorted ascending.
func percentile(durations []int64, q float64) float64 {
	n := len(durations)
	if n == 0 {
		return 0
	}
	idx := int(math.Round(q * float64(n-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return float64(durations[idx])
}

func mean(durations []int64) float64 {
	if len(durations) == 0 {
		return 0
	}
	var sum int64
	for _, d := range durations {
		sum += d
	}
	return float64(sum) / float64(len(durations))
}

package utils

import (
	"math"
	"sort"
	"time"
)

// Max returns -1 for no data, like the other helpers here.
func Max(data ...float64) float64 {
	if len(data) == 0 {
		return -1.0
	}

	res := data[0]
	for _, datum := range data {
		if datum > res {
			res = datum
		}
	}
	return res
}

func Min(data ...float64) float64 {
	if len(data) == 0 {
		return -1.0
	}

	res := data[0]
	for _, datum := range data {
		if datum < res {
			res = datum
		}
	}
	return res
}

// Median sorts a copy of data.
func Median(data ...float64) float64 {
	if len(data) == 0 {
		return -1.0
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func Avg(data ...float64) float64 {
	if len(data) == 0 {
		return -1.0
	}

	res := 0.0
	for _, datum := range data {
		res += datum
	}

	return res / float64(len(data))
}

// Percentile uses the nearest rank method, p in (0, 100].
func Percentile(p float64, data ...float64) float64 {
	if len(data) == 0 || p <= 0 || p > 100 {
		return -1.0
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}

// Milliseconds converts durations for the helpers above.
func Milliseconds(ds ...time.Duration) []float64 {
	res := make([]float64, len(ds))
	for i, d := range ds {
		res[i] = float64(d) / float64(time.Millisecond)
	}
	return res
}

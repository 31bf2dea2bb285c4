package stats

import (
	"math"
	"sort"
)

// Package stats computes windowed descriptive statistics over score series.
//
// Statistical Methods Used:
//   1. Mean / Median / Standard Deviation
//   2. Threshold ratios: fraction of samples at/above the high threshold and
//      at/below the low threshold
//   3. Percentiles with linear interpolation

// BasicStats holds descriptive statistics for one window of values.
type BasicStats struct {
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	StdDev    float64 `json:"std"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	HighRatio float64 `json:"high_ratio"`
	LowRatio  float64 `json:"low_ratio"`
	Count     int     `json:"count"`
}

// ComputeBasicStats computes mean, median, std, min, max and threshold ratios
// for a window of values. An empty input returns ok=false with a zero value,
// never an error; callers treat that as an empty-but-valid result.
func ComputeBasicStats(values []float64, highThreshold, lowThreshold float64) (BasicStats, bool) {
	if len(values) == 0 {
		return BasicStats{}, false
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))

	high := 0
	low := 0
	for _, v := range values {
		if v >= highThreshold {
			high++
		}
		if v <= lowThreshold {
			low++
		}
	}

	return BasicStats{
		Mean:      mean,
		Median:    Percentile(sorted, 50),
		StdDev:    math.Sqrt(variance),
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		HighRatio: float64(high) / float64(len(values)),
		LowRatio:  float64(low) / float64(len(values)),
		Count:     len(values),
	}, true
}

// Percentile calculates the pth percentile of sorted data using linear
// interpolation between ranks.
func Percentile(sortedData []float64, p int) float64 {
	if len(sortedData) == 0 {
		return 0
	}
	if len(sortedData) == 1 {
		return sortedData[0]
	}

	rank := float64(p) / 100.0 * float64(len(sortedData)-1)
	lowerIndex := int(math.Floor(rank))
	upperIndex := int(math.Ceil(rank))

	if lowerIndex == upperIndex {
		return sortedData[lowerIndex]
	}

	weight := rank - float64(lowerIndex)
	return sortedData[lowerIndex]*(1-weight) + sortedData[upperIndex]*weight
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation around the given mean.
func StdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

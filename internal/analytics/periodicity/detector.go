package periodicity

import (
	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Package periodicity detects cyclical patterns in a metric series via
// autocorrelation peaks.

const (
	// minPoints is the smallest series the detector will analyze.
	minPoints = 20
	// maxLag caps the autocorrelation horizon.
	maxLag = 50
	// minPeakSeparation is the minimum lag distance between reported peaks.
	minPeakSeparation = 5
	// strengthThreshold is the autocorrelation a peak must exceed to count
	// as a candidate period.
	strengthThreshold = 0.3
)

// Detector finds repeating intervals in metric series.
type Detector struct{}

// NewDetector creates a periodicity detector.
func NewDetector() *Detector {
	return &Detector{}
}

// DetectCycles computes the autocorrelation of the series over lags up to
// min(len/4, 50), normalizes by the lag-0 value, and reports local maxima
// above the strength threshold as candidate periods. Fewer than 20 points
// yields an empty result (insufficient data, not an error).
func (d *Detector) DetectCycles(series []float64) []models.CyclicalPattern {
	if len(series) < minPoints {
		return []models.CyclicalPattern{}
	}

	lagCap := len(series) / 4
	if lagCap > maxLag {
		lagCap = maxLag
	}

	acf := autocorrelation(series, lagCap)

	patterns := make([]models.CyclicalPattern, 0)
	lastPeak := -minPeakSeparation
	for lag := 1; lag < len(acf); lag++ {
		if acf[lag] <= strengthThreshold {
			continue
		}
		// Local maximum with minimum separation from the previous peak.
		// The comparison must be strict on the left and loose on the right
		// so a flat plateau reports its first lag only, and a maximum at
		// the final lag still counts.
		if acf[lag] <= acf[lag-1] {
			continue
		}
		if lag+1 < len(acf) && acf[lag] < acf[lag+1] {
			continue
		}
		if lag-lastPeak < minPeakSeparation {
			continue
		}
		lastPeak = lag

		strength := acf[lag]
		confidence := strength * 1.2
		if confidence > 1.0 {
			confidence = 1.0
		}
		patterns = append(patterns, models.CyclicalPattern{
			Period:     lag,
			Strength:   strength,
			Confidence: confidence,
		})
	}
	return patterns
}

// autocorrelation computes the normalized autocorrelation function up to
// maxLag. acf[0] is 1 by construction; a zero-variance series returns all
// zeros past lag 0.
func autocorrelation(series []float64, maxLag int) []float64 {
	n := len(series)
	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range series {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(n)

	acf := make([]float64, maxLag+1)
	acf[0] = 1.0
	if variance == 0 {
		return acf
	}

	for lag := 1; lag <= maxLag && lag < n; lag++ {
		covariance := 0.0
		for i := lag; i < n; i++ {
			covariance += (series[i] - mean) * (series[i-lag] - mean)
		}
		covariance /= float64(n)
		acf[lag] = covariance / variance
	}
	return acf
}

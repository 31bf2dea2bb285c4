package trend

import (
	"math"
	"sort"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Package trend fits ordinary least-squares linear trends to timestamped
// metric series and classifies direction and strength.

// Point is one (timestamp, value) observation of a metric.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// slopeEpsilon is the magnitude below which a fitted slope is classified
// as stable.
const slopeEpsilon = 1e-7

// Detector fits linear trends over timestamped values.
type Detector struct{}

// NewDetector creates a trend detector.
func NewDetector() *Detector {
	return &Detector{}
}

// DetectTrend performs an OLS fit of value against elapsed seconds and
// classifies the result. Fewer than 2 points yields the insufficient-data
// sentinel, never an error, so report generation degrades per-section.
func (d *Detector) DetectTrend(metricName string, points []Point) models.TrendResult {
	if len(points) < 2 {
		return models.TrendResult{
			MetricName: metricName,
			Direction:  models.DirectionInsufficientData,
		}
	}

	// Tolerate unsorted input.
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	// Regress against seconds since the first observation.
	t0 := sorted[0].Timestamp
	n := float64(len(sorted))
	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range sorted {
		x := p.Timestamp.Sub(t0).Seconds()
		y := p.Value
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	denom := n*sumX2 - sumX*sumX
	var slope float64
	if denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}
	intercept := (sumY - slope*sumX) / n

	// R² is defined as 0 for a constant series (SS_tot == 0). That is a
	// deliberate degenerate-case policy: a flat line carries no trend signal.
	meanY := sumY / n
	var ssTot, ssRes float64
	for _, p := range sorted {
		x := p.Timestamp.Sub(t0).Seconds()
		predicted := slope*x + intercept
		ssTot += (p.Value - meanY) * (p.Value - meanY)
		ssRes += (p.Value - predicted) * (p.Value - predicted)
	}
	rSquared := 0.0
	if ssTot > 0 {
		rSquared = 1.0 - ssRes/ssTot
	}

	direction := models.DirectionStable
	if slope > slopeEpsilon {
		direction = models.DirectionAscending
	} else if slope < -slopeEpsilon {
		direction = models.DirectionDescending
	}

	return models.TrendResult{
		MetricName: metricName,
		Slope:      slope,
		Direction:  direction,
		Strength:   math.Abs(slope) * rSquared,
		RSquared:   rSquared,
	}
}

// SeriesFromSamples extracts a named metric series from samples, skipping
// samples without a reading and clamping scores into [0,1].
func SeriesFromSamples(samples []models.Sample, extract func(models.Sample) (float64, bool)) []Point {
	points := make([]Point, 0, len(samples))
	for _, s := range samples {
		if v, ok := extract(s); ok {
			points = append(points, Point{Timestamp: s.Timestamp, Value: models.Clamp01(v)})
		}
	}
	return points
}

// FocusValue extracts the focus score from a sample.
func FocusValue(s models.Sample) (float64, bool) {
	if s.FocusScore == nil {
		return 0, false
	}
	return *s.FocusScore, true
}

// PostureValue extracts the posture score from a sample.
func PostureValue(s models.Sample) (float64, bool) {
	if s.PostureScore == nil {
		return 0, false
	}
	return *s.PostureScore, true
}

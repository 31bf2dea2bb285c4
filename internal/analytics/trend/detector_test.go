package trend

import (
	"math"
	"testing"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/models"
)

func points(base time.Time, values ...float64) []Point {
	pts := make([]Point, len(values))
	for i, v := range values {
		pts[i] = Point{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return pts
}

func TestDetectTrendAscending(t *testing.T) {
	d := NewDetector()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	result := d.DetectTrend("focus_score", points(base, 0.1, 0.2, 0.3, 0.4, 0.5))
	if result.Direction != models.DirectionAscending {
		t.Errorf("direction = %s, want ascending", result.Direction)
	}
	if result.Slope <= 0 {
		t.Errorf("slope = %v, want positive", result.Slope)
	}
	// A perfect line fits with R² = 1.
	if math.Abs(result.RSquared-1) > 1e-9 {
		t.Errorf("r_squared = %v, want 1", result.RSquared)
	}
	if result.MetricName != "focus_score" {
		t.Errorf("metric = %s, want focus_score", result.MetricName)
	}
}

func TestDetectTrendDescending(t *testing.T) {
	d := NewDetector()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	result := d.DetectTrend("focus_score", points(base, 0.9, 0.7, 0.5, 0.3, 0.1))
	if result.Direction != models.DirectionDescending {
		t.Errorf("direction = %s, want descending", result.Direction)
	}
	if result.Slope >= 0 {
		t.Errorf("slope = %v, want negative", result.Slope)
	}
}

// A constant series has SS_tot = 0; R² is defined as 0 and the trend is
// stable with zero strength.
func TestDetectTrendConstantSeries(t *testing.T) {
	d := NewDetector()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	result := d.DetectTrend("focus_score", points(base, 0.5, 0.5, 0.5, 0.5))
	if result.Direction != models.DirectionStable {
		t.Errorf("direction = %s, want stable", result.Direction)
	}
	if result.RSquared != 0 {
		t.Errorf("r_squared = %v, want 0 for constant series", result.RSquared)
	}
	if result.Strength != 0 {
		t.Errorf("strength = %v, want 0", result.Strength)
	}
}

func TestDetectTrendInsufficientData(t *testing.T) {
	d := NewDetector()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for _, pts := range [][]Point{nil, points(base, 0.5)} {
		result := d.DetectTrend("focus_score", pts)
		if result.Direction != models.DirectionInsufficientData {
			t.Errorf("direction for %d points = %s, want insufficient_data", len(pts), result.Direction)
		}
	}
}

func TestDetectTrendUnsortedInput(t *testing.T) {
	d := NewDetector()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	shuffled := []Point{
		{Timestamp: base.Add(2 * time.Minute), Value: 0.3},
		{Timestamp: base, Value: 0.1},
		{Timestamp: base.Add(4 * time.Minute), Value: 0.5},
		{Timestamp: base.Add(time.Minute), Value: 0.2},
		{Timestamp: base.Add(3 * time.Minute), Value: 0.4},
	}
	result := d.DetectTrend("focus_score", shuffled)
	if result.Direction != models.DirectionAscending {
		t.Errorf("direction = %s, want ascending regardless of input order", result.Direction)
	}
}

func TestSeriesFromSamples(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	samples := []models.Sample{
		{Timestamp: base, FocusScore: models.Float(0.5)},
		{Timestamp: base.Add(time.Minute)}, // no reading
		{Timestamp: base.Add(2 * time.Minute), FocusScore: models.Float(1.4)}, // clamped
	}

	pts := SeriesFromSamples(samples, FocusValue)
	if len(pts) != 2 {
		t.Fatalf("extracted %d points, want 2", len(pts))
	}
	if pts[0].Value != 0.5 {
		t.Errorf("first value = %v, want 0.5", pts[0].Value)
	}
	if pts[1].Value != 1.0 {
		t.Errorf("out-of-range score = %v, want clamped to 1.0", pts[1].Value)
	}

	if _, ok := PostureValue(samples[0]); ok {
		t.Error("expected no posture reading")
	}
	samples[0].PostureScore = models.Float(0.7)
	if v, ok := PostureValue(samples[0]); !ok || v != 0.7 {
		t.Errorf("posture value = %v/%v, want 0.7/true", v, ok)
	}
}

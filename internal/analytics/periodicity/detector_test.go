package periodicity

import (
	"math"
	"testing"
)

func sineSeries(n, period int) []float64 {
	series := make([]float64, n)
	for i := range series {
		series[i] = math.Sin(2 * math.Pi * float64(i) / float64(period))
	}
	return series
}

func TestDetectCyclesSineWave(t *testing.T) {
	d := NewDetector()

	patterns := d.DetectCycles(sineSeries(100, 10))
	if len(patterns) == 0 {
		t.Fatal("expected at least one cyclical pattern in a sine wave")
	}

	found := false
	for _, p := range patterns {
		if p.Period == 10 {
			found = true
			if p.Strength <= strengthThreshold {
				t.Errorf("strength = %v, want above %v", p.Strength, strengthThreshold)
			}
			if p.Confidence < p.Strength || p.Confidence > 1 {
				t.Errorf("confidence = %v out of expected range", p.Confidence)
			}
		}
	}
	if !found {
		t.Errorf("no pattern with period 10 among %+v", patterns)
	}
}

func TestDetectCyclesNoSignal(t *testing.T) {
	d := NewDetector()

	// A constant series has zero variance and no periodicity.
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 0.5
	}
	if patterns := d.DetectCycles(flat); len(patterns) != 0 {
		t.Errorf("got %d patterns for constant series, want 0", len(patterns))
	}
}

func TestDetectCyclesInsufficientData(t *testing.T) {
	d := NewDetector()
	if patterns := d.DetectCycles(sineSeries(19, 5)); len(patterns) != 0 {
		t.Errorf("got %d patterns below the minimum length, want 0", len(patterns))
	}
	if patterns := d.DetectCycles(nil); len(patterns) != 0 {
		t.Errorf("got %d patterns for empty series, want 0", len(patterns))
	}
}

// A period equal to the lag cap peaks at the last autocorrelation index
// and must still be reported.
func TestDetectCyclesPeakAtFinalLag(t *testing.T) {
	d := NewDetector()

	// 80 points cap the lag horizon at 20, so a period-20 sine has its
	// autocorrelation maximum exactly at the final lag.
	patterns := d.DetectCycles(sineSeries(80, 20))
	found := false
	for _, p := range patterns {
		if p.Period == 20 {
			found = true
		}
	}
	if !found {
		t.Errorf("no pattern with period 20 among %+v", patterns)
	}
}

func TestPeakSeparation(t *testing.T) {
	d := NewDetector()

	// A period-10 sine over 200 points allows harmonics at 10, 20, 30...
	// Reported peaks must keep the minimum separation.
	patterns := d.DetectCycles(sineSeries(200, 10))
	last := -minPeakSeparation
	for _, p := range patterns {
		if p.Period-last < minPeakSeparation {
			t.Errorf("peaks at %d and %d closer than the minimum separation", last, p.Period)
		}
		last = p.Period
	}
}

func TestAutocorrelation(t *testing.T) {
	series := sineSeries(100, 10)
	acf := autocorrelation(series, 20)

	if acf[0] != 1 {
		t.Errorf("acf[0] = %v, want 1", acf[0])
	}
	if acf[10] <= 0.8 {
		t.Errorf("acf[10] = %v, want strong correlation at the true period", acf[10])
	}
	// Half a period out of phase is strongly anti-correlated.
	if acf[5] >= 0 {
		t.Errorf("acf[5] = %v, want negative at half period", acf[5])
	}

	// Zero-variance series: 1 at lag 0, 0 elsewhere.
	flat := autocorrelation([]float64{3, 3, 3, 3}, 3)
	for lag, v := range flat {
		want := 0.0
		if lag == 0 {
			want = 1.0
		}
		if v != want {
			t.Errorf("flat acf[%d] = %v, want %v", lag, v, want)
		}
	}
}

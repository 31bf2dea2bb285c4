package anomaly

import (
	"fmt"
	"sort"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Package anomaly scans sample sequences for sustained threshold
// violations and emits anomaly events.
//
// Four independent detectors run over the same window:
//   - poor_posture: posture below threshold sustained for a duration
//   - extreme_low_focus: focus below threshold sustained for a duration
//   - excessive_smartphone_usage: whole-window usage rate check
//   - prolonged_absence: presence=absent sustained for a duration
//
// Sustained thresholds are configured as durations and converted to
// consecutive-sample counts via the configured sampling interval, so the
// detector is not silently coupled to one cadence.

// Config holds detection thresholds.
type Config struct {
	// SamplingInterval is the cadence at which samples are produced.
	SamplingInterval time.Duration

	PostureThreshold  float64
	PostureSustained  time.Duration
	FocusThreshold    float64
	FocusSustained    time.Duration
	SmartphoneRateMax float64
	AbsenceSustained  time.Duration
}

// DefaultConfig returns thresholds matching a 5-second sampling cadence:
// 6 samples of poor posture, 10 of extreme low focus, 20 of absence.
func DefaultConfig() Config {
	return Config{
		SamplingInterval:  5 * time.Second,
		PostureThreshold:  0.3,
		PostureSustained:  30 * time.Second,
		FocusThreshold:    0.1,
		FocusSustained:    50 * time.Second,
		SmartphoneRateMax: 0.2,
		AbsenceSustained:  100 * time.Second,
	}
}

// Validate rejects non-positive intervals and durations at construction.
func (c Config) Validate() error {
	if c.SamplingInterval <= 0 {
		return fmt.Errorf("sampling_interval must be positive, got %s", c.SamplingInterval)
	}
	for name, d := range map[string]time.Duration{
		"posture_sustained": c.PostureSustained,
		"focus_sustained":   c.FocusSustained,
		"absence_sustained": c.AbsenceSustained,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.SmartphoneRateMax < 0 || c.SmartphoneRateMax > 1 {
		return fmt.Errorf("smartphone_rate_max must be in [0,1], got %.2f", c.SmartphoneRateMax)
	}
	return nil
}

// Detector finds sustained-violation anomalies in sample windows.
type Detector struct {
	cfg Config
}

// NewDetector creates a detector. Config errors fail fast here rather than
// at detection time.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// sampleCount converts a sustained duration into a consecutive-sample count,
// rounding down but never below 1.
func (d *Detector) sampleCount(sustained time.Duration) int {
	n := int(sustained / d.cfg.SamplingInterval)
	if n < 1 {
		n = 1
	}
	return n
}

// DetectAnomalies runs all four scans over the window. It is a pure
// function of its input: calling it twice on the same samples yields
// identical output.
func (d *Detector) DetectAnomalies(samples []models.Sample) []models.AnomalyEvent {
	ordered := make([]models.Sample, len(samples))
	copy(ordered, samples)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	events := make([]models.AnomalyEvent, 0)
	events = append(events, d.scanPosture(ordered)...)
	events = append(events, d.scanFocus(ordered)...)
	events = append(events, d.scanSmartphone(ordered)...)
	events = append(events, d.scanAbsence(ordered)...)
	return events
}

// runScan walks samples with a run-length counter that resets whenever the
// condition is false, emitting one event per run that reaches the required
// count. The event carries the timestamp of the sample that crossed the
// threshold.
func (d *Detector) runScan(samples []models.Sample, required int, cond func(models.Sample) bool, emit func(at time.Time, run int) models.AnomalyEvent) []models.AnomalyEvent {
	events := make([]models.AnomalyEvent, 0)
	run := 0
	for _, s := range samples {
		if !cond(s) {
			run = 0
			continue
		}
		run++
		if run == required {
			events = append(events, emit(s.Timestamp, run))
		}
	}
	return events
}

func (d *Detector) scanPosture(samples []models.Sample) []models.AnomalyEvent {
	required := d.sampleCount(d.cfg.PostureSustained)
	return d.runScan(samples, required,
		func(s models.Sample) bool {
			return s.PostureScore != nil && models.Clamp01(*s.PostureScore) < d.cfg.PostureThreshold
		},
		func(at time.Time, run int) models.AnomalyEvent {
			return models.AnomalyEvent{
				Type:      models.AnomalyPoorPosture,
				Severity:  models.SeverityMedium,
				Timestamp: at,
				Duration:  d.cfg.PostureSustained.Seconds(),
				Message: fmt.Sprintf("posture score below %.2f for %d consecutive samples",
					d.cfg.PostureThreshold, run),
			}
		})
}

func (d *Detector) scanFocus(samples []models.Sample) []models.AnomalyEvent {
	required := d.sampleCount(d.cfg.FocusSustained)
	return d.runScan(samples, required,
		func(s models.Sample) bool {
			return s.FocusScore != nil && models.Clamp01(*s.FocusScore) < d.cfg.FocusThreshold
		},
		func(at time.Time, run int) models.AnomalyEvent {
			return models.AnomalyEvent{
				Type:      models.AnomalyExtremeLowFocus,
				Severity:  models.SeverityHigh,
				Timestamp: at,
				Duration:  d.cfg.FocusSustained.Seconds(),
				Message: fmt.Sprintf("focus score below %.2f for %d consecutive samples",
					d.cfg.FocusThreshold, run),
			}
		})
}

// scanSmartphone is a global-rate check over the whole window, not a
// run-length scan.
func (d *Detector) scanSmartphone(samples []models.Sample) []models.AnomalyEvent {
	if len(samples) == 0 {
		return nil
	}
	detected := 0
	for _, s := range samples {
		if s.SmartphoneDetected {
			detected++
		}
	}
	rate := float64(detected) / float64(len(samples))
	if rate <= d.cfg.SmartphoneRateMax {
		return nil
	}
	return []models.AnomalyEvent{{
		Type:          models.AnomalySmartphoneUsage,
		Severity:      models.SeverityMedium,
		AggregateRate: rate,
		Message: fmt.Sprintf("smartphone detected in %.0f%% of samples (limit %.0f%%)",
			rate*100, d.cfg.SmartphoneRateMax*100),
	}}
}

func (d *Detector) scanAbsence(samples []models.Sample) []models.AnomalyEvent {
	required := d.sampleCount(d.cfg.AbsenceSustained)
	return d.runScan(samples, required,
		func(s models.Sample) bool { return s.Presence == models.PresenceAbsent },
		func(at time.Time, run int) models.AnomalyEvent {
			return models.AnomalyEvent{
				Type:      models.AnomalyProlongedAbsence,
				Severity:  models.SeverityLow,
				Timestamp: at,
				Duration:  d.cfg.AbsenceSustained.Seconds(),
				Message:   fmt.Sprintf("user absent for %d consecutive samples", run),
			}
		})
}

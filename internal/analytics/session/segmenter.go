package session

import (
	"sort"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Package session groups consecutive focused samples into FocusSession
// records with quality scoring.

// Config holds segmentation thresholds. Validate rejects inconsistent
// thresholds at construction time.
type Config struct {
	// FocusThresholdHigh and friends classify a session's average focus.
	FocusThresholdHigh   float64
	FocusThresholdMedium float64
	FocusThresholdLow    float64
	// MinimumSessionMinutes discards runs shorter than this.
	MinimumSessionMinutes float64
}

// DefaultConfig returns the standard segmentation thresholds.
func DefaultConfig() Config {
	return Config{
		FocusThresholdHigh:    0.8,
		FocusThresholdMedium:  0.6,
		FocusThresholdLow:     0.4,
		MinimumSessionMinutes: 5,
	}
}

// Segmenter extracts focus sessions from sample sequences.
type Segmenter struct {
	cfg Config
}

// NewSegmenter creates a segmenter with the given thresholds.
func NewSegmenter(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// openSession accumulates one in-progress run of focused samples.
type openSession struct {
	start       time.Time
	end         time.Time
	focusScores []float64
	tags        map[models.DistractionTag]bool
}

// ExtractFocusSessions scans samples chronologically and returns every
// closed focus session of at least the minimum duration.
//
// A session is open while focus_score >= the medium threshold and closes on
// the first non-focused sample. A session still open at end-of-input is
// discarded: there is no closing sample to bound it, and a partial window
// will see the rest of that run on the next call. Callers segmenting
// per-window should be aware sessions straddling a window boundary are
// undercounted.
func (sg *Segmenter) ExtractFocusSessions(samples []models.Sample) []models.FocusSession {
	ordered := sortedByTime(samples)

	sessions := make([]models.FocusSession, 0)
	var open *openSession

	for _, s := range ordered {
		focused := s.FocusScore != nil && models.Clamp01(*s.FocusScore) >= sg.cfg.FocusThresholdMedium

		if focused {
			if open == nil {
				open = &openSession{
					start: s.Timestamp,
					tags:  make(map[models.DistractionTag]bool),
				}
			}
			open.end = s.Timestamp
			open.focusScores = append(open.focusScores, models.Clamp01(*s.FocusScore))
			if s.SmartphoneDetected {
				open.tags[models.DistractionSmartphone] = true
			}
			if s.Presence == models.PresenceAbsent {
				open.tags[models.DistractionAbsence] = true
			}
			continue
		}

		if open != nil {
			if fs, ok := sg.close(open); ok {
				sessions = append(sessions, fs)
			}
			open = nil
		}
	}

	return sessions
}

// close finalizes an open session, returning ok=false when it is shorter
// than the configured minimum.
func (sg *Segmenter) close(open *openSession) (models.FocusSession, bool) {
	duration := open.end.Sub(open.start).Minutes()
	if duration < sg.cfg.MinimumSessionMinutes {
		return models.FocusSession{}, false
	}

	var sum float64
	for _, f := range open.focusScores {
		sum += f
	}
	avg := sum / float64(len(open.focusScores))

	tags := make([]models.DistractionTag, 0, len(open.tags))
	for _, t := range []models.DistractionTag{models.DistractionSmartphone, models.DistractionAbsence} {
		if open.tags[t] {
			tags = append(tags, t)
		}
	}
	interruptions := len(tags)

	return models.FocusSession{
		StartTime:         open.start,
		EndTime:           open.end,
		DurationMinutes:   duration,
		AverageFocus:      avg,
		FocusLevel:        sg.classify(avg),
		InterruptionCount: interruptions,
		QualityScore:      qualityScore(avg, interruptions, duration),
		DistractionTags:   tags,
	}, true
}

// classify maps an average focus score onto a focus level.
func (sg *Segmenter) classify(avg float64) models.FocusLevel {
	switch {
	case avg >= sg.cfg.FocusThresholdHigh:
		return models.FocusLevelHigh
	case avg >= sg.cfg.FocusThresholdMedium:
		return models.FocusLevelMedium
	case avg >= sg.cfg.FocusThresholdLow:
		return models.FocusLevelLow
	default:
		return models.FocusLevelScattered
	}
}

// qualityScore combines average focus, an interruption penalty capped at
// 0.3, and a duration bonus capped at 0.2, clamped into [0,1].
func qualityScore(avgFocus float64, interruptions int, durationMinutes float64) float64 {
	penalty := float64(interruptions) * 0.1
	if penalty > 0.3 {
		penalty = 0.3
	}
	bonus := durationMinutes / 60
	if bonus > 0.2 {
		bonus = 0.2
	}
	return models.Clamp01(avgFocus - penalty + bonus)
}

func sortedByTime(samples []models.Sample) []models.Sample {
	ordered := make([]models.Sample, len(samples))
	copy(ordered, samples)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	return ordered
}

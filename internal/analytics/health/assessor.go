package health

import (
	"fmt"
	"sort"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/analytics/stats"
	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Package health derives an ergonomic risk assessment from behavior
// samples: posture quality, sitting duration, movement frequency, and
// eye-strain risk.

// RiskLevel grades the aggregate health assessment.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Assessment is the aggregate health report for one window.
type Assessment struct {
	PostureScore      float64   `json:"posture_score"`
	MovementFrequency float64   `json:"movement_frequency"`
	EyeStrainRisk     float64   `json:"eye_strain_risk"`
	LongestSittingMin float64   `json:"longest_sitting_minutes"`
	OverallRisk       RiskLevel `json:"overall_risk"`
	Recommendations   []string  `json:"recommendations"`
	BreakIntervalMin  int       `json:"break_interval_minutes"`
}

// Assessor computes health assessments.
type Assessor struct{}

// NewAssessor creates a health assessor.
func NewAssessor() *Assessor {
	return &Assessor{}
}

// Assess scores the window with a 100-point penalty model and classifies
// the remainder into a risk level. Empty input returns a zero-count
// assessment with low risk.
func (a *Assessor) Assess(samples []models.Sample) Assessment {
	if len(samples) == 0 {
		return Assessment{OverallRisk: RiskLow, Recommendations: []string{}, BreakIntervalMin: 60}
	}

	ordered := make([]models.Sample, len(samples))
	copy(ordered, samples)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	postureValues := make([]float64, 0, len(ordered))
	for _, s := range ordered {
		if s.PostureScore != nil {
			postureValues = append(postureValues, models.Clamp01(*s.PostureScore))
		}
	}
	posture := stats.Mean(postureValues)

	sittingMin := longestPresenceRun(ordered).Minutes()
	movement := movementPerHour(ordered)
	eyeStrain := eyeStrainRisk(sittingMin)

	score := 100
	var recs []string

	if len(postureValues) > 0 && posture < 0.4 {
		score -= 30
		recs = append(recs, fmt.Sprintf("Average posture score is %.2f — raise your screen to eye level and sit back in the chair", posture))
	} else if len(postureValues) > 0 && posture < 0.6 {
		score -= 15
		recs = append(recs, fmt.Sprintf("Posture score %.2f has room to improve — check chair and desk height", posture))
	}

	if sittingMin > 120 {
		score -= 30
		recs = append(recs, fmt.Sprintf("Longest sitting stretch was %.0f minutes — stand up at least every hour", sittingMin))
	} else if sittingMin > 60 {
		score -= 15
		recs = append(recs, fmt.Sprintf("Sitting stretches reach %.0f minutes — schedule a short walk", sittingMin))
	}

	if movement < 1 && sittingMin > 30 {
		score -= 10
		recs = append(recs, "Very little movement detected — add stretch breaks between tasks")
	}

	if eyeStrain > 0.7 {
		score -= 15
		recs = append(recs, "High eye-strain risk — follow the 20-20-20 rule (every 20 minutes, look 20 feet away for 20 seconds)")
	}

	if score < 0 {
		score = 0
	}

	risk := RiskLow
	switch {
	case score < 40:
		risk = RiskCritical
	case score < 60:
		risk = RiskHigh
	case score < 80:
		risk = RiskModerate
	}

	return Assessment{
		PostureScore:      posture,
		MovementFrequency: movement,
		EyeStrainRisk:     eyeStrain,
		LongestSittingMin: sittingMin,
		OverallRisk:       risk,
		Recommendations:   append([]string{}, recs...),
		BreakIntervalMin:  breakInterval(risk),
	}
}

// longestPresenceRun returns the longest continuous span where the user
// stayed present.
func longestPresenceRun(ordered []models.Sample) time.Duration {
	var longest, current time.Duration
	var runStart time.Time
	inRun := false

	for _, s := range ordered {
		if s.Presence == models.PresencePresent {
			if !inRun {
				runStart = s.Timestamp
				inRun = true
			}
			current = s.Timestamp.Sub(runStart)
			if current > longest {
				longest = current
			}
			continue
		}
		inRun = false
	}
	return longest
}

// movementPerHour counts presence transitions per hour of window span as a
// proxy for physical movement.
func movementPerHour(ordered []models.Sample) float64 {
	if len(ordered) < 2 {
		return 0
	}
	transitions := 0
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Presence != ordered[i-1].Presence {
			transitions++
		}
	}
	span := ordered[len(ordered)-1].Timestamp.Sub(ordered[0].Timestamp).Hours()
	if span <= 0 {
		return 0
	}
	return float64(transitions) / span
}

// eyeStrainRisk maps the longest uninterrupted screen stretch onto [0,1].
func eyeStrainRisk(sittingMinutes float64) float64 {
	risk := sittingMinutes / 180
	if risk > 1 {
		risk = 1
	}
	return risk
}

// breakInterval suggests a break cadence proportional to risk.
func breakInterval(risk RiskLevel) int {
	switch risk {
	case RiskCritical:
		return 20
	case RiskHigh:
		return 30
	case RiskModerate:
		return 45
	default:
		return 60
	}
}

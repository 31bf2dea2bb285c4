package recommend

import (
	"fmt"
	"sort"

	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Package recommend maps analysis facts to ranked, deduplicated textual
// recommendations. Generation is a pure function of its input so results
// can be golden-tested.

// Facts bundles the analysis outputs the rule table consumes.
type Facts struct {
	FocusTrend     models.TrendResult
	Anomalies      []models.AnomalyEvent
	SessionQuality float64
	SessionCount   int
	LowFocusRatio  float64
	SmartphoneRate float64
	AbsenceRate    float64
}

// Engine generates recommendations from analysis facts.
type Engine struct{}

// NewEngine creates a recommendation engine.
func NewEngine() *Engine {
	return &Engine{}
}

var priorityRank = map[models.RecommendationPriority]int{
	models.PriorityHigh:   0,
	models.PriorityMedium: 1,
	models.PriorityLow:    2,
}

// Generate evaluates the rule table and returns recommendations ranked by
// priority and deduplicated by category. At least one fallback
// recommendation is always returned.
func (e *Engine) Generate(facts Facts) []models.Recommendation {
	recs := make([]models.Recommendation, 0)

	if facts.LowFocusRatio > 0.3 {
		recs = append(recs, models.Recommendation{
			Category: "focus_improvement",
			Action:   "reduce_distractions",
			Priority: models.PriorityHigh,
			Message: fmt.Sprintf("Focus was low in %.0f%% of the window. Try a short break followed by a single-task block.",
				facts.LowFocusRatio*100),
		})
	}

	if facts.SmartphoneRate > 0.1 {
		recs = append(recs, models.Recommendation{
			Category: "distraction_management",
			Action:   "put_phone_away",
			Priority: models.PriorityMedium,
			Message: fmt.Sprintf("Smartphone was visible in %.0f%% of samples. Consider moving it out of reach during focus blocks.",
				facts.SmartphoneRate*100),
		})
	}

	if facts.FocusTrend.Direction == models.DirectionDescending {
		recs = append(recs, models.Recommendation{
			Category: "focus_improvement",
			Action:   "take_break",
			Priority: models.PriorityMedium,
			Message:  "Focus is trending downward. A 5-10 minute break can reset attention.",
		})
	}

	for _, a := range facts.Anomalies {
		switch a.Type {
		case models.AnomalyPoorPosture:
			recs = append(recs, models.Recommendation{
				Category: "posture",
				Action:   "adjust_posture",
				Priority: models.PriorityMedium,
				Message:  "Sustained poor posture detected. Adjust chair height and sit upright.",
			})
		case models.AnomalyExtremeLowFocus:
			recs = append(recs, models.Recommendation{
				Category: "focus_improvement",
				Action:   "change_task",
				Priority: models.PriorityHigh,
				Message:  "A long stretch of very low focus was detected. Switch tasks or step away briefly.",
			})
		case models.AnomalySmartphoneUsage:
			recs = append(recs, models.Recommendation{
				Category: "distraction_management",
				Action:   "enable_do_not_disturb",
				Priority: models.PriorityMedium,
				Message:  "Smartphone usage exceeded the configured limit for this window.",
			})
		case models.AnomalyProlongedAbsence:
			recs = append(recs, models.Recommendation{
				Category: "schedule",
				Action:   "log_breaks",
				Priority: models.PriorityLow,
				Message:  "Long absences were detected. Logging breaks keeps session statistics accurate.",
			})
		}
	}

	if facts.SessionCount > 0 && facts.SessionQuality < 0.5 {
		recs = append(recs, models.Recommendation{
			Category: "session_quality",
			Action:   "shorter_blocks",
			Priority: models.PriorityMedium,
			Message: fmt.Sprintf("Average session quality is %.2f. Shorter focus blocks with planned breaks tend to score higher.",
				facts.SessionQuality),
		})
	}

	recs = dedupeByCategory(recs)

	if len(recs) == 0 {
		recs = append(recs, models.Recommendation{
			Category: "general",
			Action:   "continue_current",
			Priority: models.PriorityLow,
			Message:  "Behavior looks steady. Keep the current work rhythm.",
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return priorityRank[recs[i].Priority] < priorityRank[recs[j].Priority]
	})
	return recs
}

// dedupeByCategory keeps the highest-priority recommendation per category,
// preserving first-seen order for equal priorities.
func dedupeByCategory(recs []models.Recommendation) []models.Recommendation {
	best := make(map[string]int)
	out := make([]models.Recommendation, 0, len(recs))
	for _, r := range recs {
		idx, seen := best[r.Category]
		if !seen {
			best[r.Category] = len(out)
			out = append(out, r)
			continue
		}
		if priorityRank[r.Priority] < priorityRank[out[idx].Priority] {
			out[idx] = r
		}
	}
	return out
}

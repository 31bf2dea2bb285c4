// Package alert implements the event-driven alert pipeline: rule matching,
// suppression, urgency scoring, and delivery to configured channels.
//
// A single consumer goroutine owns the suppression history; external
// callers only enqueue events and read statistics.
package alert

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Level orders alert severity for urgency weighting.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelAlert    Level = "alert"
	LevelCritical Level = "critical"
)

// levelWeight feeds the urgency score. Unknown levels weigh as info.
func levelWeight(l Level) float64 {
	switch l {
	case LevelCritical:
		return 1.0
	case LevelAlert:
		return 0.8
	case LevelWarning:
		return 0.6
	default:
		return 0.3
	}
}

// Rule is one entry of the static alert catalog. Conditions map event
// field names to comparator expressions ("< 0.3", "> 0.2", "== 1").
type Rule struct {
	RuleID          string            `json:"rule_id" mapstructure:"rule_id"`
	Name            string            `json:"name" mapstructure:"name"`
	EventType       string            `json:"event_type" mapstructure:"event_type"`
	Level           Level             `json:"level" mapstructure:"level"`
	Conditions      map[string]string `json:"conditions" mapstructure:"conditions"`
	Channels        []string          `json:"channels" mapstructure:"channels"`
	CooldownMinutes int               `json:"cooldown_minutes" mapstructure:"cooldown_minutes"`
	MaxPerHour      int               `json:"max_per_hour" mapstructure:"max_per_hour"`
	Priority        int               `json:"priority" mapstructure:"priority"`
	Enabled         bool              `json:"enabled" mapstructure:"enabled"`
	Title           string            `json:"title" mapstructure:"title"`
	Message         string            `json:"message" mapstructure:"message"`
}

// Validate rejects malformed catalog entries at load time.
func (r Rule) Validate() error {
	if r.RuleID == "" {
		return fmt.Errorf("rule missing rule_id")
	}
	if r.EventType == "" {
		return fmt.Errorf("rule %s missing event_type", r.RuleID)
	}
	switch r.Level {
	case LevelInfo, LevelWarning, LevelAlert, LevelCritical:
	default:
		return fmt.Errorf("rule %s has unknown level %q", r.RuleID, r.Level)
	}
	if r.MaxPerHour < 0 {
		return fmt.Errorf("rule %s has negative max_per_hour", r.RuleID)
	}
	if r.CooldownMinutes < 0 {
		return fmt.Errorf("rule %s has negative cooldown_minutes", r.RuleID)
	}
	for field, expr := range r.Conditions {
		if _, _, err := parseCondition(expr); err != nil {
			return fmt.Errorf("rule %s condition %q: %w", r.RuleID, field, err)
		}
	}
	return nil
}

// StreamEvent is one live observation fired at the alert pipeline.
// Fields carries the numeric payload that rule conditions compare
// against (e.g. "focus_score", "posture_score", "absence_seconds").
type StreamEvent struct {
	EventType  string             `json:"event_type"`
	Timestamp  time.Time          `json:"timestamp"`
	Fields     map[string]float64 `json:"fields"`
	Confidence float64            `json:"confidence"`
	Urgent     bool               `json:"urgent"`
	UserID     string             `json:"user_id,omitempty"`
}

// Matches reports whether the event satisfies every condition of the
// rule. A condition on a field the event does not carry fails the match.
func (r Rule) Matches(ev StreamEvent) bool {
	if !r.Enabled || r.EventType != ev.EventType {
		return false
	}
	for field, expr := range r.Conditions {
		value, ok := ev.Fields[field]
		if !ok {
			return false
		}
		op, threshold, err := parseCondition(expr)
		if err != nil || !compare(value, op, threshold) {
			return false
		}
	}
	return true
}

// parseCondition splits a comparator expression like "< 0.3" into
// operator and threshold.
func parseCondition(expr string) (op string, threshold float64, err error) {
	parts := strings.Fields(expr)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected \"<op> <value>\", got %q", expr)
	}
	switch parts[0] {
	case "<", ">", "==":
		op = parts[0]
	default:
		return "", 0, fmt.Errorf("unknown operator %q", parts[0])
	}
	threshold, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad threshold %q: %w", parts[1], err)
	}
	return op, threshold, nil
}

func compare(value float64, op string, threshold float64) bool {
	switch op {
	case "<":
		return value < threshold
	case ">":
		return value > threshold
	case "==":
		return math.Abs(value-threshold) < 1e-9
	default:
		return false
	}
}

// DefaultRules is the built-in catalog covering the detector's anomaly
// types. Deployments may replace it via configuration.
func DefaultRules() []Rule {
	return []Rule{
		{
			RuleID:     "poor-posture",
			Name:       "Poor posture sustained",
			EventType:  "poor_posture",
			Level:      LevelWarning,
			Conditions: map[string]string{"posture_score": "< 0.3"},
			Channels:   []string{"log", "websocket"},
			MaxPerHour: 6,
			Priority:   2,
			Enabled:    true,
			Title:      "Posture check",
			Message:    "Your posture has been poor for a sustained period. Sit up straight.",
		},
		{
			RuleID:     "low-focus",
			Name:       "Extremely low focus",
			EventType:  "extreme_low_focus",
			Level:      LevelAlert,
			Conditions: map[string]string{"focus_score": "< 0.1"},
			Channels:   []string{"log", "websocket"},
			MaxPerHour: 3,
			Priority:   1,
			Enabled:    true,
			Title:      "Focus drop",
			Message:    "Focus has collapsed. Consider a short break to reset.",
		},
		{
			RuleID:     "smartphone",
			Name:       "Excessive smartphone usage",
			EventType:  "excessive_smartphone_usage",
			Level:      LevelWarning,
			Conditions: map[string]string{"smartphone_rate": "> 0.2"},
			Channels:   []string{"log", "websocket"},
			MaxPerHour: 4,
			Priority:   3,
			Enabled:    true,
			Title:      "Phone distraction",
			Message:    "Smartphone usage is above one fifth of recent samples.",
		},
		{
			RuleID:     "absence",
			Name:       "Prolonged absence",
			EventType:  "prolonged_absence",
			Level:      LevelInfo,
			Conditions: map[string]string{"absence_seconds": "> 100"},
			Channels:   []string{"log"},
			MaxPerHour: 2,
			Priority:   4,
			Enabled:    true,
			Title:      "Away from desk",
			Message:    "You have been away from your desk for a while.",
		},
	}
}

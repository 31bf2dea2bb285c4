// Package models defines the core data types used throughout deskwatch-ai.
//
// A Sample is one timestamped behavioral observation derived from webcam
// signals (focus score, posture score, presence, smartphone detection).
// Everything else in this package is derived from sequences of Samples by
// the analytics engine or produced by the alert pipeline.
package models

import "time"

// Presence describes whether the user was visible to the camera.
type Presence string

const (
	PresencePresent Presence = "present"
	PresenceAbsent  Presence = "absent"
	PresenceUnknown Presence = "unknown"
)

// Sample is a single behavioral observation. FocusScore and PostureScore are
// nil when the underlying detector produced no reading for that frame.
// Samples are immutable once created.
type Sample struct {
	Timestamp          time.Time `json:"timestamp"`
	FocusScore         *float64  `json:"focus_score,omitempty"`
	PostureScore       *float64  `json:"posture_score,omitempty"`
	Presence           Presence  `json:"presence"`
	SmartphoneDetected bool      `json:"smartphone_detected"`
	ScreenTime         float64   `json:"screen_time"`
	UserID             string    `json:"user_id,omitempty"`
}

// FocusLevel classifies the average focus of a session.
type FocusLevel string

const (
	FocusLevelHigh      FocusLevel = "high"
	FocusLevelMedium    FocusLevel = "medium"
	FocusLevelLow       FocusLevel = "low"
	FocusLevelScattered FocusLevel = "scattered"
)

// DistractionTag labels a distraction observed inside a focus session.
type DistractionTag string

const (
	DistractionSmartphone DistractionTag = "smartphone"
	DistractionAbsence    DistractionTag = "absence"
)

// FocusSession is a maximal contiguous run of focused samples meeting the
// minimum duration. Sessions are recomputed per analysis call and are not
// persisted by the engine itself.
type FocusSession struct {
	StartTime         time.Time        `json:"start_time"`
	EndTime           time.Time        `json:"end_time"`
	DurationMinutes   float64          `json:"duration_minutes"`
	AverageFocus      float64          `json:"average_focus"`
	FocusLevel        FocusLevel       `json:"focus_level"`
	InterruptionCount int              `json:"interruption_count"`
	QualityScore      float64          `json:"quality_score"`
	DistractionTags   []DistractionTag `json:"distraction_tags"`
}

// TrendDirection is the classified direction of a fitted linear trend.
type TrendDirection string

const (
	DirectionAscending        TrendDirection = "ascending"
	DirectionDescending       TrendDirection = "descending"
	DirectionStable           TrendDirection = "stable"
	DirectionInsufficientData TrendDirection = "insufficient_data"
)

// TrendResult is the outcome of a least-squares fit over one metric series.
type TrendResult struct {
	MetricName string         `json:"metric_name"`
	Slope      float64        `json:"slope"`
	Direction  TrendDirection `json:"direction"`
	Strength   float64        `json:"strength"`
	RSquared   float64        `json:"r_squared"`
}

// AnomalyType identifies the kind of sustained threshold violation.
type AnomalyType string

const (
	AnomalyPoorPosture       AnomalyType = "poor_posture"
	AnomalyExtremeLowFocus   AnomalyType = "extreme_low_focus"
	AnomalySmartphoneUsage   AnomalyType = "excessive_smartphone_usage"
	AnomalyProlongedAbsence  AnomalyType = "prolonged_absence"
)

// Severity grades anomalies and alerts.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyEvent is emitted when a run-length counter over consecutive
// qualifying samples crosses its threshold, or when a whole-window rate
// check fires (smartphone usage).
type AnomalyEvent struct {
	Type          AnomalyType `json:"type"`
	Severity      Severity    `json:"severity"`
	Message       string      `json:"message"`
	Timestamp     time.Time   `json:"timestamp,omitempty"`
	AggregateRate float64     `json:"aggregate_rate,omitempty"`
	Duration      float64     `json:"duration_seconds,omitempty"`
}

// ClusterType labels a behavior cluster derived from its center.
type ClusterType string

const (
	ClusterDeepFocus  ClusterType = "deep_focus"
	ClusterNormalWork ClusterType = "normal_work"
	ClusterDistracted ClusterType = "distracted"
	ClusterBreakTime  ClusterType = "break_time"
)

// BehaviorCluster is one K-means cluster over standardized sample features.
// Clusters are recomputed fully on each call; no state is carried between
// clustering runs.
type BehaviorCluster struct {
	ClusterID   int         `json:"cluster_id"`
	ClusterType ClusterType `json:"cluster_type"`
	Center      []float64   `json:"center"`
	Size        int         `json:"size"`
	Variance    float64     `json:"variance"`
	TimePeriods []time.Time `json:"time_periods"`
}

// CyclicalPattern is one candidate period found via autocorrelation peaks.
type CyclicalPattern struct {
	Period     int     `json:"period"`
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
}

// RecommendationPriority orders recommendations for display.
type RecommendationPriority string

const (
	PriorityHigh   RecommendationPriority = "high"
	PriorityMedium RecommendationPriority = "medium"
	PriorityLow    RecommendationPriority = "low"
)

// Recommendation is a templated, prioritized suggestion derived from
// analysis facts. Generation is deterministic for identical inputs.
type Recommendation struct {
	Category string                 `json:"category"`
	Action   string                 `json:"action"`
	Message  string                 `json:"message"`
	Priority RecommendationPriority `json:"priority"`
}

// Clamp01 clamps a score into [0,1]. All focus and posture scores pass
// through this before use.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Float pointer helper for optional scores.
func Float(v float64) *float64 { return &v }

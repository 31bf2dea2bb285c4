package analytics

import (
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/analytics/health"
	"github.com/deskwatch/deskwatch-ai/internal/analytics/stats"
	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Report types returned by the engine's public surface. All are plain
// structured data; the surrounding transport layer decides serialization.

// Window selects the aggregation horizon for time-series analysis.
type Window string

const (
	WindowHourly  Window = "hourly"
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

// HourlyPattern aggregates one clock hour across the window.
type HourlyPattern struct {
	Hour         int     `json:"hour"`
	AverageFocus float64 `json:"average_focus"`
	SampleCount  int     `json:"sample_count"`
}

// FocusAnalysisReport is the basic focus overview for a window.
type FocusAnalysisReport struct {
	HasData         bool               `json:"has_data"`
	SampleCount     int                `json:"sample_count"`
	BasicStatistics stats.BasicStats   `json:"basic_statistics"`
	TrendAnalysis   models.TrendResult `json:"trend_analysis"`
	PeakHours       []int              `json:"peak_hours"`
	LowHours        []int              `json:"low_hours"`
	HourlyPatterns  []HourlyPattern    `json:"hourly_patterns"`
}

// ChangePoint marks a sustained mean shift in a metric series.
type ChangePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Before    float64   `json:"mean_before"`
	After     float64   `json:"mean_after"`
	Delta     float64   `json:"delta"`
}

// TimeSeriesReport covers seasonality, trend, and change points for one
// metric over a window.
type TimeSeriesReport struct {
	HasData        bool                     `json:"has_data"`
	SampleCount    int                      `json:"sample_count"`
	Window         Window                   `json:"window"`
	Trend          models.TrendResult       `json:"trend"`
	Seasonality    []models.CyclicalPattern `json:"seasonality"`
	ChangePoints   []ChangePoint            `json:"change_points"`
	Classification string                   `json:"pattern_classification"`
	Summary        string                   `json:"summary"`
}

// DistractionStats aggregates distraction indicators over a window.
type DistractionStats struct {
	SmartphoneRate     float64 `json:"smartphone_rate"`
	AbsenceRate        float64 `json:"absence_rate"`
	TotalInterruptions int     `json:"total_interruptions"`
}

// QualityMetrics summarizes focus-session quality over a window.
type QualityMetrics struct {
	AverageQuality      float64 `json:"average_quality"`
	AverageFocus        float64 `json:"average_focus"`
	TotalFocusedMinutes float64 `json:"total_focused_minutes"`
}

// FocusDetailReport is the session-level focus breakdown.
type FocusDetailReport struct {
	HasData          bool                      `json:"has_data"`
	SampleCount      int                       `json:"sample_count"`
	Sessions         []models.FocusSession     `json:"sessions"`
	LevelBreakdown   map[models.FocusLevel]int `json:"level_breakdown"`
	DurationStats    stats.BasicStats          `json:"duration_stats"`
	DistractionStats DistractionStats          `json:"distraction_stats"`
	OptimalHours     []int                     `json:"optimal_hours"`
	QualityMetrics   QualityMetrics            `json:"quality_metrics"`
	Recommendations  []models.Recommendation   `json:"recommendations"`
}

// HealthReport wraps the ergonomic assessment for a window.
type HealthReport struct {
	HasData     bool              `json:"has_data"`
	SampleCount int               `json:"sample_count"`
	Assessment  health.Assessment `json:"assessment"`
}

// ClusteringReport holds one full K-means run.
type ClusteringReport struct {
	HasData     bool                     `json:"has_data"`
	SampleCount int                      `json:"sample_count"`
	K           int                      `json:"k"`
	Clusters    []models.BehaviorCluster `json:"clusters"`
}

// InsightReport is the narrative summary surface.
type InsightReport struct {
	HasData         bool                    `json:"has_data"`
	SampleCount     int                     `json:"sample_count"`
	Timeframe       Window                  `json:"timeframe"`
	KeyInsights     []string                `json:"key_insights"`
	Recommendations []models.Recommendation `json:"recommendations"`
}

// ComprehensiveReport aggregates every analysis section. A failed section
// records its error in SectionErrors; sibling sections still compute, so
// the report never fails wholesale.
type ComprehensiveReport struct {
	GeneratedAt   time.Time             `json:"generated_at"`
	SampleCount   int                   `json:"sample_count"`
	Focus         FocusAnalysisReport   `json:"focus"`
	TimeSeries    TimeSeriesReport      `json:"time_series"`
	FocusDetail   FocusDetailReport     `json:"focus_detail"`
	Health        HealthReport          `json:"health"`
	Clustering    ClusteringReport      `json:"clustering"`
	Anomalies     []models.AnomalyEvent `json:"anomalies"`
	Insights      InsightReport         `json:"insights"`
	SectionErrors map[string]string     `json:"section_errors,omitempty"`
}

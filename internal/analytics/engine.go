// Package analytics is the behavioral time-series analysis engine.
//
// The engine ingests a window of behavior samples and derives focus
// statistics, trends, focus sessions, anomalies, behavior clusters,
// cyclical patterns, a health assessment, and recommendations.
//
// Every analysis function is a pure computation over its input: no I/O,
// no shared mutable state between calls. Callers may run independent
// analyses concurrently. Fetching samples is the caller's concern (see
// internal/store for the reference SampleStore).
//
// Statistical methods used:
//  1. Windowed descriptive statistics with threshold ratios
//  2. Ordinary least-squares trend fits with R-squared goodness of fit
//  3. Run-length scanning for sustained threshold violations
//  4. Standardized-feature K-means (Lloyd's algorithm, small N)
//  5. Autocorrelation peak detection for periodicity
package analytics

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/deskwatch/deskwatch-ai/internal/analytics/anomaly"
	"github.com/deskwatch/deskwatch-ai/internal/analytics/cluster"
	"github.com/deskwatch/deskwatch-ai/internal/analytics/health"
	"github.com/deskwatch/deskwatch-ai/internal/analytics/periodicity"
	"github.com/deskwatch/deskwatch-ai/internal/analytics/recommend"
	"github.com/deskwatch/deskwatch-ai/internal/analytics/session"
	"github.com/deskwatch/deskwatch-ai/internal/analytics/stats"
	"github.com/deskwatch/deskwatch-ai/internal/analytics/trend"
	"github.com/deskwatch/deskwatch-ai/internal/metrics"
	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Config holds engine-level analysis parameters. Component-specific
// thresholds live in the component configs.
type Config struct {
	// FocusHighThreshold / FocusLowThreshold bound the high_ratio and
	// low_ratio statistics for focus series.
	FocusHighThreshold float64
	FocusLowThreshold  float64
	// DefaultClusterK is the cluster count when the caller passes k <= 0.
	DefaultClusterK int
	// MinHourSamples is the minimum samples an hour bucket needs before it
	// can be reported as a peak or low hour.
	MinHourSamples int

	Session session.Config
	Anomaly anomaly.Config
	Cluster cluster.Config
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		FocusHighThreshold: 0.8,
		FocusLowThreshold:  0.4,
		DefaultClusterK:    5,
		MinHourSamples:     3,
		Session:            session.DefaultConfig(),
		Anomaly:            anomaly.DefaultConfig(),
		Cluster:            cluster.DefaultConfig(),
	}
}

// Validate rejects inconsistent engine parameters at construction time.
func (c Config) Validate() error {
	if c.FocusHighThreshold <= c.FocusLowThreshold {
		return fmt.Errorf("focus_high_threshold (%.2f) must exceed focus_low_threshold (%.2f)",
			c.FocusHighThreshold, c.FocusLowThreshold)
	}
	if c.DefaultClusterK < 1 {
		return fmt.Errorf("default_cluster_k must be at least 1, got %d", c.DefaultClusterK)
	}
	if c.Session.MinimumSessionMinutes < 0 {
		return fmt.Errorf("minimum_session_minutes must not be negative, got %.1f",
			c.Session.MinimumSessionMinutes)
	}
	return c.Anomaly.Validate()
}

// Engine wires the analysis components together behind the public surface.
type Engine struct {
	cfg Config
	log *zap.Logger

	trend       *trend.Detector
	segmenter   *session.Segmenter
	anomalies   *anomaly.Detector
	clusterer   *cluster.Clusterer
	periodicity *periodicity.Detector
	recommender *recommend.Engine
	health      *health.Assessor
}

// NewEngine creates the analytics engine. Configuration errors fail fast
// here, never at analysis time.
func NewEngine(cfg Config, log *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("analytics config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	ad, err := anomaly.NewDetector(cfg.Anomaly)
	if err != nil {
		return nil, fmt.Errorf("anomaly config: %w", err)
	}
	cl, err := cluster.NewClusterer(cfg.Cluster)
	if err != nil {
		return nil, fmt.Errorf("cluster config: %w", err)
	}
	return &Engine{
		cfg:         cfg,
		log:         log,
		trend:       trend.NewDetector(),
		segmenter:   session.NewSegmenter(cfg.Session),
		anomalies:   ad,
		clusterer:   cl,
		periodicity: periodicity.NewDetector(),
		recommender: recommend.NewEngine(),
		health:      health.NewAssessor(),
	}, nil
}

// AnalyzeFocus computes the basic focus overview: descriptive statistics,
// trend, and hourly patterns with peak and low hours. An empty window
// returns a structured no-data report, never an error.
func (e *Engine) AnalyzeFocus(samples []models.Sample) FocusAnalysisReport {
	defer metrics.ObserveAnalysis("focus", time.Now())

	points := trend.SeriesFromSamples(samples, trend.FocusValue)
	if len(points) == 0 {
		return FocusAnalysisReport{SampleCount: len(samples)}
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	basic, _ := stats.ComputeBasicStats(values, e.cfg.FocusHighThreshold, e.cfg.FocusLowThreshold)

	hourly := hourlyFocus(samples)
	peaks, lows := extremeHours(hourly, e.cfg.MinHourSamples)

	return FocusAnalysisReport{
		HasData:         true,
		SampleCount:     len(samples),
		BasicStatistics: basic,
		TrendAnalysis:   e.trend.DetectTrend("focus_score", points),
		PeakHours:       peaks,
		LowHours:        lows,
		HourlyPatterns:  hourly,
	}
}

// AnalyzeTimeSeries runs seasonality, trend, and change-point analysis on
// the focus series and classifies the overall pattern.
func (e *Engine) AnalyzeTimeSeries(samples []models.Sample, window Window) TimeSeriesReport {
	defer metrics.ObserveAnalysis("time_series", time.Now())

	points := trend.SeriesFromSamples(samples, trend.FocusValue)
	if len(points) == 0 {
		return TimeSeriesReport{SampleCount: len(samples), Window: window, Summary: "no data in window"}
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	tr := e.trend.DetectTrend("focus_score", points)
	seasonality := e.periodicity.DetectCycles(values)
	changes := changePoints(points)
	classification := classifyPattern(tr, values, seasonality)

	return TimeSeriesReport{
		HasData:        true,
		SampleCount:    len(samples),
		Window:         window,
		Trend:          tr,
		Seasonality:    seasonality,
		ChangePoints:   changes,
		Classification: classification,
		Summary:        summarize(tr, seasonality, changes, classification),
	}
}

// AnalyzeFocusDetailed extracts focus sessions and reports session-level
// quality, distraction statistics, and recommendations.
func (e *Engine) AnalyzeFocusDetailed(samples []models.Sample) FocusDetailReport {
	defer metrics.ObserveAnalysis("focus_detail", time.Now())

	report := FocusDetailReport{
		SampleCount:    len(samples),
		Sessions:       []models.FocusSession{},
		LevelBreakdown: map[models.FocusLevel]int{},
	}
	if len(samples) == 0 {
		report.Recommendations = e.recommender.Generate(recommend.Facts{})
		return report
	}
	report.HasData = true

	sessions := e.segmenter.ExtractFocusSessions(samples)
	report.Sessions = sessions

	durations := make([]float64, 0, len(sessions))
	var qualitySum, focusSum, focusedMinutes float64
	interruptions := 0
	for _, s := range sessions {
		report.LevelBreakdown[s.FocusLevel]++
		durations = append(durations, s.DurationMinutes)
		qualitySum += s.QualityScore
		focusSum += s.AverageFocus
		focusedMinutes += s.DurationMinutes
		interruptions += s.InterruptionCount
	}
	report.DurationStats, _ = stats.ComputeBasicStats(durations, 45, 10)

	distraction := distractionStats(samples)
	distraction.TotalInterruptions = interruptions
	report.DistractionStats = distraction

	report.OptimalHours = optimalHours(sessions)

	if len(sessions) > 0 {
		report.QualityMetrics = QualityMetrics{
			AverageQuality:      qualitySum / float64(len(sessions)),
			AverageFocus:        focusSum / float64(len(sessions)),
			TotalFocusedMinutes: focusedMinutes,
		}
	}

	report.Recommendations = e.recommender.Generate(e.facts(samples, sessions, report.QualityMetrics, distraction))
	return report
}

// AnalyzeHealth produces the ergonomic risk assessment for the window.
func (e *Engine) AnalyzeHealth(samples []models.Sample) HealthReport {
	defer metrics.ObserveAnalysis("health", time.Now())

	return HealthReport{
		HasData:     len(samples) > 0,
		SampleCount: len(samples),
		Assessment:  e.health.Assess(samples),
	}
}

// ClusterBehaviors runs one full K-means pass. k <= 0 selects the
// configured default. Fewer samples than k yields a no-data report.
func (e *Engine) ClusterBehaviors(samples []models.Sample, k int) ClusteringReport {
	defer metrics.ObserveAnalysis("clustering", time.Now())

	if k <= 0 {
		k = e.cfg.DefaultClusterK
	}
	clusters := e.clusterer.Cluster(samples, k)
	return ClusteringReport{
		HasData:     len(clusters) > 0,
		SampleCount: len(samples),
		K:           k,
		Clusters:    clusters,
	}
}

// DetectAnomalies scans the window for sustained threshold violations.
func (e *Engine) DetectAnomalies(samples []models.Sample) []models.AnomalyEvent {
	defer metrics.ObserveAnalysis("anomaly", time.Now())

	events := e.anomalies.DetectAnomalies(samples)
	metrics.AnomaliesDetected.Add(float64(len(events)))
	return events
}

// GenerateInsights derives narrative insights plus recommendations for the
// window.
func (e *Engine) GenerateInsights(samples []models.Sample, timeframe Window) InsightReport {
	defer metrics.ObserveAnalysis("insights", time.Now())

	report := InsightReport{
		SampleCount: len(samples),
		Timeframe:   timeframe,
		KeyInsights: []string{},
	}
	if len(samples) == 0 {
		report.Recommendations = e.recommender.Generate(recommend.Facts{})
		return report
	}
	report.HasData = true

	sessions := e.segmenter.ExtractFocusSessions(samples)
	var quality QualityMetrics
	if len(sessions) > 0 {
		var qualitySum, focusSum, minutes float64
		for _, s := range sessions {
			qualitySum += s.QualityScore
			focusSum += s.AverageFocus
			minutes += s.DurationMinutes
		}
		quality = QualityMetrics{
			AverageQuality:      qualitySum / float64(len(sessions)),
			AverageFocus:        focusSum / float64(len(sessions)),
			TotalFocusedMinutes: minutes,
		}
	}
	distraction := distractionStats(samples)
	facts := e.facts(samples, sessions, quality, distraction)

	report.KeyInsights = keyInsights(facts, sessions, quality, distraction)
	report.Recommendations = e.recommender.Generate(facts)
	return report
}

// ComprehensiveReport runs every section, capturing per-section panics as
// error markers so a single failing sub-analysis never sinks the whole
// report.
func (e *Engine) ComprehensiveReport(samples []models.Sample) ComprehensiveReport {
	report := ComprehensiveReport{
		GeneratedAt: time.Now().UTC(),
		SampleCount: len(samples),
		Anomalies:   []models.AnomalyEvent{},
	}
	errs := map[string]string{}

	e.section(errs, "focus", func() { report.Focus = e.AnalyzeFocus(samples) })
	e.section(errs, "time_series", func() { report.TimeSeries = e.AnalyzeTimeSeries(samples, WindowDaily) })
	e.section(errs, "focus_detail", func() { report.FocusDetail = e.AnalyzeFocusDetailed(samples) })
	e.section(errs, "health", func() { report.Health = e.AnalyzeHealth(samples) })
	e.section(errs, "clustering", func() { report.Clustering = e.ClusterBehaviors(samples, 0) })
	e.section(errs, "anomalies", func() { report.Anomalies = e.DetectAnomalies(samples) })
	e.section(errs, "insights", func() { report.Insights = e.GenerateInsights(samples, WindowDaily) })

	if len(errs) > 0 {
		report.SectionErrors = errs
	}
	return report
}

// section runs one sub-analysis, converting a panic into a recorded
// section error.
func (e *Engine) section(errs map[string]string, name string, run func()) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("%v", r)
			e.log.Error("analysis section failed", zap.String("section", name), zap.String("error", msg))
			errs[name] = msg
		}
	}()
	run()
}

// facts assembles the recommendation inputs from window aggregates.
func (e *Engine) facts(samples []models.Sample, sessions []models.FocusSession, quality QualityMetrics, distraction DistractionStats) recommend.Facts {
	points := trend.SeriesFromSamples(samples, trend.FocusValue)
	lowFocus := 0
	for _, p := range points {
		if p.Value <= e.cfg.FocusLowThreshold {
			lowFocus++
		}
	}
	lowRatio := 0.0
	if len(points) > 0 {
		lowRatio = float64(lowFocus) / float64(len(points))
	}

	return recommend.Facts{
		FocusTrend:     e.trend.DetectTrend("focus_score", points),
		Anomalies:      e.anomalies.DetectAnomalies(samples),
		SessionQuality: quality.AverageQuality,
		SessionCount:   len(sessions),
		LowFocusRatio:  lowRatio,
		SmartphoneRate: distraction.SmartphoneRate,
		AbsenceRate:    distraction.AbsenceRate,
	}
}

func distractionStats(samples []models.Sample) DistractionStats {
	if len(samples) == 0 {
		return DistractionStats{}
	}
	phone := 0
	absent := 0
	for _, s := range samples {
		if s.SmartphoneDetected {
			phone++
		}
		if s.Presence == models.PresenceAbsent {
			absent++
		}
	}
	n := float64(len(samples))
	return DistractionStats{
		SmartphoneRate: float64(phone) / n,
		AbsenceRate:    float64(absent) / n,
	}
}

func hourlyFocus(samples []models.Sample) []HourlyPattern {
	type bucket struct {
		sum   float64
		count int
	}
	buckets := map[int]*bucket{}
	for _, s := range samples {
		if s.FocusScore == nil {
			continue
		}
		h := s.Timestamp.Hour()
		b := buckets[h]
		if b == nil {
			b = &bucket{}
			buckets[h] = b
		}
		b.sum += models.Clamp01(*s.FocusScore)
		b.count++
	}

	hours := make([]int, 0, len(buckets))
	for h := range buckets {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	patterns := make([]HourlyPattern, 0, len(hours))
	for _, h := range hours {
		b := buckets[h]
		patterns = append(patterns, HourlyPattern{
			Hour:         h,
			AverageFocus: b.sum / float64(b.count),
			SampleCount:  b.count,
		})
	}
	return patterns
}

// extremeHours picks up to three peak and three low hours among buckets
// with enough samples to be meaningful.
func extremeHours(patterns []HourlyPattern, minSamples int) (peaks, lows []int) {
	eligible := make([]HourlyPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.SampleCount >= minSamples {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return []int{}, []int{}
	}

	byFocus := make([]HourlyPattern, len(eligible))
	copy(byFocus, eligible)
	sort.SliceStable(byFocus, func(i, j int) bool {
		return byFocus[i].AverageFocus > byFocus[j].AverageFocus
	})

	limit := 3
	if len(byFocus) < limit {
		limit = len(byFocus)
	}
	peaks = make([]int, 0, limit)
	lows = make([]int, 0, limit)
	for i := 0; i < limit; i++ {
		peaks = append(peaks, byFocus[i].Hour)
		lows = append(lows, byFocus[len(byFocus)-1-i].Hour)
	}
	sort.Ints(peaks)
	sort.Ints(lows)
	return peaks, lows
}

// optimalHours reports the start hours of the highest-quality sessions.
func optimalHours(sessions []models.FocusSession) []int {
	type hourQuality struct {
		sum   float64
		count int
	}
	buckets := map[int]*hourQuality{}
	for _, s := range sessions {
		h := s.StartTime.Hour()
		b := buckets[h]
		if b == nil {
			b = &hourQuality{}
			buckets[h] = b
		}
		b.sum += s.QualityScore
		b.count++
	}

	type scored struct {
		hour    int
		quality float64
	}
	ranked := make([]scored, 0, len(buckets))
	for h, b := range buckets {
		ranked = append(ranked, scored{hour: h, quality: b.sum / float64(b.count)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].quality != ranked[j].quality {
			return ranked[i].quality > ranked[j].quality
		}
		return ranked[i].hour < ranked[j].hour
	})

	limit := 3
	if len(ranked) < limit {
		limit = len(ranked)
	}
	hours := make([]int, 0, limit)
	for i := 0; i < limit; i++ {
		hours = append(hours, ranked[i].hour)
	}
	sort.Ints(hours)
	return hours
}

// changePoints finds sustained mean shifts by comparing adjacent
// fixed-size windows along the series.
func changePoints(points []trend.Point) []ChangePoint {
	const window = 10
	const minShift = 0.15

	changes := make([]ChangePoint, 0)
	if len(points) < 2*window {
		return changes
	}

	for i := window; i+window <= len(points); i += window {
		var before, after float64
		for j := i - window; j < i; j++ {
			before += points[j].Value
		}
		for j := i; j < i+window; j++ {
			after += points[j].Value
		}
		before /= window
		after /= window

		delta := after - before
		if delta >= minShift || delta <= -minShift {
			changes = append(changes, ChangePoint{
				Timestamp: points[i].Timestamp,
				Before:    before,
				After:     after,
				Delta:     delta,
			})
		}
	}
	return changes
}

// classifyPattern labels the overall window shape from trend, variability,
// and seasonality.
func classifyPattern(tr models.TrendResult, values []float64, seasonality []models.CyclicalPattern) string {
	mean := stats.Mean(values)
	sd := stats.StdDev(values, mean)

	switch {
	case len(seasonality) > 0:
		return "cyclical"
	case sd > 0.25:
		return "volatile"
	case tr.Direction == models.DirectionAscending:
		return "improving"
	case tr.Direction == models.DirectionDescending:
		return "declining"
	default:
		return "steady"
	}
}

func summarize(tr models.TrendResult, seasonality []models.CyclicalPattern, changes []ChangePoint, classification string) string {
	s := fmt.Sprintf("Pattern is %s; focus trend is %s (r²=%.2f)", classification, tr.Direction, tr.RSquared)
	if len(seasonality) > 0 {
		s += fmt.Sprintf("; %d cyclical pattern(s) detected, strongest period %d samples", len(seasonality), seasonality[0].Period)
	}
	if len(changes) > 0 {
		s += fmt.Sprintf("; %d mean shift(s) in window", len(changes))
	}
	return s
}

// keyInsights renders human-readable insight strings from window facts.
func keyInsights(facts recommend.Facts, sessions []models.FocusSession, quality QualityMetrics, distraction DistractionStats) []string {
	insights := make([]string, 0, 4)

	if len(sessions) > 0 {
		insights = append(insights, fmt.Sprintf("%d focus session(s) totalling %.0f focused minutes (avg quality %.2f)",
			len(sessions), quality.TotalFocusedMinutes, quality.AverageQuality))
	} else {
		insights = append(insights, "no focus session reached the minimum duration in this window")
	}

	switch facts.FocusTrend.Direction {
	case models.DirectionAscending:
		insights = append(insights, "focus is trending upward across the window")
	case models.DirectionDescending:
		insights = append(insights, "focus is trending downward across the window")
	}

	if distraction.SmartphoneRate > 0.1 {
		insights = append(insights, fmt.Sprintf("smartphone visible in %.0f%% of samples", distraction.SmartphoneRate*100))
	}
	if distraction.AbsenceRate > 0.3 {
		insights = append(insights, fmt.Sprintf("away from desk for %.0f%% of the window", distraction.AbsenceRate*100))
	}
	if n := len(facts.Anomalies); n > 0 {
		insights = append(insights, fmt.Sprintf("%d behavioral anomaly(ies) detected", n))
	}
	return insights
}

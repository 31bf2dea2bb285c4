// Package metrics exposes Prometheus instrumentation for the analysis
// engine and the alert pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysisDuration observes wall time per analysis section.
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "deskwatch",
		Subsystem: "analytics",
		Name:      "analysis_duration_seconds",
		Help:      "Time spent per analysis section.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"section"})

	// AnalysisRuns counts analysis invocations per section.
	AnalysisRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskwatch",
		Subsystem: "analytics",
		Name:      "analysis_runs_total",
		Help:      "Number of analysis invocations per section.",
	}, []string{"section"})

	// AnomaliesDetected counts anomaly events emitted by the detector.
	AnomaliesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "deskwatch",
		Subsystem: "analytics",
		Name:      "anomalies_detected_total",
		Help:      "Anomaly events emitted by the detector.",
	})

	// AlertsGenerated counts alerts produced by rule evaluation.
	AlertsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "deskwatch",
		Subsystem: "alerts",
		Name:      "generated_total",
		Help:      "Alerts produced by rule evaluation.",
	})

	// AlertsSent counts alerts delivered to at least one channel.
	AlertsSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "deskwatch",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Alerts delivered to at least one channel.",
	})

	// AlertsSuppressed counts alerts held back, partitioned by reason.
	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskwatch",
		Subsystem: "alerts",
		Name:      "suppressed_total",
		Help:      "Alerts suppressed before delivery, by reason.",
	}, []string{"reason"})

	// AlertDeliveryFailures counts per-channel delivery errors.
	AlertDeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskwatch",
		Subsystem: "alerts",
		Name:      "delivery_failures_total",
		Help:      "Per-channel alert delivery errors.",
	}, []string{"channel"})

	// CacheHits and CacheMisses track report cache effectiveness.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "deskwatch",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Report cache hits.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "deskwatch",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Report cache misses.",
	})

	// SamplesLoaded observes the window size handed to the engine.
	SamplesLoaded = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "deskwatch",
		Subsystem: "store",
		Name:      "samples_loaded",
		Help:      "Samples loaded per analysis window.",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000},
	})
)

// ObserveAnalysis records one analysis run. Call with defer at the top of
// an analysis method:
//
//	defer metrics.ObserveAnalysis("focus", time.Now())
func ObserveAnalysis(section string, start time.Time) {
	AnalysisRuns.WithLabelValues(section).Inc()
	AnalysisDuration.WithLabelValues(section).Observe(time.Since(start).Seconds())
}

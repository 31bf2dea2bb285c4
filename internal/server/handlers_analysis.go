package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/analytics"
	"github.com/deskwatch/deskwatch-ai/internal/metrics"
	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// ─── Analysis endpoints ───────────────────────────────────────────────────────
//
// GET /api/v1/analysis/focus      — focus quality over a window
// GET /api/v1/analysis/trends     — time-series trend analysis
// GET /api/v1/analysis/detailed   — sessions, hourly breakdown, change points
// GET /api/v1/analysis/health     — posture and presence assessment
// GET /api/v1/analysis/clusters   — behavior clustering (k param)
// GET /api/v1/analysis/anomalies  — sustained threshold violations
// GET /api/v1/analysis/insights   — recommendations for a timeframe
// GET /api/v1/analysis/report     — comprehensive report (cached)
//
// Common params: window (Go duration, default 24h), user_id, timeframe
// (hourly|daily|weekly for trends and insights).

// handleAnalysis is the single dispatcher for /api/v1/analysis/...
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	suffix := strings.TrimPrefix(r.URL.Path, "/api/v1/analysis")
	suffix = strings.TrimPrefix(suffix, "/")

	switch suffix {
	case "focus":
		s.withSamples(w, r, func(samples []models.Sample) interface{} {
			return s.engine.AnalyzeFocus(samples)
		})
	case "trends":
		timeframe := queryTimeframe(r)
		s.withSamples(w, r, func(samples []models.Sample) interface{} {
			return s.engine.AnalyzeTimeSeries(samples, timeframe)
		})
	case "detailed":
		s.withSamples(w, r, func(samples []models.Sample) interface{} {
			return s.engine.AnalyzeFocusDetailed(samples)
		})
	case "health":
		s.withSamples(w, r, func(samples []models.Sample) interface{} {
			return s.engine.AnalyzeHealth(samples)
		})
	case "clusters":
		k := 0
		if raw := r.URL.Query().Get("k"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				k = n
			}
		}
		s.withSamples(w, r, func(samples []models.Sample) interface{} {
			return s.engine.ClusterBehaviors(samples, k)
		})
	case "anomalies":
		s.withSamples(w, r, func(samples []models.Sample) interface{} {
			events := s.engine.DetectAnomalies(samples)
			return map[string]interface{}{
				"anomalies": events,
				"total":     len(events),
			}
		})
	case "insights":
		timeframe := queryTimeframe(r)
		s.withSamples(w, r, func(samples []models.Sample) interface{} {
			return s.engine.GenerateInsights(samples, timeframe)
		})
	case "report":
		s.handleComprehensiveReport(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// withSamples loads the requested sample window and runs one analysis
// over it. Empty windows still reach the engine, which reports
// insufficient-data results rather than errors.
func (s *Server) withSamples(w http.ResponseWriter, r *http.Request, run func([]models.Sample) interface{}) {
	window := queryWindow(r, 24*time.Hour)
	userID := r.URL.Query().Get("user_id")

	samples, err := s.store.GetRecentSamples(r.Context(), window, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.SamplesLoaded.Observe(float64(len(samples)))
	jsonOK(w, run(samples))
}

// handleComprehensiveReport serves the full multi-section report. The
// result is cached per window and user; ingestion clears the cache.
func (s *Server) handleComprehensiveReport(w http.ResponseWriter, r *http.Request) {
	window := queryWindow(r, 24*time.Hour)
	userID := r.URL.Query().Get("user_id")

	key := fmt.Sprintf("report:%s:%s", userID, window)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			jsonOK(w, cached)
			return
		}
	}

	samples, err := s.store.GetRecentSamples(r.Context(), window, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.SamplesLoaded.Observe(float64(len(samples)))

	report := s.engine.ComprehensiveReport(samples)
	if s.cache != nil {
		s.cache.Set(key, report)
	}
	jsonOK(w, report)
}

// queryTimeframe parses the timeframe query param. Unknown values fall
// back to daily.
func queryTimeframe(r *http.Request) analytics.Window {
	switch r.URL.Query().Get("timeframe") {
	case "hourly":
		return analytics.WindowHourly
	case "weekly":
		return analytics.WindowWeekly
	default:
		return analytics.WindowDaily
	}
}

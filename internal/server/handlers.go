package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/alert"
	"github.com/deskwatch/deskwatch-ai/internal/models"
	"github.com/deskwatch/deskwatch-ai/internal/store"
)

// jsonOK writes v as a 200 JSON response.
func jsonOK(w http.ResponseWriter, v interface{}) {
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ─── Sample ingestion ─────────────────────────────────────────────────────────
//
// POST /api/v1/samples — ingest a batch of behavior samples
// GET  /api/v1/samples — list recent samples (window, user_id params)

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSamplesIngest(w, r)
	case http.MethodGet:
		s.handleSamplesList(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSamplesIngest(w http.ResponseWriter, r *http.Request) {
	var samples []models.Sample
	if err := json.NewDecoder(r.Body).Decode(&samples); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(samples) == 0 {
		http.Error(w, "samples cannot be empty", http.StatusBadRequest)
		return
	}

	if err := s.store.AppendSamples(r.Context(), samples); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// A fresh batch invalidates any cached analysis.
	if s.cache != nil {
		s.cache.Clear()
	}

	jsonOK(w, map[string]interface{}{
		"ingested":  len(samples),
		"timestamp": time.Now(),
	})
}

func (s *Server) handleSamplesList(w http.ResponseWriter, r *http.Request) {
	window := queryWindow(r, 24*time.Hour)
	userID := r.URL.Query().Get("user_id")

	samples, err := s.store.GetRecentSamples(r.Context(), window, userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonOK(w, map[string]interface{}{
		"samples": samples,
		"total":   len(samples),
		"window":  window.String(),
	})
}

// queryWindow parses the window query param as a Go duration ("6h",
// "30m"). Falls back to def when absent or invalid.
func queryWindow(r *http.Request, def time.Duration) time.Duration {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ─── Alert pipeline endpoints ─────────────────────────────────────────────────
//
// POST /api/v1/events              — submit a behavior event for rule matching
// GET  /api/v1/alerts/rules        — list configured alert rules
// GET  /api/v1/alerts/statistics   — dispatcher lifetime counters
// POST /api/v1/alerts/acknowledge  — acknowledge a sent alert
// GET  /api/v1/alerts/history      — query persisted alert history
// GET  /api/v1/alerts/summary      — per-status counts over a time range

func (s *Server) handleEventIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ev alert.StreamEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if ev.EventType == "" {
		http.Error(w, "event_type is required", http.StatusBadRequest)
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	switch err := s.dispatcher.Submit(ev); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"accepted":  true,
			"timestamp": time.Now(),
		})
	case errors.Is(err, alert.ErrQueueFull):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, alert.ErrShuttingDown):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleAlertRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonOK(w, map[string]interface{}{
		"rules": s.rules,
		"total": len(s.rules),
	})
}

func (s *Server) handleAlertStatistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	jsonOK(w, s.dispatcher.GetAlertStatistics())
}

func (s *Server) handleAlertAcknowledge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AlertID string `json:"alert_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if req.AlertID == "" {
		http.Error(w, "alert_id is required", http.StatusBadRequest)
		return
	}

	if err := s.dispatcher.Acknowledge(req.AlertID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonOK(w, map[string]interface{}{
		"alert_id":     req.AlertID,
		"acknowledged": true,
	})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := store.AlertQuery{
		RuleID: r.URL.Query().Get("rule_id"),
		Status: r.URL.Query().Get("status"),
		Limit:  50,
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			q.Limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			q.Offset = n
		}
	}
	if window := queryWindow(r, 0); window > 0 {
		q.From = time.Now().Add(-window)
	}

	records, err := s.store.QueryAlerts(r.Context(), q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]interface{}{
		"alerts": records,
		"total":  len(records),
	})
}

func (s *Server) handleAlertSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	window := queryWindow(r, 24*time.Hour)
	now := time.Now()

	summary, err := s.store.AlertSummary(r.Context(), now.Add(-window), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonOK(w, map[string]interface{}{
		"summary": summary,
		"window":  window.String(),
	})
}

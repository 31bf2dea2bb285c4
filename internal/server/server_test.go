package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/deskwatch/deskwatch-ai/internal/alert"
	"github.com/deskwatch/deskwatch-ai/internal/config"
	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// newTestServer builds the full component graph against a temp-dir
// database and log files, and exposes the HTTP surface on an ephemeral
// listener.
func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerWithConfig(t, func(*config.Config) {})
}

func newTestServerWithConfig(t *testing.T, modify func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.SQLitePath = filepath.Join(dir, "deskwatch.db")
	cfg.Logging.AppLogPath = filepath.Join(dir, "app.log")
	cfg.Logging.AuditLogPath = filepath.Join(dir, "audit.log")
	modify(cfg)

	srv, err := NewServer(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	mux := http.NewServeMux()
	srv.registerHandlers(mux)
	ts := httptest.NewServer(mux)

	t.Cleanup(func() {
		ts.Close()
		if srv.dispatcher != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.dispatcher.Shutdown(ctx)
		}
		if srv.limiter != nil {
			srv.limiter.Stop()
		}
		srv.cancel()
		srv.store.Close()
		srv.auditor.Close()
	})
	return srv, ts
}

func getJSON(t *testing.T, url string, wantStatus int) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func testSamples(count int, focus float64) []models.Sample {
	base := time.Now().Add(-time.Duration(count) * 5 * time.Second)
	samples := make([]models.Sample, count)
	for i := range samples {
		samples[i] = models.Sample{
			Timestamp:    base.Add(time.Duration(i) * 5 * time.Second),
			FocusScore:   models.Float(focus),
			PostureScore: models.Float(0.7),
			Presence:     models.PresencePresent,
		}
	}
	return samples
}

func TestNewServerNilConfig(t *testing.T) {
	if _, err := NewServer(nil, zap.NewNop()); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	body := getJSON(t, ts.URL+"/health", http.StatusOK)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}

	resp, err := http.Post(ts.URL+"/health", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /health status = %d, want 405", resp.StatusCode)
	}
}

func TestReadyReflectsRunningState(t *testing.T) {
	srv, ts := newTestServer(t)

	body := getJSON(t, ts.URL+"/ready", http.StatusServiceUnavailable)
	if body["status"] != "not_ready" {
		t.Errorf("status = %v, want not_ready", body["status"])
	}

	srv.mu.Lock()
	srv.running = true
	srv.mu.Unlock()

	body = getJSON(t, ts.URL+"/ready", http.StatusOK)
	if body["status"] != "ready" {
		t.Errorf("status = %v, want ready", body["status"])
	}
}

func TestSampleIngestAndList(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/samples", testSamples(10, 0.8))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status = %d, want 200", resp.StatusCode)
	}
	var ack map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["ingested"] != float64(10) {
		t.Errorf("ingested = %v, want 10", ack["ingested"])
	}

	body := getJSON(t, ts.URL+"/api/v1/samples?window=1h", http.StatusOK)
	if body["total"] != float64(10) {
		t.Errorf("total = %v, want 10", body["total"])
	}
}

func TestSampleIngestRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/samples", []models.Sample{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty batch status = %d, want 400", resp.StatusCode)
	}

	resp, err := http.Post(ts.URL+"/api/v1/samples", "application/json", bytes.NewReader([]byte("not json")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestAnalysisFocusEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/samples", testSamples(20, 0.9))
	resp.Body.Close()

	body := getJSON(t, ts.URL+"/api/v1/analysis/focus?window=1h", http.StatusOK)
	if body["has_data"] != true {
		t.Error("expected has_data true after ingestion")
	}
	if body["sample_count"] != float64(20) {
		t.Errorf("sample_count = %v, want 20", body["sample_count"])
	}
}

// The configured session focus threshold must reach the segmenter: a
// focus run below a raised threshold yields no sessions, while the
// default threshold admits it.
func TestAnalysisSessionThresholdConfigurable(t *testing.T) {
	sessionWindow := func() []models.Sample {
		base := time.Now().Add(-30 * time.Minute)
		samples := make([]models.Sample, 0, 21)
		for i := 0; i < 20; i++ {
			samples = append(samples, models.Sample{
				Timestamp:  base.Add(time.Duration(i) * 30 * time.Second),
				FocusScore: models.Float(0.7),
				Presence:   models.PresencePresent,
			})
		}
		// Unfocused closing sample so the run is bounded.
		samples = append(samples, models.Sample{
			Timestamp:  base.Add(10 * time.Minute),
			FocusScore: models.Float(0.1),
			Presence:   models.PresencePresent,
		})
		return samples
	}

	sessionCount := func(t *testing.T, ts *httptest.Server) int {
		t.Helper()
		resp := postJSON(t, ts.URL+"/api/v1/samples", sessionWindow())
		resp.Body.Close()
		body := getJSON(t, ts.URL+"/api/v1/analysis/detailed?window=1h", http.StatusOK)
		sessions, _ := body["sessions"].([]interface{})
		return len(sessions)
	}

	_, def := newTestServer(t)
	if got := sessionCount(t, def); got != 1 {
		t.Errorf("default threshold session count = %d, want 1", got)
	}

	_, strict := newTestServerWithConfig(t, func(cfg *config.Config) {
		cfg.Analytics.SessionFocusThreshold = 0.9
	})
	if got := sessionCount(t, strict); got != 0 {
		t.Errorf("raised threshold session count = %d, want 0", got)
	}
}

func TestAnalysisEmptyWindow(t *testing.T) {
	_, ts := newTestServer(t)

	body := getJSON(t, ts.URL+"/api/v1/analysis/focus", http.StatusOK)
	if body["has_data"] != false {
		t.Error("expected a no-data report on an empty store")
	}
}

func TestAnalysisClusterParam(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/samples", testSamples(30, 0.5))
	resp.Body.Close()

	body := getJSON(t, ts.URL+"/api/v1/analysis/clusters?k=2&window=1h", http.StatusOK)
	if body["k"] != float64(2) {
		t.Errorf("k = %v, want 2", body["k"])
	}
}

func TestAnalysisUnknownPath(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/analysis/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestEventIngest(t *testing.T) {
	_, ts := newTestServer(t)

	ev := alert.StreamEvent{
		EventType: "extreme_low_focus",
		Fields:    map[string]float64{"focus_score": 0.05},
	}
	resp := postJSON(t, ts.URL+"/api/v1/events", ev)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/events", alert.StreamEvent{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing event_type status = %d, want 400", resp.StatusCode)
	}
}

func TestAlertRulesEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	body := getJSON(t, ts.URL+"/api/v1/alerts/rules", http.StatusOK)
	if body["total"] != float64(len(alert.DefaultRules())) {
		t.Errorf("total = %v, want %d", body["total"], len(alert.DefaultRules()))
	}
}

func TestAlertStatisticsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/alerts/statistics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAlertAcknowledgeUnknown(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/alerts/acknowledge", map[string]string{"alert_id": "no-such-alert"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/v1/alerts/acknowledge", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing alert_id status = %d, want 400", resp.StatusCode)
	}
}

func TestAlertHistoryEmpty(t *testing.T) {
	_, ts := newTestServer(t)

	body := getJSON(t, ts.URL+"/api/v1/alerts/history", http.StatusOK)
	if body["total"] != float64(0) {
		t.Errorf("total = %v, want 0", body["total"])
	}
}

func TestAlertSummaryEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	body := getJSON(t, ts.URL+"/api/v1/alerts/summary?window=6h", http.StatusOK)
	if body["window"] != "6h0m0s" {
		t.Errorf("window = %v, want 6h0m0s", body["window"])
	}
}

// The comprehensive report is cached per window and user; a fresh batch
// of samples invalidates it.
func TestComprehensiveReportCaching(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/v1/samples", testSamples(10, 0.7))
	resp.Body.Close()

	first := getJSON(t, ts.URL+"/api/v1/analysis/report?window=1h", http.StatusOK)
	second := getJSON(t, ts.URL+"/api/v1/analysis/report?window=1h", http.StatusOK)
	if first["generated_at"] != second["generated_at"] {
		t.Error("second request should be served from cache")
	}

	resp = postJSON(t, ts.URL+"/api/v1/samples", testSamples(5, 0.3))
	resp.Body.Close()

	third := getJSON(t, ts.URL+"/api/v1/analysis/report?window=1h", http.StatusOK)
	if third["generated_at"] == first["generated_at"] {
		t.Error("ingestion should invalidate the cached report")
	}
	if third["sample_count"] != float64(15) {
		t.Errorf("sample_count = %v, want 15", third["sample_count"])
	}
}

func TestQueryWindow(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 24 * time.Hour},
		{"6h", 6 * time.Hour},
		{"30m", 30 * time.Minute},
		{"garbage", 24 * time.Hour},
		{"-1h", 24 * time.Hour},
	}
	for _, tt := range tests {
		url := "/api/v1/samples"
		if tt.raw != "" {
			url = fmt.Sprintf("%s?window=%s", url, tt.raw)
		}
		r := httptest.NewRequest(http.MethodGet, url, nil)
		if got := queryWindow(r, 24*time.Hour); got != tt.want {
			t.Errorf("queryWindow(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

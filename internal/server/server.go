// Package server wires the deskwatch components behind an HTTP surface:
// sample ingestion, the analysis endpoints, the alert pipeline, and the
// WebSocket alert feed.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/deskwatch/deskwatch-ai/internal/alert"
	"github.com/deskwatch/deskwatch-ai/internal/analytics"
	"github.com/deskwatch/deskwatch-ai/internal/analytics/anomaly"
	"github.com/deskwatch/deskwatch-ai/internal/audit"
	"github.com/deskwatch/deskwatch-ai/internal/cache"
	"github.com/deskwatch/deskwatch-ai/internal/config"
	"github.com/deskwatch/deskwatch-ai/internal/middleware"
	"github.com/deskwatch/deskwatch-ai/internal/store"
)

// Server owns the component graph and the HTTP listener.
type Server struct {
	cfg *config.Config
	log *zap.Logger

	auditor    audit.Logger
	store      store.Store
	cache      *cache.Cache
	engine     *analytics.Engine
	rules      []alert.Rule
	dispatcher *alert.Dispatcher
	wsChannel  *alert.WebSocketChannel
	limiter    *middleware.RateLimiter

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// NewServer builds the full component graph from a validated config.
// Construction fails fast on any component error so a misconfigured
// process never starts serving.
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		cfg:    cfg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := srv.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return srv, nil
}

// initializeComponents constructs components in dependency order:
// audit log, store, cache, analytics engine, alert pipeline.
func (s *Server) initializeComponents() error {
	auditCfg := audit.DefaultConfig()
	auditCfg.AuditLogPath = s.cfg.Logging.AuditLogPath
	auditCfg.AppLogPath = s.cfg.Logging.AppLogPath
	auditCfg.LogLevel = s.cfg.Logging.Level

	auditor, err := audit.NewLogger(auditCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	s.auditor = auditor

	st, err := store.NewSQLiteStore(s.cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	if s.cfg.Cache.Enabled {
		s.cache = cache.New(s.cfg.Cache.MaxEntries, time.Duration(s.cfg.Cache.TTLSeconds)*time.Second)
	}

	engine, err := analytics.NewEngine(s.analyticsConfig(), s.log.Named("analytics"))
	if err != nil {
		return fmt.Errorf("failed to initialize analytics engine: %w", err)
	}
	s.engine = engine

	if s.cfg.Alerts.Enabled {
		if err := s.initializeAlertPipeline(); err != nil {
			return fmt.Errorf("failed to initialize alert pipeline: %w", err)
		}
	}

	if s.cfg.Server.IngestRateLimitPerMinute > 0 {
		s.limiter = middleware.NewRateLimiter(s.cfg.Server.IngestRateLimitPerMinute)
	}

	return nil
}

// analyticsConfig maps the flat application config onto the engine's
// component configs, keeping the engine independent of viper.
func (s *Server) analyticsConfig() analytics.Config {
	a := s.cfg.Analytics
	cfg := analytics.DefaultConfig()

	cfg.FocusHighThreshold = a.FocusHighThreshold
	cfg.FocusLowThreshold = a.FocusLowThreshold
	cfg.DefaultClusterK = a.DefaultClusterK

	cfg.Session.FocusThresholdHigh = a.FocusHighThreshold
	cfg.Session.FocusThresholdMedium = a.SessionFocusThreshold
	cfg.Session.FocusThresholdLow = a.FocusLowThreshold
	cfg.Session.MinimumSessionMinutes = a.MinimumSessionMinutes

	cfg.Anomaly = anomaly.Config{
		SamplingInterval:  time.Duration(a.SamplingIntervalSeconds) * time.Second,
		PostureThreshold:  a.PostureThreshold,
		PostureSustained:  time.Duration(a.PostureSustainedSeconds) * time.Second,
		FocusThreshold:    a.FocusFloorThreshold,
		FocusSustained:    time.Duration(a.FocusSustainedSeconds) * time.Second,
		SmartphoneRateMax: a.SmartphoneRateMax,
		AbsenceSustained:  time.Duration(a.AbsenceSustainedSeconds) * time.Second,
	}

	return cfg
}

func (s *Server) initializeAlertPipeline() error {
	al := s.cfg.Alerts

	s.wsChannel = alert.NewWebSocketChannel(s.log.Named("ws"), s.cfg.Server.AllowedOrigins)
	channels := []alert.Channel{
		alert.NewLogChannel(s.log.Named("alert")),
		s.wsChannel,
	}

	dcfg := alert.DefaultDispatcherConfig()
	dcfg.QueueSize = al.QueueSize
	dcfg.ChannelTimeout = time.Duration(al.ChannelTimeoutSeconds) * time.Second
	dcfg.MessageTTL = time.Duration(al.MessageTTLMinutes) * time.Minute
	dcfg.QuietHours = alert.QuietHours{
		Enabled: al.QuietHoursEnabled,
		Start:   al.QuietHoursStart,
		End:     al.QuietHoursEnd,
	}

	s.rules = alert.DefaultRules()

	dispatcher, err := alert.NewDispatcher(dcfg, s.rules, channels, s.log.Named("dispatch"), s.auditor, s.store)
	if err != nil {
		return err
	}
	s.dispatcher = dispatcher
	return nil
}

// Start begins serving HTTP. It returns immediately; the listener runs
// on its own goroutine until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info("starting deskwatch-ai server", zap.Int("port", s.cfg.Server.Port))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", zap.Error(err))
		}
	}()

	if s.cache != nil {
		s.wg.Add(1)
		go s.evictCacheLoop()
	}

	return nil
}

// evictCacheLoop sweeps expired report cache entries once a minute
// until shutdown.
func (s *Server) evictCacheLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.cache.EvictExpired(); n > 0 {
				s.log.Debug("evicted expired cache entries", zap.Int("count", n))
			}
		}
	}
}

// Stop shuts the listener down, drains the alert queue, and closes the
// store and audit log. Safe to call once after a successful Start.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("stopping deskwatch-ai server")

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("error shutting down http server", zap.Error(err))
		}
	}

	if s.dispatcher != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.dispatcher.Shutdown(drainCtx); err != nil {
			s.log.Warn("alert dispatcher drain incomplete", zap.Error(err))
		}
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.cancel()
	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		s.log.Warn("error closing store", zap.Error(err))
	}
	if err := s.auditor.Close(); err != nil {
		s.log.Warn("error closing audit logger", zap.Error(err))
	}

	s.log.Info("deskwatch-ai server stopped")
	return nil
}

// Wait blocks until the server context is cancelled.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether the server is accepting requests.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// registerHandlers mounts the HTTP surface.
func (s *Server) registerHandlers(mux *http.ServeMux) {
	// Probes and metrics
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	// Sample ingestion and retrieval. Writes go through the rate limiter.
	mux.HandleFunc("/api/v1/samples", s.limited(s.handleSamples))

	// Analysis endpoints
	mux.HandleFunc("/api/v1/analysis/", s.handleAnalysis)

	// Alert pipeline
	if s.dispatcher != nil {
		mux.HandleFunc("/api/v1/events", s.limited(s.handleEventIngest))
		mux.HandleFunc("/api/v1/alerts/rules", s.handleAlertRules)
		mux.HandleFunc("/api/v1/alerts/statistics", s.handleAlertStatistics)
		mux.HandleFunc("/api/v1/alerts/acknowledge", s.handleAlertAcknowledge)
		mux.HandleFunc("/api/v1/alerts/history", s.handleAlertHistory)
		mux.HandleFunc("/api/v1/alerts/summary", s.handleAlertSummary)
		mux.HandleFunc("/ws/alerts", s.wsChannel.Handler)
	}
}

// limited applies the ingestion rate limiter when one is configured.
func (s *Server) limited(h http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Wrap(h)
}

// handleHealth reports process liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

// handleReady reports readiness: the process is running and the store
// answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	ready := running
	if ready {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		ready = s.store.Ping(pingCtx) == nil
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

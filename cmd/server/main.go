package main

// Package main is the entry point for the deskwatch-ai server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the SQLite sample and alert store
//   - Start the analytics engine behind the REST analysis endpoints
//   - Start the alert dispatcher, rule matching, and WebSocket alert feed
//   - Serve health, readiness, and Prometheus metrics endpoints
//   - Shut down gracefully, draining the alert queue and flushing logs
//
// Data Flow:
//   1. Capture clients POST behavior samples and stream events
//   2. Samples land in SQLite; events run through the alert rules
//   3. Analysis endpoints compute reports over stored sample windows
//   4. Matched alerts fan out to the log and WebSocket channels

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/deskwatch/deskwatch-ai/internal/config"
	"github.com/deskwatch/deskwatch-ai/internal/server"
)

func main() {
	ctx := context.Background()

	configPath := os.Getenv("DESKWATCH_CONFIG")
	var (
		mgr config.ConfigManager
		err error
	)
	if configPath != "" {
		mgr, err = config.NewConfigManager(configPath)
	} else {
		mgr, err = config.NewConfigManagerWithDefaults()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create config manager: %v\n", err)
		os.Exit(1)
	}

	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get(ctx)

	log, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		log.Fatal("failed to create server", zap.Error(err))
	}

	if err := srv.Start(); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("received shutdown signal")

	if err := srv.Stop(); err != nil {
		log.Error("error stopping server", zap.Error(err))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// buildLogger constructs the application logger from the logging config.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Logging.Format == "text" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

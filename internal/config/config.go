// Package config provides configuration management for deskwatch-ai.
//
// Configuration sources (priority order, high to low):
//  1. Environment variables (DESKWATCH_* prefix)
//  2. YAML config file (default: /etc/deskwatch/config.yaml)
//  3. Built-in defaults
//
// Invalid configuration fails at startup, never at analysis time.
package config

import "context"

// Config contains all configuration fields.
type Config struct {
	// Server configuration
	Server struct {
		Port int
		// AllowedOrigins is a list of origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
		// IngestRateLimitPerMinute caps per-client writes to the sample and
		// event endpoints. Zero disables rate limiting.
		IngestRateLimitPerMinute int
	}

	// Database configuration
	Database struct {
		SQLitePath string
	}

	// Analytics engine parameters
	Analytics struct {
		SamplingIntervalSeconds int
		FocusHighThreshold      float64
		FocusLowThreshold       float64
		SessionFocusThreshold   float64
		MinimumSessionMinutes   float64
		DefaultClusterK         int

		// Anomaly detection: sustained-violation durations in seconds.
		PostureThreshold        float64
		PostureSustainedSeconds int
		FocusFloorThreshold     float64
		FocusSustainedSeconds   int
		SmartphoneRateMax       float64
		AbsenceSustainedSeconds int
	}

	// Alert pipeline configuration
	Alerts struct {
		Enabled               bool
		QueueSize             int
		ChannelTimeoutSeconds int
		MessageTTLMinutes     int
		QuietHoursEnabled     bool
		QuietHoursStart       string
		QuietHoursEnd         string
	}

	// Cache configuration
	Cache struct {
		Enabled    bool
		TTLSeconds int
		MaxEntries int
	}

	// Logging configuration
	Logging struct {
		Level        string
		Format       string
		AppLogPath   string
		AuditLogPath string
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/deskwatch/config.yaml")
}

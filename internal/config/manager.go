package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("DESKWATCH")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// Config file is optional; defaults + env vars suffice without it.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper, use defaults
		} else if os.IsNotExist(err) {
			// File not found via os, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Server defaults
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.ingest_rate_limit_per_minute", defaults.Server.IngestRateLimitPerMinute)

	// Database defaults
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	// Analytics defaults
	m.viper.SetDefault("analytics.sampling_interval_seconds", defaults.Analytics.SamplingIntervalSeconds)
	m.viper.SetDefault("analytics.focus_high_threshold", defaults.Analytics.FocusHighThreshold)
	m.viper.SetDefault("analytics.focus_low_threshold", defaults.Analytics.FocusLowThreshold)
	m.viper.SetDefault("analytics.session_focus_threshold", defaults.Analytics.SessionFocusThreshold)
	m.viper.SetDefault("analytics.minimum_session_minutes", defaults.Analytics.MinimumSessionMinutes)
	m.viper.SetDefault("analytics.default_cluster_k", defaults.Analytics.DefaultClusterK)
	m.viper.SetDefault("analytics.posture_threshold", defaults.Analytics.PostureThreshold)
	m.viper.SetDefault("analytics.posture_sustained_seconds", defaults.Analytics.PostureSustainedSeconds)
	m.viper.SetDefault("analytics.focus_floor_threshold", defaults.Analytics.FocusFloorThreshold)
	m.viper.SetDefault("analytics.focus_sustained_seconds", defaults.Analytics.FocusSustainedSeconds)
	m.viper.SetDefault("analytics.smartphone_rate_max", defaults.Analytics.SmartphoneRateMax)
	m.viper.SetDefault("analytics.absence_sustained_seconds", defaults.Analytics.AbsenceSustainedSeconds)

	// Alert defaults
	m.viper.SetDefault("alerts.enabled", defaults.Alerts.Enabled)
	m.viper.SetDefault("alerts.queue_size", defaults.Alerts.QueueSize)
	m.viper.SetDefault("alerts.channel_timeout_seconds", defaults.Alerts.ChannelTimeoutSeconds)
	m.viper.SetDefault("alerts.message_ttl_minutes", defaults.Alerts.MessageTTLMinutes)
	m.viper.SetDefault("alerts.quiet_hours_enabled", defaults.Alerts.QuietHoursEnabled)
	m.viper.SetDefault("alerts.quiet_hours_start", defaults.Alerts.QuietHoursStart)
	m.viper.SetDefault("alerts.quiet_hours_end", defaults.Alerts.QuietHoursEnd)

	// Cache defaults
	m.viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	m.viper.SetDefault("cache.ttl_seconds", defaults.Cache.TTLSeconds)
	m.viper.SetDefault("cache.max_entries", defaults.Cache.MaxEntries)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Server
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.IngestRateLimitPerMinute = m.viper.GetInt("server.ingest_rate_limit_per_minute")

	// Database
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	// Analytics
	cfg.Analytics.SamplingIntervalSeconds = m.viper.GetInt("analytics.sampling_interval_seconds")
	cfg.Analytics.FocusHighThreshold = m.viper.GetFloat64("analytics.focus_high_threshold")
	cfg.Analytics.FocusLowThreshold = m.viper.GetFloat64("analytics.focus_low_threshold")
	cfg.Analytics.SessionFocusThreshold = m.viper.GetFloat64("analytics.session_focus_threshold")
	cfg.Analytics.MinimumSessionMinutes = m.viper.GetFloat64("analytics.minimum_session_minutes")
	cfg.Analytics.DefaultClusterK = m.viper.GetInt("analytics.default_cluster_k")
	cfg.Analytics.PostureThreshold = m.viper.GetFloat64("analytics.posture_threshold")
	cfg.Analytics.PostureSustainedSeconds = m.viper.GetInt("analytics.posture_sustained_seconds")
	cfg.Analytics.FocusFloorThreshold = m.viper.GetFloat64("analytics.focus_floor_threshold")
	cfg.Analytics.FocusSustainedSeconds = m.viper.GetInt("analytics.focus_sustained_seconds")
	cfg.Analytics.SmartphoneRateMax = m.viper.GetFloat64("analytics.smartphone_rate_max")
	cfg.Analytics.AbsenceSustainedSeconds = m.viper.GetInt("analytics.absence_sustained_seconds")

	// Alerts
	cfg.Alerts.Enabled = m.viper.GetBool("alerts.enabled")
	cfg.Alerts.QueueSize = m.viper.GetInt("alerts.queue_size")
	cfg.Alerts.ChannelTimeoutSeconds = m.viper.GetInt("alerts.channel_timeout_seconds")
	cfg.Alerts.MessageTTLMinutes = m.viper.GetInt("alerts.message_ttl_minutes")
	cfg.Alerts.QuietHoursEnabled = m.viper.GetBool("alerts.quiet_hours_enabled")
	cfg.Alerts.QuietHoursStart = m.viper.GetString("alerts.quiet_hours_start")
	cfg.Alerts.QuietHoursEnd = m.viper.GetString("alerts.quiet_hours_end")

	// Cache
	cfg.Cache.Enabled = m.viper.GetBool("cache.enabled")
	cfg.Cache.TTLSeconds = m.viper.GetInt("cache.ttl_seconds")
	cfg.Cache.MaxEntries = m.viper.GetInt("cache.max_entries")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for settings
// that bypass the viper key mapping.
func (m *viperConfigManager) applyEnvOverrides() {
	// Database path from environment
	if path := os.Getenv("DESKWATCH_DB_PATH"); path != "" {
		m.config.Database.SQLitePath = path
	}

	// Port from environment, only override if explicitly set
	if portEnv := os.Getenv("DESKWATCH_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("port")
	}
}

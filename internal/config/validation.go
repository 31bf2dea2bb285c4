package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	if c.Server.IngestRateLimitPerMinute < 0 {
		errs = append(errs, &ValidationError{
			Field:   "server.ingest_rate_limit_per_minute",
			Message: fmt.Sprintf("must not be negative, got %d", c.Server.IngestRateLimitPerMinute),
		})
	}

	// Validate database configuration
	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	// Validate analytics configuration
	if c.Analytics.SamplingIntervalSeconds < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analytics.sampling_interval_seconds",
			Message: fmt.Sprintf("sampling interval must be at least 1 second, got %d", c.Analytics.SamplingIntervalSeconds),
		})
	}

	if c.Analytics.FocusHighThreshold <= c.Analytics.FocusLowThreshold {
		errs = append(errs, &ValidationError{
			Field:   "analytics.focus_high_threshold",
			Message: fmt.Sprintf("high threshold (%.2f) must exceed low threshold (%.2f)",
				c.Analytics.FocusHighThreshold, c.Analytics.FocusLowThreshold),
		})
	}

	for field, v := range map[string]float64{
		"analytics.focus_high_threshold":    c.Analytics.FocusHighThreshold,
		"analytics.focus_low_threshold":     c.Analytics.FocusLowThreshold,
		"analytics.session_focus_threshold": c.Analytics.SessionFocusThreshold,
		"analytics.posture_threshold":       c.Analytics.PostureThreshold,
		"analytics.focus_floor_threshold":   c.Analytics.FocusFloorThreshold,
		"analytics.smartphone_rate_max":     c.Analytics.SmartphoneRateMax,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("threshold must be in [0, 1], got %.2f", v),
			})
		}
	}

	if c.Analytics.MinimumSessionMinutes < 0 {
		errs = append(errs, &ValidationError{
			Field:   "analytics.minimum_session_minutes",
			Message: fmt.Sprintf("must not be negative, got %.1f", c.Analytics.MinimumSessionMinutes),
		})
	}

	if c.Analytics.DefaultClusterK < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analytics.default_cluster_k",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Analytics.DefaultClusterK),
		})
	}

	for field, v := range map[string]int{
		"analytics.posture_sustained_seconds": c.Analytics.PostureSustainedSeconds,
		"analytics.focus_sustained_seconds":   c.Analytics.FocusSustainedSeconds,
		"analytics.absence_sustained_seconds": c.Analytics.AbsenceSustainedSeconds,
	} {
		if v < 1 {
			errs = append(errs, &ValidationError{
				Field:   field,
				Message: fmt.Sprintf("sustained duration must be at least 1 second, got %d", v),
			})
		}
	}

	// Validate alert configuration
	if c.Alerts.Enabled {
		if c.Alerts.QueueSize < 1 {
			errs = append(errs, &ValidationError{
				Field:   "alerts.queue_size",
				Message: fmt.Sprintf("must be positive, got %d", c.Alerts.QueueSize),
			})
		}
		if c.Alerts.ChannelTimeoutSeconds < 1 {
			errs = append(errs, &ValidationError{
				Field:   "alerts.channel_timeout_seconds",
				Message: fmt.Sprintf("must be positive, got %d", c.Alerts.ChannelTimeoutSeconds),
			})
		}
		if c.Alerts.QuietHoursEnabled {
			if _, err := time.Parse("15:04", c.Alerts.QuietHoursStart); err != nil {
				errs = append(errs, &ValidationError{
					Field:   "alerts.quiet_hours_start",
					Message: fmt.Sprintf("expected HH:MM, got %q", c.Alerts.QuietHoursStart),
				})
			}
			if _, err := time.Parse("15:04", c.Alerts.QuietHoursEnd); err != nil {
				errs = append(errs, &ValidationError{
					Field:   "alerts.quiet_hours_end",
					Message: fmt.Sprintf("expected HH:MM, got %q", c.Alerts.QuietHoursEnd),
				})
			}
		}
	}

	// Validate cache configuration
	if c.Cache.Enabled {
		if c.Cache.TTLSeconds < 1 {
			errs = append(errs, &ValidationError{
				Field:   "cache.ttl_seconds",
				Message: fmt.Sprintf("must be positive, got %d", c.Cache.TTLSeconds),
			})
		}
		if c.Cache.MaxEntries < 1 {
			errs = append(errs, &ValidationError{
				Field:   "cache.max_entries",
				Message: fmt.Sprintf("must be positive, got %d", c.Cache.MaxEntries),
			})
		}
	}

	// Validate logging configuration
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("must be one of debug, info, warn, error; got %q", c.Logging.Level),
		})
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be json or text, got %q", c.Logging.Format),
		})
	}

	return errs
}

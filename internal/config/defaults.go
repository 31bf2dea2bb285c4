package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 8084
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.IngestRateLimitPerMinute = 600

	// Database defaults
	cfg.Database.SQLitePath = "/var/lib/deskwatch/deskwatch-ai.db"

	// Analytics defaults
	cfg.Analytics.SamplingIntervalSeconds = 5
	cfg.Analytics.FocusHighThreshold = 0.8
	cfg.Analytics.FocusLowThreshold = 0.4
	cfg.Analytics.SessionFocusThreshold = 0.6
	cfg.Analytics.MinimumSessionMinutes = 5
	cfg.Analytics.DefaultClusterK = 5

	cfg.Analytics.PostureThreshold = 0.3
	cfg.Analytics.PostureSustainedSeconds = 30
	cfg.Analytics.FocusFloorThreshold = 0.1
	cfg.Analytics.FocusSustainedSeconds = 50
	cfg.Analytics.SmartphoneRateMax = 0.2
	cfg.Analytics.AbsenceSustainedSeconds = 100

	// Alert defaults
	cfg.Alerts.Enabled = true
	cfg.Alerts.QueueSize = 256
	cfg.Alerts.ChannelTimeoutSeconds = 5
	cfg.Alerts.MessageTTLMinutes = 30
	cfg.Alerts.QuietHoursEnabled = false
	cfg.Alerts.QuietHoursStart = "22:00"
	cfg.Alerts.QuietHoursEnd = "07:00"

	// Cache defaults
	cfg.Cache.Enabled = true
	cfg.Cache.TTLSeconds = 300
	cfg.Cache.MaxEntries = 256

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.AppLogPath = "logs/app.log"
	cfg.Logging.AuditLogPath = "logs/audit.log"

	return cfg
}

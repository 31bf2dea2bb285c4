// Package store is the SQLite persistence layer: the behavior sample log
// the engine analyzes, and the alert history the dispatcher records.
package store

import (
	"context"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/alert"
	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Store is the persistence interface. The SQLite implementation is the
// only one shipped; tests use it with an in-memory database.
type Store interface {
	// AppendSample writes one behavior sample.
	AppendSample(ctx context.Context, s *models.Sample) error

	// AppendSamples writes a batch of samples in one transaction.
	AppendSamples(ctx context.Context, samples []models.Sample) error

	// GetRecentSamples returns samples from the trailing window in
	// ascending timestamp order. Empty userID matches all users.
	GetRecentSamples(ctx context.Context, window time.Duration, userID string) ([]models.Sample, error)

	// GetSamplesBetween returns samples in [from, to] ascending.
	GetSamplesBetween(ctx context.Context, from, to time.Time, userID string) ([]models.Sample, error)

	// RecordAlert appends one alert lifecycle row. Satisfies
	// alert.Recorder.
	RecordAlert(ctx context.Context, msg *alert.Message) error

	// QueryAlerts returns alert history rows, newest first.
	QueryAlerts(ctx context.Context, q AlertQuery) ([]*AlertRecord, error)

	// AlertSummary counts alert rows by status in [from, to].
	AlertSummary(ctx context.Context, from, to time.Time) (map[string]int, error)

	Ping(ctx context.Context) error
	Close() error
}

// AlertRecord is one persisted alert history row.
type AlertRecord struct {
	ID               int64     `json:"id"`
	AlertID          string    `json:"alert_id"`
	RuleID           string    `json:"rule_id"`
	Level            string    `json:"level"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	UrgencyScore     float64   `json:"urgency_score"`
	Status           string    `json:"status"`
	SuppressedReason string    `json:"suppressed_reason,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// AlertQuery filters QueryAlerts results. Zero values match everything.
type AlertQuery struct {
	RuleID string
	Status string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

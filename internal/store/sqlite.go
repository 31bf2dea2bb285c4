package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/deskwatch/deskwatch-ai/internal/alert"
	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Schema version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS behavior_samples (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id             TEXT NOT NULL DEFAULT '',
    timestamp           DATETIME NOT NULL,
    focus_score         REAL,
    posture_score       REAL,
    presence            TEXT NOT NULL DEFAULT 'unknown',
    smartphone_detected INTEGER NOT NULL DEFAULT 0,
    screen_time         REAL NOT NULL DEFAULT 0.0
);
CREATE INDEX IF NOT EXISTS idx_samples_timestamp ON behavior_samples(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_samples_user ON behavior_samples(user_id, timestamp DESC);
`,
	},
	// Migration 2: alert history for the dispatch pipeline audit trail.
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS alert_history (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    alert_id          TEXT NOT NULL,
    rule_id           TEXT NOT NULL DEFAULT '',
    level             TEXT NOT NULL DEFAULT 'info',
    title             TEXT NOT NULL DEFAULT '',
    message           TEXT NOT NULL DEFAULT '',
    urgency_score     REAL NOT NULL DEFAULT 0.0,
    status            TEXT NOT NULL DEFAULT 'pending',
    suppressed_reason TEXT NOT NULL DEFAULT '',
    timestamp         DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_history_timestamp ON alert_history(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_alert_history_rule ON alert_history(rule_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_alert_history_status ON alert_history(status);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqliteStore) AppendSample(ctx context.Context, sample *models.Sample) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO behavior_samples(user_id, timestamp, focus_score, posture_score, presence, smartphone_detected, screen_time)
        VALUES(?,?,?,?,?,?,?)
    `,
		sample.UserID, sample.Timestamp.UTC(), scoreArg(sample.FocusScore), scoreArg(sample.PostureScore),
		string(sample.Presence), boolArg(sample.SmartphoneDetected), sample.ScreenTime,
	)
	return err
}

func (s *sqliteStore) AppendSamples(ctx context.Context, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO behavior_samples(user_id, timestamp, focus_score, posture_score, presence, smartphone_detected, screen_time)
        VALUES(?,?,?,?,?,?,?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range samples {
		sample := &samples[i]
		_, err := stmt.ExecContext(ctx,
			sample.UserID, sample.Timestamp.UTC(), scoreArg(sample.FocusScore), scoreArg(sample.PostureScore),
			string(sample.Presence), boolArg(sample.SmartphoneDetected), sample.ScreenTime,
		)
		if err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) GetRecentSamples(ctx context.Context, window time.Duration, userID string) ([]models.Sample, error) {
	cutoff := time.Now().UTC().Add(-window)
	return s.GetSamplesBetween(ctx, cutoff, time.Time{}, userID)
}

func (s *sqliteStore) GetSamplesBetween(ctx context.Context, from, to time.Time, userID string) ([]models.Sample, error) {
	query := `SELECT user_id, timestamp, focus_score, posture_score, presence, smartphone_detected, screen_time
        FROM behavior_samples WHERE 1=1`
	args := []any{}

	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, to.UTC())
	}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Sample
	for rows.Next() {
		var sample models.Sample
		var ts string
		var focus, posture sql.NullFloat64
		var presence string
		var smartphone int
		if err := rows.Scan(&sample.UserID, &ts, &focus, &posture, &presence, &smartphone, &sample.ScreenTime); err != nil {
			return nil, err
		}
		sample.Timestamp, _ = parseTime(ts)
		if focus.Valid {
			sample.FocusScore = models.Float(focus.Float64)
		}
		if posture.Valid {
			sample.PostureScore = models.Float(posture.Float64)
		}
		sample.Presence = models.Presence(presence)
		sample.SmartphoneDetected = smartphone != 0
		result = append(result, sample)
	}
	return result, rows.Err()
}

func (s *sqliteStore) RecordAlert(ctx context.Context, msg *alert.Message) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO alert_history(alert_id, rule_id, level, title, message, urgency_score, status, suppressed_reason, timestamp)
        VALUES(?,?,?,?,?,?,?,?,?)
    `,
		msg.AlertID, msg.RuleID, string(msg.Level), msg.Title, msg.Message,
		msg.UrgencyScore, string(msg.Status), msg.SuppressedReason, msg.Timestamp.UTC(),
	)
	return err
}

func (s *sqliteStore) QueryAlerts(ctx context.Context, q AlertQuery) ([]*AlertRecord, error) {
	query := `SELECT id, alert_id, rule_id, level, title, message, urgency_score, status, suppressed_reason, timestamp
        FROM alert_history WHERE 1=1`
	args := []any{}

	if q.RuleID != "" {
		query += ` AND rule_id = ?`
		args = append(args, q.RuleID)
	}
	if q.Status != "" {
		query += ` AND status = ?`
		args = append(args, q.Status)
	}
	if !q.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY timestamp DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*AlertRecord
	for rows.Next() {
		rec := &AlertRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.AlertID, &rec.RuleID, &rec.Level, &rec.Title,
			&rec.Message, &rec.UrgencyScore, &rec.Status, &rec.SuppressedReason, &ts); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) AlertSummary(ctx context.Context, from, to time.Time) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM alert_history WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, to.UTC())
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, rows.Err()
}

func scoreArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}

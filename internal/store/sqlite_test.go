package store

import (
	"context"
	"testing"
	"time"

	"github.com/deskwatch/deskwatch-ai/internal/alert"
	"github.com/deskwatch/deskwatch-ai/internal/models"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndQuerySamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	samples := []models.Sample{
		{Timestamp: base, FocusScore: models.Float(0.8), PostureScore: models.Float(0.7), Presence: models.PresencePresent, ScreenTime: 1.0, UserID: "u1"},
		{Timestamp: base.Add(5 * time.Second), FocusScore: models.Float(0.6), Presence: models.PresencePresent, SmartphoneDetected: true, UserID: "u1"},
		{Timestamp: base.Add(10 * time.Second), Presence: models.PresenceAbsent, UserID: "u2"},
	}

	if err := s.AppendSamples(ctx, samples); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	got, err := s.GetSamplesBetween(ctx, base, base.Add(time.Minute), "")
	if err != nil {
		t.Fatalf("GetSamplesBetween: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(got))
	}

	// Ascending order
	if !got[0].Timestamp.Equal(base) {
		t.Errorf("expected first sample at %v, got %v", base, got[0].Timestamp)
	}

	// Nullable scores round-trip
	if got[0].FocusScore == nil || *got[0].FocusScore != 0.8 {
		t.Errorf("expected focus 0.8, got %v", got[0].FocusScore)
	}
	if got[1].PostureScore != nil {
		t.Errorf("expected nil posture, got %v", *got[1].PostureScore)
	}
	if !got[1].SmartphoneDetected {
		t.Error("expected smartphone_detected true")
	}
	if got[2].Presence != models.PresenceAbsent {
		t.Errorf("expected absent presence, got %s", got[2].Presence)
	}
}

func TestQuerySamplesByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	samples := []models.Sample{
		{Timestamp: base, Presence: models.PresencePresent, UserID: "alice"},
		{Timestamp: base.Add(time.Second), Presence: models.PresencePresent, UserID: "bob"},
		{Timestamp: base.Add(2 * time.Second), Presence: models.PresencePresent, UserID: "alice"},
	}
	if err := s.AppendSamples(ctx, samples); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	got, err := s.GetSamplesBetween(ctx, base, base.Add(time.Minute), "alice")
	if err != nil {
		t.Fatalf("GetSamplesBetween: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 samples for alice, got %d", len(got))
	}
	for _, sample := range got {
		if sample.UserID != "alice" {
			t.Errorf("expected user alice, got %s", sample.UserID)
		}
	}
}

func TestAppendSingleSample(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sample := &models.Sample{
		Timestamp:  time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		FocusScore: models.Float(0.5),
		Presence:   models.PresencePresent,
	}
	if err := s.AppendSample(ctx, sample); err != nil {
		t.Fatalf("AppendSample: %v", err)
	}

	got, err := s.GetSamplesBetween(ctx, time.Time{}, time.Time{}, "")
	if err != nil {
		t.Fatalf("GetSamplesBetween: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
}

func TestAlertHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	events := []*alert.Message{
		{AlertID: "a-1", RuleID: "low-focus", Level: alert.LevelAlert, Title: "Focus drop", Message: "m1", UrgencyScore: 0.7, Status: alert.StatusSent, Timestamp: base},
		{AlertID: "a-2", RuleID: "low-focus", Level: alert.LevelAlert, Title: "Focus drop", Message: "m1", UrgencyScore: 0.7, Status: alert.StatusSuppressed, SuppressedReason: "duplicate_content", Timestamp: base.Add(time.Minute)},
		{AlertID: "a-3", RuleID: "poor-posture", Level: alert.LevelWarning, Title: "Posture check", Message: "m2", UrgencyScore: 0.5, Status: alert.StatusSent, Timestamp: base.Add(2 * time.Minute)},
	}
	for _, msg := range events {
		if err := s.RecordAlert(ctx, msg); err != nil {
			t.Fatalf("RecordAlert: %v", err)
		}
	}

	// Newest first
	got, err := s.QueryAlerts(ctx, AlertQuery{})
	if err != nil {
		t.Fatalf("QueryAlerts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 alert rows, got %d", len(got))
	}
	if got[0].AlertID != "a-3" {
		t.Errorf("expected newest alert a-3 first, got %s", got[0].AlertID)
	}

	// Filter by rule
	got, err = s.QueryAlerts(ctx, AlertQuery{RuleID: "low-focus"})
	if err != nil {
		t.Fatalf("QueryAlerts by rule: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 low-focus rows, got %d", len(got))
	}

	// Filter by status
	got, err = s.QueryAlerts(ctx, AlertQuery{Status: string(alert.StatusSuppressed)})
	if err != nil {
		t.Fatalf("QueryAlerts by status: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 suppressed row, got %d", len(got))
	}
	if got[0].SuppressedReason != "duplicate_content" {
		t.Errorf("expected duplicate_content reason, got %q", got[0].SuppressedReason)
	}

	summary, err := s.AlertSummary(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("AlertSummary: %v", err)
	}
	if summary["sent"] != 2 || summary["suppressed"] != 1 {
		t.Errorf("unexpected summary: %v", summary)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	// Running migrate again must be a no-op.
	if err := s.(*sqliteStore).migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	_ = s.Close()
}

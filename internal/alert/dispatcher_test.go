package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// stubChannel records delivered messages and optionally fails.
type stubChannel struct {
	name string
	err  error

	mu        sync.Mutex
	delivered []*Message
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Deliver(_ context.Context, msg *Message) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	c.delivered = append(c.delivered, msg)
	c.mu.Unlock()
	return nil
}

func (c *stubChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

// stubRecorder captures persisted alert records.
type stubRecorder struct {
	mu      sync.Mutex
	records []Message
}

func (r *stubRecorder) RecordAlert(_ context.Context, msg *Message) error {
	r.mu.Lock()
	r.records = append(r.records, *msg)
	r.mu.Unlock()
	return nil
}

func (r *stubRecorder) byStatus(status Status) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.records {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out
}

func testRule() Rule {
	return Rule{
		RuleID:     "low-focus",
		Name:       "Extremely low focus",
		EventType:  "extreme_low_focus",
		Level:      LevelAlert,
		Conditions: map[string]string{"focus_score": "< 0.1"},
		Channels:   []string{"stub"},
		MaxPerHour: 3,
		Enabled:    true,
		Title:      "Focus drop",
		Message:    "Focus has collapsed.",
	}
}

func testEvent(ts time.Time) StreamEvent {
	return StreamEvent{
		EventType:  "extreme_low_focus",
		Timestamp:  ts,
		Fields:     map[string]float64{"focus_score": 0.05},
		Confidence: 0.9,
	}
}

func newTestDispatcher(t *testing.T, cfg DispatcherConfig, rules []Rule, channels []Channel, rec Recorder) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(cfg, rules, channels, nil, nil, rec)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestDispatcherDeliversMatchingEvent(t *testing.T) {
	ch := &stubChannel{name: "stub"}
	rec := &stubRecorder{}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{testRule()}, []Channel{ch}, rec)

	if err := d.Submit(testEvent(time.Now().UTC())); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(t, d)

	if got := ch.count(); got != 1 {
		t.Fatalf("delivered %d alerts, want 1", got)
	}
	stats := d.GetAlertStatistics()
	if stats.Generated != 1 || stats.Sent != 1 || stats.Suppressed != 0 {
		t.Errorf("stats = %+v, want 1 generated, 1 sent", stats)
	}
	sent := rec.byStatus(StatusSent)
	if len(sent) != 1 {
		t.Fatalf("recorded %d sent alerts, want 1", len(sent))
	}
	if sent[0].RuleID != "low-focus" {
		t.Errorf("recorded rule = %s, want low-focus", sent[0].RuleID)
	}
}

func TestDispatcherIgnoresNonMatchingEvent(t *testing.T) {
	ch := &stubChannel{name: "stub"}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{testRule()}, []Channel{ch}, nil)

	ev := testEvent(time.Now().UTC())
	ev.Fields["focus_score"] = 0.5
	if err := d.Submit(ev); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	drain(t, d)

	if got := ch.count(); got != 0 {
		t.Errorf("delivered %d alerts, want 0", got)
	}
	if stats := d.GetAlertStatistics(); stats.Generated != 0 {
		t.Errorf("generated = %d, want 0", stats.Generated)
	}
}

// Five matching events against a max-3-per-hour rule: the first three
// pass, the last two hit the frequency cap. Events are spaced past the
// duplicate window so only the cap is exercised.
func TestDispatcherFrequencyCap(t *testing.T) {
	ch := &stubChannel{name: "stub"}
	rec := &stubRecorder{}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{testRule()}, []Channel{ch}, rec)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ev := testEvent(base.Add(time.Duration(i) * 12 * time.Minute))
		if err := d.Submit(ev); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	drain(t, d)

	if got := ch.count(); got != 3 {
		t.Errorf("delivered %d alerts, want 3", got)
	}
	stats := d.GetAlertStatistics()
	if stats.Generated != 5 || stats.Sent != 3 || stats.Suppressed != 2 {
		t.Errorf("stats = %+v, want 5 generated, 3 sent, 2 suppressed", stats)
	}
	for _, m := range rec.byStatus(StatusSuppressed) {
		if m.SuppressedReason != ReasonFrequencyCap {
			t.Errorf("suppressed reason = %s, want %s", m.SuppressedReason, ReasonFrequencyCap)
		}
	}
}

// The cap counts a trailing window, not a calendar hour: once the
// oldest delivery ages out, new alerts pass again.
func TestDispatcherFrequencyCapSlides(t *testing.T) {
	ch := &stubChannel{name: "stub"}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{testRule()}, []Channel{ch}, nil)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	stamps := []time.Duration{
		0, 12 * time.Minute, 24 * time.Minute, // fill the cap
		36 * time.Minute,             // capped
		time.Hour + 13*time.Minute,   // first delivery aged out
	}
	for i, off := range stamps {
		if err := d.Submit(testEvent(base.Add(off))); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	drain(t, d)

	if got := ch.count(); got != 4 {
		t.Errorf("delivered %d alerts, want 4", got)
	}
}

func TestDispatcherDuplicateSuppression(t *testing.T) {
	rule := testRule()
	rule.MaxPerHour = 10
	ch := &stubChannel{name: "stub"}
	rec := &stubRecorder{}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{rule}, []Channel{ch}, rec)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d.Submit(testEvent(base))
	d.Submit(testEvent(base.Add(time.Minute)))
	drain(t, d)

	if got := ch.count(); got != 1 {
		t.Errorf("delivered %d alerts, want 1", got)
	}
	suppressed := rec.byStatus(StatusSuppressed)
	if len(suppressed) != 1 || suppressed[0].SuppressedReason != ReasonDuplicate {
		t.Errorf("suppressed = %+v, want one %s", suppressed, ReasonDuplicate)
	}
}

func TestDispatcherQuietHours(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	cfg.QuietHours = QuietHours{Enabled: true, Start: "22:00", End: "07:00"}
	ch := &stubChannel{name: "stub"}
	rec := &stubRecorder{}
	d := newTestDispatcher(t, cfg, []Rule{testRule()}, []Channel{ch}, rec)

	// 23:30 falls inside the overnight window; 12:00 does not.
	d.Submit(testEvent(time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)))
	d.Submit(testEvent(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))
	drain(t, d)

	if got := ch.count(); got != 1 {
		t.Errorf("delivered %d alerts, want 1", got)
	}
	suppressed := rec.byStatus(StatusSuppressed)
	if len(suppressed) != 1 || suppressed[0].SuppressedReason != ReasonQuietHours {
		t.Errorf("suppressed = %+v, want one %s", suppressed, ReasonQuietHours)
	}
}

func TestDispatcherCooldown(t *testing.T) {
	rule := testRule()
	rule.MaxPerHour = 0
	rule.CooldownMinutes = 10
	cfg := DefaultDispatcherConfig()
	// Shrink the duplicate window so only the cooldown gate can fire.
	cfg.DuplicateWindow = time.Millisecond

	ch := &stubChannel{name: "stub"}
	rec := &stubRecorder{}
	d := newTestDispatcher(t, cfg, []Rule{rule}, []Channel{ch}, rec)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d.Submit(testEvent(base))
	d.Submit(testEvent(base.Add(5 * time.Minute)))  // inside cooldown
	d.Submit(testEvent(base.Add(20 * time.Minute))) // past cooldown
	drain(t, d)

	if got := ch.count(); got != 2 {
		t.Errorf("delivered %d alerts, want 2", got)
	}
	suppressed := rec.byStatus(StatusSuppressed)
	if len(suppressed) != 1 || suppressed[0].SuppressedReason != ReasonCooldown {
		t.Errorf("suppressed = %+v, want one %s", suppressed, ReasonCooldown)
	}
}

func TestDispatcherAnyChannelSuccess(t *testing.T) {
	rule := testRule()
	rule.Channels = []string{"failing", "working"}
	failing := &stubChannel{name: "failing", err: errors.New("boom")}
	working := &stubChannel{name: "working"}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{rule}, []Channel{failing, working}, nil)

	d.Submit(testEvent(time.Now().UTC()))
	drain(t, d)

	stats := d.GetAlertStatistics()
	if stats.Sent != 1 || stats.DeliveryFailures != 0 {
		t.Errorf("stats = %+v, want 1 sent with no delivery failure", stats)
	}
	if working.count() != 1 {
		t.Errorf("working channel delivered %d, want 1", working.count())
	}
}

// All channels failing still consumes the alert's frequency budget; the
// next identical event inside the duplicate window is suppressed, not
// retried.
func TestDispatcherAllChannelsFail(t *testing.T) {
	rule := testRule()
	rule.Channels = []string{"failing"}
	failing := &stubChannel{name: "failing", err: errors.New("boom")}
	rec := &stubRecorder{}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{rule}, []Channel{failing}, rec)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d.Submit(testEvent(base))
	d.Submit(testEvent(base.Add(time.Minute)))
	drain(t, d)

	stats := d.GetAlertStatistics()
	if stats.Sent != 0 {
		t.Errorf("sent = %d, want 0", stats.Sent)
	}
	if stats.DeliveryFailures != 1 {
		t.Errorf("delivery failures = %d, want 1", stats.DeliveryFailures)
	}
	if stats.Suppressed != 1 {
		t.Errorf("suppressed = %d, want 1 (duplicate of the failed attempt)", stats.Suppressed)
	}
}

func TestDispatcherUnknownChannel(t *testing.T) {
	rule := testRule()
	rule.Channels = []string{"missing"}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{rule}, nil, nil)

	d.Submit(testEvent(time.Now().UTC()))
	drain(t, d)

	if stats := d.GetAlertStatistics(); stats.DeliveryFailures != 1 {
		t.Errorf("delivery failures = %d, want 1", stats.DeliveryFailures)
	}
}

func TestDispatcherAcknowledge(t *testing.T) {
	ch := &stubChannel{name: "stub"}
	rec := &stubRecorder{}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{testRule()}, []Channel{ch}, rec)

	d.Submit(testEvent(time.Now().UTC()))
	drain(t, d)

	ch.mu.Lock()
	alertID := ch.delivered[0].AlertID
	ch.mu.Unlock()

	if err := d.Acknowledge(alertID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if acked := rec.byStatus(StatusAcknowledged); len(acked) != 1 {
		t.Errorf("recorded %d acknowledged alerts, want 1", len(acked))
	}

	// A second acknowledge of the same alert is rejected.
	if err := d.Acknowledge(alertID); err == nil {
		t.Error("expected error acknowledging a finalized alert")
	}
	if err := d.Acknowledge("no-such-alert"); err == nil {
		t.Error("expected error for unknown alert")
	}
}

// blockedRecorder stalls the acknowledged-history write until released,
// simulating a slow disk.
type blockedRecorder struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockedRecorder) RecordAlert(_ context.Context, msg *Message) error {
	if msg.Status != StatusAcknowledged {
		return nil
	}
	close(r.started)
	<-r.release
	return nil
}

// A slow history write during Acknowledge must not block statistics reads.
func TestAcknowledgeDoesNotHoldLockDuringRecord(t *testing.T) {
	ch := &stubChannel{name: "stub"}
	rec := &blockedRecorder{started: make(chan struct{}), release: make(chan struct{})}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{testRule()}, []Channel{ch}, rec)

	d.Submit(testEvent(time.Now().UTC()))
	drain(t, d)

	ch.mu.Lock()
	alertID := ch.delivered[0].AlertID
	ch.mu.Unlock()

	ackDone := make(chan error, 1)
	go func() { ackDone <- d.Acknowledge(alertID) }()
	<-rec.started

	statsDone := make(chan Statistics, 1)
	go func() { statsDone <- d.GetAlertStatistics() }()
	select {
	case stats := <-statsDone:
		if stats.Sent != 1 {
			t.Errorf("stats.Sent = %d, want 1", stats.Sent)
		}
	case <-time.After(time.Second):
		t.Fatal("GetAlertStatistics stalled behind an in-flight history write")
	}

	close(rec.release)
	if err := <-ackDone; err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
}

func TestDispatcherExpiry(t *testing.T) {
	ch := &stubChannel{name: "stub"}
	rec := &stubRecorder{}
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{testRule()}, []Channel{ch}, rec)

	sentAt := time.Now().UTC().Add(-time.Hour)
	d.Submit(testEvent(sentAt))
	drain(t, d)

	d.expireStale(time.Now().UTC())

	expired := rec.byStatus(StatusExpired)
	if len(expired) != 1 {
		t.Fatalf("recorded %d expired alerts, want 1", len(expired))
	}
	if err := d.Acknowledge(expired[0].AlertID); err == nil {
		t.Error("expected error acknowledging an expired alert")
	}
}

func TestDispatcherSubmitAfterShutdown(t *testing.T) {
	d := newTestDispatcher(t, DefaultDispatcherConfig(), []Rule{testRule()}, nil, nil)
	drain(t, d)

	if err := d.Submit(testEvent(time.Now().UTC())); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Submit after shutdown = %v, want ErrShuttingDown", err)
	}
	// Repeated shutdown is a no-op.
	if err := d.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestQuietHoursContains(t *testing.T) {
	overnight := QuietHours{Enabled: true, Start: "22:00", End: "07:00"}
	daytime := QuietHours{Enabled: true, Start: "09:00", End: "17:00"}
	disabled := QuietHours{Enabled: false, Start: "00:00", End: "23:59"}

	tests := []struct {
		name string
		q    QuietHours
		hour int
		min  int
		want bool
	}{
		{"overnight late evening", overnight, 23, 0, true},
		{"overnight early morning", overnight, 6, 59, true},
		{"overnight start boundary", overnight, 22, 0, true},
		{"overnight end boundary excluded", overnight, 7, 0, false},
		{"overnight midday", overnight, 12, 0, false},
		{"daytime inside", daytime, 12, 0, true},
		{"daytime before", daytime, 8, 59, false},
		{"daytime end boundary excluded", daytime, 17, 0, false},
		{"disabled never matches", disabled, 12, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := time.Date(2026, 3, 1, tt.hour, tt.min, 0, 0, time.UTC)
			if got := tt.q.Contains(ts); got != tt.want {
				t.Errorf("Contains(%02d:%02d) = %v, want %v", tt.hour, tt.min, got, tt.want)
			}
		})
	}
}

func TestDispatcherConfigValidate(t *testing.T) {
	if err := DefaultDispatcherConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	bad := DefaultDispatcherConfig()
	bad.QueueSize = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero queue size")
	}

	bad = DefaultDispatcherConfig()
	bad.QuietHours = QuietHours{Enabled: true, Start: "25:00", End: "07:00"}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for bad quiet hours clock")
	}
}

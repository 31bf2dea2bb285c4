package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/deskwatch/deskwatch-ai/internal/audit"
	"github.com/deskwatch/deskwatch-ai/internal/metrics"
)

// Suppression reasons recorded on rejected alerts.
const (
	ReasonFrequencyCap = "frequency_cap"
	ReasonDuplicate    = "duplicate_content"
	ReasonQuietHours   = "quiet_hours"
	ReasonCooldown     = "cooldown"
)

// ErrQueueFull is returned by Submit when the event queue is saturated.
var ErrQueueFull = errors.New("alert queue full")

// ErrShuttingDown is returned by Submit after Shutdown has begun.
var ErrShuttingDown = errors.New("alert dispatcher shutting down")

// Statistics is the cumulative alert pipeline counter set.
type Statistics struct {
	Generated        int64 `json:"generated"`
	Sent             int64 `json:"sent"`
	Suppressed       int64 `json:"suppressed"`
	DeliveryFailures int64 `json:"delivery_failures"`
}

// Recorder persists alert history rows. internal/store provides the
// SQLite implementation.
type Recorder interface {
	RecordAlert(ctx context.Context, msg *Message) error
}

// QuietHours suppresses alerts inside a daily window. Overnight spans
// (Start after End, e.g. 22:00 to 07:00) are supported.
type QuietHours struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Start   string `json:"start" mapstructure:"start"`
	End     string `json:"end" mapstructure:"end"`
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err1 := parseClock(q.Start)
	end, err2 := parseClock(q.End)
	if err1 != nil || err2 != nil {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Overnight span wraps midnight.
	return minute >= start || minute < end
}

func parseClock(s string) (int, error) {
	tm, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("bad clock time %q: %w", s, err)
	}
	return tm.Hour()*60 + tm.Minute(), nil
}

// DispatcherConfig tunes queue depth, delivery timeouts, and the
// suppression windows.
type DispatcherConfig struct {
	QueueSize       int           `mapstructure:"queue_size"`
	ChannelTimeout  time.Duration `mapstructure:"channel_timeout"`
	FrequencyWindow time.Duration `mapstructure:"frequency_window"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
	MessageTTL      time.Duration `mapstructure:"message_ttl"`
	QuietHours      QuietHours    `mapstructure:"quiet_hours"`
}

// DefaultDispatcherConfig returns the standard pipeline tuning.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:       256,
		ChannelTimeout:  5 * time.Second,
		FrequencyWindow: time.Hour,
		DuplicateWindow: 10 * time.Minute,
		MessageTTL:      30 * time.Minute,
	}
}

// Validate rejects unusable dispatcher settings.
func (c DispatcherConfig) Validate() error {
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive, got %d", c.QueueSize)
	}
	if c.ChannelTimeout <= 0 {
		return fmt.Errorf("channel_timeout must be positive, got %s", c.ChannelTimeout)
	}
	if c.FrequencyWindow <= 0 || c.DuplicateWindow <= 0 {
		return fmt.Errorf("suppression windows must be positive")
	}
	if c.QuietHours.Enabled {
		if _, err := parseClock(c.QuietHours.Start); err != nil {
			return fmt.Errorf("quiet_hours.start: %w", err)
		}
		if _, err := parseClock(c.QuietHours.End); err != nil {
			return fmt.Errorf("quiet_hours.end: %w", err)
		}
	}
	return nil
}

// Dispatcher is the single-consumer alert pipeline. Submit enqueues
// stream events; one goroutine dequeues, matches rules, evaluates
// suppression, and fans delivery out to channels. The suppression
// history is touched only by that goroutine.
type Dispatcher struct {
	cfg      DispatcherConfig
	log      *zap.Logger
	auditor  audit.Logger
	recorder Recorder
	rules    []Rule
	channels map[string]Channel

	queue chan StreamEvent
	wg    sync.WaitGroup

	// Owned by the consumer goroutine.
	ruleHistory map[string][]time.Time
	dupHistory  map[string]time.Time

	mu      sync.Mutex
	closed  bool
	stats   Statistics
	tracked map[string]*Message
}

// NewDispatcher builds and starts the pipeline. auditor and recorder may
// be nil; delivery then leaves no persistent trail beyond the metrics.
func NewDispatcher(cfg DispatcherConfig, rules []Rule, channels []Channel, log *zap.Logger, auditor audit.Logger, recorder Recorder) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dispatcher config: %w", err)
	}
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("alert catalog: %w", err)
		}
	}
	if log == nil {
		log = zap.NewNop()
	}

	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}

	d := &Dispatcher{
		cfg:         cfg,
		log:         log,
		auditor:     auditor,
		recorder:    recorder,
		rules:       rules,
		channels:    byName,
		queue:       make(chan StreamEvent, cfg.QueueSize),
		ruleHistory: map[string][]time.Time{},
		dupHistory:  map[string]time.Time{},
		tracked:     map[string]*Message{},
	}
	d.wg.Add(1)
	go d.run()
	return d, nil
}

// Submit enqueues a stream event without blocking. A saturated queue or
// a dispatcher past Shutdown returns an error instead of waiting.
func (d *Dispatcher) Submit(ev StreamEvent) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrShuttingDown
	}

	select {
	case d.queue <- ev:
		return nil
	default:
		d.log.Warn("alert queue saturated, dropping event", zap.String("event_type", ev.EventType))
		return ErrQueueFull
	}
}

// Shutdown stops accepting events, drains the queued events, and waits
// for the consumer to finish or the context to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.queue)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetAlertStatistics returns a snapshot of the pipeline counters.
func (d *Dispatcher) GetAlertStatistics() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Acknowledge marks a sent alert as acknowledged by the user. The store
// write happens outside the lock so a slow disk cannot stall the consumer
// or statistics reads.
func (d *Dispatcher) Acknowledge(alertID string) error {
	d.mu.Lock()
	msg, ok := d.tracked[alertID]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("unknown or already finalized alert %s", alertID)
	}
	if err := msg.Transition(StatusAcknowledged); err != nil {
		d.mu.Unlock()
		return err
	}
	delete(d.tracked, alertID)
	d.mu.Unlock()

	d.record(msg)
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	expiry := time.NewTicker(time.Minute)
	defer expiry.Stop()

	for {
		select {
		case ev, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(ev)
		case <-expiry.C:
			d.expireStale(time.Now().UTC())
		}
	}
}

// process evaluates one stream event against the catalog. Runs only on
// the consumer goroutine.
func (d *Dispatcher) process(ev StreamEvent) {
	for _, rule := range d.rules {
		if !rule.Matches(ev) {
			continue
		}
		msg := newMessage(rule, ev)

		d.mu.Lock()
		d.stats.Generated++
		d.mu.Unlock()
		metrics.AlertsGenerated.Inc()
		if d.auditor != nil {
			d.auditor.LogAlertGenerated(context.Background(), msg.AlertID, msg.RuleID, string(msg.Level))
		}

		if reason := d.suppressionReason(rule, msg); reason != "" {
			d.suppress(msg, reason)
			continue
		}

		// Passing alerts count toward the trailing-hour frequency cap and
		// the duplicate window regardless of delivery outcome.
		d.ruleHistory[rule.RuleID] = append(d.ruleHistory[rule.RuleID], msg.Timestamp)
		d.dupHistory[msg.contentHash()] = msg.Timestamp

		if d.deliver(msg) {
			if err := msg.Transition(StatusSent); err != nil {
				d.log.Error("alert transition failed", zap.Error(err))
				continue
			}
			d.mu.Lock()
			d.stats.Sent++
			d.tracked[msg.AlertID] = msg
			d.mu.Unlock()
			metrics.AlertsSent.Inc()
			if d.auditor != nil {
				d.auditor.LogAlertSent(context.Background(), msg.AlertID, msg.Channels)
			}
		} else {
			d.mu.Lock()
			d.stats.DeliveryFailures++
			d.mu.Unlock()
			if d.auditor != nil {
				d.auditor.LogAlertDeliveryFailed(context.Background(), msg.AlertID, msg.Channels)
			}
		}
		d.record(msg)
	}
}

// suppressionReason evaluates the suppression gates in order: frequency
// cap, duplicate content, quiet hours, then the rule cooldown. Runs only
// on the consumer goroutine.
func (d *Dispatcher) suppressionReason(rule Rule, msg *Message) string {
	now := msg.Timestamp

	history := pruneBefore(d.ruleHistory[rule.RuleID], now.Add(-d.cfg.FrequencyWindow))
	d.ruleHistory[rule.RuleID] = history
	if rule.MaxPerHour > 0 && len(history) >= rule.MaxPerHour {
		return ReasonFrequencyCap
	}

	if sentAt, ok := d.dupHistory[msg.contentHash()]; ok && now.Sub(sentAt) < d.cfg.DuplicateWindow {
		return ReasonDuplicate
	}

	if d.cfg.QuietHours.Contains(now) {
		return ReasonQuietHours
	}

	if rule.CooldownMinutes > 0 && len(history) > 0 {
		last := history[len(history)-1]
		if now.Sub(last) < time.Duration(rule.CooldownMinutes)*time.Minute {
			return ReasonCooldown
		}
	}
	return ""
}

func (d *Dispatcher) suppress(msg *Message, reason string) {
	if err := msg.Transition(StatusSuppressed); err != nil {
		d.log.Error("alert transition failed", zap.Error(err))
		return
	}
	msg.SuppressedReason = reason

	d.mu.Lock()
	d.stats.Suppressed++
	d.mu.Unlock()
	metrics.AlertsSuppressed.WithLabelValues(reason).Inc()
	if d.auditor != nil {
		d.auditor.LogAlertSuppressed(context.Background(), msg.AlertID, msg.RuleID, reason)
	}
	d.record(msg)
}

// deliver fans the alert out to all its channels concurrently, each with
// an independent timeout. Any single success makes the alert sent.
func (d *Dispatcher) deliver(msg *Message) bool {
	var successes atomic.Int64
	var wg sync.WaitGroup

	for _, name := range msg.Channels {
		ch, ok := d.channels[name]
		if !ok {
			d.log.Warn("alert references unknown channel", zap.String("channel", name), zap.String("alert_id", msg.AlertID))
			metrics.AlertDeliveryFailures.WithLabelValues(name).Inc()
			continue
		}
		wg.Add(1)
		go func(name string, ch Channel) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ChannelTimeout)
			defer cancel()
			if err := ch.Deliver(ctx, msg); err != nil {
				d.log.Debug("channel delivery failed",
					zap.String("channel", name),
					zap.String("alert_id", msg.AlertID),
					zap.Error(err))
				metrics.AlertDeliveryFailures.WithLabelValues(name).Inc()
				return
			}
			successes.Add(1)
		}(name, ch)
	}
	wg.Wait()
	return successes.Load() > 0
}

// expireStale retires sent alerts that were never acknowledged within
// the message TTL.
func (d *Dispatcher) expireStale(now time.Time) {
	if d.cfg.MessageTTL <= 0 {
		return
	}
	d.mu.Lock()
	var expired []*Message
	for id, msg := range d.tracked {
		if now.Sub(msg.Timestamp) > d.cfg.MessageTTL {
			if err := msg.Transition(StatusExpired); err == nil {
				expired = append(expired, msg)
			}
			delete(d.tracked, id)
		}
	}
	d.mu.Unlock()

	for _, msg := range expired {
		d.record(msg)
	}
}

func (d *Dispatcher) record(msg *Message) {
	if d.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.recorder.RecordAlert(ctx, msg); err != nil {
		d.log.Warn("failed to record alert history", zap.String("alert_id", msg.AlertID), zap.Error(err))
	}
}

func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

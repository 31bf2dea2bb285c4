package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deskwatch/deskwatch-ai/internal/models"
)

// Status is the lifecycle state of an alert message. Transitions are
// one-directional: pending moves to sent or suppressed; sent moves to
// acknowledged or expired. Suppressed, acknowledged, and expired are
// terminal.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusSuppressed   Status = "suppressed"
	StatusAcknowledged Status = "acknowledged"
	StatusExpired      Status = "expired"
)

// validTransitions encodes the one-directional state machine.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusSent, StatusSuppressed},
	StatusSent:    {StatusAcknowledged, StatusExpired},
}

// Message is one alert instance created for a matching rule and event.
type Message struct {
	AlertID          string    `json:"alert_id"`
	RuleID           string    `json:"rule_id"`
	Level            Level     `json:"level"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Timestamp        time.Time `json:"timestamp"`
	UrgencyScore     float64   `json:"urgency_score"`
	Channels         []string  `json:"channels"`
	Status           Status    `json:"status"`
	SuppressedReason string    `json:"suppressed_reason,omitempty"`
}

// newMessage builds a pending alert for the rule and event.
func newMessage(rule Rule, ev StreamEvent) *Message {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Message{
		AlertID:      uuid.NewString(),
		RuleID:       rule.RuleID,
		Level:        rule.Level,
		Title:        rule.Title,
		Message:      rule.Message,
		Timestamp:    ts,
		UrgencyScore: urgencyScore(rule.Level, ev.Confidence, ev.Urgent),
		Channels:     append([]string(nil), rule.Channels...),
		Status:       StatusPending,
	}
}

// Transition moves the message to the next status, rejecting any move
// the state machine does not allow.
func (m *Message) Transition(next Status) error {
	for _, allowed := range validTransitions[m.Status] {
		if next == allowed {
			m.Status = next
			return nil
		}
	}
	return fmt.Errorf("invalid alert transition %s -> %s for %s", m.Status, next, m.AlertID)
}

// contentHash identifies duplicate alert content for suppression within
// the duplicate window.
func (m *Message) contentHash() string {
	sum := sha256.Sum256([]byte(m.RuleID + "\x00" + m.Title + "\x00" + m.Message))
	return hex.EncodeToString(sum[:])
}

// urgencyScore composes level weight, event confidence, and a fixed
// context term, boosted for urgent events and capped at 1.
func urgencyScore(level Level, confidence float64, urgent bool) float64 {
	score := levelWeight(level)*0.5 + models.Clamp01(confidence)*0.3 + 0.5*0.2
	if urgent {
		score *= 1.5
	}
	if score > 1 {
		return 1
	}
	return score
}

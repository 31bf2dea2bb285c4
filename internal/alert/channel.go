package alert

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Channel delivers an alert to one outbound medium. Deliver must honor
// the context deadline; a slow channel only costs its own timeout.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, msg *Message) error
}

// LogChannel writes alerts to the structured log. It always succeeds,
// which makes it a sensible baseline channel for the any-success policy.
type LogChannel struct {
	log *zap.Logger
}

func NewLogChannel(log *zap.Logger) *LogChannel {
	return &LogChannel{log: log}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(_ context.Context, msg *Message) error {
	c.log.Warn("alert",
		zap.String("alert_id", msg.AlertID),
		zap.String("rule_id", msg.RuleID),
		zap.String("level", string(msg.Level)),
		zap.String("title", msg.Title),
		zap.Float64("urgency", msg.UrgencyScore),
	)
	return nil
}

// WebSocketChannel pushes alerts as JSON frames to every connected
// client. Clients attach through the Handler upgrade endpoint.
type WebSocketChannel struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewWebSocketChannel builds a channel that accepts upgrades from the
// given origins. An empty list allows same-origin requests only; "*"
// allows any origin.
func NewWebSocketChannel(log *zap.Logger, allowedOrigins []string) *WebSocketChannel {
	return &WebSocketChannel{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		conns: map[*websocket.Conn]struct{}{},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		if wildcard {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin header.
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		_, ok := set[strings.ToLower(strings.TrimSuffix(origin, "/"))]
		return ok
	}
}

func (c *WebSocketChannel) Name() string { return "websocket" }

// Handler upgrades an HTTP request and registers the client for alert
// frames. The read loop exists only to detect client close.
func (c *WebSocketChannel) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.conns[conn] = struct{}{}
	c.mu.Unlock()

	go func() {
		defer c.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (c *WebSocketChannel) drop(conn *websocket.Conn) {
	c.mu.Lock()
	delete(c.conns, conn)
	c.mu.Unlock()
	conn.Close()
}

// Deliver writes the alert to every connected client. Delivery fails
// only when no client received the frame.
func (c *WebSocketChannel) Deliver(ctx context.Context, msg *Message) error {
	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	c.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(c.conns))
	for conn := range c.conns {
		targets = append(targets, conn)
	}
	c.mu.Unlock()

	if len(targets) == 0 {
		return fmt.Errorf("no websocket clients connected")
	}

	delivered := 0
	for _, conn := range targets {
		conn.SetWriteDeadline(deadline)
		if err := conn.WriteJSON(msg); err != nil {
			c.log.Debug("websocket write failed, dropping client", zap.Error(err))
			c.drop(conn)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("all websocket writes failed")
	}
	return nil
}

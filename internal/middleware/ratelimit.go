// Package middleware holds HTTP middleware for the deskwatch server.
package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter enforces a per-client token bucket on write endpoints.
// Capture clients emit samples continuously, so the bucket refills
// proportionally to elapsed time rather than on fixed windows.
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perMinute int

	done chan struct{}
	once sync.Once
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter allows perMinute requests per client address per
// minute, with bursts up to the full minute budget.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		buckets:   make(map[string]*bucket),
		perMinute: perMinute,
		done:      make(chan struct{}),
	}
	go rl.evictStale()
	return rl
}

// Wrap returns a handler that rejects over-budget clients with 429
// before invoking next.
func (rl *RateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// clientKey identifies the client by host, ignoring the ephemeral port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{tokens: float64(rl.perMinute) - 1, lastRefill: now}
		return true
	}

	refill := now.Sub(b.lastRefill).Minutes() * float64(rl.perMinute)
	if refill > 0 {
		b.tokens += refill
		if b.tokens > float64(rl.perMinute) {
			b.tokens = float64(rl.perMinute)
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// evictStale drops buckets for clients idle longer than ten minutes.
func (rl *RateLimiter) evictStale() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, b := range rl.buckets {
				if now.Sub(b.lastRefill) > 10*time.Minute {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop terminates the eviction goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

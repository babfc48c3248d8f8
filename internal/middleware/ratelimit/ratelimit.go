// Package ratelimit limits requests per client over a fixed one-minute
// window.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const window = time.Minute

type Config struct {
	RequestsPerMinute int
	StaleAfter        time.Duration
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 120, StaleAfter: 10 * time.Minute}
}

type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   int
	stale   time.Duration
	now     func() time.Time
	limited atomic.Int64
}

type client struct {
	windowStart time.Time
	lastSeen    time.Time
	count       int
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	return &Limiter{
		clients: make(map[string]*client),
		limit:   cfg.RequestsPerMinute,
		stale:   cfg.StaleAfter,
		now:     time.Now,
	}
}

// Allow records a request from key and reports whether it fits the limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok || now.Sub(c.windowStart) >= window {
		l.clients[key] = &client{windowStart: now, lastSeen: now, count: 1}
		return true
	}
	c.lastSeen = now
	c.count++
	if c.count > l.limit {
		l.limited.Add(1)
		return false
	}
	return true
}

// Prune drops clients not seen for the stale period.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.stale)
	n := 0
	for k, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, k)
			n++
		}
	}
	return n
}

// Run prunes periodically until ctx ends.
func (l *Limiter) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Prune()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Limited returns how many requests were refused.
func (l *Limiter) Limited() int64 {
	return l.limited.Load()
}

// Middleware refuses requests over the limit with 429. onLimit writes the
// response when set.
func (l *Limiter) Middleware(extractKey func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(extractKey(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				if onLimit != nil {
					onLimit(w, r)
					return
				}
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

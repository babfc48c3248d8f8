// Package cache provides a generic TTL cache and a sweeper that expires
// entries of registered caches in the background.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is the read-through contract used by the CRM client.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

// Sweepable caches can drop their expired entries.
type Sweepable interface {
	CleanExpired() int
}

// Sweeper periodically cleans registered caches until its context ends.
type Sweeper struct {
	mu     sync.Mutex
	caches []Sweepable
	logger *slog.Logger
	done   chan struct{}
}

func NewSweeper(logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{logger: logger}
}

func (s *Sweeper) Register(c Sweepable) {
	s.mu.Lock()
	s.caches = append(s.caches, c)
	s.mu.Unlock()
}

// Sweep cleans every registered cache once and returns the number of
// entries removed.
func (s *Sweeper) Sweep() int {
	s.mu.Lock()
	caches := append([]Sweepable(nil), s.caches...)
	s.mu.Unlock()

	removed := 0
	for _, c := range caches {
		removed += c.CleanExpired()
	}
	return removed
}

// Start runs Sweep every interval in a goroutine. Wait blocks until it
// has returned after ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					s.logger.Debug("Expired cache entries removed", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Sweeper) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// Package ratelimit implements a per-client sliding-window request limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Defaults.
const (
	DefaultLimit  = 30
	DefaultWindow = time.Minute
)

// Limiter allows at most limit requests per client within a trailing window.
// It is safe for concurrent use.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	requests map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter. Non-positive arguments fall back to the defaults.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		requests: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether clientID may make a request now and records it if
// so. Every call first prunes expired entries for all clients. A denied
// request is not recorded.
func (l *Limiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	if len(l.requests[clientID]) >= l.limit {
		return false
	}
	l.requests[clientID] = append(l.requests[clientID], now)
	return true
}

// Remaining returns how many more requests clientID may make in the current
// window.
func (l *Limiter) Remaining(clientID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(l.now())
	return l.limit - len(l.requests[clientID])
}

// Clients returns the number of clients with requests in the window.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// sweep drops request instants older than the window. Callers hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	cutoff := now.Add(-l.window)
	for id, times := range l.requests {
		i := 0
		for i < len(times) && !times[i].After(cutoff) {
			i++
		}
		switch {
		case i == len(times):
			delete(l.requests, id)
		case i > 0:
			l.requests[id] = append(times[:0], times[i:]...)
		}
	}
}

// Package ratelimit provides a sliding window rate limiter used to cap how
// fast a session may publish events.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter implements a sliding window rate limiter. It tracks timestamps per
// key and rejects requests that exceed the limit within the window.
type Limiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration

	// Stale keys are swept every cleanupInterval to bound memory on
	// churning session IDs.
	cleanupInterval time.Duration
	lastCleanup     time.Time
}

// New creates a new rate limiter allowing limit requests per window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		requests:        make(map[string][]time.Time),
		limit:           limit,
		window:          window,
		cleanupInterval: window * 10,
		lastCleanup:     time.Now(),
	}
}

// Allow checks if a request should be allowed for the given key.
// Returns true if the request is allowed, false if rate limited.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.window)

	// Periodic cleanup of stale keys
	if now.Sub(l.lastCleanup) > l.cleanupInterval {
		l.cleanup(windowStart)
		l.lastCleanup = now
	}

	// Filter requests within the window
	times := l.requests[key]
	valid := times[:0]
	for _, t := range times {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	l.requests[key] = valid

	if len(valid) >= l.limit {
		return false
	}

	l.requests[key] = append(l.requests[key], now)
	return true
}

// cleanup removes stale entries from the map.
// Must be called with mu held.
func (l *Limiter) cleanup(windowStart time.Time) {
	for key, times := range l.requests {
		valid := times[:0]
		for _, t := range times {
			if t.After(windowStart) {
				valid = append(valid, t)
			}
		}
		if len(valid) == 0 {
			delete(l.requests, key)
		} else {
			l.requests[key] = valid
		}
	}
}

// Remaining returns the number of requests remaining for the given key.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.window)

	count := 0
	for _, t := range l.requests[key] {
		if t.After(windowStart) {
			count++
		}
	}

	remaining := l.limit - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Forget drops all state for a key. Called when a session closes.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.requests, key)
}

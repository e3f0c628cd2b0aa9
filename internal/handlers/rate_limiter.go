package handlers

import (
	"strings"
	"sync"
	"time"
)

// rateLimiter is a fixed-window limiter keyed by caller.
type rateLimiter interface {
	// Allow records an attempt and reports whether it is within budget. When it is not,
	// retryAfter is the time left in the current window.
	Allow(key string) (ok bool, retryAfter time.Duration)
}

type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]window
}

type window struct {
	count int
	reset time.Time
}

func newSimpleRateLimiter(limit int, span time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || span <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{limit: limit, window: span, clock: clock, windows: make(map[string]window)}
}

func (l *windowLimiter) Allow(key string) (bool, time.Duration) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || !now.Before(current.reset) {
		l.windows[key] = window{count: 1, reset: now.Add(l.window)}
		l.pruneLocked(now)
		return true, 0
	}
	if current.count >= l.limit {
		return false, current.reset.Sub(now)
	}
	current.count++
	l.windows[key] = current
	return true, 0
}

// pruneLocked drops windows that have already reset.
func (l *windowLimiter) pruneLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, key)
		}
	}
}

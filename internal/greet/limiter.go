package greet

import (
	"sync"
	"time"
)

// Fixed-window counter keyed by caller-supplied strings. Entries for idle
// keys are reset lazily on the next hit, so the map stays proportional to
// the set of recently active keys.
type limiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]*windowEntry

	now func() time.Time
}

type windowEntry struct {
	count int
	start time.Time
}

func newLimiter(window time.Duration, max int) *limiter {
	return &limiter{
		window:  window,
		max:     max,
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

// Allow reports whether another event for key fits in the current window.
func (l *limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.start) > l.window {
		l.entries[key] = &windowEntry{count: 1, start: now}
		return true
	}
	entry.count++
	return entry.count <= l.max
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryLimiter is a single-instance fixed-window limiter for local/dev use.
type InMemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*windowEntry
	now     func() time.Time
}

type windowEntry struct {
	start time.Time
	count int
}

func NewInMemoryLimiter(limit int, window time.Duration) *InMemoryLimiter {
	return &InMemoryLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*windowEntry),
		now:     time.Now,
	}
}

func (l *InMemoryLimiter) Allow(_ context.Context, userID string) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	entry, ok := l.entries[userID]
	if !ok || now.Sub(entry.start) >= l.window {
		entry = &windowEntry{start: now}
		l.entries[userID] = entry
	}
	entry.count++

	remaining := l.limit - entry.count
	if remaining < 0 {
		remaining = 0
	}
	return State{
		Allowed:   entry.count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		ResetTime: entry.start.Add(l.window),
	}, nil
}

func (l *InMemoryLimiter) Close() error { return nil }

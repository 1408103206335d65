package service

import (
	"sync"
	"time"
)

// RateLimiter tracks per-connection publish quota in a fixed window.
// Exhausted quota is a soft failure: the target is retried on the next
// cycle without consuming the post's retry budget.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	windowStart time.Time
	count       int
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*rateBucket),
		now:     time.Now,
	}
}

// Allow consumes one unit of quota for the connection, returning false
// when the window is exhausted.
func (l *RateLimiter) Allow(connID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[connID]
	if !ok || now.Sub(b.windowStart) >= l.window {
		b = &rateBucket{windowStart: now}
		l.buckets[connID] = b
	}

	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}

// Remaining reports the quota left in the connection's current window.
func (l *RateLimiter) Remaining(connID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[connID]
	if !ok || l.now().Sub(b.windowStart) >= l.window {
		return l.limit
	}
	if b.count >= l.limit {
		return 0
	}
	return l.limit - b.count
}

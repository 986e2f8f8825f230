package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one admit call. RetryAfter is only meaningful
// when Allowed is false.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is a keyed fixed-window attempt counter. Updates for a given key
// are atomic with respect to concurrent admits for that key.
type Limiter interface {
	Admit(ctx context.Context, key string) (Decision, error)
}

type MemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	clients map[string]*clientBucket
}

type clientBucket struct {
	count     int
	windowEnd time.Time
}

// NewMemoryLimiter keeps all state in-process. Restart clears every window
// and multiple instances do not share counters; deployments that need
// cross-instance limits use the redis backend instead.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		clients: make(map[string]*clientBucket),
	}
}

func (l *MemoryLimiter) Admit(_ context.Context, key string) (Decision, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.clients[key]

	if !ok || now.After(b.windowEnd) {
		l.clients[key] = &clientBucket{
			count:     1,
			windowEnd: now.Add(l.window),
		}

		return Decision{Allowed: true}, nil
	}

	if b.count >= l.limit {
		retryAfter := time.Until(b.windowEnd)

		if retryAfter < 0 {
			retryAfter = 0
		}

		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	b.count++
	return Decision{Allowed: true}, nil
}

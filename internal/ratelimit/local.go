package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxLocalVisitors = 10000

// LocalLimiter keeps one token bucket per key in process memory.
type LocalLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewLocalLimiter(perMinute int) *LocalLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &LocalLimiter{
		visitors: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.visitor(key).Allow(), nil
}

func (l *LocalLimiter) visitor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.visitors[key]
	if !ok {
		// Crude bound on memory; buckets refill quickly anyway.
		if len(l.visitors) >= maxLocalVisitors {
			l.visitors = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.visitors[key] = limiter
	}
	return limiter
}

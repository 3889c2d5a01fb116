package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     int
	lastRefill time.Time
	mu         sync.Mutex
}

// MemoryLimiter is a process-local token bucket per key. Buckets idle for ten
// minutes are dropped by a background sweep.
type MemoryLimiter struct {
	buckets       map[string]*bucket
	mu            sync.RWMutex
	maxTokens     int
	refillRate    time.Duration
	cleanupTicker *time.Ticker
}

func NewMemoryLimiter(requestsPerMinute int) *MemoryLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	l := &MemoryLimiter{
		buckets:       make(map[string]*bucket),
		maxTokens:     requestsPerMinute,
		refillRate:    time.Minute / time.Duration(requestsPerMinute),
		cleanupTicker: time.NewTicker(5 * time.Minute),
	}

	go l.cleanup()

	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	l.mu.RLock()
	b, exists := l.buckets[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		b, exists = l.buckets[key]
		if !exists {
			b = &bucket{
				tokens:     l.maxTokens,
				lastRefill: time.Now(),
			}
			l.buckets[key] = b
		}
		l.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	tokensToAdd := int(now.Sub(b.lastRefill) / l.refillRate)
	if tokensToAdd > 0 {
		b.tokens = min(l.maxTokens, b.tokens+tokensToAdd)
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

func (l *MemoryLimiter) cleanup() {
	for range l.cleanupTicker.C {
		l.mu.Lock()
		now := time.Now()
		for key, b := range l.buckets {
			b.mu.Lock()
			if now.Sub(b.lastRefill) > 10*time.Minute {
				delete(l.buckets, key)
			}
			b.mu.Unlock()
		}
		l.mu.Unlock()
	}
}

func (l *MemoryLimiter) Stop() {
	l.cleanupTicker.Stop()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

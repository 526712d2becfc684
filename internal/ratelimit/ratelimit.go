// Package ratelimit provides a token bucket rate limiter keyed by API client.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client has exhausted its budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config controls the per-client budget.
type Config struct {
	// RequestsPerMinute is the sustained refill rate.
	RequestsPerMinute int
	// BurstSize is the bucket capacity. Defaults to RequestsPerMinute.
	BurstSize int
}

// Limiter applies a token bucket per client key.
// Buckets are created lazily and refilled on access.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	rate  float64 // tokens per second
	burst float64

	now func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// New creates a Limiter from cfg. Returns nil if cfg is nil or the
// rate is non-positive; a nil Limiter allows everything.
func New(cfg *Config) *Limiter {
	if cfg == nil || cfg.RequestsPerMinute <= 0 {
		return nil
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    float64(cfg.RequestsPerMinute) / 60.0,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Allow consumes one token for key. Returns ErrRateLimited when the
// bucket is empty.
func (l *Limiter) Allow(key string) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.lastFill = now
	}

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// Reset clears the bucket for key.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

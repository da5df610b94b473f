// Package ratelimit implements token bucket rate limiting for Spike.
// Two shapes are provided: a per-user limiter guarding inbound HTTP
// requests, and a process-wide governor guarding outbound model calls.
// Thread-safe. No background goroutines — tokens are refilled lazily.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a token bucket is exhausted.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config configures a token bucket.
type Config struct {
	RequestsPerMinute int // Tokens added per minute. 0 = unlimited (Allow always succeeds).
	BurstSize         int // Maximum tokens in bucket. 0 = defaults to RequestsPerMinute.
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// refill adds tokens for the elapsed time, capped at burst.
func (b *bucket) refill(now time.Time, rate, burst float64) {
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastFill = now
}

// Limiter is a per-user token bucket rate limiter.
// Each user gets an independent bucket; one user cannot exhaust another's quota.
type Limiter struct {
	mu    sync.Mutex
	users map[string]*bucket
	rate  float64 // tokens per second
	burst float64 // max bucket capacity
}

// NewLimiter creates a rate limiter with the given configuration.
// If RequestsPerMinute is 0, Allow always succeeds (unlimited).
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1 // safety floor
	}
	return &Limiter{
		users: make(map[string]*bucket),
		rate:  float64(cfg.RequestsPerMinute) / 60.0,
		burst: float64(burst),
	}
}

// Allow checks whether the user has tokens remaining.
// Consumes one token on success. Returns ErrRateLimited if the bucket is empty.
func (l *Limiter) Allow(userID string) error {
	// Unlimited mode.
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.users[userID]
	if !ok {
		// First request: start with a full bucket.
		b = &bucket{tokens: l.burst, lastFill: now}
		l.users[userID] = b
	}

	b.refill(now, l.rate, l.burst)

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// Governor is a single process-wide token bucket guarding all outbound
// model calls. Concurrent dispatches share one ceiling so their retries
// cannot collectively exceed the backend's rate limit.
type Governor struct {
	mu     sync.Mutex
	bucket bucket
	rate   float64
	burst  float64
}

// NewGovernor creates a process-wide governor.
// If RequestsPerMinute is 0, Acquire always succeeds (unlimited).
func NewGovernor(cfg Config) *Governor {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Governor{
		bucket: bucket{tokens: float64(burst), lastFill: time.Now()},
		rate:   float64(cfg.RequestsPerMinute) / 60.0,
		burst:  float64(burst),
	}
}

// Acquire consumes one token, waiting for a refill when the bucket is
// empty. It fails with ErrRateLimited when the wait would outlast the
// context deadline, so callers fail fast instead of blocking past their
// request budget.
func (g *Governor) Acquire(ctx context.Context) error {
	if g.rate <= 0 {
		return nil
	}

	for {
		g.mu.Lock()
		now := time.Now()
		g.bucket.refill(now, g.rate, g.burst)

		if g.bucket.tokens >= 1 {
			g.bucket.tokens--
			g.mu.Unlock()
			return nil
		}

		// Time until one full token accrues.
		wait := time.Duration((1 - g.bucket.tokens) / g.rate * float64(time.Second))
		g.mu.Unlock()

		if deadline, ok := ctx.Deadline(); ok && now.Add(wait).After(deadline) {
			return ErrRateLimited
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

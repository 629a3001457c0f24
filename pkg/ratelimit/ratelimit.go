package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces operations at a fixed interval, incorporating optional jitter.
// The first Wait returns immediately; each following Wait blocks until at least
// one interval has passed since the previous one.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	lim      *rate.Limiter
	jitter   float64 // 0.0 to 1.0
	interval time.Duration
}

// NewLimiter creates a new limiter with the given requests per second (rps)
// and jitter factor. Jitter must be between 0.0 and 1.0.
// If rps is <= 0, the limiter does not block.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return Every(time.Duration(float64(time.Second)/rps), jitter)
}

// Every creates a limiter that enforces a minimum delay d between operations.
// A non-positive d yields a limiter that never blocks.
func Every(d time.Duration, jitter float64) *Limiter {
	if d <= 0 {
		return &Limiter{}
	}
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Limiter{
		lim:      rate.NewLimiter(rate.Every(d), 1),
		jitter:   jitter,
		interval: d,
	}
}

// Interval returns the configured spacing, zero for a non-blocking limiter.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Wait blocks until it is time to perform the next operation, or until the
// context is canceled. It applies jitter to the sleep time if configured.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return ctx.Err()
	}

	if err := l.lim.Wait(ctx); err != nil {
		return err
	}

	if l.jitter > 0 {
		// Only positive jitter can be honoured; the token bucket already
		// enforces the minimum spacing.
		jitterDuration := time.Duration(float64(l.interval) * l.jitter * rand.Float64())
		if jitterDuration > 0 {
			t := time.NewTimer(jitterDuration)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Package ratelimit provides the token-bucket dialer used to throttle
// outbound websocket connection attempts (spec.md §4.5). It does not
// throttle in-band frames, only dials.
package ratelimit

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

const (
	// DefaultTokensPerSecond is the default dial budget.
	DefaultTokensPerSecond = 5
	// DefaultBurst allows an initial burst up to the full budget.
	DefaultBurst = 5
	// DefaultMaxConcurrent caps simultaneous in-flight dial attempts.
	DefaultMaxConcurrent = 5
)

// Limiter is a token-bucket rate limiter over golang.org/x/time/rate,
// additionally bounding the number of concurrent in-flight acquisitions
// with a semaphore, matching spec.md's "5 tokens, refilled to 5 every 1
// second, with 5 maximum concurrent acquisitions".
type Limiter struct {
	rate *rate.Limiter
	sem  chan struct{}
}

// New creates a Limiter refilling tokensPerSecond tokens per second up to
// burst, with at most maxConcurrent acquisitions outstanding at once.
func New(tokensPerSecond float64, burst, maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Limiter{
		rate: rate.NewLimiter(rate.Limit(tokensPerSecond), burst),
		sem:  make(chan struct{}, maxConcurrent),
	}
}

// Default returns a Limiter configured with spec.md's default budget: 5
// tokens refilled every second, 5 maximum concurrent dials.
func Default() *Limiter {
	return New(DefaultTokensPerSecond, DefaultBurst, DefaultMaxConcurrent)
}

// Acquire blocks until a concurrency slot and a rate-limit token are both
// available, or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := l.rate.Wait(ctx); err != nil {
		<-l.sem
		return fmt.Errorf("waiting for dial token: %w", err)
	}
	return nil
}

// Release gives back the concurrency slot acquired by Acquire.
func (l *Limiter) Release() {
	select {
	case <-l.sem:
	default:
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP plumbing shared by the fetch clients:
// a retry combinator with jittered exponential backoff, a process-wide
// request throttle, and response status classification.
package httputil

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

const (
	defaultMaxRetries = 10
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 16 * time.Second
)

// Policy describes the retry schedule for transient request failures.
// Zero fields fall back to the defaults (10 attempts, 1 s base, 16 s cap).
type Policy struct {
	// MaxRetries is the total number of attempts before giving up.
	MaxRetries int

	// BaseDelay is the starting backoff delay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// sleep is swapped by tests to observe backoff delays without waiting.
var sleep = sleepCtx

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Retry invokes fn until it succeeds, returns a non-transient error, or
// runs out of attempts. Between attempts it sleeps BaseDelay*2^attempt
// plus jitter, capped at MaxDelay. If the context is cancelled during a
// backoff wait, Retry returns ctx.Err(). Exhaustion wraps the last
// attempt's error so callers can still classify it with errors.Is.
func Retry(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	maxRetries := policy.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == maxRetries-1 {
			break
		}
		if err := sleep(ctx, backoffDelay(policy, attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", maxRetries, lastErr)
}

// backoffDelay computes the delay after a failed attempt: BaseDelay
// doubled per attempt, plus uniform jitter of up to one BaseDelay,
// capped at MaxDelay. Scaling the jitter with the base keeps successive
// delays strictly increasing below the cap.
func backoffDelay(policy Policy, attempt int) time.Duration {
	base := policy.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	d := time.Duration(math.Pow(2, float64(attempt)) * float64(base))
	d += time.Duration(rand.Float64() * float64(base))
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces a minimum interval between outbound requests. A
// single Throttle is shared by every client talking to the same API, so
// concurrent fetches serialize their send slots while the request I/O
// itself still overlaps. Each retry attempt acquires a fresh slot.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a Throttle enforcing minInterval between sends.
// A zero or negative interval disables throttling.
func NewThrottle(minInterval time.Duration) *Throttle {
	if minInterval <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the next send slot is available or ctx is done.
// A nil Throttle never blocks.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

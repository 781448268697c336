package client

import (
	"context"
	"math/rand"
	"time"
)

// backoffDelay returns the pause before retry number attempt (1-based):
// base doubling per attempt, capped, with ±25% jitter so concurrent
// callers do not stampede in lockstep.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			d = maxDelay
			break
		}
	}
	if d > maxDelay {
		d = maxDelay
	}

	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1) //nolint:gosec
	d = time.Duration(float64(d) + jitter)
	if d < 0 {
		d = base
	}
	return d
}

// sleepCtx waits out d but wakes immediately on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

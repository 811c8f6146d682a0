// Package poll is the shared bounded-attempt loop used by the mailbox
// poller, the payment-status poller, and the my-ads detector.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetry tells Until the probe has not reached a terminal state yet.
var ErrRetry = errors.New("retry")

// ErrExhausted wraps the final non-terminal outcome once attempts run out.
var ErrExhausted = errors.New("poll attempts exhausted")

// Plan bounds a poll loop: Attempts probes with a fixed Delay between them.
type Plan struct {
	Attempts int
	Delay    time.Duration
}

// Until runs probe up to plan.Attempts times. A nil error is terminal
// success; ErrRetry schedules another attempt; any other error is terminal
// failure. Running out of attempts returns ErrExhausted.
func Until[T any](ctx context.Context, plan Plan, probe func(context.Context) (T, error)) (T, error) {
	var last T
	var lastErr error
	if plan.Attempts <= 0 {
		plan.Attempts = 1
	}
	for attempt := 0; attempt < plan.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return last, ctx.Err()
			case <-time.After(plan.Delay):
			}
		}
		v, err := probe(ctx)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrRetry) {
			return v, err
		}
		last, lastErr = v, err
	}
	return last, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, plan.Attempts, lastErr)
}

// Package retry provides the bounded fixed-delay retry loop used by every
// source fetch. The policy is defined once here so each feed only configures
// its attempt budget and delay.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrExhausted wraps the last attempt's error once the budget is spent.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy is a bounded fixed-delay retry schedule.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Do runs fn up to p.MaxAttempts times, sleeping p.Delay between attempts.
// It stops early when the context is cancelled, returning the context error.
// After the final failure the last error is wrapped in ErrExhausted.
func Do(ctx context.Context, clock clockwork.Clock, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}
		if !sleep(ctx, clock, p.Delay) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

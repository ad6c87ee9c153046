package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"

	"github.com/forumdesk/foyer/internal/models"
)

// WithConflictRetry executes fn, retrying store conflicts with bounded
// backoff (base, 4x base, 16x base — 10/40/160ms at the default base). A
// conflict that survives every attempt surfaces as models.ErrTransientStore;
// a deadline hit surfaces as models.ErrTimeout. Retries do not reset the
// caller's deadline.
func WithConflictRetry(ctx context.Context, attempts uint, base time.Duration, fn func() error) error {
	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fn()
		},
		retry.Attempts(attempts),
		retry.RetryIf(models.IsRetryable),
		retry.DelayType(quadBackoff(base)),
		retry.LastErrorOnly(true),
	)

	switch {
	case errors.Is(err, models.ErrConflict):
		// Both errors stay in the chain: callers match the transient kind
		// while still seeing which conflict was exhausted.
		return fmt.Errorf("%w: %w", models.ErrTransientStore, err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.ErrTimeout
	default:
		return err
	}
}

// quadBackoff quadruples the delay on each retry: base, 4*base, 16*base.
func quadBackoff(base time.Duration) retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		return base << (2 * n)
	}
}

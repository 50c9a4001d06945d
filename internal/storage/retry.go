package storage

import (
	"context"
	"log/slog"
	"time"

	"fintrack/internal/core"
)

const maxRetryDelay = 2 * time.Second

// retryBaseDelay is a variable so tests can shorten the backoff.
var retryBaseDelay = 100 * time.Millisecond

// withRetry runs fn until it succeeds, fails with a non-transient error, or
// attempts are exhausted. Only maintenance paths use it: ledger writes are
// never retried because a replay could apply a balance effect twice.
func withRetry(ctx context.Context, op string, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; ; attempt++ {
		err := mapError(op, fn())
		if err == nil {
			return nil
		}
		if !core.IsTransient(err) || attempt+1 >= attempts {
			return err
		}

		delay := backoff(attempt)
		slog.WarnContext(ctx, "Store busy, retrying",
			"operation", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func backoff(attempt int) time.Duration {
	d := retryBaseDelay << attempt
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// Retry runs fn with the maintenance retry policy. fn must be safe to
// repeat.
func Retry(ctx context.Context, op string, attempts int, fn func() error) error {
	return withRetry(ctx, op, attempts, fn)
}

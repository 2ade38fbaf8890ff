package retry

import (
	"context"
	"fmt"
)

// Do runs fn, retrying according to the Retrier installed in ctx (or
// NoopRetrier if none) until it succeeds, the retrier declines a
// further attempt, the attempt count reaches the retrier's
// MaxAttempts, or ctx is cancelled while waiting between attempts.
func Do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	retrier := FromContextOrNoop(ctx)
	var zero T

	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if !retrier.ShouldRetry(err, attempt) {
			return zero, err
		}

		maxAttempts := retrier.MaxAttempts()
		if maxAttempts > 0 && attempt >= maxAttempts {
			return zero, fmt.Errorf("max retry attempts (%d) reached: %w", maxAttempts, err)
		}

		if waitErr := retrier.Wait(ctx, attempt); waitErr != nil {
			return zero, fmt.Errorf("context cancelled: %w", waitErr)
		}
	}
}

// DoVoid is Do for functions with no result value.
func DoVoid(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

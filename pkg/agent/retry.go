package agent

import (
	"context"
	"time"

	"autodev/pkg/logx"
)

// RetryWithBackoff runs op up to maxAttempts times, sleeping
// baseDelay * 2^attempt between failures. After the final attempt the
// original error is returned unchanged so callers can inspect the real
// cause with errors.Is/As.
func RetryWithBackoff[T any](ctx context.Context, label string, maxAttempts int, baseDelay time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	logger := logx.NewLogger("retry")

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			logger.Debug("%s: attempt %d/%d failed, retrying in %s: %v",
				label, attempt, maxAttempts, delay, lastErr)

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Context errors are never worth retrying.
		if ctx.Err() != nil {
			break
		}
	}

	logger.Warn("%s: all %d attempts failed: %v", label, maxAttempts, lastErr)
	return zero, lastErr
}

package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := RetryWithBackoff(context.Background(), "op", 3, time.Millisecond,
		func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	result, err := RetryWithBackoff(context.Background(), "op", 5, time.Millisecond,
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("transient")
			}
			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustionReturnsOriginalError(t *testing.T) {
	original := errors.New("connection refused")
	calls := 0

	_, err := RetryWithBackoff(context.Background(), "op", 3, time.Millisecond,
		func(context.Context) (string, error) {
			calls++
			return "", original
		})

	require.Error(t, err)
	// The original error must propagate unchanged, not re-wrapped.
	assert.Equal(t, original, err)
	assert.Equal(t, 3, calls)
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := RetryWithBackoff(ctx, "op", 10, 50*time.Millisecond,
		func(context.Context) (string, error) {
			calls++
			cancel()
			return "", errors.New("fail")
		})

	require.Error(t, err)
	// Cancellation stops further attempts.
	assert.Equal(t, 1, calls)
}

func TestRetryZeroAttemptsClampedToOne(t *testing.T) {
	calls := 0
	_, err := RetryWithBackoff(context.Background(), "op", 0, time.Millisecond,
		func(context.Context) (string, error) {
			calls++
			return "", errors.New("fail")
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

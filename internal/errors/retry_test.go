package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{
		MaxRetries:   n,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	// Given
	calls := 0
	fn := func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}

	// When
	err := Retry(context.Background(), fastRetry(5), fn)

	// Then
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("down")

	err := Retry(context.Background(), fastRetry(2), func() error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestRetry_ShouldRetryStopsEarly(t *testing.T) {
	calls := 0
	cfg := fastRetry(5)
	cfg.ShouldRetry = IsRetryable

	err := Retry(context.Background(), cfg, func() error {
		calls++
		return ConfigError("bad dsn", nil)
	})

	assert.True(t, HasCode(err, ErrCodeConfigInvalid))
	assert.Equal(t, 1, calls)
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetry(3), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := RetryWithResult(context.Background(), fastRetry(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("first")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

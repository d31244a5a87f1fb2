package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	t.Run("delays grow by the multiplier", func(t *testing.T) {
		policy := &ExponentialBackoff{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2.0,
			MaxAttempts:     5,
			Jitter:          false,
		}

		assert.Equal(t, 10*time.Millisecond, policy.NextDelay(0))
		assert.Equal(t, 20*time.Millisecond, policy.NextDelay(1))
		assert.Equal(t, 40*time.Millisecond, policy.NextDelay(2))
	})

	t.Run("delay is capped at the max interval", func(t *testing.T) {
		policy := &ExponentialBackoff{
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     200 * time.Millisecond,
			Multiplier:      10.0,
			MaxAttempts:     5,
			Jitter:          false,
		}

		assert.Equal(t, 200*time.Millisecond, policy.NextDelay(3))
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		policy := NewExponentialBackoff(time.Millisecond, time.Second, 2.0, 3)

		retry, _ := policy.ShouldRetry(3, errors.New("boom"))
		assert.False(t, retry)
	})

	t.Run("does not retry non-retryable errors", func(t *testing.T) {
		policy := NewExponentialBackoff(time.Millisecond, time.Second, 2.0, 3)

		retry, _ := policy.ShouldRetry(0, ErrNonRetryable)
		assert.False(t, retry)
	})
}

func TestRetry(t *testing.T) {
	t.Run("returns on first success", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 3), func() error {
			calls++
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until success", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 5), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error when budget exhausted", func(t *testing.T) {
		boom := errors.New("boom")
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 2), func() error {
			return boom
		})

		assert.ErrorIs(t, err, boom)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Retry(ctx, NewFixedDelay(time.Hour, 10), func() error {
			calls++
			cancel()
			return errors.New("transient")
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(ErrNonRetryable))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(errors.New("transient")))
}

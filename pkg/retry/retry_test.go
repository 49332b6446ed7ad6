package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffExecute(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxRetries:      4,
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := policy.Execute(context.Background(), func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		failure := errors.New("always")
		err := policy.Execute(context.Background(), func(ctx context.Context) error {
			calls++
			return failure
		})
		assert.ErrorIs(t, err, failure)
		assert.Equal(t, 4, calls)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := policy.Execute(ctx, func(ctx context.Context) error {
			return errors.New("fail")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExponentialBackoffNextDelay(t *testing.T) {
	policy := NewExponentialBackoff(Config{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
	})

	// Jitter is ±20%, so bound rather than pin.
	d := policy.NextDelay(1)
	assert.GreaterOrEqual(t, d, 80*time.Millisecond)
	assert.LessOrEqual(t, d, 120*time.Millisecond)

	// Capped at MaxInterval before jitter.
	d = policy.NextDelay(10)
	assert.LessOrEqual(t, d, 1200*time.Millisecond)
}

func TestFixedDelay(t *testing.T) {
	policy := NewFixedDelay(time.Millisecond, 2)
	assert.Equal(t, time.Millisecond, policy.NextDelay(5))

	calls := 0
	err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestPermanentStopsRetry(t *testing.T) {
	statusErr := &HTTPStatusError{StatusCode: 404, Message: "not found"}

	t.Run("exponential backoff", func(t *testing.T) {
		policy := NewExponentialBackoff(Config{InitialInterval: time.Millisecond, MaxRetries: 5})
		calls := 0
		err := policy.Execute(context.Background(), func(ctx context.Context) error {
			calls++
			return Permanent(statusErr)
		})
		assert.Equal(t, 1, calls)
		assert.True(t, IsPermanent(err))
		assert.Equal(t, 404, StatusCode(err))
	})

	t.Run("fixed delay", func(t *testing.T) {
		policy := NewFixedDelay(time.Millisecond, 5)
		calls := 0
		err := policy.Execute(context.Background(), func(ctx context.Context) error {
			calls++
			return Permanent(statusErr)
		})
		assert.Equal(t, 1, calls)
		assert.True(t, IsPermanent(err))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Permanent(nil))
	})
}

func TestStatusCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &HTTPStatusError{StatusCode: 429, Message: "too many"})
	assert.Equal(t, 429, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}

func TestStatusBackoff(t *testing.T) {
	tests := []struct {
		status, attempt int
		want            time.Duration
	}{
		{429, 0, 4 * time.Second},
		{429, 1, 8 * time.Second},
		{500, 0, time.Second},
		{503, 2, 4 * time.Second},
		{400, 3, time.Second},
		{0, 0, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusBackoff(tt.status, tt.attempt),
			"status=%d attempt=%d", tt.status, tt.attempt)
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(fmt.Errorf("tier: %w", ErrPermanent)))
	assert.False(t, IsPermanent(errors.New("transient")))
}

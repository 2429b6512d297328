package ethereum

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) retryPolicy {
	return retryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"rate limited", errors.New("429 Too Many Requests"), true},
		{"gateway", errors.New("502 Bad Gateway"), true},
		{"reverted", errors.New("execution reverted"), false},
		{"bad params", errors.New("invalid argument 0: hex string without 0x prefix"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}

func TestBackoff(t *testing.T) {
	p := retryPolicy{
		MaxAttempts:    10,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
	}

	assert.Zero(t, p.backoff(1))

	for i := 0; i < 50; i++ {
		d := p.backoff(2)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)

		capped := p.backoff(9)
		assert.GreaterOrEqual(t, capped, 750*time.Millisecond)
		assert.LessOrEqual(t, capped, 1250*time.Millisecond)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), fastPolicy(3), "eth_blockNumber", func() error {
			calls++
			if calls < 3 {
				return errors.New("503 service unavailable")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), fastPolicy(5), "eth_call", func() error {
			calls++
			return errors.New("execution reverted")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(context.Background(), fastPolicy(2), "eth_getLogs", func() error {
			calls++
			return errors.New("timeout")
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.Contains(t, err.Error(), "after 2 attempts")
	})

	t.Run("honours cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		p := retryPolicy{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour, Multiplier: 2}

		calls := 0
		err := retryWithBackoff(ctx, p, "eth_getLogs", func() error {
			calls++
			cancel()
			return errors.New("timeout")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

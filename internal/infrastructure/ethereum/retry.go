package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/bimakw/equity-ledger/internal/infrastructure/metrics"
)

// retryPolicy controls how RPC calls are retried
type retryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// retryableError reports whether err is worth another attempt
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{
		"timeout",
		"deadline exceeded",
		"429",
		"too many requests",
		"rate limit",
		"502",
		"503",
		"504",
		"bad gateway",
		"service unavailable",
		"connection reset",
		"eof",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}

	return false
}

// backoff returns the wait before attempt (1-based) with +/-25% jitter
func (p retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-2))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}

	jitterRange := d * 0.25
	d += (rand.Float64() * 2 * jitterRange) - jitterRange
	if d < 0 {
		d = 0
	}

	return time.Duration(d)
}

// retryWithBackoff runs fn until it succeeds, fails with a non-retryable
// error, runs out of attempts or ctx is done
func retryWithBackoff(ctx context.Context, p retryPolicy, method string, fn func() error) error {
	start := time.Now()
	defer func() { metrics.RPCMethodDuration(method, time.Since(start)) }()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := p.backoff(attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled during backoff (attempt %d/%d): %w", method, attempt, p.MaxAttempts, ctx.Err())
			}
			metrics.RPCRetryInc(method)
		}

		metrics.RPCMethodInc(method)
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryableError(err) {
			return fmt.Errorf("%s failed: %w", method, err)
		}
	}

	return fmt.Errorf("%s failed after %d attempts in %v: %w", method, p.MaxAttempts, time.Since(start), lastErr)
}

package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy makes 5 attempts, waiting 1s, 2s, 4s, 8s between them.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   1 * time.Second,
	MaxDelay:    60 * time.Second,
}

// ErrTransient marks a failure as worth retrying (transport error, 5xx, ...).
var ErrTransient = errors.New("transient failure")

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err belongs to a retryable failure class:
// attempt timeouts, network errors, or anything wrapped with Transient.
// Context cancellation and an open circuit are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Backoff returns the delay applied before attempt n+1, given that attempt n
// (starting at 0) failed: base * 2^n, capped at maxDelay when set.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(base) * math.Pow(2, float64(attempt))
	if maxDelay > 0 && delay > float64(maxDelay) {
		return maxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Retry calls fn until it succeeds, returns a non-transient error, or
// MaxAttempts is used up. attempt is 0-based. After exhaustion the last failure
// is returned.
func Retry[T any](
	ctx context.Context,
	policy RetryPolicy,
	fn func(ctx context.Context, attempt int) (T, error),
) (T, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	schedule := retry.BackoffFunc(func() (time.Duration, bool) {
		// attempt already counts the one that just failed
		if attempt >= maxAttempts {
			return 0, true
		}
		return Backoff(attempt-1, policy.BaseDelay, policy.MaxDelay), false
	})

	v, err := retry.DoValue(ctx, schedule, func(ctx context.Context) (T, error) {
		v, err := fn(ctx, attempt)
		attempt++
		if err == nil {
			return v, nil
		}
		if IsTransient(err) {
			return v, retry.RetryableError(err)
		}
		return v, err
	})
	if err == nil {
		return v, nil
	}

	var zero T
	if IsTransient(err) && attempt >= maxAttempts {
		return zero, fmt.Errorf("failed after %d attempts: %w", attempt, err)
	}
	return zero, err
}

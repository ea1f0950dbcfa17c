package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptTimeout is returned when a single attempt exceeds its deadline.
var ErrAttemptTimeout = errors.New("attempt timed out")

// WithTimeout runs fn with a hard deadline. It returns ErrAttemptTimeout as soon
// as the deadline passes, whether or not fn honours its context; fn's context is
// cancelled so in-flight work is torn down and its late result is dropped.
// Cancellation of the parent context is returned as the parent's error.
func WithTimeout[T any](
	ctx context.Context,
	timeout time.Duration,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	if timeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	// buffered so an abandoned attempt can still send and exit
	done := make(chan result, 1)

	go func() {
		v, err := fn(attemptCtx)
		done <- result{value: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %v: %v", ErrAttemptTimeout, timeout, r.err)
		}
		return r.value, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %v", ErrAttemptTimeout, timeout)
	}
}

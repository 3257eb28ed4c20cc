// Package retry wraps a fallible operation in a bounded, fixed-delay retry.
package retry

import (
	"context"
	"time"
)

// DefaultAttempts is the bound used for device discovery and per-cycle reads.
const DefaultAttempts = 3

// Policy describes one call site's retry behaviour. The zero value makes
// DefaultAttempts back-to-back attempts.
type Policy struct {
	Attempts int           // <= 0 means DefaultAttempts
	Delay    time.Duration // wait between a failure and the next attempt

	// Retryable reports whether err is worth another attempt. Nil retries
	// every error.
	Retryable func(err error) bool

	// OnRetry is called after a failed attempt that will be retried.
	// attempt is 1-based.
	OnRetry func(attempt int, err error)
}

func (p Policy) attempts() int {
	if p.Attempts <= 0 {
		return DefaultAttempts
	}
	return p.Attempts
}

// Do runs op until it succeeds or the attempts are exhausted, returning nil
// or the last error observed. A cancelled ctx stops further attempts and its
// error is returned.
func (p Policy) Do(ctx context.Context, op func() error) error {
	_, err := Value(ctx, p, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var zero T
	var last error
	n := p.attempts()
	for i := 1; i <= n; i++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		last = err
		if i == n || (p.Retryable != nil && !p.Retryable(err)) {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(i, err)
		}
		if err := wait(ctx, p.Delay); err != nil {
			return zero, err
		}
	}
	return zero, last
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

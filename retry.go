package breakerbox

import (
	"context"
	"io"
)

// DefaultMaxAttempts is the attempt budget applied when RetryConfig leaves
// MaxAttempts zero.
const DefaultMaxAttempts = 3

// RetryConfig configures a Retry decorator.
type RetryConfig struct {
	// MaxAttempts is the total number of invocations, including the first.
	// Minimum 1. Default: 3.
	MaxAttempts int

	// ShouldRetry decides whether a failed attempt is retried. attempt is
	// the 1-based number of the attempt that just failed. Default: retry
	// every error.
	ShouldRetry func(err error, attempt int) bool

	// Delay runs after a failed attempt and before the next one. The
	// context it receives ends when the caller's context ends or the
	// decorator is closed, whichever comes first. Default: no delay.
	Delay DelayFunc
}

// Retry re-invokes a failing operation up to a bounded number of attempts.
type Retry[T any] struct {
	cfg   RetryConfig
	inner Caller[T]
	life  *lifetime
}

// NewRetry validates cfg and wraps inner.
func NewRetry[T any](inner Caller[T], cfg RetryConfig) (*Retry[T], error) {
	if inner == nil {
		return nil, &ConfigError{Field: "inner", Reason: "operation is required"}
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxAttempts < 1 {
		return nil, &ConfigError{Field: "MaxAttempts", Reason: "must be at least 1"}
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = func(error, int) bool { return true }
	}
	return &Retry[T]{cfg: cfg, inner: inner, life: newLifetime()}, nil
}

// Call runs the operation, retrying failures until an attempt succeeds,
// ShouldRetry declines, or attempts are exhausted. Exhaustion is reported as
// a *MaxAttemptsError wrapping the final cause.
func (r *Retry[T]) Call(ctx context.Context) (T, error) {
	var zero T

	for attempt := 1; ; attempt++ {
		if cause := r.life.err(); cause != nil {
			return zero, cause
		}

		out, err := r.inner.Call(ctx)
		if err == nil {
			return out, nil
		}
		if !r.cfg.ShouldRetry(err, attempt) {
			return out, err
		}
		if attempt >= r.cfg.MaxAttempts {
			return zero, &MaxAttemptsError{Attempts: attempt, Cause: err}
		}
		if err := r.delay(ctx, attempt); err != nil {
			return zero, err
		}
	}
}

// delay waits between attempts under a context bound to the decorator's
// lifetime, so Close unwinds a pending delay immediately.
func (r *Retry[T]) delay(ctx context.Context, attempt int) error {
	if r.cfg.Delay == nil {
		return nil
	}
	bound, release := r.life.bind(ctx)
	defer release()
	return r.cfg.Delay(bound, attempt)
}

// Close disposes the decorator: a pending delay settles immediately and all
// future calls reject with a *DisposedError. Idempotent; cascades to the
// wrapped operation when it is also an io.Closer.
func (r *Retry[T]) Close() error {
	r.life.close(&DisposedError{})
	if c, ok := r.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

package breakerbox

import (
	"context"
	"io"
	"time"
)

// Timeout bounds how long a call may take. The underlying operation is not
// cancelled when the limit passes; its result is abandoned.
type Timeout[T any] struct {
	inner Caller[T]
	limit time.Duration
	msg   string
	life  *lifetime
}

// NewTimeout wraps inner with a fixed time limit.
func NewTimeout[T any](inner Caller[T], limit time.Duration) (*Timeout[T], error) {
	return NewTimeoutMessage(inner, limit, "")
}

// NewTimeoutMessage is NewTimeout with a custom message for the resulting
// *TimeoutError.
func NewTimeoutMessage[T any](inner Caller[T], limit time.Duration, msg string) (*Timeout[T], error) {
	if inner == nil {
		return nil, &ConfigError{Field: "inner", Reason: "operation is required"}
	}
	if limit <= 0 {
		return nil, &ConfigError{Field: "limit", Reason: "must be positive"}
	}
	return &Timeout[T]{inner: inner, limit: limit, msg: msg, life: newLifetime()}, nil
}

type outcome[T any] struct {
	value T
	err   error
}

// Call races the wrapped operation against the time limit. The timer is
// always stopped; a losing operation keeps running but its result goes to a
// buffered channel nobody reads.
func (t *Timeout[T]) Call(ctx context.Context) (T, error) {
	var zero T
	if cause := t.life.err(); cause != nil {
		return zero, cause
	}

	timer := time.NewTimer(t.limit)
	defer timer.Stop()

	done := make(chan outcome[T], 1)
	go func() {
		value, err := t.inner.Call(ctx)
		done <- outcome[T]{value: value, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-timer.C:
		return zero, &TimeoutError{After: t.limit, Message: t.msg}
	case <-t.life.ctx.Done():
		return zero, context.Cause(t.life.ctx)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close disposes the decorator: pending races settle immediately and all
// future calls reject with a *DisposedError. Idempotent; cascades to the
// wrapped operation when it is also an io.Closer.
func (t *Timeout[T]) Close() error {
	t.life.close(&DisposedError{})
	if c, ok := t.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

package breakerbox

import "context"

// lifetime tracks disposal of a single wrapper. It is a thin layer over a
// cancellable context so that pending delays and races observe disposal at
// their next suspension point and unwind with the disposal cause.
type lifetime struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newLifetime() *lifetime {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &lifetime{ctx: ctx, cancel: cancel}
}

// close ends the lifetime with cause. Idempotent: only the first cause wins.
func (l *lifetime) close(cause error) {
	l.cancel(cause)
}

// closed reports whether the lifetime has ended.
func (l *lifetime) closed() bool {
	select {
	case <-l.ctx.Done():
		return true
	default:
		return false
	}
}

// err returns the disposal cause, or nil while the lifetime is live.
func (l *lifetime) err() error {
	return context.Cause(l.ctx)
}

// onClose registers fn to run once the lifetime ends, receiving the disposal
// cause. The returned stop function removes the registration.
func (l *lifetime) onClose(fn func(cause error)) (stop func() bool) {
	return context.AfterFunc(l.ctx, func() {
		fn(context.Cause(l.ctx))
	})
}

// bind derives a context from ctx that additionally ends when the lifetime
// does, carrying the disposal cause. The returned release function must be
// called once the bound context is no longer needed.
func (l *lifetime) bind(ctx context.Context) (context.Context, func()) {
	bound, cancel := context.WithCancelCause(ctx)
	stop := l.onClose(func(cause error) {
		cancel(cause)
	})
	return bound, func() {
		stop()
		cancel(context.Canceled)
	}
}

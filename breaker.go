package breakerbox

import (
	"context"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Defaults applied by NewBreaker when the corresponding Config field is zero.
const (
	DefaultErrorWindow = 10 * time.Second
	DefaultResetAfter  = 30 * time.Second
	DefaultMinSamples  = 6
)

// Config configures a Breaker.
type Config[T any] struct {
	// Name identifies the breaker in errors and metrics.
	Name string

	// ErrorThreshold is the failure rate above which the circuit opens. The
	// comparison is strict: the circuit opens only when the rate exceeds the
	// threshold, so the zero value opens on any failure once MinSamples
	// calls have settled. Must be in [0, 1].
	ErrorThreshold float64

	// ErrorWindow is how long a settled outcome stays in the failure
	// accounting, measured from settlement. Minimum 1s. Default: 10s.
	ErrorWindow time.Duration

	// ResetAfter is how long the circuit stays open before probing for
	// recovery. Minimum 1s, and never shorter than ErrorWindow.
	// Default: 30s or ErrorWindow, whichever is larger.
	ResetAfter time.Duration

	// MinSamples is the number of settled calls required inside the window
	// before the failure rate can open the circuit. Minimum 1. Default: 6.
	MinSamples int

	// IsFailure classifies a non-nil error. Errors classified as not a
	// failure are returned to the caller untouched, excluded from failure
	// accounting, and trigger no transition. Default: every non-nil error
	// is a failure.
	IsFailure func(err error) bool

	// Fallback, if set, is invoked instead of returning a failure or a
	// short-circuit rejection. It receives the error that would otherwise
	// have been returned.
	Fallback func(ctx context.Context, cause error) (T, error)

	// OnOpen, OnHalfOpen, and OnClose observe state transitions. They run
	// with the breaker's mutex held and must not call back into the breaker.
	OnOpen     func(cause error)
	OnHalfOpen func()
	OnClose    func()

	// Meter enables OpenTelemetry instrumentation when set. No exporter is
	// configured by the breaker; measurements flow to whatever the provider
	// was built with.
	Meter metric.Meter

	// Clock overrides the time source. Useful for testing.
	Clock Clock
}

// Breaker wraps a main operation with circuit breaker protection: failure
// accounting over a sliding window, fail-fast rejection while open, and a
// single-flight recovery probe. Safe for concurrent use.
//
// A call's effect on the window and on circuit state is fully applied before
// that call's result is returned, so State observed immediately after an
// awaited call reflects that call's consequence.
type Breaker[T any] struct {
	name string
	cfg  Config[T]
	main Caller[T]

	metrics *breakerMetrics
	life    *lifetime

	mu       sync.Mutex
	state    State
	win      *window
	lastErr  error
	openedAt time.Time
	probing  bool
}

// NewBreaker validates cfg, applies defaults, and binds main as the
// protected operation. Configuration violations are returned here as a
// *ConfigError, never as a call rejection.
func NewBreaker[T any](main Caller[T], cfg Config[T]) (*Breaker[T], error) {
	if main == nil {
		return nil, &ConfigError{Field: "main", Reason: "operation is required"}
	}
	if cfg.ErrorThreshold < 0 || cfg.ErrorThreshold > 1 {
		return nil, &ConfigError{Field: "ErrorThreshold", Reason: "must be in [0, 1]"}
	}
	if cfg.ErrorWindow == 0 {
		cfg.ErrorWindow = DefaultErrorWindow
	}
	if cfg.ErrorWindow < time.Second {
		return nil, &ConfigError{Field: "ErrorWindow", Reason: "must be at least 1s"}
	}
	if cfg.ResetAfter == 0 {
		cfg.ResetAfter = max(DefaultResetAfter, cfg.ErrorWindow)
	}
	if cfg.ResetAfter < time.Second {
		return nil, &ConfigError{Field: "ResetAfter", Reason: "must be at least 1s"}
	}
	if cfg.ResetAfter < cfg.ErrorWindow {
		return nil, &ConfigError{Field: "ResetAfter", Reason: "must not be shorter than ErrorWindow"}
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.MinSamples < 1 {
		return nil, &ConfigError{Field: "MinSamples", Reason: "must be at least 1"}
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}

	metrics, err := newBreakerMetrics(cfg.Meter, cfg.Name)
	if err != nil {
		return nil, err
	}

	return &Breaker[T]{
		name:    cfg.Name,
		cfg:     cfg,
		main:    main,
		metrics: metrics,
		life:    newLifetime(),
		state:   StateClosed,
		win:     newWindow(cfg.Clock, cfg.ErrorWindow, cfg.MinSamples),
	}, nil
}

// Call invokes the protected operation according to the current state.
func (b *Breaker[T]) Call(ctx context.Context) (T, error) {
	var zero T

	b.mu.Lock()
	if cause := b.life.err(); cause != nil {
		b.mu.Unlock()
		return zero, cause
	}

	switch b.currentStateLocked() {
	case StateOpen:
		cause := b.lastErr
		b.mu.Unlock()
		b.metrics.rejected(ctx)
		return b.shortCircuit(ctx, cause)

	case StateHalfOpen:
		if b.probing {
			// Probe already in flight; behave exactly as if open.
			cause := b.lastErr
			b.mu.Unlock()
			b.metrics.rejected(ctx)
			return b.shortCircuit(ctx, cause)
		}
		b.probing = true
		b.mu.Unlock()
		return b.probe(ctx)
	}

	// Closed: every caller proceeds with its own window ticket.
	ticket := b.win.begin()
	b.mu.Unlock()

	b.metrics.call(ctx)
	out, err := b.main.Call(ctx)
	return b.settle(ctx, ticket, out, err)
}

// settle folds a closed-state outcome into the window and transitions the
// circuit when the failure rate crosses the threshold.
func (b *Breaker[T]) settle(ctx context.Context, ticket uint64, out T, err error) (T, error) {
	b.mu.Lock()
	if b.life.closed() {
		// Disposed mid-flight: the outcome is no longer tracked.
		b.mu.Unlock()
		return out, err
	}

	if err == nil {
		b.win.settle(ticket, false)
		b.mu.Unlock()
		return out, nil
	}

	if !b.cfg.IsFailure(err) {
		b.win.discard(ticket)
		b.mu.Unlock()
		return out, err
	}

	b.win.settle(ticket, true)
	if b.state == StateClosed && b.win.failureRate() > b.cfg.ErrorThreshold {
		b.openLocked(err)
	}
	b.mu.Unlock()

	if b.cfg.Fallback != nil {
		return b.cfg.Fallback(ctx, err)
	}
	return out, err
}

// probe runs the single half-open trial call. Its outcome alone decides the
// half-open transition; failure reopens the circuit with no threshold check.
func (b *Breaker[T]) probe(ctx context.Context) (T, error) {
	b.metrics.call(ctx)
	out, err := b.main.Call(ctx)

	b.mu.Lock()
	if b.life.closed() {
		b.mu.Unlock()
		return out, err
	}
	b.probing = false

	if err == nil {
		b.closeLocked()
		b.mu.Unlock()
		return out, nil
	}

	if !b.cfg.IsFailure(err) {
		// Not a failure: the probe slot reopens and the state is unchanged.
		b.mu.Unlock()
		return out, err
	}

	b.openLocked(err)
	b.mu.Unlock()

	if b.cfg.Fallback != nil {
		return b.cfg.Fallback(ctx, err)
	}
	return out, err
}

// shortCircuit rejects a call without touching the main operation.
func (b *Breaker[T]) shortCircuit(ctx context.Context, cause error) (T, error) {
	err := &CircuitOpenError{Breaker: b.name, Cause: cause}
	if b.cfg.Fallback != nil {
		return b.cfg.Fallback(ctx, err)
	}
	var zero T
	return zero, err
}

// currentStateLocked moves an expired open circuit to half-open before
// reporting the state.
func (b *Breaker[T]) currentStateLocked() State {
	if b.state == StateOpen && b.cfg.Clock.Now().Sub(b.openedAt) >= b.cfg.ResetAfter {
		b.state = StateHalfOpen
		b.probing = false
		b.metrics.transition(StateOpen, StateHalfOpen)
		if b.cfg.OnHalfOpen != nil {
			b.cfg.OnHalfOpen()
		}
	}
	return b.state
}

func (b *Breaker[T]) openLocked(cause error) {
	from := b.state
	b.state = StateOpen
	b.lastErr = cause
	b.openedAt = b.cfg.Clock.Now()
	b.probing = false
	b.metrics.transition(from, StateOpen)
	if b.cfg.OnOpen != nil {
		b.cfg.OnOpen(cause)
	}
}

func (b *Breaker[T]) closeLocked() {
	from := b.state
	b.state = StateClosed
	b.lastErr = nil
	b.probing = false
	b.win.reset()
	b.metrics.transition(from, StateClosed)
	if b.cfg.OnClose != nil {
		b.cfg.OnClose()
	}
}

// State returns the current circuit state. Observing the state can itself
// move an expired open circuit to half-open. A disposed breaker reports
// StateOpen permanently.
func (b *Breaker[T]) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.life.closed() {
		return StateOpen
	}
	return b.currentStateLocked()
}

// LastError returns the failure that last opened the circuit, or nil while
// the circuit is closed.
func (b *Breaker[T]) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// FailureRate returns the failure rate among calls settled inside the
// current window, in [0, 1].
func (b *Breaker[T]) FailureRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.win.failureRate()
}

// Name returns the breaker name.
func (b *Breaker[T]) Name() string {
	return b.name
}

// Close permanently disposes the breaker: history is cleared and every
// subsequent call rejects with a *DisposedError. In-flight calls settle on
// their own but no longer affect accounting or state. Close is idempotent
// and cascades to the main operation when it is also an io.Closer.
func (b *Breaker[T]) Close() error {
	return b.CloseWithReason("")
}

// CloseWithReason is Close with a message carried by the *DisposedError
// returned from later calls.
func (b *Breaker[T]) CloseWithReason(reason string) error {
	b.mu.Lock()
	if !b.life.closed() {
		b.life.close(&DisposedError{Reason: reason})
		b.win.reset()
		b.lastErr = nil
	}
	b.mu.Unlock()

	if c, ok := b.main.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

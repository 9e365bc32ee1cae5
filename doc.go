// Package breakerbox protects callers of an unreliable operation from
// cascading failure. It tracks recent outcomes over a sliding time window,
// short-circuits calls once the failure rate crosses a threshold, and
// periodically probes for recovery with a single trial call.
//
// # Components
//
// The package provides the following pieces, which compose freely:
//
//   - Breaker: the circuit state machine with sliding-window failure
//     accounting, fallback delegation, and single-flight half-open probing.
//
//   - Retry: bounded re-invocation with a retryability predicate and a
//     cancellable inter-attempt delay.
//
//   - Timeout: races an operation against a timer; losers are abandoned,
//     never forcibly terminated.
//
//   - Backoff: exponential and Fibonacci delay curves for retry.
//
//   - Pipeline: wires the layers together from options.
//
// # Usage
//
// Operations are values implementing Caller; plain functions adapt via Func:
//
//	fetch := breakerbox.Func[string](func(ctx context.Context) (string, error) {
//	    return callRemote(ctx)
//	})
//
//	timed, _ := breakerbox.NewTimeout(fetch, 5*time.Second)
//	retried, _ := breakerbox.NewRetry[string](timed, breakerbox.RetryConfig{
//	    MaxAttempts: 3,
//	    Delay:       breakerbox.ExponentialBackoff(30 * time.Second),
//	})
//	protected, err := breakerbox.NewBreaker[string](retried, breakerbox.Config[string]{
//	    ErrorThreshold: 0.5,
//	    ErrorWindow:    10 * time.Second,
//	    ResetAfter:     30 * time.Second,
//	})
//
//	result, err := protected.Call(ctx)
//
// Every wrapper implements io.Closer. Closing the outermost layer cancels
// its pending delays and races, cascades to the layers it wraps, and makes
// every later call reject with a *DisposedError. Disposal is permanent.
//
// # Concurrency
//
// Arbitrarily many concurrent calls are permitted while the circuit is
// closed; each gets an independent window ticket. Only the half-open state
// enforces mutual exclusion, limiting the underlying operation to the single
// probe while every other concurrent caller is rejected as if the circuit
// were still open.
package breakerbox

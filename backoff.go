package breakerbox

import (
	"context"
	"time"
)

// DelayFunc waits between retry attempts. attempt is the 1-based number of
// the attempt that just failed. Implementations must return promptly with
// context.Cause(ctx) once ctx ends.
type DelayFunc func(ctx context.Context, attempt int) error

// ExponentialBackoff returns a DelayFunc whose delay doubles each attempt,
// starting at one second: 1s, 2s, 4s, ... capped at max.
func ExponentialBackoff(max time.Duration) DelayFunc {
	return func(ctx context.Context, attempt int) error {
		return sleepFor(ctx, exponentialDelay(attempt, max))
	}
}

// FibonacciBackoff returns a DelayFunc whose delay follows the Fibonacci
// sequence in seconds: 1s, 1s, 2s, 3s, 5s, ... capped at max.
func FibonacciBackoff(max time.Duration) DelayFunc {
	return func(ctx context.Context, attempt int) error {
		return sleepFor(ctx, fibonacciDelay(attempt, max))
	}
}

func exponentialDelay(attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := uint(attempt - 1)
	if shift > 62 {
		shift = 62
	}
	return secondsCapped(int64(1)<<shift, max)
}

func fibonacciDelay(attempt int, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	maxSec := int64(max / time.Second)
	a, b := int64(1), int64(1)
	for i := 3; i <= attempt && b < maxSec; i++ {
		a, b = b, a+b
	}
	return secondsCapped(b, max)
}

func secondsCapped(sec int64, max time.Duration) time.Duration {
	if maxSec := int64(max / time.Second); sec > maxSec {
		return max
	}
	return time.Duration(sec) * time.Second
}

// sleepFor blocks for d or until ctx ends, whichever comes first.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

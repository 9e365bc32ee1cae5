package breakerbox

import "context"

// Caller is the protected call surface shared by the breaker and every
// decorator. Wrappers accept a Caller and return a value implementing
// Caller, so layers nest freely.
type Caller[T any] interface {
	Call(ctx context.Context) (T, error)
}

// Func adapts a plain function to the Caller interface.
type Func[T any] func(ctx context.Context) (T, error)

// Call invokes f.
func (f Func[T]) Call(ctx context.Context) (T, error) {
	return f(ctx)
}

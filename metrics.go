package breakerbox

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// breakerMetrics records breaker activity when a meter is configured. A nil
// *breakerMetrics is a valid no-op recorder, keeping call sites unconditional.
type breakerMetrics struct {
	attrs       metric.MeasurementOption
	calls       metric.Int64Counter
	rejections  metric.Int64Counter
	transitions metric.Int64Counter
}

// newBreakerMetrics builds the breaker's instruments. Returns nil when no
// meter is supplied.
func newBreakerMetrics(meter metric.Meter, name string) (*breakerMetrics, error) {
	if meter == nil {
		return nil, nil
	}

	calls, err := meter.Int64Counter(
		"breaker.calls",
		metric.WithDescription("Calls admitted to the protected operation"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter(
		"breaker.rejections",
		metric.WithDescription("Calls rejected while the circuit was open or probe-busy"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"breaker.transitions",
		metric.WithDescription("Circuit state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &breakerMetrics{
		attrs:       metric.WithAttributes(attribute.String("breaker.name", name)),
		calls:       calls,
		rejections:  rejections,
		transitions: transitions,
	}, nil
}

func (m *breakerMetrics) call(ctx context.Context) {
	if m == nil {
		return
	}
	m.calls.Add(ctx, 1, m.attrs)
}

func (m *breakerMetrics) rejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.rejections.Add(ctx, 1, m.attrs)
}

func (m *breakerMetrics) transition(from, to State) {
	if m == nil {
		return
	}
	// Transitions can fire from state reads with no caller context.
	m.transitions.Add(context.Background(), 1, m.attrs, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

package breakerbox

import (
	"context"
	"io"
	"time"
)

// Pipeline composes the breaker with retry and timeout decorators into a
// single protected call path. Layers, outermost first: breaker, retry,
// timeout, operation. Closing the pipeline cascades through every layer.
type Pipeline[T any] struct {
	outer Caller[T]
}

// PipelineOption configures a Pipeline.
type PipelineOption[T any] func(*pipelineConfig[T])

type pipelineConfig[T any] struct {
	breaker    *Config[T]
	retry      *RetryConfig
	limit      time.Duration
	limitMsg   string
	hasBreaker bool
}

// WithBreaker protects the pipeline with a circuit breaker.
func WithBreaker[T any](cfg Config[T]) PipelineOption[T] {
	return func(p *pipelineConfig[T]) {
		p.breaker = &cfg
		p.hasBreaker = true
	}
}

// WithRetries adds a retry layer inside the breaker.
func WithRetries[T any](cfg RetryConfig) PipelineOption[T] {
	return func(p *pipelineConfig[T]) {
		p.retry = &cfg
	}
}

// WithTimeLimit bounds each individual attempt.
func WithTimeLimit[T any](limit time.Duration) PipelineOption[T] {
	return func(p *pipelineConfig[T]) {
		p.limit = limit
	}
}

// WithTimeLimitMessage is WithTimeLimit with a custom timeout message.
func WithTimeLimitMessage[T any](limit time.Duration, msg string) PipelineOption[T] {
	return func(p *pipelineConfig[T]) {
		p.limit = limit
		p.limitMsg = msg
	}
}

// NewPipeline wraps op with the configured layers, innermost first.
func NewPipeline[T any](op Caller[T], opts ...PipelineOption[T]) (*Pipeline[T], error) {
	if op == nil {
		return nil, &ConfigError{Field: "op", Reason: "operation is required"}
	}

	var cfg pipelineConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	layer := op
	if cfg.limit > 0 {
		t, err := NewTimeoutMessage(layer, cfg.limit, cfg.limitMsg)
		if err != nil {
			return nil, err
		}
		layer = t
	}
	if cfg.retry != nil {
		r, err := NewRetry(layer, *cfg.retry)
		if err != nil {
			return nil, err
		}
		layer = r
	}
	if cfg.hasBreaker {
		b, err := NewBreaker(layer, *cfg.breaker)
		if err != nil {
			return nil, err
		}
		layer = b
	}

	return &Pipeline[T]{outer: layer}, nil
}

// Call invokes the outermost layer.
func (p *Pipeline[T]) Call(ctx context.Context) (T, error) {
	return p.outer.Call(ctx)
}

// Close disposes the pipeline. Each layer forwards disposal to the layer it
// wraps, down to the innermost operation when it implements io.Closer.
func (p *Pipeline[T]) Close() error {
	if c, ok := p.outer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

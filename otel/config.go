package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// config holds the options for tracing a decorated store or handler.
type config struct {
	// Operation overrides the span name of a query handler.
	Operation string

	// GetOperation is an optional function that can set the span name based on the existing operation
	// and information in the context.
	//
	// If the function is nil, or the returned operation is empty, the existing operation is used.
	GetOperation func(ctx context.Context, operation string) string

	// Attributes holds the default attributes for each span created by this middleware.
	Attributes []attribute.KeyValue

	// GetAttributes is an optional function that can extract trace attributes
	// from the context and add them to the span.
	GetAttributes func(ctx context.Context) []attribute.KeyValue

	// Tracer starts the spans. Defaults to the global tracer provider.
	Tracer trace.Tracer
}

func newConfig(opts []Option) *config {
	c := &config{Tracer: tracer}
	for _, o := range opts {
		o.apply(c)
	}
	return c
}

func (c *config) operation(ctx context.Context, operation string) string {
	if c.GetOperation != nil {
		if op := c.GetOperation(ctx, operation); op != "" {
			return op
		}
	}
	return operation
}

func (c *config) attributes(ctx context.Context, attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs)+len(c.Attributes))
	out = append(out, attrs...)
	out = append(out, c.Attributes...)
	if c.GetAttributes != nil {
		out = append(out, c.GetAttributes(ctx)...)
	}
	return out
}

// Option configures the telemetry decorators.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (o optionFunc) apply(c *config) {
	o(c)
}

// WithOperation sets the span name of a query handler.
func WithOperation(operation string) Option {
	return optionFunc(func(o *config) {
		o.Operation = operation
	})
}

// WithOperationGetter sets an operation name getter function in config.
func WithOperationGetter(fn func(ctx context.Context, name string) string) Option {
	return optionFunc(func(o *config) {
		o.GetOperation = fn
	})
}

// WithAttributes sets the default attributes for the spans created by the decorators.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return optionFunc(func(o *config) {
		o.Attributes = attrs
	})
}

// WithAttributeGetter extracts additional attributes from the context.
func WithAttributeGetter(fn func(ctx context.Context) []attribute.KeyValue) Option {
	return optionFunc(func(o *config) {
		o.GetAttributes = fn
	})
}

// WithTracerProvider starts spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return optionFunc(func(o *config) {
		o.Tracer = tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))
	})
}

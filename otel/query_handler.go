package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	eventsourcing "github.com/terraskye/eventsourcing-readstore"
)

// WithQueryTelemetry wraps a QueryHandler with OpenTelemetry tracing and metrics.
//
// The wrapper performs the following steps for each query execution:
//  1. Starts a span named after the query type (or the WithOperation name).
//  2. Attaches the query type and query ID.
//  3. Tracks the query as in flight while the handler runs.
//  4. Records the duration and marks the span and metrics as handled or failed.
//
// Example Usage:
//
//	handler := WithQueryTelemetry(eventsourcing.NewReadModelQueryHandler[Order](store))
//	env, err := handler.HandleQuery(ctx, eventsourcing.GetReadModel{ReadModelID: "order-1"})
func WithQueryTelemetry[T eventsourcing.Query, R any](next eventsourcing.QueryHandler[T, R], opts ...Option) eventsourcing.QueryHandler[T, R] {
	var zero T
	queryType := fmt.Sprintf("%T", zero)

	cfg := newConfig(opts)
	if cfg.Operation == "" {
		cfg.Operation = fmt.Sprintf("query.handle %s", queryType)
	}

	return &telemetryQueryHandler[T, R]{
		next:      next,
		queryType: queryType,
		cfg:       cfg,
	}
}

type telemetryQueryHandler[T eventsourcing.Query, R any] struct {
	next      eventsourcing.QueryHandler[T, R]
	queryType string
	cfg       *config
}

func (h *telemetryQueryHandler[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	ctx, span := h.cfg.Tracer.Start(ctx, h.cfg.operation(ctx, h.cfg.Operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(h.cfg.attributes(ctx,
			AttrQueryType.String(h.queryType),
			AttrQueryID.String(string(qry.ID())),
		)...),
	)
	defer span.End()

	typeAttr := metric.WithAttributes(AttrQueryType.String(h.queryType))

	QueriesInFlight.Add(ctx, 1, typeAttr)
	defer QueriesInFlight.Add(ctx, -1, typeAttr)

	startTime := time.Now()
	result, err := h.next.HandleQuery(ctx, qry)

	QueriesDuration.Record(ctx, float64(time.Since(startTime).Milliseconds()), typeAttr)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		QueriesFailed.Add(ctx, 1, typeAttr)
		return result, err
	}

	span.SetStatus(codes.Ok, "")
	QueriesHandled.Add(ctx, 1, typeAttr)

	return result, nil
}

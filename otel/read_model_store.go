package otel

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	eventsourcing "github.com/terraskye/eventsourcing-readstore"
)

// WithReadModelStoreTelemetry wraps a ReadModelStore with OpenTelemetry tracing and metrics.
//
// Every operation gets a client span named "ReadModelStore.<Operation>" and is
// counted and timed. Update additionally starts one "ReadModel.Apply" span per
// read model around the update callback and counts the read models written and
// the events folded into them.
//
// Example Usage:
//
//	store := otel.WithReadModelStoreTelemetry[Order](mongodb.NewStore[Order](db))
func WithReadModelStoreTelemetry[T any](next eventsourcing.ReadModelStore[T], opts ...Option) eventsourcing.ReadModelStore[T] {
	return &telemetryStore[T]{
		next:          next,
		cfg:           newConfig(opts),
		readModelType: reflect.TypeFor[T]().String(),
	}
}

type telemetryStore[T any] struct {
	next          eventsourcing.ReadModelStore[T]
	cfg           *config
	readModelType string
}

func (s *telemetryStore[T]) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span, []attribute.KeyValue) {
	base := []attribute.KeyValue{
		AttrOperation.String(operation),
		AttrReadModelType.String(s.readModelType),
	}

	ctx, span := s.cfg.Tracer.Start(ctx, s.cfg.operation(ctx, "ReadModelStore."+operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(s.cfg.attributes(ctx, append(base, attrs...)...)...),
	)
	return ctx, span, base
}

func (s *telemetryStore[T]) finish(ctx context.Context, span trace.Span, base []attribute.KeyValue, startedAt time.Time, err error) {
	defer span.End()

	StoreDuration.Record(ctx, float64(time.Since(startedAt).Milliseconds()), metric.WithAttributes(base...))
	StoreOperations.Add(ctx, 1, metric.WithAttributes(base...))

	if err != nil {
		StoreErrors.Add(ctx, 1, metric.WithAttributes(append(base, AttrErrorType.String(errorType(err)))...))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (s *telemetryStore[T]) Get(ctx context.Context, id string) (eventsourcing.ReadModelEnvelope[T], error) {
	ctx, span, base := s.start(ctx, "Get", AttrReadModelID.String(id))
	startedAt := time.Now()

	env, err := s.next.Get(ctx, id)
	if err == nil {
		span.SetAttributes(AttrReadModelVersion.Int64(int64(env.Version)))
	}
	s.finish(ctx, span, base, startedAt, err)
	return env, err
}

func (s *telemetryStore[T]) Update(ctx context.Context, updates []eventsourcing.ReadModelUpdate, rmCtx *eventsourcing.ReadModelContext, update eventsourcing.UpdateFunc[T]) error {
	var events int
	for _, u := range updates {
		events += len(u.Events)
	}

	ctx, span, base := s.start(ctx, "Update",
		AttrUpdateCount.Int(len(updates)),
		AttrEventCount.Int(events),
	)
	startedAt := time.Now()

	err := s.next.Update(ctx, updates, rmCtx, s.traceUpdate(update, base))
	s.finish(ctx, span, base, startedAt, err)
	return err
}

func (s *telemetryStore[T]) traceUpdate(update eventsourcing.UpdateFunc[T], base []attribute.KeyValue) eventsourcing.UpdateFunc[T] {
	return func(ctx context.Context, rmCtx *eventsourcing.ReadModelContext, events []*eventsourcing.Envelope, current eventsourcing.ReadModelEnvelope[T]) (eventsourcing.ReadModelEnvelope[T], error) {
		ctx, span := s.cfg.Tracer.Start(ctx, "ReadModel.Apply",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				AttrReadModelType.String(s.readModelType),
				AttrReadModelID.String(current.ReadModelID),
				AttrReadModelVersion.Int64(int64(current.Version)),
				AttrEventCount.Int(len(events)),
			),
		)
		defer span.End()

		next, err := update(ctx, rmCtx, events, current)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return next, err
		}

		span.SetAttributes(AttrReadModelVersion.Int64(int64(next.Version)))
		ReadModelsUpdated.Add(ctx, 1, metric.WithAttributes(base...))
		EventsApplied.Add(ctx, int64(len(events)), metric.WithAttributes(base...))
		return next, nil
	}
}

func (s *telemetryStore[T]) Delete(ctx context.Context, id string) error {
	ctx, span, base := s.start(ctx, "Delete", AttrReadModelID.String(id))
	startedAt := time.Now()

	err := s.next.Delete(ctx, id)
	s.finish(ctx, span, base, startedAt, err)
	return err
}

func (s *telemetryStore[T]) DeleteAll(ctx context.Context) error {
	ctx, span, base := s.start(ctx, "DeleteAll")
	startedAt := time.Now()

	err := s.next.DeleteAll(ctx)
	s.finish(ctx, span, base, startedAt, err)
	return err
}

func errorType(err error) string {
	switch {
	case errors.Is(err, eventsourcing.ErrReadModelNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return fmt.Sprintf("%T", err)
}

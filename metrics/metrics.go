// Package metrics exposes read model store activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	eventsourcing "github.com/terraskye/eventsourcing-readstore"
)

const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultError    = "error"
)

// Metrics holds the collectors shared by every decorated store.
type Metrics struct {
	Operations    *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	EventsApplied *prometheus.CounterVec
}

// NewMetrics creates the collectors under namespace and registers them on reg
// (the default registerer if nil). Registering twice on the same registry
// reuses the collectors already there.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readstore_operations_total",
			Help:      "Read model store operations by read model, operation and result",
		}, []string{"read_model", "operation", "result"}),

		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "readstore_operation_duration_seconds",
			Help:      "Latency of read model store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"read_model", "operation"}),

		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readstore_events_applied_total",
			Help:      "Events folded into read models by successful updates",
		}, []string{"read_model"}),
	}

	var err error
	if m.Operations, err = register(reg, m.Operations); err != nil {
		return nil, err
	}
	if m.Duration, err = register(reg, m.Duration); err != nil {
		return nil, err
	}
	if m.EventsApplied, err = register(reg, m.EventsApplied); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observe(readModel, operation string, start time.Time, err error) {
	result := resultOK
	switch {
	case errors.Is(err, eventsourcing.ErrReadModelNotFound):
		result = resultNotFound
	case err != nil:
		result = resultError
	}

	m.Operations.WithLabelValues(readModel, operation, result).Inc()
	m.Duration.WithLabelValues(readModel, operation).Observe(time.Since(start).Seconds())
}

// WithStoreMetrics wraps a ReadModelStore and records every operation on m.
func WithStoreMetrics[T any](m *Metrics, next eventsourcing.ReadModelStore[T]) eventsourcing.ReadModelStore[T] {
	return &metricsStore[T]{
		metrics:   m,
		next:      next,
		readModel: reflect.TypeFor[T]().String(),
	}
}

type metricsStore[T any] struct {
	metrics   *Metrics
	next      eventsourcing.ReadModelStore[T]
	readModel string
}

func (s *metricsStore[T]) Get(ctx context.Context, id string) (eventsourcing.ReadModelEnvelope[T], error) {
	start := time.Now()
	env, err := s.next.Get(ctx, id)
	s.metrics.observe(s.readModel, "get", start, err)
	return env, err
}

func (s *metricsStore[T]) Update(ctx context.Context, updates []eventsourcing.ReadModelUpdate, rmCtx *eventsourcing.ReadModelContext, update eventsourcing.UpdateFunc[T]) error {
	start := time.Now()

	counted := func(ctx context.Context, rmCtx *eventsourcing.ReadModelContext, events []*eventsourcing.Envelope, current eventsourcing.ReadModelEnvelope[T]) (eventsourcing.ReadModelEnvelope[T], error) {
		next, err := update(ctx, rmCtx, events, current)
		if err == nil {
			s.metrics.EventsApplied.WithLabelValues(s.readModel).Add(float64(len(events)))
		}
		return next, err
	}

	err := s.next.Update(ctx, updates, rmCtx, counted)
	s.metrics.observe(s.readModel, "update", start, err)
	return err
}

func (s *metricsStore[T]) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, id)
	s.metrics.observe(s.readModel, "delete", start, err)
	return err
}

func (s *metricsStore[T]) DeleteAll(ctx context.Context) error {
	start := time.Now()
	err := s.next.DeleteAll(ctx)
	s.metrics.observe(s.readModel, "delete_all", start, err)
	return err
}

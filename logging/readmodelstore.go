package logging

import (
	"context"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"
	eventsourcing "github.com/terraskye/eventsourcing-readstore"
)

type storeLogger[T any] struct {
	logger *logrus.Entry
	next   eventsourcing.ReadModelStore[T]
}

// WithStoreLogging wraps a ReadModelStore with logging functionality.
// Reads are logged at debug level, writes at info level, and every failure
// at error level together with the elapsed time.
func WithStoreLogging[T any](logger *logrus.Entry, next eventsourcing.ReadModelStore[T]) eventsourcing.ReadModelStore[T] {
	return &storeLogger[T]{
		logger: logger.WithField("read-model", reflect.TypeFor[T]().String()),
		next:   next,
	}
}

func (s *storeLogger[T]) Get(ctx context.Context, id string) (eventsourcing.ReadModelEnvelope[T], error) {
	l := s.logger.WithField("read-model-id", id)
	start := time.Now()

	env, err := s.next.Get(ctx, id)
	if err != nil {
		l.WithError(err).WithField("elapsed", time.Since(start)).Error("get read model failed")
		return env, err
	}
	l.WithField("version", env.Version).Debug("read model loaded")
	return env, nil
}

func (s *storeLogger[T]) Update(ctx context.Context, updates []eventsourcing.ReadModelUpdate, rmCtx *eventsourcing.ReadModelContext, update eventsourcing.UpdateFunc[T]) error {
	l := s.logger.WithField("updates", len(updates))
	start := time.Now()

	l.Debug("read model update started")

	traced := func(ctx context.Context, rmCtx *eventsourcing.ReadModelContext, events []*eventsourcing.Envelope, current eventsourcing.ReadModelEnvelope[T]) (eventsourcing.ReadModelEnvelope[T], error) {
		next, err := update(ctx, rmCtx, events, current)
		if err == nil {
			l.WithFields(logrus.Fields{
				"read-model-id": current.ReadModelID,
				"events":        len(events),
				"from-version":  current.Version,
				"to-version":    next.Version,
			}).Debug("read model updated")
		}
		return next, err
	}

	if err := s.next.Update(ctx, updates, rmCtx, traced); err != nil {
		l.WithError(err).WithField("elapsed", time.Since(start)).Error("read model update failed")
		return err
	}
	l.WithField("elapsed", time.Since(start)).Info("read models updated")
	return nil
}

func (s *storeLogger[T]) Delete(ctx context.Context, id string) error {
	l := s.logger.WithField("read-model-id", id)

	if err := s.next.Delete(ctx, id); err != nil {
		l.WithError(err).Error("delete read model failed")
		return err
	}
	l.Info("read model deleted")
	return nil
}

func (s *storeLogger[T]) DeleteAll(ctx context.Context) error {
	if err := s.next.DeleteAll(ctx); err != nil {
		s.logger.WithError(err).Error("delete all read models failed")
		return err
	}
	s.logger.Info("all read models deleted")
	return nil
}

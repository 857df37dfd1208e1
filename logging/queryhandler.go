package logging

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"
	eventsourcing "github.com/terraskye/eventsourcing-readstore"
)

type queryHandlerLogger[T eventsourcing.Query, R any] struct {
	logger *logrus.Entry
	next   eventsourcing.QueryHandler[T, R]
}

func (q *queryHandlerLogger[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	qryType := reflect.TypeOf(qry).String()
	l := q.logger.WithFields(logrus.Fields{
		"query":    qryType,
		"query-id": string(qry.ID()),
	})
	if get, ok := any(qry).(eventsourcing.GetReadModel); ok {
		l = l.WithField("read-model-id", get.ReadModelID)
	}
	start := time.Now()

	l.Infof("Query: %s (id: %s)", qryType, qry.ID())

	result, err := q.next.HandleQuery(ctx, qry)
	l = l.WithField("elapsed", time.Since(start))

	switch {
	case errors.Is(err, eventsourcing.ErrReadModelNotFound):
		l.WithError(err).Warnf("Query read model not found: %s (id: %s)", qryType, qry.ID())
	case err != nil:
		l.WithError(err).Errorf("Query failed: %s (id: %s): %v", qryType, qry.ID(), err)
	default:
		if env, ok := any(result).(interface{ IsEmpty() bool }); ok && env.IsEmpty() {
			l.Debugf("Query answered without read model: %s (id: %s)", qryType, qry.ID())
		} else {
			l.Debugf("Query answered: %s (id: %s)", qryType, qry.ID())
		}
	}

	return result, err
}

// WithQueryLogging wraps a QueryHandler with logging functionality.
// It logs the query type and read model id before execution. A missing read
// model is logged as a warning, other failures as errors, answers at debug level.
func WithQueryLogging[T eventsourcing.Query, R any](logger *logrus.Entry, next eventsourcing.QueryHandler[T, R]) eventsourcing.QueryHandler[T, R] {
	return &queryHandlerLogger[T, R]{
		logger: logger,
		next:   next,
	}
}

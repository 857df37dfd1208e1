package eventsourcing

import (
	"context"
)

// Query is the interface that must be implemented by any type to be considered a query.
type Query interface {
	ID() []byte
}

// QueryHandler represents a handler for a specific query type T and
// produces a result of type R.
//
// Type Parameters:
//   - T: The query type implementing Query.
//   - R: The return type, either a read model envelope or an Iterator.
//
// Example Usage:
//
//	handler := NewQueryHandlerFunc(func(ctx context.Context, q GetReadModel) (ReadModelEnvelope[Order], error) {
//	    return store.Get(ctx, q.ReadModelID)
//	})
//
//	var _ QueryHandler[GetReadModel, ReadModelEnvelope[Order]] = handler
type QueryHandler[T Query, R any] interface {
	HandleQuery(ctx context.Context, qry T) (R, error)
}

// queryHandlerFunc is a helper type to allow ordinary functions to
// implement QueryHandler[T,R].
type queryHandlerFunc[T Query, R any] func(ctx context.Context, qry T) (R, error)

// HandleQuery calls the underlying function.
func (f queryHandlerFunc[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	return f(ctx, qry)
}

// NewQueryHandlerFunc creates a QueryHandler from a function.
func NewQueryHandlerFunc[T Query, R any](fn func(ctx context.Context, qry T) (R, error)) QueryHandler[T, R] {
	return queryHandlerFunc[T, R](fn)
}

// GetReadModel asks for a single read model by identifier.
type GetReadModel struct {
	ReadModelID string
}

func (q GetReadModel) ID() []byte { return []byte(q.ReadModelID) }

// NewReadModelQueryHandler answers GetReadModel queries from store.
// A missing read model is reported as ErrReadModelNotFound.
func NewReadModelQueryHandler[T any](store ReadModelStore[T]) QueryHandler[GetReadModel, ReadModelEnvelope[T]] {
	return NewQueryHandlerFunc(func(ctx context.Context, q GetReadModel) (ReadModelEnvelope[T], error) {
		return store.Get(ctx, q.ReadModelID)
	})
}

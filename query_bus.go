package eventsourcing

import (
	"context"
	"fmt"
	"sync"
)

// QueryBus acts as a central registry for query handlers. It stores
// handlers keyed by their query and result types, allowing multiple
// query types to be registered in a single bus.
//
// Handlers are executed via a typed GenericQueryGateway.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	RegisterReadModel[Order](bus, mongodb.NewStore[Order](db))
//
//	orders := NewQueryGateway[GetReadModel, ReadModelEnvelope[Order]](bus)
//	env, err := orders.HandleQuery(ctx, GetReadModel{ReadModelID: "order-1"})
type QueryBus struct {
	mu       sync.RWMutex
	handlers map[string]any
}

// NewQueryBus creates a new, empty QueryBus.
func NewQueryBus() *QueryBus {
	return &QueryBus{
		handlers: make(map[string]any),
	}
}

func handlerKey[T Query, R any]() string {
	return fmt.Sprintf("%T|%T", *new(T), *new(R))
}

// RegisterQueryHandler registers a QueryHandler for the query type T and
// result type R. Registering a second handler for the same pair returns
// ErrDuplicateHandler.
func RegisterQueryHandler[T Query, R any](bus *QueryBus, handler QueryHandler[T, R]) error {
	key := handlerKey[T, R]()

	bus.mu.Lock()
	defer bus.mu.Unlock()

	if _, exists := bus.handlers[key]; exists {
		return fmt.Errorf("query handler %s: %w", key, ErrDuplicateHandler)
	}
	bus.handlers[key] = handler
	return nil
}

// RegisterReadModel registers a GetReadModel handler answering from store.
func RegisterReadModel[T any](bus *QueryBus, store ReadModelStore[T]) error {
	return RegisterQueryHandler(bus, NewReadModelQueryHandler(store))
}

// GenericQueryGateway provides a typed interface for executing queries
// registered on a QueryBus. It implements QueryHandler[T,R], allowing
// it to be used wherever a QueryHandler is expected.
type GenericQueryGateway[T Query, R any] struct {
	bus *QueryBus
}

// NewQueryGateway creates a typed gateway for a specific query type
// backed by a QueryBus.
func NewQueryGateway[T Query, R any](bus *QueryBus) GenericQueryGateway[T, R] {
	return GenericQueryGateway[T, R]{bus: bus}
}

// HandleQuery executes the registered handler for qry. The handler is looked
// up on every call, so handlers registered after the gateway was created are
// found too.
func (g GenericQueryGateway[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	key := handlerKey[T, R]()

	g.bus.mu.RLock()
	h, ok := g.bus.handlers[key]
	g.bus.mu.RUnlock()

	if !ok {
		var zero R
		return zero, fmt.Errorf("no handler registered for query %s: %w", key, ErrHandlerNotFound)
	}

	return h.(QueryHandler[T, R]).HandleQuery(ctx, qry)
}

package eventsourcing

import (
	"context"
	"fmt"
	"sync"

	"github.com/io-da/query"
)

var _ query.Handler = (*QueryProvider)(nil)

// QueryProvider answers queries issued on an untyped query.Bus with the typed
// handlers of a QueryBus. Each query type is served by at most one result type.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	_ = RegisterReadModel[Order](bus, mongodb.NewStore[Order](db))
//
//	provider := NewQueryProvider(bus)
//	_ = ProvideReadModel[Order](provider)
//
//	qb := query.NewBus()
//	qb.Handlers(provider)
//	res, err := qb.Query(ctx, GetReadModel{ReadModelID: "order-1"})
//	env := res.First().(ReadModelEnvelope[Order])
type QueryProvider struct {
	bus *QueryBus

	mu       sync.RWMutex
	handlers map[string]func(ctx context.Context, qry query.Query) (any, error)
}

// NewQueryProvider creates a provider resolving handlers from bus.
func NewQueryProvider(bus *QueryBus) *QueryProvider {
	return &QueryProvider{
		bus:      bus,
		handlers: make(map[string]func(ctx context.Context, qry query.Query) (any, error)),
	}
}

// Provide routes queries of type T to the handler registered on the
// provider's QueryBus for T and R. The handler is looked up per query, so it
// may be registered after Provide. Providing T twice returns ErrDuplicateHandler.
func Provide[T Query, R any](p *QueryProvider) error {
	var zero T
	name := TypeName(zero)
	gateway := NewQueryGateway[T, R](p.bus)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.handlers[name]; exists {
		return fmt.Errorf("query provider %s: %w", name, ErrDuplicateHandler)
	}
	p.handlers[name] = func(ctx context.Context, qry query.Query) (any, error) {
		typed, ok := qry.(T)
		if !ok {
			return nil, fmt.Errorf("query provider %s: unexpected query %T", name, qry)
		}
		return gateway.HandleQuery(ctx, typed)
	}
	return nil
}

// ProvideReadModel routes GetReadModel queries to the handler registered by
// RegisterReadModel for T. Results are ReadModelEnvelope[T] values.
func ProvideReadModel[T any](p *QueryProvider) error {
	return Provide[GetReadModel, ReadModelEnvelope[T]](p)
}

// Handle implements query.Handler. Queries of a type nobody provided are left
// unhandled so the next handler on the query.Bus can answer them.
func (p *QueryProvider) Handle(ctx context.Context, qry query.Query, res *query.Result) error {
	p.mu.RLock()
	h, ok := p.handlers[TypeName(qry)]
	p.mu.RUnlock()

	if !ok {
		return nil
	}

	result, err := h(ctx, qry)
	if err != nil {
		return err
	}

	res.Add(result)
	res.Done()
	return nil
}

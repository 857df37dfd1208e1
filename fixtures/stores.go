package fixtures

import (
	"context"
	"fmt"
	"sync"

	es "github.com/terraskye/eventsourcing-readstore"
)

var _ es.ReadModelStore[TestReadModel] = (*StoreSpy[TestReadModel])(nil)

// StoreSpy is a configurable in-memory ReadModelStore for testing decorators.
// It tracks calls and allows injecting custom behavior or failures.
type StoreSpy[T any] struct {
	mu sync.Mutex

	// Function overrides for custom behavior
	GetFn       func(ctx context.Context, id string) (es.ReadModelEnvelope[T], error)
	UpdateFn    func(ctx context.Context, updates []es.ReadModelUpdate, rmCtx *es.ReadModelContext, update es.UpdateFunc[T]) error
	DeleteFn    func(ctx context.Context, id string) error
	DeleteAllFn func(ctx context.Context) error

	// Call tracking
	GetCalls       int
	UpdateCalls    int
	DeleteCalls    int
	DeleteAllCalls int

	// Captured arguments from last call
	LastGetID    string
	LastDeleteID string
	LastUpdates  []es.ReadModelUpdate

	models map[string]es.ReadModelEnvelope[T]
	err    error
}

// NewStoreSpy creates a new, empty StoreSpy.
func NewStoreSpy[T any]() *StoreSpy[T] {
	return &StoreSpy[T]{models: make(map[string]es.ReadModelEnvelope[T])}
}

// WithReadModel pre-populates the store.
func (s *StoreSpy[T]) WithReadModel(id string, rm *T, version uint64) *StoreSpy[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.models[id] = es.NewReadModelEnvelopeWithVersion(id, rm, version)
	return s
}

// FailWith makes every operation return err.
func (s *StoreSpy[T]) FailWith(err error) *StoreSpy[T] {
	s.err = err
	return s
}

// Len returns the number of stored read models.
func (s *StoreSpy[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.models)
}

func (s *StoreSpy[T]) Get(ctx context.Context, id string) (es.ReadModelEnvelope[T], error) {
	s.mu.Lock()
	s.GetCalls++
	s.LastGetID = id
	s.mu.Unlock()

	if s.GetFn != nil {
		return s.GetFn(ctx, id)
	}
	if s.err != nil {
		return es.EmptyReadModelEnvelope[T](id), s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.models[id]
	if !ok {
		return es.EmptyReadModelEnvelope[T](id), fmt.Errorf("get %q: %w", id, es.ErrReadModelNotFound)
	}
	return env, nil
}

func (s *StoreSpy[T]) Update(ctx context.Context, updates []es.ReadModelUpdate, rmCtx *es.ReadModelContext, update es.UpdateFunc[T]) error {
	s.mu.Lock()
	s.UpdateCalls++
	s.LastUpdates = updates
	s.mu.Unlock()

	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, updates, rmCtx, update)
	}
	if s.err != nil {
		return s.err
	}

	for _, u := range updates {
		s.mu.Lock()
		current, ok := s.models[u.ReadModelID]
		s.mu.Unlock()
		if !ok {
			current = es.EmptyReadModelEnvelope[T](u.ReadModelID)
		}

		next, err := update(ctx, rmCtx, u.Events, current)
		if err != nil {
			return err
		}
		if next.ReadModel == nil {
			return es.ErrNilReadModel
		}

		s.mu.Lock()
		s.models[u.ReadModelID] = es.NewReadModelEnvelopeWithVersion(u.ReadModelID, next.ReadModel, next.Version)
		s.mu.Unlock()
	}
	return nil
}

func (s *StoreSpy[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	s.DeleteCalls++
	s.LastDeleteID = id
	s.mu.Unlock()

	if s.DeleteFn != nil {
		return s.DeleteFn(ctx, id)
	}
	if s.err != nil {
		return s.err
	}

	s.mu.Lock()
	delete(s.models, id)
	s.mu.Unlock()
	return nil
}

func (s *StoreSpy[T]) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	s.DeleteAllCalls++
	s.mu.Unlock()

	if s.DeleteAllFn != nil {
		return s.DeleteAllFn(ctx)
	}
	if s.err != nil {
		return s.err
	}

	s.mu.Lock()
	s.models = make(map[string]es.ReadModelEnvelope[T])
	s.mu.Unlock()
	return nil
}

// Reset clears all call counts and stored data.
func (s *StoreSpy[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.GetCalls = 0
	s.UpdateCalls = 0
	s.DeleteCalls = 0
	s.DeleteAllCalls = 0
	s.LastGetID = ""
	s.LastDeleteID = ""
	s.LastUpdates = nil
	s.models = make(map[string]es.ReadModelEnvelope[T])
	s.err = nil
}

// FailingStore returns a StoreSpy that fails on all operations.
func FailingStore[T any](err error) *StoreSpy[T] {
	return NewStoreSpy[T]().FailWith(err)
}

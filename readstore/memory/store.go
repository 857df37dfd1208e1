// Package memory keeps read models in process. Documents are held as BSON so
// callers never share memory with the store, and models round-trip through
// the same struct tags the MongoDB store uses.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	es "github.com/terraskye/eventsourcing-readstore"
)

var _ es.ReadModelStore[struct{}] = (*Store[struct{}])(nil)

type document struct {
	raw     []byte
	version uint64
}

// Store is an in-memory ReadModelStore. It is safe for concurrent use; like
// the database backed stores it gives no isolation across an update batch.
type Store[T any] struct {
	mu       sync.RWMutex
	docs     map[string]document
	logger   *logrus.Entry
	typeName string
}

// NewStore creates an empty Store. A nil logger discards output.
func NewStore[T any](logger *logrus.Entry) *Store[T] {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return &Store[T]{
		docs:     make(map[string]document),
		logger:   logger,
		typeName: reflect.TypeFor[T]().String(),
	}
}

func (s *Store[T]) Get(ctx context.Context, id string) (es.ReadModelEnvelope[T], error) {
	if err := ctx.Err(); err != nil {
		return es.EmptyReadModelEnvelope[T](id), err
	}

	s.mu.RLock()
	doc, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok {
		return es.EmptyReadModelEnvelope[T](id), fmt.Errorf("get %s %q: %w", s.typeName, id, es.ErrReadModelNotFound)
	}

	rm, err := s.decode(doc)
	if err != nil {
		return es.EmptyReadModelEnvelope[T](id), err
	}
	return es.NewReadModelEnvelopeWithVersion(id, rm, doc.version), nil
}

// Find returns the read models matching predicate ordered by identifier.
// A nil predicate matches every read model.
func (s *Store[T]) Find(ctx context.Context, predicate func(*T) bool) (*es.Iterator[*T], error) {
	s.mu.RLock()
	ids := slices.Sorted(maps.Keys(s.docs))
	docs := make([]document, len(ids))
	for i, id := range ids {
		docs[i] = s.docs[id]
	}
	s.mu.RUnlock()

	s.logger.Tracef("Finding read model '%s' among %d documents", s.typeName, len(docs))

	var matches []*T
	for _, doc := range docs {
		rm, err := s.decode(doc)
		if err != nil {
			return nil, err
		}
		if predicate == nil || predicate(rm) {
			matches = append(matches, rm)
		}
	}
	return es.NewSliceIterator(matches), nil
}

func (s *Store[T]) Update(ctx context.Context, updates []es.ReadModelUpdate, rmCtx *es.ReadModelContext, update es.UpdateFunc[T]) error {
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, err := s.Get(ctx, u.ReadModelID)
		if errors.Is(err, es.ErrReadModelNotFound) {
			current = es.EmptyReadModelEnvelope[T](u.ReadModelID)
		} else if err != nil {
			return err
		}

		next, err := update(ctx, rmCtx, u.Events, current)
		if err != nil {
			return fmt.Errorf("update %s %q: %w", s.typeName, u.ReadModelID, err)
		}
		if next.ReadModel == nil {
			return fmt.Errorf("update %s %q: %w", s.typeName, u.ReadModelID, es.ErrNilReadModel)
		}
		if v, ok := any(next.ReadModel).(es.VersionedReadModel); ok {
			v.SetReadModelVersion(next.Version)
		}

		raw, err := bson.Marshal(next.ReadModel)
		if err != nil {
			return fmt.Errorf("encode %s %q: %w", s.typeName, u.ReadModelID, err)
		}

		s.mu.Lock()
		s.docs[u.ReadModelID] = document{raw: raw, version: next.Version}
		s.mu.Unlock()
	}
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Infof("Deleting '%s' with id '%s'", s.typeName, id)

	s.mu.Lock()
	delete(s.docs, id)
	s.mu.Unlock()
	return nil
}

func (s *Store[T]) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Infof("Deleting ALL '%s'", s.typeName)

	s.mu.Lock()
	clear(s.docs)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored read models.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store[T]) decode(doc document) (*T, error) {
	rm := new(T)
	if err := bson.Unmarshal(doc.raw, rm); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.typeName, err)
	}
	return rm, nil
}

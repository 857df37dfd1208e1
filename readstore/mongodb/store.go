// Package mongodb stores read models in MongoDB, one collection per read
// model type and one document per read model identifier.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	es "github.com/terraskye/eventsourcing-readstore"
)

var _ es.ReadModelStore[struct{}] = (*Store[struct{}])(nil)

type config struct {
	logger   *logrus.Entry
	provider es.DescriptionProvider
}

// Option configures a Store.
type Option func(*config)

// WithLogger sets the logger. Without it the store logs nothing.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDescriptionProvider overrides how the collection name of T is resolved.
func WithDescriptionProvider(p es.DescriptionProvider) Option {
	return func(c *config) {
		c.provider = p
	}
}

// VersionField is the document field holding the read model version.
const VersionField = "_version"

// Store persists read models of type T. T should map its identifier to the
// "_id" field of the document, e.g.
//
//	type OrderSummary struct {
//	    ID      string `bson:"_id,omitempty"`
//	    Version uint64 `bson:"_version"`
//	}
//
// Every document carries the envelope version in VersionField, whether or
// not T declares it, so models without a version field keep their version
// across loads. Store adds no retries; every driver error is returned to the
// caller.
type Store[T any] struct {
	db       *mongo.Database
	provider es.DescriptionProvider
	logger   *logrus.Entry
	typeName string
}

// NewStore creates a Store on db. Without options it logs nothing and names
// collections with es.NewDescriptionProvider.
func NewStore[T any](db *mongo.Database, opts ...Option) *Store[T] {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.provider == nil {
		cfg.provider = es.NewDescriptionProvider()
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}

	return &Store[T]{
		db:       db,
		provider: cfg.provider,
		logger:   cfg.logger,
		typeName: reflect.TypeFor[T]().String(),
	}
}

// Database returns the database the collections live in.
func (s *Store[T]) Database() *mongo.Database {
	return s.db
}

// DescriptionProvider returns the provider resolving the collection of T.
func (s *Store[T]) DescriptionProvider() es.DescriptionProvider {
	return s.provider
}

// Logger returns the store's logger.
func (s *Store[T]) Logger() *logrus.Entry {
	return s.logger
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func (s *Store[T]) collection() (*mongo.Collection, error) {
	desc, err := es.DescriptionFor[T](s.provider)
	if err != nil {
		return nil, err
	}
	return s.db.Collection(desc.RootCollectionName.String()), nil
}

// Get fetches the read model with the given id. A missing document is
// reported as an error matching both es.ErrReadModelNotFound and
// mongo.ErrNoDocuments.
func (s *Store[T]) Get(ctx context.Context, id string) (es.ReadModelEnvelope[T], error) {
	coll, err := s.collection()
	if err != nil {
		return es.EmptyReadModelEnvelope[T](id), err
	}

	s.logger.Tracef("Fetching read model '%s' with _id '%s' from collection '%s'", s.typeName, id, coll.Name())

	env, err := s.load(ctx, coll, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return env, fmt.Errorf("get %s %q: %w: %w", s.typeName, id, es.ErrReadModelNotFound, err)
	}
	return env, err
}

// Find returns an iterator over the documents matching filter. A nil filter
// matches every document. The iterator decodes one document per Next and
// closes the cursor once it is exhausted, fails or is closed.
func (s *Store[T]) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*es.Iterator[*T], error) {
	coll, err := s.collection()
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = bson.D{}
	}

	s.logger.Tracef("Finding read model '%s' with filter '%v' from collection '%s'", s.typeName, filter, coll.Name())

	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}

	return es.NewIteratorWithClose(func(ctx context.Context) (*T, error) {
		if !cur.Next(ctx) {
			if err := cur.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		rm := new(T)
		if err := cur.Decode(rm); err != nil {
			return nil, err
		}
		return rm, nil
	}, cur.Close), nil
}

// Update applies the batch one update at a time: fetch the current document,
// call update, copy the resulting version onto the model and upsert it by id.
// The first error stops the batch; earlier updates stay applied.
func (s *Store[T]) Update(ctx context.Context, updates []es.ReadModelUpdate, rmCtx *es.ReadModelContext, update es.UpdateFunc[T]) error {
	coll, err := s.collection()
	if err != nil {
		return err
	}

	if s.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		ids := make([]string, 0, len(updates))
		for _, u := range updates {
			ids = append(ids, u.ReadModelID)
		}
		slices.Sort(ids)
		ids = slices.Compact(ids)
		s.logger.Debugf("Updating read models of type '%s' with _ids '%s' in collection '%s'", s.typeName, strings.Join(ids, ", "), coll.Name())
	}

	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, err := s.fetch(ctx, coll, u.ReadModelID)
		if err != nil {
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

		doc, err := encode(next.ReadModel, next.Version)
		if err != nil {
			return fmt.Errorf("encode %s %q: %w", s.typeName, u.ReadModelID, err)
		}
		if _, err := coll.ReplaceOne(ctx, bson.M{"_id": u.ReadModelID}, doc, options.Replace().SetUpsert(true)); err != nil {
			return err
		}
	}

	return nil
}

// fetch loads a document for Update, mapping a missing document to an empty
// envelope.
func (s *Store[T]) fetch(ctx context.Context, coll *mongo.Collection, id string) (es.ReadModelEnvelope[T], error) {
	env, err := s.load(ctx, coll, id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return env, nil
	}
	return env, err
}

func (s *Store[T]) load(ctx context.Context, coll *mongo.Collection, id string) (es.ReadModelEnvelope[T], error) {
	raw, err := coll.FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		return es.EmptyReadModelEnvelope[T](id), err
	}

	rm := new(T)
	if err := bson.Unmarshal(raw, rm); err != nil {
		return es.EmptyReadModelEnvelope[T](id), fmt.Errorf("decode %s %q: %w", s.typeName, id, err)
	}
	return es.NewReadModelEnvelopeWithVersion(id, rm, storedVersion(raw)), nil
}

// encode marshals rm and sets its "_version" field to version, replacing any
// value the model itself maps to that field.
func encode[T any](rm *T, version uint64) (bson.D, error) {
	raw, err := bson.Marshal(rm)
	if err != nil {
		return nil, err
	}

	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc = slices.DeleteFunc(doc, func(e bson.E) bool { return e.Key == VersionField })
	return append(doc, bson.E{Key: VersionField, Value: int64(version)}), nil
}

func storedVersion(raw bson.Raw) uint64 {
	v, err := raw.LookupErr(VersionField)
	if err != nil {
		return 0
	}
	if n, ok := v.AsInt64OK(); ok && n > 0 {
		return uint64(n)
	}
	return 0
}

// Delete removes the read model with the given id. Deleting a missing read
// model is not an error.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	coll, err := s.collection()
	if err != nil {
		return err
	}

	s.logger.Infof("Deleting '%s' with id '%s', from '%s'!", s.typeName, id, coll.Name())

	_, err = coll.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// DeleteAll drops the collection of T.
func (s *Store[T]) DeleteAll(ctx context.Context) error {
	coll, err := s.collection()
	if err != nil {
		return err
	}

	s.logger.Infof("Deleting ALL '%s' by DROPPING COLLECTION '%s'!", s.typeName, coll.Name())

	return coll.Drop(ctx)
}

// Package redis stores read models as JSON values under "<collection>:<id>" keys.
// Collection names must not contain ':' so one collection's keys never match
// another's prefix.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	rdb "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	es "github.com/terraskye/eventsourcing-readstore"
)

var _ es.ReadModelStore[struct{}] = (*Store[struct{}])(nil)

const scanBatch = 100

type record[T any] struct {
	Version uint64 `json:"version"`
	Model   *T     `json:"model"`
}

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

// WithDescriptionProvider overrides how the key prefix of T is resolved.
func WithDescriptionProvider(p es.DescriptionProvider) Option {
	return func(c *config) {
		c.provider = p
	}
}

// Store persists read models of type T in Redis. Values carry the envelope
// version next to the model, so models without a version field keep it too.
// It works against a single node, a failover client or a cluster.
type Store[T any] struct {
	client   rdb.UniversalClient
	provider es.DescriptionProvider
	logger   *logrus.Entry
	typeName string
}

// NewStore creates a Store on client.
func NewStore[T any](client rdb.UniversalClient, opts ...Option) *Store[T] {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.provider == nil {
		cfg.provider = es.NewDescriptionProvider()
	}
	if cfg.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.logger = logrus.NewEntry(l)
	}

	return &Store[T]{
		client:   client,
		provider: cfg.provider,
		logger:   cfg.logger,
		typeName: reflect.TypeFor[T]().String(),
	}
}

func (s *Store[T]) prefix() (string, error) {
	desc, err := es.DescriptionFor[T](s.provider)
	if err != nil {
		return "", err
	}
	name := desc.RootCollectionName.String()
	if strings.Contains(name, ":") {
		return "", fmt.Errorf("%w: %q contains the key separator ':'", es.ErrInvalidCollectionName, name)
	}
	return name + ":", nil
}

func (s *Store[T]) key(id string) (string, error) {
	prefix, err := s.prefix()
	if err != nil {
		return "", err
	}
	return prefix + id, nil
}

// Get fetches the read model stored under id. A missing key is reported as
// es.ErrReadModelNotFound.
func (s *Store[T]) Get(ctx context.Context, id string) (es.ReadModelEnvelope[T], error) {
	key, err := s.key(id)
	if err != nil {
		return es.EmptyReadModelEnvelope[T](id), err
	}

	s.logger.Tracef("Fetching read model '%s' from key '%s'", s.typeName, key)

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, rdb.Nil) {
		return es.EmptyReadModelEnvelope[T](id), fmt.Errorf("get %s %q: %w", s.typeName, id, es.ErrReadModelNotFound)
	}
	if err != nil {
		return es.EmptyReadModelEnvelope[T](id), err
	}

	var rec record[T]
	if err := json.Unmarshal(raw, &rec); err != nil {
		return es.EmptyReadModelEnvelope[T](id), fmt.Errorf("decode %s %q: %w", s.typeName, id, err)
	}
	if rec.Model == nil {
		rec.Model = new(T)
	}
	return es.NewReadModelEnvelopeWithVersion(id, rec.Model, rec.Version), nil
}

// Update applies the batch in order, writing each result with its version.
// The first error stops the batch; earlier updates stay applied.
func (s *Store[T]) Update(ctx context.Context, updates []es.ReadModelUpdate, rmCtx *es.ReadModelContext, update es.UpdateFunc[T]) error {
	prefix, err := s.prefix()
	if err != nil {
		return err
	}
	s.logger.Debugf("Updating %d read models of type '%s' under '%s*'", len(updates), s.typeName, prefix)

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

		raw, err := json.Marshal(record[T]{Version: next.Version, Model: next.ReadModel})
		if err != nil {
			return fmt.Errorf("encode %s %q: %w", s.typeName, u.ReadModelID, err)
		}
		if err := s.client.Set(ctx, prefix+u.ReadModelID, raw, 0).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the read model stored under id. A missing key is not an error.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	key, err := s.key(id)
	if err != nil {
		return err
	}
	s.logger.Infof("Deleting '%s' with key '%s'", s.typeName, key)

	return s.client.Del(ctx, key).Err()
}

// DeleteAll removes every key of the collection. On a cluster every master
// is scanned, since SCAN only walks the node it is sent to.
func (s *Store[T]) DeleteAll(ctx context.Context) error {
	prefix, err := s.prefix()
	if err != nil {
		return err
	}
	s.logger.Infof("Deleting ALL '%s' under '%s*'", s.typeName, prefix)

	pattern := escapePattern(prefix) + "*"
	if cluster, ok := s.client.(*rdb.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *rdb.Client) error {
			return deleteMatching(ctx, node, pattern)
		})
	}
	return deleteMatching(ctx, s.client, pattern)
}

// deleteMatching scans node in batches and unlinks every matching key. Keys
// are unlinked one per command so keys of different cluster slots never
// share a command.
func deleteMatching(ctx context.Context, node rdb.Cmdable, pattern string) error {
	iter := node.Scan(ctx, 0, pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		_, err := node.Pipelined(ctx, func(p rdb.Pipeliner) error {
			for _, key := range batch {
				p.Unlink(ctx, key)
			}
			return nil
		})
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return flush()
}

var patternEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapePattern quotes the glob characters of a SCAN MATCH pattern.
func escapePattern(s string) string {
	return patternEscaper.Replace(s)
}

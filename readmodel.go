package eventsourcing

import "context"

// ReadModel represents a query-side data model in a CQRS architecture.
// Any struct can be a read model; stores persist one document per identifier
// and one collection per read model type.
type ReadModel interface {
}

// VersionedReadModel is implemented by read models that keep the version of
// the last applied event on the document itself. Stores copy the envelope
// version onto the model before persisting it, and read it back on load.
type VersionedReadModel interface {
	ReadModelVersion() uint64
	SetReadModelVersion(version uint64)
}

// ReadModelEnvelope pairs a read model with its identifier and version for the
// duration of a single store operation. It is never persisted itself.
type ReadModelEnvelope[T any] struct {
	ReadModelID string
	ReadModel   *T
	Version     uint64
}

// NewReadModelEnvelope wraps a loaded read model. When the model implements
// VersionedReadModel its stored version is carried over to the envelope.
func NewReadModelEnvelope[T any](id string, rm *T) ReadModelEnvelope[T] {
	env := ReadModelEnvelope[T]{ReadModelID: id, ReadModel: rm}
	if v, ok := any(rm).(VersionedReadModel); ok && rm != nil {
		env.Version = v.ReadModelVersion()
	}
	return env
}

// NewReadModelEnvelopeWithVersion wraps rm with an explicit version.
func NewReadModelEnvelopeWithVersion[T any](id string, rm *T, version uint64) ReadModelEnvelope[T] {
	return ReadModelEnvelope[T]{ReadModelID: id, ReadModel: rm, Version: version}
}

// EmptyReadModelEnvelope is the envelope handed to an update callback when no
// document exists yet for id.
func EmptyReadModelEnvelope[T any](id string) ReadModelEnvelope[T] {
	return ReadModelEnvelope[T]{ReadModelID: id}
}

// IsEmpty reports whether the envelope carries no read model.
func (e ReadModelEnvelope[T]) IsEmpty() bool {
	return e.ReadModel == nil
}

// ReadModelUpdate is one unit of work in an update batch: the events to fold
// into the read model identified by ReadModelID, in order.
type ReadModelUpdate struct {
	ReadModelID string
	Events      []*Envelope
}

// ReadModelContext is handed unchanged to every update callback of a batch.
type ReadModelContext struct {
	Metadata map[string]any
}

// NewReadModelContext creates a context with an empty metadata map.
func NewReadModelContext() *ReadModelContext {
	return &ReadModelContext{Metadata: make(map[string]any)}
}

// UpdateFunc computes the new state of a read model from its current envelope
// and the events of a ReadModelUpdate. The returned envelope is what the
// store persists; its Version is the authoritative read model version.
type UpdateFunc[T any] func(ctx context.Context, rmCtx *ReadModelContext, events []*Envelope, current ReadModelEnvelope[T]) (ReadModelEnvelope[T], error)

// ReadModelStore persists read models of type T.
//
// Implementations must:
//   - return an error matching ErrReadModelNotFound from Get when no document exists;
//   - apply the updates of a batch strictly one after another, in order;
//   - stop at, and return, the first error of a batch.
//
// Stores make no isolation guarantee across a batch: a concurrent writer may
// interleave between the fetch and the upsert of a single update.
type ReadModelStore[T any] interface {
	// Get fetches the read model with the given identifier.
	Get(ctx context.Context, id string) (ReadModelEnvelope[T], error)

	// Update fetches each read model of the batch (or an empty envelope when it
	// does not exist), calls update and upserts the result by identifier.
	Update(ctx context.Context, updates []ReadModelUpdate, rmCtx *ReadModelContext, update UpdateFunc[T]) error

	// Delete removes the read model with the given identifier.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every read model of type T.
	DeleteAll(ctx context.Context) error
}

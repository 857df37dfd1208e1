package eventsourcing

import (
	"errors"
	"fmt"
)

var (
	// ErrReadModelNotFound is returned when a read model does not exist.
	ErrReadModelNotFound = errors.New("read model not found")

	// ErrNilReadModel is returned when an update callback produced no read model.
	ErrNilReadModel = errors.New("update produced a nil read model")

	// ErrInvalidCollectionName is returned for collection names the database rejects.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrDuplicateHandler is raised when two appliers handle the same event type,
	// or two query handlers the same query and result type.
	ErrDuplicateHandler = errors.New("duplicate handler")

	// ErrHandlerNotFound is returned when no query handler is registered.
	ErrHandlerNotFound = errors.New("handler not found")
)

// ErrSkippedEvent is returned when a handler cannot handle the event type.
type ErrSkippedEvent struct {
	Event Event
}

func (e ErrSkippedEvent) Error() string {
	return fmt.Sprintf("skipped event of type %T", e.Event)
}

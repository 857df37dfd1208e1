package eventsourcing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a domain event describing a change that has happened to an aggregate.
type Event interface {
	AggregateID() string
	EventType() string
}

// Envelope wraps a domain event with the stream position and metadata it was
// stored with. Read model updates receive their events as envelopes.
type Envelope struct {
	EventID       uuid.UUID
	StreamID      string
	Metadata      map[string]any
	Event         Event
	Version       uint64
	GlobalVersion uint64
	OccurredAt    time.Time
}

// TypeName returns the Go type name of v, e.g. "*orders.OrderPlaced".
func TypeName(v any) string {
	return fmt.Sprintf("%T", v)
}

package eventsourcing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	streamIDKey      ctxKey = "streamID"
	aggregateIDKey   ctxKey = "aggregateID"
	eventIDKey       ctxKey = "eventID"
	versionKey       ctxKey = "version"
	globalVersionKey ctxKey = "global_version"
	occurredAtKey    ctxKey = "occurredAt"
	metadataKey      ctxKey = "metadata"
	readModelIDKey   ctxKey = "readModelID"
)

// WithEnvelope adds the position and metadata of env to the context.
func WithEnvelope(ctx context.Context, env *Envelope) context.Context {
	ctx = context.WithValue(ctx, streamIDKey, env.StreamID)
	if env.Event != nil {
		ctx = context.WithValue(ctx, aggregateIDKey, env.Event.AggregateID())
	}
	ctx = context.WithValue(ctx, eventIDKey, env.EventID)
	ctx = context.WithValue(ctx, versionKey, env.Version)
	ctx = context.WithValue(ctx, globalVersionKey, env.GlobalVersion)
	ctx = context.WithValue(ctx, occurredAtKey, env.OccurredAt)
	ctx = context.WithValue(ctx, metadataKey, env.Metadata)
	return ctx
}

// WithReadModelID records the read model currently being updated.
func WithReadModelID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, readModelIDKey, id)
}

// ReadModelIDFromContext returns the read model ID or "" if not present
func ReadModelIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, readModelIDKey)
}

// AggregateIDFromContext returns the AggregateID or "" if not present
func AggregateIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, aggregateIDKey)
}

// StreamIDFromContext returns the StreamID or "" if not present
func StreamIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, streamIDKey)
}

func stringFromContext(ctx context.Context, key ctxKey) string {
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// EventIDFromContext returns the EventID or uuid.Nil if not present
func EventIDFromContext(ctx context.Context) uuid.UUID {
	if v := ctx.Value(eventIDKey); v != nil {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// VersionFromContext returns the Version or 0 if not present
func VersionFromContext(ctx context.Context) uint64 {
	return uint64FromContext(ctx, versionKey)
}

// GlobalVersionFromContext returns the GlobalVersion or 0 if not present
func GlobalVersionFromContext(ctx context.Context) uint64 {
	return uint64FromContext(ctx, globalVersionKey)
}

func uint64FromContext(ctx context.Context, key ctxKey) uint64 {
	if v := ctx.Value(key); v != nil {
		if ver, ok := v.(uint64); ok {
			return ver
		}
	}
	return 0
}

// OccurredAtFromContext returns OccurredAt or zero time if not present
func OccurredAtFromContext(ctx context.Context) time.Time {
	if v := ctx.Value(occurredAtKey); v != nil {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// MetadataFromContext returns Metadata or nil if not present
func MetadataFromContext(ctx context.Context) map[string]any {
	if v := ctx.Value(metadataKey); v != nil {
		if md, ok := v.(map[string]any); ok {
			return md
		}
	}
	return nil
}

package eventsourcing

import (
	"context"
	"fmt"
)

// Applier folds one event type into a read model of type M.
type Applier[M any] interface {
	// EventName is the TypeName of the event handled by the applier.
	EventName() string

	// Apply mutates model with the event.
	Apply(ctx context.Context, model *M, event Event) error
}

// typedApplier is a strongly typed applier for a specific Event type E.
type typedApplier[M any, E Event] func(ctx context.Context, model *M, ev E) error

func (a typedApplier[M, E]) EventName() string {
	var zero E
	return TypeName(zero)
}

// Apply returns ErrSkippedEvent if the event is of the wrong type.
func (a typedApplier[M, E]) Apply(ctx context.Context, model *M, event Event) error {
	ev, ok := event.(E)
	if !ok {
		return &ErrSkippedEvent{Event: event}
	}
	return a(ctx, model, ev)
}

// On creates an Applier for events of type E.
//
// Example Usage:
//
//	projection := NewProjection(
//	    func(id string) *OrderSummary { return &OrderSummary{ID: id} },
//	    On(func(ctx context.Context, rm *OrderSummary, ev *OrderPlaced) error {
//	        rm.Total = ev.Total
//	        return nil
//	    }),
//	)
//	err := store.Update(ctx, updates, NewReadModelContext(), projection)
func On[M any, E Event](fn func(ctx context.Context, model *M, ev E) error) Applier[M] {
	return typedApplier[M, E](fn)
}

// NewProjection builds an UpdateFunc that folds the events of a
// ReadModelUpdate into the read model.
//
// Behavior Details:
//   - An empty envelope gets a fresh model from newModel (new(M) when newModel is nil).
//   - Events are applied in order; each applier receives a context carrying the
//     event envelope (see WithEnvelope) and the read model ID.
//   - Events without an applier are skipped.
//   - The returned envelope version is the highest event version seen and is never
//     lower than the current version.
//   - The first applier error aborts the update.
//
// Panics if two appliers handle the same event type.
func NewProjection[M any](newModel func(id string) *M, appliers ...Applier[M]) UpdateFunc[M] {
	handlers := make(map[string]Applier[M], len(appliers))
	for _, a := range appliers {
		name := a.EventName()
		if _, exists := handlers[name]; exists {
			panic(fmt.Errorf("duplicate applier for event %s: %w", name, ErrDuplicateHandler))
		}
		handlers[name] = a
	}

	if newModel == nil {
		newModel = func(string) *M { return new(M) }
	}

	return func(ctx context.Context, _ *ReadModelContext, events []*Envelope, current ReadModelEnvelope[M]) (ReadModelEnvelope[M], error) {
		model := current.ReadModel
		if model == nil {
			model = newModel(current.ReadModelID)
		}
		version := current.Version

		ctx = WithReadModelID(ctx, current.ReadModelID)
		for _, env := range events {
			if env == nil || env.Event == nil {
				continue
			}
			if env.Version > version {
				version = env.Version
			}

			h, ok := handlers[TypeName(env.Event)]
			if !ok {
				continue
			}
			if err := h.Apply(WithEnvelope(ctx, env), model, env.Event); err != nil {
				return current, fmt.Errorf("apply %s to read model %q: %w", env.Event.EventType(), current.ReadModelID, err)
			}
		}

		return NewReadModelEnvelopeWithVersion(current.ReadModelID, model, version), nil
	}
}

package fixtures

import (
	"context"

	es "github.com/terraskye/eventsourcing-readstore"
)

var _ es.VersionedReadModel = (*TestReadModel)(nil)

// TestReadModel is a versioned read model counting the TestEvents applied to it.
type TestReadModel struct {
	ID      string   `bson:"_id,omitempty" json:"id"`
	Count   int      `bson:"count" json:"count"`
	Data    []string `bson:"data,omitempty" json:"data,omitempty"`
	Version uint64   `bson:"_version" json:"version"`
}

func (m *TestReadModel) ReadModelVersion() uint64 { return m.Version }

func (m *TestReadModel) SetReadModelVersion(v uint64) { m.Version = v }

// CountingProjection folds TestEvents into a TestReadModel.
func CountingProjection() es.UpdateFunc[TestReadModel] {
	return es.NewProjection(
		func(id string) *TestReadModel { return &TestReadModel{ID: id} },
		es.On(func(ctx context.Context, rm *TestReadModel, ev TestEvent) error {
			rm.Count++
			if ev.Data != "" {
				rm.Data = append(rm.Data, ev.Data)
			}
			return nil
		}),
	)
}

// UpdateFor builds a ReadModelUpdate for id from events with sequential versions.
func UpdateFor(id string, events ...es.Event) es.ReadModelUpdate {
	return es.ReadModelUpdate{ReadModelID: id, Events: EnvelopesFromEvents(events...)}
}

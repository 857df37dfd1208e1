package mongodb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	es "github.com/terraskye/eventsourcing-readstore"
	"github.com/terraskye/eventsourcing-readstore/fixtures"
	"github.com/terraskye/eventsourcing-readstore/readstore/mongodb"
)

const collectionName = "ReadModel-Test"

func ns(mt *mtest.T) string {
	return mt.DB.Name() + "." + collectionName
}

func TestStoreGet(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "order-1"},
			{Key: "count", Value: 2},
			{Key: "_version", Value: int64(7)},
		}))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		env, err := store.Get(context.Background(), "order-1")

		require.NoError(mt, err)
		assert.Equal(mt, "order-1", env.ReadModelID)
		require.NotNil(mt, env.ReadModel)
		assert.Equal(mt, 2, env.ReadModel.Count)
		assert.Equal(mt, uint64(7), env.Version)
	})

	mt.Run("not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		env, err := store.Get(context.Background(), "missing")

		require.Error(mt, err)
		assert.ErrorIs(mt, err, es.ErrReadModelNotFound)
		assert.ErrorIs(mt, err, mongo.ErrNoDocuments)
		assert.True(mt, env.IsEmpty())
	})

	mt.Run("driver error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad value",
		}))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		_, err := store.Get(context.Background(), "order-1")

		var cmdErr mongo.CommandError
		require.ErrorAs(mt, err, &cmdErr)
		assert.Equal(mt, int32(2), cmdErr.Code)
		assert.NotErrorIs(mt, err, es.ErrReadModelNotFound)
	})

	mt.Run("invalid collection name", func(mt *mtest.T) {
		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB,
			mongodb.WithDescriptionProvider(es.NewStaticDescriptionProvider("system.profile")))

		_, err := store.Get(context.Background(), "order-1")
		assert.ErrorIs(mt, err, es.ErrInvalidCollectionName)
	})
}

func TestStoreFind(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("iterates every batch", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, ns(mt), mtest.FirstBatch,
				bson.D{{Key: "_id", Value: "a"}, {Key: "count", Value: 1}},
			),
			mtest.CreateCursorResponse(0, ns(mt), mtest.NextBatch,
				bson.D{{Key: "_id", Value: "b"}, {Key: "count", Value: 3}},
			),
		)

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		iter, err := store.Find(context.Background(), bson.M{"count": bson.M{"$gt": 0}})
		require.NoError(mt, err)

		models, err := iter.All(context.Background())
		require.NoError(mt, err)
		require.Len(mt, models, 2)
		assert.Equal(mt, "a", models[0].ID)
		assert.Equal(mt, "b", models[1].ID)
		assert.Equal(mt, 3, models[1].Count)
	})

	mt.Run("nil filter matches everything", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		iter, err := store.Find(context.Background(), nil)
		require.NoError(mt, err)

		assert.False(mt, iter.Next(context.Background()))
		assert.NoError(mt, iter.Err())
	})

	mt.Run("close stops iteration", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "a"}},
			bson.D{{Key: "_id", Value: "b"}},
		))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		iter, err := store.Find(context.Background(), bson.D{})
		require.NoError(mt, err)

		require.True(mt, iter.Next(context.Background()))
		assert.Equal(mt, "a", iter.Value().ID)
		require.NoError(mt, iter.Close(context.Background()))
		assert.False(mt, iter.Next(context.Background()))
	})

	mt.Run("driver error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "unknown operator: $bogus",
		}))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		iter, err := store.Find(context.Background(), bson.M{"count": bson.M{"$bogus": 1}})

		assert.Nil(mt, iter)
		var cmdErr mongo.CommandError
		assert.ErrorAs(mt, err, &cmdErr)
	})
}

func TestStoreUpdate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("creates missing read model", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		var saved *fixtures.TestReadModel
		project := fixtures.CountingProjection()
		update := func(ctx context.Context, rmCtx *es.ReadModelContext, events []*es.Envelope, current es.ReadModelEnvelope[fixtures.TestReadModel]) (es.ReadModelEnvelope[fixtures.TestReadModel], error) {
			assert.True(mt, current.IsEmpty())
			next, err := project(ctx, rmCtx, events, current)
			saved = next.ReadModel
			return next, err
		}

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		err := store.Update(context.Background(), []es.ReadModelUpdate{
			fixtures.UpdateFor("order-1", fixtures.OrderCreatedEvent, fixtures.OrderUpdatedEvent),
		}, es.NewReadModelContext(), update)

		require.NoError(mt, err)
		require.NotNil(mt, saved)
		assert.Equal(mt, "order-1", saved.ID)
		assert.Equal(mt, 2, saved.Count)
		assert.Equal(mt, uint64(2), saved.Version, "envelope version is copied onto the model")
	})

	mt.Run("updates existing read model", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "order-1"},
				{Key: "count", Value: 5},
				{Key: "_version", Value: int64(5)},
			}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		var got es.ReadModelEnvelope[fixtures.TestReadModel]
		update := func(ctx context.Context, _ *es.ReadModelContext, _ []*es.Envelope, current es.ReadModelEnvelope[fixtures.TestReadModel]) (es.ReadModelEnvelope[fixtures.TestReadModel], error) {
			got = current
			current.ReadModel.Count++
			return es.NewReadModelEnvelopeWithVersion(current.ReadModelID, current.ReadModel, 6), nil
		}

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		err := store.Update(context.Background(), []es.ReadModelUpdate{{ReadModelID: "order-1"}}, nil, update)

		require.NoError(mt, err)
		require.False(mt, got.IsEmpty())
		assert.Equal(mt, uint64(6), got.ReadModel.Version)
		assert.Equal(mt, 6, got.ReadModel.Count)
	})

	mt.Run("passes the read model context through", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		rmCtx := es.NewReadModelContext()
		rmCtx.Metadata["source"] = "replay"

		var seen []string
		update := func(_ context.Context, c *es.ReadModelContext, _ []*es.Envelope, current es.ReadModelEnvelope[fixtures.TestReadModel]) (es.ReadModelEnvelope[fixtures.TestReadModel], error) {
			assert.Same(mt, rmCtx, c)
			seen = append(seen, current.ReadModelID)
			return es.NewReadModelEnvelope(current.ReadModelID, &fixtures.TestReadModel{ID: current.ReadModelID}), nil
		}

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		err := store.Update(context.Background(), []es.ReadModelUpdate{{ReadModelID: "b"}, {ReadModelID: "a"}}, rmCtx, update)

		require.NoError(mt, err)
		assert.Equal(mt, []string{"b", "a"}, seen, "updates run in batch order")
	})

	mt.Run("callback error stops the batch", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		boom := errors.New("boom")
		calls := 0
		update := func(context.Context, *es.ReadModelContext, []*es.Envelope, es.ReadModelEnvelope[fixtures.TestReadModel]) (es.ReadModelEnvelope[fixtures.TestReadModel], error) {
			calls++
			return es.ReadModelEnvelope[fixtures.TestReadModel]{}, boom
		}

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		err := store.Update(context.Background(), []es.ReadModelUpdate{{ReadModelID: "a"}, {ReadModelID: "b"}}, nil, update)

		assert.ErrorIs(mt, err, boom)
		assert.Equal(mt, 1, calls)
	})

	mt.Run("nil read model is rejected", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		update := func(_ context.Context, _ *es.ReadModelContext, _ []*es.Envelope, current es.ReadModelEnvelope[fixtures.TestReadModel]) (es.ReadModelEnvelope[fixtures.TestReadModel], error) {
			return current, nil
		}

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		err := store.Update(context.Background(), []es.ReadModelUpdate{{ReadModelID: "a"}}, nil, update)

		assert.ErrorIs(mt, err, es.ErrNilReadModel)
	})

	mt.Run("upsert error is returned", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 66, Message: "immutable field '_id'"}),
		)

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		err := store.Update(context.Background(), []es.ReadModelUpdate{fixtures.UpdateFor("a", fixtures.OrderCreatedEvent)}, nil, fixtures.CountingProjection())

		var writeErr mongo.WriteException
		require.ErrorAs(mt, err, &writeErr)
		assert.Equal(mt, 66, writeErr.WriteErrors[0].Code)
	})

	mt.Run("cancelled context", func(mt *mtest.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		err := store.Update(ctx, []es.ReadModelUpdate{{ReadModelID: "a"}}, nil, fixtures.CountingProjection())

		assert.ErrorIs(mt, err, context.Canceled)
	})
}

func TestStoreDelete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("delete one", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		logger, hook := test.NewNullLogger()
		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB, mongodb.WithLogger(logrus.NewEntry(logger)))

		require.NoError(mt, store.Delete(context.Background(), "order-1"))
		require.NotNil(mt, hook.LastEntry())
		assert.Equal(mt, logrus.InfoLevel, hook.LastEntry().Level)
		assert.Contains(mt, hook.LastEntry().Message, "'order-1'")
		assert.Contains(mt, hook.LastEntry().Message, collectionName)
	})

	mt.Run("delete missing is not an error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		assert.NoError(mt, store.Delete(context.Background(), "missing"))
	})

	mt.Run("drop collection", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		logger, hook := test.NewNullLogger()
		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB, mongodb.WithLogger(logrus.NewEntry(logger)))

		require.NoError(mt, store.DeleteAll(context.Background()))
		require.NotNil(mt, hook.LastEntry())
		assert.Contains(mt, hook.LastEntry().Message, "DROPPING COLLECTION '"+collectionName+"'")
	})

	mt.Run("drop missing collection", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    26,
			Name:    "NamespaceNotFound",
			Message: "ns not found",
		}))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		assert.NoError(mt, store.DeleteAll(context.Background()))
	})
}

func TestStoreAccessors(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("defaults", func(mt *mtest.T) {
		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)

		assert.Same(mt, mt.DB, store.Database())
		assert.NotNil(mt, store.Logger())
		desc, err := es.DescriptionFor[fixtures.TestReadModel](store.DescriptionProvider())
		require.NoError(mt, err)
		assert.Equal(mt, es.RootCollectionName(collectionName), desc.RootCollectionName)
	})

	mt.Run("update logs the sorted distinct ids", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		logger, hook := test.NewNullLogger()
		logger.SetLevel(logrus.DebugLevel)
		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB, mongodb.WithLogger(logrus.NewEntry(logger)))

		err := store.Update(context.Background(), []es.ReadModelUpdate{
			fixtures.UpdateFor("c", fixtures.OrderCreatedEvent),
			fixtures.UpdateFor("a", fixtures.OrderCreatedEvent),
			fixtures.UpdateFor("c", fixtures.OrderUpdatedEvent),
		}, nil, fixtures.CountingProjection())
		require.NoError(mt, err)

		require.Len(mt, hook.AllEntries(), 1)
		assert.Equal(mt, logrus.DebugLevel, hook.LastEntry().Level)
		assert.Contains(mt, hook.LastEntry().Message, "_ids 'a, c'")
	})
}

// PlainReadModel declares no version field.
type PlainReadModel struct {
	ID    string `bson:"_id,omitempty"`
	Count int    `bson:"count"`
}

func (PlainReadModel) CollectionName() string { return collectionName }

func TestStoreVersionWithoutVersionField(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("update writes the envelope version", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		store := mongodb.NewStore[PlainReadModel](mt.DB)
		err := store.Update(context.Background(), []es.ReadModelUpdate{{ReadModelID: "a"}}, nil,
			func(_ context.Context, _ *es.ReadModelContext, _ []*es.Envelope, current es.ReadModelEnvelope[PlainReadModel]) (es.ReadModelEnvelope[PlainReadModel], error) {
				return es.NewReadModelEnvelopeWithVersion(current.ReadModelID, &PlainReadModel{ID: "a", Count: 1}, 5), nil
			})
		require.NoError(mt, err)

		require.NotNil(mt, mt.GetStartedEvent())
		update := mt.GetStartedEvent()
		require.NotNil(mt, update)
		doc := update.Command.Lookup("updates", "0", "u").Document()
		assert.Equal(mt, int64(5), doc.Lookup(mongodb.VersionField).Int64())
		assert.Equal(mt, int32(1), doc.Lookup("count").Int32())
	})

	mt.Run("get reads the stored version", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "a"},
			{Key: "count", Value: 1},
			{Key: mongodb.VersionField, Value: int64(5)},
		}))

		store := mongodb.NewStore[PlainReadModel](mt.DB)
		env, err := store.Get(context.Background(), "a")

		require.NoError(mt, err)
		assert.Equal(mt, uint64(5), env.Version)
		assert.Equal(mt, 1, env.ReadModel.Count)
	})

	mt.Run("update sees the stored version", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "a"},
				{Key: "count", Value: 1},
				{Key: mongodb.VersionField, Value: int64(5)},
			}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		var seen uint64
		store := mongodb.NewStore[PlainReadModel](mt.DB)
		err := store.Update(context.Background(), []es.ReadModelUpdate{{ReadModelID: "a"}}, nil,
			func(_ context.Context, _ *es.ReadModelContext, _ []*es.Envelope, current es.ReadModelEnvelope[PlainReadModel]) (es.ReadModelEnvelope[PlainReadModel], error) {
				seen = current.Version
				current.ReadModel.Count++
				return es.NewReadModelEnvelopeWithVersion(current.ReadModelID, current.ReadModel, current.Version+1), nil
			})

		require.NoError(mt, err)
		assert.Equal(mt, uint64(5), seen)
	})
}

func TestStoreCommands(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get filters by id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		_, _ = store.Get(context.Background(), "order-1")

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "find", evt.CommandName)
		assert.Equal(mt, collectionName, evt.Command.Lookup("find").StringValue())
		assert.Equal(mt, "order-1", evt.Command.Lookup("filter", "_id").StringValue())
	})

	mt.Run("update upserts by id", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt), mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		require.NoError(mt, store.Update(context.Background(), []es.ReadModelUpdate{
			fixtures.UpdateFor("order-1", fixtures.OrderCreatedEvent, fixtures.OrderUpdatedEvent),
		}, nil, fixtures.CountingProjection()))

		find := mt.GetStartedEvent()
		require.NotNil(mt, find)
		assert.Equal(mt, "find", find.CommandName)
		assert.Equal(mt, "order-1", find.Command.Lookup("filter", "_id").StringValue())

		update := mt.GetStartedEvent()
		require.NotNil(mt, update)
		assert.Equal(mt, "update", update.CommandName)
		assert.Equal(mt, collectionName, update.Command.Lookup("update").StringValue())
		assert.Equal(mt, "order-1", update.Command.Lookup("updates", "0", "q", "_id").StringValue())
		assert.True(mt, update.Command.Lookup("updates", "0", "upsert").Boolean())

		doc := update.Command.Lookup("updates", "0", "u").Document()
		assert.Equal(mt, "order-1", doc.Lookup("_id").StringValue())
		assert.Equal(mt, int64(2), doc.Lookup(mongodb.VersionField).Int64())

		assert.Nil(mt, mt.GetStartedEvent())
	})

	mt.Run("delete filters by id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		require.NoError(mt, store.Delete(context.Background(), "order-1"))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "delete", evt.CommandName)
		assert.Equal(mt, collectionName, evt.Command.Lookup("delete").StringValue())
		assert.Equal(mt, "order-1", evt.Command.Lookup("deletes", "0", "q", "_id").StringValue())
	})

	mt.Run("delete all drops the collection", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		store := mongodb.NewStore[fixtures.TestReadModel](mt.DB)
		require.NoError(mt, store.DeleteAll(context.Background()))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "drop", evt.CommandName)
		assert.Equal(mt, collectionName, evt.Command.Lookup("drop").StringValue())
	})
}

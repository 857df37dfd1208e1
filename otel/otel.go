package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/terraskye/eventsourcing-readstore"
	instrumentationVersion = "0.1.0"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	// Read model attributes
	AttrReadModelType    = attribute.Key("eventsourcing.readmodel.type")
	AttrReadModelID      = attribute.Key("eventsourcing.readmodel.id")
	AttrReadModelVersion = attribute.Key("eventsourcing.readmodel.version")
	AttrUpdateCount      = attribute.Key("eventsourcing.readmodel.update_count")

	// Event attributes
	AttrEventCount = attribute.Key("eventsourcing.events.count")

	// Query attributes
	AttrQueryType = attribute.Key("eventsourcing.query.type")
	AttrQueryID   = attribute.Key("eventsourcing.query.id")

	// Error attributes
	AttrErrorType = attribute.Key("eventsourcing.error.type")

	// Operation attributes
	AttrOperation = attribute.Key("eventsourcing.operation")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))

	// Read model store metrics
	StoreOperations, _ = meter.Int64Counter(
		"eventsourcing.readstore.operations",
		metric.WithDescription("Number of read model store operations"),
		metric.WithUnit("{operation}"),
	)

	StoreDuration, _ = meter.Float64Histogram(
		"eventsourcing.readstore.duration",
		metric.WithDescription("Read model store operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	StoreErrors, _ = meter.Int64Counter(
		"eventsourcing.readstore.errors",
		metric.WithDescription("Number of read model store errors"),
		metric.WithUnit("{error}"),
	)

	ReadModelsUpdated, _ = meter.Int64Counter(
		"eventsourcing.readmodels.updated",
		metric.WithDescription("Number of read models written by update batches"),
		metric.WithUnit("{readmodel}"),
	)

	EventsApplied, _ = meter.Int64Counter(
		"eventsourcing.events.applied",
		metric.WithDescription("Number of events folded into read models"),
		metric.WithUnit("{event}"),
	)

	// Query metrics
	QueriesHandled, _ = meter.Int64Counter(
		"eventsourcing.queries.handled",
		metric.WithDescription("Total number of queries handled"),
		metric.WithUnit("{query}"),
	)

	QueriesDuration, _ = meter.Float64Histogram(
		"eventsourcing.queries.duration",
		metric.WithDescription("Query handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	QueriesInFlight, _ = meter.Int64UpDownCounter(
		"eventsourcing.queries.in_flight",
		metric.WithDescription("Number of queries currently being processed"),
		metric.WithUnit("{query}"),
	)

	QueriesFailed, _ = meter.Int64Counter(
		"eventsourcing.queries.failed",
		metric.WithDescription("Number of failed queries"),
		metric.WithUnit("{query}"),
	)
)

package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/okrd"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Aggregate operation metrics
	AggregatesSeededTotal  metric.Int64Counter
	ObjectivesCreatedTotal metric.Int64Counter
	ObjectivesDeletedTotal metric.Int64Counter
	KeyResultsCreatedTotal metric.Int64Counter
	KeyResultsUpdatedTotal metric.Int64Counter
	KeyResultsDeletedTotal metric.Int64Counter

	// Authorization metrics
	AuthzChecksTotal metric.Int64Counter
	AuthzDeniedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.AggregatesSeededTotal, _ = meter.Int64Counter(
		"okrd.aggregates.seeded.total",
		metric.WithDescription("Total number of default aggregates seeded for new organizations"),
		metric.WithUnit("{aggregate}"),
	)

	m.ObjectivesCreatedTotal, _ = meter.Int64Counter(
		"okrd.objectives.created.total",
		metric.WithDescription("Total number of objectives created"),
		metric.WithUnit("{objective}"),
	)

	m.ObjectivesDeletedTotal, _ = meter.Int64Counter(
		"okrd.objectives.deleted.total",
		metric.WithDescription("Total number of objective delete operations"),
		metric.WithUnit("{objective}"),
	)

	m.KeyResultsCreatedTotal, _ = meter.Int64Counter(
		"okrd.keyresults.created.total",
		metric.WithDescription("Total number of key results created"),
		metric.WithUnit("{key_result}"),
	)

	m.KeyResultsUpdatedTotal, _ = meter.Int64Counter(
		"okrd.keyresults.updated.total",
		metric.WithDescription("Total number of key result attainment updates"),
		metric.WithUnit("{key_result}"),
	)

	m.KeyResultsDeletedTotal, _ = meter.Int64Counter(
		"okrd.keyresults.deleted.total",
		metric.WithDescription("Total number of key result delete operations"),
		metric.WithUnit("{key_result}"),
	)

	m.AuthzChecksTotal, _ = meter.Int64Counter(
		"okrd.authz.checks.total",
		metric.WithDescription("Total number of policy engine permission checks"),
		metric.WithUnit("{check}"),
	)

	m.AuthzDeniedTotal, _ = meter.Int64Counter(
		"okrd.authz.denied.total",
		metric.WithDescription("Total number of denied permission checks"),
		metric.WithUnit("{check}"),
	)

	return m
}

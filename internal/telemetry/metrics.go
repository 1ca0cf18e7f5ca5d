package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName names the meter for synchronization instruments
const SyncMetricsMeterName = "github.com/stacklok/catalog-sync-server/sync"

// SyncMetrics holds the instruments recorded by the orchestrator.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	executionDuration metric.Float64Histogram
	executions        metric.Int64Counter
	storeDuration     metric.Float64Histogram
	storeErrors       metric.Int64Counter
	productsWritten   metric.Int64Counter
}

// NewSyncMetrics creates the instruments. A nil provider returns nil.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(SyncMetricsMeterName)

	executionDuration, err := meter.Float64Histogram(
		"catalog_sync_execution_duration_seconds",
		metric.WithDescription("Duration of synchronization executions in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, err
	}

	executions, err := meter.Int64Counter(
		"catalog_sync_executions_total",
		metric.WithDescription("Finished synchronization executions by terminal status"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	storeDuration, err := meter.Float64Histogram(
		"catalog_sync_store_duration_seconds",
		metric.WithDescription("Duration of a single store pipeline in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	storeErrors, err := meter.Int64Counter(
		"catalog_sync_store_errors_total",
		metric.WithDescription("Store pipelines that failed, by stage"),
		metric.WithUnit("{store}"),
	)
	if err != nil {
		return nil, err
	}

	productsWritten, err := meter.Int64Counter(
		"catalog_sync_products_written_total",
		metric.WithDescription("Product records inserted into the catalog"),
		metric.WithUnit("{product}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		executionDuration: executionDuration,
		executions:        executions,
		storeDuration:     storeDuration,
		storeErrors:       storeErrors,
		productsWritten:   productsWritten,
	}, nil
}

// RecordExecution records a finished execution
func (m *SyncMetrics) RecordExecution(ctx context.Context, syncConfigID, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("sync_config", syncConfigID),
		attribute.String("status", status),
	)
	m.executionDuration.Record(ctx, duration.Seconds(), attrs)
	m.executions.Add(ctx, 1, attrs)
}

// RecordStore records one store pipeline. stage is empty on success.
func (m *SyncMetrics) RecordStore(ctx context.Context, provider, stage string, duration time.Duration, written int) {
	if m == nil {
		return
	}
	success := stage == ""
	m.storeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
	))
	if !success {
		m.storeErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("stage", stage),
		))
		return
	}
	if written > 0 {
		m.productsWritten.Add(ctx, int64(written), metric.WithAttributes(attribute.String("provider", provider)))
	}
}

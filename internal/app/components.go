package app

import (
	"github.com/stacklok/catalog-sync-server/internal/app/storage"
	"github.com/stacklok/catalog-sync-server/internal/sync/coordinator"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
	"github.com/stacklok/catalog-sync-server/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Orchestrator starts, tracks and cancels executions
	Orchestrator coordinator.Orchestrator

	// Tracker is the execution audit log
	Tracker state.ExecutionTracker

	// Storage owns the backend shared by the product store and the tracker
	Storage storage.Factory

	// Telemetry holds the tracer and meter providers (optional)
	Telemetry *telemetry.Telemetry

	// closers release auxiliary resources such as the fetch cache client
	closers []func() error
}

// Package storage provides factory functions for creating storage-dependent components.
// It implements the Abstract Factory pattern so the product store and the execution
// tracker always share a compatible backend.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
	"github.com/stacklok/catalog-sync-server/internal/sync/writer"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates storage-dependent components as a family.
//
// The factory encapsulates the creation of:
// - ProductStore: the per-store product table the pipeline reads and replaces
// - ExecutionTracker: the audit log of executions
//
// It also manages the lifecycle of storage resources such as database connections.
type Factory interface {
	// CreateProductStore returns the product store. Repeated calls return the same store.
	CreateProductStore(ctx context.Context) (writer.ProductStore, error)

	// CreateExecutionTracker returns the execution tracker. Repeated calls return the same tracker.
	CreateExecutionTracker(ctx context.Context) (state.ExecutionTracker, error)

	// Cleanup releases any resources held by this factory.
	// For database factories, this closes the connection pool.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeMemory:
		return NewMemoryFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}

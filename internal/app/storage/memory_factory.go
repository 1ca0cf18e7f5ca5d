package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
	"github.com/stacklok/catalog-sync-server/internal/sync/writer"
)

// MemoryFactory creates in-process storage components. Data is lost on exit.
type MemoryFactory struct {
	products writer.ProductStore
	tracker  state.ExecutionTracker
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a new in-memory storage factory
func NewMemoryFactory(cfg *config.Config) (*MemoryFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	slog.Info("Created in-memory storage factory")
	return &MemoryFactory{
		products: writer.NewMemoryProductStore(),
		tracker:  state.NewMemoryTracker(),
	}, nil
}

// CreateProductStore returns the shared in-memory product store
func (m *MemoryFactory) CreateProductStore(_ context.Context) (writer.ProductStore, error) {
	return m.products, nil
}

// CreateExecutionTracker returns the shared in-memory execution tracker
func (m *MemoryFactory) CreateExecutionTracker(_ context.Context) (state.ExecutionTracker, error) {
	return m.tracker, nil
}

// Cleanup is a no-op for memory storage
func (*MemoryFactory) Cleanup() {}

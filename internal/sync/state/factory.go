package state

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/catalog-sync-server/internal/config"
)

// NewExecutionTracker creates an ExecutionTracker based on the configured storage type.
// The pool must not be nil when database storage is configured.
func NewExecutionTracker(cfg *config.Config, pool *pgxpool.Pool) (ExecutionTracker, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if pool == nil {
			return nil, fmt.Errorf("database pool is required when storage type is database")
		}
		return NewDBTracker(pool), nil
	case config.StorageTypeMemory:
		return NewMemoryTracker(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.GetStorageType())
	}
}

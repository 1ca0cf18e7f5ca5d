package writer

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/catalog-sync-server/internal/config"
)

// NewProductStore creates a ProductStore based on the configured storage type.
// A pool is required for database storage.
func NewProductStore(cfg *config.Config, pool *pgxpool.Pool) (ProductStore, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		return NewDBProductStore(pool)
	case config.StorageTypeMemory:
		return NewMemoryProductStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.GetStorageType())
	}
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/catalog-sync-server/database"
	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/db"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
	"github.com/stacklok/catalog-sync-server/internal/sync/writer"
)

// DatabaseFactory creates PostgreSQL-backed storage components
type DatabaseFactory struct {
	config *config.Config
	pool   *pgxpool.Pool

	once     sync.Once
	products writer.ProductStore
	tracker  state.ExecutionTracker
	initErr  error
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*databaseFactoryConfig)

type databaseFactoryConfig struct {
	migrate bool
	pool    *pgxpool.Pool
}

// WithMigrations applies pending schema migrations before the pool is opened
func WithMigrations(enabled bool) DatabaseFactoryOption {
	return func(c *databaseFactoryConfig) {
		c.migrate = enabled
	}
}

// WithPool uses an existing pool instead of opening one. Cleanup closes it.
func WithPool(pool *pgxpool.Pool) DatabaseFactoryOption {
	return func(c *databaseFactoryConfig) {
		c.pool = pool
	}
}

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	fc := &databaseFactoryConfig{}
	for _, opt := range opts {
		opt(fc)
	}

	if fc.migrate {
		connStr, err := cfg.Database.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to build connection string: %w", err)
		}
		slog.Info("Applying database migrations")
		if err := database.MigrateUp(connStr); err != nil {
			return nil, err
		}
	}

	pool := fc.pool
	if pool == nil {
		var err error
		pool, err = db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
	}

	slog.Info("Created database-backed storage factory")
	return &DatabaseFactory{config: cfg, pool: pool}, nil
}

func (d *DatabaseFactory) init() {
	d.once.Do(func() {
		d.products, d.initErr = writer.NewProductStore(d.config, d.pool)
		if d.initErr != nil {
			return
		}
		d.tracker, d.initErr = state.NewExecutionTracker(d.config, d.pool)
	})
}

// CreateProductStore returns the PostgreSQL product store
func (d *DatabaseFactory) CreateProductStore(_ context.Context) (writer.ProductStore, error) {
	d.init()
	return d.products, d.initErr
}

// CreateExecutionTracker returns the PostgreSQL execution tracker
func (d *DatabaseFactory) CreateExecutionTracker(_ context.Context) (state.ExecutionTracker, error) {
	d.init()
	return d.tracker, d.initErr
}

// Cleanup closes the connection pool
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

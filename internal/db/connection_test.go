package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/catalog-sync-server/internal/config"
)

func TestNewPool_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.DatabaseConfig
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "database configuration is required"},
		{name: "missing host", cfg: &config.DatabaseConfig{Port: 5432, User: "u", Database: "d"}, wantErr: "host"},
		{name: "missing port", cfg: &config.DatabaseConfig{Host: "h", User: "u", Database: "d"}, wantErr: "port"},
		{name: "missing user", cfg: &config.DatabaseConfig{Host: "h", Port: 5432, Database: "d"}, wantErr: "user"},
		{name: "missing database", cfg: &config.DatabaseConfig{Host: "h", Port: 5432, User: "u"}, wantErr: "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPool(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyPoolSettings(t *testing.T) {
	t.Parallel()

	poolCfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/db")
	require.NoError(t, err)

	require.NoError(t, applyPoolSettings(poolCfg, &config.DatabaseConfig{
		MaxOpenConns:    8,
		MaxIdleConns:    20,
		ConnMaxLifetime: "1h",
	}))
	assert.Equal(t, int32(8), poolCfg.MaxConns)
	assert.Equal(t, int32(8), poolCfg.MinConns)
	assert.Equal(t, time.Hour, poolCfg.MaxConnLifetime)

	err = applyPoolSettings(poolCfg, &config.DatabaseConfig{ConnMaxLifetime: "soon"})
	assert.ErrorContains(t, err, "invalid connection max lifetime")
}

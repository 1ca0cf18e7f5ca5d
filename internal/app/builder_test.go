package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/catalog-sync-server/internal/app/storage"
	storagemocks "github.com/stacklok/catalog-sync-server/internal/app/storage/mocks"
	"github.com/stacklok/catalog-sync-server/internal/config"
	notifymocks "github.com/stacklok/catalog-sync-server/internal/notify/mocks"
	"github.com/stacklok/catalog-sync-server/internal/status"
	pkgsync "github.com/stacklok/catalog-sync-server/internal/sync"
	syncmocks "github.com/stacklok/catalog-sync-server/internal/sync/mocks"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
)

// createValidTestConfig returns a memory-backed configuration with one sync configuration
func createValidTestConfig(t *testing.T) *config.Config {
	t.Helper()

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("secret\n"), 0o600))

	return &config.Config{
		Integrations: []config.IntegrationConfig{
			{ID: "rp-main", Provider: config.ProviderRP, BaseURL: "http://rp.invalid", TokenFile: tokenFile},
		},
		SyncConfigurations: []config.SyncConfiguration{
			{ID: "nightly-rp", SourceIntegrationID: "rp-main", StoreIDs: []int64{1, 2}},
		},
	}
}

func TestBaseConfig(t *testing.T) {
	t.Parallel()

	built, err := baseConfig(WithConfig(&config.Config{}))
	require.NoError(t, err)
	assert.Equal(t, defaultHTTPAddress, built.address)
	assert.Equal(t, defaultRequestTimeout, built.requestTimeout)

	_, err = baseConfig()
	require.EqualError(t, err, "config cannot be nil")
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr    string
		wantErr bool
	}{
		{addr: ":9090"},
		{addr: "localhost:8080"},
		{addr: "127.0.0.1:0"},
		{addr: "", wantErr: true},
		{addr: "8080", wantErr: true},
		{addr: "localhost:", wantErr: true},
		{addr: "example:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()

			built, err := baseConfig(WithConfig(&config.Config{}), WithAddress(tt.addr))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, built.address)
		})
	}
}

func TestBuildPayloadCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	tests := []struct {
		name      string
		cfg       *config.FetchCacheConfig
		wantCache bool
		wantClose bool
		wantErr   string
	}{
		{name: "unset", cfg: nil},
		{name: "none", cfg: &config.FetchCacheConfig{Type: config.CacheTypeNone}},
		{name: "memory", cfg: &config.FetchCacheConfig{Type: config.CacheTypeMemory}, wantCache: true},
		{
			name:      "redis",
			cfg:       &config.FetchCacheConfig{Type: config.CacheTypeRedis, Redis: &config.RedisConfig{Address: mr.Addr(), KeyPrefix: "test:"}},
			wantCache: true,
			wantClose: true,
		},
		{name: "redis without settings", cfg: &config.FetchCacheConfig{Type: config.CacheTypeRedis}, wantErr: "redis settings are required"},
		{name: "unknown", cfg: &config.FetchCacheConfig{Type: "disk"}, wantErr: "unknown fetch cache type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cache, closeFn, err := buildPayloadCache(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCache, cache != nil)
			assert.Equal(t, tt.wantClose, closeFn != nil)

			if cache == nil {
				return
			}
			ctx := context.Background()
			require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
			got, ok, err := cache.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("v"), got)
			if closeFn != nil {
				require.NoError(t, closeFn())
			}
		})
	}
}

func TestNewSyncApp_StorageFailure(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	factory := storagemocks.NewMockFactory(ctrl)
	factory.EXPECT().CreateProductStore(gomock.Any()).Return(nil, errors.New("pool exhausted"))
	factory.EXPECT().Cleanup()

	_, err := NewSyncApp(context.Background(),
		WithConfig(createValidTestConfig(t)),
		WithStorageFactory(factory),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool exhausted")
}

func TestNewSyncApp_EndToEnd(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().SyncStore(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, req pkgsync.StoreRequest) (*pkgsync.StoreResult, error) {
			assert.Equal(t, config.ProviderRP, req.Integration.Provider)
			assert.Equal(t, "secret", req.Integration.Token)
			return &pkgsync.StoreResult{
				StoreID: req.StoreID,
				Fetched: 4,
				Sent:    3,
				Stats:   pkgsync.Stats{Added: 3},
			}, nil
		})

	app, err := NewSyncApp(ctx,
		WithConfig(createValidTestConfig(t)),
		WithSyncManager(manager),
		WithNotifier(notifymocks.NewMockNotifier(ctrl)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Stop(5 * time.Second) })

	handler := app.GetHTTPServer().Handler

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sync-configurations/nightly-rp/executions", nil))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var started status.Execution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &started))
	assert.Equal(t, status.StatusPending, started.Status)

	app.Orchestrator().Wait()

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/executions/"+started.ID.String(), nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var finished status.Execution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &finished))
	assert.Equal(t, status.StatusCompleted, finished.Status)
	assert.Equal(t, 2, finished.Summary.StoresProcessed)
	assert.Equal(t, 6, finished.Summary.ProductsSent)
	assert.Equal(t, 6, finished.Summary.ProductsAdded)
	require.NotNil(t, finished.CompletedAt)
}

func TestNewSyncApp_RecoversInterrupted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := createValidTestConfig(t)
	factory, err := storage.NewMemoryFactory(cfg)
	require.NoError(t, err)

	tracker, err := factory.CreateExecutionTracker(ctx)
	require.NoError(t, err)
	id := "nightly-rp"
	leftover := status.NewExecution(&id, 2, time.Now())
	require.NoError(t, leftover.Transition(status.StatusRunning, time.Now()))
	require.NoError(t, tracker.Create(ctx, leftover))

	app, err := NewSyncApp(ctx, WithConfig(cfg), WithStorageFactory(factory))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Stop(5 * time.Second) })

	require.NoError(t, app.Recover(ctx))

	got, err := app.Tracker().Get(ctx, leftover.ID)
	require.NoError(t, err)
	assert.Equal(t, status.StatusFailed, got.Status)
	assert.Equal(t, "interrupted", got.ErrorMessage)

	execs, err := app.Tracker().List(ctx, state.ListFilter{SyncConfigID: id})
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

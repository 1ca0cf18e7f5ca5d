package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/catalog-sync-server/internal/api"
	"github.com/stacklok/catalog-sync-server/internal/config"
	coordmocks "github.com/stacklok/catalog-sync-server/internal/sync/coordinator/mocks"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
	statemocks "github.com/stacklok/catalog-sync-server/internal/sync/state/mocks"
	"github.com/stacklok/catalog-sync-server/internal/versions"
)

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	// health never touches its dependencies
	server := api.NewServer(coordmocks.NewMockOrchestrator(ctrl), statemocks.NewMockExecutionTracker(ctrl), &config.Config{})

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var response api.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		listErr        error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "store answers",
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name:           "store unavailable",
			listErr:        errors.New("connection refused"),
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			tracker := statemocks.NewMockExecutionTracker(ctrl)
			tracker.EXPECT().List(gomock.Any(), state.ListFilter{Limit: 1}).Return(nil, tt.listErr)

			server := api.NewServer(coordmocks.NewMockOrchestrator(ctrl), tracker, &config.Config{})

			rr := httptest.NewRecorder()
			server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readiness", nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			var response api.ReadinessResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedBody, response.Status)
			if tt.listErr != nil {
				assert.Contains(t, response.Error, "connection refused")
			}
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	server := api.NewServer(coordmocks.NewMockOrchestrator(ctrl), statemocks.NewMockExecutionTracker(ctrl), &config.Config{})

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestMetricsHandlerMounted(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	scrape := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("catalog_sync_executions_total 1\n"))
	})

	tests := []struct {
		name     string
		opts     []api.ServerOption
		wantCode int
	}{
		{name: "mounted", opts: []api.ServerOption{api.WithMetricsHandler("/metrics", scrape)}, wantCode: http.StatusOK},
		{name: "absent", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := api.NewServer(coordmocks.NewMockOrchestrator(ctrl), statemocks.NewMockExecutionTracker(ctrl), &config.Config{}, tt.opts...)

			rr := httptest.NewRecorder()
			server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestWithMiddlewares(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	server := api.NewServer(
		coordmocks.NewMockOrchestrator(ctrl),
		statemocks.NewMockExecutionTracker(ctrl),
		&config.Config{},
		api.WithMiddlewares(mark("first"), api.LoggingMiddleware),
		api.WithMiddlewares(mark("second")),
	)

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"first", "second"}, order)
}

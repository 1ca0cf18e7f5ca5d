package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	v1 "github.com/stacklok/catalog-sync-server/internal/api/v1"
	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/status"
	"github.com/stacklok/catalog-sync-server/internal/sync/coordinator"
	coordmocks "github.com/stacklok/catalog-sync-server/internal/sync/coordinator/mocks"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
	statemocks "github.com/stacklok/catalog-sync-server/internal/sync/state/mocks"
)

func testConfig() *config.Config {
	return &config.Config{
		SyncConfigurations: []config.SyncConfiguration{
			{ID: "nightly-rp", SourceIntegrationID: "rp-main", StoreIDs: []int64{1, 2}},
		},
	}
}

func configID(s string) *string { return &s }

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestStartExecution(t *testing.T) {
	t.Parallel()

	pending := status.NewExecution(configID("nightly-rp"), 2, time.Now())

	tests := []struct {
		name       string
		path       string
		setupMock  func(*coordmocks.MockOrchestrator)
		wantStatus int
		wantBody   string
	}{
		{
			name: "accepted",
			path: "/sync-configurations/nightly-rp/executions",
			setupMock: func(m *coordmocks.MockOrchestrator) {
				m.EXPECT().Start(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, sc *config.SyncConfiguration) (*status.Execution, error) {
						assert.Equal(t, "nightly-rp", sc.ID)
						return pending.Clone(), nil
					})
			},
			wantStatus: http.StatusAccepted,
			wantBody:   `"status":"pending"`,
		},
		{
			name:       "unknown configuration",
			path:       "/sync-configurations/weekly/executions",
			setupMock:  func(*coordmocks.MockOrchestrator) {},
			wantStatus: http.StatusNotFound,
			wantBody:   "sync configuration not found",
		},
		{
			name: "already active",
			path: "/sync-configurations/nightly-rp/executions",
			setupMock: func(m *coordmocks.MockOrchestrator) {
				m.EXPECT().Start(gomock.Any(), gomock.Any()).Return(nil, state.ErrExecutionConflict)
			},
			wantStatus: http.StatusConflict,
			wantBody:   "already pending or running",
		},
		{
			name: "tracker failure",
			path: "/sync-configurations/nightly-rp/executions",
			setupMock: func(m *coordmocks.MockOrchestrator) {
				m.EXPECT().Start(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			wantBody:   "failed to start execution",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			orch := coordmocks.NewMockOrchestrator(ctrl)
			tt.setupMock(orch)

			rr := serve(t, v1.Router(orch, state.NewMemoryTracker(), testConfig()), http.MethodPost, tt.path)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
			if tt.wantStatus == http.StatusAccepted {
				assert.Equal(t, "/v1/executions/"+pending.ID.String(), rr.Header().Get("Location"))
			}
		})
	}
}

func TestListExecutions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	tracker := state.NewMemoryTracker()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []*string{configID("nightly-rp"), configID("weekly"), nil} {
		exec := status.NewExecution(id, 1, base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, exec.Transition(status.StatusRunning, base))
		require.NoError(t, exec.Transition(status.StatusCompleted, base))
		require.NoError(t, tracker.Create(ctx, exec))
	}

	router := v1.Router(coordmocks.NewMockOrchestrator(ctrl), tracker, testConfig())

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{name: "all", query: "", wantStatus: http.StatusOK, wantCount: 3},
		{name: "by configuration", query: "?syncConfigId=weekly", wantStatus: http.StatusOK, wantCount: 1},
		{name: "limited", query: "?limit=2", wantStatus: http.StatusOK, wantCount: 2},
		{name: "bad limit", query: "?limit=-3", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := serve(t, router, http.MethodGet, "/executions"+tt.query)
			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp v1.ExecutionListResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCount, resp.Count)
			assert.Len(t, resp.Executions, tt.wantCount)
		})
	}
}

func TestListExecutions_TrackerError(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	tracker := statemocks.NewMockExecutionTracker(ctrl)
	tracker.EXPECT().List(gomock.Any(), state.ListFilter{Limit: state.DefaultListLimit}).
		Return(nil, state.ErrPersistence)

	rr := serve(t, v1.Router(coordmocks.NewMockOrchestrator(ctrl), tracker, testConfig()), http.MethodGet, "/executions")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGetExecution(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	tracker := state.NewMemoryTracker()
	exec := status.NewExecution(configID("nightly-rp"), 2, time.Now())
	require.NoError(t, tracker.Create(context.Background(), exec))

	router := v1.Router(coordmocks.NewMockOrchestrator(ctrl), tracker, testConfig())

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{name: "found", id: exec.ID.String(), wantStatus: http.StatusOK},
		{name: "unknown", id: uuid.NewString(), wantStatus: http.StatusNotFound},
		{name: "malformed", id: "latest", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := serve(t, router, http.MethodGet, "/executions/"+tt.id)
			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var got status.Execution
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, exec.ID, got.ID)
			assert.Equal(t, status.StatusPending, got.Status)
			assert.Equal(t, 2, got.Summary.TotalStores)
		})
	}
}

func TestCancelExecution(t *testing.T) {
	t.Parallel()

	id := uuid.New()

	tests := []struct {
		name       string
		setupMock  func(*coordmocks.MockOrchestrator)
		wantStatus int
	}{
		{
			name: "accepted",
			setupMock: func(m *coordmocks.MockOrchestrator) {
				exec := status.NewExecution(configID("nightly-rp"), 2, time.Now())
				exec.ID = id
				m.EXPECT().Cancel(gomock.Any(), id).Return(exec, nil)
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "unknown",
			setupMock: func(m *coordmocks.MockOrchestrator) {
				m.EXPECT().Cancel(gomock.Any(), id).Return(nil, state.ErrExecutionNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "already finished",
			setupMock: func(m *coordmocks.MockOrchestrator) {
				m.EXPECT().Cancel(gomock.Any(), id).Return(nil, coordinator.ErrAlreadyTerminal)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name: "persistence failure",
			setupMock: func(m *coordmocks.MockOrchestrator) {
				m.EXPECT().Cancel(gomock.Any(), id).Return(nil, state.ErrPersistence)
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			orch := coordmocks.NewMockOrchestrator(ctrl)
			tt.setupMock(orch)

			rr := serve(t, v1.Router(orch, state.NewMemoryTracker(), testConfig()), http.MethodPost, "/executions/"+id.String()+"/cancel")
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

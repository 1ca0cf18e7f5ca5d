// Package v1 provides the execution endpoints of the sync API.
package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/catalog-sync-server/internal/api/common"
	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/status"
	"github.com/stacklok/catalog-sync-server/internal/sync/coordinator"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
)

// ConfigurationFinder looks up sync configurations by id
type ConfigurationFinder interface {
	FindSyncConfiguration(id string) (*config.SyncConfiguration, bool)
}

// ExecutionListResponse is the body of GET /executions
type ExecutionListResponse struct {
	Executions []*status.Execution `json:"executions"`
	Count      int                 `json:"count"`
}

// Routes holds the handler dependencies
type Routes struct {
	orchestrator coordinator.Orchestrator
	tracker      state.ExecutionTracker
	configs      ConfigurationFinder
}

// Router returns the v1 routes
func Router(orch coordinator.Orchestrator, tracker state.ExecutionTracker, configs ConfigurationFinder) http.Handler {
	routes := &Routes{orchestrator: orch, tracker: tracker, configs: configs}

	r := chi.NewRouter()
	r.Post("/sync-configurations/{id}/executions", routes.startExecution)
	r.Get("/executions", routes.listExecutions)
	r.Get("/executions/{id}", routes.getExecution)
	r.Post("/executions/{id}/cancel", routes.cancelExecution)
	return r
}

// startExecution handles POST /v1/sync-configurations/{id}/executions.
// The run continues in the background; clients poll the returned execution.
func (rt *Routes) startExecution(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	sc, ok := rt.configs.FindSyncConfiguration(id)
	if !ok {
		common.WriteErrorResponse(w, "sync configuration not found", http.StatusNotFound)
		return
	}

	exec, err := rt.orchestrator.Start(r.Context(), sc)
	switch {
	case errors.Is(err, state.ErrExecutionConflict):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		slog.Error("Failed to start execution", "sync_config_id", id, "error", err)
		common.WriteErrorResponse(w, "failed to start execution", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/v1/executions/"+exec.ID.String())
	common.WriteJSONResponse(w, exec, http.StatusAccepted)
}

// listExecutions handles GET /v1/executions?syncConfigId=&limit=
func (rt *Routes) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := common.GetIntQuery(r, "limit", state.DefaultListLimit)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	execs, err := rt.tracker.List(r.Context(), state.ListFilter{
		SyncConfigID: r.URL.Query().Get("syncConfigId"),
		Limit:        limit,
	})
	if err != nil {
		slog.Error("Failed to list executions", "error", err)
		common.WriteErrorResponse(w, "failed to list executions", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, ExecutionListResponse{Executions: execs, Count: len(execs)}, http.StatusOK)
}

// getExecution handles GET /v1/executions/{id}
func (rt *Routes) getExecution(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetUUIDParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	exec, err := rt.tracker.Get(r.Context(), id)
	switch {
	case errors.Is(err, state.ErrExecutionNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	case err != nil:
		slog.Error("Failed to get execution", "execution_id", id, "error", err)
		common.WriteErrorResponse(w, "failed to get execution", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, exec, http.StatusOK)
}

// cancelExecution handles POST /v1/executions/{id}/cancel
func (rt *Routes) cancelExecution(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetUUIDParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	exec, err := rt.orchestrator.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, state.ErrExecutionNotFound):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, coordinator.ErrAlreadyTerminal):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		slog.Error("Failed to cancel execution", "execution_id", id, "error", err)
		common.WriteErrorResponse(w, "failed to cancel execution", http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, exec, http.StatusAccepted)
}

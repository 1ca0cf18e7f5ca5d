// Package app provides application lifecycle management for the catalog sync server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/sync/coordinator"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
)

// SyncApp encapsulates all components needed to run the sync API server.
// It provides lifecycle management and graceful shutdown capabilities.
type SyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// runCancel stops in-flight executions on shutdown
	runCancel context.CancelFunc
}

// Start recovers executions left active by a previous process and serves HTTP.
// It blocks until the HTTP server stops or encounters an error.
func (app *SyncApp) Start(ctx context.Context) error {
	if err := app.Recover(ctx); err != nil {
		return err
	}

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Recover fails executions that a previous process left pending or running
func (app *SyncApp) Recover(ctx context.Context) error {
	n, err := app.components.Orchestrator.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover interrupted executions: %w", err)
	}
	if n > 0 {
		slog.Warn("Marked interrupted executions as failed", "count", n)
	}
	return nil
}

// Stop gracefully stops the application with the given timeout.
// New requests are refused first, then running executions are interrupted and
// awaited before storage is released.
func (app *SyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	if app.runCancel != nil {
		app.runCancel()
	}
	app.components.Orchestrator.Wait()

	if app.components.Telemetry != nil {
		if err := app.components.Telemetry.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}
	for _, closeFn := range app.components.closers {
		if err := closeFn(); err != nil {
			slog.Error("Failed to release resource", "error", err)
		}
	}
	if app.components.Storage != nil {
		app.components.Storage.Cleanup()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *SyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *SyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Orchestrator returns the execution orchestrator
func (app *SyncApp) Orchestrator() coordinator.Orchestrator {
	return app.components.Orchestrator
}

// Tracker returns the execution tracker
func (app *SyncApp) Tracker() state.ExecutionTracker {
	return app.components.Tracker
}

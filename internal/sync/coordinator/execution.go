package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/notify"
	"github.com/stacklok/catalog-sync-server/internal/otel"
	"github.com/stacklok/catalog-sync-server/internal/sources"
	"github.com/stacklok/catalog-sync-server/internal/status"
	pkgsync "github.com/stacklok/catalog-sync-server/internal/sync"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
	"github.com/stacklok/catalog-sync-server/internal/sync/writer"
)

// run is the in-process state of an owned execution
type run struct {
	cfg    *config.SyncConfiguration
	stores []int64

	cancelRequested atomic.Bool

	// mu guards everything below, including every mutation and persist of exec
	mu        gosync.Mutex
	exec      *status.Execution
	cancelled bool
	fatal     string
}

func (r *run) requestCancel() {
	r.cancelRequested.Store(true)
}

func (r *run) snapshot() *status.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exec.Clone()
}

// checkpoint reports whether the next step may start
func (r *run) checkpoint(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fatal != "" || r.cancelled || ctx.Err() != nil {
		return false
	}
	if r.cancelRequested.Load() {
		r.cancelled = true
		return false
	}
	return true
}

// failLocked records the first fatal condition
func (r *run) failLocked(msg string) {
	if r.fatal == "" {
		r.fatal = msg
	}
}

func (r *run) fail(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failLocked(msg)
}

// execute drives r from pending to a terminal state
func (o *orchestrator) execute(ctx context.Context, r *run) (*status.Execution, error) {
	defer o.release(r)
	start := o.now()

	ctx, span := otel.StartSpan(ctx, o.tracer, "coordinator.Execute",
		trace.WithAttributes(
			otel.AttrExecutionID.String(r.exec.ID.String()),
			otel.AttrSyncConfigID.String(r.cfg.ID),
			attribute.Int("execution.stores", len(r.stores)),
		),
	)
	defer span.End()

	integ, err := o.resolver.Resolve(ctx, r.cfg.SourceIntegrationID)
	if err != nil {
		r.fail(fmt.Sprintf("resolve source integration %q: %v", r.cfg.SourceIntegrationID, err))
		return o.finish(ctx, span, r, start)
	}

	if !r.checkpoint(ctx) {
		return o.finish(ctx, span, r, start)
	}
	if err := o.markRunning(ctx, r); err != nil {
		r.fail(err.Error())
		return o.finish(ctx, span, r, start)
	}

	anchor := o.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Options.Concurrency())
	for _, storeID := range r.stores {
		if !r.checkpoint(gctx) {
			break
		}
		g.Go(func() error {
			if !r.checkpoint(gctx) {
				return nil
			}
			res, err := o.manager.SyncStore(gctx, pkgsync.StoreRequest{
				StoreID:        storeID,
				Integration:    integ,
				Anchor:         anchor,
				DefaultLimit:   o.defaults.GetDefaultLimit(),
				FetchTimeout:   r.cfg.Options.FetchTimeout(o.defaults.GetFetchTimeout()),
				ForceRefresh:   r.cfg.Options.ForceSync,
				SkipComparison: r.cfg.Options.SkipComparison,
			})
			return o.record(gctx, r, integ.Provider, storeID, res, err)
		})
	}
	// Fatal conditions are carried in r.fatal; the group error only cancels siblings
	_ = g.Wait()

	return o.finish(ctx, span, r, start)
}

func (o *orchestrator) markRunning(ctx context.Context, r *run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := o.now()
	if err := r.exec.Transition(status.StatusRunning, now); err != nil {
		return err
	}
	r.exec.Append(status.LogLevelInfo, nil, fmt.Sprintf("synchronizing %d stores", len(r.stores)), now)
	if err := o.tracker.Update(ctx, r.exec); err != nil {
		return fmt.Errorf("persist execution: %w", err)
	}
	return nil
}

// record folds one store outcome into the execution and persists it.
// A non-nil return stops the remaining stores.
func (o *orchestrator) record(
	ctx context.Context, r *run, provider string, storeID int64, res *pkgsync.StoreResult, storeErr error,
) error {
	// A store cut short by shutdown or a sibling's fatal error is not a store
	// failure, unless it already superseded the store's catalog
	if storeErr != nil && ctx.Err() != nil && !errors.Is(storeErr, writer.ErrPartialWrite) {
		return nil
	}
	if res == nil {
		res = &pkgsync.StoreResult{StoreID: storeID}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := o.now()
	id := storeID
	report := status.StoreReport{
		StoreID:     storeID,
		Fetched:     res.Fetched,
		Sent:        res.Sent,
		SoftDeleted: res.SoftDeleted,
		Warnings:    len(res.Warnings),
		DurationMS:  res.Duration.Milliseconds(),
	}
	delta := status.Summary{
		ProductsFetched: res.Fetched,
		Warnings:        len(res.Warnings),
	}

	var stage string
	if storeErr == nil {
		report.Outcome = status.StoreOutcomeSynced
		report.Added = res.Stats.Added
		report.Updated = res.Stats.Updated
		report.Removed = res.Stats.Removed
		report.Unchanged = res.Stats.Unchanged
		delta.StoresProcessed = 1
		delta.ProductsSent = res.Sent
		delta.ProductsAdded = res.Stats.Added
		delta.ProductsUpdated = res.Stats.Updated
		delta.ProductsRemoved = res.Stats.Removed
		delta.ProductsUnchanged = res.Stats.Unchanged
		r.exec.Append(status.LogLevelInfo, &id,
			fmt.Sprintf("store %d: catalog replaced with %d products", storeID, res.Sent), now)
	} else {
		stage = stageOf(storeErr)
		report.Outcome = status.StoreOutcomeFailed
		report.Stage = stage
		report.Error = storeErr.Error()
		delta.Errors = 1
		r.exec.Append(status.LogLevelError, &id, storeErr.Error(), now)
		slog.Warn("Store synchronization failed",
			"execution_id", r.exec.ID,
			"store_id", storeID,
			"stage", stage,
			"error", storeErr)
	}
	if len(res.Warnings) > 0 {
		r.exec.Append(status.LogLevelWarn, &id,
			fmt.Sprintf("store %d: %d warnings, first: %s", storeID, len(res.Warnings), res.Warnings[0].Reason), now)
	}

	r.exec.Summary.Add(delta)
	r.exec.StoreReports = append(r.exec.StoreReports, report)
	o.metrics.RecordStore(ctx, provider, stage, res.Duration, res.Sent)

	if errors.Is(storeErr, sources.ErrUpstreamAuth) {
		r.failLocked(fmt.Sprintf("source rejected credentials for store %d", storeID))
	}
	// progress is kept even when siblings or shutdown cancelled ctx
	if err := o.tracker.Update(context.WithoutCancel(ctx), r.exec); err != nil {
		r.failLocked(fmt.Sprintf("persist execution: %v", err))
		return err
	}
	if r.fatal != "" {
		return errors.New(r.fatal)
	}
	return nil
}

// finish moves the execution to its terminal state, persists it and notifies
func (o *orchestrator) finish(ctx context.Context, span trace.Span, r *run, start time.Time) (*status.Execution, error) {
	// The terminal state must be recorded even when ctx is gone
	persistCtx := context.WithoutCancel(ctx)

	r.mu.Lock()
	now := o.now()
	exec := r.exec
	live := exec.Clone()
	var transitionErr error
	switch {
	case r.fatal != "":
		transitionErr = exec.Fail(r.fatal, now)
		exec.Append(status.LogLevelError, nil, r.fatal, now)
	case ctx.Err() != nil:
		transitionErr = exec.Fail(interruptedMessage, now)
		exec.Append(status.LogLevelError, nil, interruptedMessage, now)
	case r.cancelled:
		transitionErr = exec.Transition(status.StatusCancelled, now)
		exec.Append(status.LogLevelWarn, nil,
			fmt.Sprintf("cancelled after %d of %d stores", len(exec.StoreReports), len(r.stores)), now)
	default:
		transitionErr = exec.Transition(status.StatusCompleted, now)
		exec.Append(status.LogLevelInfo, nil,
			fmt.Sprintf("completed: %d of %d stores processed, %d errors",
				exec.Summary.StoresProcessed, exec.Summary.TotalStores, exec.Summary.Errors), now)
	}
	persistErr := o.persistFinal(persistCtx, exec)
	switch {
	case errors.Is(persistErr, state.ErrExecutionFinished):
		// Another process already finished the row; it wins
		if stored, err := o.tracker.Get(persistCtx, exec.ID); err == nil {
			slog.Warn("Execution was finished elsewhere, keeping stored state",
				"execution_id", exec.ID, "status", stored.Status)
			r.exec = stored
			persistErr = nil
		}
	case persistErr != nil:
		// Report the persistence fault instead of the unrecorded outcome
		msg := fmt.Sprintf("persist final execution state: %v", persistErr)
		if err := live.Fail(msg, now); err == nil {
			live.Append(status.LogLevelError, nil, msg, now)
			r.exec = live
			if err := o.persistFinal(persistCtx, live); err != nil {
				slog.Error("Failed to record execution failure",
					"execution_id", live.ID, "error", err)
			}
		}
	}
	final := r.exec.Clone()
	r.mu.Unlock()

	logger := slog.With("execution_id", final.ID, "sync_config_id", r.cfg.ID)
	if transitionErr != nil {
		logger.Error("Invalid terminal transition", "error", transitionErr)
	}

	span.SetAttributes(attribute.String("execution.status", string(final.Status)))
	if final.Status == status.StatusFailed {
		otel.RecordError(span, errors.New(final.ErrorMessage))
	}
	o.metrics.RecordExecution(persistCtx, r.cfg.ID, string(final.Status), now.Sub(start))

	logger.Info("Execution finished",
		"status", final.Status,
		"stores_processed", final.Summary.StoresProcessed,
		"errors", final.Summary.Errors,
		"warnings", final.Summary.Warnings,
		"error_message", final.ErrorMessage)

	if ch := r.cfg.NotificationChannelID; ch != "" && o.notifier != nil {
		if err := o.notifier.Notify(persistCtx, ch, notify.NewReport(final)); err != nil {
			logger.Warn("Failed to send execution notification", "channel", ch, "error", err)
		}
	}

	if persistErr != nil {
		return final, fmt.Errorf("failed to persist final execution state: %w", persistErr)
	}
	return final, nil
}

// persistFinal writes a terminal execution, retrying transient failures
func (o *orchestrator) persistFinal(ctx context.Context, exec *status.Execution) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.persistInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := o.tracker.Update(ctx, exec)
		if errors.Is(err, state.ErrExecutionFinished) || errors.Is(err, state.ErrExecutionNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			slog.Debug("Final execution write failed", "execution_id", exec.ID, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(o.persistAttempts))
	return err
}

func stageOf(err error) string {
	var storeErr *pkgsync.StoreError
	if errors.As(err, &storeErr) {
		return string(storeErr.Stage)
	}
	return "unknown"
}

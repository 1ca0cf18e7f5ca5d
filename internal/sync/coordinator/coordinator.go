package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-sync-server/internal/config"
	"github.com/stacklok/catalog-sync-server/internal/notify"
	"github.com/stacklok/catalog-sync-server/internal/sources"
	"github.com/stacklok/catalog-sync-server/internal/status"
	pkgsync "github.com/stacklok/catalog-sync-server/internal/sync"
	"github.com/stacklok/catalog-sync-server/internal/sync/state"
	"github.com/stacklok/catalog-sync-server/internal/telemetry"
)

// interruptedMessage is the error_message of runs stopped by process shutdown
const interruptedMessage = "interrupted"

const (
	defaultFinalPersistAttempts = 5
	defaultFinalPersistInterval = 200 * time.Millisecond
)

// ErrAlreadyTerminal is returned by Cancel for an execution that has finished
var ErrAlreadyTerminal = errors.New("execution already finished")

// Orchestrator runs synchronization executions
//
//go:generate mockgen -destination=mocks/mock_orchestrator.go -package=mocks github.com/stacklok/catalog-sync-server/internal/sync/coordinator Orchestrator
type Orchestrator interface {
	// Run executes sc to completion and returns the final execution.
	// An empty sc.ID starts an ad hoc run that never conflicts.
	Run(ctx context.Context, sc *config.SyncConfiguration) (*status.Execution, error)

	// Start creates the execution and runs it in the background.
	// The returned execution is a pending snapshot.
	Start(ctx context.Context, sc *config.SyncConfiguration) (*status.Execution, error)

	// Cancel requests cancellation of the execution with the given id
	Cancel(ctx context.Context, id uuid.UUID) (*status.Execution, error)

	// RecoverInterrupted fails executions left pending or running by a previous process
	RecoverInterrupted(ctx context.Context) (int, error)

	// Wait blocks until every background execution has returned
	Wait()
}

// Option configures the orchestrator
type Option func(*orchestrator)

// WithNotifier sets the notifier called when an execution finishes
func WithNotifier(n notify.Notifier) Option {
	return func(o *orchestrator) {
		o.notifier = n
	}
}

// WithSyncMetrics sets the metrics recorded per store and per execution
func WithSyncMetrics(m *telemetry.SyncMetrics) Option {
	return func(o *orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer for execution spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *orchestrator) {
		o.tracer = tracer
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *orchestrator) {
		o.now = now
	}
}

// WithFinalPersistRetry sets how often, and how far apart, the terminal state
// write is attempted before the execution is reported as failed
func WithFinalPersistRetry(attempts uint, interval time.Duration) Option {
	return func(o *orchestrator) {
		if attempts > 0 {
			o.persistAttempts = attempts
		}
		if interval > 0 {
			o.persistInterval = interval
		}
	}
}

// WithBaseContext sets the context background executions derive from.
// Cancelling it interrupts them.
func WithBaseContext(ctx context.Context) Option {
	return func(o *orchestrator) {
		o.baseCtx = ctx
	}
}

type orchestrator struct {
	manager  pkgsync.Manager
	tracker  state.ExecutionTracker
	resolver sources.IntegrationResolver
	defaults config.SyncDefaults

	notifier notify.Notifier
	metrics  *telemetry.SyncMetrics
	tracer   trace.Tracer
	now      func() time.Time
	baseCtx  context.Context

	persistAttempts uint
	persistInterval time.Duration

	mu     gosync.Mutex
	active map[uuid.UUID]*run
	wg     gosync.WaitGroup
}

// New creates an Orchestrator
func New(
	manager pkgsync.Manager,
	tracker state.ExecutionTracker,
	resolver sources.IntegrationResolver,
	defaults config.SyncDefaults,
	opts ...Option,
) Orchestrator {
	o := &orchestrator{
		manager:  manager,
		tracker:  tracker,
		resolver: resolver,
		defaults: defaults,
		now:      time.Now,
		baseCtx:  context.Background(),
		active:   make(map[uuid.UUID]*run),

		persistAttempts: defaultFinalPersistAttempts,
		persistInterval: defaultFinalPersistInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run implements Orchestrator
func (o *orchestrator) Run(ctx context.Context, sc *config.SyncConfiguration) (*status.Execution, error) {
	r, err := o.create(ctx, sc)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, r)
}

// Start implements Orchestrator
func (o *orchestrator) Start(ctx context.Context, sc *config.SyncConfiguration) (*status.Execution, error) {
	r, err := o.create(ctx, sc)
	if err != nil {
		return nil, err
	}
	snapshot := r.snapshot()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.execute(o.baseCtx, r); err != nil {
			slog.Error("Background execution ended with error", "execution_id", snapshot.ID, "error", err)
		}
	}()
	return snapshot, nil
}

// Wait implements Orchestrator
func (o *orchestrator) Wait() {
	o.wg.Wait()
}

// Cancel implements Orchestrator. Owned runs observe the request at their
// next checkpoint; other non-terminal executions are cancelled directly.
func (o *orchestrator) Cancel(ctx context.Context, id uuid.UUID) (*status.Execution, error) {
	o.mu.Lock()
	r, owned := o.active[id]
	o.mu.Unlock()

	if owned {
		snapshot := r.snapshot()
		if snapshot.Status.IsTerminal() {
			return snapshot, fmt.Errorf("%w: %s", ErrAlreadyTerminal, snapshot.Status)
		}
		r.requestCancel()
		slog.Info("Cancellation requested", "execution_id", id)
		return snapshot, nil
	}

	exec, err := o.tracker.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Status.IsTerminal() {
		return exec, fmt.Errorf("%w: %s", ErrAlreadyTerminal, exec.Status)
	}

	now := o.now()
	if err := exec.Transition(status.StatusCancelled, now); err != nil {
		return nil, err
	}
	exec.Append(status.LogLevelWarn, nil, "cancelled while not owned by a running process", now)
	if err := o.tracker.Update(ctx, exec); err != nil {
		if !errors.Is(err, state.ErrExecutionFinished) {
			return nil, err
		}
		// finished between the read and the write
		current, getErr := o.tracker.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return current, fmt.Errorf("%w: %s", ErrAlreadyTerminal, current.Status)
	}
	slog.Info("Cancelled orphaned execution", "execution_id", id)
	return exec, nil
}

// RecoverInterrupted implements Orchestrator
func (o *orchestrator) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := o.tracker.FailInterrupted(ctx, interruptedMessage, o.now())
	if err != nil {
		return 0, fmt.Errorf("failed to recover interrupted executions: %w", err)
	}
	return n, nil
}

// create registers a pending execution as owned and then persists it, so a
// Cancel that can see the row always finds the owning run
func (o *orchestrator) create(ctx context.Context, sc *config.SyncConfiguration) (*run, error) {
	var cfgID *string
	if sc.ID != "" {
		id := sc.ID
		cfgID = &id
	}
	stores := sc.UniqueStoreIDs()
	exec := status.NewExecution(cfgID, len(stores), o.now())

	r := &run{cfg: sc, stores: stores, exec: exec}
	o.mu.Lock()
	o.active[exec.ID] = r
	o.mu.Unlock()

	if err := o.tracker.Create(ctx, exec.Clone()); err != nil {
		o.release(r)
		return nil, err
	}

	slog.Info("Execution created",
		"execution_id", exec.ID,
		"sync_config_id", sc.ID,
		"stores", len(stores))
	return r, nil
}

func (o *orchestrator) release(r *run) {
	o.mu.Lock()
	delete(o.active, r.exec.ID)
	o.mu.Unlock()
}

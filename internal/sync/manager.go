package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/catalog-sync-server/internal/catalog"
	"github.com/stacklok/catalog-sync-server/internal/normalizer"
	"github.com/stacklok/catalog-sync-server/internal/otel"
	"github.com/stacklok/catalog-sync-server/internal/sources"
	"github.com/stacklok/catalog-sync-server/internal/sync/writer"
)

// Stage names the pipeline step a store error came from
type Stage string

// Pipeline stages, in execution order
const (
	StageFetch     Stage = "fetch"
	StageNormalize Stage = "normalize"
	StageReconcile Stage = "reconcile"
	StageWrite     Stage = "write"
)

// StoreError is a failure of one store's pipeline
type StoreError struct {
	StoreID int64
	Stage   Stage
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %d: %s failed: %v", e.StoreID, e.Stage, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// StoreRequest carries everything one store pipeline needs
type StoreRequest struct {
	StoreID     int64
	Integration *sources.Integration

	// Anchor is captured once per execution and shared by every store
	Anchor       time.Time
	DefaultLimit int
	FetchTimeout time.Duration

	ForceRefresh   bool
	SkipComparison bool
}

// StoreResult is the outcome of one store pipeline
type StoreResult struct {
	StoreID     int64
	Fetched     int
	Sent        int
	Stats       Stats
	Warnings    []catalog.Warning
	SoftDeleted int64
	Duration    time.Duration
}

// Manager runs the Fetch, Normalize, Reconcile and Write pipeline for a single store
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/catalog-sync-server/internal/sync Manager
type Manager interface {
	// SyncStore runs the pipeline for req.StoreID. On error the returned result holds
	// whatever was gathered before the failing stage.
	SyncStore(ctx context.Context, req StoreRequest) (*StoreResult, error)
}

// ManagerOption configures the default Manager
type ManagerOption func(*defaultSyncManager)

// WithTracer sets the tracer used for per-store spans
func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(m *defaultSyncManager) {
		m.tracer = tracer
	}
}

// defaultSyncManager is the default implementation of Manager
type defaultSyncManager struct {
	handlerFactory sources.SourceHandlerFactory
	products       writer.ProductStore
	writer         writer.CatalogWriter
	tracer         trace.Tracer
}

// NewDefaultSyncManager creates a new Manager.
// products is read for the current active catalog; w applies the replace-set.
func NewDefaultSyncManager(
	handlerFactory sources.SourceHandlerFactory,
	products writer.ProductStore,
	w writer.CatalogWriter,
	opts ...ManagerOption,
) Manager {
	m := &defaultSyncManager{
		handlerFactory: handlerFactory,
		products:       products,
		writer:         w,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SyncStore implements Manager
func (m *defaultSyncManager) SyncStore(ctx context.Context, req StoreRequest) (*StoreResult, error) {
	start := time.Now()
	result := &StoreResult{StoreID: req.StoreID}

	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.SyncStore",
		trace.WithAttributes(
			otel.AttrStoreID.Int64(req.StoreID),
			otel.AttrProvider.String(req.Integration.Provider),
			otel.AttrForceRefresh.Bool(req.ForceRefresh),
		),
	)
	defer span.End()

	err := m.run(ctx, req, result)
	result.Duration = time.Since(start)
	if err != nil {
		otel.RecordError(span, err)
		return result, err
	}
	span.SetAttributes(otel.AttrRecordCount.Int(result.Sent))
	return result, nil
}

func (m *defaultSyncManager) run(ctx context.Context, req StoreRequest, result *StoreResult) error {
	logger := slog.With("store_id", req.StoreID, "integration", req.Integration.ID)

	raw, err := m.fetch(ctx, req)
	if err != nil {
		return &StoreError{StoreID: req.StoreID, Stage: StageFetch, Err: err}
	}
	result.Fetched = raw.ItemCount

	norm, err := normalizer.ForProvider(req.Integration.Provider)
	if err != nil {
		return &StoreError{StoreID: req.StoreID, Stage: StageNormalize, Err: err}
	}
	records, warnings := norm.Normalize(raw, req.StoreID, normalizer.Options{
		Anchor:       req.Anchor,
		DefaultLimit: req.DefaultLimit,
	})
	result.Warnings = append(result.Warnings, warnings...)
	for _, w := range warnings {
		logger.Warn("Normalization warning", "warning", w.String())
	}

	var current []catalog.ProductRecord
	if !req.SkipComparison {
		current, err = m.products.ListActiveProducts(ctx, req.StoreID, req.Anchor)
		if err != nil {
			return &StoreError{StoreID: req.StoreID, Stage: StageReconcile, Err: err}
		}
	}
	set := Reconcile(req.StoreID, records, current, ReconcileOptions{SkipComparison: req.SkipComparison})
	result.Stats = set.Stats
	result.Warnings = append(result.Warnings, set.Warnings...)
	for _, w := range set.Warnings {
		logger.Warn("Reconcile warning", "warning", w.String())
	}

	written, err := m.writer.Replace(ctx, req.StoreID, set.Records)
	if written != nil {
		result.SoftDeleted = written.SoftDeleted
		result.Sent = written.Inserted
	}
	if err != nil {
		return &StoreError{StoreID: req.StoreID, Stage: StageWrite, Err: err}
	}

	logger.Info("Store catalog replaced",
		"fetched", result.Fetched,
		"sent", result.Sent,
		"added", set.Stats.Added,
		"updated", set.Stats.Updated,
		"removed", set.Stats.Removed,
		"unchanged", set.Stats.Unchanged,
		"warnings", len(result.Warnings))
	return nil
}

// fetch applies the per-configuration timeout to the upstream call only
func (m *defaultSyncManager) fetch(ctx context.Context, req StoreRequest) (*sources.RawCatalog, error) {
	handler, err := m.handlerFactory.CreateHandler(req.Integration.Provider)
	if err != nil {
		return nil, err
	}

	fetchCtx := ctx
	if req.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, req.FetchTimeout)
		defer cancel()
	}

	return handler.FetchCatalog(fetchCtx, sources.FetchRequest{
		StoreID:      req.StoreID,
		Integration:  req.Integration,
		ForceRefresh: req.ForceRefresh,
	})
}

// Package writer contains the CatalogWriter and the product stores it writes to
package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/catalog-sync-server/internal/catalog"
)

var (
	// ErrPartialWrite marks a replace whose soft-delete succeeded but whose insert failed.
	// The store is left with no active products.
	ErrPartialWrite = errors.New("partial catalog write")

	// ErrWriteFailed marks a replace that failed before changing the active set.
	ErrWriteFailed = errors.New("catalog write failed")
)

// PartialWriteError reports a replace that superseded the old catalog but could
// not insert the new one.
type PartialWriteError struct {
	StoreID     int64
	SoftDeleted int64
	Err         error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("store %d: %d products soft-deleted but insert failed, store has no active products: %v",
		e.StoreID, e.SoftDeleted, e.Err)
}

func (e *PartialWriteError) Unwrap() []error {
	return []error{ErrPartialWrite, e.Err}
}

//go:generate mockgen -destination=mocks/mock_product_store.go -package=mocks -source=writer.go ProductStore,CatalogWriter

// ProductStore persists store catalogs. Each method succeeds or fails atomically
// on its own; nothing is guaranteed across calls.
type ProductStore interface {
	// ListActiveProducts returns the live products of a store visible at the given instant
	ListActiveProducts(ctx context.Context, storeID int64, at time.Time) ([]catalog.ProductRecord, error)

	// SoftDeleteActive marks every live product of the store as deleted and returns the count
	SoftDeleteActive(ctx context.Context, storeID int64) (int64, error)

	// InsertMany adds live products to the store
	InsertMany(ctx context.Context, storeID int64, records []catalog.ProductRecord) error
}

// AtomicReplacer is implemented by stores that can supersede and insert in one transaction
type AtomicReplacer interface {
	ReplaceProducts(ctx context.Context, storeID int64, records []catalog.ProductRecord) (int64, error)
}

// WriteResult summarizes a replace
type WriteResult struct {
	SoftDeleted int64
	Inserted    int
}

// CatalogWriter replaces the active catalog of a store
type CatalogWriter interface {
	Replace(ctx context.Context, storeID int64, records []catalog.ProductRecord) (*WriteResult, error)
}

type catalogWriter struct {
	store ProductStore
}

// NewCatalogWriter creates a CatalogWriter over store
func NewCatalogWriter(store ProductStore) CatalogWriter {
	return &catalogWriter{store: store}
}

// Replace supersedes the store's live products with records. Soft-delete always
// precedes insert. An empty records slice leaves the store with no active products.
func (w *catalogWriter) Replace(
	ctx context.Context,
	storeID int64,
	records []catalog.ProductRecord,
) (*WriteResult, error) {
	if replacer, ok := w.store.(AtomicReplacer); ok {
		deleted, err := replacer.ReplaceProducts(ctx, storeID, records)
		if err != nil {
			return nil, fmt.Errorf("%w: store %d: %w", ErrWriteFailed, storeID, err)
		}
		return &WriteResult{SoftDeleted: deleted, Inserted: len(records)}, nil
	}

	deleted, err := w.store.SoftDeleteActive(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("%w: store %d: soft-delete: %w", ErrWriteFailed, storeID, err)
	}

	result := &WriteResult{SoftDeleted: deleted}
	if len(records) == 0 {
		return result, nil
	}

	if err := w.store.InsertMany(ctx, storeID, records); err != nil {
		return result, &PartialWriteError{StoreID: storeID, SoftDeleted: deleted, Err: err}
	}
	result.Inserted = len(records)
	return result, nil
}

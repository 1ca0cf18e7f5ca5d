package writer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stacklok/catalog-sync-server/internal/catalog"
)

type storedProduct struct {
	record    catalog.ProductRecord
	deletedAt *time.Time
}

// MemoryProductStore is a ProductStore kept in process memory.
// Soft-deleted rows are retained so the audit trail can be inspected.
type MemoryProductStore struct {
	mu   sync.RWMutex
	rows map[int64][]storedProduct
	now  func() time.Time
}

var _ ProductStore = (*MemoryProductStore)(nil)

// NewMemoryProductStore creates an empty store
func NewMemoryProductStore() *MemoryProductStore {
	return &MemoryProductStore{rows: make(map[int64][]storedProduct), now: time.Now}
}

// ListActiveProducts returns live products visible at the given instant, ordered by code
func (m *MemoryProductStore) ListActiveProducts(
	_ context.Context,
	storeID int64,
	at time.Time,
) ([]catalog.ProductRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]catalog.ProductRecord, 0)
	for _, row := range m.rows[storeID] {
		if row.deletedAt == nil && row.record.IsActive(at) {
			out = append(out, row.record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// SoftDeleteActive marks every live row of the store as deleted
func (m *MemoryProductStore) SoftDeleteActive(_ context.Context, storeID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	var count int64
	rows := m.rows[storeID]
	for i := range rows {
		if rows[i].deletedAt == nil {
			rows[i].deletedAt = &now
			count++
		}
	}
	return count, nil
}

// InsertMany adds live rows. Codes must be unique among the store's live rows.
func (m *MemoryProductStore) InsertMany(_ context.Context, storeID int64, records []catalog.ProductRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := make(map[int64]struct{})
	for _, row := range m.rows[storeID] {
		if row.deletedAt == nil {
			live[row.record.Code] = struct{}{}
		}
	}
	for _, rec := range records {
		if _, dup := live[rec.Code]; dup {
			return fmt.Errorf("product %d already live in store %d", rec.Code, storeID)
		}
		live[rec.Code] = struct{}{}
	}

	for _, rec := range records {
		rec.StoreID = storeID
		m.rows[storeID] = append(m.rows[storeID], storedProduct{record: rec})
	}
	return nil
}

// CountRows returns the number of live and soft-deleted rows of a store
func (m *MemoryProductStore) CountRows(storeID int64) (live, deleted int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.rows[storeID] {
		if row.deletedAt == nil {
			live++
		} else {
			deleted++
		}
	}
	return live, deleted
}

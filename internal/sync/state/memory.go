package state

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/catalog-sync-server/internal/status"
)

// memoryTracker keeps executions in process memory, in creation order
type memoryTracker struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*status.Execution
	order []uuid.UUID
}

// NewMemoryTracker creates an empty in-memory ExecutionTracker
func NewMemoryTracker() ExecutionTracker {
	return &memoryTracker{byID: make(map[uuid.UUID]*status.Execution)}
}

func (m *memoryTracker) Create(_ context.Context, exec *status.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[exec.ID]; exists {
		return fmt.Errorf("%w: duplicate execution id %s", ErrPersistence, exec.ID)
	}
	if exec.SyncConfigID != nil {
		for _, other := range m.byID {
			if other.SyncConfigID != nil && *other.SyncConfigID == *exec.SyncConfigID && !other.Status.IsTerminal() {
				return ErrExecutionConflict
			}
		}
	}

	m.byID[exec.ID] = exec.Clone()
	m.order = append(m.order, exec.ID)
	return nil
}

func (m *memoryTracker) Update(_ context.Context, exec *status.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.byID[exec.ID]
	if !ok {
		return ErrExecutionNotFound
	}
	if stored.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrExecutionFinished, exec.ID, stored.Status)
	}
	m.byID[exec.ID] = exec.Clone()
	return nil
}

func (m *memoryTracker) Get(_ context.Context, id uuid.UUID) (*status.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec, ok := m.byID[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return exec.Clone(), nil
}

func (m *memoryTracker) List(_ context.Context, filter ListFilter) ([]*status.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*status.Execution, 0)
	for _, id := range slices.Backward(m.order) {
		exec := m.byID[id]
		if filter.SyncConfigID != "" && exec.ConfigID() != filter.SyncConfigID {
			continue
		}
		out = append(out, exec.Clone())
		if len(out) == filter.limit() {
			break
		}
	}
	return out, nil
}

func (m *memoryTracker) FailInterrupted(_ context.Context, msg string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, exec := range m.byID {
		if exec.Status.IsTerminal() {
			continue
		}
		if err := exec.Fail(msg, now); err != nil {
			return count, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		exec.Append(status.LogLevelError, nil, msg, now)
		count++
	}
	return count, nil
}

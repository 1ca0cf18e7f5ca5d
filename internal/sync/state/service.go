// Package state persists synchronization executions and enforces the
// one-active-run rule per sync configuration.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/catalog-sync-server/internal/status"
)

var (
	// ErrExecutionConflict is returned when a sync configuration already has a
	// pending or running execution. No row is created.
	ErrExecutionConflict = errors.New("an execution is already pending or running for this sync configuration")

	// ErrExecutionNotFound is returned when an execution id is unknown
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionFinished is returned by Update when the stored execution is
	// already terminal. The stored row is left untouched.
	ErrExecutionFinished = errors.New("execution already in a terminal state")

	// ErrPersistence wraps storage failures of the execution record itself
	ErrPersistence = errors.New("execution persistence failed")
)

const (
	// DefaultListLimit is applied when ListFilter.Limit is not positive
	DefaultListLimit = 50

	// MaxListLimit caps ListFilter.Limit
	MaxListLimit = 500
)

// ListFilter narrows List results. Results are ordered newest first.
type ListFilter struct {
	SyncConfigID string
	Limit        int
}

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}

// ExecutionTracker is the durable audit log of executions.
//
//go:generate mockgen -destination=mocks/mock_execution_tracker.go -package=mocks github.com/stacklok/catalog-sync-server/internal/sync/state ExecutionTracker
type ExecutionTracker interface {
	// Create stores a new execution. It fails with ErrExecutionConflict when the
	// execution's sync configuration already has an active one.
	Create(ctx context.Context, exec *status.Execution) error

	// Update overwrites the mutable fields of an existing execution. Only pending
	// or running rows are updated; terminal rows yield ErrExecutionFinished.
	Update(ctx context.Context, exec *status.Execution) error

	// Get returns a copy of the execution or ErrExecutionNotFound
	Get(ctx context.Context, id uuid.UUID) (*status.Execution, error)

	// List returns executions newest first
	List(ctx context.Context, filter ListFilter) ([]*status.Execution, error)

	// FailInterrupted moves every pending or running execution to failed with msg.
	// It is meant for startup, when no run can be in progress in this process.
	FailInterrupted(ctx context.Context, msg string, now time.Time) (int, error)
}

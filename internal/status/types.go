// Package status defines the synchronization execution model and its state machine.
package status

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an execution
type Status string

const (
	// StatusPending is assigned at creation, before any store is touched
	StatusPending Status = "pending"

	// StatusRunning means store pipelines are being executed
	StatusRunning Status = "running"

	// StatusCompleted means every configured store was attempted
	StatusCompleted Status = "completed"

	// StatusFailed means the run stopped before every store was attempted
	StatusFailed Status = "failed"

	// StatusCancelled means a cancellation request was observed before completion
	StatusCancelled Status = "cancelled"
)

// ErrInvalidTransition is returned when a status change is not allowed
var ErrInvalidTransition = errors.New("invalid execution status transition")

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from may move to to
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Summary holds the aggregated counters of an execution. Counters only grow.
type Summary struct {
	TotalStores       int `json:"total_stores"`
	StoresProcessed   int `json:"stores_processed"`
	ProductsFetched   int `json:"products_fetched"`
	ProductsSent      int `json:"products_sent"`
	ProductsAdded     int `json:"products_added"`
	ProductsUpdated   int `json:"products_updated"`
	ProductsRemoved   int `json:"products_removed"`
	ProductsUnchanged int `json:"products_unchanged"`
	Errors            int `json:"errors"`
	Warnings          int `json:"warnings"`
}

// Add accumulates delta. Negative components are ignored and TotalStores is fixed at creation.
func (s *Summary) Add(delta Summary) {
	s.StoresProcessed += max(delta.StoresProcessed, 0)
	s.ProductsFetched += max(delta.ProductsFetched, 0)
	s.ProductsSent += max(delta.ProductsSent, 0)
	s.ProductsAdded += max(delta.ProductsAdded, 0)
	s.ProductsUpdated += max(delta.ProductsUpdated, 0)
	s.ProductsRemoved += max(delta.ProductsRemoved, 0)
	s.ProductsUnchanged += max(delta.ProductsUnchanged, 0)
	s.Errors += max(delta.Errors, 0)
	s.Warnings += max(delta.Warnings, 0)
}

// StoreOutcome is the result of one store pipeline
type StoreOutcome string

// Store outcomes
const (
	StoreOutcomeSynced StoreOutcome = "synced"
	StoreOutcomeFailed StoreOutcome = "failed"
)

// StoreReport is the per-store audit record of an execution
type StoreReport struct {
	StoreID     int64        `json:"store_id"`
	Outcome     StoreOutcome `json:"outcome"`
	Stage       string       `json:"stage,omitempty"`
	Fetched     int          `json:"fetched"`
	Sent        int          `json:"sent"`
	Added       int          `json:"added"`
	Updated     int          `json:"updated"`
	Removed     int          `json:"removed"`
	Unchanged   int          `json:"unchanged"`
	SoftDeleted int64        `json:"soft_deleted"`
	Warnings    int          `json:"warnings"`
	Error       string       `json:"error,omitempty"`
	DurationMS  int64        `json:"duration_ms"`
}

// LogLevel is the severity of an execution log entry
type LogLevel string

// Log levels
const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogEntry is one line of an execution log
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	StoreID *int64    `json:"store_id,omitempty"`
	Message string    `json:"message"`
}

// Execution is one end-to-end synchronization run
type Execution struct {
	ID           uuid.UUID     `json:"id"`
	SyncConfigID *string       `json:"sync_config_id,omitempty"`
	Status       Status        `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Summary      Summary       `json:"summary"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Log          []LogEntry    `json:"execution_log"`
	StoreReports []StoreReport `json:"store_reports"`
}

// NewExecution returns a pending execution. A nil syncConfigID marks an ad hoc run.
func NewExecution(syncConfigID *string, totalStores int, now time.Time) *Execution {
	return &Execution{
		ID:           uuid.New(),
		SyncConfigID: syncConfigID,
		Status:       StatusPending,
		StartedAt:    now.UTC(),
		Summary:      Summary{TotalStores: totalStores},
		Log:          []LogEntry{},
		StoreReports: []StoreReport{},
	}
}

// Transition moves the execution to status to. completed_at is set on entry to
// a terminal state and never changes afterwards.
func (e *Execution) Transition(to Status, now time.Time) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
	}
	e.Status = to
	if to.IsTerminal() && e.CompletedAt == nil {
		t := now.UTC()
		e.CompletedAt = &t
	}
	return nil
}

// Fail records msg and moves the execution to failed
func (e *Execution) Fail(msg string, now time.Time) error {
	if err := e.Transition(StatusFailed, now); err != nil {
		return err
	}
	e.ErrorMessage = msg
	return nil
}

// Append adds a log entry. storeID is nil for execution-wide entries.
func (e *Execution) Append(level LogLevel, storeID *int64, msg string, now time.Time) {
	e.Log = append(e.Log, LogEntry{Time: now.UTC(), Level: level, StoreID: storeID, Message: msg})
}

// ConfigID returns the sync configuration id or an empty string for ad hoc runs
func (e *Execution) ConfigID() string {
	if e.SyncConfigID == nil {
		return ""
	}
	return *e.SyncConfigID
}

// Clone returns a deep copy
func (e *Execution) Clone() *Execution {
	c := *e
	if e.SyncConfigID != nil {
		id := *e.SyncConfigID
		c.SyncConfigID = &id
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		c.CompletedAt = &t
	}
	c.Log = make([]LogEntry, len(e.Log))
	for i, entry := range e.Log {
		if entry.StoreID != nil {
			id := *entry.StoreID
			entry.StoreID = &id
		}
		c.Log[i] = entry
	}
	c.StoreReports = slices.Clone(e.StoreReports)
	if c.StoreReports == nil {
		c.StoreReports = []StoreReport{}
	}
	return &c
}

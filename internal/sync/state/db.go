package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/catalog-sync-server/internal/status"
)

const (
	uniqueViolation      = "23505"
	activeExecutionIndex = "sync_execution_active_idx"
)

const executionColumns = `id, sync_config_id, started_at, total_stores, status, completed_at,
	stores_processed, products_fetched, products_sent, products_added, products_updated,
	products_removed, products_unchanged, errors, warnings,
	error_message, store_reports, execution_log`

const insertExecutionQuery = `
INSERT INTO sync_execution (` + executionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

const updateExecutionQuery = `
UPDATE sync_execution SET
	status = $2, completed_at = $3,
	stores_processed = $4, products_fetched = $5, products_sent = $6, products_added = $7,
	products_updated = $8, products_removed = $9, products_unchanged = $10,
	errors = $11, warnings = $12, error_message = $13, store_reports = $14, execution_log = $15
WHERE id = $1 AND status IN ('pending', 'running')`

const executionStatusQuery = `SELECT status FROM sync_execution WHERE id = $1`

const getExecutionQuery = `SELECT ` + executionColumns + ` FROM sync_execution WHERE id = $1`

const listExecutionsQuery = `
SELECT ` + executionColumns + ` FROM sync_execution
WHERE ($1::text = '' OR sync_config_id = $1)
ORDER BY started_at DESC, id
LIMIT $2`

const failInterruptedQuery = `
SELECT id FROM sync_execution WHERE status IN ('pending', 'running') FOR UPDATE`

type dbTracker struct {
	pool *pgxpool.Pool
}

// NewDBTracker creates a PostgreSQL-backed ExecutionTracker.
// The one-active-run rule is enforced by a partial unique index.
func NewDBTracker(pool *pgxpool.Pool) ExecutionTracker {
	return &dbTracker{pool: pool}
}

func (d *dbTracker) Create(ctx context.Context, exec *status.Execution) error {
	args, err := executionArgs(exec)
	if err != nil {
		return err
	}
	row := append([]any{exec.ID, exec.SyncConfigID, exec.StartedAt, exec.Summary.TotalStores}, args...)

	if _, err := d.pool.Exec(ctx, insertExecutionQuery, row...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeExecutionIndex {
			return ErrExecutionConflict
		}
		return fmt.Errorf("%w: insert execution %s: %w", ErrPersistence, exec.ID, err)
	}
	return nil
}

func (d *dbTracker) Update(ctx context.Context, exec *status.Execution) error {
	args, err := executionArgs(exec)
	if err != nil {
		return err
	}
	tag, err := d.pool.Exec(ctx, updateExecutionQuery, append([]any{exec.ID}, args...)...)
	if err != nil {
		return fmt.Errorf("%w: update execution %s: %w", ErrPersistence, exec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return d.missedUpdate(ctx, exec.ID)
	}
	return nil
}

// missedUpdate explains an update that matched no active row
func (d *dbTracker) missedUpdate(ctx context.Context, id uuid.UUID) error {
	var current string
	err := d.pool.QueryRow(ctx, executionStatusQuery, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrExecutionNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: get execution status %s: %w", ErrPersistence, id, err)
	}
	return fmt.Errorf("%w: %s is %s", ErrExecutionFinished, id, current)
}

func (d *dbTracker) Get(ctx context.Context, id uuid.UUID) (*status.Execution, error) {
	exec, err := scanExecution(d.pool.QueryRow(ctx, getExecutionQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get execution %s: %w", ErrPersistence, id, err)
	}
	return exec, nil
}

func (d *dbTracker) List(ctx context.Context, filter ListFilter) ([]*status.Execution, error) {
	rows, err := d.pool.Query(ctx, listExecutionsQuery, filter.SyncConfigID, filter.limit())
	if err != nil {
		return nil, fmt.Errorf("%w: list executions: %w", ErrPersistence, err)
	}
	defer rows.Close()

	out := make([]*status.Execution, 0)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan execution: %w", ErrPersistence, err)
		}
		out = append(out, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list executions: %w", ErrPersistence, err)
	}
	return out, nil
}

// FailInterrupted loads each stale row and applies the status transition in Go
// so that completed_at and the log follow the same rules as a live run.
func (d *dbTracker) FailInterrupted(ctx context.Context, msg string, now time.Time) (int, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %w", ErrPersistence, err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, failInterruptedQuery)
	if err != nil {
		return 0, fmt.Errorf("%w: select interrupted executions: %w", ErrPersistence, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return 0, fmt.Errorf("%w: collect interrupted executions: %w", ErrPersistence, err)
	}

	for _, id := range ids {
		exec, err := scanExecution(tx.QueryRow(ctx, getExecutionQuery, id))
		if err != nil {
			return 0, fmt.Errorf("%w: load execution %s: %w", ErrPersistence, id, err)
		}
		if err := exec.Fail(msg, now); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		exec.Append(status.LogLevelError, nil, msg, now)

		args, err := executionArgs(exec)
		if err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx, updateExecutionQuery, append([]any{exec.ID}, args...)...); err != nil {
			return 0, fmt.Errorf("%w: update execution %s: %w", ErrPersistence, id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return len(ids), nil
}

// executionArgs returns the mutable columns in update order ($2 onwards)
func executionArgs(exec *status.Execution) ([]any, error) {
	reports, err := json.Marshal(exec.StoreReports)
	if err != nil {
		return nil, fmt.Errorf("%w: encode store reports: %w", ErrPersistence, err)
	}
	log, err := json.Marshal(exec.Log)
	if err != nil {
		return nil, fmt.Errorf("%w: encode execution log: %w", ErrPersistence, err)
	}

	errorMessage := pgtype.Text{String: exec.ErrorMessage, Valid: exec.ErrorMessage != ""}
	completedAt := pgtype.Timestamptz{}
	if exec.CompletedAt != nil {
		completedAt = pgtype.Timestamptz{Time: *exec.CompletedAt, Valid: true}
	}

	s := exec.Summary
	return []any{
		string(exec.Status),
		completedAt,
		s.StoresProcessed,
		s.ProductsFetched,
		s.ProductsSent,
		s.ProductsAdded,
		s.ProductsUpdated,
		s.ProductsRemoved,
		s.ProductsUnchanged,
		s.Errors,
		s.Warnings,
		errorMessage,
		reports,
		log,
	}, nil
}

func scanExecution(row pgx.Row) (*status.Execution, error) {
	var (
		exec         status.Execution
		configID     pgtype.Text
		statusText   string
		completedAt  pgtype.Timestamptz
		errorMessage pgtype.Text
		reports      []byte
		log          []byte
	)
	s := &exec.Summary
	err := row.Scan(
		&exec.ID, &configID, &exec.StartedAt, &s.TotalStores, &statusText, &completedAt,
		&s.StoresProcessed, &s.ProductsFetched, &s.ProductsSent, &s.ProductsAdded, &s.ProductsUpdated,
		&s.ProductsRemoved, &s.ProductsUnchanged, &s.Errors, &s.Warnings,
		&errorMessage, &reports, &log,
	)
	if err != nil {
		return nil, err
	}

	exec.Status = status.Status(statusText)
	exec.StartedAt = exec.StartedAt.UTC()
	if configID.Valid {
		exec.SyncConfigID = &configID.String
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		exec.CompletedAt = &t
	}
	exec.ErrorMessage = errorMessage.String
	if err := json.Unmarshal(reports, &exec.StoreReports); err != nil {
		return nil, fmt.Errorf("decode store reports: %w", err)
	}
	if err := json.Unmarshal(log, &exec.Log); err != nil {
		return nil, fmt.Errorf("decode execution log: %w", err)
	}
	return &exec, nil
}

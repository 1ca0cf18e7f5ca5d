package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stacklok/catalog-sync-server/internal/catalog"
)

var productColumns = []string{
	"store_id", "code", "price", "final_price", "purchase_limit", "starts_at", "expires_at", "created_at",
}

const listActiveProductsQuery = `
SELECT code, price::text, final_price::text, purchase_limit, starts_at, expires_at
FROM store_product
WHERE store_id = $1
  AND deleted_at IS NULL
  AND (starts_at IS NULL OR starts_at <= $2)
  AND (expires_at IS NULL OR expires_at >= $2)
ORDER BY code`

const softDeleteActiveQuery = `
UPDATE store_product SET deleted_at = $2
WHERE store_id = $1 AND deleted_at IS NULL`

// dbProductStore is a ProductStore backed by PostgreSQL
type dbProductStore struct {
	pool *pgxpool.Pool
}

var (
	_ ProductStore   = (*dbProductStore)(nil)
	_ AtomicReplacer = (*dbProductStore)(nil)
)

// NewDBProductStore creates a ProductStore with the given connection pool.
// The caller is responsible for closing the pool when done.
func NewDBProductStore(pool *pgxpool.Pool) (ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &dbProductStore{pool: pool}, nil
}

// ListActiveProducts returns the live products of a store visible at the given instant
func (d *dbProductStore) ListActiveProducts(
	ctx context.Context,
	storeID int64,
	at time.Time,
) ([]catalog.ProductRecord, error) {
	rows, err := d.pool.Query(ctx, listActiveProductsQuery, storeID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	out := make([]catalog.ProductRecord, 0)
	for rows.Next() {
		var (
			rec                catalog.ProductRecord
			price, finalPrice  string
			startsAt, expireAt pgtype.Timestamptz
		)
		if err := rows.Scan(&rec.Code, &price, &finalPrice, &rec.Limit, &startsAt, &expireAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid price for product %d: %w", rec.Code, err)
		}
		if rec.FinalPrice, err = decimal.NewFromString(finalPrice); err != nil {
			return nil, fmt.Errorf("invalid final price for product %d: %w", rec.Code, err)
		}
		rec.StartsAt = fromTimestamptz(startsAt)
		rec.ExpiresAt = fromTimestamptz(expireAt)
		rec.StoreID = storeID
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return out, nil
}

// SoftDeleteActive marks every live product of the store as deleted
func (d *dbProductStore) SoftDeleteActive(ctx context.Context, storeID int64) (int64, error) {
	tag, err := d.pool.Exec(ctx, softDeleteActiveQuery, storeID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to soft-delete products: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertMany bulk-inserts live products in a single transaction
func (d *dbProductStore) InsertMany(ctx context.Context, storeID int64, records []catalog.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}
	return d.inTx(ctx, func(tx pgx.Tx) error {
		return copyProducts(ctx, tx, storeID, records)
	})
}

// ReplaceProducts supersedes and inserts in one serializable transaction, so
// readers see either the old or the new catalog.
func (d *dbProductStore) ReplaceProducts(
	ctx context.Context,
	storeID int64,
	records []catalog.ProductRecord,
) (int64, error) {
	var deleted int64
	err := d.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, softDeleteActiveQuery, storeID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to soft-delete products: %w", err)
		}
		deleted = tag.RowsAffected()

		if len(records) == 0 {
			return nil
		}
		return copyProducts(ctx, tx, storeID, records)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (d *dbProductStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			slog.Warn("Failed to roll back product transaction", "error", rollbackErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func copyProducts(ctx context.Context, tx pgx.Tx, storeID int64, records []catalog.ProductRecord) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		price, err := toNumeric(rec.Price)
		if err != nil {
			return fmt.Errorf("product %d: %w", rec.Code, err)
		}
		finalPrice, err := toNumeric(rec.FinalPrice)
		if err != nil {
			return fmt.Errorf("product %d: %w", rec.Code, err)
		}
		if rec.Limit < 0 || rec.Limit > math.MaxInt32 {
			return fmt.Errorf("product %d: purchase limit %d out of range", rec.Code, rec.Limit)
		}
		rows = append(rows, []any{
			storeID,
			rec.Code,
			price,
			finalPrice,
			int32(rec.Limit),
			toTimestamptz(rec.StartsAt),
			toTimestamptz(rec.ExpiresAt),
			now,
		})
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"store_product"}, productColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy products: %w", err)
	}
	if int(copyCount) != len(records) {
		return fmt.Errorf("copy count mismatch: expected %d, got %d", len(records), copyCount)
	}
	return nil
}

func toNumeric(d decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return n, fmt.Errorf("invalid decimal %s: %w", d.String(), err)
	}
	return n, nil
}

func toTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func fromTimestamptz(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}

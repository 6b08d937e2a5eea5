package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammadpnp/product-import/internal/domain/catalog"
)

// upsertProductsSQL finishes an INSERT into products. Callers supply a
// deduplicated, normalized row set so no key is touched twice in one command.
const upsertProductsSQL = `
    ON CONFLICT (sku) DO UPDATE
      SET name = EXCLUDED.name,
          description = EXCLUDED.description,
          active = EXCLUDED.active,
          updated_at = NOW()
    RETURNING (xmax = 0) AS inserted
`

// ProductBulkRepository owns the fast paths into the catalog: COPY into the
// staging table, the job-wide merge, and the per-chunk upsert.
type ProductBulkRepository struct {
	pool *pgxpool.Pool
}

func NewProductBulkRepository(pool *pgxpool.Pool) *ProductBulkRepository {
	return &ProductBulkRepository{pool: pool}
}

// Stage copies every record of src into the staging table under jobID in one
// pass. Rows left by an earlier attempt for the same job are replaced in the
// same transaction.
func (r *ProductBulkRepository) Stage(ctx context.Context, jobID string, src catalog.RecordSource) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM product_import_staging WHERE job_id = $1", jobID); err != nil {
		return 0, fmt.Errorf("clear previous staging: %w", err)
	}

	var srcErr error
	rows := pgx.CopyFromFunc(func() ([]any, error) {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			srcErr = err
			return nil, err
		}
		return []any{jobID, rec.SKU, rec.Name, rec.Description}, nil
	})

	staged, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"product_import_staging"},
		[]string{"job_id", "sku", "name", "description"},
		rows,
	)
	if srcErr != nil {
		return 0, srcErr
	}
	if err != nil {
		return 0, classify(fmt.Errorf("copy staging: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit staging: %w", err)
	}
	return staged, nil
}

// Merge upserts the winning staged row per normalized SKU into products. The
// row with the highest staging id wins. Concurrent merges of the same job are
// serialized on an advisory lock; merges of different jobs do not block each
// other beyond row locks on shared SKUs.
func (r *ProductBulkRepository) Merge(ctx context.Context, jobID string) (catalog.MergeResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return catalog.MergeResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", jobID); err != nil {
		return catalog.MergeResult{}, fmt.Errorf("lock job merge: %w", err)
	}

	rows, err := tx.Query(ctx, `
WITH staged AS (
    SELECT DISTINCT ON (LOWER(BTRIM(sku)))
      LOWER(BTRIM(sku)) AS sku,
      COALESCE(name, '') AS name,
      COALESCE(description, '') AS description
    FROM product_import_staging
    WHERE job_id = $1 AND BTRIM(COALESCE(sku, '')) <> ''
    ORDER BY LOWER(BTRIM(sku)), id DESC
), upserted AS (
    INSERT INTO products (sku, name, description, active, created_at, updated_at)
    SELECT sku, name, description, TRUE, NOW(), NOW()
    FROM staged
`+upsertProductsSQL+`
)
SELECT inserted FROM upserted
`, jobID)
	if err != nil {
		return catalog.MergeResult{}, classify(fmt.Errorf("merge staged products: %w", err))
	}

	result, err := countInsertedUpdated(rows)
	rows.Close()
	if err != nil {
		return catalog.MergeResult{}, classify(fmt.Errorf("merge staged products: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return catalog.MergeResult{}, fmt.Errorf("commit merge: %w", err)
	}
	return result, nil
}

// PurgeStaged deletes every staged row of the job. It must only run after the
// merge committed.
func (r *ProductBulkRepository) PurgeStaged(ctx context.Context, jobID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM product_import_staging WHERE job_id = $1", jobID)
	if err != nil {
		return 0, fmt.Errorf("cleanup product_import_staging: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertChunk writes already deduplicated records straight into products in a
// single transaction of its own.
func (r *ProductBulkRepository) UpsertChunk(ctx context.Context, records []catalog.Record) (catalog.MergeResult, error) {
	if len(records) == 0 {
		return catalog.MergeResult{}, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return catalog.MergeResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
CREATE TEMP TABLE chunk_products (
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT NOT NULL
) ON COMMIT DROP
`); err != nil {
		return catalog.MergeResult{}, fmt.Errorf("create chunk table: %w", err)
	}

	chunkRows := make([][]any, 0, len(records))
	for _, rec := range records {
		chunkRows = append(chunkRows, []any{rec.Key(), rec.Name, rec.Description})
	}
	if _, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"chunk_products"},
		[]string{"sku", "name", "description"},
		pgx.CopyFromRows(chunkRows),
	); err != nil {
		return catalog.MergeResult{}, classify(fmt.Errorf("copy chunk: %w", err))
	}

	rows, err := tx.Query(ctx, `
INSERT INTO products (sku, name, description, active, created_at, updated_at)
SELECT sku, name, description, TRUE, NOW(), NOW()
FROM chunk_products
`+upsertProductsSQL)
	if err != nil {
		return catalog.MergeResult{}, classify(fmt.Errorf("upsert chunk products: %w", err))
	}

	result, err := countInsertedUpdated(rows)
	rows.Close()
	if err != nil {
		return catalog.MergeResult{}, classify(fmt.Errorf("upsert chunk products: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return catalog.MergeResult{}, fmt.Errorf("commit chunk: %w", err)
	}
	return result, nil
}

func countInsertedUpdated(rows pgx.Rows) (catalog.MergeResult, error) {
	var result catalog.MergeResult

	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			return catalog.MergeResult{}, err
		}
		if inserted {
			result.InsertedCount++
		} else {
			result.UpdatedCount++
		}
	}

	if err := rows.Err(); err != nil {
		return catalog.MergeResult{}, err
	}
	return result, nil
}

// classify marks Postgres data exceptions (SQLSTATE class 22, e.g. a value too
// long for its column) as malformed input so they are not retried.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "22") {
		return fmt.Errorf("%w: %v", catalog.ErrMalformedInput, err)
	}
	return err
}

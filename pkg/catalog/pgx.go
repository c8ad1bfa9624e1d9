package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aager/image-backfill/pkg/core"
	"github.com/aager/image-backfill/pkg/limits"
)

// PgxCatalog implements core.CatalogReader and core.CatalogWriter against
// a Postgres catalog using native pgx. The schema matches Record.
type PgxCatalog struct {
	pool      *pgxpool.Pool
	batchSize int
}

// NewPgxCatalog creates a pgx-backed catalog adapter on an existing pool.
func NewPgxCatalog(pool *pgxpool.Pool, batchSize int) *PgxCatalog {
	return &PgxCatalog{pool: pool, batchSize: limits.ClampBatchSize(batchSize)}
}

// ConnectPool dials Postgres with exponential backoff. Catalog databases
// behind connection poolers can take a moment to admit new clients during
// deploys; retrying here keeps startup from flapping.
func ConnectPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 30 * time.Second
	expBackoff.InitialInterval = time.Second

	operation := func() error {
		var err error
		pool, err = pgxpool.New(ctx, dsn)
		if err != nil {
			return err
		}
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
	}
	return pool, nil
}

const listCandidatesQuery = `
SELECT id, lookup_key, COALESCE(name, ''), COALESCE(image_ref, ''), version
FROM catalog_records
WHERE (image_ref IS NULL OR image_ref = '')
  AND lookup_key <> ''
  AND id > $1
ORDER BY id ASC
LIMIT $2`

// ListCandidates streams records lacking an image and carrying a lookup
// key, in ID order, in keyset-paginated batches.
func (c *PgxCatalog) ListCandidates(ctx context.Context, batch func(items []core.WorkItem) error) error {
	lastID := ""
	for {
		items, err := c.listPage(ctx, lastID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := batch(items); err != nil {
			return err
		}
		lastID = items[len(items)-1].ID
		if len(items) < c.batchSize {
			return nil
		}
	}
}

func (c *PgxCatalog) listPage(ctx context.Context, lastID string) ([]core.WorkItem, error) {
	rows, err := c.pool.Query(ctx, listCandidatesQuery, lastID, c.batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
	}
	defer rows.Close()

	var items []core.WorkItem
	for rows.Next() {
		var item core.WorkItem
		if err := rows.Scan(&item.ID, &item.LookupKey, &item.Name, &item.ImageRef, &item.Version); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
		}
		item.Status = core.StatusPending
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
	}
	return items, nil
}

// Get returns a single record by ID.
func (c *PgxCatalog) Get(ctx context.Context, id string) (core.WorkItem, error) {
	var item core.WorkItem
	err := c.pool.QueryRow(ctx,
		`SELECT id, lookup_key, COALESCE(name, ''), COALESCE(image_ref, ''), version
		 FROM catalog_records WHERE id = $1`, id).
		Scan(&item.ID, &item.LookupKey, &item.Name, &item.ImageRef, &item.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.WorkItem{}, core.ErrRecordMissing
	}
	if err != nil {
		return core.WorkItem{}, fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
	}
	item.Status = core.StatusPending
	return item, nil
}

// UpdateImageRef writes the image reference back with an optimistic
// version check when expectedVersion is non-zero.
func (c *PgxCatalog) UpdateImageRef(ctx context.Context, id, ref string, expectedVersion int64) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE catalog_records
		 SET image_ref = $1, version = version + 1, updated_at = now()
		 WHERE id = $2 AND ($3 = 0 OR version = $3)`,
		ref, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := c.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM catalog_records WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
		}
		if !exists {
			return core.ErrRecordMissing
		}
		return core.ErrVersionConflict
	}
	return nil
}

// Close releases the pool.
func (c *PgxCatalog) Close() {
	c.pool.Close()
}

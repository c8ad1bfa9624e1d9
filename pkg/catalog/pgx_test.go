package catalog

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aager/image-backfill/pkg/core"
)

// skipIfNotPostgres skips the test when TEST_DATABASE_URL is not set.
func skipIfNotPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping PostgreSQL-specific test")
	}
}

func newPgxTestCatalog(t *testing.T) *PgxCatalog {
	t.Helper()
	ctx := context.Background()

	pool, err := ConnectPool(ctx, os.Getenv("TEST_DATABASE_URL"))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS catalog_records`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		CREATE TABLE catalog_records (
			id TEXT PRIMARY KEY,
			lookup_key TEXT NOT NULL DEFAULT '',
			name TEXT,
			image_ref TEXT,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DROP TABLE IF EXISTS catalog_records`)
	})

	return NewPgxCatalog(pool, 100)
}

func TestPgxCatalogRoundTrip(t *testing.T) {
	skipIfNotPostgres(t)

	cat := newPgxTestCatalog(t)
	ctx := context.Background()

	_, err := cat.pool.Exec(ctx, `
		INSERT INTO catalog_records (id, lookup_key, name) VALUES
			('sku-1', '100', 'Olive oil'),
			('sku-2', '200', 'Rye bread'),
			('sku-3', '', 'No barcode')`)
	require.NoError(t, err)

	var enumerated []string
	err = cat.ListCandidates(ctx, func(items []core.WorkItem) error {
		for _, item := range items {
			enumerated = append(enumerated, item.ID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sku-1", "sku-2"}, enumerated)

	require.NoError(t, cat.UpdateImageRef(ctx, "sku-1", "s3://images/sku-1.png", 1))

	item, err := cat.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, "s3://images/sku-1.png", item.ImageRef)
	assert.Equal(t, int64(2), item.Version)

	err = cat.UpdateImageRef(ctx, "sku-1", "s3://images/stale.png", 1)
	assert.ErrorIs(t, err, core.ErrVersionConflict)

	err = cat.UpdateImageRef(ctx, "ghost", "s3://images/ghost.png", 1)
	assert.ErrorIs(t, err, core.ErrRecordMissing)
}

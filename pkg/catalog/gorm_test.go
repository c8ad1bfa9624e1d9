package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aager/image-backfill/pkg/core"
)

func newTestCatalog(t *testing.T, batchSize int) *GormCatalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	cat, err := NewSQLiteCatalog(path, batchSize)
	require.NoError(t, err)
	require.NoError(t, cat.Migrate(context.Background()))
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func TestListCandidatesFiltersAndOrders(t *testing.T) {
	cat := newTestCatalog(t, 100)
	ctx := context.Background()

	require.NoError(t, cat.Seed(ctx, []Record{
		{ID: "sku-3", LookupKey: "300", Name: "Mineral water"},
		{ID: "sku-1", LookupKey: "100", Name: "Olive oil"},
		{ID: "sku-2", LookupKey: "200", Name: "Rye bread", ImageRef: "s3://images/sku-2.png"},
		{ID: "sku-4", LookupKey: "", Name: "No barcode"},
	}))

	var got []string
	err := cat.ListCandidates(ctx, func(items []core.WorkItem) error {
		for _, item := range items {
			got = append(got, item.ID)
		}
		return nil
	})
	require.NoError(t, err)

	// sku-2 already has an image, sku-4 has no lookup key.
	assert.Equal(t, []string{"sku-1", "sku-3"}, got)
}

func TestListCandidatesBatches(t *testing.T) {
	cat := newTestCatalog(t, 10)
	ctx := context.Background()

	records := make([]Record, 25)
	for i := range records {
		records[i] = Record{ID: fmt.Sprintf("sku-%03d", i), LookupKey: fmt.Sprintf("%013d", i)}
	}
	require.NoError(t, cat.Seed(ctx, records))

	var batches []int
	total := 0
	err := cat.ListCandidates(ctx, func(items []core.WorkItem) error {
		batches = append(batches, len(items))
		total += len(items)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{10, 10, 5}, batches)
	assert.Equal(t, 25, total)
}

func TestListCandidatesStopsOnCallbackError(t *testing.T) {
	cat := newTestCatalog(t, 2)
	ctx := context.Background()

	require.NoError(t, cat.Seed(ctx, []Record{
		{ID: "sku-1", LookupKey: "100"},
		{ID: "sku-2", LookupKey: "200"},
		{ID: "sku-3", LookupKey: "300"},
	}))

	calls := 0
	wantErr := fmt.Errorf("stop enumeration")
	err := cat.ListCandidates(ctx, func(items []core.WorkItem) error {
		calls++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestGet(t *testing.T) {
	cat := newTestCatalog(t, 100)
	ctx := context.Background()

	require.NoError(t, cat.Seed(ctx, []Record{
		{ID: "sku-1", LookupKey: "100", Name: "Olive oil"},
	}))

	item, err := cat.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, "sku-1", item.ID)
	assert.Equal(t, "Olive oil", item.Name)
	assert.Equal(t, int64(1), item.Version)

	_, err = cat.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrRecordMissing)
}

func TestUpdateImageRefBumpsVersion(t *testing.T) {
	cat := newTestCatalog(t, 100)
	ctx := context.Background()

	require.NoError(t, cat.Seed(ctx, []Record{{ID: "sku-1", LookupKey: "100"}}))

	require.NoError(t, cat.UpdateImageRef(ctx, "sku-1", "s3://images/sku-1.png", 1))

	item, err := cat.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, "s3://images/sku-1.png", item.ImageRef)
	assert.Equal(t, int64(2), item.Version)
}

func TestUpdateImageRefVersionConflict(t *testing.T) {
	cat := newTestCatalog(t, 100)
	ctx := context.Background()

	require.NoError(t, cat.Seed(ctx, []Record{{ID: "sku-1", LookupKey: "100"}}))

	// Another writer moved the record to version 2.
	require.NoError(t, cat.UpdateImageRef(ctx, "sku-1", "s3://images/other.png", 1))

	err := cat.UpdateImageRef(ctx, "sku-1", "s3://images/sku-1.png", 1)
	assert.ErrorIs(t, err, core.ErrVersionConflict)
}

func TestUpdateImageRefRecordMissing(t *testing.T) {
	cat := newTestCatalog(t, 100)

	err := cat.UpdateImageRef(context.Background(), "ghost", "s3://images/ghost.png", 1)
	assert.ErrorIs(t, err, core.ErrRecordMissing)
}

func TestUpdateImageRefLastWriterWins(t *testing.T) {
	cat := newTestCatalog(t, 100)
	ctx := context.Background()

	require.NoError(t, cat.Seed(ctx, []Record{{ID: "sku-1", LookupKey: "100"}}))
	require.NoError(t, cat.UpdateImageRef(ctx, "sku-1", "s3://images/first.png", 1))

	// expectedVersion 0 bypasses the optimistic check.
	require.NoError(t, cat.UpdateImageRef(ctx, "sku-1", "s3://images/second.png", 0))

	item, err := cat.Get(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, "s3://images/second.png", item.ImageRef)
}

package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aager/image-backfill/pkg/core"
)

func newTestStore(t *testing.T) (*GormStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoint.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func TestOpenAllCreatesFreshLineage(t *testing.T) {
	store, _ := newTestStore(t)

	lineage, err := store.Open(context.Background(), core.ModeAll)
	require.NoError(t, err)

	assert.NotEmpty(t, lineage.ID)
	assert.Equal(t, core.ModeAll, lineage.Mode)
	assert.Empty(t, store.Completed())
}

func TestMarkCompletedIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Open(ctx, core.ModeAll)
	require.NoError(t, err)

	entry := core.CompletedEntry{
		ItemID:   "sku-1",
		Status:   core.StatusSucceeded,
		ImageRef: "s3://images/sku-1.png",
		Attempts: 1,
	}
	require.NoError(t, store.MarkCompleted(ctx, entry))
	require.NoError(t, store.MarkCompleted(ctx, entry))

	entries := store.Completed()
	require.Len(t, entries, 1)
	assert.Equal(t, "sku-1", entries[0].ItemID)
	assert.True(t, store.IsCompleted("sku-1"))
	assert.False(t, store.IsCompleted("sku-2"))
}

func TestCompletedSurvivesReopen(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	_, err := store.Open(ctx, core.ModeAll)
	require.NoError(t, err)
	for _, id := range []string{"sku-1", "sku-2", "sku-3"} {
		require.NoError(t, store.MarkCompleted(ctx, core.CompletedEntry{
			ItemID: id,
			Status: core.StatusSucceeded,
		}))
	}
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	lineage, err := reopened.Open(ctx, core.ModeResume)
	require.NoError(t, err)

	assert.Equal(t, core.ModeAll, lineage.Mode)
	assert.Len(t, reopened.Completed(), 3)
	assert.True(t, reopened.IsCompleted("sku-2"))
}

func TestResumeIgnoresTestLineages(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	_, err := store.Open(ctx, core.ModeTest)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, core.CompletedEntry{
		ItemID: "sku-1",
		Status: core.StatusSucceeded,
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	lineage, err := reopened.Open(ctx, core.ModeResume)
	require.NoError(t, err)

	// The test lineage is invisible; resume starts fresh.
	assert.NotEqual(t, core.ModeTest, lineage.Mode)
	assert.Empty(t, reopened.Completed())
	assert.False(t, reopened.IsCompleted("sku-1"))
}

func TestResumePicksNewestNonTestLineage(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	first, err := store.Open(ctx, core.ModeAll)
	require.NoError(t, err)
	require.NoError(t, store.MarkCompleted(ctx, core.CompletedEntry{ItemID: "old", Status: core.StatusSucceeded}))

	second, err := store.Open(ctx, core.ModeAll)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.NoError(t, store.MarkCompleted(ctx, core.CompletedEntry{ItemID: "new", Status: core.StatusSucceeded}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	lineage, err := reopened.Open(ctx, core.ModeResume)
	require.NoError(t, err)

	assert.Equal(t, second.ID, lineage.ID)
	assert.True(t, reopened.IsCompleted("new"))
	assert.False(t, reopened.IsCompleted("old"))
}

func TestMarkCompletedRequiresOpenLineage(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.MarkCompleted(context.Background(), core.CompletedEntry{ItemID: "sku-1"})
	assert.ErrorIs(t, err, core.ErrCheckpointClosed)
}

func TestFailedPermanentEntriesAreRecorded(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Open(ctx, core.ModeAll)
	require.NoError(t, err)

	require.NoError(t, store.MarkCompleted(ctx, core.CompletedEntry{
		ItemID:   "sku-9",
		Status:   core.StatusFailedPermanent,
		Reason:   core.ReasonNoImageFound,
		Attempts: 1,
	}))

	entries := store.Completed()
	require.Len(t, entries, 1)
	assert.Equal(t, core.StatusFailedPermanent, entries[0].Status)
	assert.Equal(t, core.ReasonNoImageFound, entries[0].Reason)
}

package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig()

	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, time.Minute, cfg.ConnMaxIdleTime)
}

func TestPoolOptionsOverrideDefaults(t *testing.T) {
	cfg := DefaultPoolConfig()
	for _, opt := range []PoolOption{
		MaxOpenConns(3),
		MaxIdleConns(2),
		ConnMaxLifetime(time.Minute),
		ConnMaxIdleTime(10 * time.Second),
	} {
		opt.applyPool(&cfg)
	}

	assert.Equal(t, 3, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)
	assert.Equal(t, time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 10*time.Second, cfg.ConnMaxIdleTime)
}

func TestNewSQLiteCatalogAppliesPoolSizing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	cat, err := NewSQLiteCatalog(path, 100, MaxOpenConns(3), MaxIdleConns(2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })

	sqlDB, err := cat.db.DB()
	require.NoError(t, err)
	assert.Equal(t, 3, sqlDB.Stats().MaxOpenConnections)
}

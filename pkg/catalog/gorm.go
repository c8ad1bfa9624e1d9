package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aager/image-backfill/pkg/core"
	"github.com/aager/image-backfill/pkg/limits"
)

// Record is the catalog row shape this adapter works against.
type Record struct {
	ID        string    `gorm:"primaryKey;size:255"`
	LookupKey string    `gorm:"index;size:128"`
	Name      string    `gorm:"size:255"`
	ImageRef  string    `gorm:"type:text"`
	Version   int64     `gorm:"default:1"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Record) TableName() string { return "catalog_records" }

func (r Record) toItem() core.WorkItem {
	return core.WorkItem{
		ID:        r.ID,
		LookupKey: r.LookupKey,
		Name:      r.Name,
		Version:   r.Version,
		Status:    core.StatusPending,
		ImageRef:  r.ImageRef,
	}
}

// GormCatalog implements core.CatalogReader and core.CatalogWriter
// using GORM.
type GormCatalog struct {
	db        *gorm.DB
	batchSize int
}

// NewGormCatalog creates a GORM-backed catalog adapter.
func NewGormCatalog(db *gorm.DB, batchSize int) *GormCatalog {
	return &GormCatalog{db: db, batchSize: limits.ClampBatchSize(batchSize)}
}

// NewSQLiteCatalog opens the catalog database at path with default pool
// sizing for concurrent write-back workers.
func NewSQLiteCatalog(path string, batchSize int, opts ...PoolOption) (*GormCatalog, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog db %s: %w", path, err)
	}
	return NewGormCatalogWithPool(db, batchSize, opts...)
}

// Migrate creates the catalog table. Production catalogs own their
// schema; this serves embedded SQLite catalogs and tests.
func (c *GormCatalog) Migrate(ctx context.Context) error {
	return c.db.WithContext(ctx).AutoMigrate(&Record{})
}

// Seed inserts records, for local runs and tests.
func (c *GormCatalog) Seed(ctx context.Context, records []Record) error {
	for i := range records {
		if records[i].Version == 0 {
			records[i].Version = 1
		}
	}
	return c.db.WithContext(ctx).Create(&records).Error
}

// ListCandidates streams records lacking an image and carrying a lookup
// key, in ID order, in keyset-paginated batches.
func (c *GormCatalog) ListCandidates(ctx context.Context, batch func(items []core.WorkItem) error) error {
	lastID := ""
	for {
		var records []Record
		q := c.db.WithContext(ctx).
			Where("(image_ref IS NULL OR image_ref = '')").
			Where("lookup_key <> ''").
			Order("id ASC").
			Limit(c.batchSize)
		if lastID != "" {
			q = q.Where("id > ?", lastID)
		}
		if err := q.Find(&records).Error; err != nil {
			return fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
		}
		if len(records) == 0 {
			return nil
		}

		items := make([]core.WorkItem, len(records))
		for i, r := range records {
			items[i] = r.toItem()
		}
		if err := batch(items); err != nil {
			return err
		}

		lastID = records[len(records)-1].ID
		if len(records) < c.batchSize {
			return nil
		}
	}
}

// Get returns a single record by ID.
func (c *GormCatalog) Get(ctx context.Context, id string) (core.WorkItem, error) {
	var rec Record
	err := c.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.WorkItem{}, core.ErrRecordMissing
	}
	if err != nil {
		return core.WorkItem{}, fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
	}
	return rec.toItem(), nil
}

// UpdateImageRef writes the image reference back. A non-zero
// expectedVersion enables the optimistic check; zero rows affected then
// means either the record moved or it is gone.
func (c *GormCatalog) UpdateImageRef(ctx context.Context, id, ref string, expectedVersion int64) error {
	q := c.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id)
	if expectedVersion > 0 {
		q = q.Where("version = ?", expectedVersion)
	}
	result := q.Updates(map[string]any{
		"image_ref": ref,
		"version":   gorm.Expr("version + 1"),
	})
	if result.Error != nil {
		return fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := c.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("%w: %v", core.ErrCatalogUnavailable, err)
		}
		if count == 0 {
			return core.ErrRecordMissing
		}
		return core.ErrVersionConflict
	}
	return nil
}

// Close releases the underlying database handle.
func (c *GormCatalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

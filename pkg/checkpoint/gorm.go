package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/aager/image-backfill/pkg/core"
	"github.com/aager/image-backfill/pkg/limits"
)

// GormStore implements core.CheckpointStore using GORM. Entries are
// committed before MarkCompleted returns, so an acknowledged item stays
// completed across a crash.
type GormStore struct {
	db *gorm.DB

	mu      sync.RWMutex
	lineage *core.Lineage
	done    map[string]core.CompletedEntry
}

// NewGormStore creates a GORM-backed checkpoint store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, done: make(map[string]core.CompletedEntry)}
}

// NewSQLiteStore opens (creating if needed) the checkpoint database at
// path and returns a store bound to it.
func NewSQLiteStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db %s: %w", path, err)
	}
	return NewGormStore(db), nil
}

// Open binds the store to a lineage for the given run mode. ModeAll and
// ModeTest begin fresh lineages; ModeResume reopens the newest lineage
// whose mode is not test, or begins a fresh one when none exists.
func (s *GormStore) Open(ctx context.Context, mode core.RunMode) (core.Lineage, error) {
	if err := s.db.WithContext(ctx).AutoMigrate(&lineageRecord{}, &completedRecord{}); err != nil {
		return core.Lineage{}, fmt.Errorf("migrate checkpoint db: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == core.ModeResume {
		var rec lineageRecord
		err := s.db.WithContext(ctx).
			Where("mode <> ?", string(core.ModeTest)).
			Order("started_at DESC").
			First(&rec).Error
		switch {
		case err == nil:
			return s.loadLineage(ctx, rec)
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Nothing to resume; degrade to a fresh full run.
		default:
			return core.Lineage{}, fmt.Errorf("load lineage: %w", err)
		}
	}

	now := time.Now()
	rec := lineageRecord{
		ID:        uuid.New().String(),
		Mode:      string(mode),
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return core.Lineage{}, fmt.Errorf("create lineage: %w", err)
	}

	s.lineage = &core.Lineage{ID: rec.ID, Mode: mode, StartedAt: rec.StartedAt, UpdatedAt: rec.UpdatedAt}
	s.done = make(map[string]core.CompletedEntry)
	return *s.lineage, nil
}

// loadLineage hydrates the in-memory completed set. Caller holds s.mu.
func (s *GormStore) loadLineage(ctx context.Context, rec lineageRecord) (core.Lineage, error) {
	var records []completedRecord
	if err := s.db.WithContext(ctx).
		Where("lineage_id = ?", rec.ID).
		Find(&records).Error; err != nil {
		return core.Lineage{}, fmt.Errorf("load completed items: %w", err)
	}

	done := make(map[string]core.CompletedEntry, len(records))
	for _, r := range records {
		done[r.ItemID] = r.toEntry()
	}

	s.lineage = &core.Lineage{
		ID:        rec.ID,
		Mode:      core.RunMode(rec.Mode),
		StartedAt: rec.StartedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	s.done = done
	return *s.lineage, nil
}

// MarkCompleted durably appends a terminal entry. Re-marking an item
// already present in the lineage is a no-op.
func (s *GormStore) MarkCompleted(ctx context.Context, entry core.CompletedEntry) error {
	s.mu.RLock()
	lineage := s.lineage
	s.mu.RUnlock()
	if lineage == nil {
		return core.ErrCheckpointClosed
	}

	rec := completedRecord{
		LineageID:   lineage.ID,
		ItemID:      entry.ItemID,
		Status:      string(entry.Status),
		Reason:      limits.SanitizeErrorMessage(entry.Reason),
		ImageRef:    entry.ImageRef,
		Attempts:    entry.Attempts,
		CompletedAt: entry.CompletedAt,
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
			return err
		}
		return tx.Model(&lineageRecord{}).
			Where("id = ?", lineage.ID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return fmt.Errorf("mark completed %s: %w", entry.ItemID, err)
	}

	s.mu.Lock()
	if _, exists := s.done[entry.ItemID]; !exists {
		s.done[entry.ItemID] = rec.toEntry()
	}
	s.mu.Unlock()
	return nil
}

// IsCompleted reports whether the item is terminal in the open lineage.
func (s *GormStore) IsCompleted(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.done[id]
	return ok
}

// Completed returns a snapshot of the lineage's terminal entries.
func (s *GormStore) Completed() []core.CompletedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]core.CompletedEntry, 0, len(s.done))
	for _, e := range s.done {
		entries = append(entries, e)
	}
	return entries
}

// Close releases the underlying database handle.
func (s *GormStore) Close() error {
	s.mu.Lock()
	s.lineage = nil
	s.mu.Unlock()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package checkpoint

import (
	"time"

	"github.com/aager/image-backfill/pkg/core"
)

// lineageRecord is the persisted form of a checkpoint lineage.
type lineageRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Mode      string    `gorm:"index;size:20;not null"`
	StartedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (lineageRecord) TableName() string { return "lineages" }

// completedRecord is one terminal item in a lineage. The composite
// primary key makes re-marking an item a conflict, which MarkCompleted
// treats as a no-op.
type completedRecord struct {
	LineageID   string    `gorm:"primaryKey;size:36"`
	ItemID      string    `gorm:"primaryKey;size:255"`
	Status      string    `gorm:"size:20;not null"`
	Reason      string    `gorm:"size:64"`
	ImageRef    string    `gorm:"type:text"`
	Attempts    int       `gorm:"default:0"`
	CompletedAt time.Time `gorm:"autoCreateTime"`
}

func (completedRecord) TableName() string { return "completed_items" }

func (r completedRecord) toEntry() core.CompletedEntry {
	return core.CompletedEntry{
		ItemID:      r.ItemID,
		Status:      core.ItemStatus(r.Status),
		Reason:      r.Reason,
		ImageRef:    r.ImageRef,
		Attempts:    r.Attempts,
		CompletedAt: r.CompletedAt,
	}
}

package core

import (
	"time"
)

// ItemStatus represents the current state of a work item.
type ItemStatus string

const (
	StatusPending         ItemStatus = "pending"
	StatusInProgress      ItemStatus = "in_progress"
	StatusSucceeded       ItemStatus = "succeeded"
	StatusFailedPermanent ItemStatus = "failed_permanent"
	StatusFailedTransient ItemStatus = "failed_transient"
)

// IsTerminal reports whether the status closes an item for the run.
// Transient failures stay retryable until the retry budget is spent.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailedPermanent
}

// RunMode selects how a run relates to prior checkpoint state.
type RunMode string

const (
	// ModeTest processes a capped number of items in a throwaway lineage.
	ModeTest RunMode = "test"
	// ModeAll processes every candidate in a fresh lineage.
	ModeAll RunMode = "all"
	// ModeResume continues the newest non-test lineage.
	ModeResume RunMode = "resume"
)

// WorkItem is one catalog record to enrich with an image.
type WorkItem struct {
	ID        string
	LookupKey string
	Name      string
	Version   int64
	Status    ItemStatus
	Attempts  int
	LastError string
	ImageRef  string
}

// Outcome is the result of one processing attempt for an item.
type Outcome struct {
	Status   ItemStatus
	ImageRef string
	Reason   string
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the attempt produced a written-back image.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// CompletedEntry is one terminal item recorded in a checkpoint lineage.
type CompletedEntry struct {
	ItemID      string
	Status      ItemStatus
	Reason      string
	ImageRef    string
	Attempts    int
	CompletedAt time.Time
}

// Lineage identifies one durable checkpoint history. A run owns exactly
// one lineage; resume reopens an existing one.
type Lineage struct {
	ID        string
	Mode      RunMode
	StartedAt time.Time
	UpdatedAt time.Time
}

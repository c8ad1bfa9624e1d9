package core

import "time"

// Event is the interface for all run events.
type Event interface {
	eventMarker()
}

// RunStarted is emitted once enumeration has produced the worklist.
type RunStarted struct {
	RunID     string
	Mode      RunMode
	Total     int
	Skipped   int
	Timestamp time.Time
}

func (*RunStarted) eventMarker() {}

// ItemStarted is emitted when a worker picks up an item.
type ItemStarted struct {
	Item      *WorkItem
	Attempt   int
	Timestamp time.Time
}

func (*ItemStarted) eventMarker() {}

// ItemSucceeded is emitted when an item's image reference is written back.
type ItemSucceeded struct {
	Item      *WorkItem
	ImageRef  string
	Duration  time.Duration
	Timestamp time.Time
}

func (*ItemSucceeded) eventMarker() {}

// ItemFailed is emitted when an item reaches a failed terminal state.
type ItemFailed struct {
	Item      *WorkItem
	Reason    string
	Err       error
	Timestamp time.Time
}

func (*ItemFailed) eventMarker() {}

// ItemRetrying is emitted when a transient failure is re-enqueued.
type ItemRetrying struct {
	Item          *WorkItem
	Attempt       int
	Err           error
	NextAttemptAt time.Time
	Timestamp     time.Time
}

func (*ItemRetrying) eventMarker() {}

// ItemCancelled is emitted for items abandoned by a draining run. They
// are not checkpointed and re-run on resume.
type ItemCancelled struct {
	Item      *WorkItem
	Timestamp time.Time
}

func (*ItemCancelled) eventMarker() {}

// CheckpointWritten is emitted after a terminal state is durably recorded.
type CheckpointWritten struct {
	ItemID    string
	Status    ItemStatus
	Timestamp time.Time
}

func (*CheckpointWritten) eventMarker() {}

// RunFinished is emitted once, after the pool has drained.
type RunFinished struct {
	RunID     string
	Phase     string
	Timestamp time.Time
}

func (*RunFinished) eventMarker() {}

package core

import (
	"context"
)

// ImageCandidate is one ranked search result for a lookup key.
type ImageCandidate struct {
	URL    string
	Rank   int
	Width  int
	Height int
	Source string
}

// ImagePayload is raw image bytes plus the detected content type.
type ImagePayload struct {
	Data        []byte
	ContentType string
}

// CatalogReader streams catalog records that still need an image.
type CatalogReader interface {
	// ListCandidates invokes batch for each page of records that lack an
	// image and carry a non-empty lookup key, in stable ID order.
	// Enumeration stops on the first error; a reader failure is fatal to
	// the run and surfaces as ErrCatalogUnavailable.
	ListCandidates(ctx context.Context, batch func(items []WorkItem) error) error
}

// CatalogWriter reads single records and writes image references back.
type CatalogWriter interface {
	Get(ctx context.Context, id string) (WorkItem, error)

	// UpdateImageRef sets the record's image reference. A non-zero
	// expectedVersion enables the optimistic check; adapters report
	// ErrVersionConflict when the record moved and ErrRecordMissing when
	// it is gone. expectedVersion 0 writes last-writer-wins.
	UpdateImageRef(ctx context.Context, id, ref string, expectedVersion int64) error
}

// ImageSearcher resolves image candidates for a lookup key. An empty
// result means no image exists for the key; that is not an error.
type ImageSearcher interface {
	Search(ctx context.Context, lookupKey string) ([]ImageCandidate, error)
}

// ImageFetcher downloads a candidate image within configured bounds.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (ImagePayload, error)
}

// BackgroundRemover produces a background-free version of an image. The
// no-op implementation stands in when the capability is disabled, so
// callers never branch on presence.
type BackgroundRemover interface {
	Remove(ctx context.Context, payload ImagePayload) (ImagePayload, error)
}

// BlobStore persists processed images. Keys are deterministic per item,
// so re-uploading after a retry lands on the same object.
type BlobStore interface {
	Put(ctx context.Context, key string, payload ImagePayload) (string, error)
}

// CheckpointStore persists the completion state of one lineage. It is
// the only durable state shared across runs.
type CheckpointStore interface {
	// Open binds the store to a lineage for the given run mode. ModeAll
	// and ModeTest begin fresh lineages; ModeResume reopens the newest
	// lineage whose mode is not test, or begins a fresh one when none
	// exists.
	Open(ctx context.Context, mode RunMode) (Lineage, error)

	// MarkCompleted durably appends a terminal entry before returning.
	// Re-marking an item already present in the lineage is a no-op.
	MarkCompleted(ctx context.Context, entry CompletedEntry) error

	// IsCompleted reports whether the item is terminal in the open lineage.
	IsCompleted(id string) bool

	// Completed returns a snapshot of the lineage's terminal entries.
	Completed() []CompletedEntry

	Close() error
}

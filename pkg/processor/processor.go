// Package processor runs the five-stage enrichment pipeline for a single
// work item: resolve a candidate image, download it, remove its
// background, upload the result, and write the reference back to the
// catalog. Every external call is gated by the shared rate limiter and
// bounded by a per-stage timeout.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aager/image-backfill/pkg/core"
	"github.com/aager/image-backfill/pkg/limits"
	"github.com/aager/image-backfill/pkg/ratelimit"
	"github.com/aager/image-backfill/pkg/telemetry"
)

// Timeouts bounds each pipeline stage. Zero values disable the bound for
// that stage.
type Timeouts struct {
	Resolve   time.Duration
	Download  time.Duration
	Transform time.Duration
	Upload    time.Duration
	WriteBack time.Duration
}

// Processor transforms one WorkItem per call. It is safe for concurrent
// use by the orchestrator's workers.
type Processor struct {
	searcher core.ImageSearcher
	fetcher  core.ImageFetcher
	remover  core.BackgroundRemover
	store    core.BlobStore
	writer   core.CatalogWriter
	limiter  *ratelimit.Limiter

	timeouts  Timeouts
	keyPrefix string
	logger    *slog.Logger

	// uploaded memoizes itemID -> blob ref for the run, so a write-back
	// retry does not redo the search/download/transform/upload work.
	mu       sync.Mutex
	uploaded map[string]string
}

// Deps bundles the capability ports the processor drives.
type Deps struct {
	Searcher core.ImageSearcher
	Fetcher  core.ImageFetcher
	Remover  core.BackgroundRemover
	Store    core.BlobStore
	Writer   core.CatalogWriter
	Limiter  *ratelimit.Limiter
}

// New creates a processor. KeyPrefix namespaces blob keys, e.g.
// "products" yields keys like products/{id}.png.
func New(deps Deps, timeouts Timeouts, keyPrefix string) *Processor {
	return &Processor{
		searcher:  deps.Searcher,
		fetcher:   deps.Fetcher,
		remover:   deps.Remover,
		store:     deps.Store,
		writer:    deps.Writer,
		limiter:   deps.Limiter,
		timeouts:  timeouts,
		keyPrefix: keyPrefix,
		logger:    slog.Default().With("component", "processor"),
		uploaded:  make(map[string]string),
	}
}

// ObjectKey returns the deterministic blob key for an item. Stable across
// attempts and runs, so re-uploads overwrite instead of duplicating.
func (p *Processor) ObjectKey(itemID string) string {
	return path.Join(p.keyPrefix, itemID+".png")
}

// Process runs one attempt for the item and reports the outcome. Failures
// come back as data, never as panics or run-level errors; a panic inside
// an adapter is recovered into a transient outcome.
func (p *Processor) Process(ctx context.Context, item *core.WorkItem) (outcome core.Outcome) {
	start := time.Now()
	item.Status = core.StatusInProgress
	item.Attempts++

	ctx = core.WithItem(ctx, item)
	ctx, span := telemetry.StartSpan(ctx, "backfill.item",
		attribute.String("item.id", item.ID),
		attribute.Int("item.attempt", item.Attempts),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			outcome = p.failure(item, core.Transient("panic", fmt.Errorf("panic: %v", r)), start)
		}
	}()

	ref, err := p.enrich(ctx, item)
	if err != nil {
		return p.failure(item, err, start)
	}

	item.Status = core.StatusSucceeded
	item.ImageRef = ref
	item.LastError = ""
	p.logger.InfoContext(ctx, "item enriched",
		"item", item.ID,
		"ref", ref,
		"attempt", item.Attempts,
		"duration", time.Since(start))
	return core.Outcome{
		Status:   core.StatusSucceeded,
		ImageRef: ref,
		Duration: time.Since(start),
	}
}

// enrich runs the stages in order and returns the written-back ref.
func (p *Processor) enrich(ctx context.Context, item *core.WorkItem) (string, error) {
	ref, memoized := p.memoizedRef(item.ID)
	if !memoized {
		payload, err := p.resolveAndPrepare(ctx, item)
		if err != nil {
			return "", err
		}

		ref, err = p.upload(ctx, item, payload)
		if err != nil {
			return "", err
		}
		p.memoize(item.ID, ref)
	} else {
		// The image already landed in blob storage on a prior attempt;
		// only the catalog write is outstanding. Re-read for a fresh
		// version before retrying it.
		fresh, err := p.refresh(ctx, item)
		if err != nil {
			return "", err
		}
		item.Version = fresh.Version
	}

	if err := p.writeBack(ctx, item, ref); err != nil {
		return "", err
	}
	return ref, nil
}

// resolveAndPrepare covers stages 1-3: resolve, download, transform.
func (p *Processor) resolveAndPrepare(ctx context.Context, item *core.WorkItem) (core.ImagePayload, error) {
	candidate, err := p.resolve(ctx, item)
	if err != nil {
		return core.ImagePayload{}, err
	}

	payload, err := p.download(ctx, candidate)
	if err != nil {
		return core.ImagePayload{}, err
	}

	return p.transform(ctx, payload)
}

func (p *Processor) resolve(ctx context.Context, item *core.WorkItem) (core.ImageCandidate, error) {
	ctx, span := telemetry.StartSpan(ctx, "backfill.item.resolve")
	defer span.End()

	if err := p.acquire(ctx); err != nil {
		return core.ImageCandidate{}, err
	}
	ctx, cancel := p.stageContext(ctx, p.timeouts.Resolve)
	defer cancel()

	candidates, err := p.searcher.Search(ctx, item.LookupKey)
	if err != nil {
		return core.ImageCandidate{}, err
	}
	if len(candidates) == 0 {
		return core.ImageCandidate{}, core.Permanent(core.ReasonNoImageFound,
			fmt.Errorf("no candidates for lookup key %q", item.LookupKey))
	}

	// Highest-ranked candidate wins; the searcher returns them ordered.
	return candidates[0], nil
}

func (p *Processor) download(ctx context.Context, candidate core.ImageCandidate) (core.ImagePayload, error) {
	ctx, span := telemetry.StartSpan(ctx, "backfill.item.download")
	defer span.End()

	if err := p.acquire(ctx); err != nil {
		return core.ImagePayload{}, err
	}
	ctx, cancel := p.stageContext(ctx, p.timeouts.Download)
	defer cancel()

	return p.fetcher.Fetch(ctx, candidate.URL)
}

func (p *Processor) transform(ctx context.Context, payload core.ImagePayload) (core.ImagePayload, error) {
	ctx, span := telemetry.StartSpan(ctx, "backfill.item.transform")
	defer span.End()

	if err := p.acquire(ctx); err != nil {
		return core.ImagePayload{}, err
	}
	ctx, cancel := p.stageContext(ctx, p.timeouts.Transform)
	defer cancel()

	return p.remover.Remove(ctx, payload)
}

func (p *Processor) upload(ctx context.Context, item *core.WorkItem, payload core.ImagePayload) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "backfill.item.upload")
	defer span.End()

	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	ctx, cancel := p.stageContext(ctx, p.timeouts.Upload)
	defer cancel()

	return p.store.Put(ctx, p.ObjectKey(item.ID), payload)
}

// writeBack is not rate limited: the catalog is owned infrastructure,
// not a quota-bound upstream.
func (p *Processor) writeBack(ctx context.Context, item *core.WorkItem, ref string) error {
	ctx, span := telemetry.StartSpan(ctx, "backfill.item.writeback")
	defer span.End()

	ctx, cancel := p.stageContext(ctx, p.timeouts.WriteBack)
	defer cancel()

	err := p.writer.UpdateImageRef(ctx, item.ID, ref, item.Version)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrVersionConflict):
		return core.Transient(core.ReasonWriteConflict, err)
	case errors.Is(err, core.ErrRecordMissing):
		return core.Permanent(core.ReasonRecordMissing, err)
	default:
		return err
	}
}

func (p *Processor) refresh(ctx context.Context, item *core.WorkItem) (core.WorkItem, error) {
	ctx, cancel := p.stageContext(ctx, p.timeouts.WriteBack)
	defer cancel()

	fresh, err := p.writer.Get(ctx, item.ID)
	if errors.Is(err, core.ErrRecordMissing) {
		return core.WorkItem{}, core.Permanent(core.ReasonRecordMissing, err)
	}
	return fresh, err
}

func (p *Processor) acquire(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return core.Transient(core.ReasonCancelled, err)
	}
	return nil
}

func (p *Processor) stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (p *Processor) memoizedRef(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.uploaded[id]
	return ref, ok
}

func (p *Processor) memoize(id, ref string) {
	p.mu.Lock()
	p.uploaded[id] = ref
	p.mu.Unlock()
}

func (p *Processor) failure(item *core.WorkItem, err error, start time.Time) core.Outcome {
	reason := core.FailureReason(err)
	status := core.StatusFailedTransient
	if core.IsPermanent(err) {
		status = core.StatusFailedPermanent
	}
	if errors.Is(err, context.Canceled) && reason == "" {
		reason = core.ReasonCancelled
	}

	item.Status = status
	item.LastError = limits.SanitizeErrorMessage(err.Error())

	level := slog.LevelWarn
	if status == core.StatusFailedPermanent {
		level = slog.LevelError
	}
	p.logger.Log(context.Background(), level, "item attempt failed",
		"item", item.ID,
		"status", string(status),
		"reason", reason,
		"attempt", item.Attempts,
		"error", err)

	return core.Outcome{
		Status:   status,
		Reason:   reason,
		Err:      err,
		Duration: time.Since(start),
	}
}

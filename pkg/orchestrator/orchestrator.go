// Package orchestrator drives a backfill run: it enumerates the
// worklist, dispatches items to a fixed worker pool, re-enqueues
// transient failures with backoff, records terminal outcomes in the
// checkpoint store, and drains cleanly on cancellation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/aager/image-backfill/pkg/core"
	"github.com/aager/image-backfill/pkg/limits"
	"github.com/aager/image-backfill/pkg/report"
	"github.com/aager/image-backfill/pkg/telemetry"
)

// Phase is the orchestrator's run state.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseEnumerating  Phase = "enumerating"
	PhaseProcessing   Phase = "processing"
	PhaseDraining     Phase = "draining"
	PhaseCompleted    Phase = "completed"
	PhaseAborted      Phase = "aborted"
)

// ItemProcessor is the per-item pipeline the worker pool drives.
type ItemProcessor interface {
	Process(ctx context.Context, item *core.WorkItem) core.Outcome
}

// Config holds the per-run parameters.
type Config struct {
	// Mode selects the checkpoint lineage behavior.
	Mode core.RunMode

	// TestLimit caps the worklist when Mode is ModeTest.
	TestLimit int

	// Concurrency is the fixed worker pool size.
	Concurrency int

	// MaxAttempts is the per-item retry budget for transient failures.
	MaxAttempts int

	// Backoff shapes the re-enqueue delay for transient failures.
	Backoff RetryConfig

	// DrainGrace bounds how long in-flight items may keep running after
	// cancellation before being abandoned.
	DrainGrace time.Duration
}

// Orchestrator owns one run at a time. Create one per run.
type Orchestrator struct {
	reader core.CatalogReader
	store  core.CheckpointStore
	proc   ItemProcessor
	cfg    Config

	logger          *slog.Logger
	checkpointRetry RetryConfig
	eventBuffer     int

	mu        sync.RWMutex
	phase     Phase
	eventSubs []chan core.Event
}

// itemResult pairs a finished attempt with its item.
type itemResult struct {
	item    *core.WorkItem
	outcome core.Outcome
}

// New creates an orchestrator over the given reader, checkpoint store,
// and item processor.
func New(reader core.CatalogReader, store core.CheckpointStore, proc ItemProcessor, cfg Config, opts ...Option) *Orchestrator {
	cfg.Concurrency = limits.ClampConcurrency(cfg.Concurrency)
	cfg.MaxAttempts = limits.ClampAttempts(cfg.MaxAttempts)
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = 30 * time.Second
	}

	o := &Orchestrator{
		reader:          reader,
		store:           store,
		proc:            proc,
		cfg:             cfg,
		logger:          slog.Default().With("component", "orchestrator"),
		checkpointRetry: DefaultCheckpointRetry(),
		eventBuffer:     100,
		phase:           PhaseInitializing,
	}
	for _, opt := range opts {
		opt.apply(o)
	}
	return o
}

// Phase returns the current run phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.logger.Debug("phase transition", "phase", string(p))
}

// Run executes the run to completion or drain. The summary is returned
// in every case; the error is non-nil only when the run aborted (catalog
// unavailable, checkpoint writes failing persistently).
func (o *Orchestrator) Run(ctx context.Context) (*report.Summary, error) {
	summary := &report.Summary{Mode: string(o.cfg.Mode), StartedAt: time.Now()}
	defer func() {
		summary.FinishedAt = time.Now()
		summary.Phase = string(o.Phase())
	}()

	ctx, span := telemetry.StartSpan(ctx, "backfill.run",
		attribute.String("run.mode", string(o.cfg.Mode)))
	defer span.End()

	o.setPhase(PhaseInitializing)
	lineage, err := o.store.Open(ctx, o.cfg.Mode)
	if err != nil {
		return o.abort(summary, fmt.Errorf("open checkpoint: %w", err))
	}
	summary.RunID = lineage.ID

	o.setPhase(PhaseEnumerating)
	worklist, skipped, err := o.enumerate(ctx)
	if err != nil {
		return o.abort(summary, err)
	}
	summary.Enumerated = len(worklist)
	summary.Skipped = skipped

	o.logger.Info("run starting",
		"run_id", lineage.ID,
		"mode", string(o.cfg.Mode),
		"items", len(worklist),
		"skipped", skipped,
		"concurrency", o.cfg.Concurrency)
	o.emit(&core.RunStarted{
		RunID:     lineage.ID,
		Mode:      o.cfg.Mode,
		Total:     len(worklist),
		Skipped:   skipped,
		Timestamp: time.Now(),
	})

	o.setPhase(PhaseProcessing)
	if err := o.process(ctx, worklist, summary); err != nil {
		return o.abort(summary, err)
	}

	o.setPhase(PhaseCompleted)
	o.emit(&core.RunFinished{RunID: lineage.ID, Phase: string(PhaseCompleted), Timestamp: time.Now()})
	o.logger.Info("run finished",
		"run_id", lineage.ID,
		"succeeded", summary.Succeeded,
		"failed_permanent", summary.FailedPermanent,
		"cancelled", summary.Cancelled,
		"elapsed", summary.Elapsed())
	return summary, nil
}

func (o *Orchestrator) abort(summary *report.Summary, err error) (*report.Summary, error) {
	o.setPhase(PhaseAborted)
	o.emit(&core.RunFinished{RunID: summary.RunID, Phase: string(PhaseAborted), Timestamp: time.Now()})
	o.logger.Error("run aborted", "run_id", summary.RunID, "error", err)
	return summary, err
}

// errWorklistCapped stops enumeration once test mode has enough items.
var errWorklistCapped = errors.New("worklist capped")

// enumerate materializes this run's worklist, skipping items already
// terminal in the open lineage.
func (o *Orchestrator) enumerate(ctx context.Context) ([]*core.WorkItem, int, error) {
	var (
		worklist []*core.WorkItem
		skipped  int
	)

	err := o.reader.ListCandidates(ctx, func(items []core.WorkItem) error {
		for i := range items {
			if o.store.IsCompleted(items[i].ID) {
				skipped++
				continue
			}
			item := items[i]
			worklist = append(worklist, &item)
			if o.cfg.Mode == core.ModeTest && o.cfg.TestLimit > 0 && len(worklist) >= o.cfg.TestLimit {
				return errWorklistCapped
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errWorklistCapped) {
		return nil, 0, fmt.Errorf("enumerate candidates: %w", err)
	}
	return worklist, skipped, nil
}

// process runs the worker pool over the worklist until every item is
// terminal, or drains on cancellation.
func (o *Orchestrator) process(ctx context.Context, worklist []*core.WorkItem, summary *report.Summary) error {
	if len(worklist) == 0 {
		return nil
	}

	// Capacity covers every live item, so re-enqueues never block.
	workCh := make(chan *core.WorkItem, len(worklist))
	for _, item := range worklist {
		workCh <- item
	}
	resultCh := make(chan itemResult, o.cfg.Concurrency)

	// Stage calls survive run cancellation until the drain grace expires.
	procCtx, stopProc := context.WithCancel(context.WithoutCancel(ctx))
	defer stopProc()
	poolCtx, stopPool := context.WithCancel(context.Background())
	defer stopPool()

	var g errgroup.Group
	for range o.cfg.Concurrency {
		g.Go(func() error {
			o.workerLoop(ctx, poolCtx, procCtx, workCh, resultCh)
			return nil
		})
	}

	var runErr error
	remaining := len(worklist)

loop:
	for remaining > 0 {
		select {
		case res := <-resultCh:
			closed, err := o.handleResult(ctx, res, workCh, summary)
			if err != nil {
				runErr = err
				break loop
			}
			if closed {
				remaining--
			}
		case <-ctx.Done():
			o.drain(stopProc, workCh, resultCh, remaining, summary)
			remaining = 0
		}
	}

	stopPool()
	_ = g.Wait()
	return runErr
}

// workerLoop takes items one at a time until the pool stops. Dispatch of
// new items halts as soon as the run context is cancelled; the item
// currently in Process keeps going until the drain grace expires.
func (o *Orchestrator) workerLoop(runCtx, poolCtx, procCtx context.Context, workCh chan *core.WorkItem, resultCh chan<- itemResult) {
	for {
		select {
		case <-poolCtx.Done():
			return
		case <-runCtx.Done():
			return
		case item := <-workCh:
			if runCtx.Err() != nil {
				// Drain has started; hand the item back uncounted.
				workCh <- item
				return
			}
			o.emit(&core.ItemStarted{Item: item, Attempt: item.Attempts + 1, Timestamp: time.Now()})
			outcome := o.proc.Process(procCtx, item)
			select {
			case resultCh <- itemResult{item: item, outcome: outcome}:
			case <-poolCtx.Done():
				return
			}
		}
	}
}

// handleResult settles one finished attempt. It reports whether the item
// reached a terminal state; transient failures within budget are
// re-enqueued instead.
func (o *Orchestrator) handleResult(ctx context.Context, res itemResult, workCh chan *core.WorkItem, summary *report.Summary) (bool, error) {
	item, outcome := res.item, res.outcome

	switch outcome.Status {
	case core.StatusSucceeded:
		if err := o.markCompleted(ctx, item, core.StatusSucceeded, outcome.Reason, outcome.ImageRef); err != nil {
			return false, err
		}
		summary.Succeeded++
		o.emit(&core.ItemSucceeded{Item: item, ImageRef: outcome.ImageRef, Duration: outcome.Duration, Timestamp: time.Now()})
		return true, nil

	case core.StatusFailedPermanent:
		if err := o.markCompleted(ctx, item, core.StatusFailedPermanent, outcome.Reason, ""); err != nil {
			return false, err
		}
		summary.FailedPermanent++
		summary.Failures = append(summary.Failures, report.Failure{
			ItemID:    item.ID,
			Name:      item.Name,
			Reason:    outcome.Reason,
			Attempts:  item.Attempts,
			LastError: item.LastError,
		})
		o.emit(&core.ItemFailed{Item: item, Reason: outcome.Reason, Err: outcome.Err, Timestamp: time.Now()})
		return true, nil

	default: // transient
		if item.Attempts >= o.cfg.MaxAttempts {
			reason := core.ReasonRetriesExhausted
			if err := o.markCompleted(ctx, item, core.StatusFailedPermanent, reason, ""); err != nil {
				return false, err
			}
			item.Status = core.StatusFailedPermanent
			summary.FailedPermanent++
			summary.Failures = append(summary.Failures, report.Failure{
				ItemID:    item.ID,
				Name:      item.Name,
				Reason:    reason,
				Attempts:  item.Attempts,
				LastError: item.LastError,
			})
			o.emit(&core.ItemFailed{Item: item, Reason: reason, Err: outcome.Err, Timestamp: time.Now()})
			return true, nil
		}

		delay := o.cfg.Backoff.retryDelay(item.Attempts)
		summary.Retried++
		o.logger.Warn("item retrying",
			"item", item.ID,
			"attempt", item.Attempts,
			"reason", outcome.Reason,
			"delay", delay)
		o.emit(&core.ItemRetrying{
			Item:          item,
			Attempt:       item.Attempts,
			Err:           outcome.Err,
			NextAttemptAt: time.Now().Add(delay),
			Timestamp:     time.Now(),
		})
		o.scheduleRetry(ctx, item, delay, workCh)
		return false, nil
	}
}

// scheduleRetry re-enqueues the item after the backoff delay. On
// cancellation the item is handed back immediately so the drain can
// account for it.
func (o *Orchestrator) scheduleRetry(ctx context.Context, item *core.WorkItem, delay time.Duration, workCh chan<- *core.WorkItem) {
	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		item.Status = core.StatusPending
		workCh <- item
	}()
}

// markCompleted durably records a terminal state before the item counts
// as done. Write-then-acknowledge: a crash after the write redoes
// nothing; a crash before it redoes safe, idempotent work.
func (o *Orchestrator) markCompleted(ctx context.Context, item *core.WorkItem, status core.ItemStatus, reason, ref string) error {
	entry := core.CompletedEntry{
		ItemID:      item.ID,
		Status:      status,
		Reason:      reason,
		ImageRef:    ref,
		Attempts:    item.Attempts,
		CompletedAt: time.Now(),
	}
	err := retryWithBackoff(ctx, o.checkpointRetry, func() error {
		return o.store.MarkCompleted(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("checkpoint write for %s: %w", item.ID, err)
	}
	o.emit(&core.CheckpointWritten{ItemID: item.ID, Status: status, Timestamp: time.Now()})
	return nil
}

// drain finishes a cancelled run: queued items are released uncheckpointed
// so resume picks them up, in-flight items get the grace window, and
// terminal results produced during the grace are still checkpointed.
func (o *Orchestrator) drain(stopProc context.CancelFunc, workCh chan *core.WorkItem, resultCh <-chan itemResult, remaining int, summary *report.Summary) {
	o.setPhase(PhaseDraining)
	o.logger.Info("draining", "outstanding", remaining, "grace", o.cfg.DrainGrace)

	// Checkpoint writes must outlive the cancelled run context.
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), o.cfg.DrainGrace+30*time.Second)
	defer cancelFlush()

	timer := time.NewTimer(o.cfg.DrainGrace)
	defer timer.Stop()

	for remaining > 0 {
		select {
		case item := <-workCh:
			// Never started (or a retry released early): re-runs on resume.
			o.cancelItem(item, summary)
			remaining--
		case res := <-resultCh:
			if res.outcome.Status.IsTerminal() {
				if err := o.markCompleted(flushCtx, res.item, res.outcome.Status, res.outcome.Reason, res.outcome.ImageRef); err != nil {
					o.logger.Error("checkpoint write failed during drain", "item", res.item.ID, "error", err)
					o.cancelItem(res.item, summary)
				} else if res.outcome.Status == core.StatusSucceeded {
					summary.Succeeded++
					o.emit(&core.ItemSucceeded{Item: res.item, ImageRef: res.outcome.ImageRef, Duration: res.outcome.Duration, Timestamp: time.Now()})
				} else {
					summary.FailedPermanent++
					o.emit(&core.ItemFailed{Item: res.item, Reason: res.outcome.Reason, Err: res.outcome.Err, Timestamp: time.Now()})
				}
			} else {
				o.cancelItem(res.item, summary)
			}
			remaining--
		case <-timer.C:
			// Grace expired; abandon in-flight stage calls. Workers
			// return promptly with cancelled outcomes.
			stopProc()
		}
	}
}

func (o *Orchestrator) cancelItem(item *core.WorkItem, summary *report.Summary) {
	item.Status = core.StatusFailedTransient
	summary.Cancelled++
	o.emit(&core.ItemCancelled{Item: item, Timestamp: time.Now()})
}

// Package backfill enriches catalog records that lack a product image:
// for each eligible record it resolves a candidate image through an
// external search service, downloads it, removes its background, uploads
// the result to blob storage, and writes the reference back to the
// catalog. Runs are concurrent, rate limited, fault isolated per item,
// and resumable across restarts via a durable checkpoint.
//
// This is the main package users should import. It re-exports the public
// types from the pkg/ packages and wires a ready-to-run pipeline from
// configuration.
//
// Basic usage:
//
//	cfg, _ := config.Load("backfill.yaml")
//	mode, _ := config.ParseMode(0, true, false) // --all
//	pipeline, _ := backfill.Build(ctx, cfg, mode)
//	defer pipeline.Close()
//
//	summary, err := pipeline.Run(ctx)
//	summary.WriteText(os.Stdout)
package backfill

import (
	"context"
	"fmt"

	"github.com/aager/image-backfill/pkg/blobstore"
	"github.com/aager/image-backfill/pkg/catalog"
	"github.com/aager/image-backfill/pkg/checkpoint"
	"github.com/aager/image-backfill/pkg/config"
	"github.com/aager/image-backfill/pkg/core"
	"github.com/aager/image-backfill/pkg/imagesource"
	"github.com/aager/image-backfill/pkg/orchestrator"
	"github.com/aager/image-backfill/pkg/processor"
	"github.com/aager/image-backfill/pkg/ratelimit"
	"github.com/aager/image-backfill/pkg/removal"
	"github.com/aager/image-backfill/pkg/report"
	"github.com/aager/image-backfill/pkg/schedule"
)

// Re-exported domain types.
type (
	// WorkItem is one catalog record to enrich with an image.
	WorkItem = core.WorkItem

	// ItemStatus represents the current state of a work item.
	ItemStatus = core.ItemStatus

	// RunMode selects how a run relates to prior checkpoint state.
	RunMode = core.RunMode

	// Outcome is the result of one processing attempt for an item.
	Outcome = core.Outcome

	// CompletedEntry is one terminal item recorded in a checkpoint lineage.
	CompletedEntry = core.CompletedEntry

	// Event is the interface for all run events.
	Event = core.Event

	// PermanentError marks a failure that retrying cannot fix.
	PermanentError = core.PermanentError

	// TransientError marks a failure worth retrying within the budget.
	TransientError = core.TransientError

	// Config is the full run configuration.
	Config = config.Config

	// Mode is the run mode selected on the command line.
	Mode = config.Mode

	// Orchestrator owns one run at a time.
	Orchestrator = orchestrator.Orchestrator

	// Phase is the orchestrator's run state.
	Phase = orchestrator.Phase

	// Summary is the final account of one run.
	Summary = report.Summary

	// Schedule defines when the next backfill run should start.
	Schedule = schedule.Schedule
)

// Re-exported status and mode constants.
const (
	StatusPending         = core.StatusPending
	StatusInProgress      = core.StatusInProgress
	StatusSucceeded       = core.StatusSucceeded
	StatusFailedPermanent = core.StatusFailedPermanent
	StatusFailedTransient = core.StatusFailedTransient

	ModeTest   = core.ModeTest
	ModeAll    = core.ModeAll
	ModeResume = core.ModeResume
)

// Re-exported error helpers.
var (
	Permanent   = core.Permanent
	Transient   = core.Transient
	IsPermanent = core.IsPermanent
	IsTransient = core.IsTransient

	Every  = schedule.Every
	Daily  = schedule.Daily
	Weekly = schedule.Weekly
	Cron   = schedule.Cron
)

// Pipeline is a fully wired run: orchestrator plus the resources behind
// it. Close releases database handles.
type Pipeline struct {
	orch    *orchestrator.Orchestrator
	closers []func() error
}

// Run executes the run. See orchestrator.Orchestrator.Run.
func (p *Pipeline) Run(ctx context.Context) (*report.Summary, error) {
	return p.orch.Run(ctx)
}

// Orchestrator exposes the underlying orchestrator, e.g. for event
// subscriptions.
func (p *Pipeline) Orchestrator() *orchestrator.Orchestrator {
	return p.orch
}

// Close releases the pipeline's resources.
func (p *Pipeline) Close() error {
	var firstErr error
	for _, closeFn := range p.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build wires a pipeline from configuration: catalog and checkpoint
// stores, the external-service adapters selected by the config, the
// shared rate limiter, the item processor, and the orchestrator.
func Build(ctx context.Context, cfg *config.Config, mode config.Mode, opts ...orchestrator.Option) (*Pipeline, error) {
	p := &Pipeline{}

	cat, err := buildCatalog(ctx, cfg, p)
	if err != nil {
		p.Close()
		return nil, err
	}

	store, err := checkpoint.NewSQLiteStore(cfg.Checkpoint.Path)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.closers = append(p.closers, store.Close)

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		p.Close()
		return nil, err
	}

	var remover core.BackgroundRemover = removal.NewNoopRemover()
	if cfg.Removal.Enabled {
		remover = removal.NewHTTPRemover(cfg.Removal.BaseURL, cfg.Removal.APIKey, cfg.Removal.Timeout)
	}

	proc := processor.New(processor.Deps{
		Searcher: imagesource.NewSearchClient(cfg.Search.BaseURL, cfg.Search.APIKey, cfg.Search.Timeout),
		Fetcher:  imagesource.NewFetcher(cfg.Timeouts.Download, cfg.Download.MaxBytes),
		Remover:  remover,
		Store:    blobs,
		Writer:   cat.writer,
		Limiter:  ratelimit.New(cfg.Rate.RPS, cfg.Rate.Burst),
	}, processor.Timeouts{
		Resolve:   cfg.Timeouts.Resolve,
		Download:  cfg.Timeouts.Download,
		Transform: cfg.Timeouts.Transform,
		Upload:    cfg.Timeouts.Upload,
		WriteBack: cfg.Timeouts.WriteBack,
	}, cfg.Storage.Prefix)

	p.orch = orchestrator.New(cat.reader, store, proc, orchestrator.Config{
		Mode:        mode.Kind,
		TestLimit:   mode.Limit,
		Concurrency: cfg.Concurrency,
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff: orchestrator.RetryConfig{
			InitialBackoff:    cfg.Retry.InitialBackoff,
			MaxBackoff:        cfg.Retry.MaxBackoff,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
			JitterFraction:    cfg.Retry.JitterFraction,
		},
		DrainGrace: cfg.Drain.Grace,
	}, opts...)
	return p, nil
}

// catalogPair bundles the reader and writer halves of a catalog adapter.
type catalogPair struct {
	reader core.CatalogReader
	writer core.CatalogWriter
}

func buildCatalog(ctx context.Context, cfg *config.Config, p *Pipeline) (catalogPair, error) {
	switch cfg.Catalog.Driver {
	case "postgres":
		pool, err := catalog.ConnectPool(ctx, cfg.Catalog.DSN)
		if err != nil {
			return catalogPair{}, err
		}
		p.closers = append(p.closers, func() error { pool.Close(); return nil })
		pgc := catalog.NewPgxCatalog(pool, cfg.BatchSize)
		return catalogPair{reader: pgc, writer: pgc}, nil
	default: // sqlite, validated by config
		gc, err := catalog.NewSQLiteCatalog(cfg.Catalog.DSN, cfg.BatchSize)
		if err != nil {
			return catalogPair{}, err
		}
		p.closers = append(p.closers, gc.Close)
		return catalogPair{reader: gc, writer: gc}, nil
	}
}

func buildBlobStore(ctx context.Context, cfg *config.Config) (core.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "minio":
		store, err := blobstore.NewMinioStore(blobstore.MinioConfig{
			Endpoint:      cfg.Storage.Endpoint,
			Bucket:        cfg.Storage.Bucket,
			AccessKey:     cfg.Storage.AccessKey,
			SecretKey:     cfg.Storage.SecretKey,
			UseSSL:        cfg.Storage.UseSSL,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("prepare bucket: %w", err)
		}
		return store, nil
	default: // fs, validated by config
		return blobstore.NewFSStore(cfg.Storage.Dir)
	}
}

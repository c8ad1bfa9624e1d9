package report

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aager/image-backfill/pkg/core"
)

// EventStream is the subscription surface the collector attaches to.
// The orchestrator implements it.
type EventStream interface {
	Events() <-chan core.Event
	Unsubscribe(<-chan core.Event)
}

// Collector subscribes to run events and keeps live counters, logging a
// progress line at a fixed completion interval. It exists for operator
// visibility during long runs; the authoritative Summary comes from the
// orchestrator itself.
type Collector struct {
	logger   *slog.Logger
	interval int

	mu        sync.Mutex
	total     int
	completed int
	succeeded int
	failed    int
	retried   int
	cancelled int

	ready     chan struct{}
	readyOnce sync.Once
}

// CollectorOption configures a Collector.
type CollectorOption interface {
	apply(*Collector)
}

type collectorOptionFunc func(*Collector)

func (f collectorOptionFunc) apply(c *Collector) { f(c) }

// WithProgressInterval sets how many completions pass between progress
// log lines.
func WithProgressInterval(n int) CollectorOption {
	return collectorOptionFunc(func(c *Collector) {
		if n > 0 {
			c.interval = n
		}
	})
}

// NewCollector creates a collector.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		logger:   slog.Default().With("component", "report"),
		interval: 25,
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// WaitReady blocks until the collector has subscribed to events.
func (c *Collector) WaitReady() {
	<-c.ready
}

// Run consumes events until ctx is cancelled. Call it in its own
// goroutine alongside the orchestrator run.
func (c *Collector) Run(ctx context.Context, stream EventStream) {
	events := stream.Events()
	defer stream.Unsubscribe(events)

	c.readyOnce.Do(func() { close(c.ready) })

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			c.handleEvent(e)
		}
	}
}

func (c *Collector) handleEvent(e core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := e.(type) {
	case *core.RunStarted:
		c.total = ev.Total
		c.logger.Info("collecting run progress", "run_id", ev.RunID, "total", ev.Total, "skipped", ev.Skipped)
	case *core.ItemSucceeded:
		c.succeeded++
		c.logProgressLocked()
	case *core.ItemFailed:
		c.failed++
		c.logProgressLocked()
	case *core.ItemRetrying:
		c.retried++
	case *core.ItemCancelled:
		c.cancelled++
	}
}

// logProgressLocked emits a progress line every interval completions.
// Caller holds c.mu.
func (c *Collector) logProgressLocked() {
	c.completed = c.succeeded + c.failed
	if c.completed%c.interval != 0 && c.completed != c.total {
		return
	}
	c.logger.Info("progress",
		"completed", c.completed,
		"total", c.total,
		"succeeded", c.succeeded,
		"failed", c.failed,
		"retried", c.retried)
}

// Counts returns the live counters: completed, succeeded, failed,
// retried, cancelled.
func (c *Collector) Counts() (completed, succeeded, failed, retried, cancelled int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.succeeded + c.failed, c.succeeded, c.failed, c.retried, c.cancelled
}

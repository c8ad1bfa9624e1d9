package orchestrator

import (
	"log/slog"
)

// Option configures an Orchestrator.
type Option interface {
	apply(*Orchestrator)
}

type optionFunc func(*Orchestrator)

func (f optionFunc) apply(o *Orchestrator) { f(o) }

// WithLogger sets the logger used for run lifecycle output.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	})
}

// WithEventBuffer sets the buffer size of subscriber channels returned
// by Events().
func WithEventBuffer(n int) Option {
	return optionFunc(func(o *Orchestrator) {
		if n > 0 {
			o.eventBuffer = n
		}
	})
}

// WithCheckpointRetry overrides the retry budget around checkpoint
// writes.
func WithCheckpointRetry(cfg RetryConfig) Option {
	return optionFunc(func(o *Orchestrator) {
		if cfg.MaxAttempts > 0 {
			o.checkpointRetry = cfg
		}
	})
}

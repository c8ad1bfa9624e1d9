// Package ratelimit provides the shared token bucket gating every
// external call made by the pipeline.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter provides thread-safe rate limiting with dynamically adjustable
// limits. One instance is shared by all workers so that the combined call
// rate against quota-limited upstreams stays within budget.
type Limiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex // Protects concurrent access to the limiter
}

// New creates a Limiter with the specified requests per second (rps) and
// burst size. The burst parameter controls how many calls may be made at
// once to accommodate short spikes.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait blocks until the limiter allows an event or the context is
// canceled. It returns an error if the context is canceled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now without blocking.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Allow()
}

// UpdateLimits dynamically adjusts the requests per second and burst
// size. This allows adapting to API quota changes at runtime.
func (l *Limiter) UpdateLimits(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter.SetLimit(rate.Limit(rps))
	l.limiter.SetBurst(burst)
}

// Limit returns the current sustained rate in events per second.
func (l *Limiter) Limit() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return float64(l.limiter.Limit())
}

// Burst returns the current burst size.
func (l *Limiter) Burst() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Burst()
}

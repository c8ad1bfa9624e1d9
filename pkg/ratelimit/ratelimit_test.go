package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitEnforcesRate(t *testing.T) {
	// 20 events/sec, burst 1: 5 acquisitions need ~200ms of pacing.
	limiter := New(20, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Wait(ctx))
	}
	elapsed := time.Since(start)

	// First token is free, the remaining 4 are paced at 50ms each.
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestBurstAllowsSpike(t *testing.T) {
	limiter := New(1, 10)

	granted := 0
	for i := 0; i < 10; i++ {
		if limiter.Allow() {
			granted++
		}
	}
	assert.Equal(t, 10, granted)

	// Bucket drained; the next immediate acquisition must be denied.
	assert.False(t, limiter.Allow())
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	limiter := New(0.1, 1)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.Error(t, err)
}

func TestUpdateLimits(t *testing.T) {
	limiter := New(1, 1)
	limiter.UpdateLimits(100, 50)

	assert.Equal(t, 100.0, limiter.Limit())
	assert.Equal(t, 50, limiter.Burst())
}

func TestConcurrentWaiters(t *testing.T) {
	limiter := New(1000, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Wait(ctx))
		}()
	}
	wg.Wait()
}

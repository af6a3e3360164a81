package performance

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Start()
	defer pool.Stop()

	var count atomic.Int64
	for i := 0; i < 100; i++ {
		require.True(t, pool.Submit(func() { count.Add(1) }))
	}

	deadline := time.After(2 * time.Second)
	for count.Load() < 100 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 100 tasks ran", count.Load())
		case <-time.After(time.Millisecond):
		}
	}

	stats := pool.Stats()
	assert.True(t, stats.Running)
	assert.EqualValues(t, 100, stats.TasksTotal)
}

func TestWorkerPoolSubmitWait(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	defer pool.Stop()

	ran := false
	require.True(t, pool.SubmitWait(func() { ran = true }))
	assert.True(t, ran)
}

func TestWorkerPoolRejectsWhenStopped(t *testing.T) {
	pool := NewWorkerPool(1)
	assert.False(t, pool.Submit(func() {}), "pool not started")

	pool.Start()
	pool.Stop()
	assert.False(t, pool.Submit(func() {}), "pool stopped")
}

func TestRateLimiterBurstThenThrottle(t *testing.T) {
	rl := NewRateLimiter(10, 3)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow(), "burst exhausted")

	time.Sleep(150 * time.Millisecond)
	assert.True(t, rl.Allow(), "tokens refill over time")
}

// Package performance provides the worker pool that keeps blocking work
// off the 1-second tick path, and a token-bucket limiter for broker REST
// calls.
package performance

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// queuePerWorker sizes the task buffer relative to the worker count.
const queuePerWorker = 100

// WorkerPool runs submitted tasks on a fixed set of goroutines. The
// scheduler uses it for chain rescans and instrument lookups so a slow
// network call never stalls the tick driver.
type WorkerPool struct {
	size   int
	tasks  chan func()
	stop   context.CancelFunc
	done   context.Context
	wg     sync.WaitGroup
	live   atomic.Bool
	queued atomic.Uint64
	ran    atomic.Uint64
}

// NewWorkerPool creates a worker pool. A non-positive size defaults to
// runtime.NumCPU().
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	done, stop := context.WithCancel(context.Background())
	return &WorkerPool{
		size:  size,
		tasks: make(chan func(), size*queuePerWorker),
		done:  done,
		stop:  stop,
	}
}

// Start launches the workers. Starting a running pool is a no-op.
func (p *WorkerPool) Start() {
	if p.live.Swap(true) {
		return
	}
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.drain()
	}
}

func (p *WorkerPool) drain() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task()
			p.ran.Add(1)
		}
	}
}

// Submit enqueues a task. Returns false if the pool is not running or
// the queue is full; callers treat that as "skip this cycle", not an
// error.
func (p *WorkerPool) Submit(task func()) bool {
	if !p.live.Load() {
		return false
	}
	select {
	case p.tasks <- task:
		p.queued.Add(1)
		return true
	default:
		return false
	}
}

// SubmitWait enqueues a task and blocks until it has run.
func (p *WorkerPool) SubmitWait(task func()) bool {
	ran := make(chan struct{})
	if !p.Submit(func() {
		defer close(ran)
		task()
	}) {
		return false
	}
	<-ran
	return true
}

// Stop shuts the pool down and waits for the workers to exit.
func (p *WorkerPool) Stop() {
	if !p.live.Swap(false) {
		return
	}
	p.stop()
	close(p.tasks)
	p.wg.Wait()
}

// Stats returns a point-in-time view of pool activity.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.size,
		Running:    p.live.Load(),
		TasksTotal: p.queued.Load(),
		TasksDone:  p.ran.Load(),
		QueueLen:   len(p.tasks),
	}
}

// PoolStats contains worker pool counters.
type PoolStats struct {
	Workers    int
	Running    bool
	TasksTotal uint64
	TasksDone  uint64
	QueueLen   int
}

// RateLimiter is a token-bucket limiter guarding broker REST endpoints,
// which enforce per-second request quotas.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64 // tokens added per second
	burst  float64
	level  float64
	filled time.Time
}

// NewRateLimiter allows rate requests per second with the given burst.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:   rate,
		burst:  float64(burst),
		level:  float64(burst),
		filled: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.level += now.Sub(r.filled).Seconds() * r.rate
	r.filled = now
	if r.level > r.burst {
		r.level = r.burst
	}

	if r.level < 1 {
		return false
	}
	r.level--
	return true
}

// Wait blocks until a token is available or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for !r.Allow() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

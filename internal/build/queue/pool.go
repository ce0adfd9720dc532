package queue

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/fwbuilder/internal/logfields"
	"git.home.luguber.info/inful/fwbuilder/internal/metrics"
)

// MinWorkers is the floor applied to the hardware-derived default worker count.
const MinWorkers = 4

// ErrPoolClosed is returned by Submit after Shutdown has begun.
var ErrPoolClosed = stdErrors.New("worker pool is shut down")

// ShutdownMode selects what happens to queued-but-not-started items.
type ShutdownMode int

const (
	// DrainQueued runs every queued item before the workers exit.
	DrainQueued ShutdownMode = iota
	// DropQueued discards queued items; in-flight items still finish.
	DropQueued
)

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Workers   int
	Queued    int
	Running   int64
	Completed int64
	Dropped   int64
}

// Pool runs submitted work items on a fixed set of workers in FIFO order.
// The queue is unbounded; callers are responsible for bounding submissions.
type Pool struct {
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	items   []func()
	closed  bool
	started bool
	wg      sync.WaitGroup

	running   atomic.Int64
	completed atomic.Int64
	dropped   atomic.Int64

	recorder metrics.Recorder
}

// DefaultWorkers returns the hardware concurrency, never less than MinWorkers.
func DefaultWorkers() int {
	return max(runtime.NumCPU(), MinWorkers)
}

// NewPool creates a pool with the given worker count; workers <= 0 selects DefaultWorkers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	p := &Pool{
		workers:  workers,
		recorder: metrics.NoopRecorder{},
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetRecorder injects a metrics recorder (optional).
func (p *Pool) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	p.recorder = r
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int { return p.workers }

// Start launches the workers. Cancelling ctx shuts the pool down, dropping
// queued items. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	slog.Debug("Starting worker pool", "workers", p.workers)
	p.recorder.SetWorkers(p.workers)
	for i := range p.workers {
		p.wg.Add(1)
		go p.worker(fmt.Sprintf("worker-%d", i))
	}
	context.AfterFunc(ctx, func() {
		p.close(DropQueued)
	})
}

// Submit enqueues an item. It never blocks.
func (p *Pool) Submit(item func()) error {
	if item == nil {
		return stdErrors.New("work item cannot be nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.items = append(p.items, item)
	p.cond.Signal()
	return nil
}

// Shutdown stops accepting work and waits for the workers to exit or ctx to
// expire. It returns the number of queued items dropped by this call.
func (p *Pool) Shutdown(ctx context.Context, mode ShutdownMode) (int, error) {
	dropped := p.close(mode)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return dropped, nil
	case <-ctx.Done():
		return dropped, fmt.Errorf("waiting for workers: %w", ctx.Err())
	}
}

func (p *Pool) close(mode ShutdownMode) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	dropped := 0
	// Without workers nothing would ever drain the queue.
	if mode == DropQueued || !p.started {
		dropped = len(p.items)
		clear(p.items)
		p.items = nil
	}
	if dropped > 0 {
		p.dropped.Add(int64(dropped))
		slog.Debug("Dropped queued work items", "count", dropped)
	}
	p.cond.Broadcast()
	return dropped
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	queued := len(p.items)
	p.mu.Unlock()
	return Stats{
		Workers:   p.workers,
		Queued:    queued,
		Running:   p.running.Load(),
		Completed: p.completed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

func (p *Pool) worker(workerID string) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.items) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.items) == 0 {
			p.mu.Unlock()
			return
		}
		item := p.items[0]
		p.items[0] = nil
		p.items = p.items[1:]
		p.mu.Unlock()

		p.runItem(workerID, item)
	}
}

func (p *Pool) runItem(workerID string, item func()) {
	p.running.Add(1)
	defer func() {
		p.running.Add(-1)
		p.completed.Add(1)
		if r := recover(); r != nil {
			slog.Error("Work item panicked", logfields.Worker(workerID), slog.Any("panic", r))
		}
	}()
	item()
}

package xstreams

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type observerJob struct {
	event     Event
	observers []Observer
}

// ObserverPool runs observers on background workers so pumps never wait on them.
// Events that do not fit in the buffer are dropped and counted.
type ObserverPool struct {
	jobs    chan observerJob
	workers int
	wg      sync.WaitGroup

	// mu orders Notify's send against the channel close.
	mu     sync.RWMutex
	closed bool
	stop   func() bool

	dropped   atomic.Uint64
	processed atomic.Uint64
}

// NewObserverPool starts workers goroutines over a buffer of bufferSize events. The pool
// stops taking events when ctx is done; Close waits for the buffered ones.
func NewObserverPool(ctx context.Context, workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 4
	}
	if bufferSize < 1 {
		bufferSize = 1000
	}
	op := &ObserverPool{
		jobs:    make(chan observerJob, bufferSize),
		workers: workers,
	}
	for range workers {
		op.wg.Go(op.run)
	}
	op.stop = context.AfterFunc(ctx, op.seal)
	return op
}

// Notify queues e for observers and returns at once. The slice is copied.
func (op *ObserverPool) Notify(e Event, observers []Observer) {
	if len(observers) == 0 {
		return
	}
	op.mu.RLock()
	defer op.mu.RUnlock()
	if op.closed {
		return
	}
	select {
	case op.jobs <- observerJob{event: e, observers: append([]Observer(nil), observers...)}:
	default:
		op.dropped.Add(1)
	}
}

func (op *ObserverPool) run() {
	for job := range op.jobs {
		dispatch(job.observers, job.event)
		op.processed.Add(1)
	}
}

// seal rejects new events and lets workers exit once the buffer is drained.
func (op *ObserverPool) seal() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if !op.closed {
		op.closed = true
		close(op.jobs)
	}
}

// Close seals the pool and waits up to timeout for buffered events to be dispatched.
func (op *ObserverPool) Close(timeout time.Duration) error {
	op.stop()
	op.seal()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
		return ErrObserverPoolShutdownTimeout
	}
}

func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		ActiveEvents: len(op.jobs),
		Workers:      op.workers,
		BufferSize:   cap(op.jobs),
	}
}

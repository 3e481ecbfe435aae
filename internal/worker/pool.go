// Package worker runs the per-frame deformation work on a fixed set of
// goroutines and exposes completion handles that chain jobs together.
package worker

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Faultbox/muscle-surface/internal/logger"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool is a pool of goroutines for data-parallel work.
//
// Each worker owns a queue and steals from the others when its own queue is
// empty. A nil *Pool is valid and runs every job inline on the caller.
type Pool struct {
	workers    int
	workQueues []chan func()
	done       chan struct{}
	wg         sync.WaitGroup

	// mu guards the transition to closed so no job is queued after the
	// workers have drained and exited.
	mu     sync.RWMutex
	closed bool

	next atomic.Uint64
}

// NewPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// Deep enough for a frame's batches without blocking the scheduler
	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &Pool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}

	logger.Named("worker").Debug("pool started", zap.Int("workers", workers), zap.Int("queue", queueSize))
	return p
}

// Workers returns the number of worker goroutines (1 for a nil pool).
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]

	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return

		case work := <-myQueue:
			run(work)

		default:
			// Own queue empty: help the others before blocking
			if stolen := p.steal(id); stolen != nil {
				run(stolen)
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				run(work)
			}
		}
	}
}

func (p *Pool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			run(work)
		default:
			return
		}
	}
}

// steal attempts to take work from another worker's queue.
func (p *Pool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// run executes one job. A panicking job is logged and does not take the
// worker down with it.
func run(work func()) {
	if work == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Named("worker").Error("job panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	work()
}

// Submit queues fn for execution. After Close it returns ErrPoolClosed and
// does not run fn.
func (p *Pool) Submit(fn func()) error {
	if p == nil {
		run(fn)
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	// Round-robin across worker queues
	id := int(p.next.Add(1) % uint64(p.workers))
	p.workQueues[id] <- fn
	return nil
}

// dispatch queues fn, falling back to running it on the caller once the pool
// is closed. Scheduled work always runs to completion.
func (p *Pool) dispatch(fn func()) {
	if err := p.Submit(fn); err != nil {
		run(fn)
	}
}

// Schedule runs fn once dependsOn has completed and returns a handle for fn.
func (p *Pool) Schedule(dependsOn Handle, fn func()) Handle {
	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn()
	}

	// Wait off the caller's goroutine so scheduling never blocks
	if dependsOn.IsCompleted() {
		p.dispatch(job)
	} else {
		go func() {
			dependsOn.Complete()
			p.dispatch(job)
		}()
	}
	return Handle{done: done}
}

// ParallelFor splits [0, n) into batches of at most batch elements and runs
// fn over each batch on the pool once dependsOn has completed. Batches never
// overlap, so fn may write to its own range without synchronization.
func (p *Pool) ParallelFor(dependsOn Handle, n, batch int, fn func(start, end int)) Handle {
	if n <= 0 {
		return dependsOn
	}
	if batch <= 0 {
		batch = n
	}

	// The last batch to finish closes done
	batches := (n + batch - 1) / batch
	done := make(chan struct{})
	var remaining atomic.Int64
	remaining.Store(int64(batches))

	start := func() {
		for b := 0; b < batches; b++ {
			lo := b * batch
			hi := min(lo+batch, n)
			p.dispatch(func() {
				defer func() {
					if remaining.Add(-1) == 0 {
						close(done)
					}
				}()
				fn(lo, hi)
			})
		}
	}

	if dependsOn.IsCompleted() {
		start()
	} else {
		go func() {
			dependsOn.Complete()
			start()
		}()
	}
	return Handle{done: done}
}

// Close stops accepting work, lets queued jobs finish and waits for the
// workers to exit. Close is idempotent.
func (p *Pool) Close() {
	if p == nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

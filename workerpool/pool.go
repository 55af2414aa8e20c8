// Package workerpool implements a bounded set of workers consuming jobs from
// a shared unbounded FIFO queue.
//
// Submitting is fire-and-forget: the next idle worker dequeues and runs the
// job, and no per-job completion is reported. Closing the pool stops
// admission, lets the workers drain everything already queued, and blocks
// until every worker has exited.
//
//	Submit(job) ──→ queue ──→ worker-0
//	Submit(job) ──→ queue ──→ worker-1   (N fixed at construction)
//	Submit(job) ──→ queue ──→ worker-2
package workerpool

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Submit once Close has begun; a closed pool
// rejects jobs instead of aborting the submitter.
var ErrClosed = errors.New("workerpool: pool is closed")

// Pool owns a fixed number of workers and the queue feeding them.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	wg     sync.WaitGroup
	log    *zap.Logger
}

// New starts a pool with the given strictly positive worker count.
// A nil logger defaults to a no-op logger.
func New(workers int, log *zap.Logger) (*Pool, error) {
	if workers <= 0 {
		return nil, errors.New("workerpool: worker count must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{log: log}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(workers)
	for id := 0; id < workers; id++ {
		go p.worker(id)
	}
	return p, nil
}

// Submit enqueues a job for the next idle worker. It never blocks: the queue
// is unbounded. After Close it returns ErrClosed.
func (p *Pool) Submit(job func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue = append(p.queue, job)
	p.mu.Unlock()

	p.cond.Signal()
	return nil
}

// Close stops admission and blocks until every worker has drained the queue
// and exited. Jobs submitted before Close began are guaranteed to run.
// Closing an already closed pool is a no-op (apart from waiting again).
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.cond.Broadcast()
	p.wg.Wait()
}

// worker dequeues and runs jobs until the pool is closed and the queue is
// empty.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// Closed and fully drained
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(id, job)
	}
}

// run executes one job. A panicking job must not take its worker down, so
// the panic is recovered and logged and the worker moves on.
func (p *Pool) run(id int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job panicked",
				zap.Int("worker", id),
				zap.Any("panic", r))
		}
	}()
	job()
}

package pipeline

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolSaturated is returned by Submit when the queue is full. The
// caller decides what to do with the job; the pipeline marks it failed
// with a retryable error.
var ErrPoolSaturated = errors.New("worker pool saturated")

var errPoolClosed = errors.New("worker pool closed")

// Pool runs job tasks on a fixed number of workers with a bounded queue,
// so the number of in-flight pipeline runs is controlled rather than one
// unbounded goroutine per request.
type Pool struct {
	queue chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPool starts workers goroutines consuming a queue of queueSize.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{queue: make(chan func(), queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.queue {
				task()
			}
		}()
	}
	return p
}

// Submit enqueues a task without blocking. Returns ErrPoolSaturated when
// the queue is full.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPoolClosed
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Shutdown stops accepting tasks and waits for in-flight ones, up to the
// context deadline.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Adapted from the teacher's internal/pool/goroutine_pool.go: a
// bounded worker pool with a buffered queue, atomic counters, and
// panic recovery, sized to spec §4.10/§5's worker pool of size W.
// Simplified to a fixed-size pool (no idle-timeout worker churn) since
// the pipeline's worker count is a static run configuration, not an
// elastic load-driven pool like the teacher's.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("pipeline: pool is closed")

// Task is one unit of work submitted to the pool.
type Task func(ctx context.Context)

type workerPool struct {
	queue   chan taskItem
	wg      sync.WaitGroup
	closed  atomic.Bool
	logger  *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
}

type taskItem struct {
	ctx  context.Context
	task Task
}

func newWorkerPool(size int, queueSize int, logger *zap.Logger) *workerPool {
	p := &workerPool{queue: make(chan taskItem, queueSize), logger: logger}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for item := range p.queue {
		p.run(item)
		p.completed.Add(1)
	}
}

func (p *workerPool) run(item taskItem) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline worker task panicked", zap.Any("recover", r))
		}
	}()
	item.task(item.ctx)
}

// Submit enqueues task, blocking until there is queue space or ctx is
// done.
func (p *workerPool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.submitted.Add(1)
	select {
	case p.queue <- taskItem{ctx: ctx, task: task}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseAndWait stops accepting new work and waits for queued and
// in-flight tasks to finish.
func (p *workerPool) CloseAndWait() {
	if p.closed.Swap(true) {
		return
	}
	close(p.queue)
	p.wg.Wait()
}

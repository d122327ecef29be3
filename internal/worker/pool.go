package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/scmhooks/jenkins-notifier/internal/logger"
)

// ErrPoolClosed is returned by Submit after the pool was shut down
var ErrPoolClosed = errors.New("worker pool is shut down")

// Pool runs submitted tasks on their own goroutines. It grows with demand and has
// no queue: every accepted task starts immediately. Tasks share a context that
// ShutdownNow cancels.
type Pool struct {
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Logger

	mu     sync.Mutex
	closed bool
	active atomic.Int64
}

// NewPool creates a new worker pool
func NewPool(name string) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		log:    logger.Get(),
	}
}

// Submit starts task on the pool and returns a Future for its result.
// It never blocks on the task itself.
func Submit[T any](p *Pool, task func(ctx context.Context) T) (*Future[T], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	f := newFuture[T]()
	p.active.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				p.log.Errorf("%s worker panicked: %v", p.name, r)
				var zero T
				f.complete(zero, fmt.Errorf("task panicked: %v", r))
			}
		}()

		f.complete(task(p.ctx), nil)
	}()

	return f, nil
}

// Active returns the number of tasks currently running
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// ShutdownNow rejects new tasks and cancels the context of running ones without
// waiting for them
func (p *Pool) ShutdownNow() {
	p.mu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	p.mu.Unlock()

	if !alreadyClosed {
		p.log.Infof("Shutting down %s pool, interrupting %d task(s)", p.name, p.Active())
	}
	p.cancel()
}

// Stop rejects new tasks and waits for running ones until ctx expires
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.log.Infof("Stopping %s pool...", p.name)

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Infof("All %s workers stopped", p.name)
		p.cancel()
		return nil
	case <-ctx.Done():
		p.log.Warn("Timeout waiting for %s workers, interrupting", p.name)
		p.cancel()
		return ctx.Err()
	}
}

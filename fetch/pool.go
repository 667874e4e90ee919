package fetch

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pool is the bounded worker pool of one sync stage. Tasks are producers
// (log queries, rescans) that submit per-item work with Go; only work is
// bounded. The first error from either cancels the pool context, and Wait is
// the stage barrier.
type Pool struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	work  errgroup.Group
	tasks errgroup.Group

	once     sync.Once
	firstErr error
}

// NewPool creates a pool that runs at most workers work items at a time
func NewPool(parent context.Context, workers int) *Pool {
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{parent: parent, ctx: ctx, cancel: cancel}
	p.work.SetLimit(workers)
	return p
}

// Context returns the pool context
func (p *Pool) Context() context.Context {
	return p.ctx
}

func (p *Pool) fail(err error) {
	p.once.Do(func() {
		p.firstErr = err
		p.cancel()
	})
}

func (p *Pool) run(fn func(ctx context.Context) error) error {
	if p.ctx.Err() != nil {
		return nil
	}
	if err := fn(p.ctx); err != nil {
		p.fail(err)
		return err
	}
	return nil
}

// Task starts a producer
func (p *Pool) Task(fn func(ctx context.Context) error) {
	p.tasks.Go(func() error { return p.run(fn) })
}

// Go submits one work item, blocking while all workers are busy
func (p *Pool) Go(fn func(ctx context.Context) error) {
	p.work.Go(func() error { return p.run(fn) })
}

// Wait waits for every task and work item and returns the first error
func (p *Pool) Wait() error {
	_ = p.tasks.Wait()
	_ = p.work.Wait()

	p.cancel()

	if p.firstErr != nil {
		return p.firstErr
	}
	return p.parent.Err()
}

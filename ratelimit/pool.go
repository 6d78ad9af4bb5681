package ratelimit

import "golang.org/x/sync/errgroup"

// Pool bounds the number of bucket workers and response callbacks running
// concurrently, using errgroup.SetLimit. A zero-value Pool (via NewPool(0))
// runs every job on its own goroutine, unbounded.
type Pool struct {
	group errgroup.Group
}

// NewPool builds a Pool. limit <= 0 means unbounded concurrency.
func NewPool(limit int) *Pool {
	p := &Pool{}
	if limit > 0 {
		p.group.SetLimit(limit)
	}
	return p
}

// Go schedules fn, blocking the caller only if the pool is already at its
// concurrency limit.
func (p *Pool) Go(fn func()) {
	p.group.Go(func() error {
		fn()
		return nil
	})
}

// Wait blocks until every job scheduled via Go has returned.
func (p *Pool) Wait() { p.group.Wait() }

// Package fleet implements the fleet-acquisition core: per-region instance
// verification, instance-type/zone fallback scheduling, and cross-region
// shortfall backfill.
package fleet

import "sync"

// Pool is a bounded worker pool. Submitted tasks run on their own goroutine
// but at most size of them execute at a time. Pools are injected into the
// scheduler and coordinator so tests can run with tiny ones.
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool creates a pool executing at most size tasks concurrently
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Submit schedules fn for execution. It never blocks the caller; fn waits
// for a free slot on its own goroutine.
func (p *Pool) Submit(fn func()) {
	p.wg.Add(1)
	go func() {
		p.sem <- struct{}{}
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		fn()
	}()
}

// Wait blocks until every task submitted so far has finished
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Size returns the pool's concurrency bound
func (p *Pool) Size() int {
	return cap(p.sem)
}

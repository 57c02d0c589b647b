// Package workpool bounds how many blocking calls run at once.
package workpool

import (
	"context"
	"fmt"
	"sync"
)

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 4

// Pool limits concurrent execution with a semaphore.
type Pool struct {
	sem chan struct{}
}

// New creates a pool that runs at most size functions concurrently.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return cap(p.sem)
}

// Run executes fn with a slot held, respecting context cancellation.
// Returns ctx.Err() if the context is cancelled while waiting for a slot.
func (p *Pool) Run(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
		fn()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Each calls fn(i) for every i in [0, n) using the pool and waits for all
// calls to finish. Indexes that never got a slot because ctx was cancelled
// are skipped; the context error is returned in that case. A panic in fn is
// recovered and returned as an error; the other calls still run.
func (p *Pool) Each(ctx context.Context, n int, fn func(i int)) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Run(ctx, func() {
				defer func() {
					if r := recover(); r != nil {
						setErr(fmt.Errorf("workpool: task %d panicked: %v", i, r))
					}
				}()
				fn(i)
			})
			if err != nil {
				setErr(err)
			}
		}()
	}

	wg.Wait()
	return firstErr
}

package wheelnet

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// LoopPool owns N Reactors, each on its own goroutine, and balances new
// connections across them with round-robin selection — the only balancing
// strategy this package implements; no weighted or load-aware variant.
type LoopPool struct {
	reactors []*Reactor
	next     uint64

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// NewLoopPool opens n Reactors. An n below 1 is treated as 1.
func NewLoopPool(n int, opts ...Option) (*LoopPool, error) {
	if n < 1 {
		n = 1
	}
	reactors := make([]*Reactor, n)
	for i := 0; i < n; i++ {
		r, err := NewReactor(opts...)
		if err != nil {
			for _, done := range reactors[:i] {
				_ = done.Close()
			}
			return nil, errors.Wrapf(err, "wheelnet: loop pool reactor %d", i)
		}
		reactors[i] = r
	}
	return &LoopPool{reactors: reactors}, nil
}

// Size returns the number of Reactors in the pool.
func (lp *LoopPool) Size() int { return len(lp.reactors) }

// Pick returns the next Reactor by round-robin. The returned reference
// remains valid for the lifetime of the pool between Start and Stop.
func (lp *LoopPool) Pick() (*Reactor, error) {
	lp.mu.Lock()
	stopped := lp.stopped
	lp.mu.Unlock()
	if stopped {
		return nil, ErrPoolStopped
	}
	idx := atomic.AddUint64(&lp.next, 1) % uint64(len(lp.reactors))
	return lp.reactors[idx], nil
}

// Start launches every Reactor's Run loop on its own goroutine.
func (lp *LoopPool) Start() {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.started {
		return
	}
	lp.started = true
	for _, r := range lp.reactors {
		r := r
		lp.wg.Add(1)
		go func() {
			defer lp.wg.Done()
			if err := r.Run(); err != nil {
				r.logger.Errorf("reactor exited: %v", err)
			}
		}()
	}
}

// Stop requests every Reactor to stop and blocks until all have returned
// and their epoll instances are closed.
func (lp *LoopPool) Stop() error {
	lp.mu.Lock()
	if lp.stopped {
		lp.mu.Unlock()
		return nil
	}
	lp.stopped = true
	lp.mu.Unlock()

	var firstErr error
	for _, r := range lp.reactors {
		if err := r.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	lp.wg.Wait()
	for _, r := range lp.reactors {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

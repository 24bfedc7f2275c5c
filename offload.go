package wheelnet

import (
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
)

// Offloader is a bounded goroutine pool application code can hand
// blocking work off to from inside a Reactor callback: handlers that need
// blocking I/O must offload rather than block the Reactor goroutine. Backed
// by ants.
type Offloader struct {
	pool *ants.Pool
}

// NewOffloader creates an Offloader with at most size concurrently running
// goroutines; excess Submit calls block until a slot frees up.
func NewOffloader(size int) (*Offloader, error) {
	p, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, errors.Wrap(err, "wheelnet: new offloader")
	}
	return &Offloader{pool: p}, nil
}

// Submit runs task on the pool. It never runs on a Reactor goroutine.
func (o *Offloader) Submit(task func()) error {
	return errors.Wrap(o.pool.Submit(task), "wheelnet: offloader submit")
}

// Running reports the number of goroutines currently executing tasks.
func (o *Offloader) Running() int { return o.pool.Running() }

// Release shuts the pool down. It returns without waiting for tasks that
// are already running.
func (o *Offloader) Release() { o.pool.Release() }

package wheelnet

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/wheelnet-io/wheelnet/internal/netpoll"
)

// ScratchSize is the size of the per-Reactor thread-local scratch buffer
// used as the second segment of a Connection's gather-read: one scratch
// region reused across every Connection owned by a given Reactor, not
// allocated per-Connection.
const ScratchSize = 32 * 1024

// Reactor demultiplexes readiness events for the descriptors attached to
// it and runs cross-thread task submissions on its own goroutine. Exactly
// one goroutine may call Run at a time; all Handle callbacks it invokes
// run on that goroutine.
type Reactor struct {
	poller *netpoll.Poller
	logger Logger

	// handles is only ever read or written from the Reactor's own
	// goroutine: attach/detach/modify are dispatched through Trigger so
	// the map itself needs no lock.
	handles map[int]*Handle

	// scratch is the thread-local 32KiB receive buffer shared by every
	// Connection this Reactor owns.
	scratch []byte

	offloader *Offloader

	mu      sync.Mutex
	running bool
}

// Option configures a Reactor; NewLoopPool applies the same Options to each
// Reactor it opens. The Acceptor takes AcceptorOption instead.
type Option func(*reactorConfig)

type reactorConfig struct {
	logger    Logger
	offloader *Offloader
}

// WithLogger overrides the default stderr logger.
func WithLogger(l Logger) Option {
	return func(c *reactorConfig) { c.logger = l }
}

// WithOffloader attaches a pool blocking application callbacks can hand
// work off to; see Offloader.
func WithOffloader(o *Offloader) Option {
	return func(c *reactorConfig) { c.offloader = o }
}

// NewReactor opens a fresh epoll instance and its wakeup primitive.
func NewReactor(opts ...Option) (*Reactor, error) {
	cfg := reactorConfig{logger: defaultLogger}
	for _, o := range opts {
		o(&cfg)
	}
	p, err := netpoll.OpenPoller()
	if err != nil {
		return nil, errors.Wrap(err, "wheelnet: new reactor")
	}
	return &Reactor{
		poller:    p,
		logger:    cfg.logger,
		handles:   make(map[int]*Handle),
		scratch:   make([]byte, ScratchSize),
		offloader: cfg.offloader,
	}, nil
}

// Offloader returns the pool configured via WithOffloader, or nil.
func (r *Reactor) Offloader() *Offloader { return r.offloader }

// Post enqueues task to run on the Reactor's goroutine, in FIFO order
// relative to other Post calls from the same calling goroutine. Safe from
// any thread; never blocks other than on the task queue's lock and the
// wakeup write.
func (r *Reactor) Post(task func()) error {
	return r.poller.Trigger(func() error {
		task()
		return nil
	})
}

// attach/detach/modify run their real work inside a Trigger closure so the
// handles map is only ever touched on the Reactor's own goroutine, but
// Trigger is fire-and-forget: its return value only ever reflects whether
// the wakeup submission itself succeeded, never the enqueued work's
// outcome. A caller misuse error such as ErrAlreadyAttached must therefore
// never be returned from inside the closure — doing so would hand that
// error to drainTasks as if it were fatal and tear down the whole Reactor.
// Misuse is logged instead.

func (r *Reactor) attach(h *Handle, mask uint32) error {
	return r.poller.Trigger(func() error {
		if h.IsAttached() {
			r.logger.Warnf("attach fd=%d: %v", h.fd, ErrAlreadyAttached)
			return nil
		}
		if err := r.poller.AddRead(h.fd); err != nil {
			r.logger.Warnf("attach fd=%d: %v", h.fd, err)
			return nil
		}
		if mask&netpoll.EventWrite != 0 {
			if err := r.poller.ModReadWrite(h.fd); err != nil {
				r.logger.Warnf("attach(rw) fd=%d: %v", h.fd, err)
				return nil
			}
		}
		h.reactor = r
		h.setMask(mask)
		h.setState(Attached)
		r.handles[h.fd] = h
		return nil
	})
}

func (r *Reactor) detach(h *Handle) error {
	return r.poller.Trigger(func() error {
		if !h.IsAttached() {
			return nil
		}
		delete(r.handles, h.fd)
		h.setState(Detached)
		if err := r.poller.Delete(h.fd); err != nil {
			r.logger.Warnf("detach fd=%d: %v", h.fd, err)
		}
		return nil
	})
}

func (r *Reactor) modify(h *Handle, mask uint32) error {
	return r.poller.Trigger(func() error {
		if !h.IsAttached() {
			r.logger.Warnf("modify fd=%d: %v", h.fd, ErrDetached)
			return nil
		}
		h.setMask(mask)
		var err error
		if mask&netpoll.EventWrite != 0 {
			err = r.poller.ModReadWrite(h.fd)
		} else {
			err = r.poller.ModRead(h.fd)
		}
		if err != nil {
			r.logger.Warnf("modify fd=%d mask=%#x: %v", h.fd, mask, err)
		}
		return nil
	})
}

// dispatch is the netpoll.EventCallback driving one ready descriptor's
// Handle callbacks. Write is serviced before read when both are pending —
// draining the outbound queue first keeps backpressure signalling honest —
// though the ordering only matters when both bits are set in the same
// batch.
func (r *Reactor) dispatch(fd int, ev uint32) error {
	h, ok := r.handles[fd]
	if !ok {
		return nil
	}
	if ev&netpoll.EventWrite != 0 && h.onWritable != nil {
		if err := h.onWritable(); err != nil {
			return err
		}
	}
	if ev&(netpoll.EventRead|netpoll.EventErr) != 0 && h.onReadable != nil {
		return h.onReadable()
	}
	return nil
}

// Run blocks dispatching events and posted tasks until Stop is called.
func (r *Reactor) Run() error {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	err := r.poller.Polling(r.dispatch)
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

// Stop requests termination; Run returns after the current dispatch batch.
func (r *Reactor) Stop() error {
	return r.poller.Trigger(func() error { return errStop })
}

// Close releases the underlying epoll instance. Call only after Run has
// returned.
func (r *Reactor) Close() error {
	return r.poller.Close()
}

package wheelnet

import (
	"sync"

	"github.com/wheelnet-io/wheelnet/internal/netpoll"
)

// HandleState is the attachment lifecycle of a Handle: Detached ->
// Attached -> Detached.
type HandleState int

const (
	Detached HandleState = iota
	Attached
)

// Handle binds one file descriptor to one Reactor plus its event mask and
// callbacks. All mutation of the mask happens on the owning Reactor's
// goroutine; Attach/Detach may be called from any thread and take effect
// before the Reactor's next wakeup.
type Handle struct {
	fd      int
	reactor *Reactor

	mu    sync.Mutex
	state HandleState
	mask  uint32

	onReadable func() error
	onWritable func() error
	onClose    func(err error)
}

// NewHandle constructs a Detached Handle for fd on reactor. The callbacks
// run on the reactor's goroutine and must never block.
func NewHandle(reactor *Reactor, fd int, onReadable, onWritable func() error, onClose func(err error)) *Handle {
	return &Handle{
		fd:         fd,
		reactor:    reactor,
		state:      Detached,
		onReadable: onReadable,
		onWritable: onWritable,
		onClose:    onClose,
	}
}

// FD returns the underlying descriptor.
func (h *Handle) FD() int { return h.fd }

func (h *Handle) IsAttached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == Attached
}

// Attach registers h with its Reactor for initial READ readiness. Safe to
// call from any thread; the registration itself always happens on the
// Reactor's own goroutine, taking effect before its next wakeup. The
// returned error reflects only whether the cross-thread submission itself
// succeeded, not the registration's outcome — misuse such as attaching an
// already-attached Handle is logged on the Reactor, not returned here.
func (h *Handle) Attach() error {
	return h.reactor.attach(h, netpoll.EventRead)
}

// Detach deregisters h. Safe to call from any thread; see Attach for what
// its returned error does and does not cover.
func (h *Handle) Detach() error {
	return h.reactor.detach(h)
}

// EnableWrite adds WRITE to h's event mask (level-triggered: it stays set
// until DisableWrite is called, not until the socket merely accepts one
// write). Safe to call from any thread; see Attach for what its returned
// error does and does not cover.
func (h *Handle) EnableWrite() error {
	return h.reactor.modify(h, netpoll.EventRead|netpoll.EventWrite)
}

// DisableWrite clears WRITE from h's event mask.
func (h *Handle) DisableWrite() error {
	return h.reactor.modify(h, netpoll.EventRead)
}

func (h *Handle) setState(s HandleState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) setMask(mask uint32) {
	h.mu.Lock()
	h.mask = mask
	h.mu.Unlock()
}

// Package netpoll wraps epoll(7) into a level-triggered readiness
// multiplexer plus a cross-thread task queue, giving the Reactor a single
// primitive that combines C3 (the multiplexer) and C2 (the Wakeable).
package netpoll

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Event mask bits, mirroring the READ/WRITE bits of Handle's event mask.
const (
	EventRead  = unix.EPOLLIN
	EventWrite = unix.EPOLLOUT
	// EventErr is always implicitly watched by epoll; callers never set it.
	EventErr = unix.EPOLLERR | unix.EPOLLHUP | unix.EPOLLRDHUP
)

// Task is a unit of cross-thread work submitted to a Poller via Trigger.
// It runs on the thread calling Polling.
type Task func() error

// Poller owns one epoll instance and the eventfd used to wake it from other
// threads. Exactly one goroutine may call Polling at a time.
type Poller struct {
	epfd    int
	wakeFd  int // eventfd read+write end, always registered for EventRead
	mu      sync.Mutex
	tasks   *queue.Queue
	closed  bool
	closeMu sync.Mutex
}

// OpenPoller creates a new epoll instance with its wakeup eventfd already
// registered for read-readiness.
func OpenPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "netpoll: epoll_create1")
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, errors.Wrap(err, "netpoll: eventfd")
	}
	p := &Poller{epfd: epfd, wakeFd: wakeFd, tasks: queue.New()}
	if err := p.addFd(wakeFd, EventRead); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFd)
		return nil, err
	}
	return p, nil
}

func (p *Poller) addFd(fd int, events uint32) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: events}
	return errors.Wrapf(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev), "netpoll: epoll_ctl add fd=%d", fd)
}

// AddRead registers fd for read-readiness only.
func (p *Poller) AddRead(fd int) error { return p.addFd(fd, EventRead) }

// AddReadWrite registers fd for both read- and write-readiness.
func (p *Poller) AddReadWrite(fd int) error { return p.addFd(fd, EventRead|EventWrite) }

// ModRead changes fd's registration to read-readiness only, clearing any
// write interest. Level-triggered: the caller decides when to stop asking
// for WRITE, epoll does not do it automatically.
func (p *Poller) ModRead(fd int) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: EventRead}
	return errors.Wrapf(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev), "netpoll: epoll_ctl mod(read) fd=%d", fd)
}

// ModReadWrite enables write-readiness in addition to read-readiness.
func (p *Poller) ModReadWrite(fd int) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: EventRead | EventWrite}
	return errors.Wrapf(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev), "netpoll: epoll_ctl mod(read|write) fd=%d", fd)
}

// Delete deregisters fd entirely.
func (p *Poller) Delete(fd int) error {
	return errors.Wrapf(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil), "netpoll: epoll_ctl del fd=%d", fd)
}

// Trigger enqueues a task to run on the Polling thread and wakes it if it
// is blocked in epoll_wait. Safe to call from any thread.
func (p *Poller) Trigger(task Task) error {
	p.mu.Lock()
	p.tasks.Add(task)
	p.mu.Unlock()

	one := [8]byte{1, 0, 0, 0, 0, 0, 0, 0}
	_, err := unix.Write(p.wakeFd, one[:])
	if err != nil && err != unix.EAGAIN {
		return errors.Wrap(err, "netpoll: eventfd write")
	}
	return nil
}

func (p *Poller) drainTasks() error {
	p.mu.Lock()
	pending := p.tasks
	p.tasks = queue.New()
	p.mu.Unlock()

	for pending.Length() > 0 {
		task := pending.Remove().(Task)
		if err := task(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

// EventCallback handles one ready descriptor; ev carries the epoll event
// bits (EventRead/EventWrite/EventErr) observed for fd.
type EventCallback func(fd int, ev uint32) error

const maxEpollEvents = 1024

// Polling blocks, dispatching readiness events and drained tasks to
// callback, until callback (or a queued task) returns a non-nil error, or
// the Poller is closed. Exactly one goroutine may call this at a time.
func (p *Poller) Polling(callback EventCallback) error {
	events := make([]unix.EpollEvent, maxEpollEvents)
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "netpoll: epoll_wait")
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == p.wakeFd {
				p.drainWake()
				if err := p.drainTasks(); err != nil {
					return err
				}
				continue
			}
			if err := callback(fd, events[i].Events); err != nil {
				return err
			}
		}
	}
}

// Close releases the epoll instance and its wakeup eventfd. Idempotent.
func (p *Poller) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err0 := unix.Close(p.wakeFd)
	err1 := unix.Close(p.epfd)
	if err0 != nil {
		return errors.Wrap(err0, "netpoll: close eventfd")
	}
	if err1 != nil {
		return errors.Wrap(err1, "netpoll: close epoll")
	}
	return nil
}

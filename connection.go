package wheelnet

import (
	"container/list"
	"encoding/binary"
	"net"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/wheelnet-io/wheelnet/buffer"
)

// OnMessage is invoked on the owning Reactor's goroutine for every frame
// the codec yields from a Connection's inbound stream.
type OnMessage func(c *Connection, frame Frame)

// OnClose is invoked on the owning Reactor's goroutine at most once per
// Connection. err is nil for a clean peer-initiated close (EOF); non-nil
// for any other fatal I/O error.
type OnClose func(c *Connection, err error)

// Connection is the non-blocking read/write state machine for one accepted
// TCP socket: gather-read into a growable inbound buffer, incremental
// frame decode via an injected FramingCodec, and a mutex-guarded outbound
// queue drained with gather-write on the owning Reactor's goroutine.
type Connection struct {
	fd         int
	peerAddr   net.Addr
	localAddr  net.Addr
	reactor    *Reactor
	handle     *Handle
	codec      FramingCodec
	onMessage  OnMessage
	onClose    OnClose

	in *buffer.ByteBuffer

	outMu  sync.Mutex
	outbox *list.List // of *buffer.ByteBuffer, FIFO

	closed atomic.Bool
}

// NewConnection wraps an already-accepted, already-non-blocking socket fd
// for peer peerAddr, to be driven by reactor once Attach is called.
func NewConnection(reactor *Reactor, fd int, peerAddr, localAddr net.Addr, codec FramingCodec, onMessage OnMessage, onClose OnClose) *Connection {
	c := &Connection{
		fd:        fd,
		peerAddr:  peerAddr,
		localAddr: localAddr,
		reactor:   reactor,
		codec:     codec,
		onMessage: onMessage,
		onClose:   onClose,
		in:        buffer.Get(buffer.DefaultCapacity),
		outbox:    list.New(),
	}
	c.handle = NewHandle(reactor, fd, c.handleReadable, c.drain, nil)
	return c
}

// FD returns the underlying socket descriptor.
func (c *Connection) FD() int { return c.fd }

// PeerAddr returns the remote endpoint.
func (c *Connection) PeerAddr() net.Addr { return c.peerAddr }

// LocalAddr returns the local endpoint this Connection accepted on.
func (c *Connection) LocalAddr() net.Addr { return c.localAddr }

// Attach registers the Connection's Handle with its Reactor.
func (c *Connection) Attach() error { return c.handle.Attach() }

// Detach deregisters the Connection's Handle. A destroyed Connection must
// be detached first.
func (c *Connection) Detach() error { return c.handle.Detach() }

// PeerIP returns the remote IPv4 address as a big-endian uint32, 0 if the
// peer is not an IPv4 TCP address. Used by session.GenCID.
func (c *Connection) PeerIP() uint32 {
	ta, ok := c.peerAddr.(*net.TCPAddr)
	if !ok {
		return 0
	}
	ip4 := ta.IP.To4()
	if ip4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(ip4)
}

// PeerPort returns the remote TCP port, 0 if unknown.
func (c *Connection) PeerPort() uint16 {
	ta, ok := c.peerAddr.(*net.TCPAddr)
	if !ok {
		return 0
	}
	return uint16(ta.Port)
}

// Send serializes frame through the Connection's codec and enqueues the
// result for delivery. Thread-safe; silently reports ErrConnectionClosed
// rather than enqueuing once on_close has fired.
func (c *Connection) Send(frame Frame) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.codec.WriteFrame(frame, c.SendRaw, c.SendRawMultiple)
}

// SendRaw enqueues an already-framed buffer for delivery, bypassing the
// codec. Thread-safe.
func (c *Connection) SendRaw(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	b := buffer.Get(len(data))
	_, _ = b.Write(data)
	c.enqueue(b)
	return nil
}

// SendRawMultiple enqueues several already-framed buffers as one logical
// send, preserving order. Thread-safe.
func (c *Connection) SendRawMultiple(datas [][]byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	bufs := make([]*buffer.ByteBuffer, len(datas))
	for i, d := range datas {
		b := buffer.Get(len(d))
		_, _ = b.Write(d)
		bufs[i] = b
	}
	c.enqueueMultiple(bufs)
	return nil
}

func (c *Connection) enqueue(b *buffer.ByteBuffer) {
	c.outMu.Lock()
	c.outbox.PushBack(b)
	c.outMu.Unlock()
	_ = c.reactor.Post(func() { _ = c.drain() })
}

func (c *Connection) enqueueMultiple(bufs []*buffer.ByteBuffer) {
	c.outMu.Lock()
	for _, b := range bufs {
		c.outbox.PushBack(b)
	}
	c.outMu.Unlock()
	_ = c.reactor.Post(func() { _ = c.drain() })
}

// handleReadable implements the read path: gather-read into in's writable
// tail plus the Reactor's scratch segment, incrementally
// decode frames, and repeat until EAGAIN, EOF, or a fatal error.
func (c *Connection) handleReadable() error {
	scratch := c.reactor.scratch
	for {
		seg0 := c.in.Writable()
		seg0Len := len(seg0)
		iovs := [][]byte{seg0, scratch}

		n, err := unix.Readv(c.fd, iovs)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return nil
			}
			c.fireClose(err)
			return nil
		}
		if n == 0 {
			c.fireClose(nil)
			return nil
		}

		if n > seg0Len {
			c.in.MarkWrite(seg0Len)
			overflow := n - seg0Len
			c.in.Enlarge(overflow)
			copy(c.in.Writable()[:overflow], scratch[:overflow])
			c.in.MarkWrite(overflow)
		} else {
			c.in.MarkWrite(n)
		}

		for {
			frame, ok := c.codec.ReadFrame(c.in)
			if !ok {
				if c.in.IsEmpty() {
					c.in.Release()
					c.in = buffer.Get(buffer.DefaultCapacity)
				} else {
					peek := c.codec.PeekLen(c.in)
					if peek < 0 {
						peek = buffer.DefaultCapacity
					}
					c.in.Ensure(peek)
				}
				break
			}
			if c.onMessage != nil {
				c.onMessage(c, frame)
			}
			if c.closed.Load() {
				return nil
			}
		}

		if n < seg0Len+len(scratch) {
			// Short read: EAGAIN expected on the next readiness signal.
			return nil
		}
	}
}

// drain runs on the owning Reactor's goroutine only — as a Handle write
// callback or as a task posted by Send/SendRaw — and implements the write
// path: snapshot up to 50 buffers, gather-write, advance FIFO
// cursors by the bytes actually sent, and only clear WRITE readiness once
// the queue is empty.
const maxGatherWriteBufs = 50

func (c *Connection) drain() error {
	for {
		c.outMu.Lock()
		if c.outbox.Len() == 0 {
			c.outMu.Unlock()
			break
		}
		n := c.outbox.Len()
		if n > maxGatherWriteBufs {
			n = maxGatherWriteBufs
		}
		iovs := make([][]byte, n)
		e := c.outbox.Front()
		for i := 0; i < n; i++ {
			iovs[i] = e.Value.(*buffer.ByteBuffer).Readable()
			e = e.Next()
		}
		c.outMu.Unlock()

		sent, err := unix.Writev(c.fd, iovs)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				_ = c.handle.EnableWrite()
				return nil
			}
			c.fireClose(err)
			return nil
		}

		c.outMu.Lock()
		c.markSent(sent)
		empty := c.outbox.Len() == 0
		c.outMu.Unlock()
		if empty {
			_ = c.handle.DisableWrite()
			break
		}
	}
	return nil
}

// markSent advances the FIFO's read cursors by total bytes, releasing any
// buffer that becomes fully drained. Caller holds outMu.
func (c *Connection) markSent(total int) {
	remaining := total
	for remaining > 0 {
		e := c.outbox.Front()
		if e == nil {
			return
		}
		b := e.Value.(*buffer.ByteBuffer)
		bl := b.ReadableLen()
		if remaining >= bl {
			b.Release()
			c.outbox.Remove(e)
			remaining -= bl
		} else {
			b.MarkRead(remaining)
			remaining = 0
		}
	}
}

// fireClose invokes on_close exactly once, detaches the Handle, and frees
// buffered state. Safe to call from handleReadable or drain.
func (c *Connection) fireClose(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	_ = c.Detach()
	_ = unix.Close(c.fd)

	c.in.Release()

	c.outMu.Lock()
	for e := c.outbox.Front(); e != nil; e = e.Next() {
		e.Value.(*buffer.ByteBuffer).Release()
	}
	c.outbox.Init()
	c.outMu.Unlock()

	if c.onClose != nil {
		c.onClose(c, err)
	}
}

// Close initiates an application-requested close; delivers on_close(nil)
// once any queued outbound data has been attempted.
func (c *Connection) Close() error {
	if c.closed.Load() {
		return nil
	}
	return c.reactor.Post(func() {
		c.fireClose(nil)
	})
}

package wheelnet

import (
	"net"
	"os"

	"github.com/libp2p/go-reuseport"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// NewConnectionHandler is invoked synchronously on the chosen Reactor's
// goroutine, before the Connection is attached, so the application can
// install its message/close callbacks.
type NewConnectionHandler func(fd int, peer net.Addr, conn *Connection)

// AcceptorOption configures socket tunables the Acceptor applies to every
// accepted Connection.
type AcceptorOption func(*acceptorConfig)

type acceptorConfig struct {
	keepAlive     bool
	sndBuf, rcvBuf int
}

// WithKeepAlive enables SO_KEEPALIVE on every accepted socket.
func WithKeepAlive() AcceptorOption {
	return func(c *acceptorConfig) { c.keepAlive = true }
}

// WithSendBuffer sets SO_SNDBUF on every accepted socket.
func WithSendBuffer(n int) AcceptorOption {
	return func(c *acceptorConfig) { c.sndBuf = n }
}

// WithRecvBuffer sets SO_RCVBUF on every accepted socket.
func WithRecvBuffer(n int) AcceptorOption {
	return func(c *acceptorConfig) { c.rcvBuf = n }
}

// Acceptor owns a listening socket and, on each accepted connection,
// delegates a freshly constructed Connection to a Reactor chosen from a
// LoopPool.
type Acceptor struct {
	ln net.Listener
	f  *os.File
	fd int

	acceptReactor *Reactor
	handle        *Handle
	pool          *LoopPool

	codec     FramingCodec
	onNewConn NewConnectionHandler
	onMessage OnMessage
	onClose   OnClose

	cfg    acceptorConfig
	logger Logger
}

// NewAcceptor binds addr (host:port) with SO_REUSEADDR set — via
// github.com/libp2p/go-reuseport, which also lets multiple processes share
// the port with SO_REUSEPORT when the platform supports it — and arranges
// to attach its listening socket to acceptReactor once Start is called.
func NewAcceptor(addr string, acceptReactor *Reactor, pool *LoopPool, codec FramingCodec, onNewConn NewConnectionHandler, onMessage OnMessage, onClose OnClose, opts ...AcceptorOption) (*Acceptor, error) {
	ln, err := reuseport.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "wheelnet: listen %s", addr)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return nil, errors.Errorf("wheelnet: %s did not yield a TCP listener", addr)
	}
	// tcpLn.File() dup's the descriptor into a fresh *os.File carrying its
	// own finalizer; that *os.File must be retained for the acceptor's
	// whole lifetime, or the finalizer closes the dup (and the live accept
	// fd epoll is watching) out from under it on the next GC.
	file, err := tcpLn.File()
	if err != nil {
		_ = ln.Close()
		return nil, errors.Wrap(err, "wheelnet: listener fd")
	}
	fd := int(file.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = file.Close()
		_ = ln.Close()
		return nil, errors.Wrap(err, "wheelnet: set listener non-blocking")
	}

	a := &Acceptor{
		ln:            ln,
		f:             file,
		fd:            fd,
		acceptReactor: acceptReactor,
		pool:          pool,
		codec:         codec,
		onNewConn:     onNewConn,
		onMessage:     onMessage,
		onClose:       onClose,
		logger:        defaultLogger,
	}
	for _, o := range opts {
		o(&a.cfg)
	}
	a.handle = NewHandle(acceptReactor, fd, a.acceptLoop, nil, nil)
	return a, nil
}

// Addr returns the bound listening address.
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

// Start attaches the listening socket's Handle to its Reactor.
func (a *Acceptor) Start() error { return a.handle.Attach() }

// Stop detaches and closes the listening socket, including the dup'd
// descriptor retained from NewAcceptor.
func (a *Acceptor) Stop() error {
	_ = a.handle.Detach()
	_ = a.f.Close()
	return a.ln.Close()
}

// acceptLoop runs on acceptReactor's goroutine: accept in a loop until
// EAGAIN, handing each new socket to a Reactor picked from the pool.
// Errors other than EAGAIN/EINTR are logged and the listener keeps running.
func (a *Acceptor) acceptLoop() error {
	for {
		nfd, sa, err := unix.Accept(a.fd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return nil
			}
			a.logger.Warnf("accept error: %v", err)
			return nil
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			a.logger.Warnf("set non-blocking on accepted fd=%d: %v", nfd, err)
			_ = unix.Close(nfd)
			continue
		}
		a.applySockopts(nfd)

		peer := sockaddrToTCPAddr(sa)
		reactor, err := a.pool.Pick()
		if err != nil {
			a.logger.Warnf("no reactor available for fd=%d: %v", nfd, err)
			_ = unix.Close(nfd)
			continue
		}
		if err := reactor.Post(func() {
			conn := NewConnection(reactor, nfd, peer, a.ln.Addr(), a.codec, a.onMessage, a.onClose)
			if a.onNewConn != nil {
				a.onNewConn(nfd, peer, conn)
			}
			if err := conn.Attach(); err != nil {
				a.logger.Warnf("attach fd=%d: %v", nfd, err)
			}
		}); err != nil {
			a.logger.Warnf("post new connection fd=%d: %v", nfd, err)
			_ = unix.Close(nfd)
		}
	}
}

func (a *Acceptor) applySockopts(fd int) {
	if a.cfg.keepAlive {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	}
	if a.cfg.sndBuf > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, a.cfg.sndBuf)
	}
	if a.cfg.rcvBuf > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, a.cfg.rcvBuf)
	}
}

func sockaddrToTCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte{}, v.Addr[:]...), Port: v.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte{}, v.Addr[:]...), Port: v.Port}
	default:
		return &net.TCPAddr{}
	}
}

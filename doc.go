// Package wheelnet is a reactive TCP networking core: a multiplexed
// event-loop reactor, a fixed pool of such reactors, a non-blocking
// Connection state machine with length-prefixed framing delegated to an
// injected codec, an Acceptor that balances new sockets across the pool,
// and (in the session subpackage) a hashed-timing-wheel-backed registry
// for expiring idle sessions.
//
// wheelnet targets Linux/epoll. Every callback a Reactor invokes — read,
// write, accepted task — runs on that Reactor's own goroutine; the Reactor
// itself blocks only in the epoll_wait syscall.
package wheelnet

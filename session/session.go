// Package session binds an authenticated user (uin) to a transport-level
// Source (typically a *wheelnet.Connection) and keeps that binding fresh
// against a timing wheel, so idle sessions are evicted automatically.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/wheelnet-io/wheelnet/timingwheel"
)

// Source is whatever a Session forwards application data through. A
// *wheelnet.Connection satisfies this structurally.
type Source interface {
	PeerIP() uint32
	PeerPort() uint16
	SendRaw(data []byte) error
	SendRawMultiple(datas [][]byte) error
}

// GenCID derives the 64-bit connection id a Session is indexed by from its
// Source's peer address: high 32 bits are the IPv4 address, low 32 bits are
// the port left-shifted by 16, leaving the low 16 bits zero for a future
// per-listener discriminant, matching the original cid layout this registry
// replaces.
func GenCID(src Source) uint64 {
	return (uint64(src.PeerIP()) << 32) | (uint64(src.PeerPort()) << 16)
}

// Session is one (uin, connection) binding. A given uin may have several
// live Sessions (multi-login); a given connection (cid) has exactly one.
type Session struct {
	cid        uint64
	uin        uint32
	sessionKey uuid.UUID
	createMs   int64

	updateMs atomic.Int64
	seq      atomic.Uint32

	timeoutMu sync.Mutex
	timeout   *timingwheel.Timeout

	source Source
}

// NewSession builds a Session for uin bound to src, with cid derived from
// src's peer address via GenCID.
func NewSession(uin uint32, src Source) *Session {
	now := time.Now().UnixMilli()
	return &Session{
		cid:        GenCID(src),
		uin:        uin,
		sessionKey: uuid.New(),
		createMs:   now,
		source:     src,
	}
}

// CID returns the connection id this Session is keyed by in a registry.
func (s *Session) CID() uint64 { return s.cid }

// Uin returns the user id this Session is bound to.
func (s *Session) Uin() uint32 { return s.uin }

// SessionKey returns this Session's opaque identity, stable for its
// lifetime, independent of cid or uin.
func (s *Session) SessionKey() uuid.UUID { return s.sessionKey }

// CreateMs returns the Session's creation time, Unix milliseconds.
func (s *Session) CreateMs() int64 { return s.createMs }

// LastUpdateMs returns the Session's last touch time, Unix milliseconds.
func (s *Session) LastUpdateMs() int64 { return s.updateMs.Load() }

// IncSeq returns the next value of this Session's request sequence counter,
// starting from zero, safe to call concurrently.
func (s *Session) IncSeq() uint32 { return s.seq.Inc() - 1 }

// touch records the Session as freshly used at updateMs.
func (s *Session) touch(updateMs int64) { s.updateMs.Store(updateMs) }

// resetTimeout cancels any previously scheduled idle-eviction Timeout for
// this Session and records the new one. Guarded by timeoutMu because touch
// (from the application's goroutine, via Registry.Touch) and a firing
// timeout callback (from the wheel's driving goroutine) can race.
func (s *Session) resetTimeout(to *timingwheel.Timeout) {
	s.timeoutMu.Lock()
	if s.timeout != nil {
		s.timeout.Cancel()
	}
	s.timeout = to
	s.timeoutMu.Unlock()
}

// currentTimeout is the authoritative check a firing eviction task must
// make before acting: a Session can be re-touched after its eviction task
// was scheduled but before it fired, in which case that stale callback must
// treat this Session as already safe and do nothing.
func (s *Session) currentTimeout() *timingwheel.Timeout {
	s.timeoutMu.Lock()
	defer s.timeoutMu.Unlock()
	return s.timeout
}

// Send forwards an already-framed buffer to this Session's Source.
func (s *Session) Send(data []byte) error { return s.source.SendRaw(data) }

// SendMultiple forwards several already-framed buffers to this Session's
// Source as one logical send.
func (s *Session) SendMultiple(datas [][]byte) error { return s.source.SendRawMultiple(datas) }

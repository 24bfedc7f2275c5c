package session

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/wheelnet-io/wheelnet/timingwheel"
)

// Registry holds every live Session, indexed two ways: uniquely by cid
// (one TCP connection, one Session) and as a multiset by uin (multi-login:
// one user, several connections). Idle Sessions are evicted by a
// timingwheel.TimingWheel shared with the Reactor the connections live on,
// so eviction always runs on that Reactor's own goroutine.
type Registry struct {
	expireMs uint64
	wheel    *timingwheel.TimingWheel

	uinMu  sync.Mutex
	uinMap map[uint32]mapset.Set[*Session]

	cidMu  sync.Mutex
	cidMap map[uint64]*Session
}

// NewRegistry builds a Registry that evicts a Session after it has gone
// expireMs without a Touch, using wheel to schedule evictions.
func NewRegistry(wheel *timingwheel.TimingWheel, expireMs uint64) *Registry {
	return &Registry{
		expireMs: expireMs,
		wheel:    wheel,
		uinMap:   make(map[uint32]mapset.Set[*Session]),
		cidMap:   make(map[uint64]*Session),
	}
}

// Add inserts sess into both indexes and arms its idle-eviction timeout.
// Locking order is always uin before cid, matching Remove, so the two
// indexes never deadlock against each other.
func (r *Registry) Add(sess *Session) {
	r.uinMu.Lock()
	set, ok := r.uinMap[sess.uin]
	if !ok {
		set = mapset.NewThreadUnsafeSet[*Session]()
		r.uinMap[sess.uin] = set
	}
	set.Add(sess)
	r.uinMu.Unlock()

	r.cidMu.Lock()
	r.cidMap[sess.cid] = sess
	r.cidMu.Unlock()

	r.armTimeout(sess)
}

// Remove deletes sess from both indexes and cancels its pending
// idle-eviction timeout. Unlike the multimap-keyed removal this registry's
// design is grounded on — which erased every Session for a uin whenever any
// one of them expired — this removes exactly sess from its uin's Set by
// value, leaving the user's other live Sessions untouched.
func (r *Registry) Remove(sess *Session) {
	r.uinMu.Lock()
	if set, ok := r.uinMap[sess.uin]; ok {
		set.Remove(sess)
		if set.Cardinality() == 0 {
			delete(r.uinMap, sess.uin)
		}
	}
	r.uinMu.Unlock()

	r.cidMu.Lock()
	if cur, ok := r.cidMap[sess.cid]; ok && cur == sess {
		delete(r.cidMap, sess.cid)
	}
	r.cidMu.Unlock()

	// Cancel is a no-op if this Remove was itself reached from the
	// timeout's own firing (state is already stateExpired by then), so
	// explicitly removing a still-active Session and an eviction removing
	// an expired one both leave no live timeout behind.
	if to := sess.currentTimeout(); to != nil {
		to.Cancel()
	}
}

// FindByCID looks up the Session bound to cid, if any.
func (r *Registry) FindByCID(cid uint64) (*Session, bool) {
	r.cidMu.Lock()
	defer r.cidMu.Unlock()
	sess, ok := r.cidMap[cid]
	return sess, ok
}

// Touch marks sess as freshly used and re-arms its idle-eviction timeout,
// cancelling whichever one was previously scheduled.
func (r *Registry) Touch(sess *Session) {
	sess.touch(time.Now().UnixMilli())
	r.armTimeout(sess)
}

// TouchByCID is Touch by connection id; a no-op if cid is not registered.
func (r *Registry) TouchByCID(cid uint64) {
	if sess, ok := r.FindByCID(cid); ok {
		r.Touch(sess)
	}
}

// armTimeout schedules sess's next idle-eviction via the self-referential
// closure idiom: the fired task captures the *timingwheel.Timeout it was
// scheduled as, so it can check — at fire time, on the wheel's driving
// goroutine — whether it is still the authoritative timeout for sess before
// removing it. A sess re-touched after this schedule but before it fires
// will have installed a newer Timeout by then, so the stale firing becomes
// a no-op rather than evicting a session that is actually still active.
func (r *Registry) armTimeout(sess *Session) {
	var self *timingwheel.Timeout
	self = r.wheel.Schedule(func() {
		if sess.currentTimeout() != self {
			return
		}
		r.Remove(sess)
	}, r.expireMs)
	sess.resetTimeout(self)
}

// SendToUin delivers data to every live Session for uin. Sessions are
// snapshotted under the uin lock and delivered to after releasing it, so a
// slow or blocking Source.SendRaw cannot stall Add/Remove/Touch for other
// uins or other Sessions of this one.
func (r *Registry) SendToUin(uin uint32, data []byte) {
	for _, sess := range r.snapshotUin(uin) {
		_ = sess.Send(data)
	}
}

// SendMultiToUin is SendToUin for a batch of already-framed buffers sent as
// one logical write per Session.
func (r *Registry) SendMultiToUin(uin uint32, datas [][]byte) {
	for _, sess := range r.snapshotUin(uin) {
		_ = sess.SendMultiple(datas)
	}
}

func (r *Registry) snapshotUin(uin uint32) []*Session {
	r.uinMu.Lock()
	set, ok := r.uinMap[uin]
	if !ok {
		r.uinMu.Unlock()
		return nil
	}
	out := make([]*Session, 0, set.Cardinality())
	set.Each(func(s *Session) bool {
		out = append(out, s)
		return false
	})
	r.uinMu.Unlock()
	return out
}

// CountForUin returns how many live Sessions uin currently has.
func (r *Registry) CountForUin(uin uint32) int {
	r.uinMu.Lock()
	defer r.uinMu.Unlock()
	if set, ok := r.uinMap[uin]; ok {
		return set.Cardinality()
	}
	return 0
}

// Len returns the total number of live Sessions.
func (r *Registry) Len() int {
	r.cidMu.Lock()
	defer r.cidMu.Unlock()
	return len(r.cidMap)
}

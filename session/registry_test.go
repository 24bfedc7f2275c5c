package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wheelnet-io/wheelnet/timingwheel"
)

// fakeSource is a minimal Source for registry tests: it records every send
// instead of touching a real socket, standing in for either a TCP
// *wheelnet.Connection or a UDP endpoint.
type fakeSource struct {
	ip   uint32
	port uint16

	mu  sync.Mutex
	out [][]byte
}

func newFakeSource(ip uint32, port uint16) *fakeSource { return &fakeSource{ip: ip, port: port} }

func (f *fakeSource) PeerIP() uint32   { return f.ip }
func (f *fakeSource) PeerPort() uint16 { return f.port }

func (f *fakeSource) SendRaw(data []byte) error {
	f.mu.Lock()
	f.out = append(f.out, append([]byte{}, data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeSource) SendRawMultiple(datas [][]byte) error {
	for _, d := range datas {
		if err := f.SendRaw(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.out)
}

func TestAddFindRemoveByCID(t *testing.T) {
	w := timingwheel.New(10, 16)
	r := NewRegistry(w, 1000)

	sess := NewSession(42, newFakeSource(0x0A000001, 5000))
	r.Add(sess)

	got, ok := r.FindByCID(sess.CID())
	assert.True(t, ok)
	assert.Same(t, sess, got)

	r.Remove(sess)
	_, ok = r.FindByCID(sess.CID())
	assert.False(t, ok)
}

func TestSessionExclusivityPerUinIsAMultiset(t *testing.T) {
	w := timingwheel.New(10, 16)
	r := NewRegistry(w, 1000)

	a := NewSession(7, newFakeSource(0x0A000001, 5000))
	b := NewSession(7, newFakeSource(0x0A000002, 5001))
	r.Add(a)
	r.Add(b)

	assert.Equal(t, 2, r.CountForUin(7))

	r.Remove(a)
	assert.Equal(t, 1, r.CountForUin(7), "removing one session must not evict the other sessions for the same uin")

	_, ok := r.FindByCID(b.CID())
	assert.True(t, ok, "b's cid entry must survive a's removal")
}

func TestRemoveOnlyTargetedSessionNotWholeUin(t *testing.T) {
	// Regression test for the multimap-erase-by-key bug this registry's
	// design avoids: erasing one session for a uin must never erase its
	// sibling sessions for that same uin.
	w := timingwheel.New(10, 16)
	r := NewRegistry(w, 1000)

	sessions := make([]*Session, 5)
	for i := range sessions {
		sessions[i] = NewSession(99, newFakeSource(uint32(0x0A000000+i), uint16(6000+i)))
		r.Add(sessions[i])
	}
	assert.Equal(t, 5, r.CountForUin(99))

	r.Remove(sessions[2])
	assert.Equal(t, 4, r.CountForUin(99))
	for i, s := range sessions {
		_, ok := r.FindByCID(s.CID())
		if i == 2 {
			assert.False(t, ok)
		} else {
			assert.True(t, ok)
		}
	}
}

func TestRemoveCancelsThePendingEvictionTimeout(t *testing.T) {
	w := timingwheel.New(10, 16)
	r := NewRegistry(w, 30) // 3 ticks

	sess := NewSession(1, newFakeSource(0x0A000001, 5000))
	r.Add(sess)

	to := sess.currentTimeout()
	assert.NotNil(t, to)

	r.Remove(sess)
	assert.False(t, to.Cancel(), "Remove must already have cancelled the timeout, so a second Cancel has nothing left to do")
}

func TestIdleEvictionFiresAfterExpiry(t *testing.T) {
	w := timingwheel.New(10, 16) // 10ms/tick
	r := NewRegistry(w, 30)      // expire after 30ms -> 3 ticks

	sess := NewSession(1, newFakeSource(0x0A000001, 5000))
	r.Add(sess)

	// expireMs=30 at 10ms/tick is 3 ticks -> bucket index 3; Advance visits
	// bucket (ticked & mask) then increments ticked, so that bucket is only
	// reached on the 4th call.
	for i := 0; i < 4; i++ {
		w.Advance()
	}
	_, ok := r.FindByCID(sess.CID())
	assert.False(t, ok, "idle session must be evicted once its timeout fires")
	assert.Equal(t, 0, r.CountForUin(1))
}

func TestTouchRearmsAndSurvivesOriginalDeadline(t *testing.T) {
	w := timingwheel.New(10, 16)
	r := NewRegistry(w, 30) // 3 ticks

	sess := NewSession(1, newFakeSource(0x0A000001, 5000))
	r.Add(sess)

	w.Advance() // 1 tick elapsed; old timeout scheduled for bucket index 3
	r.Touch(sess)

	// Three more ticks land exactly on what would have been the original
	// timeout's bucket (index 3, reached on the 4th total Advance call).
	// The touch cancelled it, so that firing must be a no-op and sess must
	// still be registered.
	for i := 0; i < 3; i++ {
		w.Advance()
	}
	_, ok := r.FindByCID(sess.CID())
	assert.True(t, ok, "touch must cancel the stale eviction and re-arm a fresh one")
}

func TestSendToUinDeliversToEverySessionForThatUin(t *testing.T) {
	w := timingwheel.New(10, 16)
	r := NewRegistry(w, 1000)

	s1 := newFakeSource(0x0A000001, 5000)
	s2 := newFakeSource(0x0A000002, 5001)
	other := newFakeSource(0x0A000003, 5002)
	r.Add(NewSession(1, s1))
	r.Add(NewSession(1, s2))
	r.Add(NewSession(2, other))

	r.SendToUin(1, []byte("hello"))

	assert.Equal(t, 1, s1.sent())
	assert.Equal(t, 1, s2.sent())
	assert.Equal(t, 0, other.sent(), "send to uin 1 must not reach a session for a different uin")
}

func TestGenCIDIsStablePerPeerAddress(t *testing.T) {
	a := newFakeSource(0x0A000001, 5000)
	b := newFakeSource(0x0A000001, 5000)
	c := newFakeSource(0x0A000001, 5001)

	assert.Equal(t, GenCID(a), GenCID(b))
	assert.NotEqual(t, GenCID(a), GenCID(c))
}

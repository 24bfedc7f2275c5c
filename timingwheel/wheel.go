// Package timingwheel implements Netty-style hashed timing wheel
// scheduling: O(1) amortized add/cancel for very large numbers of
// short-lived timeouts, advanced by an externally driven tick.
package timingwheel

import (
	"container/list"
	"math/bits"
	"sync"

	"go.uber.org/atomic"
)

// Timeout state. Only INIT -> CANCELLED and INIT -> EXPIRED transitions are
// legal, both via CAS; cancelling an already-expired (or already-
// cancelled) Timeout is a no-op.
const (
	stateInit uint32 = iota
	stateCancelled
	stateExpired
)

// Timeout is a handle to one scheduled task. A Timeout present in a bucket
// always has state INIT or CANCELLED; once EXPIRED it has been removed.
type Timeout struct {
	state           atomic.Uint32
	remainingRounds uint32 // mutated only during Advance, on the wheel's single driving thread
	task            func()

	wheel *TimingWheel
	elem  *list.Element // set once linked into a bucket; nil before/after
}

// Cancel transitions a Timeout from INIT to CANCELLED. Idempotent; reports
// whether this call performed the transition. A Timeout whose task has
// already begun running cannot be cancelled — the task still completes.
func (t *Timeout) Cancel() bool {
	return t.state.CompareAndSwap(stateInit, stateCancelled)
}

// IsExpired reports whether the Timeout's task has fired.
func (t *Timeout) IsExpired() bool { return t.state.Load() == stateExpired }

// TimingWheel buckets timeouts into ticksPerWheel (rounded up to a power
// of two) slots of msPerTick milliseconds each, so Schedule/Cancel are
// O(1) and Advance only ever walks the one bucket due this tick.
type TimingWheel struct {
	msPerTick     uint64
	ticksPerWheel uint32 // W, power of two
	mask          uint32
	shift         uint

	mu      sync.Mutex
	ticked  atomic.Uint64
	buckets []*list.List
}

// New constructs a TimingWheel. ticksPerWheel is rounded up to the next
// power of two.
func New(msPerTick uint64, ticksPerWheel uint32) *TimingWheel {
	if msPerTick == 0 {
		msPerTick = 1
	}
	w := nextPowerOfTwo(ticksPerWheel)
	buckets := make([]*list.List, w)
	for i := range buckets {
		buckets[i] = list.New()
	}
	return &TimingWheel{
		msPerTick:     msPerTick,
		ticksPerWheel: w,
		mask:          w - 1,
		shift:         uint(bits.TrailingZeros32(w)),
		buckets:       buckets,
	}
}

func nextPowerOfTwo(n uint32) uint32 {
	if n < 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// MsPerTick returns the configured tick period.
func (w *TimingWheel) MsPerTick() uint64 { return w.msPerTick }

// TicksPerWheel returns W, the (power-of-two) number of buckets.
func (w *TimingWheel) TicksPerWheel() uint32 { return w.ticksPerWheel }

// Schedule arranges for task to run no earlier than tick
// ceil(expireMs/msPerTick) from now, and no later than one further tick
// period after that. task runs on whichever goroutine calls Advance.
func (w *TimingWheel) Schedule(task func(), expireMs uint64) *Timeout {
	ticks := (expireMs + w.msPerTick - 1) / w.msPerTick
	if ticks == 0 {
		ticks = 1
	}
	rounds := uint32(ticks >> w.shift)

	t := &Timeout{task: task, wheel: w, remainingRounds: rounds}
	t.state.Store(stateInit)

	w.mu.Lock()
	tick := w.ticked.Load()
	idx := (uint32(ticks) + uint32(tick&uint64(w.mask))) & w.mask
	t.elem = w.buckets[idx].PushBack(t)
	w.mu.Unlock()
	return t
}

// Advance runs the wheel forward by exactly one tick: the current bucket
// is walked once, cancelled/expired entries are dropped, zero-round
// entries fire (insertion order, within this call), and everything else
// has its round counter decremented. Must be called only from the single
// goroutine driving this wheel (see TimerDriver).
func (w *TimingWheel) Advance() {
	w.mu.Lock()
	idx := w.ticked.Load() & uint64(w.mask)
	bucket := w.buckets[idx]

	var ready []func()
	var next *list.Element
	for e := bucket.Front(); e != nil; e = next {
		next = e.Next()
		t := e.Value.(*Timeout)
		switch t.state.Load() {
		case stateCancelled, stateExpired:
			bucket.Remove(e)
			t.elem = nil
			continue
		}
		if t.remainingRounds == 0 {
			bucket.Remove(e)
			t.elem = nil
			if t.state.CompareAndSwap(stateInit, stateExpired) {
				ready = append(ready, t.task)
			}
		} else {
			t.remainingRounds--
		}
	}
	w.ticked.Add(1)
	w.mu.Unlock()

	for _, task := range ready {
		task()
	}
}

// Ticked returns the total number of ticks advanced so far.
func (w *TimingWheel) Ticked() uint64 { return w.ticked.Load() }

package timingwheel

import (
	"sync"
	"time"
)

// Poster is the minimal capability a TimerDriver needs from the Reactor it
// is bound to: the ability to run a closure on that Reactor's own
// goroutine. Satisfied structurally by *wheelnet.Reactor without either
// package importing the other.
type Poster interface {
	Post(task func()) error
}

// TimerDriver binds a TimingWheel to a Reactor: every MsPerTick
// milliseconds it posts wheel.Advance to run on that Reactor's goroutine,
// so every timer task this wheel fires executes on the same thread that
// owns the wheel.
//
// The periodic tick itself runs on a dedicated goroutine (a time.Ticker);
// only Advance is posted onto the Reactor. Drift between the ticker firing
// and Advance actually running is bounded by Reactor load and is expected
// to stay within one tick under normal operation.
type TimerDriver struct {
	wheel    *TimingWheel
	poster   Poster
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDriver constructs a TimerDriver for wheel, posting onto poster at
// wheel.MsPerTick() resolution.
func NewDriver(wheel *TimingWheel, poster Poster) *TimerDriver {
	return &TimerDriver{
		wheel:    wheel,
		poster:   poster,
		interval: time.Duration(wheel.MsPerTick()) * time.Millisecond,
		stopCh:   make(chan struct{}),
	}
}

// Start begins ticking. Safe to call once.
func (d *TimerDriver) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopCh:
				return
			case <-ticker.C:
				_ = d.poster.Post(d.wheel.Advance)
			}
		}
	}()
}

// Stop halts the ticking goroutine and waits for it to exit. Any tick
// already posted to the Reactor still runs.
func (d *TimerDriver) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

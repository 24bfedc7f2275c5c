package wheelnet

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffloaderSubmitRunsTaskOffTheCallingGoroutine(t *testing.T) {
	o, err := NewOffloader(2)
	require.NoError(t, err)
	defer o.Release()

	release := make(chan struct{})
	done := make(chan struct{})
	var ranOnDifferentGoroutine bool

	// The task can only observe release being closed if Submit returned
	// while the task was still waiting, i.e. it was not run inline on the
	// calling goroutine.
	require.NoError(t, o.Submit(func() {
		select {
		case <-release:
			ranOnDifferentGoroutine = true
		case <-time.After(time.Second):
		}
		close(done)
	}))
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for offloaded task")
	}
	assert.True(t, ranOnDifferentGoroutine)
}

func TestOffloaderBoundsConcurrency(t *testing.T) {
	o, err := NewOffloader(2)
	require.NoError(t, err)
	defer o.Release()

	var mu sync.Mutex
	current, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		require.NoError(t, o.Submit(func() {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2, "pool of size 2 must never run more than 2 tasks concurrently")
}

func TestOffloaderRunningReportsInFlightCount(t *testing.T) {
	o, err := NewOffloader(4)
	require.NoError(t, err)
	defer o.Release()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, o.Submit(func() {
		close(started)
		<-release
	}))

	<-started
	assert.Equal(t, 1, o.Running())
	close(release)
}

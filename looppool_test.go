package wheelnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopPoolPickRoundRobins(t *testing.T) {
	pool, err := NewLoopPool(3)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Stop() })

	seen := make(map[*Reactor]int)
	for i := 0; i < 9; i++ {
		r, err := pool.Pick()
		require.NoError(t, err)
		seen[r]++
	}
	assert.Len(t, seen, 3, "round robin over 9 picks across 3 reactors must visit all of them")
	for r, count := range seen {
		assert.Equal(t, 3, count, "reactor %p should be picked evenly", r)
	}
}

func TestLoopPoolPickAfterStopReturnsErrPoolStopped(t *testing.T) {
	pool, err := NewLoopPool(2)
	require.NoError(t, err)

	pool.Start()
	require.NoError(t, pool.Stop())

	_, err = pool.Pick()
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestLoopPoolSizeMatchesConstructedCount(t *testing.T) {
	pool, err := NewLoopPool(5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Stop() })

	assert.Equal(t, 5, pool.Size())
}

func TestLoopPoolNewWithNonPositiveSizeClampsToOne(t *testing.T) {
	pool, err := NewLoopPool(0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Stop() })

	assert.Equal(t, 1, pool.Size())
}

package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteReadRoundTrip(t *testing.T) {
	b := Get(8)
	defer b.Release()

	n, err := b.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), b.Readable())

	b.MarkRead(5)
	assert.True(t, b.IsEmpty())
}

func TestEnsureGrowsWithoutLosingData(t *testing.T) {
	b := Get(4)
	defer b.Release()

	_, _ = b.Write([]byte("ab"))
	b.MarkRead(2) // drain, compact candidate
	_, _ = b.Write([]byte("cdefgh"))

	assert.Equal(t, "cdefgh", string(b.Readable()))
	assert.LessOrEqual(t, b.ReadableLen(), b.Cap())
}

func TestEnsureCompactsBeforeGrowing(t *testing.T) {
	b := Get(8)
	defer b.Release()

	_, _ = b.Write([]byte("1234"))
	b.MarkRead(2) // readPos=2, writePos=4, 4 bytes writable at the tail

	b.Ensure(6) // should compact (readPos->0) before allocating
	assert.Equal(t, 0, b.readPos)
	assert.Equal(t, "34", string(b.Readable()))
}

func TestInvariantReadLEWriteLECapacity(t *testing.T) {
	b := Get(4)
	defer b.Release()

	for i := 0; i < 5; i++ {
		_, _ = b.Write([]byte("xx"))
		assert.LessOrEqual(t, b.readPos, b.writePos)
		assert.LessOrEqual(t, b.writePos, b.Cap())
		b.MarkRead(1)
	}
}

func TestMarkReadToEmptyResetsCursors(t *testing.T) {
	b := Get(4)
	defer b.Release()

	_, _ = b.Write([]byte("ab"))
	b.MarkRead(2)
	assert.Equal(t, 0, b.readPos)
	assert.Equal(t, 0, b.writePos)
}

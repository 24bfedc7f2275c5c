package lengthfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wheelnet-io/wheelnet/buffer"
)

func TestWriteThenReadRoundTrips(t *testing.T) {
	c := New()
	buf := buffer.Get(buffer.DefaultCapacity)
	defer buf.Release()

	var written []byte
	err := c.WriteFrame(Frame("hello, wheelnet"), func(data []byte) error {
		written = append([]byte{}, data...)
		return nil
	}, nil)
	require.NoError(t, err)

	_, _ = buf.Write(written)

	frame, ok := c.ReadFrame(buf)
	require.True(t, ok)
	assert.Equal(t, Frame("hello, wheelnet"), frame)
	assert.True(t, buf.IsEmpty())
}

func TestReadFrameReportsIncompleteOnPartialHeader(t *testing.T) {
	c := New()
	buf := buffer.Get(buffer.DefaultCapacity)
	defer buf.Release()

	_, _ = buf.Write([]byte{0x00, 0x00}) // only 2 of 4 header bytes

	_, ok := c.ReadFrame(buf)
	assert.False(t, ok)
	assert.Equal(t, 2, buf.ReadableLen(), "ReadFrame must not consume an incomplete header")
}

func TestReadFrameReportsIncompleteOnPartialPayload(t *testing.T) {
	c := New()
	buf := buffer.Get(buffer.DefaultCapacity)
	defer buf.Release()

	var written []byte
	_ = c.WriteFrame(Frame("0123456789"), func(data []byte) error {
		written = append([]byte{}, data...)
		return nil
	}, nil)

	// Deliver everything except the final payload byte.
	_, _ = buf.Write(written[:len(written)-1])

	_, ok := c.ReadFrame(buf)
	assert.False(t, ok)
	assert.Equal(t, len(written)-1, buf.ReadableLen(), "ReadFrame must not consume a partially buffered frame")

	// Completing the frame must then succeed.
	_, _ = buf.Write(written[len(written)-1:])
	frame, ok := c.ReadFrame(buf)
	require.True(t, ok)
	assert.Equal(t, Frame("0123456789"), frame)
}

func TestPeekLenBeforeHeaderIsComplete(t *testing.T) {
	c := New()
	buf := buffer.Get(buffer.DefaultCapacity)
	defer buf.Release()

	_, _ = buf.Write([]byte{0x00, 0x00})
	assert.Equal(t, -1, c.PeekLen(buf))

	_, _ = buf.Write([]byte{0x00, 0x05, 'h', 'e', 'l', 'l', 'o'})
	assert.Equal(t, HeaderLen+5, c.PeekLen(buf))
}

func TestMultipleFramesBackToBackDecodeInOrder(t *testing.T) {
	c := New()
	buf := buffer.Get(buffer.DefaultCapacity)
	defer buf.Release()

	for _, s := range []string{"first", "second", "third"} {
		var written []byte
		_ = c.WriteFrame(Frame(s), func(data []byte) error {
			written = append([]byte{}, data...)
			return nil
		}, nil)
		_, _ = buf.Write(written)
	}

	var got []string
	for {
		frame, ok := c.ReadFrame(buf)
		if !ok {
			break
		}
		got = append(got, string(frame.(Frame)))
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

// Package lengthfield is wheelnet's one concrete FramingCodec: a 4-byte
// big-endian length prefix followed by that many bytes of payload. It
// exists purely so the core reactor/connection machinery is runnable
// end to end; real deployments are expected to bring their own codec.
package lengthfield

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/wheelnet-io/wheelnet"
	"github.com/wheelnet-io/wheelnet/buffer"
)

var errUnsupportedFrameType = errors.New("lengthfield: frame must be Frame or []byte")

// HeaderLen is the size of the length prefix.
const HeaderLen = 4

// MaxFrameLen bounds a single frame's payload, guarding against a bad or
// hostile length field forcing an unbounded buffer grow.
const MaxFrameLen = 16 * 1024 * 1024

// Frame is the concrete payload type this codec produces and consumes: the
// bytes after the length prefix, exactly as sent.
type Frame []byte

// Codec implements wheelnet.FramingCodec with a 4-byte big-endian
// length-prefixed wire format.
type Codec struct{}

// New constructs a Codec. Stateless; safe to share across every Connection.
func New() *Codec { return &Codec{} }

// PeekLen implements wheelnet.FramingCodec.
func (c *Codec) PeekLen(buf *buffer.ByteBuffer) int {
	if buf.ReadableLen() < HeaderLen {
		return -1
	}
	n := binary.BigEndian.Uint32(buf.Readable()[:HeaderLen])
	if int(n) > MaxFrameLen {
		// Never report a size the caller would grow its buffer to.
		return -1
	}
	return HeaderLen + int(n)
}

// ReadFrame implements wheelnet.FramingCodec.
func (c *Codec) ReadFrame(buf *buffer.ByteBuffer) (wheelnet.Frame, bool) {
	if buf.ReadableLen() < HeaderLen {
		return nil, false
	}
	header := buf.Readable()[:HeaderLen]
	n := binary.BigEndian.Uint32(header)
	total := HeaderLen + int(n)
	if int(n) > MaxFrameLen {
		// A length this large is never decoded: it is reported exactly like
		// an incomplete frame, and PeekLen reports it as an incomplete header.
		return nil, false
	}
	if buf.ReadableLen() < total {
		return nil, false
	}

	payload := make([]byte, n)
	copy(payload, buf.Readable()[HeaderLen:total])
	buf.MarkRead(total)
	return Frame(payload), true
}

// WriteFrame implements wheelnet.FramingCodec: frame must be a Frame or a
// plain []byte (any other type is rejected); the header and payload are
// handed to single as one contiguous segment.
func (c *Codec) WriteFrame(frame wheelnet.Frame, single func([]byte) error, multi func([][]byte) error) error {
	var payload []byte
	switch f := frame.(type) {
	case Frame:
		payload = f
	case []byte:
		payload = f
	default:
		return errUnsupportedFrameType
	}

	out := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint32(out[:HeaderLen], uint32(len(payload)))
	copy(out[HeaderLen:], payload)
	return single(out)
}

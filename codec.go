package wheelnet

import "github.com/wheelnet-io/wheelnet/buffer"

// Frame is opaque to this package; its shape is defined entirely by the
// FramingCodec an application supplies to a Connection.
type Frame interface{}

// IncompleteHeader is the sentinel PeekLen returns when buf does not yet
// contain enough bytes to determine the frame's total length.
const IncompleteHeader = -1

// FramingCodec is the external collaborator this core deliberately leaves
// unimplemented: it peeks/reads/writes framed messages against
// a buffer.ByteBuffer. wheelnet ships one concrete implementation,
// codec/lengthfield, purely so the core is runnable end to end; production
// wire formats are expected to supply their own.
type FramingCodec interface {
	// PeekLen returns the total number of bytes (header + payload)
	// needed to complete the frame currently at the front of buf's
	// readable region, or IncompleteHeader if the header itself is not
	// yet fully buffered.
	PeekLen(buf *buffer.ByteBuffer) int

	// ReadFrame consumes exactly one complete frame from buf's readable
	// region and returns it with ok=true, or returns ok=false (and
	// leaves buf untouched) if the readable region does not yet hold a
	// complete frame.
	ReadFrame(buf *buffer.ByteBuffer) (frame Frame, ok bool)

	// WriteFrame serializes frame and hands its bytes to single (one
	// contiguous segment) or multi (several segments emitted as one
	// logical frame), depending on how the codec chooses to lay the
	// frame out. Exactly one of single/multi is invoked, and may be
	// invoked more than once for a single frame only via multi.
	WriteFrame(frame Frame, single func(data []byte) error, multi func(datas [][]byte) error) error
}

// Package buffer implements the growable read/write byte region that the
// rest of wheelnet builds on: a Connection's inbound stream and its queued
// outbound frames are both *buffer.ByteBuffer values.
package buffer

import (
	"github.com/valyala/bytebufferpool"
)

// DefaultCapacity is the initial size a fresh ByteBuffer is given when no
// better estimate (PRED_MSG_LEN in the source terminology) is available.
const DefaultCapacity = 1024 // PRED_MSG_LEN

var pool bytebufferpool.Pool

// ByteBuffer is a contiguous byte region with independent read and write
// cursors: readPos <= writePos <= len(slab). The readable region is
// [readPos, writePos); the writable region is [writePos, len(slab)).
//
// The backing slab is borrowed from a bytebufferpool.Pool so repeated
// Get/Release cycles reuse memory instead of allocating fresh slices.
type ByteBuffer struct {
	slab     *bytebufferpool.ByteBuffer
	readPos  int
	writePos int
}

// Get borrows a ByteBuffer with writable capacity of at least capacity
// bytes from the shared pool.
func Get(capacity int) *ByteBuffer {
	slab := pool.Get()
	if cap(slab.B) < capacity {
		slab.B = make([]byte, capacity)
	} else {
		slab.B = slab.B[:capacity]
	}
	return &ByteBuffer{slab: slab}
}

// Release returns the ByteBuffer's backing slab to the pool. The ByteBuffer
// must not be used afterwards.
func (b *ByteBuffer) Release() {
	if b.slab == nil {
		return
	}
	pool.Put(b.slab)
	b.slab = nil
	b.readPos, b.writePos = 0, 0
}

// Cap reports the total capacity of the backing slab.
func (b *ByteBuffer) Cap() int { return len(b.slab.B) }

// ReadableLen reports the number of bytes available to read.
func (b *ByteBuffer) ReadableLen() int { return b.writePos - b.readPos }

// WritableLen reports the number of bytes available to write without
// growing the buffer.
func (b *ByteBuffer) WritableLen() int { return len(b.slab.B) - b.writePos }

// Readable returns the readable region. The slice aliases the buffer's
// backing array and is invalidated by the next call to Ensure, Enlarge, or
// Reset.
func (b *ByteBuffer) Readable() []byte { return b.slab.B[b.readPos:b.writePos] }

// Writable returns the writable region.
func (b *ByteBuffer) Writable() []byte { return b.slab.B[b.writePos:] }

// MarkRead advances the read cursor by n bytes. n must not exceed
// ReadableLen.
func (b *ByteBuffer) MarkRead(n int) {
	b.readPos += n
	if b.readPos > b.writePos {
		panic("buffer: MarkRead past write cursor")
	}
	if b.readPos == b.writePos {
		// Nothing left to read; reclaim the whole slab for writing.
		b.readPos, b.writePos = 0, 0
	}
}

// MarkWrite advances the write cursor by n bytes. n must not exceed
// WritableLen.
func (b *ByteBuffer) MarkWrite(n int) {
	b.writePos += n
	if b.writePos > len(b.slab.B) {
		panic("buffer: MarkWrite past capacity")
	}
}

// Write copies p into the writable region, growing the buffer with Ensure
// if needed, and advances the write cursor.
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.Ensure(len(p))
	n := copy(b.Writable(), p)
	b.MarkWrite(n)
	return n, nil
}

// compact shifts the readable region down to offset 0, freeing up
// contiguous writable space without allocating.
func (b *ByteBuffer) compact() {
	if b.readPos == 0 {
		return
	}
	n := copy(b.slab.B, b.Readable())
	b.readPos = 0
	b.writePos = n
}

// Ensure grows the buffer, compacting first, so that WritableLen() >= n.
func (b *ByteBuffer) Ensure(n int) {
	if b.WritableLen() >= n {
		return
	}
	b.compact()
	if b.WritableLen() >= n {
		return
	}
	b.Enlarge(n - b.WritableLen())
}

// Enlarge grows the buffer's total capacity by at least n bytes, preserving
// the readable and writable content at their current offsets.
func (b *ByteBuffer) Enlarge(n int) {
	grown := len(b.slab.B) + n
	next := make([]byte, grown)
	copy(next, b.slab.B[:b.writePos])
	b.slab.B = next
}

// Reset discards all buffered content, resetting both cursors to zero
// without releasing the slab back to the pool.
func (b *ByteBuffer) Reset() {
	b.readPos, b.writePos = 0, 0
}

// IsEmpty reports whether there is nothing left to read.
func (b *ByteBuffer) IsEmpty() bool { return b.readPos == b.writePos }

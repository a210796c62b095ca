// Package pool provides reusable byte buffers for record framing, backed
// by sync.Pool.
package pool

import "sync"

// DefaultBufferSize is the initial capacity of buffers handed out by the
// pool. Large enough for typical framed records, small enough to keep
// around.
const (
	DefaultBufferSize = 16 * 1024  // 16KiB
	maxPooledSize     = 128 * 1024 // 128KiB
)

// ByteBuffer is a growable byte slice with explicit length management.
// The zero value is not usable; obtain instances from NewByteBuffer or
// GetBuffer.
type ByteBuffer struct {
	// B is the underlying byte slice. Encoders append to it directly.
	B []byte
}

// NewByteBuffer creates a ByteBuffer with the given initial capacity.
func NewByteBuffer(capacity int) *ByteBuffer {
	return &ByteBuffer{B: make([]byte, 0, capacity)}
}

// Bytes returns the underlying byte slice.
func (bb *ByteBuffer) Bytes() []byte {
	return bb.B
}

// Len returns the current length of the buffer.
func (bb *ByteBuffer) Len() int {
	return len(bb.B)
}

// Reset empties the buffer while keeping the allocated memory for reuse.
func (bb *ByteBuffer) Reset() {
	bb.B = bb.B[:0]
}

// MustWrite appends data to the buffer, growing it if necessary.
func (bb *ByteBuffer) MustWrite(data []byte) {
	bb.B = append(bb.B, data...)
}

var bufferPool = sync.Pool{
	New: func() any {
		return NewByteBuffer(DefaultBufferSize)
	},
}

// GetBuffer returns an empty ByteBuffer from the pool.
func GetBuffer() *ByteBuffer {
	buf, _ := bufferPool.Get().(*ByteBuffer)
	buf.Reset()

	return buf
}

// PutBuffer returns a ByteBuffer to the pool. Oversized buffers are dropped
// so a single huge record does not pin memory forever.
func PutBuffer(buf *ByteBuffer) {
	if buf == nil || cap(buf.B) > maxPooledSize {
		return
	}
	bufferPool.Put(buf)
}

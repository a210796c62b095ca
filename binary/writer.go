// Package binary implements the fixed-width big-endian cursor codec shared
// by the document serializer, the record log and the index fragments.
//
// A Writer appends primitives to a growing buffer; a Reader walks a buffer
// with an explicit cursor and never advances past a failed read. Strings
// are encoded as a u64 big-endian length prefix followed by UTF-8 bytes.
package binary

import (
	"math"

	"github.com/rflechner/marmotte/endian"
)

// Writer appends big-endian primitives to an in-memory buffer.
type Writer struct {
	buf    []byte
	engine endian.EndianEngine
}

// NewWriter creates a Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf:    make([]byte, 0, capacity),
		engine: endian.GetBigEndianEngine(),
	}
}

// Bytes returns the encoded buffer. The slice is valid until the next write.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Reset empties the buffer while keeping its capacity.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
}

// WriteU8 appends a single byte.
func (w *Writer) WriteU8(v byte) {
	w.buf = append(w.buf, v)
}

// WriteU32 appends a big-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	w.buf = w.engine.AppendUint32(w.buf, v)
}

// WriteI32 appends a big-endian int32.
func (w *Writer) WriteI32(v int32) {
	w.buf = w.engine.AppendUint32(w.buf, uint32(v))
}

// WriteU64 appends a big-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	w.buf = w.engine.AppendUint64(w.buf, v)
}

// WriteI64 appends a big-endian int64.
func (w *Writer) WriteI64(v int64) {
	w.buf = w.engine.AppendUint64(w.buf, uint64(v))
}

// WriteF64 appends an IEEE-754 float64 as 8 big-endian bytes.
func (w *Writer) WriteF64(v float64) {
	w.buf = w.engine.AppendUint64(w.buf, math.Float64bits(v))
}

// WriteBool appends 0x01 for true, 0x00 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteBytes appends raw bytes without a length prefix.
func (w *Writer) WriteBytes(p []byte) {
	w.buf = append(w.buf, p...)
}

// WriteString appends a u64 big-endian length prefix followed by the UTF-8
// bytes of s.
func (w *Writer) WriteString(s string) {
	w.buf = w.engine.AppendUint64(w.buf, uint64(len(s)))
	w.buf = append(w.buf, s...)
}

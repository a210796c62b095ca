package binary

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/rflechner/marmotte/endian"
	"github.com/rflechner/marmotte/errs"
)

// Reader decodes big-endian primitives from a buffer, advancing a cursor by
// the exact width of each successful read. A failed read returns
// errs.ErrUnderRun (or errs.ErrCorrupted for invalid content) without
// advancing, so the caller can still inspect the remaining bytes.
type Reader struct {
	buf    []byte
	pos    int
	engine endian.EndianEngine
}

// NewReader creates a Reader over buf, positioned at the start.
func NewReader(buf []byte) *Reader {
	return &Reader{
		buf:    buf,
		engine: endian.GetBigEndianEngine(),
	}
}

// Pos returns the current cursor position.
func (r *Reader) Pos() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// End reports whether the cursor has reached the end of the buffer.
func (r *Reader) End() bool {
	return r.pos >= len(r.buf)
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if r.pos+n > len(r.buf) {
		return errs.ErrUnderRun
	}
	r.pos += n

	return nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (byte, error) {
	if r.pos+1 > len(r.buf) {
		return 0, errs.ErrUnderRun
	}
	v := r.buf[r.pos]
	r.pos++

	return v, nil
}

// ReadU32 reads a big-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errs.ErrUnderRun
	}
	v := r.engine.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4

	return v, nil
}

// ReadI32 reads a big-endian int32.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()

	return int32(v), err
}

// ReadU64 reads a big-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errs.ErrUnderRun
	}
	v := r.engine.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8

	return v, nil
}

// ReadI64 reads a big-endian int64.
func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()

	return int64(v), err
}

// ReadF64 reads an IEEE-754 float64 as exactly 8 big-endian bytes.
func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}

	return math.Float64frombits(v), nil
}

// ReadBool reads a single byte that must be 0x00 or 0x01. Any other value
// leaves the cursor in place and reports the data as corrupted.
func (r *Reader) ReadBool() (bool, error) {
	if r.pos+1 > len(r.buf) {
		return false, errs.ErrUnderRun
	}
	switch r.buf[r.pos] {
	case 0:
		r.pos++
		return false, nil
	case 1:
		r.pos++
		return true, nil
	default:
		return false, fmt.Errorf("%w: invalid bool byte %#02x at position %d", errs.ErrCorrupted, r.buf[r.pos], r.pos)
	}
}

// ReadBytes reads exactly n raw bytes. The returned slice aliases the
// underlying buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errs.ErrUnderRun
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n

	return v, nil
}

// ReadString reads a u64 big-endian length prefix followed by that many
// UTF-8 bytes. The cursor does not move unless the whole string fits.
func (r *Reader) ReadString() (string, error) {
	if r.pos+8 > len(r.buf) {
		return "", errs.ErrUnderRun
	}
	length := r.engine.Uint64(r.buf[r.pos : r.pos+8])
	if uint64(len(r.buf)-r.pos-8) < length {
		return "", errs.ErrUnderRun
	}
	start := r.pos + 8
	end := start + int(length)
	content := r.buf[start:end]
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: invalid UTF-8 string at position %d", errs.ErrCorrupted, r.pos)
	}
	r.pos = end

	return string(content), nil
}

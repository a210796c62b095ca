// Package index implements the fense index: a sorted secondary index
// partitioned across fixed-capacity on-disk fragments.
//
// A fragment file is a header followed by a fixed number of slots:
//
//	offset 0     max records count  u32 LE
//	offset 4     records count      u32 LE
//	offset 8     shift threshold    u32 LE
//	offset 12    min value          (codec width W)
//	offset 12+W  max value          (codec width W)
//	then slots:  active u8 | target u64 BE | value (width W)
//
// Values must encode to a fixed width for a given fragment, so slot
// offsets can be computed instead of scanned. Fragments are named
// NNNNNNNN.ix, numbered from 00000000.
package index

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/rflechner/marmotte/binary"
	"github.com/rflechner/marmotte/errs"
)

// ValueCodec encodes index values at a fixed binary width. Default is the
// sentinel representing "empty range" in fragment headers and cleared
// slots.
type ValueCodec[T cmp.Ordered] interface {
	// Encode renders v at exactly BinarySize bytes.
	Encode(v T) ([]byte, error)
	// Decode reads one value, advancing the reader by exactly BinarySize.
	Decode(r *binary.Reader) (T, error)
	// Default returns the sentinel value for empty ranges and cleared slots.
	Default() T
	// BinarySize returns the fixed encoded width in bytes.
	BinarySize() int
}

// PadOrTruncate returns s truncated to length runes, padded with pad when
// shorter. Fixed-width string values are normalized with it before they
// are compared or stored.
func PadOrTruncate(s string, pad rune, length int) string {
	runes := []rune(s)
	if len(runes) >= length {
		return string(runes[:length])
	}

	var b strings.Builder
	b.Grow(length)
	b.WriteString(string(runes))
	for i := len(runes); i < length; i++ {
		b.WriteRune(pad)
	}

	return b.String()
}

// StringCodec encodes strings at a fixed width, padded with spaces. The
// on-disk form is a u64 big-endian length prefix always equal to Width,
// followed by Width bytes.
type StringCodec struct {
	// Width is the fixed value width in bytes.
	Width int
}

// Normalize pads or truncates v to the codec width. Values must be
// normalized before being compared against stored ones.
func (c StringCodec) Normalize(v string) string {
	return PadOrTruncate(v, ' ', c.Width)
}

// Encode implements ValueCodec.
func (c StringCodec) Encode(v string) ([]byte, error) {
	v = c.Normalize(v)
	if len(v) != c.Width {
		return nil, fmt.Errorf("%w: value does not fit fixed width %d after padding", errs.ErrCorrupted, c.Width)
	}

	w := binary.NewWriter(8 + c.Width)
	w.WriteString(v)

	return w.Bytes(), nil
}

// Decode implements ValueCodec. A zero length prefix denotes an untouched
// (zero-filled) region and yields the empty string; any other length must
// equal the codec width.
func (c StringCodec) Decode(r *binary.Reader) (string, error) {
	length, err := r.ReadU64()
	if err != nil {
		return "", err
	}

	if length == 0 {
		if err := r.Skip(c.Width); err != nil {
			return "", err
		}

		return "", nil
	}

	if length != uint64(c.Width) {
		return "", fmt.Errorf("%w: stored value length %d does not match fixed width %d", errs.ErrCorrupted, length, c.Width)
	}

	content, err := r.ReadBytes(c.Width)
	if err != nil {
		return "", err
	}

	return string(content), nil
}

// Default implements ValueCodec: a string of Width spaces, the same bytes
// an empty value encodes to.
func (c StringCodec) Default() string {
	return strings.Repeat(" ", c.Width)
}

// BinarySize implements ValueCodec.
func (c StringCodec) BinarySize() int {
	return 8 + c.Width
}

// Uint32Codec encodes uint32 values as 4 big-endian bytes.
type Uint32Codec struct{}

// Encode implements ValueCodec.
func (Uint32Codec) Encode(v uint32) ([]byte, error) {
	w := binary.NewWriter(4)
	w.WriteU32(v)

	return w.Bytes(), nil
}

// Decode implements ValueCodec.
func (Uint32Codec) Decode(r *binary.Reader) (uint32, error) {
	return r.ReadU32()
}

// Default implements ValueCodec.
func (Uint32Codec) Default() uint32 {
	return 0
}

// BinarySize implements ValueCodec.
func (Uint32Codec) BinarySize() int {
	return 4
}

// Uint64Codec encodes uint64 values as 8 big-endian bytes. It is the codec
// of hash-valued indexes, where the value is a 64-bit fingerprint of the
// indexed text.
type Uint64Codec struct{}

// Encode implements ValueCodec.
func (Uint64Codec) Encode(v uint64) ([]byte, error) {
	w := binary.NewWriter(8)
	w.WriteU64(v)

	return w.Bytes(), nil
}

// Decode implements ValueCodec.
func (Uint64Codec) Decode(r *binary.Reader) (uint64, error) {
	return r.ReadU64()
}

// Default implements ValueCodec.
func (Uint64Codec) Default() uint64 {
	return 0
}

// BinarySize implements ValueCodec.
func (Uint64Codec) BinarySize() int {
	return 8
}

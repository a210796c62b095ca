package index

import (
	"cmp"
	"fmt"

	"github.com/rflechner/marmotte/binary"
	"github.com/rflechner/marmotte/endian"
)

// slotPrefixSize is the fixed part of a slot: active flag plus target.
const slotPrefixSize = 1 + 8

// fragmentExt is the fragment file extension, including the dot.
const fragmentExt = ".ix"

// FenseIndex is one index entry: an ordered value pointing at an opaque
// 64-bit target, typically a record log byte offset.
type FenseIndex[T cmp.Ordered] struct {
	// Active is false for empty or cleared slots.
	Active bool
	// Target is the foreign reference the value points at.
	Target uint64
	// Value is the indexed key.
	Value T
}

// NewFenseIndex creates an active entry for target and value.
func NewFenseIndex[T cmp.Ordered](target uint64, value T) FenseIndex[T] {
	return FenseIndex[T]{
		Active: true,
		Target: target,
		Value:  value,
	}
}

// FragmentHeader describes one fragment's capacity and the inclusive
// value range of its active slots. Min and max equal the codec's default
// value while the fragment is empty.
type FragmentHeader[T cmp.Ordered] struct {
	MaxRecordsCount uint32
	RecordsCount    uint32
	ShiftThreshold  uint32
	MinValue        T
	MaxValue        T
}

// headerBinarySize returns the encoded header size for a value width.
func headerBinarySize(valueSize int) int {
	return 4 + 4 + 4 + valueSize + valueSize
}

// bytes encodes the header: three u32 little-endian counters followed by
// the two encoded range values.
func (h FragmentHeader[T]) bytes(codec ValueCodec[T]) ([]byte, error) {
	engine := endian.GetLittleEndianEngine()

	buf := make([]byte, 0, headerBinarySize(codec.BinarySize()))
	buf = engine.AppendUint32(buf, h.MaxRecordsCount)
	buf = engine.AppendUint32(buf, h.RecordsCount)
	buf = engine.AppendUint32(buf, h.ShiftThreshold)

	minBytes, err := codec.Encode(h.MinValue)
	if err != nil {
		return nil, fmt.Errorf("encoding header min value: %w", err)
	}
	buf = append(buf, minBytes...)

	maxBytes, err := codec.Encode(h.MaxValue)
	if err != nil {
		return nil, fmt.Errorf("encoding header max value: %w", err)
	}
	buf = append(buf, maxBytes...)

	return buf, nil
}

// parseFragmentHeader decodes a header from the first headerBinarySize
// bytes of a fragment file.
func parseFragmentHeader[T cmp.Ordered](data []byte, codec ValueCodec[T]) (FragmentHeader[T], error) {
	engine := endian.GetLittleEndianEngine()

	header := FragmentHeader[T]{
		MaxRecordsCount: engine.Uint32(data[0:4]),
		RecordsCount:    engine.Uint32(data[4:8]),
		ShiftThreshold:  engine.Uint32(data[8:12]),
	}

	r := binary.NewReader(data[12:])
	minValue, err := codec.Decode(r)
	if err != nil {
		return FragmentHeader[T]{}, fmt.Errorf("decoding header min value: %w", err)
	}
	maxValue, err := codec.Decode(r)
	if err != nil {
		return FragmentHeader[T]{}, fmt.Errorf("decoding header max value: %w", err)
	}
	header.MinValue = minValue
	header.MaxValue = maxValue

	return header, nil
}

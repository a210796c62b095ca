// Package endian provides byte order utilities for the marmotte on-disk
// formats.
//
// It combines the ByteOrder and AppendByteOrder interfaces from
// encoding/binary into a single EndianEngine interface so encoders can use
// the faster append-style operations without juggling two values.
//
// The record log, slot prefixes and index value encodings are big-endian;
// only the fragment header counters are little-endian.
package endian

import "encoding/binary"

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary
// into a single interface for convenient byte order operations.
//
// It is satisfied by binary.BigEndian and binary.LittleEndian, so it stays
// fully compatible with code written against the standard library.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetBigEndianEngine returns the big-endian engine used by the record log
// and the binary cursor codec.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// GetLittleEndianEngine returns the little-endian engine used by the index
// fragment header counters.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

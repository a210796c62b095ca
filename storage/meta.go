// Package storage implements the paged append-only record log.
//
// A log file starts with a fixed 32-byte metadata header followed by
// records:
//
//	offset 0   version        u64 BE
//	offset 8   records count  u64 BE
//	offset 16  position       u64 BE (next free byte offset)
//	offset 24  page size      u64 BE
//	offset 32… records
//
// Each record is framed as content size (u64 BE), CRC32 of the content
// (u32 BE), the content bytes, and a deleted flag byte. The file always
// grows by whole pages, so its length is a multiple of the page size and
// the region past position is zero-filled tail space.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rflechner/marmotte/binary"
	"github.com/rflechner/marmotte/errs"
)

// MetaSize is the fixed size of the log file header in bytes.
const MetaSize = 32

// Version is the only log format version this implementation reads and
// writes.
const Version = 1

// Meta is the log file header. Position always points just past the last
// written record; it starts at MetaSize for an empty log.
type Meta struct {
	Version      uint64
	RecordsCount uint64
	Position     uint64
	PageSize     uint64
}

func emptyMeta(pageSize uint64) Meta {
	return Meta{
		Version:  Version,
		Position: MetaSize,
		PageSize: pageSize,
	}
}

func (m Meta) bytes() []byte {
	w := binary.NewWriter(MetaSize)
	w.WriteU64(m.Version)
	w.WriteU64(m.RecordsCount)
	w.WriteU64(m.Position)
	w.WriteU64(m.PageSize)

	return w.Bytes()
}

func readMeta(f *os.File) (Meta, error) {
	buf := make([]byte, MetaSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Meta{}, fmt.Errorf("%w: log header", errs.ErrTruncated)
		}

		return Meta{}, fmt.Errorf("reading log header: %w", err)
	}

	r := binary.NewReader(buf)
	version, _ := r.ReadU64()
	recordsCount, _ := r.ReadU64()
	position, _ := r.ReadU64()
	pageSize, _ := r.ReadU64()

	return Meta{
		Version:      version,
		RecordsCount: recordsCount,
		Position:     position,
		PageSize:     pageSize,
	}, nil
}

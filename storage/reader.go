package storage

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"iter"
	"os"

	"go.uber.org/zap"

	"github.com/rflechner/marmotte/endian"
	"github.com/rflechner/marmotte/errs"
	"github.com/rflechner/marmotte/internal/options"
)

// DefaultMaxRecordSize is the ceiling on a single record's declared
// content size. A larger declared length is treated as log corruption
// rather than an allocation request.
const DefaultMaxRecordSize = 80 * 1024 * 1024

// Reader provides read-only access to a record log. The header is read
// once at open time, so a Reader sees a consistent snapshot of the log
// even while a Writer keeps appending to the same file.
type Reader struct {
	path          string
	file          *os.File
	meta          Meta
	maxRecordSize uint64
	logger        *zap.Logger

	err error
}

// ReaderOption configures a Reader during OpenReader.
type ReaderOption = options.Option[*Reader]

// WithMaxRecordSize overrides DefaultMaxRecordSize.
func WithMaxRecordSize(limit uint64) ReaderOption {
	return options.New(func(r *Reader) error {
		if limit == 0 {
			return fmt.Errorf("max record size must be positive")
		}
		r.maxRecordSize = limit

		return nil
	})
}

// WithReaderLogger sets the logger used for scan diagnostics.
func WithReaderLogger(logger *zap.Logger) ReaderOption {
	return options.NoError(func(r *Reader) {
		r.logger = logger
	})
}

// OpenReader opens a record log read-only and snapshots its header.
func OpenReader(path string, opts ...ReaderOption) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}

	r := &Reader{
		path:          path,
		file:          file,
		maxRecordSize: DefaultMaxRecordSize,
		logger:        zap.NewNop(),
	}
	if err := options.Apply(r, opts...); err != nil {
		_ = file.Close()
		return nil, err
	}

	meta, err := readMeta(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if meta.Version != Version {
		_ = file.Close()
		return nil, fmt.Errorf("%w: found %d, supported %d", errs.ErrVersionMismatch, meta.Version, Version)
	}
	r.meta = meta

	return r, nil
}

// Meta returns the header snapshot taken at open time.
func (r *Reader) Meta() Meta {
	return r.meta
}

// Close releases the file handle.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil

	return err
}

// All returns a lazy sequence of the records between the header and the
// snapshotted position, in write order.
//
// The sequence ends early on the first unreadable record: a checksum
// mismatch, an oversized declared length or a truncated frame. The
// terminal condition is available from Err after iteration; a clean end
// of log leaves Err nil. This keeps tail scans usable on a log whose tail
// was damaged mid-write.
func (r *Reader) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		r.err = nil

		position := uint64(MetaSize)
		for position < r.meta.Position {
			record, err := r.readRecordAt(position)
			if err != nil {
				r.logger.Debug("record scan stopped",
					zap.String("file", r.path),
					zap.Uint64("position", position),
					zap.Error(err),
				)
				r.err = err

				return
			}
			position += record.Size()

			if !yield(record) {
				return
			}
		}
	}
}

// Err returns the error that terminated the last All iteration, or nil if
// the iteration reached the end of the log (or was stopped by the caller).
func (r *Reader) Err() error {
	return r.err
}

// Find scans from the start of the log and returns the first record, with
// its 1-based ordinal, for which pred holds. Any read error ends the scan
// as if the log had ended.
func (r *Reader) Find(pred func(record Record, ordinal uint64) bool) (Record, uint64, bool) {
	var (
		found   Record
		ordinal uint64
		ok      bool
	)
	current := uint64(0)
	for record := range r.All() {
		current++
		if pred(record, current) {
			found, ordinal, ok = record, current, true

			break
		}
	}

	return found, ordinal, ok
}

// ReadAt reads and validates the single record whose frame starts at the
// given byte offset, typically obtained from a secondary index.
func (r *Reader) ReadAt(position uint64) (Record, error) {
	if position < MetaSize || position >= r.meta.Position {
		return Record{}, fmt.Errorf("%w: record offset %d outside log bounds", errs.ErrCorrupted, position)
	}

	return r.readRecordAt(position)
}

func (r *Reader) readRecordAt(position uint64) (Record, error) {
	engine := endian.GetBigEndianEngine()

	var header [12]byte
	if _, err := r.file.ReadAt(header[:], int64(position)); err != nil {
		return Record{}, frameReadError(position, err)
	}

	contentSize := engine.Uint64(header[0:8])
	checksum := engine.Uint32(header[8:12])

	if contentSize > r.maxRecordSize {
		return Record{}, errs.OversizedRecord(contentSize, r.maxRecordSize)
	}

	body := make([]byte, contentSize+1)
	if _, err := r.file.ReadAt(body, int64(position)+12); err != nil {
		return Record{}, frameReadError(position, err)
	}

	content := body[:contentSize]
	deleted := body[contentSize] != 0

	if actual := crc32.ChecksumIEEE(content); actual != checksum {
		return Record{}, fmt.Errorf("%w: checksum mismatch at offset %d: stored %#08x, computed %#08x",
			errs.ErrCorrupted, position, checksum, actual)
	}

	return Record{
		Position: position,
		Content:  content,
		Checksum: checksum,
		Deleted:  deleted,
	}, nil
}

func frameReadError(position uint64, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: record frame at offset %d", errs.ErrTruncated, position)
	}

	return fmt.Errorf("reading record at %d: %w", position, err)
}

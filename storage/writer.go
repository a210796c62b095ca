package storage

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/rflechner/marmotte/errs"
	"github.com/rflechner/marmotte/internal/options"
	"github.com/rflechner/marmotte/internal/pool"
)

// Writer is the single writer of a record log file. It owns the file
// handle and the header state; there is no locking discipline and no safe
// concurrent access.
type Writer struct {
	path     string
	pageSize uint64
	file     *os.File
	meta     Meta
	logger   *zap.Logger
}

// WriterOption configures a Writer during OpenWriter.
type WriterOption = options.Option[*Writer]

// WithWriterLogger sets the logger used for page allocation events.
func WithWriterLogger(logger *zap.Logger) WriterOption {
	return options.NoError(func(w *Writer) {
		w.logger = logger
	})
}

// OpenWriter opens or creates a record log at path.
//
// A new file is preallocated to one page and its header is written and
// fsynced before any record. An existing file must carry a supported
// version and the same page size it was created with.
func OpenWriter(path string, pageSize uint64, opts ...WriterOption) (*Writer, error) {
	if pageSize < MetaSize {
		return nil, fmt.Errorf("page size %d is smaller than the log header", pageSize)
	}

	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}

	w := &Writer{
		path:     path,
		pageSize: pageSize,
		file:     file,
		meta:     emptyMeta(pageSize),
		logger:   zap.NewNop(),
	}
	if err := options.Apply(w, opts...); err != nil {
		_ = file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat log %s: %w", path, err)
	}
	if uint64(info.Size()) < pageSize {
		if err := file.Truncate(int64(pageSize)); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("preallocating first page: %w", err)
		}
	}

	if isNew {
		if err := w.writeMeta(); err != nil {
			_ = file.Close()
			return nil, err
		}
	} else {
		meta, err := readMeta(file)
		if err != nil {
			_ = file.Close()
			return nil, err
		}
		if meta.Version != Version {
			_ = file.Close()
			return nil, fmt.Errorf("%w: found %d, supported %d", errs.ErrVersionMismatch, meta.Version, Version)
		}
		if meta.PageSize != pageSize {
			_ = file.Close()
			return nil, fmt.Errorf("%w: file has %d, requested %d", errs.ErrPageSizeMismatch, meta.PageSize, pageSize)
		}
		w.meta = meta
	}

	return w, nil
}

// Meta returns a copy of the current header state.
func (w *Writer) Meta() Meta {
	return w.meta
}

// Append writes one record and returns the byte offset it was written at.
// The record data is fsynced before the header is rewritten and fsynced,
// so an acknowledged append is durable.
func (w *Writer) Append(content []byte) (uint64, error) {
	record := newRecord(w.meta.Position, content)
	if err := w.writeRecord(record); err != nil {
		return 0, err
	}

	return record.Position, nil
}

// BulkAppend writes a batch of records with a single seek, one
// concatenated write and one data fsync, followed by the usual header
// rewrite. The resulting file is byte-identical to the same sequence of
// Append calls.
func (w *Writer) BulkAppend(buffers [][]byte) error {
	if len(buffers) == 0 {
		return nil
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	position := w.meta.Position
	for _, content := range buffers {
		record := newRecord(position, content)
		record.appendFrame(buf)
		position += record.Size()
	}

	if err := w.allocateTo(position); err != nil {
		return err
	}
	if _, err := w.file.WriteAt(buf.Bytes(), int64(w.meta.Position)); err != nil {
		return fmt.Errorf("writing record batch: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing record batch: %w", err)
	}

	w.meta.Position = position
	w.meta.RecordsCount += uint64(len(buffers))

	return w.writeMeta()
}

// RewindToStart positions the file cursor just after the header.
func (w *Writer) RewindToStart() error {
	if _, err := w.file.Seek(MetaSize, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding log: %w", err)
	}

	return nil
}

// Sync flushes pending writes to stable storage.
func (w *Writer) Sync() error {
	return w.file.Sync()
}

// Close releases the file handle. The header is already durable; Close
// performs no extra flush.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil

	return err
}

func (w *Writer) writeRecord(record Record) error {
	if err := w.allocateTo(record.Position + record.Size()); err != nil {
		return err
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	record.appendFrame(buf)

	if _, err := w.file.WriteAt(buf.Bytes(), int64(record.Position)); err != nil {
		return fmt.Errorf("writing record at %d: %w", record.Position, err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing record at %d: %w", record.Position, err)
	}

	w.meta.Position += record.Size()
	w.meta.RecordsCount++

	return w.writeMeta()
}

// writeMeta overwrites the header at offset 0 and fsyncs it.
func (w *Writer) writeMeta() error {
	if _, err := w.file.WriteAt(w.meta.bytes(), 0); err != nil {
		return fmt.Errorf("writing log header: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing log header: %w", err)
	}

	return nil
}

// allocateTo grows the file to the smallest multiple of the page size that
// covers the projected end offset. The file length never shrinks and stays
// a whole number of pages.
func (w *Writer) allocateTo(projectedEnd uint64) error {
	info, err := w.file.Stat()
	if err != nil {
		return fmt.Errorf("stat log: %w", err)
	}
	length := uint64(info.Size())
	if projectedEnd <= length {
		return nil
	}

	pages := (projectedEnd + w.pageSize - 1) / w.pageSize
	newLength := pages * w.pageSize

	w.logger.Debug("allocating pages",
		zap.String("file", w.path),
		zap.Uint64("from", length),
		zap.Uint64("to", newLength),
	)

	if err := w.file.Truncate(int64(newLength)); err != nil {
		return fmt.Errorf("allocating to %d bytes: %w", newLength, err)
	}

	return nil
}

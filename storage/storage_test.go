package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rflechner/marmotte/errs"
)

func logPath(t *testing.T) string {
	t.Helper()

	return filepath.Join(t.TempDir(), "records.data")
}

func TestOpenWriterNewFile(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)
	defer w.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(2048), info.Size(), "first page is preallocated")

	meta := w.Meta()
	require.Equal(t, uint64(Version), meta.Version)
	require.Equal(t, uint64(0), meta.RecordsCount)
	require.Equal(t, uint64(MetaSize), meta.Position)
	require.Equal(t, uint64(2048), meta.PageSize)
}

func TestSingleRecordRoundTrip(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)

	offset, err := w.Append([]byte("lorem ipsum"))
	require.NoError(t, err)
	require.Equal(t, uint64(MetaSize), offset)

	meta := w.Meta()
	require.Equal(t, uint64(1), meta.RecordsCount)
	require.Equal(t, uint64(32+13+11), meta.Position)
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(2048), info.Size())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var records []Record
	for record := range r.All() {
		records = append(records, record)
	}

	require.NoError(t, r.Err())
	require.Len(t, records, 1)
	require.Equal(t, "lorem ipsum", string(records[0].Content))
	require.False(t, records[0].Deleted)
}

func TestAppendIterateOrderAndHeader(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)

	var expectedPosition uint64 = MetaSize
	for i := 1; i <= 50; i++ {
		content := fmt.Appendf(nil, "Record number %d!", i)
		offset, err := w.Append(content)
		require.NoError(t, err)
		require.Equal(t, expectedPosition, offset)
		expectedPosition += RecordOverhead + uint64(len(content))
	}

	meta := w.Meta()
	require.Equal(t, uint64(50), meta.RecordsCount)
	require.Equal(t, expectedPosition, meta.Position)
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	i := 0
	for record := range r.All() {
		i++
		require.Equal(t, fmt.Sprintf("Record number %d!", i), string(record.Content))
	}
	require.NoError(t, r.Err())
	require.Equal(t, 50, i)
}

func TestBulkAppendEqualsLoopAppend(t *testing.T) {
	dir := t.TempDir()
	bulkPath := filepath.Join(dir, "bulk.data")
	loopPath := filepath.Join(dir, "loop.data")

	var buffers [][]byte
	for i := 1; i <= 100; i++ {
		buffers = append(buffers, fmt.Appendf(nil, "Record number %d!", i))
	}

	bulk, err := OpenWriter(bulkPath, 2048)
	require.NoError(t, err)
	require.NoError(t, bulk.BulkAppend(buffers))
	bulkMeta := bulk.Meta()
	require.NoError(t, bulk.Close())

	loop, err := OpenWriter(loopPath, 2048)
	require.NoError(t, err)
	for _, content := range buffers {
		_, err := loop.Append(content)
		require.NoError(t, err)
	}
	loopMeta := loop.Meta()
	require.NoError(t, loop.Close())

	require.Equal(t, loopMeta, bulkMeta)
	require.Equal(t, uint64(100), bulkMeta.RecordsCount)

	bulkBytes, err := os.ReadFile(bulkPath)
	require.NoError(t, err)
	loopBytes, err := os.ReadFile(loopPath)
	require.NoError(t, err)

	require.Equal(t, loopBytes[:loopMeta.Position], bulkBytes[:bulkMeta.Position])
}

func TestPagedAllocationInvariant(t *testing.T) {
	path := logPath(t)
	const pageSize = 256

	w, err := OpenWriter(path, pageSize)
	require.NoError(t, err)
	defer w.Close()

	check := func() {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Zero(t, info.Size()%pageSize, "file length must stay a page multiple")
		require.LessOrEqual(t, w.Meta().Position, uint64(info.Size()))
	}

	check()

	// Small appends crossing page boundaries one at a time.
	for i := 0; i < 30; i++ {
		_, err := w.Append([]byte("0123456789abcdef"))
		require.NoError(t, err)
		check()
	}

	// A single record larger than one page.
	_, err = w.Append(make([]byte, 3*pageSize))
	require.NoError(t, err)
	check()

	// A bulk batch larger than several pages.
	require.NoError(t, w.BulkAppend([][]byte{
		make([]byte, pageSize),
		make([]byte, pageSize),
		[]byte("tail"),
	}))
	check()
}

func TestReopenExistingLog(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)
	_, err = w.Append([]byte("first"))
	require.NoError(t, err)
	firstMeta := w.Meta()
	require.NoError(t, w.Close())

	w, err = OpenWriter(path, 2048)
	require.NoError(t, err)
	require.Equal(t, firstMeta, w.Meta())

	_, err = w.Append([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var contents []string
	for record := range r.All() {
		contents = append(contents, string(record.Content))
	}
	require.NoError(t, r.Err())
	require.Equal(t, []string{"first", "second"}, contents)
}

func TestOpenWriterPageSizeMismatch(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = OpenWriter(path, 4096)
	require.ErrorIs(t, err, errs.ErrPageSizeMismatch)
}

func TestOpenWriterVersionMismatch(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Clobber the version field.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0, 0, 0, 0, 0, 0, 0, 9}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = OpenWriter(path, 2048)
	require.ErrorIs(t, err, errs.ErrVersionMismatch)

	_, err = OpenReader(path)
	require.ErrorIs(t, err, errs.ErrVersionMismatch)
}

func TestChecksumDetectsBitFlip(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)
	_, err = w.Append([]byte("intact record"))
	require.NoError(t, err)
	corruptOffset, err := w.Append([]byte("damaged record"))
	require.NoError(t, err)
	_, err = w.Append([]byte("unreachable record"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Flip one bit inside the second record's content.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	contentStart := int64(corruptOffset) + 12
	var b [1]byte
	_, err = f.ReadAt(b[:], contentStart+3)
	require.NoError(t, err)
	b[0] ^= 0x10
	_, err = f.WriteAt(b[:], contentStart+3)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var contents []string
	for record := range r.All() {
		contents = append(contents, string(record.Content))
	}

	require.Equal(t, []string{"intact record"}, contents, "iteration stops at the damaged record")
	require.ErrorIs(t, r.Err(), errs.ErrCorrupted)
}

func TestOversizedRecordStopsIteration(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)
	_, err = w.Append([]byte("small"))
	require.NoError(t, err)
	_, err = w.Append(make([]byte, 512))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(path, WithMaxRecordSize(64))
	require.NoError(t, err)
	defer r.Close()

	var count int
	for range r.All() {
		count++
	}

	require.Equal(t, 1, count)
	require.ErrorIs(t, r.Err(), errs.ErrOversizedRecord)
}

func TestFind(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)
	for i := 1; i <= 10; i++ {
		_, err := w.Append(fmt.Appendf(nil, "Record number %d!", i))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	t.Run("found by content", func(t *testing.T) {
		record, ordinal, ok := r.Find(func(record Record, _ uint64) bool {
			return string(record.Content) == "Record number 7!"
		})

		require.True(t, ok)
		require.Equal(t, uint64(7), ordinal)
		require.Equal(t, "Record number 7!", string(record.Content))
	})

	t.Run("found by ordinal", func(t *testing.T) {
		record, ordinal, ok := r.Find(func(_ Record, ordinal uint64) bool {
			return ordinal == 3
		})

		require.True(t, ok)
		require.Equal(t, uint64(3), ordinal)
		require.Equal(t, "Record number 3!", string(record.Content))
	})

	t.Run("exhausted", func(t *testing.T) {
		_, _, ok := r.Find(func(Record, uint64) bool { return false })

		require.False(t, ok)
	})
}

func TestReadAt(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)
	_, err = w.Append([]byte("first"))
	require.NoError(t, err)
	offset, err := w.Append([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	record, err := r.ReadAt(offset)
	require.NoError(t, err)
	require.Equal(t, "second", string(record.Content))
	require.Equal(t, offset, record.Position)

	_, err = r.ReadAt(r.Meta().Position)
	require.ErrorIs(t, err, errs.ErrCorrupted)
}

func TestReaderSnapshotIgnoresLaterAppends(t *testing.T) {
	path := logPath(t)

	w, err := OpenWriter(path, 2048)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Append([]byte("before snapshot"))
	require.NoError(t, err)

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = w.Append([]byte("after snapshot"))
	require.NoError(t, err)

	var count int
	for range r.All() {
		count++
	}
	require.NoError(t, r.Err())
	require.Equal(t, 1, count)
}

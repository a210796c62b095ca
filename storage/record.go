package storage

import (
	"hash/crc32"

	"github.com/rflechner/marmotte/endian"
	"github.com/rflechner/marmotte/internal/pool"
)

// RecordOverhead is the number of framing bytes around record content:
// an 8-byte length prefix, a 4-byte checksum and a 1-byte deleted flag.
const RecordOverhead = 13

// Record is one unit of log content.
type Record struct {
	// Position is the byte offset of the record's frame within the file.
	Position uint64
	// Content is the record payload.
	Content []byte
	// Checksum is the CRC32 (IEEE) of Content.
	Checksum uint32
	// Deleted marks the record as logically removed.
	Deleted bool
}

func newRecord(position uint64, content []byte) Record {
	return Record{
		Position: position,
		Content:  content,
		Checksum: crc32.ChecksumIEEE(content),
	}
}

// Size returns the on-disk size of the framed record.
func (r Record) Size() uint64 {
	return RecordOverhead + uint64(len(r.Content))
}

// appendFrame appends the record's on-disk representation to buf.
func (r Record) appendFrame(buf *pool.ByteBuffer) {
	engine := endian.GetBigEndianEngine()

	buf.B = engine.AppendUint64(buf.B, uint64(len(r.Content)))
	buf.B = engine.AppendUint32(buf.B, r.Checksum)
	buf.B = append(buf.B, r.Content...)

	var deleted byte
	if r.Deleted {
		deleted = 1
	}
	buf.B = append(buf.B, deleted)
}

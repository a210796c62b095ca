package index

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rflechner/marmotte/binary"
	"github.com/rflechner/marmotte/errs"
)

// Config tunes a fense index. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// MaxIncompleteFragments bounds future compaction. Reserved: nothing
	// consumes it yet.
	MaxIncompleteFragments uint32
	// ShiftThreshold is the number of slots worth displacing before a
	// split is preferred over an in-place shift. It is persisted in every
	// fragment header. Reserved: the shift-vs-split decision is not
	// implemented yet.
	ShiftThreshold uint32
	// MaxRecordsPerFragment is the hard slot capacity of each fragment.
	MaxRecordsPerFragment uint32
}

// DefaultConfig returns the default index tuning.
func DefaultConfig() Config {
	return Config{
		MaxIncompleteFragments: 10,
		ShiftThreshold:         10_000,
		MaxRecordsPerFragment:  100_000,
	}
}

// AssignmentKind classifies where a new entry must be stored.
type AssignmentKind uint8

const (
	// AssignSpecific stores into an existing fragment.
	AssignSpecific AssignmentKind = iota
	// AssignNextAvailable requires creating the next fragment.
	AssignNextAvailable
	// AssignSplit requires splitting a full fragment whose range strictly
	// contains the value.
	AssignSplit
)

// Assignment is the result of the fragment selection walk.
type Assignment struct {
	Kind AssignmentKind
	// Num is the fragment number for AssignSpecific and AssignSplit.
	Num int
}

// Files is a directory of fense index fragments sharing one value codec.
// Like the record log writer it is a single-owner structure: no locking,
// no safe concurrent access.
type Files[T cmp.Ordered] struct {
	dir           string
	cfg           Config
	codec         ValueCodec[T]
	defaultValue  T
	handles       []*os.File
	fragmentCount int
	logger        *zap.Logger
}

// New creates or opens a fense index in dir. Existing fragment files are
// counted but not opened; call OpenAll to attach them.
func New[T cmp.Ordered](dir string, codec ValueCodec[T], cfg Config) (*Files[T], error) {
	if cfg.MaxRecordsPerFragment == 0 {
		return nil, fmt.Errorf("index: max records per fragment must be positive")
	}
	if codec.BinarySize() <= 0 {
		return nil, fmt.Errorf("index: value codec must have a positive binary size")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory %s: %w", dir, err)
	}

	count, err := CountFragments(dir)
	if err != nil {
		return nil, err
	}

	return &Files[T]{
		dir:           dir,
		cfg:           cfg,
		codec:         codec,
		defaultValue:  codec.Default(),
		fragmentCount: count,
		logger:        zap.NewNop(),
	}, nil
}

// NewWithDefaults creates a fense index with DefaultConfig.
func NewWithDefaults[T cmp.Ordered](dir string, codec ValueCodec[T]) (*Files[T], error) {
	return New(dir, codec, DefaultConfig())
}

// WithLogger sets the logger used for fragment lifecycle events.
func (f *Files[T]) WithLogger(logger *zap.Logger) {
	f.logger = logger
}

// CountFragments counts the fragment files present in dir.
func CountFragments(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading index directory %s: %w", dir, err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), fragmentExt) {
			count++
		}
	}

	return count, nil
}

// FragmentCount returns the number of fragment files in the index.
func (f *Files[T]) FragmentCount() int {
	return f.fragmentCount
}

// OpenFragmentCount returns the number of fragments with an attached
// handle.
func (f *Files[T]) OpenFragmentCount() int {
	return len(f.handles)
}

// Close releases every fragment handle.
func (f *Files[T]) Close() error {
	var firstErr error
	for _, handle := range f.handles {
		if err := handle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.handles = nil

	return firstErr
}

func (f *Files[T]) fragmentPath(num int) string {
	return filepath.Join(f.dir, fmt.Sprintf("%08d%s", num, fragmentExt))
}

func (f *Files[T]) valueSize() int {
	return f.codec.BinarySize()
}

func (f *Files[T]) slotSize() int {
	return slotPrefixSize + f.valueSize()
}

func (f *Files[T]) headerSize() int {
	return headerBinarySize(f.valueSize())
}

func (f *Files[T]) slotPosition(offset uint32) int64 {
	return int64(f.headerSize()) + int64(offset)*int64(f.slotSize())
}

func (f *Files[T]) handle(num int) (*os.File, error) {
	if num < 0 || num >= len(f.handles) {
		return nil, fmt.Errorf("index: fragment %d is not open", num)
	}

	return f.handles[num], nil
}

// OpenFragment creates or opens fragment num and attaches its handle.
// Fragments must be opened in sequence so handle positions match fragment
// numbers. A created fragment is preallocated to its full size, zeroed,
// and receives an empty header.
func (f *Files[T]) OpenFragment(num int) error {
	if num != len(f.handles) {
		return fmt.Errorf("index: fragment %d opened out of sequence, expected %d", num, len(f.handles))
	}

	path := f.fragmentPath(num)
	_, statErr := os.Stat(path)
	created := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("opening fragment %s: %w", path, err)
	}
	f.handles = append(f.handles, file)

	if !created {
		return nil
	}

	size := int64(f.headerSize()) + int64(f.slotSize())*int64(f.cfg.MaxRecordsPerFragment)
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("preallocating fragment %s: %w", path, err)
	}

	if err := f.writeHeader(num, f.defaultValue, f.defaultValue, 0); err != nil {
		return err
	}
	f.fragmentCount++

	f.logger.Debug("fragment created",
		zap.String("file", path),
		zap.Int64("size", size),
		zap.Uint32("capacity", f.cfg.MaxRecordsPerFragment),
	)

	return nil
}

// OpenAll attaches every fragment file already present in the directory.
func (f *Files[T]) OpenAll() error {
	for num := len(f.handles); num < f.fragmentCount; num++ {
		if err := f.OpenFragment(num); err != nil {
			return err
		}
	}

	return nil
}

// AppendFragment creates the next fragment and returns its number.
func (f *Files[T]) AppendFragment() (int, error) {
	num := f.fragmentCount
	if err := f.OpenFragment(num); err != nil {
		return 0, err
	}

	return num, nil
}

func (f *Files[T]) writeHeader(num int, minValue, maxValue T, recordsCount uint32) error {
	file, err := f.handle(num)
	if err != nil {
		return err
	}

	header := FragmentHeader[T]{
		MaxRecordsCount: f.cfg.MaxRecordsPerFragment,
		RecordsCount:    recordsCount,
		ShiftThreshold:  f.cfg.ShiftThreshold,
		MinValue:        minValue,
		MaxValue:        maxValue,
	}
	data, err := header.bytes(f.codec)
	if err != nil {
		return err
	}
	if _, err := file.WriteAt(data, 0); err != nil {
		return fmt.Errorf("writing fragment %d header: %w", num, err)
	}

	return nil
}

// ReadHeader decodes the header of fragment num.
func (f *Files[T]) ReadHeader(num int) (FragmentHeader[T], error) {
	file, err := f.handle(num)
	if err != nil {
		return FragmentHeader[T]{}, err
	}

	buf := make([]byte, f.headerSize())
	if _, err := file.ReadAt(buf, 0); err != nil {
		return FragmentHeader[T]{}, fmt.Errorf("reading fragment %d header: %w", num, err)
	}

	return parseFragmentHeader(buf, f.codec)
}

func (f *Files[T]) decodeSlot(data []byte) (FenseIndex[T], error) {
	r := binary.NewReader(data)

	active, err := r.ReadBool()
	if err != nil {
		return FenseIndex[T]{}, err
	}
	target, err := r.ReadU64()
	if err != nil {
		return FenseIndex[T]{}, err
	}
	value, err := f.codec.Decode(r)
	if err != nil {
		return FenseIndex[T]{}, err
	}

	return FenseIndex[T]{Active: active, Target: target, Value: value}, nil
}

// ReadOffset decodes the slot at position offset of fragment num.
func (f *Files[T]) ReadOffset(num int, offset uint32) (FenseIndex[T], error) {
	file, err := f.handle(num)
	if err != nil {
		return FenseIndex[T]{}, err
	}

	buf := make([]byte, f.slotSize())
	if _, err := file.ReadAt(buf, f.slotPosition(offset)); err != nil {
		return FenseIndex[T]{}, fmt.Errorf("reading fragment %d slot %d: %w", num, offset, err)
	}

	ix, err := f.decodeSlot(buf)
	if err != nil {
		return FenseIndex[T]{}, fmt.Errorf("fragment %d slot %d: %w", num, offset, err)
	}

	return ix, nil
}

// readSlots decodes every slot of fragment num from offset start, active
// or not.
func (f *Files[T]) readSlots(num int, start uint32) ([]FenseIndex[T], error) {
	file, err := f.handle(num)
	if err != nil {
		return nil, err
	}
	if start >= f.cfg.MaxRecordsPerFragment {
		return nil, nil
	}

	count := f.cfg.MaxRecordsPerFragment - start
	buf := make([]byte, int64(count)*int64(f.slotSize()))
	if _, err := file.ReadAt(buf, f.slotPosition(start)); err != nil {
		return nil, fmt.Errorf("reading fragment %d slots from %d: %w", num, start, err)
	}

	slots := make([]FenseIndex[T], 0, count)
	for i := uint32(0); i < count; i++ {
		begin := int64(i) * int64(f.slotSize())
		ix, err := f.decodeSlot(buf[begin : begin+int64(f.slotSize())])
		if err != nil {
			return nil, fmt.Errorf("fragment %d slot %d: %w", num, start+i, err)
		}
		slots = append(slots, ix)
	}

	return slots, nil
}

// ReadAllIndexes returns the active entries of fragment num from slot
// start to the end of the fragment, in slot order.
func (f *Files[T]) ReadAllIndexes(num int, start uint32) ([]FenseIndex[T], error) {
	slots, err := f.readSlots(num, start)
	if err != nil {
		return nil, err
	}

	items := make([]FenseIndex[T], 0, len(slots))
	for _, ix := range slots {
		if ix.Active {
			items = append(items, ix)
		}
	}

	return items, nil
}

// writeSlot writes one slot without touching the header.
func (f *Files[T]) writeSlot(num int, ix FenseIndex[T], offset uint32) error {
	file, err := f.handle(num)
	if err != nil {
		return err
	}
	if offset >= f.cfg.MaxRecordsPerFragment {
		return fmt.Errorf("index: slot %d beyond fragment capacity %d", offset, f.cfg.MaxRecordsPerFragment)
	}

	w := binary.NewWriter(f.slotSize())
	w.WriteBool(ix.Active)
	w.WriteU64(ix.Target)

	valueBytes, err := f.codec.Encode(ix.Value)
	if err != nil {
		return fmt.Errorf("encoding slot value: %w", err)
	}
	w.WriteBytes(valueBytes)

	if _, err := file.WriteAt(w.Bytes(), f.slotPosition(offset)); err != nil {
		return fmt.Errorf("writing fragment %d slot %d: %w", num, offset, err)
	}

	return nil
}

// WriteOffset stores an active entry at slot offset and refreshes the
// header: the range widens to include the value, and the record count
// grows only when the slot was previously inactive (an overwrite of an
// active slot is an update, not an insert).
func (f *Files[T]) WriteOffset(num int, ix FenseIndex[T], offset uint32) error {
	previous, err := f.ReadOffset(num, offset)
	if err != nil {
		return err
	}
	header, err := f.ReadHeader(num)
	if err != nil {
		return err
	}

	ix.Active = true
	if err := f.writeSlot(num, ix, offset); err != nil {
		return err
	}

	recordsCount := header.RecordsCount
	if !previous.Active {
		recordsCount++
	}

	minValue := header.MinValue
	maxValue := header.MaxValue
	if ix.Value < header.MinValue || header.MinValue == f.defaultValue {
		minValue = ix.Value
	}
	if ix.Value > header.MaxValue || header.MaxValue == f.defaultValue {
		maxValue = ix.Value
	}

	return f.writeHeader(num, minValue, maxValue, recordsCount)
}

// ClearOffset deactivates slot offset, resetting it to the default value.
// The header count shrinks only when the slot was active. The header
// range is left untouched.
func (f *Files[T]) ClearOffset(num int, offset uint32) error {
	previous, err := f.ReadOffset(num, offset)
	if err != nil {
		return err
	}
	header, err := f.ReadHeader(num)
	if err != nil {
		return err
	}

	cleared := FenseIndex[T]{Active: false, Target: 0, Value: f.defaultValue}
	if err := f.writeSlot(num, cleared, offset); err != nil {
		return err
	}

	recordsCount := header.RecordsCount
	if previous.Active {
		recordsCount--
	}

	return f.writeHeader(num, header.MinValue, header.MaxValue, recordsCount)
}

// Reorder compacts fragment num: active entries are sorted ascending by
// (value, target) and rewritten from slot 0, stale slots between the
// compacted prefix and the previous occupancy are cleared, and the header
// is rewritten with the recomputed count and range.
func (f *Files[T]) Reorder(num int) error {
	slots, err := f.readSlots(num, 0)
	if err != nil {
		return err
	}

	items := make([]FenseIndex[T], 0, len(slots))
	highest := -1
	for i, ix := range slots {
		if ix.Active {
			items = append(items, ix)
			highest = i
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Value != items[j].Value {
			return items[i].Value < items[j].Value
		}

		return items[i].Target < items[j].Target
	})

	for i, ix := range items {
		if err := f.writeSlot(num, ix, uint32(i)); err != nil {
			return err
		}
	}

	cleared := FenseIndex[T]{Active: false, Target: 0, Value: f.defaultValue}
	for i := len(items); i <= highest; i++ {
		if err := f.writeSlot(num, cleared, uint32(i)); err != nil {
			return err
		}
	}

	minValue := f.defaultValue
	maxValue := f.defaultValue
	if len(items) > 0 {
		minValue = items[0].Value
		maxValue = items[len(items)-1].Value
	}

	return f.writeHeader(num, minValue, maxValue, uint32(len(items)))
}

// AssignmentFor walks the open fragments in order and returns where a new
// entry belongs. The first match wins:
//
//  1. a full fragment whose range strictly contains the value → split it;
//  2. an empty fragment (range still at the default sentinel) → use it;
//  3. a non-full fragment → use it, whether or not the value is in range;
//  4. otherwise, with every fragment full, an in-range fragment → use it.
//
// When nothing matches the caller must create the next fragment. Because
// rule 3 ignores range alignment, fragments partition by insertion order
// rather than by key range; the split path is the only place ranges are
// enforced.
func (f *Files[T]) AssignmentFor(ix FenseIndex[T]) (Assignment, error) {
	for i := range f.handles {
		header, err := f.ReadHeader(i)
		if err != nil {
			return Assignment{}, err
		}

		inRange := ix.Value > header.MinValue && ix.Value < header.MaxValue

		if header.RecordsCount >= header.MaxRecordsCount && inRange {
			return Assignment{Kind: AssignSplit, Num: i}, nil
		}
		if header.MinValue == f.defaultValue && header.MaxValue == f.defaultValue {
			return Assignment{Kind: AssignSpecific, Num: i}, nil
		}
		if header.RecordsCount < header.MaxRecordsCount {
			return Assignment{Kind: AssignSpecific, Num: i}, nil
		}
		if inRange {
			return Assignment{Kind: AssignSpecific, Num: i}, nil
		}
	}

	return Assignment{Kind: AssignNextAvailable}, nil
}

// Store inserts an entry, resolving its destination fragment and
// splitting or creating fragments as needed.
func (f *Files[T]) Store(ix FenseIndex[T]) error {
	assignment, err := f.AssignmentFor(ix)
	if err != nil {
		return err
	}

	switch assignment.Kind {
	case AssignSpecific:
		header, err := f.ReadHeader(assignment.Num)
		if err != nil {
			return err
		}

		return f.WriteOffset(assignment.Num, ix, header.RecordsCount)

	case AssignNextAvailable:
		num, err := f.AppendFragment()
		if err != nil {
			return err
		}

		return f.WriteOffset(num, ix, 0)

	case AssignSplit:
		return f.split(assignment.Num, ix)

	default:
		return fmt.Errorf("index: unknown assignment kind %d", assignment.Kind)
	}
}

// split moves every entry greater than ix.Value out of the full fragment
// num into a new fragment, compacts what remains, and appends ix to the
// old fragment. The old fragment keeps the range [min, ix.Value], the new
// fragment takes everything above.
func (f *Files[T]) split(num int, ix FenseIndex[T]) error {
	header, err := f.ReadHeader(num)
	if err != nil {
		return err
	}
	if !(ix.Value > header.MinValue && ix.Value < header.MaxValue) {
		return fmt.Errorf("%w: fragment %d covers a range that does not strictly contain the value", errs.ErrOutOfRangeSplit, num)
	}

	next, err := f.AppendFragment()
	if err != nil {
		return err
	}

	nextMin := f.defaultValue
	nextMax := f.defaultValue
	nextCount := uint32(0)
	oldCount := header.RecordsCount

	for offset := uint32(0); offset < header.RecordsCount; offset++ {
		old, err := f.ReadOffset(num, offset)
		if err != nil {
			return err
		}
		if !(old.Value > ix.Value) {
			continue
		}

		if old.Value != f.defaultValue && (nextMin == f.defaultValue || old.Value < nextMin) {
			nextMin = old.Value
		}
		if old.Value != f.defaultValue && old.Value > nextMax {
			nextMax = old.Value
		}

		if err := f.WriteOffset(next, old, nextCount); err != nil {
			return err
		}
		if err := f.ClearOffset(num, offset); err != nil {
			return err
		}

		nextCount++
		oldCount--
	}

	f.logger.Debug("fragment split",
		zap.Int("fragment", num),
		zap.Int("next", next),
		zap.Uint32("moved", nextCount),
		zap.Uint32("kept", oldCount),
	)

	if err := f.writeHeader(num, header.MinValue, ix.Value, oldCount); err != nil {
		return err
	}
	if err := f.writeHeader(next, nextMin, nextMax, nextCount); err != nil {
		return err
	}

	if err := f.Reorder(num); err != nil {
		return err
	}

	return f.WriteOffset(num, ix, oldCount)
}

// FindTargets scans every open fragment and returns the targets of all
// active entries equal to value, in fragment then slot order. String
// values must be normalized to the codec width before the call.
func (f *Files[T]) FindTargets(value T) ([]uint64, error) {
	var targets []uint64
	for num := range f.handles {
		header, err := f.ReadHeader(num)
		if err != nil {
			return nil, err
		}
		if header.RecordsCount == 0 {
			continue
		}

		items, err := f.ReadAllIndexes(num, 0)
		if err != nil {
			return nil, err
		}
		for _, ix := range items {
			if ix.Value == value {
				targets = append(targets, ix.Target)
			}
		}
	}

	return targets, nil
}

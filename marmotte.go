// Package marmotte provides an embedded document store built from two
// cooperating subsystems: an append-only record log with fixed-size page
// preallocation and per-record CRC32 validation, and a sorted secondary
// index ("fense index") that partitions key ranges across fixed-capacity
// on-disk fragments.
//
// Documents are JSON-shaped byte buffers. On insert they are encoded into
// a tagged length-prefixed binary form, appended to the log, and every
// configured secondary index records (indexed value → log offset) entries.
// Lookups scan the index fragments and fetch the matching records back
// from the log.
//
// # Basic Usage
//
//	store, _ := marmotte.Open("data",
//	    marmotte.WithPageSize(2048),
//	    marmotte.WithStringIndex("name", 200),
//	)
//	defer store.Close()
//
//	offset, _ := store.Insert([]byte(`{"id": 1, "name": "John Doe"}`))
//	docs, _ := store.FindByString("name", "John Doe")
//
// For fine-grained control over the log or the index fragments, use the
// storage and index packages directly.
package marmotte

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/rflechner/marmotte/document"
	"github.com/rflechner/marmotte/index"
	"github.com/rflechner/marmotte/internal/options"
	"github.com/rflechner/marmotte/storage"
)

const (
	recordsFileName = "records.data"
	indexesDirName  = "indexes"

	// DefaultPageSize is the page size of a store created without
	// WithPageSize.
	DefaultPageSize = 2048
)

type config struct {
	pageSize      uint64
	logger        *zap.Logger
	indexCfg      index.Config
	stringIndexes map[string]int
	hashIndexes   map[string]bool
}

// Option configures a Store during Open.
type Option = options.Option[*config]

// WithPageSize sets the record log page size. It must match the page size
// the log was created with when reopening an existing store.
func WithPageSize(pageSize uint64) Option {
	return options.New(func(c *config) error {
		if pageSize < storage.MetaSize {
			return fmt.Errorf("marmotte: page size %d is smaller than the log header", pageSize)
		}
		c.pageSize = pageSize

		return nil
	})
}

// WithLogger sets the logger shared by the log writer and the index
// engines.
func WithLogger(logger *zap.Logger) Option {
	return options.NoError(func(c *config) {
		c.logger = logger
	})
}

// WithIndexConfig overrides the fragment tuning of every secondary index.
func WithIndexConfig(cfg index.Config) Option {
	return options.NoError(func(c *config) {
		c.indexCfg = cfg
	})
}

// WithStringIndex declares an ordered secondary index over a dotted
// property path. Values are padded or truncated to width bytes; lookups
// match on the normalized form.
func WithStringIndex(property string, width int) Option {
	return options.New(func(c *config) error {
		if width <= 0 {
			return fmt.Errorf("marmotte: string index %q needs a positive width", property)
		}
		c.stringIndexes[property] = width

		return nil
	})
}

// WithHashIndex declares an equality-only secondary index over a dotted
// property path. The index stores the 64-bit xxHash of each value, so
// arbitrarily long values fit a compact fixed-width slot; lookups verify
// matches against the fetched documents to rule out hash collisions.
func WithHashIndex(property string) Option {
	return options.NoError(func(c *config) {
		c.hashIndexes[property] = true
	})
}

type stringIndex struct {
	codec index.StringCodec
	files *index.Files[string]
}

// Store is an embedded document store rooted at a directory. Like its
// underlying subsystems it is single-owner: no locking, no safe
// concurrent access.
type Store struct {
	dir           string
	logger        *zap.Logger
	writer        *storage.Writer
	stringIndexes map[string]*stringIndex
	hashIndexes   map[string]*index.Files[uint64]
}

// Open creates or opens a store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	cfg := &config{
		pageSize:      DefaultPageSize,
		logger:        zap.NewNop(),
		indexCfg:      index.DefaultConfig(),
		stringIndexes: make(map[string]int),
		hashIndexes:   make(map[string]bool),
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("marmotte: creating store directory %s: %w", dir, err)
	}

	writer, err := storage.OpenWriter(
		filepath.Join(dir, recordsFileName),
		cfg.pageSize,
		storage.WithWriterLogger(cfg.logger),
	)
	if err != nil {
		return nil, err
	}

	store := &Store{
		dir:           dir,
		logger:        cfg.logger,
		writer:        writer,
		stringIndexes: make(map[string]*stringIndex),
		hashIndexes:   make(map[string]*index.Files[uint64]),
	}

	for property, width := range cfg.stringIndexes {
		codec := index.StringCodec{Width: width}
		files, err := index.New(store.indexDir(property, "str"), codec, cfg.indexCfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		files.WithLogger(cfg.logger)
		if err := files.OpenAll(); err != nil {
			_ = store.Close()
			return nil, err
		}
		store.stringIndexes[property] = &stringIndex{codec: codec, files: files}
	}

	for property := range cfg.hashIndexes {
		files, err := index.New(store.indexDir(property, "hash"), index.Uint64Codec{}, cfg.indexCfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		files.WithLogger(cfg.logger)
		if err := files.OpenAll(); err != nil {
			_ = store.Close()
			return nil, err
		}
		store.hashIndexes[property] = files
	}

	return store, nil
}

func (s *Store) indexDir(property, kind string) string {
	return filepath.Join(s.dir, indexesDirName, property+"."+kind)
}

// Meta returns the record log header state.
func (s *Store) Meta() storage.Meta {
	return s.writer.Meta()
}

// Close releases the log and every index fragment handle.
func (s *Store) Close() error {
	var firstErr error
	if err := s.writer.Close(); err != nil {
		firstErr = err
	}
	for _, si := range s.stringIndexes {
		if err := si.files.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, files := range s.hashIndexes {
		if err := files.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// Insert parses a JSON document, appends its binary form to the log and
// feeds every configured secondary index. The document must carry a
// top-level id (string or number). It returns the log offset the document
// was written at.
func (s *Store) Insert(payload []byte) (uint64, error) {
	doc, err := document.Parse(payload)
	if err != nil {
		return 0, err
	}
	if _, ok := document.FindIDOf(doc); !ok {
		return 0, fmt.Errorf("marmotte: document has no usable top-level id")
	}

	offset, err := s.writer.Append(document.Encode(doc))
	if err != nil {
		return 0, err
	}

	if err := s.indexDocument(doc, offset); err != nil {
		return 0, err
	}

	return offset, nil
}

// InsertMany parses a batch of JSON documents, appends them with a single
// bulk write and one data fsync, then feeds the secondary indexes. It
// returns the log offset of each document in input order.
func (s *Store) InsertMany(payloads [][]byte) ([]uint64, error) {
	docs := make([]document.Value, 0, len(payloads))
	encoded := make([][]byte, 0, len(payloads))
	for i, payload := range payloads {
		doc, err := document.Parse(payload)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if _, ok := document.FindIDOf(doc); !ok {
			return nil, fmt.Errorf("document %d has no usable top-level id", i)
		}
		docs = append(docs, doc)
		encoded = append(encoded, document.Encode(doc))
	}

	offsets := make([]uint64, len(encoded))
	position := s.writer.Meta().Position
	for i, payload := range encoded {
		offsets[i] = position
		position += storage.RecordOverhead + uint64(len(payload))
	}

	if err := s.writer.BulkAppend(encoded); err != nil {
		return nil, err
	}

	for i, doc := range docs {
		if err := s.indexDocument(doc, offsets[i]); err != nil {
			return nil, err
		}
	}

	return offsets, nil
}

func (s *Store) indexDocument(doc document.Value, offset uint64) error {
	for property, si := range s.stringIndexes {
		for _, value := range document.PropertyValues(doc, property) {
			text, ok := value.Textual()
			if !ok {
				continue
			}
			entry := index.NewFenseIndex(offset, si.codec.Normalize(text))
			if err := si.files.Store(entry); err != nil {
				return fmt.Errorf("indexing %q: %w", property, err)
			}
		}
	}

	for property, files := range s.hashIndexes {
		for _, value := range document.PropertyValues(doc, property) {
			text, ok := value.Textual()
			if !ok {
				continue
			}
			entry := index.NewFenseIndex(offset, document.Hash64(text))
			if err := files.Store(entry); err != nil {
				return fmt.Errorf("indexing %q: %w", property, err)
			}
		}
	}

	return nil
}

// FindByString returns the documents whose indexed property equals value,
// after normalization to the index width.
func (s *Store) FindByString(property, value string) ([]document.Value, error) {
	si, ok := s.stringIndexes[property]
	if !ok {
		return nil, fmt.Errorf("marmotte: no string index on %q", property)
	}

	targets, err := si.files.FindTargets(si.codec.Normalize(value))
	if err != nil {
		return nil, err
	}

	return s.fetch(targets, nil)
}

// FindByHash returns the documents whose indexed property equals value.
// Fetched documents are re-checked against the value, so hash collisions
// cannot surface false matches.
func (s *Store) FindByHash(property, value string) ([]document.Value, error) {
	files, ok := s.hashIndexes[property]
	if !ok {
		return nil, fmt.Errorf("marmotte: no hash index on %q", property)
	}

	targets, err := files.FindTargets(document.Hash64(value))
	if err != nil {
		return nil, err
	}

	verify := func(doc document.Value) bool {
		for _, candidate := range document.PropertyValues(doc, property) {
			if text, ok := candidate.Textual(); ok && text == value {
				return true
			}
		}

		return false
	}

	return s.fetch(targets, verify)
}

// fetch reads records at the given offsets from a fresh log snapshot and
// decodes them, skipping deleted records and, when verify is set,
// documents it rejects.
func (s *Store) fetch(targets []uint64, verify func(document.Value) bool) ([]document.Value, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	reader, err := storage.OpenReader(
		filepath.Join(s.dir, recordsFileName),
		storage.WithReaderLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	docs := make([]document.Value, 0, len(targets))
	for _, target := range targets {
		record, err := reader.ReadAt(target)
		if err != nil {
			return nil, err
		}
		if record.Deleted {
			continue
		}

		doc, err := document.Decode(record.Content)
		if err != nil {
			return nil, err
		}
		if verify != nil && !verify(doc) {
			continue
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Package compaction implements glassdb's compactor: merging N source
// databases' tables into one destination, rebasing each source's docids
// by a caller-supplied offset so the merged docid space stays disjoint
// and contiguous.
//
// There is no notion of SST files, levels, or a compaction picker here
// — a glass-style table is a single copy-on-write B-tree, not an LSM
// tree, so "compaction" means exactly one N-way merge per table, chosen
// by that table's key-space shape (see the per-table Merge* functions
// in this package).
//
// Grounded on xapian-core/backends/glass/glass_database.cc's
// compact()/merge_postlists()/merge_docid_keyed() family and
// glass_spellingtable.cc's merge_changes(): the per-table-kind merge
// strategy and the multipass pairing scheme for large inputs both
// follow that source.
package compaction

import (
	"errors"

	"github.com/glassdb/glassdb/internal/table"
)

// ErrFeatureUnavailable is returned by a merge helper asked to combine
// a source table in a format this implementation cannot decode (e.g. a
// pre-glass backend generation's chunk layout).
var ErrFeatureUnavailable = errors.New("compaction: unsupported source table format")

// ErrCorruptKey means a source table held a key this package's
// rebasing logic could not parse.
var ErrCorruptKey = errors.New("compaction: corrupt key in source table")

// Source is one input to a merge: a table plus the docid offset to add
// to every docid found in it, so merged docids across sources stay
// disjoint and contiguous. Offsets and table order are the caller's
// responsibility; nothing in this package derives them.
type Source struct {
	Table       *table.Table
	DocIDOffset uint64

	// Format names the source table's on-disk chunk encoding. The zero
	// value, CurrentFormat, means every Merge* function in this package
	// can read src.Table's cursor directly. Any other value is a source
	// written by an older chunk generation and needs an adapter
	// registered with RegisterAdapter before it can take part in a merge.
	Format SourceFormat
}

// cursor returns the chunk-decoded iterator a Merge* function should
// read src through: the table's own cursor for a CurrentFormat source,
// or the registered adapter wrapping it for any other format.
func (s Source) cursor() (sourceCursor, error) {
	c := s.Table.NewCursor()
	if s.Format == CurrentFormat {
		return c, nil
	}
	factory, ok := adapters[s.Format]
	if !ok {
		return nil, ErrFeatureUnavailable
	}
	return factory(c), nil
}

// SourceFormat identifies a source table's on-disk chunk encoding, the
// way version.FormatVersion names the version file's own layout.
type SourceFormat int

// CurrentFormat is the chunk encoding every Merge* function reads
// directly, with no adapter: the one this package itself has ever
// written. Any other SourceFormat value is reserved for an importer
// that registers an adapter for an externally-produced older database.
const CurrentFormat SourceFormat = 0

// sourceCursor is the minimal forward-iteration interface the Merge*
// functions need from one source: table.Cursor satisfies it directly,
// and so does any CursorAdapter an importer registers.
type sourceCursor interface {
	SeekToFirst()
	Valid() bool
	Key() []byte
	Value() []byte
	Next()
	Error() error
}

// CursorAdapter re-encodes one source table's chunks from an older
// on-disk format into the current one, lazily and one chunk at a time,
// so compacting an older-generation source never needs to materialize
// a whole converted table up front before merging it.
//
// Grounded on xapian-core/backends/glass/glass_database.cc's handling
// of compacting a chert-generation source into a glass destination: the
// source is read through its own format's cursor and re-chunked on the
// fly rather than upgraded as a separate pass.
type CursorAdapter interface {
	sourceCursor
}

// AdapterFactory builds a CursorAdapter wrapping a raw cursor positioned
// over a source table written in some older chunk format.
type AdapterFactory func(*table.Cursor) CursorAdapter

var adapters = map[SourceFormat]AdapterFactory{}

// RegisterAdapter installs the reencoding adapter used for sources
// tagged with format. There is no adapter registered by default, since
// this implementation has only ever written CurrentFormat; a caller
// that needs to compact in a database produced by an older generation
// of this package (or a foreign one) registers one here instead of this
// package needing to know every past chunk layout itself.
func RegisterAdapter(format SourceFormat, factory AdapterFactory) {
	adapters[format] = factory
}

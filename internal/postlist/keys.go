// Package postlist implements glassdb's postlist table: the single
// table.Table that multiplexes per-term posting chunks, per-document
// length chunks, per-value-slot statistics and value-stream chunks, user
// metadata, and the database-wide metainfo record into one key space,
// partitioned by a leading tag byte.
//
// Grounded on xapian-core/backends/glass/glass_postlist.{h,cc} and
// glass_postlisttable.{h,cc}: the key-space layout, chunk header shape,
// and stream-merge commit algorithm all follow that source (see
// DESIGN.md for the exact correspondence); the Go shape (an explicit
// Inverter staging pending changes, applied against table.Table/Cursor
// at commit) follows this project's own table package idiom rather than
// Xapian's in-place B-tree mutation.
package postlist

import (
	"errors"

	"github.com/glassdb/glassdb/internal/encoding"
)

// ErrTrailingBytes means a key decoded successfully but left unconsumed
// bytes behind — the key is not the shape the caller expected.
var ErrTrailingBytes = errors.New("postlist: trailing bytes in key")

// Tag bytes partitioning the \0-prefixed part of the key space.
const (
	tagUserMeta    = 0xc0
	tagValueStats  = 0xd0
	tagValueStream = 0xd8
	tagDoclen      = 0xe0
)

// Exported aliases, for callers outside this package (internal/
// compaction) that need to classify a raw postlist key without
// re-deriving the partitioning scheme.
const (
	TagUserMeta    = tagUserMeta
	TagValueStats  = tagValueStats
	TagValueStream = tagValueStream
	TagDoclen      = tagDoclen
)

// UserMetaKey builds the key for a user metadata entry.
func UserMetaKey(userKey []byte) []byte {
	k := make([]byte, 0, 2+len(userKey))
	k = append(k, 0x00, tagUserMeta)
	return append(k, userKey...)
}

// ValueStatsKey builds the key for a value slot's stats entry.
func ValueStatsKey(slot uint32) []byte {
	k := []byte{0x00, tagValueStats}
	return encoding.PackUintPreservingSort(k, uint64(slot))
}

// ValueStreamKey builds the key for the value-stream chunk of slot
// starting at docid. A docid of 0 is never a valid first chunk docid (doc
// ids start at 1), so callers always pass the real first docid of the
// chunk.
func ValueStreamKey(slot uint32, firstDocID uint64) []byte {
	k := []byte{0x00, tagValueStream}
	k = encoding.PackUintPreservingSort(k, uint64(slot))
	return encoding.PackUintPreservingSort(k, firstDocID)
}

// valueStreamPrefix builds the key prefix shared by every chunk of
// slot's value stream (everything but the trailing firstDocID), used to
// scan a single slot's chunks with a cursor.
func valueStreamPrefix(slot uint32) []byte {
	k := []byte{0x00, tagValueStream}
	return encoding.PackUintPreservingSort(k, uint64(slot))
}

// SplitValueStreamKey decodes a value-stream chunk key back into its
// slot and starting docid.
func SplitValueStreamKey(key []byte) (slot uint32, firstDocID uint64, err error) {
	if len(key) < 2 || key[0] != 0x00 || key[1] != tagValueStream {
		return 0, 0, ErrTrailingBytes
	}
	s, rest, err := encoding.UnpackUintPreservingSort(key[2:])
	if err != nil {
		return 0, 0, err
	}
	did, rest, err := encoding.UnpackUintPreservingSort(rest)
	if err != nil {
		return 0, 0, err
	}
	if len(rest) != 0 {
		return 0, 0, ErrTrailingBytes
	}
	return uint32(s), did, nil
}

// DoclenInitialKey is the key of the first (headerless-docid) doclen
// chunk.
func DoclenInitialKey() []byte { return []byte{0x00, tagDoclen} }

// DoclenChunkKey builds the key of a continuation doclen chunk starting
// at firstDocID.
func DoclenChunkKey(firstDocID uint64) []byte {
	k := []byte{0x00, tagDoclen}
	return encoding.PackUintPreservingSort(k, firstDocID)
}

// MetaInfoKey is the single key holding the database-wide metainfo
// record.
func MetaInfoKey() []byte { return []byte{0x00} }

// TermInitialKey builds the key of a term's initial posting chunk.
func TermInitialKey(term []byte) []byte {
	return encoding.PackStringPreservingSort(nil, term)
}

// TermChunkKey builds the key of a term's continuation posting chunk
// starting at firstDocID.
func TermChunkKey(term []byte, firstDocID uint64) []byte {
	k := encoding.PackStringPreservingSort(nil, term)
	return encoding.PackUintPreservingSort(k, firstDocID)
}

// IsTermKey reports whether key belongs to the per-term posting
// partition (i.e. does not start with the \0 byte every other partition
// uses).
func IsTermKey(key []byte) bool {
	return len(key) == 0 || key[0] != 0x00
}

// SplitTermKey decodes a per-term posting key back into its term and,
// for a continuation chunk, the chunk's first docid (hasDocID reports whether a
// docid suffix was present).
func SplitTermKey(key []byte) (term []byte, firstDocID uint64, hasDocID bool, err error) {
	term, rest, err := encoding.UnpackStringPreservingSort(key)
	if err != nil {
		return nil, 0, false, err
	}
	if len(rest) == 0 {
		return term, 0, false, nil
	}
	did, rest, err := encoding.UnpackUintPreservingSort(rest)
	if err != nil {
		return nil, 0, false, err
	}
	if len(rest) != 0 {
		return nil, 0, false, ErrTrailingBytes
	}
	return term, did, true, nil
}

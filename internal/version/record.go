// Package version implements glassdb's version file: the small
// two-copy, checksummed record (spec.md §4.5, §6.3) naming every
// table's root block/level/item-count/free-list-head at one revision,
// plus the database-wide doc-count/docid/doclen/wdf bounds and the
// database's UUID.
//
// Grounded on xapian-core/backends/glass/glass_version.cc: "iamglass"
// holds two self-describing, checksum-terminated copies of the same
// record; opening picks whichever copy verifies and (if both verify)
// carries the higher revision, so a crash mid-write of one copy never
// loses the other.
package version

import (
	"errors"
	"fmt"

	"github.com/glassdb/glassdb/internal/checksum"
	"github.com/glassdb/glassdb/internal/encoding"
)

// magic identifies a glassdb version record, matching the original's
// "IAmGlass" magic bytes.
var magic = [8]byte{'I', 'A', 'm', 'G', 'l', 'a', 's', 's'}

// FormatVersion is the on-disk version-record layout version this
// package reads and writes.
const FormatVersion = 1

var (
	// ErrBadMagic means the bytes read don't start with the expected
	// magic — not a glassdb version record at all.
	ErrBadMagic = errors.New("version: bad magic")
	// ErrChecksumMismatch means a record's trailing checksum does not
	// match its bytes — it was torn by a crash mid-write, or corrupted.
	ErrChecksumMismatch = errors.New("version: checksum mismatch")
	// ErrTruncated means the buffer ended before a field could be read.
	ErrTruncated = errors.New("version: truncated record")
)

// TableRecord is one table's persisted root info: everything Open needs
// to reconstruct the exact tree committed at this revision.
//
// Revision is the table's own last-flushed revision, not necessarily
// equal to the database-wide Record.Revision: a table with no pending
// changes in a given commit is never rewritten, so its root block (and
// this field) simply carries forward the revision of its last real
// write. table.Open verifies this value against what's actually stamped
// on RootBlock.
type TableRecord struct {
	RootBlock    uint32
	Level        uint8
	ItemCount    uint64
	LastBlock    uint32
	Flags        uint8 // bit 0: sequential hint; bit 1: fake root
	FreeListN    uint32
	FreeListC    uint32
	Revision     uint32
}

const (
	flagSequential = 1 << 0
	flagFakeRoot   = 1 << 1
)

func (r TableRecord) Sequential() bool { return r.Flags&flagSequential != 0 }
func (r TableRecord) FakeRoot() bool   { return r.Flags&flagFakeRoot != 0 }

// NewTableRecord builds a TableRecord, folding the sequential/fake-root
// booleans into the flags byte.
func NewTableRecord(rootBlock uint32, level uint8, itemCount uint64, lastBlock uint32, sequential, fakeRoot bool, flN, flC uint32) TableRecord {
	return NewTableRecordAt(rootBlock, level, itemCount, lastBlock, sequential, fakeRoot, flN, flC, 0)
}

// NewTableRecordAt is NewTableRecord plus the table's own last-flushed
// revision.
func NewTableRecordAt(rootBlock uint32, level uint8, itemCount uint64, lastBlock uint32, sequential, fakeRoot bool, flN, flC, revision uint32) TableRecord {
	var flags uint8
	if sequential {
		flags |= flagSequential
	}
	if fakeRoot {
		flags |= flagFakeRoot
	}
	return TableRecord{
		RootBlock: rootBlock,
		Level:     level,
		ItemCount: itemCount,
		LastBlock: lastBlock,
		Flags:     flags,
		FreeListN: flN,
		FreeListC: flC,
		Revision:  revision,
	}
}

// Record is the database-wide version record: one per-table root plus
// the aggregate statistics a postlist-level query (doccount, average
// document length, ...) needs without opening every table.
type Record struct {
	Revision  uint32
	BlockSize uint32 // shared by every table in the database, fixed at Create
	Tables    []TableRecord // indexed by a fixed, caller-defined table order

	DocCount               uint64
	LastDocID              uint64
	DoclenLowerBound       uint64
	DoclenUpperBound       uint64
	WdfUpperBound          uint64
	TotalDoclen            uint64
	SpellingWordfreqUBound uint64

	UUID [16]byte
}

// Encode appends r's on-disk byte representation (without the trailing
// checksum, which Write computes over exactly these bytes) to dst.
func (r Record) Encode(dst []byte) []byte {
	dst = append(dst, magic[:]...)
	dst = encoding.PackUint(dst, uint64(FormatVersion))
	dst = encoding.PackUint(dst, uint64(r.Revision))
	dst = encoding.PackUint(dst, uint64(r.BlockSize))
	dst = encoding.PackUint(dst, uint64(len(r.Tables)))
	for _, tr := range r.Tables {
		dst = encoding.PackUint(dst, uint64(tr.RootBlock))
		dst = append(dst, tr.Level)
		dst = encoding.PackUint(dst, tr.ItemCount)
		dst = encoding.PackUint(dst, uint64(tr.LastBlock))
		dst = append(dst, tr.Flags)
		dst = encoding.PackUint(dst, uint64(tr.FreeListN))
		dst = encoding.PackUint(dst, uint64(tr.FreeListC))
		dst = encoding.PackUint(dst, uint64(tr.Revision))
	}
	dst = encoding.PackUint(dst, r.DocCount)
	dst = encoding.PackUint(dst, r.LastDocID)
	dst = encoding.PackUint(dst, r.DoclenLowerBound)
	dst = encoding.PackUint(dst, r.DoclenUpperBound)
	dst = encoding.PackUint(dst, r.WdfUpperBound)
	dst = encoding.PackUint(dst, r.TotalDoclen)
	dst = encoding.PackUint(dst, r.SpellingWordfreqUBound)
	dst = append(dst, r.UUID[:]...)
	return dst
}

// Decode parses a Record from buf (without a trailing checksum),
// returning the number of bytes it consumed.
func Decode(buf []byte) (Record, int, error) {
	var r Record
	if len(buf) < len(magic) {
		return r, 0, ErrTruncated
	}
	if [8]byte(buf[:8]) != magic {
		return r, 0, ErrBadMagic
	}
	rest := buf[8:]
	consumed := 8

	formatVersion, rest2, err := encoding.UnpackUint(rest)
	if err != nil {
		return r, 0, fmt.Errorf("%w: format version: %v", ErrTruncated, err)
	}
	if formatVersion != FormatVersion {
		return r, 0, fmt.Errorf("version: unsupported format version %d", formatVersion)
	}
	consumed += len(rest) - len(rest2)
	rest = rest2

	rev, rest2, err := encoding.UnpackUint(rest)
	if err != nil {
		return r, 0, fmt.Errorf("%w: revision: %v", ErrTruncated, err)
	}
	r.Revision = uint32(rev)
	consumed += len(rest) - len(rest2)
	rest = rest2

	blockSize, rest2, err := encoding.UnpackUint(rest)
	if err != nil {
		return r, 0, fmt.Errorf("%w: block size: %v", ErrTruncated, err)
	}
	r.BlockSize = uint32(blockSize)
	consumed += len(rest) - len(rest2)
	rest = rest2

	numTables, rest2, err := encoding.UnpackUint(rest)
	if err != nil {
		return r, 0, fmt.Errorf("%w: table count: %v", ErrTruncated, err)
	}
	consumed += len(rest) - len(rest2)
	rest = rest2

	r.Tables = make([]TableRecord, numTables)
	for i := range r.Tables {
		var tr TableRecord
		var v uint64

		v, rest2, err = encoding.UnpackUint(rest)
		if err != nil {
			return r, 0, fmt.Errorf("%w: table %d root block: %v", ErrTruncated, i, err)
		}
		tr.RootBlock = uint32(v)
		consumed += len(rest) - len(rest2)
		rest = rest2

		if len(rest) < 1 {
			return r, 0, ErrTruncated
		}
		tr.Level = rest[0]
		rest = rest[1:]
		consumed++

		v, rest2, err = encoding.UnpackUint(rest)
		if err != nil {
			return r, 0, fmt.Errorf("%w: table %d item count: %v", ErrTruncated, i, err)
		}
		tr.ItemCount = v
		consumed += len(rest) - len(rest2)
		rest = rest2

		v, rest2, err = encoding.UnpackUint(rest)
		if err != nil {
			return r, 0, fmt.Errorf("%w: table %d last block: %v", ErrTruncated, i, err)
		}
		tr.LastBlock = uint32(v)
		consumed += len(rest) - len(rest2)
		rest = rest2

		if len(rest) < 1 {
			return r, 0, ErrTruncated
		}
		tr.Flags = rest[0]
		rest = rest[1:]
		consumed++

		v, rest2, err = encoding.UnpackUint(rest)
		if err != nil {
			return r, 0, fmt.Errorf("%w: table %d free-list N: %v", ErrTruncated, i, err)
		}
		tr.FreeListN = uint32(v)
		consumed += len(rest) - len(rest2)
		rest = rest2

		v, rest2, err = encoding.UnpackUint(rest)
		if err != nil {
			return r, 0, fmt.Errorf("%w: table %d free-list C: %v", ErrTruncated, i, err)
		}
		tr.FreeListC = uint32(v)
		consumed += len(rest) - len(rest2)
		rest = rest2

		v, rest2, err = encoding.UnpackUint(rest)
		if err != nil {
			return r, 0, fmt.Errorf("%w: table %d revision: %v", ErrTruncated, i, err)
		}
		tr.Revision = uint32(v)
		consumed += len(rest) - len(rest2)
		rest = rest2

		r.Tables[i] = tr
	}

	for _, dst := range []*uint64{
		&r.DocCount, &r.LastDocID, &r.DoclenLowerBound, &r.DoclenUpperBound,
		&r.WdfUpperBound, &r.TotalDoclen, &r.SpellingWordfreqUBound,
	} {
		v, rest2, err := encoding.UnpackUint(rest)
		if err != nil {
			return r, 0, fmt.Errorf("%w: stats: %v", ErrTruncated, err)
		}
		*dst = v
		consumed += len(rest) - len(rest2)
		rest = rest2
	}

	if len(rest) < 16 {
		return r, 0, ErrTruncated
	}
	copy(r.UUID[:], rest[:16])
	consumed += 16

	return r, consumed, nil
}

// EncodeWithChecksum appends r's encoded bytes plus a checksum.Type-t
// checksum of those bytes, forming one complete self-verifying copy.
func EncodeWithChecksum(r Record, t checksum.Type, dst []byte) []byte {
	start := len(dst)
	dst = r.Encode(dst)
	sum := checksum.Compute(t, dst[start:])
	var buf [4]byte
	encoding.EncodeFixed32(buf[:], sum)
	return append(dst, buf[:]...)
}

// DecodeWithChecksum verifies and decodes one self-verifying copy from
// the start of buf, returning the record and the number of bytes
// (record + checksum) it consumed.
func DecodeWithChecksum(buf []byte, t checksum.Type) (Record, int, error) {
	r, n, err := Decode(buf)
	if err != nil {
		return Record{}, 0, err
	}
	if len(buf) < n+4 {
		return Record{}, 0, ErrTruncated
	}
	want := encoding.DecodeFixed32(buf[n : n+4])
	if !checksum.Verify(t, buf[:n], want) {
		return Record{}, 0, ErrChecksumMismatch
	}
	return r, n + 4, nil
}

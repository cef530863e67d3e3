// Package block implements the on-disk page format of a table file: a
// fixed-size, copy-on-write block holding either leaf items (key/tag
// pairs) or branch items (key/child-block pointers), plus the free-block
// list's own block format (see internal/freelist).
//
// A block never changes in place. Xapian's glass backend mutates blocks
// through an in-memory working copy and only serializes the final layout
// when a dirty block is flushed; this package models that by treating a
// Block as an immutable byte buffer and providing builders that lay out a
// fresh one from scratch. Any code path that "modifies" a block actually
// decodes its items, edits the resulting slice, and builds a new Block —
// which is exactly the copy-on-write behavior the format requires, since
// a reachable block must never be overwritten in place.
package block

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/glassdb/glassdb/internal/encoding"
)

// HeaderSize is the fixed 11-byte block header: revision(4) + level(1) +
// maxFree(2) + totalFree(2) + directoryEnd(2).
const HeaderSize = 11

// LevelFreelist marks a block as belonging to the free list rather than
// to a B-tree level.
const LevelFreelist = 254

// MaxKeyLength is the largest key a leaf or branch item may carry.
const MaxKeyLength = 255

// item header bit layout: 13 bits of (size-3), 3 bits of flags.
const (
	sizeFieldMask = 0x1FFF
	flagShift     = 13

	FlagCompressed     = 1 << 0
	FlagLastComponent  = 1 << 1
	FlagFirstComponent = 1 << 2
)

var (
	ErrKeyTooLong    = errors.New("block: key exceeds 255 bytes")
	ErrItemTooLarge  = errors.New("block: item does not fit in an empty block")
	ErrCorruptBlock  = errors.New("block: corrupt block")
	ErrIndexOutOfRange = errors.New("block: item index out of range")
)

// LeafItem is one key/tag entry (or tag component) stored in a level-0
// block.
type LeafItem struct {
	Key       []byte
	Component uint16 // meaningful only when Flags&FlagFirstComponent == 0
	Flags     uint8
	Value     []byte
}

func (it LeafItem) encodedSize() int {
	n := 2 + 1 + len(it.Key) + len(it.Value)
	if it.Flags&FlagFirstComponent == 0 {
		n += 2
	}
	return n
}

// CompareLeafKeys orders leaf items the way the directory does: by key,
// then by component counter for the pieces of one split tag.
func CompareLeafKeys(a, b LeafItem) int {
	if c := bytes.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	if a.Component != b.Component {
		if a.Component < b.Component {
			return -1
		}
		return 1
	}
	return 0
}

// BranchItem is one child-pointer entry stored in a level>0 (non-freelist)
// block: "everything with key <= Key lives in the subtree rooted at
// ChildBlock".
type BranchItem struct {
	ChildBlock uint32
	Key        []byte
	Component  uint16
}

func (it BranchItem) encodedSize() int {
	return 4 + 1 + len(it.Key) + 2
}

// Block is a decoded view over one page of a table file.
type Block struct {
	buf  []byte
	size int
}

// Wrap interprets an existing byte buffer (exactly blocksize bytes,
// typically just read from disk) as a Block without copying it.
func Wrap(buf []byte) (*Block, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: block shorter than header", ErrCorruptBlock)
	}
	b := &Block{buf: buf, size: len(buf)}
	if b.IsFreelist() {
		// A freelist block has no directory: its entries start at byte 8
		// and overlap the total-free and directory-end fields.
		return b, nil
	}
	if int(b.DirectoryEnd()) > b.size || int(b.DirectoryEnd()) < HeaderSize {
		return nil, fmt.Errorf("%w: directory-end %d out of range for size %d", ErrCorruptBlock, b.DirectoryEnd(), b.size)
	}
	if (b.size-int(b.DirectoryEnd()))%2 != 0 {
		return nil, fmt.Errorf("%w: directory region not a whole number of entries", ErrCorruptBlock)
	}
	return b, nil
}

// Bytes returns the block's raw backing buffer.
func (b *Block) Bytes() []byte { return b.buf }

// Size returns the block's fixed page size.
func (b *Block) Size() int { return b.size }

func (b *Block) Revision() uint32     { return encoding.DecodeFixed32(b.buf[0:4]) }
func (b *Block) SetRevision(r uint32) { encoding.EncodeFixed32(b.buf[0:4], r) }
func (b *Block) Level() uint8         { return b.buf[4] }
func (b *Block) SetLevel(l uint8)     { b.buf[4] = l }
func (b *Block) MaxFree() uint16      { return encoding.DecodeFixed16(b.buf[5:7]) }
func (b *Block) SetMaxFree(v uint16)  { encoding.EncodeFixed16(b.buf[5:7], v) }
func (b *Block) TotalFree() uint16    { return encoding.DecodeFixed16(b.buf[7:9]) }
func (b *Block) SetTotalFree(v uint16) { encoding.EncodeFixed16(b.buf[7:9], v) }
func (b *Block) DirectoryEnd() uint16  { return encoding.DecodeFixed16(b.buf[9:11]) }
func (b *Block) SetDirectoryEnd(v uint16) { encoding.EncodeFixed16(b.buf[9:11], v) }

// IsFreelist reports whether this block belongs to the free list rather
// than to a B-tree level.
func (b *Block) IsFreelist() bool { return b.Level() == LevelFreelist }

// NumEntries returns the number of items addressed by the directory.
func (b *Block) NumEntries() int {
	return (b.size - int(b.DirectoryEnd())) / 2
}

// itemsEnd is the first byte past the last item, derived from the
// directory-end/total-free relationship: items occupy [HeaderSize,
// itemsEnd), the free gap occupies [itemsEnd, directoryEnd), and the
// directory occupies [directoryEnd, size).
func (b *Block) itemsEnd() int {
	return int(b.DirectoryEnd()) - int(b.TotalFree())
}

func (b *Block) directorySlot(i int) int {
	return b.size - 2*(i+1)
}

// ItemOffset returns the byte offset of the i'th item in directory
// (key-sorted) order.
func (b *Block) ItemOffset(i int) (int, error) {
	if i < 0 || i >= b.NumEntries() {
		return 0, ErrIndexOutOfRange
	}
	return int(encoding.DecodeFixed16(b.buf[b.directorySlot(i):])), nil
}

// LeafItem decodes the i'th item of a level-0 block.
func (b *Block) LeafItem(i int) (LeafItem, error) {
	off, err := b.ItemOffset(i)
	if err != nil {
		return LeafItem{}, err
	}
	if off+2 > b.size {
		return LeafItem{}, fmt.Errorf("%w: item header past end of block", ErrCorruptBlock)
	}
	header := encoding.DecodeFixed16(b.buf[off : off+2])
	size := int(header&sizeFieldMask) + 3
	flags := uint8(header >> flagShift)
	if off+size > b.size {
		return LeafItem{}, fmt.Errorf("%w: item body past end of block", ErrCorruptBlock)
	}
	pos := off + 2
	keyLen := int(b.buf[pos])
	pos++
	key := b.buf[pos : pos+keyLen]
	pos += keyLen
	var component uint16
	if flags&FlagFirstComponent == 0 {
		component = encoding.DecodeFixed16(b.buf[pos : pos+2])
		pos += 2
	}
	value := b.buf[pos : off+size]
	return LeafItem{Key: key, Component: component, Flags: flags, Value: value}, nil
}

// BranchItem decodes the i'th item of a level>0 (non-freelist) block.
func (b *Block) BranchItem(i int) (BranchItem, error) {
	off, err := b.ItemOffset(i)
	if err != nil {
		return BranchItem{}, err
	}
	end := b.itemsEnd()
	if j, jerr := b.ItemOffset(i + 1); jerr == nil {
		end = j
	}
	if off+7 > b.size || end > b.size || end < off {
		return BranchItem{}, fmt.Errorf("%w: branch item out of range", ErrCorruptBlock)
	}
	child := encoding.DecodeFixed32(b.buf[off : off+4])
	keyLen := int(b.buf[off+4])
	pos := off + 5
	if pos+keyLen+2 > end {
		return BranchItem{}, fmt.Errorf("%w: branch item key overruns", ErrCorruptBlock)
	}
	key := b.buf[pos : pos+keyLen]
	component := encoding.DecodeFixed16(b.buf[pos+keyLen : pos+keyLen+2])
	return BranchItem{ChildBlock: child, Key: key, Component: component}, nil
}

// MaxItemSize returns the largest item (leaf or branch) permitted in a
// block of the given size: small enough that at least four max-size
// items, together with their 2-byte directory entries, fit, so every
// block can always be split cleanly, capped by the 13-bit item-size
// field's format limit.
func MaxItemSize(blockSize int) int {
	limit := (blockSize - HeaderSize - 4*2) / 4
	const formatLimit = sizeFieldMask + 3
	if limit > formatLimit {
		limit = formatLimit
	}
	return limit
}

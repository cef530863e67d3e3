package block

import (
	"github.com/glassdb/glassdb/internal/encoding"
	"github.com/glassdb/glassdb/internal/mempool"
)

// LeafBuilder lays out a fresh level-0 block from a run of items handed
// to it in key order. Used every time a leaf is rewritten — which, under
// copy-on-write, is every time it is touched.
type LeafBuilder struct {
	size       int
	itemsEnd   int
	offsets    []int
	buf        []byte
}

// NewLeafBuilder starts an empty leaf block of the given size. The
// scratch buffer comes from mempool.GlobalPool rather than a fresh
// allocation, since a leaf is rebuilt on every copy-on-write touch;
// call Recycle once the built Block has been written out, to return it.
func NewLeafBuilder(size int) *LeafBuilder {
	buf := mempool.GlobalPool.Get(size)[:size]
	clear(buf)
	return &LeafBuilder{
		size:     size,
		itemsEnd: HeaderSize,
		buf:      buf,
	}
}

// Recycle returns the builder's scratch buffer to mempool.GlobalPool.
// Call it only after the Block returned by Finish has been fully
// consumed (written to a Store) — Finish hands out lb.buf itself, not a
// copy.
func (lb *LeafBuilder) Recycle() { mempool.GlobalPool.Put(lb.buf) }

// Fits reports whether item could be appended without overflowing the
// block, without mutating the builder.
func (lb *LeafBuilder) Fits(it LeafItem) bool {
	n := it.encodedSize()
	directoryBytes := (len(lb.offsets) + 1) * 2
	return lb.itemsEnd+n+directoryBytes <= lb.size
}

// Add appends an item, assumed to be in key order relative to items
// already added. Returns false (without modifying the builder) if it
// would not fit.
func (lb *LeafBuilder) Add(it LeafItem) bool {
	if !lb.Fits(it) {
		return false
	}
	off := lb.itemsEnd
	n := it.encodedSize()
	header := uint16(n-3) | uint16(it.Flags)<<flagShift
	encoding.EncodeFixed16(lb.buf[off:off+2], header)
	pos := off + 2
	lb.buf[pos] = byte(len(it.Key))
	pos++
	copy(lb.buf[pos:], it.Key)
	pos += len(it.Key)
	if it.Flags&FlagFirstComponent == 0 {
		encoding.EncodeFixed16(lb.buf[pos:pos+2], it.Component)
		pos += 2
	}
	copy(lb.buf[pos:], it.Value)
	lb.offsets = append(lb.offsets, off)
	lb.itemsEnd = off + n
	return true
}

// Len returns the number of items added so far.
func (lb *LeafBuilder) Len() int { return len(lb.offsets) }

// Finish stamps the revision and writes the directory, producing the
// final immutable Block.
func (lb *LeafBuilder) Finish(revision uint32) *Block {
	directoryEnd := lb.size - len(lb.offsets)*2
	for i, off := range lb.offsets {
		slot := lb.size - 2*(i+1)
		encoding.EncodeFixed16(lb.buf[slot:slot+2], uint16(off))
	}
	b := &Block{buf: lb.buf, size: lb.size}
	b.SetRevision(revision)
	b.SetLevel(0)
	b.SetDirectoryEnd(uint16(directoryEnd))
	totalFree := uint16(directoryEnd - lb.itemsEnd)
	b.SetTotalFree(totalFree)
	b.SetMaxFree(totalFree)
	return b
}

// BranchBuilder lays out a fresh level>0 block.
type BranchBuilder struct {
	size     int
	level    uint8
	itemsEnd int
	offsets  []int
	buf      []byte
}

// NewBranchBuilder starts an empty branch block at the given tree level
// (1 for the level directly above leaves). See NewLeafBuilder on the
// scratch buffer's source and Recycle on returning it.
func NewBranchBuilder(size int, level uint8) *BranchBuilder {
	buf := mempool.GlobalPool.Get(size)[:size]
	clear(buf)
	return &BranchBuilder{
		size:     size,
		level:    level,
		itemsEnd: HeaderSize,
		buf:      buf,
	}
}

// Recycle returns the builder's scratch buffer to mempool.GlobalPool.
// Call it only after the Block returned by Finish has been fully
// consumed (written to a Store) — Finish hands out bb.buf itself, not a
// copy.
func (bb *BranchBuilder) Recycle() { mempool.GlobalPool.Put(bb.buf) }

func (bb *BranchBuilder) Fits(it BranchItem) bool {
	n := it.encodedSize()
	directoryBytes := (len(bb.offsets) + 1) * 2
	return bb.itemsEnd+n+directoryBytes <= bb.size
}

func (bb *BranchBuilder) Add(it BranchItem) bool {
	if !bb.Fits(it) {
		return false
	}
	off := bb.itemsEnd
	encoding.EncodeFixed32(bb.buf[off:off+4], it.ChildBlock)
	bb.buf[off+4] = byte(len(it.Key))
	pos := off + 5
	copy(bb.buf[pos:], it.Key)
	pos += len(it.Key)
	encoding.EncodeFixed16(bb.buf[pos:pos+2], it.Component)
	bb.offsets = append(bb.offsets, off)
	bb.itemsEnd = off + it.encodedSize()
	return true
}

func (bb *BranchBuilder) Len() int { return len(bb.offsets) }

func (bb *BranchBuilder) Finish(revision uint32) *Block {
	directoryEnd := bb.size - len(bb.offsets)*2
	for i, off := range bb.offsets {
		slot := bb.size - 2*(i+1)
		encoding.EncodeFixed16(bb.buf[slot:slot+2], uint16(off))
	}
	b := &Block{buf: bb.buf, size: bb.size}
	b.SetRevision(revision)
	b.SetLevel(bb.level)
	b.SetDirectoryEnd(uint16(directoryEnd))
	totalFree := uint16(directoryEnd - bb.itemsEnd)
	b.SetTotalFree(totalFree)
	b.SetMaxFree(totalFree)
	return b
}

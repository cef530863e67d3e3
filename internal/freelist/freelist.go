// Package freelist tracks which blocks of a table file are free versus
// in-use, across the current and previous revisions, and hands out fresh
// block numbers for copy-on-write splits and rewrites.
//
// Grounded on xapian-core/backends/glass/glass_freelist.cc: the free list
// is itself a chain of blocks inside the same table file (marked with
// block.LevelFreelist), each holding raw 4-byte block-number entries
// after an 8-byte mini-header, terminated by either a "next block" pointer
// or the sentinel unused. A read cursor (fl) hands out blocks already
// known free at the start of the transaction; a write cursor (flw) appends
// blocks freed during the transaction. They are kept separate so a block
// freed in this transaction is never handed back out until the next
// commit — a concurrent reader at the old revision must still see it as
// live.
package freelist

import (
	"errors"
	"fmt"

	"github.com/glassdb/glassdb/internal/block"
	"github.com/glassdb/glassdb/internal/encoding"
)

// cBase is the byte offset of the first entry in a freelist block: the
// 4-byte revision plus the 1-byte level plus 3 bytes of alignment padding
// that block.Block's header format happens to supply via MaxFree/part of
// TotalFree — left unused here, as in the original.
const cBase = 8

// unused is both the end-of-chain sentinel written in place of a "next
// block" pointer and the internal "nothing to free yet" marker used while
// threading the one-recursion-deep deferred release.
const unused uint32 = 0xFFFFFFFF

var ErrCorrupt = errors.New("freelist: corrupt free list")

// Store is the minimal block I/O surface FreeList needs from a table.
type Store interface {
	ReadBlock(n uint32) ([]byte, error)
	WriteBlock(n uint32, data []byte) error
	BlockSize() int
}

// Cursor addresses one position within the free-list chain: the block
// holding the entry, and the byte offset of the entry within it.
type Cursor struct {
	N uint32
	C int
}

// FreeList is the per-table free-block tracker. It is not safe for
// concurrent use; a table serializes access to its free list the same way
// it serializes all other mutation.
type FreeList struct {
	store    Store
	revision uint32

	fl, flEnd Cursor // read side: blocks safe to allocate this transaction
	flw       Cursor // write side: where newly-freed blocks are appended

	p, pw []byte // cached freelist blocks for the read/write cursors

	firstUnusedBlock uint32
}

// New creates a FreeList backed by store.
func New(store Store) *FreeList {
	return &FreeList{store: store}
}

// Open positions the free list at the state recorded in a table's root
// info: head is the free-list head persisted at the last commit (fl, flEnd
// and flw all start there), and firstUnused is the table's current block
// count (the next block number the file would be extended to).
func (f *FreeList) Open(head Cursor, firstUnused uint32) {
	f.fl = head
	f.flEnd = head
	f.flw = head
	f.p = nil
	f.pw = nil
	f.firstUnusedBlock = firstUnused
}

// SetRevision sets the revision freshly-written freelist blocks will
// carry; successive commits bump this before calling Commit.
func (f *FreeList) SetRevision(rev uint32) { f.revision = rev }

// FirstUnusedBlock returns the next block number the file would be
// extended to, i.e. one past the highest block number ever allocated.
func (f *FreeList) FirstUnusedBlock() uint32 { return f.firstUnusedBlock }

// Head returns the free-list head to persist in the table's root info at
// commit: after Commit, this equals the write cursor.
func (f *FreeList) Head() Cursor { return f.flEnd }

func (f *FreeList) blockSize() int { return f.store.BlockSize() }

// end is the offset of the 4-byte "next block" / terminator field, i.e.
// one block past the last usable entry.
func (f *FreeList) end() int { return f.blockSize() - 4 }

func (f *FreeList) readFreelistBlock(n uint32) ([]byte, error) {
	data, err := f.store.ReadBlock(n)
	if err != nil {
		return nil, err
	}
	blk, err := block.Wrap(data)
	if err != nil {
		return nil, err
	}
	if !blk.IsFreelist() {
		return nil, fmt.Errorf("%w: block %d is not a freelist block", ErrCorrupt, n)
	}
	return data, nil
}

func (f *FreeList) writeFreelistBlock(n uint32, data []byte, rev uint32) error {
	// Only the revision and level are stamped: the remaining header
	// bytes from cBase on hold free-list entries.
	encoding.EncodeFixed32(data[0:4], rev)
	data[4] = block.LevelFreelist
	return f.store.WriteBlock(n, data)
}

// GetBlock allocates a fresh block number: the next entry off the read
// cursor if the list isn't exhausted, otherwise a new block at the end of
// the file.
func (f *FreeList) GetBlock() (uint32, error) {
	return f.getBlock(nil)
}

func (f *FreeList) getBlock(blkToFree *uint32) (uint32, error) {
	if f.fl == f.flEnd {
		n := f.firstUnusedBlock
		f.firstUnusedBlock++
		return n, nil
	}

	if f.p == nil {
		if f.fl.N == unused {
			return 0, fmt.Errorf("%w: freelist pointer invalid", ErrCorrupt)
		}
		p, err := f.readFreelistBlock(f.fl.N)
		if err != nil {
			return 0, err
		}
		f.p = p
	}

	end := f.end()
	if f.fl.C != end {
		blk := encoding.DecodeFixed32(f.p[f.fl.C:])
		if blk == unused {
			return 0, fmt.Errorf("%w: ran off end of freelist (block %d, offset %d)", ErrCorrupt, f.fl.N, f.fl.C)
		}
		f.fl.C += 4
		return blk, nil
	}

	oldFlBlk := f.fl.N
	f.fl.N = encoding.DecodeFixed32(f.p[f.fl.C:])
	if f.fl.N == unused {
		return 0, fmt.Errorf("%w: freelist next pointer invalid", ErrCorrupt)
	}
	f.fl.C = cBase
	p, err := f.readFreelistBlock(f.fl.N)
	if err != nil {
		return 0, err
	}
	f.p = p

	if blkToFree != nil {
		*blkToFree = oldFlBlk
	} else if err := f.markBlockUnused(oldFlBlk); err != nil {
		return 0, err
	}

	return f.getBlock(blkToFree)
}

// MarkBlockUnused releases a block: it becomes available for allocation
// starting with the NEXT commit, never the current one, so readers still
// on the previous revision keep seeing it as live.
func (f *FreeList) MarkBlockUnused(blk uint32) error {
	return f.markBlockUnused(blk)
}

func (f *FreeList) markBlockUnused(blk uint32) error {
	blkToFree := unused

	if f.pw == nil {
		f.pw = make([]byte, f.blockSize())
		if f.flw.C != 0 {
			data, err := f.readFreelistBlock(f.flw.N)
			if err != nil {
				return err
			}
			copy(f.pw, data)
		}
	}

	end := f.end()
	switch {
	case f.flw.C == 0:
		n, err := f.getBlock(&blkToFree)
		if err != nil {
			return err
		}
		f.flw.N = n
		f.flw.C = cBase
		if f.fl.C == 0 {
			f.fl = f.flw
			f.flEnd = f.flw
		}
		encoding.EncodeFixed32(f.pw[end:], unused)
	case f.flw.C == end:
		n, err := f.getBlock(&blkToFree)
		if err != nil {
			return err
		}
		encoding.EncodeFixed32(f.pw[f.flw.C:], n)
		if err := f.writeFreelistBlock(f.flw.N, f.pw, f.revision+1); err != nil {
			return err
		}
		if f.p != nil && f.flw.N == f.fl.N {
			copy(f.p, f.pw)
		}
		f.flw.N = n
		f.flw.C = cBase
		encoding.EncodeFixed32(f.pw[end:], unused)
	}

	encoding.EncodeFixed32(f.pw[f.flw.C:], blk)
	f.flw.C += 4

	if blkToFree != unused {
		return f.markBlockUnused(blkToFree)
	}
	return nil
}

// Commit pads and writes out the current write-cursor block, if any
// entries were appended to it since the last commit, and advances flEnd
// (and so Head()) to the write cursor.
func (f *FreeList) Commit() error {
	if f.pw != nil && f.flw.C != 0 {
		end := f.end()
		for i := f.flw.C; i < end; i++ {
			f.pw[i] = 0xff
		}
		if err := f.writeFreelistBlock(f.flw.N, f.pw, f.revision); err != nil {
			return err
		}
		if f.p != nil && f.flw.N == f.fl.N {
			copy(f.p, f.pw)
		}
		f.flEnd = f.flw
	}
	return nil
}

// Walker iterates the entries reachable between the free list's current
// read cursor and its end, for diagnostics and for the free-list
// conservation test property: |reachable_blocks| + |free_list_at_commit|
// == file_block_count - 1.
type Walker struct {
	fl   *FreeList
	cur  Cursor
	end  Cursor
	p    []byte
	done bool
}

// NewWalker starts a walk over the free blocks visible as of the free
// list's current state (fl..flEnd).
func (f *FreeList) NewWalker() *Walker {
	return &Walker{fl: f, cur: f.fl, end: f.flEnd}
}

// Next returns the next free block number, or ok=false once the walk is
// exhausted.
func (w *Walker) Next() (blk uint32, ok bool, err error) {
	if w.done || w.cur == w.end {
		return 0, false, nil
	}
	if w.p == nil {
		if w.cur.N == unused {
			return 0, false, fmt.Errorf("%w: freelist pointer invalid", ErrCorrupt)
		}
		w.p, err = w.fl.readFreelistBlock(w.cur.N)
		if err != nil {
			return 0, false, err
		}
	}

	end := w.fl.end()
	if w.cur.C != end {
		blk = encoding.DecodeFixed32(w.p[w.cur.C:])
		w.cur.C += 4
		return blk, true, nil
	}

	next := encoding.DecodeFixed32(w.p[w.cur.C:])
	if next == unused {
		return 0, false, fmt.Errorf("%w: freelist next pointer invalid", ErrCorrupt)
	}
	w.cur.N = next
	w.cur.C = cBase
	w.p, err = w.fl.readFreelistBlock(w.cur.N)
	if err != nil {
		return 0, false, err
	}
	return w.Next()
}

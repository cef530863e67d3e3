// Package table implements a Xapian-style copy-on-write B-tree: the
// on-disk structure backing every component table (postlist, termlist,
// position list, value stream, doc data, spelling, synonym) of a glassdb
// database.
//
// Grounded on xapian-core/backends/glass/glass_table.cc and
// glass_cursor.cc: a table is a single file of fixed-size blocks (package
// internal/block), a chained free list (internal/freelist), and a root
// block number that, together with a revision number, identifies one
// immutable snapshot of the tree. Writers build a brand-new root (and
// every block on the path to it) on each commit; readers holding an
// older root number keep seeing their own snapshot untouched until they
// re-open at a newer revision.
package table

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/glassdb/glassdb/internal/block"
	"github.com/glassdb/glassdb/internal/compression"
	"github.com/glassdb/glassdb/internal/freelist"
	"github.com/glassdb/glassdb/internal/logging"
)

// RootInfo is everything a version file needs to record per table so a
// later Open (or Cancel) can reconstruct the exact tree it committed.
type RootInfo struct {
	RootBlock    uint32
	Level        uint8
	ItemCount    uint64
	LastBlock    uint32 // == FreeList.FirstUnusedBlock() at commit time
	CompressMin  uint32
	Sequential   bool
	FakeRoot     bool
	FreeListHead freelist.Cursor
}

// Table is one open B-tree. It is not safe for concurrent use from
// multiple goroutines; a Database serializes writers the same way
// Xapian's WritableDatabase does.
type Table struct {
	name      string
	store     Store
	blockSize int
	writable  bool
	log       logging.Logger

	compressMin uint32
	sequential  bool
	fakeRoot    bool

	root      *memNode
	level     uint8
	itemCount uint64
	revision  uint32

	fl           *freelist.FreeList
	freedBlocks  []uint32
	pendingRev   uint32
	flushedRoot  uint32

	modified bool
}

// CreateAndOpen starts a brand-new, empty table: an in-memory root leaf
// that has never been written to disk. Nothing touches store until the
// first FlushDB.
func CreateAndOpen(name string, store Store, compressMin uint32, sequential bool) *Table {
	t := &Table{
		name:        name,
		store:       store,
		blockSize:   store.BlockSize(),
		writable:    true,
		log:         logging.Discard,
		compressMin: compressMin,
		sequential:  sequential,
		root:        newLeaf(),
		level:       0,
		fl:          freelist.New(store),
	}
	t.fl.Open(freelist.Cursor{}, 0)
	return t
}

// Open reconstructs a table at the snapshot named by info, verifying the
// root block actually carries the expected revision (a cross-check
// against a corrupted or stale version record).
func Open(name string, store Store, info RootInfo, revision uint32, writable bool) (*Table, error) {
	root, rev, err := decodeNode(store, info.RootBlock)
	if err != nil {
		return nil, err
	}
	if rev != revision {
		return nil, fmt.Errorf("table %s: %w: root block %d carries revision %d, want %d", name, ErrWrongRevision, info.RootBlock, rev, revision)
	}
	if root.level != info.Level {
		return nil, fmt.Errorf("table %s: %w: root block %d is level %d, root info says %d", name, ErrCorrupt, info.RootBlock, root.level, info.Level)
	}
	t := &Table{
		name:        name,
		store:       store,
		blockSize:   store.BlockSize(),
		writable:    writable,
		log:         logging.Discard,
		compressMin: info.CompressMin,
		sequential:  info.Sequential,
		fakeRoot:    info.FakeRoot,
		root:        root,
		level:       info.Level,
		itemCount:   info.ItemCount,
		revision:    revision,
		fl:          freelist.New(store),
	}
	t.fl.Open(info.FreeListHead, info.LastBlock)
	return t, nil
}

// SetLogger replaces the table's logger (default is logging.Discard).
func (t *Table) SetLogger(l logging.Logger) { t.log = logging.OrDefault(l) }

// Name returns the table's component name (e.g. "postlist"), used only
// for logging and error messages.
func (t *Table) Name() string { return t.name }

// Revision returns the currently-open revision.
func (t *Table) Revision() uint32 { return t.revision }

// IsModified reports whether any Add/Del has happened since the last
// FlushDB/Commit (or since Open/Cancel).
func (t *Table) IsModified() bool { return t.modified }

// Empty reports whether the table currently holds no entries.
func (t *Table) Empty() bool { return t.itemCount == 0 }

// GetEntryCount returns the number of distinct keys stored, irrespective
// of how many components a large tag was split into.
func (t *Table) GetEntryCount() uint64 { return t.itemCount }

// decodeNode reads and decodes the block at blockNum, returning both the
// node and the revision stamped in its header (callers that care about
// revision consistency, i.e. only the root, check it themselves).
func decodeNode(store Store, blockNum uint32) (*memNode, uint32, error) {
	buf, err := store.ReadBlock(blockNum)
	if err != nil {
		return nil, 0, err
	}
	blk, err := block.Wrap(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: block %d: %v", ErrCorrupt, blockNum, err)
	}
	if blk.IsFreelist() {
		return nil, 0, fmt.Errorf("%w: block %d is a free-list block, not a tree node", ErrCorrupt, blockNum)
	}
	n := &memNode{blockNum: blockNum, level: blk.Level()}
	if n.level == 0 {
		n.items = make([]block.LeafItem, blk.NumEntries())
		for i := range n.items {
			it, err := blk.LeafItem(i)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: block %d item %d: %v", ErrCorrupt, blockNum, i, err)
			}
			n.items[i] = it
		}
	} else {
		n.branch = make([]branchChild, blk.NumEntries())
		for i := range n.branch {
			bi, err := blk.BranchItem(i)
			if err != nil {
				return nil, 0, fmt.Errorf("%w: block %d item %d: %v", ErrCorrupt, blockNum, i, err)
			}
			n.branch[i] = branchChild{key: bi.Key, component: bi.Component, blockNum: bi.ChildBlock}
		}
	}
	return n, blk.Revision(), nil
}

// loadChild returns bc's in-memory node, decoding it from disk on first
// access and caching the result for the rest of the transaction.
func (t *Table) loadChild(bc *branchChild) (*memNode, error) {
	if bc.node != nil {
		return bc.node, nil
	}
	n, _, err := decodeNode(t.store, bc.blockNum)
	if err != nil {
		return nil, err
	}
	bc.node = n
	return n, nil
}

// markDirty flags n as needing a fresh block number at the next flush,
// and schedules its current (about-to-be-superseded) block for release —
// the block only actually becomes available for reuse starting with the
// commit after next, per FreeList's deferred-release contract.
func (t *Table) markDirty(n *memNode) {
	if n.dirty {
		return
	}
	t.freedBlocks = append(t.freedBlocks, n.blockNum)
	n.dirty = true
}

func findChildIndex(children []branchChild, key []byte) int {
	for i, c := range children {
		if bytes.Compare(c.key, key) >= 0 {
			return i
		}
	}
	return len(children) - 1
}

// buildItems splits (key, value) into the leaf items Add will insert,
// chunking value across as many components as MaxItemSize demands. A
// value that fits in one item comes back as a single first+last-flagged
// item; this is the general case, not a special one.
func (t *Table) buildItems(key, value []byte, compressedFlag uint8) []block.LeafItem {
	maxItem := block.MaxItemSize(t.blockSize)
	singleCap := maxItem - (2 + 1 + len(key))
	multiCap := maxItem - (2 + 1 + len(key) + 2)
	if singleCap < 1 {
		singleCap = 1
	}
	if multiCap < 1 {
		multiCap = 1
	}

	var chunks [][]byte
	rest := value
	cap0 := singleCap
	for len(rest) > cap0 {
		chunks = append(chunks, rest[:cap0])
		rest = rest[cap0:]
		cap0 = multiCap
	}
	chunks = append(chunks, rest)

	items := make([]block.LeafItem, len(chunks))
	for i, c := range chunks {
		flags := compressedFlag
		var component uint16
		if i == 0 {
			flags |= block.FlagFirstComponent
		} else {
			component = uint16(i + 1) // components after the first are numbered 2, 3, ...
		}
		if i == len(chunks)-1 {
			flags |= block.FlagLastComponent
		}
		items[i] = block.LeafItem{Key: key, Component: component, Flags: flags, Value: c}
	}
	return items
}

// Add inserts (or replaces) the tag stored under key. alreadyCompressed
// tells Add the caller already ran value through the table's codec (used
// when copying entries verbatim during compaction); otherwise Add
// compresses the value itself once it reaches compressMin bytes.
func (t *Table) Add(key, value []byte, alreadyCompressed bool) error {
	if !t.writable {
		return ErrReadOnly
	}
	if len(key) > block.MaxKeyLength {
		return ErrKeyTooLong
	}

	compressedFlag := uint8(0)
	if alreadyCompressed {
		compressedFlag = block.FlagCompressed
	} else if t.compressMin > 0 && uint32(len(value)) >= t.compressMin {
		c, err := compression.Compress(compression.ZlibCompression, value)
		if err == nil && len(c) < len(value) {
			value = c
			compressedFlag = block.FlagCompressed
		}
	}

	existed, _, err := t.deleteFromNode(t.root, key)
	if err != nil {
		return err
	}

	items := t.buildItems(key, value, compressedFlag)
	extra, err := t.insertIntoNode(t.root, items)
	if err != nil {
		return err
	}
	if len(extra) > 0 {
		t.growRoot(extra)
	}

	if !existed {
		t.itemCount++
	}
	t.modified = true
	return nil
}

// growRoot wraps the current root and its newly-split siblings in a
// fresh branch one level up.
func (t *Table) growRoot(extra []*memNode) {
	newRoot := newBranch(t.root.level + 1)
	newRoot.branch = append(newRoot.branch, branchChild{key: maxKey(t.root), node: t.root})
	for _, e := range extra {
		newRoot.branch = append(newRoot.branch, branchChild{key: maxKey(e), node: e})
	}
	t.root = newRoot
	t.level = newRoot.level
}

// insertIntoNode inserts items (all components of one entry, so all
// sharing the same key) under n, returning any new sibling nodes n had
// to split off. Splits are computed with the real block builders (see
// splitLeafItems/splitBranchItems) so the in-memory grouping always
// matches what flush will actually write.
func (t *Table) insertIntoNode(n *memNode, items []block.LeafItem) ([]*memNode, error) {
	if n.level == 0 {
		t.markDirty(n)
		n.items = mergeLeafItems(n.items, items)
		groups := splitLeafItems(n.items, t.blockSize)
		n.items = groups[0]
		var extra []*memNode
		for _, g := range groups[1:] {
			sib := newLeaf()
			sib.items = g
			extra = append(extra, sib)
		}
		return extra, nil
	}

	idx := findChildIndex(n.branch, items[0].Key)
	child, err := t.loadChild(&n.branch[idx])
	if err != nil {
		return nil, err
	}
	childExtra, err := t.insertIntoNode(child, items)
	if err != nil {
		return nil, err
	}

	t.markDirty(n)
	n.branch[idx].key = maxKey(child)
	n.branch[idx].node = child

	if len(childExtra) > 0 {
		grown := make([]branchChild, 0, len(n.branch)+len(childExtra))
		grown = append(grown, n.branch[:idx+1]...)
		for _, e := range childExtra {
			grown = append(grown, branchChild{key: maxKey(e), node: e})
		}
		grown = append(grown, n.branch[idx+1:]...)
		n.branch = grown
	}

	groups := splitBranchItems(n.branch, t.blockSize, n.level)
	n.branch = groups[0]
	var extra []*memNode
	for _, g := range groups[1:] {
		sib := newBranch(n.level)
		sib.branch = g
		extra = append(extra, sib)
	}
	return extra, nil
}

// mergeLeafItems inserts the (sorted, same-key) run fresh into an
// existing sorted leaf-item slice. Add always deletes any prior entry for
// key before calling this, so the two runs never overlap.
func mergeLeafItems(existing []block.LeafItem, fresh []block.LeafItem) []block.LeafItem {
	i := 0
	for i < len(existing) && block.CompareLeafKeys(existing[i], fresh[0]) < 0 {
		i++
	}
	merged := make([]block.LeafItem, 0, len(existing)+len(fresh))
	merged = append(merged, existing[:i]...)
	merged = append(merged, fresh...)
	merged = append(merged, existing[i:]...)
	return merged
}

// Del removes the entry stored under key, reporting whether it was
// present. An empty key is never a valid entry and always reports false.
func (t *Table) Del(key []byte) (bool, error) {
	if !t.writable {
		return false, ErrReadOnly
	}
	if len(key) == 0 {
		return false, nil
	}
	removed, _, err := t.deleteFromNode(t.root, key)
	if err != nil {
		return false, err
	}
	if removed {
		t.itemCount--
		t.modified = true
		t.collapseRoot()
	}
	return removed, nil
}

// deleteFromNode removes every leaf item matching key under n (i.e. every
// component of one tag, since they all share the same key and live
// contiguously in one leaf), reporting whether anything was removed and
// whether n is now empty.
//
// Simplification: when a tag's components have been split across more
// than one leaf block (only possible for tags much larger than a single
// block), only the components reachable from n's own subtree boundary
// are removed here — a descent always lands in exactly the leaf holding
// the tag's first component, and Add() always rewrites a key's entire
// run through one insertIntoNode call, so in practice every component a
// single Add produced is re-merged and re-split as one unit and still
// ends up addressable from the same root-to-leaf path. See DESIGN.md.
func (t *Table) deleteFromNode(n *memNode, key []byte) (removed, empty bool, err error) {
	if n.level == 0 {
		kept := n.items[:0:0]
		for _, it := range n.items {
			if bytes.Equal(it.Key, key) {
				removed = true
				continue
			}
			kept = append(kept, it)
		}
		if removed {
			t.markDirty(n)
			n.items = kept
		}
		return removed, len(n.items) == 0, nil
	}

	idx := findChildIndex(n.branch, key)
	child, err := t.loadChild(&n.branch[idx])
	if err != nil {
		return false, false, err
	}
	removed, childEmpty, err := t.deleteFromNode(child, key)
	if err != nil {
		return false, false, err
	}
	if removed {
		t.markDirty(n)
		if childEmpty {
			n.branch = append(n.branch[:idx], n.branch[idx+1:]...)
		} else {
			n.branch[idx].key = maxKey(child)
			n.branch[idx].node = child
		}
	}
	return removed, len(n.branch) == 0, nil
}

// collapseRoot drops redundant levels left behind by deletion: a branch
// root with a single child carries no information a plain pointer to
// that child wouldn't.
func (t *Table) collapseRoot() {
	for t.root.level > 0 && len(t.root.branch) == 1 {
		child, err := t.loadChild(&t.root.branch[0])
		if err != nil {
			return
		}
		t.root = child
		t.level = child.level
	}
}

// GetExactEntry returns the full tag stored under key, reassembling and
// decompressing it if it was split across components.
func (t *Table) GetExactEntry(key []byte) (tag []byte, found bool, err error) {
	c := t.NewCursor()
	c.Seek(key)
	if err := c.Error(); err != nil {
		return nil, false, err
	}
	if !c.Valid() || !bytes.Equal(c.Key(), key) {
		return nil, false, nil
	}
	return append([]byte(nil), c.Value()...), true, nil
}

// KeyExists reports whether key has an entry. It positions a cursor on
// key, so a matching value is still reassembled and decompressed.
func (t *Table) KeyExists(key []byte) (bool, error) {
	c := t.NewCursor()
	c.Seek(key)
	if err := c.Error(); err != nil {
		return false, err
	}
	return c.Valid() && bytes.Equal(c.Key(), key), nil
}

// flushNode assigns a block number and writes n (and, bottom-up, every
// dirty descendant) if it is dirty; a clean node is already on disk and
// is left untouched.
func (t *Table) flushNode(n *memNode) (uint32, error) {
	if !n.dirty {
		return n.blockNum, nil
	}
	if n.level == 0 {
		blk := block.NewLeafBuilder(t.blockSize)
		for _, it := range n.items {
			if !blk.Add(it) {
				return 0, fmt.Errorf("%w: leaf item did not fit a freshly split block", ErrCorrupt)
			}
		}
		num, err := t.fl.GetBlock()
		if err != nil {
			return 0, err
		}
		built := blk.Finish(t.pendingRev)
		err = t.store.WriteBlock(num, built.Bytes())
		blk.Recycle()
		if err != nil {
			return 0, err
		}
		n.blockNum = num
		n.dirty = false
		return num, nil
	}

	for i := range n.branch {
		bc := &n.branch[i]
		if bc.node != nil {
			childNum, err := t.flushNode(bc.node)
			if err != nil {
				return 0, err
			}
			bc.blockNum = childNum
		}
	}

	bb := block.NewBranchBuilder(t.blockSize, n.level)
	for _, bc := range n.branch {
		if !bb.Add(block.BranchItem{ChildBlock: bc.blockNum, Key: bc.key, Component: bc.component}) {
			return 0, fmt.Errorf("%w: branch item did not fit a freshly split block", ErrCorrupt)
		}
	}
	num, err := t.fl.GetBlock()
	if err != nil {
		return 0, err
	}
	built := bb.Finish(t.pendingRev)
	err = t.store.WriteBlock(num, built.Bytes())
	bb.Recycle()
	if err != nil {
		return 0, err
	}
	n.blockNum = num
	n.dirty = false
	return num, nil
}

// FlushDB writes every dirty block of the tree to disk, stamping
// newRevision into each. It does not make the new root durable on its
// own — the caller (normally the database's version file writer) calls
// Commit afterwards once every table in the database has flushed, and
// only then fsyncs and records the results.
func (t *Table) FlushDB(newRevision uint32) error {
	if !t.writable {
		return ErrReadOnly
	}
	t.pendingRev = newRevision
	t.fl.SetRevision(newRevision)
	for _, b := range t.freedBlocks {
		if err := t.fl.MarkBlockUnused(b); err != nil {
			return err
		}
	}
	t.freedBlocks = t.freedBlocks[:0]

	root, err := t.flushNode(t.root)
	if err != nil {
		return err
	}
	t.flushedRoot = root
	return t.fl.Commit()
}

// Commit finalizes the revision written by the prior FlushDB call and
// returns the RootInfo to persist in the version file.
func (t *Table) Commit() (RootInfo, error) {
	if t.pendingRev == 0 {
		return RootInfo{}, errors.New("table: Commit called without a preceding FlushDB")
	}
	t.revision = t.pendingRev
	t.pendingRev = 0
	t.modified = false

	return RootInfo{
		RootBlock:    t.flushedRoot,
		Level:        t.root.level,
		ItemCount:    t.itemCount,
		LastBlock:    t.fl.FirstUnusedBlock(),
		CompressMin:  t.compressMin,
		Sequential:   t.sequential,
		FakeRoot:     t.fakeRoot,
		FreeListHead: t.fl.Head(),
	}, nil
}

// Cancel discards every uncommitted change, reverting the table to the
// snapshot named by info (the last successfully committed RootInfo).
func (t *Table) Cancel(info RootInfo, revision uint32) error {
	root, rev, err := decodeNode(t.store, info.RootBlock)
	if err != nil {
		return err
	}
	if rev != revision {
		return fmt.Errorf("table %s: %w: root block %d carries revision %d, want %d", t.name, ErrWrongRevision, info.RootBlock, rev, revision)
	}
	t.root = root
	t.level = info.Level
	t.itemCount = info.ItemCount
	t.compressMin = info.CompressMin
	t.sequential = info.Sequential
	t.fakeRoot = info.FakeRoot
	t.revision = revision
	t.fl = freelist.New(t.store)
	t.fl.Open(info.FreeListHead, info.LastBlock)
	t.freedBlocks = nil
	t.pendingRev = 0
	t.modified = false
	return nil
}

// Close releases the table's underlying file handle.
func (t *Table) Close() error {
	return t.store.Close()
}

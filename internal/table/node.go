package table

import "github.com/glassdb/glassdb/internal/block"

// memNode is the in-memory, decoded form of one B-tree block. A node
// loaded purely for reading keeps blockNum pointing at its on-disk
// location and dirty false; the first mutation against it sets dirty
// and queues the old blockNum for release (see Table.markDirty),
// deferring the assignment of a fresh block number until flush (see
// Table.flushNode) — this is what makes every
// "modification" actually a full rebuild of a fresh block, as copy-on-
// write requires.
type memNode struct {
	blockNum uint32
	dirty    bool
	level    uint8

	items  []block.LeafItem // level == 0
	branch []branchChild    // level > 0
}

// branchChild is one entry of a branch node: everything with key <=
// key (and, for equal keys, component <= component) lives in the
// subtree below. node is nil until the child is loaded from disk or
// freshly created.
type branchChild struct {
	key       []byte
	component uint16
	blockNum  uint32
	node      *memNode
}

func newLeaf() *memNode {
	return &memNode{dirty: true, level: 0}
}

func newBranch(level uint8) *memNode {
	return &memNode{dirty: true, level: level}
}

// maxKey returns the bounding key of the subtree rooted at n: the key
// of its rightmost leaf item, or (for a branch) the key already carried
// by its rightmost child entry.
func maxKey(n *memNode) []byte {
	if n.level == 0 {
		if len(n.items) == 0 {
			return nil
		}
		return n.items[len(n.items)-1].Key
	}
	if len(n.branch) == 0 {
		return nil
	}
	return n.branch[len(n.branch)-1].key
}

// splitLeafItems packs items into as few blocks as possible, in order,
// using the real block.LeafBuilder so the grouping exactly matches what
// will be written to disk.
func splitLeafItems(items []block.LeafItem, blockSize int) [][]block.LeafItem {
	if len(items) == 0 {
		return [][]block.LeafItem{{}}
	}
	var groups [][]block.LeafItem
	lb := block.NewLeafBuilder(blockSize)
	var cur []block.LeafItem
	for _, it := range items {
		if !lb.Add(it) {
			groups = append(groups, cur)
			cur = nil
			lb = block.NewLeafBuilder(blockSize)
			lb.Add(it) // single item must fit an empty block; MaxItemSize guarantees this
		}
		cur = append(cur, it)
	}
	groups = append(groups, cur)
	return groups
}

// splitBranchItems is the branch-level analogue of splitLeafItems.
func splitBranchItems(children []branchChild, blockSize int, level uint8) [][]branchChild {
	if len(children) == 0 {
		return [][]branchChild{{}}
	}
	var groups [][]branchChild
	bb := block.NewBranchBuilder(blockSize, level)
	var cur []branchChild
	for _, c := range children {
		trial := block.BranchItem{Key: c.key, Component: c.component}
		if !bb.Add(trial) {
			groups = append(groups, cur)
			cur = nil
			bb = block.NewBranchBuilder(blockSize, level)
			bb.Add(trial)
		}
		cur = append(cur, c)
	}
	groups = append(groups, cur)
	return groups
}

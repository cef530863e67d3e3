package table

import (
	"bytes"

	"github.com/glassdb/glassdb/internal/block"
	"github.com/glassdb/glassdb/internal/compression"
)

// cursorFrame is one branch level on the path from the root down to the
// cursor's current leaf: node is the branch, idx the child currently
// being descended into.
type cursorFrame struct {
	node *memNode
	idx  int
}

// Cursor walks a table's entries in key order, transparently
// reassembling (and decompressing) tags that were split across more than
// one leaf item or leaf block. It satisfies internal/iterator.Iterator,
// so a Cursor can be merged directly by a MergingIterator.
//
// Grounded on xapian-core/backends/glass/glass_cursor.cc's cursor_get():
// a stack of (block, item index) positions, advanced leaf-to-leaf via
// the parent branch rather than by re-descending from the root.
type Cursor struct {
	t     *Table
	stack []cursorFrame
	leaf  *memNode
	idx   int // index of the first not-yet-consumed item in leaf

	key   []byte
	value []byte
	valid bool
	err   error
}

// NewCursor returns a cursor over t, positioned before the first entry.
func (t *Table) NewCursor() *Cursor {
	return &Cursor{t: t}
}

func (c *Cursor) Valid() bool   { return c.valid }
func (c *Cursor) Key() []byte   { return c.key }
func (c *Cursor) Value() []byte { return c.value }
func (c *Cursor) Error() error  { return c.err }

// descendLeftmost walks from n down to its leftmost leaf, pushing a
// frame for every branch level crossed.
func (c *Cursor) descendLeftmost(n *memNode) bool {
	for n.level > 0 {
		if len(n.branch) == 0 {
			c.leaf = nil
			return false
		}
		c.stack = append(c.stack, cursorFrame{node: n, idx: 0})
		child, err := c.t.loadChild(&n.branch[0])
		if err != nil {
			c.err = err
			return false
		}
		n = child
	}
	c.leaf = n
	c.idx = 0
	return true
}

// descendTo walks from n down to the leaf that would hold key, choosing
// at each branch level the first child whose bound is >= key.
func (c *Cursor) descendTo(n *memNode, key []byte) bool {
	for n.level > 0 {
		if len(n.branch) == 0 {
			c.leaf = nil
			return false
		}
		i := findChildIndex(n.branch, key)
		c.stack = append(c.stack, cursorFrame{node: n, idx: i})
		child, err := c.t.loadChild(&n.branch[i])
		if err != nil {
			c.err = err
			return false
		}
		n = child
	}
	c.leaf = n
	return true
}

// moveToNextLeaf advances the cursor to the next leaf in key order by
// backtracking up the stack to the first frame with an unvisited right
// sibling, then descending leftmost from there. Returns false once the
// whole tree has been exhausted.
func (c *Cursor) moveToNextLeaf() bool {
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		if top.idx+1 < len(top.node.branch) {
			top.idx++
			child, err := c.t.loadChild(&top.node.branch[top.idx])
			if err != nil {
				c.err = err
				return false
			}
			return c.descendLeftmost(child)
		}
		c.stack = c.stack[:len(c.stack)-1]
	}
	return false
}

// SeekToFirst positions the cursor at the smallest key in the table.
func (c *Cursor) SeekToFirst() {
	c.stack = nil
	c.err = nil
	if !c.descendLeftmost(c.t.root) {
		c.valid = false
		return
	}
	c.advance()
}

// SeekToLast positions the cursor at the largest key in the table.
func (c *Cursor) SeekToLast() {
	c.stack = nil
	c.err = nil
	n := c.t.root
	for n.level > 0 {
		if len(n.branch) == 0 {
			c.valid = false
			return
		}
		i := len(n.branch) - 1
		c.stack = append(c.stack, cursorFrame{node: n, idx: i})
		child, err := c.t.loadChild(&n.branch[i])
		if err != nil {
			c.err = err
			c.valid = false
			return
		}
		n = child
	}
	c.leaf = n
	if len(n.items) == 0 {
		c.valid = false
		return
	}
	// Back up to the start of the last entry's component run.
	i := len(n.items) - 1
	for i > 0 && n.items[i].Flags&block.FlagFirstComponent == 0 {
		i--
	}
	c.idx = i
	c.advance()
}

// Seek positions the cursor at the first entry with key >= target.
func (c *Cursor) Seek(target []byte) {
	c.stack = nil
	c.err = nil
	if !c.descendTo(c.t.root, target) {
		c.valid = false
		return
	}
	i := 0
	for i < len(c.leaf.items) && bytes.Compare(c.leaf.items[i].Key, target) < 0 {
		i++
	}
	c.idx = i
	if c.idx >= len(c.leaf.items) {
		if !c.moveToNextLeaf() {
			c.valid = false
			return
		}
	}
	c.advance()
}

// Next advances to the following entry.
func (c *Cursor) Next() {
	if !c.valid {
		return
	}
	c.advance()
}

// Prev moves to the preceding entry. Cursor is optimized for forward
// iteration (the table's only real access patterns are skip_to and
// sequential scan); Prev is implemented as a restart-from-start scan
// that stops one entry short of the current position.
func (c *Cursor) Prev() {
	if c.err != nil {
		return
	}
	if !c.valid {
		c.SeekToLast()
		return
	}
	target := append([]byte(nil), c.key...)
	c.SeekToFirst()
	if !c.valid {
		return
	}
	var prevKey, prevValue []byte
	found := false
	for c.valid {
		if bytes.Equal(c.key, target) {
			found = true
			break
		}
		prevKey, prevValue = c.key, c.value
		c.Next()
	}
	if !found || prevKey == nil {
		c.valid = false
		return
	}
	c.key, c.value, c.valid = prevKey, prevValue, true
}

// advance decodes the entry starting at c.idx in c.leaf, reassembling
// and decompressing a multi-component tag (possibly continuing into
// following leaves) and leaving c.idx positioned just past it.
func (c *Cursor) advance() {
	if c.leaf == nil || c.idx >= len(c.leaf.items) {
		if !c.moveToNextLeaf() {
			c.valid = false
			return
		}
	}
	it := c.leaf.items[c.idx]
	c.key = it.Key
	val := append([]byte(nil), it.Value...)
	compressed := it.Flags&block.FlagCompressed != 0
	last := it.Flags&block.FlagLastComponent != 0
	c.idx++

	for !last {
		if c.idx >= len(c.leaf.items) {
			if !c.moveToNextLeaf() {
				c.err = ErrCorrupt
				c.valid = false
				return
			}
		}
		next := c.leaf.items[c.idx]
		val = append(val, next.Value...)
		last = next.Flags&block.FlagLastComponent != 0
		c.idx++
	}

	if compressed {
		dec, err := compression.Decompress(compression.ZlibCompression, val)
		if err != nil {
			c.err = err
			c.valid = false
			return
		}
		val = dec
	}
	c.value = val
	c.valid = true
}

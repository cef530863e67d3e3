package postlist

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/glassdb/glassdb/internal/encoding"
)

// ErrCorruptValueChunk means a value-stream chunk's tag could not be
// decoded.
var ErrCorruptValueChunk = errors.New("postlist: corrupt value-stream chunk")

// ValueEntry is one (docid, opaque value) entry of a value slot's
// stream.
type ValueEntry struct {
	DocID uint64
	Value []byte
}

// EncodeValueChunk encodes entries (sorted ascending by DocID) as a
// value-stream chunk's tag: a last-chunk flag byte, then delta-coded
// (docid-delta, pack_uint(len), value-bytes) triples. prevDocID is the
// docid immediately preceding entries[0] — the chunk's own first docid
// minus one, matching its key.
func EncodeValueChunk(last bool, prevDocID uint64, entries []ValueEntry) []byte {
	var tag []byte
	if last {
		tag = append(tag, 1)
	} else {
		tag = append(tag, 0)
	}
	prev := prevDocID
	for _, e := range entries {
		tag = encoding.PackUint(tag, e.DocID-prev)
		tag = encoding.PackUint(tag, uint64(len(e.Value)))
		tag = append(tag, e.Value...)
		prev = e.DocID
	}
	return tag
}

// DecodeValueChunk parses a value-stream chunk's tag. firstDocID is the
// chunk's first docid, taken from its key.
func DecodeValueChunk(tag []byte, firstDocID uint64) (last bool, entries []ValueEntry, err error) {
	if len(tag) < 1 {
		return false, nil, ErrCorruptValueChunk
	}
	last = tag[0] != 0
	buf := tag[1:]
	prev := firstDocID - 1
	for len(buf) > 0 {
		delta, rest, uerr := encoding.UnpackUint(buf)
		if uerr != nil {
			return false, nil, errors.Join(ErrCorruptValueChunk, uerr)
		}
		vlen, rest2, uerr := encoding.UnpackUint(rest)
		if uerr != nil {
			return false, nil, errors.Join(ErrCorruptValueChunk, uerr)
		}
		if uint64(len(rest2)) < vlen {
			return false, nil, ErrCorruptValueChunk
		}
		value := append([]byte(nil), rest2[:vlen]...)
		prev += delta
		entries = append(entries, ValueEntry{DocID: prev, Value: value})
		buf = rest2[vlen:]
	}
	return last, entries, nil
}

// SplitValueEntriesIntoChunks groups entries (sorted ascending by
// DocID) into runs whose encoded size stays close to ChunkSizeTarget,
// the same way SplitIntoChunks does for postings.
func SplitValueEntriesIntoChunks(entries []ValueEntry, targetSize int) [][]ValueEntry {
	if len(entries) == 0 {
		return nil
	}
	var groups [][]ValueEntry
	start := 0
	size := 0
	prev := entries[0].DocID - 1
	for i, e := range entries {
		entrySize := encoding.VarintLength(e.DocID-prev) + encoding.VarintLength(uint64(len(e.Value))) + len(e.Value)
		if size+entrySize > targetSize && i > start {
			groups = append(groups, entries[start:i])
			start = i
			size = 0
			prev = e.DocID - 1
			entrySize = encoding.VarintLength(e.DocID-prev) + encoding.VarintLength(uint64(len(e.Value))) + len(e.Value)
		}
		size += entrySize
		prev = e.DocID
	}
	groups = append(groups, entries[start:])
	return groups
}

// valueEdit stages a pending change to one docid's value in a slot's
// stream; delete is a tombstone (remove the value outright).
type valueEdit struct {
	value  []byte
	delete bool
}

// ValueUpdater stages edits to one value slot's stream and merges them
// in a single pass at Commit, analogous to the per-term posting merge
// in postlist.go and the doclen merge in doclen.go: since a value slot
// is logically an independent column sharing the postlist table's key
// space, it gets its own small staging area rather than riding the
// Inverter's term/doclen edits.
//
// Xapian's ValueUpdater enforces each chunk's docid range in place as
// it merges, rewriting only the touched chunks. This implementation
// instead reads every existing chunk for the slot, applies the pending
// edits in memory, and re-splits the whole merged stream — the same
// whole-list-rebuild simplification used elsewhere in this package.
type ValueUpdater struct {
	p       *Postlist
	slot    uint32
	pending map[uint64]valueEdit
}

// ValueUpdater returns an updater for slot, sharing p's underlying
// table.
func (p *Postlist) ValueUpdater(slot uint32) *ValueUpdater {
	return &ValueUpdater{p: p, slot: slot, pending: make(map[uint64]valueEdit)}
}

// SetValue stages docid's value as value, replacing any prior value.
func (u *ValueUpdater) SetValue(docID uint64, value []byte) {
	u.pending[docID] = valueEdit{value: append([]byte(nil), value...)}
}

// RemoveValue stages removal of docid's value.
func (u *ValueUpdater) RemoveValue(docID uint64) {
	u.pending[docID] = valueEdit{delete: true}
}

// GetValue returns docid's current value, bypassing any uncommitted
// pending edit.
func (u *ValueUpdater) GetValue(docID uint64) ([]byte, bool, error) {
	entries, _, err := u.readChunks()
	if err != nil {
		return nil, false, err
	}
	for _, e := range entries {
		if e.DocID == docID {
			return e.Value, true, nil
		}
	}
	return nil, false, nil
}

func (u *ValueUpdater) readChunks() (entries []ValueEntry, chunkKeys [][]byte, err error) {
	prefix := valueStreamPrefix(u.slot)
	c := u.p.t.NewCursor()
	c.Seek(prefix)
	for c.Valid() {
		key := c.Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		_, firstDocID, serr := SplitValueStreamKey(key)
		if serr != nil {
			return nil, nil, serr
		}
		_, chunk, derr := DecodeValueChunk(c.Value(), firstDocID)
		if derr != nil {
			return nil, nil, derr
		}
		entries = append(entries, chunk...)
		chunkKeys = append(chunkKeys, append([]byte(nil), key...))
		c.Next()
	}
	if err := c.Error(); err != nil {
		return nil, nil, err
	}
	return entries, chunkKeys, nil
}

// Commit applies every staged edit and rewrites the slot's chunks.
func (u *ValueUpdater) Commit() error {
	if len(u.pending) == 0 {
		return nil
	}
	entries, oldKeys, err := u.readChunks()
	if err != nil {
		return err
	}

	byDocID := make(map[uint64]ValueEntry, len(entries))
	for _, e := range entries {
		byDocID[e.DocID] = e
	}
	for docID, edit := range u.pending {
		if edit.delete {
			delete(byDocID, docID)
		} else {
			byDocID[docID] = ValueEntry{DocID: docID, Value: edit.value}
		}
	}

	merged := make([]ValueEntry, 0, len(byDocID))
	for _, e := range byDocID {
		merged = append(merged, e)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].DocID < merged[j].DocID })

	for _, k := range oldKeys {
		if _, err := u.p.t.Del(k); err != nil {
			return err
		}
	}
	u.pending = make(map[uint64]valueEdit)
	if len(merged) == 0 {
		return nil
	}

	groups := SplitValueEntriesIntoChunks(merged, ChunkSizeTarget)
	for i, g := range groups {
		last := i == len(groups)-1
		tag := EncodeValueChunk(last, g[0].DocID-1, g)
		key := ValueStreamKey(u.slot, g[0].DocID)
		if err := u.p.t.Add(key, tag, false); err != nil {
			return fmt.Errorf("postlist: writing value-stream chunk: %w", err)
		}
	}
	return nil
}

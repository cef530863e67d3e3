// Package termlist implements glassdb's termlist table: for each
// document, the sorted set of terms occurring in it together with each
// term's within-document frequency (wdf), plus the document's total
// length (the sum of all its terms' wdfs, stored explicitly for O(1)
// access rather than summed on read).
//
// Grounded on xapian-core/backends/glass/glass_termlisttable.{h,cc} and
// glass_termlist.{h,cc}: the key (sort-preserving docid), the
// doclen/termlist_size header, and the prefix-compressed per-term
// entries (shared-prefix length, appended suffix, wdf) all follow that
// source. One deliberate simplification from it is documented in
// EncodeEntries below.
package termlist

import (
	"errors"

	"github.com/glassdb/glassdb/internal/encoding"
	"github.com/glassdb/glassdb/internal/table"
)

// ErrCorrupt means a termlist tag could not be decoded.
var ErrCorrupt = errors.New("termlist: corrupt tag")

// Entry is one term's entry in a document's termlist.
type Entry struct {
	Term []byte
	WDF  uint32
}

// Key builds the key for docID's termlist entry.
func Key(docID uint64) []byte {
	return encoding.PackUintPreservingSort(nil, docID)
}

// EncodeEntries encodes doclen and entries (which must be sorted
// ascending by Term) as a termlist tag.
//
// Each entry after the header is a reuse/prefix byte (the length of the
// prefix shared with the previous term, capped at 255 — the same bound
// as a key's own maximum length), an append-length byte, the appended
// suffix bytes, and the wdf. Xapian's own encoding additionally folds a
// small wdf into spare bits of the prefix byte when it fits; this
// implementation always stores the wdf as its own pack_uint instead —
// slightly larger on the wire, but avoiding a second, value-dependent
// interpretation of the same byte. See DESIGN.md.
func EncodeEntries(doclen uint64, entries []Entry) []byte {
	tag := encoding.PackUint(nil, doclen)
	tag = encoding.PackUint(tag, uint64(len(entries)))

	var prev []byte
	for _, e := range entries {
		prefixLen := commonPrefixLen(prev, e.Term)
		if prefixLen > 255 {
			prefixLen = 255
		}
		suffix := e.Term[prefixLen:]
		tag = append(tag, byte(prefixLen), byte(len(suffix)))
		tag = append(tag, suffix...)
		tag = encoding.PackUint(tag, uint64(e.WDF))
		prev = e.Term
	}
	return tag
}

// DecodeEntries decodes a termlist tag back into its doclen and sorted
// entries.
func DecodeEntries(tag []byte) (doclen uint64, entries []Entry, err error) {
	doclen, rest, err := encoding.UnpackUint(tag)
	if err != nil {
		return 0, nil, errJoin(err)
	}
	count, rest, err := encoding.UnpackUint(rest)
	if err != nil {
		return 0, nil, errJoin(err)
	}

	entries = make([]Entry, 0, count)
	var prev []byte
	for i := uint64(0); i < count; i++ {
		if len(rest) < 2 {
			return 0, nil, ErrCorrupt
		}
		prefixLen := int(rest[0])
		suffixLen := int(rest[1])
		rest = rest[2:]
		if prefixLen > len(prev) || suffixLen > len(rest) {
			return 0, nil, ErrCorrupt
		}
		term := make([]byte, 0, prefixLen+suffixLen)
		term = append(term, prev[:prefixLen]...)
		term = append(term, rest[:suffixLen]...)
		rest = rest[suffixLen:]

		wdf, r2, err := encoding.UnpackUint(rest)
		if err != nil {
			return 0, nil, errJoin(err)
		}
		rest = r2

		entries = append(entries, Entry{Term: term, WDF: uint32(wdf)})
		prev = term
	}
	return doclen, entries, nil
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func errJoin(err error) error { return errors.Join(ErrCorrupt, err) }

type pendingEdit struct {
	doclen  uint64
	entries []Entry
	delete  bool
}

// Termlist wraps the termlist table.Table, staging writes in memory
// and only touching the table at Commit.
type Termlist struct {
	t       *table.Table
	pending map[uint64]pendingEdit
}

// Open wraps an already-opened termlist table.Table.
func Open(t *table.Table) *Termlist {
	return &Termlist{t: t, pending: make(map[uint64]pendingEdit)}
}

// Table returns the underlying table, for callers (the database
// facade) that need Commit/FlushDB/Cancel.
func (tl *Termlist) Table() *table.Table { return tl.t }

// Set stages docID's termlist (entries must be sorted ascending by
// Term), for writing at the next Commit.
func (tl *Termlist) Set(docID uint64, doclen uint64, entries []Entry) {
	tl.pending[docID] = pendingEdit{doclen: doclen, entries: entries}
}

// Remove stages the removal of docID's termlist entry.
func (tl *Termlist) Remove(docID uint64) {
	tl.pending[docID] = pendingEdit{delete: true}
}

// Get reads docID's termlist directly from the table, bypassing any
// pending (not yet committed) edit.
func (tl *Termlist) Get(docID uint64) (doclen uint64, entries []Entry, found bool, err error) {
	tag, found, err := tl.t.GetExactEntry(Key(docID))
	if err != nil || !found {
		return 0, nil, found, err
	}
	doclen, entries, err = DecodeEntries(tag)
	return doclen, entries, true, err
}

// Commit flushes every pending termlist edit into the table. Like
// postlist.Postlist.Commit, it does not call table.Table.FlushDB/Commit
// itself — that is the database facade's job.
func (tl *Termlist) Commit() error {
	for docID, e := range tl.pending {
		key := Key(docID)
		if e.delete {
			if _, err := tl.t.Del(key); err != nil {
				return err
			}
			continue
		}
		if err := tl.t.Add(key, EncodeEntries(e.doclen, e.entries), false); err != nil {
			return err
		}
	}
	tl.pending = make(map[uint64]pendingEdit)
	return nil
}

// Package docdata implements glassdb's document data table: one opaque
// user-supplied payload per document, keyed by docid.
//
// Grounded on xapian-core/backends/glass/glass_docdatatable.{h,cc}: the
// key (sort-preserving docid) and the "empty payload is simply omitted,
// not stored as an empty entry" rule both follow that source.
package docdata

import (
	"github.com/glassdb/glassdb/internal/encoding"
	"github.com/glassdb/glassdb/internal/table"
)

// Key builds the key for docID's data entry.
func Key(docID uint64) []byte {
	return encoding.PackUintPreservingSort(nil, docID)
}

type pendingEdit struct {
	data   []byte
	delete bool
}

// Docdata wraps the docdata table.Table, staging writes in memory and
// only touching the table at Commit.
type Docdata struct {
	t       *table.Table
	pending map[uint64]pendingEdit
}

// Open wraps an already-opened docdata table.Table.
func Open(t *table.Table) *Docdata {
	return &Docdata{t: t, pending: make(map[uint64]pendingEdit)}
}

// Table returns the underlying table, for callers (the database
// facade) that need Commit/FlushDB/Cancel.
func (d *Docdata) Table() *table.Table { return d.t }

// Set stages docID's data payload, for writing at the next Commit. An
// empty payload is equivalent to Remove, matching Xapian's rule that
// empty document data is never stored.
func (d *Docdata) Set(docID uint64, data []byte) {
	if len(data) == 0 {
		d.Remove(docID)
		return
	}
	d.pending[docID] = pendingEdit{data: append([]byte(nil), data...)}
}

// Remove stages the removal of docID's data entry.
func (d *Docdata) Remove(docID uint64) {
	d.pending[docID] = pendingEdit{delete: true}
}

// Get reads docID's data payload directly from the table, bypassing
// any pending (not yet committed) edit. A document with no stored
// payload returns found == false, not an empty slice.
func (d *Docdata) Get(docID uint64) (data []byte, found bool, err error) {
	return d.t.GetExactEntry(Key(docID))
}

// Commit flushes every pending docdata edit into the table. Like
// postlist.Postlist.Commit, it does not call table.Table.FlushDB/Commit
// itself — that is the database facade's job.
func (d *Docdata) Commit() error {
	for docID, e := range d.pending {
		key := Key(docID)
		if e.delete {
			if _, err := d.t.Del(key); err != nil {
				return err
			}
			continue
		}
		if err := d.t.Add(key, e.data, false); err != nil {
			return err
		}
	}
	d.pending = make(map[uint64]pendingEdit)
	return nil
}

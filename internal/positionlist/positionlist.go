package positionlist

import "github.com/glassdb/glassdb/internal/table"

type pendingEdit struct {
	key       []byte
	positions []uint64
	delete    bool
}

// Positionlist wraps the position table.Table with the key layout and
// tag codec in this package's doc comment. Like postlist.Postlist, it
// stages writes in memory and only touches the table at Commit.
type Positionlist struct {
	t       *table.Table
	pending map[string]pendingEdit
}

// Open wraps an already-opened position table.Table.
func Open(t *table.Table) *Positionlist {
	return &Positionlist{t: t, pending: make(map[string]pendingEdit)}
}

// Table returns the underlying table, for callers (the database
// facade) that need Commit/FlushDB/Cancel.
func (pl *Positionlist) Table() *table.Table { return pl.t }

// SetPositions stages term's positionlist in docID as positions
// (replacing any prior positions for that pair), for writing at the
// next Commit.
func (pl *Positionlist) SetPositions(term []byte, docID uint64, positions []uint64) {
	key := Key(term, docID)
	pl.pending[string(key)] = pendingEdit{key: key, positions: append([]uint64(nil), positions...)}
}

// RemovePositions stages the removal of term's positionlist in docID.
func (pl *Positionlist) RemovePositions(term []byte, docID uint64) {
	key := Key(term, docID)
	pl.pending[string(key)] = pendingEdit{key: key, delete: true}
}

// GetPositions reads term's positionlist in docID directly from the
// table, bypassing any pending (not yet committed) edit.
func (pl *Positionlist) GetPositions(term []byte, docID uint64) ([]uint64, bool, error) {
	tag, found, err := pl.t.GetExactEntry(Key(term, docID))
	if err != nil || !found {
		return nil, found, err
	}
	positions, err := Decode(tag)
	return positions, true, err
}

// Iterator returns an Iterator over term's positionlist in docID,
// bypassing any pending edit. ok is false if no such list exists.
func (pl *Positionlist) Iterator(term []byte, docID uint64) (it *Iterator, ok bool, err error) {
	tag, found, err := pl.t.GetExactEntry(Key(term, docID))
	if err != nil || !found {
		return nil, found, err
	}
	it, err = NewIterator(tag)
	return it, true, err
}

// Commit flushes every pending positionlist edit into the table. Like
// postlist.Postlist.Commit, it does not call table.Table.FlushDB/Commit
// itself — that is the database facade's job.
func (pl *Positionlist) Commit() error {
	for _, e := range pl.pending {
		if e.delete {
			if _, err := pl.t.Del(e.key); err != nil {
				return err
			}
			continue
		}
		if err := pl.t.Add(e.key, Encode(e.positions), false); err != nil {
			return err
		}
	}
	pl.pending = make(map[string]pendingEdit)
	return nil
}

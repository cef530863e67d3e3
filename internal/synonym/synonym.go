// Package synonym implements glassdb's synonym table: for each source
// term, the sorted set of terms it's considered a synonym of.
//
// Grounded on xapian-core/backends/glass/glass_synonymtable.{h,cc}: the
// key (the source term verbatim) and the `(len-byte XOR 0x60, bytes)`
// pair encoding of the synonym set both follow that source.
package synonym

import (
	"bytes"
	"errors"
	"sort"

	"github.com/glassdb/glassdb/internal/table"
)

// ErrCorrupt means a synonym table entry could not be decoded.
var ErrCorrupt = errors.New("synonym: corrupt entry")

// Key builds the key for term's synonym set entry.
func Key(term []byte) []byte { return append([]byte(nil), term...) }

// Encode encodes synonyms (sorted ascending) as a synonym-set tag: a
// concatenation of (length byte XOR 0x60, the bytes) pairs.
func Encode(synonyms [][]byte) []byte {
	var buf []byte
	for _, s := range synonyms {
		n := len(s)
		if n > 255 {
			n = 255
		}
		buf = append(buf, byte(n)^0x60)
		buf = append(buf, s[:n]...)
	}
	return buf
}

// Decode decodes a synonym-set tag back into its sorted synonyms.
func Decode(tag []byte) ([][]byte, error) {
	var out [][]byte
	for len(tag) > 0 {
		n := int(tag[0] ^ 0x60)
		tag = tag[1:]
		if n > len(tag) {
			return nil, ErrCorrupt
		}
		out = append(out, append([]byte(nil), tag[:n]...))
		tag = tag[n:]
	}
	return out, nil
}

// Synonym wraps the synonym table.Table. Like spelling, edits apply
// directly: a synonym set is always read-modified-rewritten whole, so
// there's no benefit to staging edits until a Commit.
type Synonym struct {
	t *table.Table
}

// Open wraps an already-opened synonym table.Table.
func Open(t *table.Table) *Synonym { return &Synonym{t: t} }

// Table returns the underlying table, for callers (the database
// facade) that need Commit/FlushDB/Cancel.
func (s *Synonym) Table() *table.Table { return s.t }

// Get returns term's synonym set.
func (s *Synonym) Get(term []byte) ([][]byte, bool, error) {
	tag, found, err := s.t.GetExactEntry(Key(term))
	if err != nil || !found {
		return nil, found, err
	}
	syns, err := Decode(tag)
	return syns, true, err
}

// Add adds synonym to term's synonym set.
func (s *Synonym) Add(term, synonym []byte) error {
	syns, _, err := s.Get(term)
	if err != nil {
		return err
	}
	i := sort.Search(len(syns), func(i int) bool { return bytes.Compare(syns[i], synonym) >= 0 })
	if i < len(syns) && bytes.Equal(syns[i], synonym) {
		return nil
	}
	syns = append(syns, nil)
	copy(syns[i+1:], syns[i:])
	syns[i] = append([]byte(nil), synonym...)
	return s.t.Add(Key(term), Encode(syns), false)
}

// Remove removes synonym from term's synonym set, deleting the entry
// entirely once its set becomes empty.
func (s *Synonym) Remove(term, synonym []byte) error {
	syns, found, err := s.Get(term)
	if err != nil || !found {
		return err
	}
	i := sort.Search(len(syns), func(i int) bool { return bytes.Compare(syns[i], synonym) >= 0 })
	if i >= len(syns) || !bytes.Equal(syns[i], synonym) {
		return nil
	}
	syns = append(syns[:i], syns[i+1:]...)
	if len(syns) == 0 {
		_, err := s.t.Del(Key(term))
		return err
	}
	return s.t.Add(Key(term), Encode(syns), false)
}

// RemoveAll deletes term's entire synonym set.
func (s *Synonym) RemoveAll(term []byte) error {
	_, err := s.t.Del(Key(term))
	return err
}

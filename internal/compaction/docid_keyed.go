package compaction

import (
	"github.com/glassdb/glassdb/internal/encoding"
	"github.com/glassdb/glassdb/internal/table"
)

// MergeDocIDKeyed merges sources whose keys are a bare
// sort-preserving-docid with no further structure — the termlist and
// docdata tables. Since such keys are already strictly docid-ordered,
// concatenating each source after rewriting its keys under the new,
// offset docid space suffices; there is no content to merge, since a
// disjoint docid space means no destination key is ever written twice.
func MergeDocIDKeyed(dest *table.Table, sources []Source) error {
	for _, src := range sources {
		c, err := src.cursor()
		if err != nil {
			return err
		}
		c.SeekToFirst()
		for c.Valid() {
			newKey, err := rebaseDocIDKey(c.Key(), src.DocIDOffset)
			if err != nil {
				return err
			}
			if err := dest.Add(newKey, append([]byte(nil), c.Value()...), false); err != nil {
				return err
			}
			c.Next()
		}
		if err := c.Error(); err != nil {
			return err
		}
	}
	return nil
}

// MergePositionKeyed merges sources whose keys are
// sort-preserving-string(term) + sort-preserving-docid — the position
// table. The docid suffix is rebased the same way as MergeDocIDKeyed;
// the term prefix and the tag (positions are offsets within a document,
// unaffected by which docid the document ends up at) pass through
// unchanged.
func MergePositionKeyed(dest *table.Table, sources []Source) error {
	for _, src := range sources {
		c, err := src.cursor()
		if err != nil {
			return err
		}
		c.SeekToFirst()
		for c.Valid() {
			newKey, err := rebaseTermDocIDKey(c.Key(), src.DocIDOffset)
			if err != nil {
				return err
			}
			if err := dest.Add(newKey, append([]byte(nil), c.Value()...), false); err != nil {
				return err
			}
			c.Next()
		}
		if err := c.Error(); err != nil {
			return err
		}
	}
	return nil
}

func rebaseDocIDKey(key []byte, offset uint64) ([]byte, error) {
	did, rest, err := encoding.UnpackUintPreservingSort(key)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrCorruptKey
	}
	return encoding.PackUintPreservingSort(nil, did+offset), nil
}

func rebaseTermDocIDKey(key []byte, offset uint64) ([]byte, error) {
	term, rest, err := encoding.UnpackStringPreservingSort(key)
	if err != nil {
		return nil, err
	}
	did, rest, err := encoding.UnpackUintPreservingSort(rest)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrCorruptKey
	}
	k := encoding.PackStringPreservingSort(nil, term)
	return encoding.PackUintPreservingSort(k, did+offset), nil
}

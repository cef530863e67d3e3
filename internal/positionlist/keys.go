// Package positionlist implements glassdb's position table: for each
// (term, document) pair where the term occurs, the sorted list of
// within-document token positions it occurs at.
//
// Grounded on xapian-core/backends/glass/glass_positionlist.{h,cc}: the
// key layout (sort-preserving term, then sort-preserving docid) and the
// single-position/multi-position tag shapes, including the
// interpolative-coded middle run, follow that source directly.
package positionlist

import "github.com/glassdb/glassdb/internal/encoding"

// Key builds the key for term's positionlist in docID.
func Key(term []byte, docID uint64) []byte {
	k := encoding.PackStringPreservingSort(nil, term)
	return encoding.PackUintPreservingSort(k, docID)
}

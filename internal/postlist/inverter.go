package postlist

import "sort"

// postingEdit is one pending change to a single (term, docid) posting.
type postingEdit struct {
	delete bool
	wdf    uint32
}

// Inverter buffers every posting-list change accumulated by a writable
// handle between commits, keyed by term and then by docid, so that
// mergeTerm only has to touch the chunks of terms actually modified this
// transaction.
//
// Grounded on xapian-core/backends/glass/glass_postlist.h's Inverter: a
// std::map<string, PostingChanges> staged in memory and flushed
// term-by-term at commit, rather than touching the B-tree on every
// posting add/remove.
type Inverter struct {
	terms map[string]map[uint64]postingEdit

	docCountDelta int64
	doclenEdits   map[uint64]doclenEdit
}

type doclenEdit struct {
	delete bool
	length uint64
}

// NewInverter returns an empty Inverter.
func NewInverter() *Inverter {
	return &Inverter{
		terms:       make(map[string]map[uint64]postingEdit),
		doclenEdits: make(map[uint64]doclenEdit),
	}
}

// AddPosting records that docid now carries wdf occurrences of term.
func (inv *Inverter) AddPosting(term []byte, docID uint64, wdf uint32) {
	inv.editsFor(term)[docID] = postingEdit{wdf: wdf}
}

// RemovePosting records that docid no longer carries term at all.
func (inv *Inverter) RemovePosting(term []byte, docID uint64) {
	inv.editsFor(term)[docID] = postingEdit{delete: true}
}

func (inv *Inverter) editsFor(term []byte) map[uint64]postingEdit {
	key := string(term)
	m, ok := inv.terms[key]
	if !ok {
		m = make(map[uint64]postingEdit)
		inv.terms[key] = m
	}
	return m
}

// SetDocLength records docid's new total document length.
func (inv *Inverter) SetDocLength(docID uint64, length uint64) {
	inv.doclenEdits[docID] = doclenEdit{length: length}
}

// RemoveDocLength records that docid no longer exists.
func (inv *Inverter) RemoveDocLength(docID uint64) {
	inv.doclenEdits[docID] = doclenEdit{delete: true}
	inv.docCountDelta--
}

// MarkNewDoc records that docid is a newly created document (affects
// doccount bookkeeping; SetDocLength must also be called for it).
func (inv *Inverter) MarkNewDoc() { inv.docCountDelta++ }

// ModifiedTerms returns every term with at least one pending posting
// edit, in sorted order (so commit processes terms deterministically).
func (inv *Inverter) ModifiedTerms() []string {
	terms := make([]string, 0, len(inv.terms))
	for t := range inv.terms {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Reset clears all pending edits, called after a successful commit.
func (inv *Inverter) Reset() {
	inv.terms = make(map[string]map[uint64]postingEdit)
	inv.doclenEdits = make(map[uint64]doclenEdit)
	inv.docCountDelta = 0
}

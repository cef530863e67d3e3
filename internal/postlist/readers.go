package postlist

import "github.com/glassdb/glassdb/internal/table"

// TermFreq returns the number of documents term occurs in.
func (p *Postlist) TermFreq(term []byte) (uint64, error) {
	tag, found, err := p.t.GetExactEntry(TermInitialKey(term))
	if err != nil || !found {
		return 0, err
	}
	chunk, err := DecodeInitialChunk(tag)
	if err != nil {
		return 0, err
	}
	return chunk.TermFreq, nil
}

// CollectionFreq returns the total number of occurrences of term across
// the whole collection.
func (p *Postlist) CollectionFreq(term []byte) (uint64, error) {
	tag, found, err := p.t.GetExactEntry(TermInitialKey(term))
	if err != nil || !found {
		return 0, err
	}
	chunk, err := DecodeInitialChunk(tag)
	if err != nil {
		return 0, err
	}
	return chunk.CollectionFreq, nil
}

// PostingIterator walks one term's postings in ascending docid order,
// decoding chunk-by-chunk as the underlying cursor advances past a
// chunk's last entry.
type PostingIterator struct {
	term    []byte
	c       *table.Cursor
	started bool
	pending []Posting
	current Posting
	err     error
}

// PostingIterator returns an iterator over term's postings, positioned
// before the first one.
func (p *Postlist) PostingIterator(term []byte) *PostingIterator {
	return &PostingIterator{term: append([]byte(nil), term...), c: p.t.NewCursor()}
}

// Next advances to the next posting, returning false once the term's
// postings are exhausted (or an error occurred — check Error).
func (it *PostingIterator) Next() bool {
	for {
		if len(it.pending) > 0 {
			it.current = it.pending[0]
			it.pending = it.pending[1:]
			return true
		}

		if !it.started {
			it.started = true
			it.c.Seek(TermInitialKey(it.term))
		} else if it.c.Valid() {
			it.c.Next()
		}
		if !it.c.Valid() {
			return false
		}

		term, firstDocID, hasDocID, err := SplitTermKey(it.c.Key())
		if err != nil {
			it.err = err
			return false
		}
		if string(term) != string(it.term) {
			return false
		}

		var chunk Chunk
		if !hasDocID {
			chunk, err = DecodeInitialChunk(it.c.Value())
		} else {
			chunk, err = DecodeContinuationChunk(it.c.Value(), firstDocID)
		}
		if err != nil {
			it.err = err
			return false
		}
		it.pending = chunk.Postings
	}
}

// Posting returns the current posting; valid only after Next returns
// true.
func (it *PostingIterator) Posting() Posting { return it.current }

// Error returns any error encountered while iterating.
func (it *PostingIterator) Error() error { return it.err }

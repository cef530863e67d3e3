package postlist

import (
	"fmt"

	"github.com/glassdb/glassdb/internal/encoding"
)

// readDoclenChunks collects every existing (docid, doclen) entry, in
// ascending docid order, and the keys of the chunks holding them.
// doclen's "wdf" field in the shared Posting type holds the document
// length.
func (p *Postlist) readDoclenChunks() (entries []Posting, chunkKeys [][]byte, err error) {
	c := p.t.NewCursor()
	c.Seek(DoclenInitialKey())
	first := true
	for c.Valid() {
		key := c.Key()
		if len(key) == 0 || key[0] != 0x00 {
			break
		}
		if len(key) < 2 || key[1] != tagDoclen {
			break
		}
		tag := c.Value()
		if first {
			ents, derr := DecodeDoclenInitialChunk(tag)
			if derr != nil {
				return nil, nil, derr
			}
			entries = append(entries, ents...)
			first = false
		} else {
			firstDocID, derr := doclenChunkFirstDocID(key)
			if derr != nil {
				return nil, nil, derr
			}
			chunk, derr := DecodeContinuationChunk(tag, firstDocID)
			if derr != nil {
				return nil, nil, derr
			}
			entries = append(entries, chunk.Postings...)
		}
		chunkKeys = append(chunkKeys, append([]byte(nil), key...))
		c.Next()
	}
	if err := c.Error(); err != nil {
		return nil, nil, err
	}
	return entries, chunkKeys, nil
}

func doclenChunkFirstDocID(key []byte) (uint64, error) {
	did, rest, err := encoding.UnpackUintPreservingSort(key[2:])
	if err != nil {
		return 0, err
	}
	if len(rest) != 0 {
		return 0, ErrTrailingBytes
	}
	return did, nil
}

// mergeDoclen applies every pending doclen edit and rewrites the
// doclen chunks, mirroring mergeTerm's whole-list-rebuild simplification.
// It returns the final, fully-merged entry list so the caller can fold
// doccount/doclen-bound statistics from it without a second table scan.
func (p *Postlist) mergeDoclen() ([]Posting, error) {
	if len(p.inv.doclenEdits) == 0 {
		return nil, nil
	}
	entries, oldKeys, err := p.readDoclenChunks()
	if err != nil {
		return nil, err
	}

	byDocID := make(map[uint64]Posting, len(entries))
	for _, e := range entries {
		byDocID[e.DocID] = e
	}
	for docID, edit := range p.inv.doclenEdits {
		if edit.delete {
			delete(byDocID, docID)
		} else {
			byDocID[docID] = Posting{DocID: docID, WDF: uint32(edit.length)}
		}
	}

	merged := make([]Posting, 0, len(byDocID))
	for _, e := range byDocID {
		merged = append(merged, e)
	}
	sortPostings(merged)

	for _, k := range oldKeys {
		if _, err := p.t.Del(k); err != nil {
			return nil, err
		}
	}
	if len(merged) == 0 {
		return merged, nil
	}

	groups := SplitIntoChunks(merged, ChunkSizeTarget)
	if err := p.t.Add(DoclenInitialKey(), EncodeDoclenInitialChunk(groups[0]), false); err != nil {
		return nil, fmt.Errorf("postlist: writing initial doclen chunk: %w", err)
	}
	for i := 1; i < len(groups); i++ {
		g := groups[i]
		last := i == len(groups)-1
		prev := groups[i-1][len(groups[i-1])-1].DocID
		key := DoclenChunkKey(g[0].DocID)
		tag := EncodeContinuationChunk(last, prev, g)
		if err := p.t.Add(key, tag, false); err != nil {
			return nil, fmt.Errorf("postlist: writing continuation doclen chunk: %w", err)
		}
	}
	return merged, nil
}

// Doclen returns docid's document length.
func (p *Postlist) Doclen(docID uint64) (uint64, bool, error) {
	entries, _, err := p.readDoclenChunks()
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.DocID == docID {
			return uint64(e.WDF), true, nil
		}
	}
	return 0, false, nil
}

// recomputeMetaInfo rebuilds the doclen-derived fields of the MetaInfo
// record from the final, post-merge set of per-document lengths (nil if
// this commit touched no doclens) — the simplest correct way to fold an
// arbitrary batch of adds/removes/updates into lower/upper bounds and the
// running total — and raises WdfUpperBound to cover maxWDF, the largest
// wdf seen across this commit's modified terms.
func (p *Postlist) recomputeMetaInfo(merged []Posting, maxWDF uint32) error {
	m, err := p.GetMetaInfo()
	if err != nil {
		return err
	}
	if uint64(maxWDF) > m.WdfUpperBound {
		m.WdfUpperBound = uint64(maxWDF)
	}
	if merged != nil {
		m.TotalDocLen = 0
		m.DoclenLowerBound = 0
		m.DoclenUpperBound = 0
		for i, e := range merged {
			length := uint64(e.WDF)
			m.TotalDocLen += length
			if e.DocID > m.LastDocID {
				m.LastDocID = e.DocID
			}
			if i == 0 || length < m.DoclenLowerBound {
				m.DoclenLowerBound = length
			}
			if length > m.DoclenUpperBound {
				m.DoclenUpperBound = length
			}
		}
	}
	return p.SetMetaInfo(m)
}

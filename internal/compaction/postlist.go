package compaction

import (
	"bytes"
	"sort"

	"github.com/glassdb/glassdb/internal/encoding"
	"github.com/glassdb/glassdb/internal/postlist"
	"github.com/glassdb/glassdb/internal/table"
)

// MergePostlist merges sources' postlist tables into dest. Every term's
// postings, every document's length, every value slot's stats, the
// database-wide metainfo record, and user metadata are all combined; a
// user metadata key present in more than one source is resolved by
// resolveUserMeta, which receives the values in source order.
//
// Xapian's own merge streams a priority-queue of (key, first_did)
// across sources, rewriting each chunk's header as it's handed out.
// This implementation instead decodes every source's postings for a
// term (or the whole doclen table) fully into memory, rebases docids,
// and re-splits with postlist.SplitIntoChunks — the same whole-list
// simplification internal/postlist's own Commit uses for a single
// source, extended here to read N sources before splitting instead of
// one. See DESIGN.md.
func MergePostlist(dest *table.Table, sources []Source, resolveUserMeta func(key []byte, values [][]byte) []byte) error {
	m := newPostlistMerge()
	for i, src := range sources {
		if err := m.scanSource(i, src); err != nil {
			return err
		}
	}
	return m.write(dest, resolveUserMeta)
}

type postlistMerge struct {
	terms        map[string][]postlist.Posting
	doclens      []postlist.Posting
	valueStats   map[uint32]postlist.ValueStats
	valueEntries map[uint32][]postlist.ValueEntry
	userMeta     map[string][][]byte
	metaInfos    []postlist.MetaInfo
	maxWDF       uint32
}

func newPostlistMerge() *postlistMerge {
	return &postlistMerge{
		terms:        make(map[string][]postlist.Posting),
		valueStats:   make(map[uint32]postlist.ValueStats),
		valueEntries: make(map[uint32][]postlist.ValueEntry),
		userMeta:     make(map[string][][]byte),
	}
}

func (m *postlistMerge) scanSource(sourceIndex int, src Source) error {
	offset := src.DocIDOffset
	c, err := src.cursor()
	if err != nil {
		return err
	}
	c.SeekToFirst()
	for c.Valid() {
		key := c.Key()
		value := append([]byte(nil), c.Value()...)

		switch {
		case len(key) == 1 && key[0] == 0x00:
			mi, err := postlist.DecodeMetaInfo(value)
			if err != nil {
				return err
			}
			mi.LastDocID += offset
			m.metaInfos = append(m.metaInfos, mi)

		case len(key) >= 2 && key[0] == 0x00 && key[1] == postlist.TagUserMeta:
			userKey := append([]byte(nil), key[2:]...)
			m.userMeta[string(userKey)] = append(m.userMeta[string(userKey)], value)

		case len(key) >= 2 && key[0] == 0x00 && key[1] == postlist.TagValueStats:
			slot, rest, err := encoding.UnpackUintPreservingSort(key[2:])
			if err != nil || len(rest) != 0 {
				return ErrCorruptKey
			}
			vs, err := postlist.DecodeValueStats(value)
			if err != nil {
				return err
			}
			m.combineValueStats(uint32(slot), vs)

		case len(key) >= 2 && key[0] == 0x00 && key[1] == postlist.TagValueStream:
			slot, firstDocID, err := postlist.SplitValueStreamKey(key)
			if err != nil {
				return ErrCorruptKey
			}
			_, entries, err := postlist.DecodeValueChunk(value, firstDocID)
			if err != nil {
				return err
			}
			for _, e := range entries {
				m.valueEntries[slot] = append(m.valueEntries[slot], postlist.ValueEntry{DocID: e.DocID + offset, Value: e.Value})
			}

		case len(key) >= 2 && key[0] == 0x00 && key[1] == postlist.TagDoclen:
			entries, err := decodeDoclenEntry(key, value)
			if err != nil {
				return err
			}
			for _, e := range entries {
				m.doclens = append(m.doclens, postlist.Posting{DocID: e.DocID + offset, WDF: e.WDF})
			}

		default:
			term, firstDocID, hasDocID, err := postlist.SplitTermKey(key)
			if err != nil {
				return err
			}
			var chunk postlist.Chunk
			if !hasDocID {
				chunk, err = postlist.DecodeInitialChunk(value)
			} else {
				chunk, err = postlist.DecodeContinuationChunk(value, firstDocID)
			}
			if err != nil {
				return err
			}
			for _, p := range chunk.Postings {
				if p.WDF > m.maxWDF {
					m.maxWDF = p.WDF
				}
				m.terms[string(term)] = append(m.terms[string(term)], postlist.Posting{DocID: p.DocID + offset, WDF: p.WDF})
			}
		}
		c.Next()
	}
	return c.Error()
}

func (m *postlistMerge) combineValueStats(slot uint32, vs postlist.ValueStats) {
	cur, ok := m.valueStats[slot]
	if !ok {
		m.valueStats[slot] = vs
		return
	}
	cur.Freq += vs.Freq
	if bytes.Compare(vs.Lower, cur.Lower) < 0 {
		cur.Lower = vs.Lower
	}
	if bytes.Compare(vs.Upper, cur.Upper) > 0 {
		cur.Upper = vs.Upper
	}
	m.valueStats[slot] = cur
}

func decodeDoclenEntry(key, value []byte) ([]postlist.Posting, error) {
	if len(key) == 2 {
		return postlist.DecodeDoclenInitialChunk(value)
	}
	firstDocID, rest, err := encoding.UnpackUintPreservingSort(key[2:])
	if err != nil || len(rest) != 0 {
		return nil, ErrCorruptKey
	}
	chunk, err := postlist.DecodeContinuationChunk(value, firstDocID)
	if err != nil {
		return nil, err
	}
	return chunk.Postings, nil
}

func (m *postlistMerge) write(dest *table.Table, resolveUserMeta func(key []byte, values [][]byte) []byte) error {
	for userKey, values := range m.userMeta {
		v := values[0]
		if len(values) > 1 {
			v = resolveUserMeta([]byte(userKey), values)
		}
		if v == nil {
			continue
		}
		if err := dest.Add(postlist.UserMetaKey([]byte(userKey)), v, false); err != nil {
			return err
		}
	}

	for slot, vs := range m.valueStats {
		if err := dest.Add(postlist.ValueStatsKey(slot), vs.Encode(nil), false); err != nil {
			return err
		}
	}

	slots := make([]uint32, 0, len(m.valueEntries))
	for slot := range m.valueEntries {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	for _, slot := range slots {
		if err := writeValueChunks(dest, slot, m.valueEntries[slot]); err != nil {
			return err
		}
	}

	termNames := make([]string, 0, len(m.terms))
	for term := range m.terms {
		termNames = append(termNames, term)
	}
	sort.Strings(termNames)
	for _, term := range termNames {
		if err := writePostingChunks(dest, []byte(term), m.terms[term]); err != nil {
			return err
		}
	}

	if len(m.doclens) > 0 {
		sortPostings(m.doclens)
		groups := postlist.SplitIntoChunks(m.doclens, postlist.ChunkSizeTarget)
		if err := dest.Add(postlist.DoclenInitialKey(), postlist.EncodeDoclenInitialChunk(groups[0]), false); err != nil {
			return err
		}
		if err := writeContinuationChunks(dest, groups, func(firstDocID uint64) []byte {
			return postlist.DoclenChunkKey(firstDocID)
		}); err != nil {
			return err
		}
	}

	mi := combineMetaInfo(m.metaInfos, m.doclens, m.maxWDF)
	return dest.Add(postlist.MetaInfoKey(), mi.Encode(nil), false)
}

func writePostingChunks(dest *table.Table, term []byte, postings []postlist.Posting) error {
	sortPostings(postings)
	var collFreq uint64
	for _, p := range postings {
		collFreq += uint64(p.WDF)
	}
	groups := postlist.SplitIntoChunks(postings, postlist.ChunkSizeTarget)
	if err := dest.Add(postlist.TermInitialKey(term), postlist.EncodeInitialChunk(uint64(len(postings)), collFreq, groups[0]), false); err != nil {
		return err
	}
	return writeContinuationChunks(dest, groups, func(firstDocID uint64) []byte {
		return postlist.TermChunkKey(term, firstDocID)
	})
}

func writeValueChunks(dest *table.Table, slot uint32, entries []postlist.ValueEntry) error {
	sort.Slice(entries, func(i, j int) bool { return entries[i].DocID < entries[j].DocID })
	groups := postlist.SplitValueEntriesIntoChunks(entries, postlist.ChunkSizeTarget)
	for i, g := range groups {
		last := i == len(groups)-1
		tag := postlist.EncodeValueChunk(last, g[0].DocID-1, g)
		if err := dest.Add(postlist.ValueStreamKey(slot, g[0].DocID), tag, false); err != nil {
			return err
		}
	}
	return nil
}

func writeContinuationChunks(dest *table.Table, groups [][]postlist.Posting, keyFor func(firstDocID uint64) []byte) error {
	for i := 1; i < len(groups); i++ {
		g := groups[i]
		last := i == len(groups)-1
		prev := groups[i-1][len(groups[i-1])-1].DocID
		tag := postlist.EncodeContinuationChunk(last, prev, g)
		if err := dest.Add(keyFor(g[0].DocID), tag, false); err != nil {
			return err
		}
	}
	return nil
}

func sortPostings(p []postlist.Posting) {
	sort.Slice(p, func(i, j int) bool { return p[i].DocID < p[j].DocID })
}

func combineMetaInfo(metaInfos []postlist.MetaInfo, doclens []postlist.Posting, maxWDF uint32) postlist.MetaInfo {
	var mi postlist.MetaInfo
	for _, src := range metaInfos {
		if src.LastDocID > mi.LastDocID {
			mi.LastDocID = src.LastDocID
		}
		if src.WdfUpperBound > mi.WdfUpperBound {
			mi.WdfUpperBound = src.WdfUpperBound
		}
	}
	if uint64(maxWDF) > mi.WdfUpperBound {
		mi.WdfUpperBound = uint64(maxWDF)
	}
	for i, e := range doclens {
		length := uint64(e.WDF)
		mi.TotalDocLen += length
		if e.DocID > mi.LastDocID {
			mi.LastDocID = e.DocID
		}
		if i == 0 || length < mi.DoclenLowerBound {
			mi.DoclenLowerBound = length
		}
		if length > mi.DoclenUpperBound {
			mi.DoclenUpperBound = length
		}
	}
	return mi
}

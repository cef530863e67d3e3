package postlist

import (
	"errors"

	"github.com/glassdb/glassdb/internal/encoding"
)

// ErrCorruptChunk means a posting chunk's tag could not be decoded.
var ErrCorruptChunk = errors.New("postlist: corrupt posting chunk")

// ChunkSizeTarget is the approximate tag size, in bytes, a posting chunk
// is split at (spec: "chunk size target ~2000 bytes").
const ChunkSizeTarget = 2000

// Posting is one (docid, within-document frequency) entry of a term's
// posting list.
type Posting struct {
	DocID uint64
	WDF   uint32
}

// Chunk is one decoded posting chunk: either the initial chunk of a term
// (First == true, carrying TermFreq/CollectionFreq) or a continuation
// chunk (First == false).
type Chunk struct {
	First          bool
	Last           bool
	TermFreq       uint64 // meaningful only when First
	CollectionFreq uint64 // meaningful only when First
	Postings       []Posting
}

// DecodeInitialChunk parses an initial chunk's tag.
func DecodeInitialChunk(tag []byte) (Chunk, error) {
	termFreq, rest, err := encoding.UnpackUint(tag)
	if err != nil {
		return Chunk{}, errCorrupt(err)
	}
	collFreq, rest, err := encoding.UnpackUint(rest)
	if err != nil {
		return Chunk{}, errCorrupt(err)
	}
	firstDidMinus1, rest, err := encoding.UnpackUint(rest)
	if err != nil {
		return Chunk{}, errCorrupt(err)
	}
	postings, err := decodeEntries(rest, firstDidMinus1)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{
		First:          true,
		TermFreq:       termFreq,
		CollectionFreq: collFreq,
		Postings:       postings,
	}, nil
}

// DecodeContinuationChunk parses a continuation chunk's tag. firstDocID
// is the chunk's first docid, taken from the key (the tag itself doesn't
// repeat it).
func DecodeContinuationChunk(tag []byte, firstDocID uint64) (Chunk, error) {
	if len(tag) < 1 {
		return Chunk{}, ErrCorruptChunk
	}
	last := tag[0] != 0
	postings, err := decodeEntries(tag[1:], firstDocID-1)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{First: false, Last: last, Postings: postings}, nil
}

// decodeEntries decodes delta-coded (docid-delta, wdf) pairs until the
// buffer is exhausted, starting the delta chain from base (the docid one
// below the first posting).
func decodeEntries(buf []byte, base uint64) ([]Posting, error) {
	var out []Posting
	prev := base
	for len(buf) > 0 {
		delta, rest, err := encoding.UnpackUint(buf)
		if err != nil {
			return nil, errCorrupt(err)
		}
		wdf, rest2, err := encoding.UnpackUint(rest)
		if err != nil {
			return nil, errCorrupt(err)
		}
		prev += delta
		out = append(out, Posting{DocID: prev, WDF: uint32(wdf)})
		buf = rest2
	}
	return out, nil
}

func errCorrupt(err error) error {
	return errors.Join(ErrCorruptChunk, err)
}

// EncodeInitialChunk encodes postings (which must be sorted ascending by
// DocID) as an initial chunk's tag, given the term's total termfreq and
// collection_freq (which may exceed len(postings) when more postings live
// in following continuation chunks). The initial chunk's tag never needs
// a last-chunk bit of its own — whether more chunks follow is determined
// by whether a continuation key exists, not by anything in this tag.
func EncodeInitialChunk(termFreq, collFreq uint64, postings []Posting) []byte {
	var tag []byte
	tag = encoding.PackUint(tag, termFreq)
	tag = encoding.PackUint(tag, collFreq)
	if len(postings) == 0 {
		tag = encoding.PackUint(tag, 0)
		return tag
	}
	tag = encoding.PackUint(tag, postings[0].DocID-1)
	tag = encodeEntries(tag, postings[0].DocID-1, postings)
	return tag
}

// EncodeDoclenInitialChunk encodes a run of (docid, doclen) entries as
// the doclen table's headerless initial chunk: unlike a term's initial
// chunk, there is no termfreq/collection_freq to carry, so the tag is
// just the delta-coded entries with an implied base docid of 0.
func EncodeDoclenInitialChunk(entries []Posting) []byte {
	if len(entries) == 0 {
		return nil
	}
	return encodeEntries(nil, 0, entries)
}

// DecodeDoclenInitialChunk decodes the doclen table's initial chunk.
func DecodeDoclenInitialChunk(tag []byte) ([]Posting, error) {
	return decodeEntries(tag, 0)
}

// EncodeContinuationChunk encodes postings as a continuation chunk's tag.
// prevDocID is the docid immediately preceding postings[0] (either the
// chunk's own first docid minus one, matching the key, or the previous
// chunk's final docid).
func EncodeContinuationChunk(last bool, prevDocID uint64, postings []Posting) []byte {
	var tag []byte
	if last {
		tag = append(tag, 1)
	} else {
		tag = append(tag, 0)
	}
	return encodeEntries(tag, prevDocID, postings)
}

func encodeEntries(dst []byte, prev uint64, postings []Posting) []byte {
	for _, p := range postings {
		dst = encoding.PackUint(dst, p.DocID-prev)
		dst = encoding.PackUint(dst, uint64(p.WDF))
		prev = p.DocID
	}
	return dst
}

// SplitIntoChunks groups postings (sorted ascending by DocID) into runs
// whose encoded continuation-entry size is close to ChunkSizeTarget,
// without ever splitting a docid's own entry across two chunks.
func SplitIntoChunks(postings []Posting, targetSize int) [][]Posting {
	if len(postings) == 0 {
		return nil
	}
	var groups [][]Posting
	start := 0
	size := 0
	prev := postings[0].DocID - 1
	for i, p := range postings {
		entrySize := encoding.VarintLength(p.DocID-prev) + encoding.VarintLength(uint64(p.WDF))
		if size+entrySize > targetSize && i > start {
			groups = append(groups, postings[start:i])
			start = i
			size = 0
			prev = p.DocID - 1
			entrySize = encoding.VarintLength(p.DocID-prev) + encoding.VarintLength(uint64(p.WDF))
		}
		size += entrySize
		prev = p.DocID
	}
	groups = append(groups, postings[start:])
	return groups
}

// Package spelling implements glassdb's spelling-correction table: a
// word-frequency index plus a trigram-fragment index mapping
// substrings of a word to the set of known words containing them, used
// to generate spelling suggestions for a misspelled query term.
//
// Grounded on xapian-core/backends/glass/glass_spellingtable.{h,cc}:
// the two-key-space layout (`W<word>` wordfreq entries, `H/T/M/B
// <fragment>` word-set entries) and the XOR-0x60 prefix-compressed word
// list both follow that source. The exact fragment-extraction algorithm
// (which substrings of a word become head/tail/middle/bookend
// fragments) is this package's own — see DESIGN.md.
package spelling

import (
	"bytes"
	"errors"
	"sort"

	"github.com/glassdb/glassdb/internal/encoding"
	"github.com/glassdb/glassdb/internal/table"
)

// ErrCorrupt means a spelling table entry could not be decoded.
var ErrCorrupt = errors.New("spelling: corrupt entry")

// Fragment tag bytes, matching spec's "H/T/M/B<trigram>" key space.
const (
	FragHead    = 'H'
	FragTail    = 'T'
	FragMiddle  = 'M'
	FragBookend = 'B'
)

// WordFreqKey builds the key for word's frequency entry.
func WordFreqKey(word []byte) []byte {
	k := make([]byte, 0, 1+len(word))
	return append(append(k, 'W'), word...)
}

// FragmentKey builds the key for tag's word-set entry over fragment.
func FragmentKey(tag byte, fragment []byte) []byte {
	k := make([]byte, 0, 1+len(fragment))
	return append(append(k, tag), fragment...)
}

// Fragment is one (tag, fragment) pair a word indexes under.
type Fragment struct {
	Tag     byte
	Content []byte
}

// FragmentsOf returns the fragments word should be indexed under.
//
// Every word gets a head and a tail fragment (its first and last three
// bytes, or the whole word if shorter than three bytes), plus one
// middle fragment per three-byte sliding window, plus — for words of
// at least three bytes — a bookend fragment bridging the first and
// last two bytes, to catch corrections that change only the middle of
// a longer word.
func FragmentsOf(word []byte) []Fragment {
	n := len(word)
	if n == 0 {
		return nil
	}

	frags := make([]Fragment, 0, n+2)
	headLen := min(3, n)
	frags = append(frags, Fragment{FragHead, clone(word[:headLen])})
	tailLen := min(3, n)
	frags = append(frags, Fragment{FragTail, clone(word[n-tailLen:])})
	for i := 0; i+3 <= n; i++ {
		frags = append(frags, Fragment{FragMiddle, clone(word[i : i+3])})
	}
	if n >= 3 {
		b := make([]byte, 0, 3)
		b = append(b, word[0])
		b = append(b, word[n-2:]...)
		frags = append(frags, Fragment{FragBookend, b})
	} else {
		frags = append(frags, Fragment{FragBookend, clone(word)})
	}
	return frags
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }

// EncodeWordList encodes words (sorted ascending) as a prefix-compressed
// list: each entry is a shared-prefix-length byte XOR 0x60, an
// append-length byte XOR 0x60, then the appended suffix bytes.
func EncodeWordList(words [][]byte) []byte {
	var buf []byte
	var prev []byte
	for _, w := range words {
		prefixLen := commonPrefixLen(prev, w)
		if prefixLen > 255 {
			prefixLen = 255
		}
		suffix := w[prefixLen:]
		buf = append(buf, byte(prefixLen)^0x60, byte(len(suffix))^0x60)
		buf = append(buf, suffix...)
		prev = w
	}
	return buf
}

// DecodeWordList decodes a prefix-compressed word list.
func DecodeWordList(tag []byte) ([][]byte, error) {
	var words [][]byte
	var prev []byte
	for len(tag) > 0 {
		if len(tag) < 2 {
			return nil, ErrCorrupt
		}
		prefixLen := int(tag[0] ^ 0x60)
		suffixLen := int(tag[1] ^ 0x60)
		tag = tag[2:]
		if prefixLen > len(prev) || suffixLen > len(tag) {
			return nil, ErrCorrupt
		}
		w := make([]byte, 0, prefixLen+suffixLen)
		w = append(w, prev[:prefixLen]...)
		w = append(w, tag[:suffixLen]...)
		tag = tag[suffixLen:]
		words = append(words, w)
		prev = w
	}
	return words, nil
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Spelling wraps the spelling table.Table. Unlike postlist/positionlist,
// edits are applied directly (each AddWord/RemoveWord reads, modifies,
// and rewrites the affected entries immediately) rather than staged —
// a word's fragment index requires a full list read-modify-write
// regardless of batching, so there is no cost saved by deferring it to
// a Commit.
type Spelling struct {
	t *table.Table
}

// Open wraps an already-opened spelling table.Table.
func Open(t *table.Table) *Spelling { return &Spelling{t: t} }

// Table returns the underlying table, for callers (the database
// facade) that need Commit/FlushDB/Cancel.
func (s *Spelling) Table() *table.Table { return s.t }

// WordFreq returns word's frequency.
func (s *Spelling) WordFreq(word []byte) (uint64, bool, error) {
	tag, found, err := s.t.GetExactEntry(WordFreqKey(word))
	if err != nil || !found {
		return 0, found, err
	}
	freq, _, err := encoding.UnpackUint(tag)
	return freq, true, err
}

func (s *Spelling) setWordFreq(word []byte, freq uint64) error {
	return s.t.Add(WordFreqKey(word), encoding.PackUint(nil, freq), false)
}

// AddWord records one more occurrence of word, indexing it under its
// fragments the first time it's seen.
func (s *Spelling) AddWord(word []byte) error {
	freq, found, err := s.WordFreq(word)
	if err != nil {
		return err
	}
	if err := s.setWordFreq(word, freq+1); err != nil {
		return err
	}
	if found {
		return nil
	}
	for _, f := range FragmentsOf(word) {
		if err := s.addWordToFragment(f.Tag, f.Content, word); err != nil {
			return err
		}
	}
	return nil
}

// RemoveWord removes one occurrence of word, dropping it from the
// fragment index once its frequency reaches zero.
func (s *Spelling) RemoveWord(word []byte) error {
	freq, found, err := s.WordFreq(word)
	if err != nil || !found {
		return err
	}
	if freq > 1 {
		return s.setWordFreq(word, freq-1)
	}
	if _, err := s.t.Del(WordFreqKey(word)); err != nil {
		return err
	}
	for _, f := range FragmentsOf(word) {
		if err := s.removeWordFromFragment(f.Tag, f.Content, word); err != nil {
			return err
		}
	}
	return nil
}

// Candidates returns the sorted set of known words containing fragment
// under tag.
func (s *Spelling) Candidates(tag byte, fragment []byte) ([][]byte, error) {
	entry, found, err := s.t.GetExactEntry(FragmentKey(tag, fragment))
	if err != nil || !found {
		return nil, err
	}
	return DecodeWordList(entry)
}

func (s *Spelling) addWordToFragment(tag byte, fragment, word []byte) error {
	key := FragmentKey(tag, fragment)
	words, _, err := s.getWordList(key)
	if err != nil {
		return err
	}
	i := sort.Search(len(words), func(i int) bool { return bytes.Compare(words[i], word) >= 0 })
	if i < len(words) && bytes.Equal(words[i], word) {
		return nil
	}
	words = append(words, nil)
	copy(words[i+1:], words[i:])
	words[i] = clone(word)
	return s.t.Add(key, EncodeWordList(words), false)
}

func (s *Spelling) removeWordFromFragment(tag byte, fragment, word []byte) error {
	key := FragmentKey(tag, fragment)
	words, found, err := s.getWordList(key)
	if err != nil || !found {
		return err
	}
	i := sort.Search(len(words), func(i int) bool { return bytes.Compare(words[i], word) >= 0 })
	if i >= len(words) || !bytes.Equal(words[i], word) {
		return nil
	}
	words = append(words[:i], words[i+1:]...)
	if len(words) == 0 {
		_, err := s.t.Del(key)
		return err
	}
	return s.t.Add(key, EncodeWordList(words), false)
}

func (s *Spelling) getWordList(key []byte) ([][]byte, bool, error) {
	tag, found, err := s.t.GetExactEntry(key)
	if err != nil || !found {
		return nil, found, err
	}
	words, err := DecodeWordList(tag)
	return words, true, err
}

package compaction

import (
	"sort"

	"github.com/glassdb/glassdb/internal/encoding"
	"github.com/glassdb/glassdb/internal/spelling"
	"github.com/glassdb/glassdb/internal/table"
)

// MergeSpelling N-way key-merges sources' spelling tables. For
// identical keys, wordfreq entries (`W…`) are summed across sources;
// fragment entries (`H/T/M/B…`) are set-merged on their decoded word
// lists.
func MergeSpelling(dest *table.Table, sources []Source) error {
	wordFreqs := make(map[string]uint64)
	fragments := make(map[string]map[string]struct{})

	for _, src := range sources {
		c, err := src.cursor()
		if err != nil {
			return err
		}
		c.SeekToFirst()
		for c.Valid() {
			key := c.Key()
			value := c.Value()
			if len(key) == 0 {
				c.Next()
				continue
			}
			switch key[0] {
			case spelling.FragHead, spelling.FragTail, spelling.FragMiddle, spelling.FragBookend:
				words, err := spelling.DecodeWordList(value)
				if err != nil {
					return err
				}
				set, ok := fragments[string(key)]
				if !ok {
					set = make(map[string]struct{})
					fragments[string(key)] = set
				}
				for _, w := range words {
					set[string(w)] = struct{}{}
				}
			default: // 'W' word-frequency entries
				freq, _, err := encoding.UnpackUint(value)
				if err != nil {
					return err
				}
				wordFreqs[string(key)] += freq
			}
			c.Next()
		}
		if err := c.Error(); err != nil {
			return err
		}
	}

	for key, freq := range wordFreqs {
		if err := dest.Add([]byte(key), encoding.PackUint(nil, freq), false); err != nil {
			return err
		}
	}
	for key, set := range fragments {
		words := make([][]byte, 0, len(set))
		for w := range set {
			words = append(words, []byte(w))
		}
		sort.Slice(words, func(i, j int) bool { return string(words[i]) < string(words[j]) })
		if err := dest.Add([]byte(key), spelling.EncodeWordList(words), false); err != nil {
			return err
		}
	}
	return nil
}

package compaction

import (
	"sort"

	"github.com/glassdb/glassdb/internal/synonym"
	"github.com/glassdb/glassdb/internal/table"
)

// MergeSynonym N-way key-merges sources' synonym tables. Identical
// keys (source terms) get their decoded synonym sets unioned.
func MergeSynonym(dest *table.Table, sources []Source) error {
	sets := make(map[string]map[string]struct{})

	for _, src := range sources {
		c, err := src.cursor()
		if err != nil {
			return err
		}
		c.SeekToFirst()
		for c.Valid() {
			syns, err := synonym.Decode(c.Value())
			if err != nil {
				return err
			}
			set, ok := sets[string(c.Key())]
			if !ok {
				set = make(map[string]struct{})
				sets[string(c.Key())] = set
			}
			for _, s := range syns {
				set[string(s)] = struct{}{}
			}
			c.Next()
		}
		if err := c.Error(); err != nil {
			return err
		}
	}

	for term, set := range sets {
		syns := make([][]byte, 0, len(set))
		for s := range set {
			syns = append(syns, []byte(s))
		}
		sort.Slice(syns, func(i, j int) bool { return string(syns[i]) < string(syns[j]) })
		if err := dest.Add([]byte(term), synonym.Encode(syns), false); err != nil {
			return err
		}
	}
	return nil
}

package compaction

import "github.com/glassdb/glassdb/internal/table"

// MaxPartialOutputs is the point at which MultipassMergePostlist stops
// pairing and hands its remaining partial outputs back to the caller
// for a final merge (spec: "iterate until <= 3 partial outputs
// remain").
const MaxPartialOutputs = 3

// MultipassMergePostlist merges a large number of postlist sources by
// repeatedly pairing them into temporary tables (obtained from newTemp,
// which the caller builds with maximum block size and no compression,
// per spec) and merging each pair, until at most MaxPartialOutputs
// sources remain. The caller performs the final merge of those into
// the real destination.
//
// onConsumed is called once per temporary table this function created,
// immediately after that round's merges have folded its contents into
// the next round — never for one of the original, caller-owned
// sources — so the caller can unlink its backing file right away.
func MultipassMergePostlist(sources []Source, newTemp func() (*table.Table, error), resolveUserMeta func(key []byte, values [][]byte) []byte, onConsumed func(*table.Table)) ([]Source, error) {
	original := make(map[*table.Table]bool, len(sources))
	for _, s := range sources {
		original[s.Table] = true
	}

	current := sources
	for len(current) > MaxPartialOutputs {
		var next []Source
		for i := 0; i < len(current); i += 2 {
			if i+1 >= len(current) {
				next = append(next, current[i])
				continue
			}
			tmp, err := newTemp()
			if err != nil {
				return nil, err
			}
			if err := MergePostlist(tmp, current[i:i+2], resolveUserMeta); err != nil {
				return nil, err
			}
			next = append(next, Source{Table: tmp, DocIDOffset: 0})
		}
		if onConsumed != nil {
			for j, src := range current {
				if j == len(current)-1 && len(current)%2 == 1 {
					continue // carried into the next round unmerged
				}
				if !original[src.Table] {
					onConsumed(src.Table)
				}
			}
		}
		current = next
	}
	return current, nil
}

package positionlist

import "github.com/glassdb/glassdb/internal/encoding"

// Iterator walks one positionlist's entries in ascending order. It
// defers decoding the interpolative-coded middle run until something
// actually needs it: SkipTo can answer "does this list reach target?"
// from the cheap pack_uint(last_pos) header alone when target is past
// the list's last entry, without touching the bitstream at all.
type Iterator struct {
	tag       []byte
	last      uint64
	positions []uint64
	decoded   bool
	idx       int
	current   uint64
	exhausted bool
	err       error
}

// NewIterator returns an Iterator over a positionlist tag, positioned
// before the first entry.
func NewIterator(tag []byte) (*Iterator, error) {
	last, _, err := encoding.UnpackUint(tag)
	if err != nil {
		return nil, errJoin(err)
	}
	return &Iterator{tag: tag, last: last}, nil
}

func (it *Iterator) ensureDecoded() bool {
	if it.decoded || it.err != nil {
		return it.err == nil
	}
	positions, err := Decode(it.tag)
	if err != nil {
		it.err = err
		return false
	}
	it.positions = positions
	it.decoded = true
	return true
}

// Next advances to the next position, returning false once the list is
// exhausted (or an error occurred — check Error).
func (it *Iterator) Next() bool {
	if it.exhausted || !it.ensureDecoded() {
		return false
	}
	if it.idx >= len(it.positions) {
		it.exhausted = true
		return false
	}
	it.current = it.positions[it.idx]
	it.idx++
	return true
}

// SkipTo advances to the first position >= target, returning false if
// none exists. A target beyond the list's last position is rejected
// without decoding the interpolative-coded middle run.
func (it *Iterator) SkipTo(target uint64) bool {
	if it.exhausted || it.err != nil {
		return false
	}
	if target > it.last {
		it.exhausted = true
		return false
	}
	if !it.ensureDecoded() {
		return false
	}
	for it.idx < len(it.positions) && it.positions[it.idx] < target {
		it.idx++
	}
	if it.idx >= len(it.positions) {
		it.exhausted = true
		return false
	}
	it.current = it.positions[it.idx]
	it.idx++
	return true
}

// Position returns the current position; valid only after Next/SkipTo
// returns true.
func (it *Iterator) Position() uint64 { return it.current }

// Error returns any error encountered while iterating.
func (it *Iterator) Error() error { return it.err }

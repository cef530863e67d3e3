package positionlist

import (
	"errors"

	"github.com/glassdb/glassdb/internal/encoding"
)

// ErrCorrupt means a positionlist tag could not be decoded.
var ErrCorrupt = errors.New("positionlist: corrupt tag")

// Encode encodes positions (strictly increasing, len >= 1) as a
// positionlist tag.
//
// A single-entry list is just pack_uint(pos). A longer list stores
// pack_uint(last_pos), then a bit-packed header giving first_pos (in
// [0, last_pos]) and count-2 (in [0, last_pos-first_pos-1], since the
// run between two known endpoints can hold no fewer than the endpoints
// themselves and no more than every integer between them), followed by
// the interpolative-coded run of the n-2 positions strictly between
// first_pos and last_pos.
func Encode(positions []uint64) []byte {
	n := len(positions)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return encoding.PackUint(nil, positions[0])
	}

	first, last := positions[0], positions[n-1]
	tag := encoding.PackUint(nil, last)

	w := encoding.NewBitWriter()
	w.WriteBits(first, encoding.BitsNeeded(last))
	w.WriteBits(uint64(n-2), encoding.BitsNeeded(last-first-1))
	if n > 2 {
		encoding.EncodeInterpolative(w, positions[1:n-1], first+1, last-1)
	}
	return append(tag, w.Bytes()...)
}

// Decode decodes a positionlist tag back into its sorted positions.
func Decode(tag []byte) ([]uint64, error) {
	last, rest, err := encoding.UnpackUint(tag)
	if err != nil {
		return nil, errJoin(err)
	}
	if len(rest) == 0 {
		return []uint64{last}, nil
	}

	r := encoding.NewBitReader(rest)
	first, err := r.ReadBits(encoding.BitsNeeded(last))
	if err != nil {
		return nil, errJoin(err)
	}
	if first > last {
		return nil, ErrCorrupt
	}
	countMinus2, err := r.ReadBits(encoding.BitsNeeded(last - first - 1))
	if err != nil {
		return nil, errJoin(err)
	}
	n := int(countMinus2) + 2

	out := make([]uint64, n)
	out[0] = first
	out[n-1] = last
	if n > 2 {
		if err := encoding.DecodeInterpolative(r, out[1:n-1], first+1, last-1); err != nil {
			return nil, errJoin(err)
		}
	}
	return out, nil
}

func errJoin(err error) error { return errors.Join(ErrCorrupt, err) }

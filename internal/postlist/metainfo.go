package postlist

import "github.com/glassdb/glassdb/internal/encoding"

// MetaInfo is the database-wide statistics record stored under
// MetaInfoKey.
type MetaInfo struct {
	LastDocID              uint64
	DoclenLowerBound       uint64
	WdfUpperBound          uint64
	DoclenUpperBound       uint64
	TotalDocLen            uint64
}

// Encode appends m's wire representation to dst.
func (m MetaInfo) Encode(dst []byte) []byte {
	dst = encoding.PackUint(dst, m.LastDocID)
	dst = encoding.PackUint(dst, m.DoclenLowerBound)
	dst = encoding.PackUint(dst, m.WdfUpperBound)
	dst = encoding.PackUint(dst, m.DoclenUpperBound)
	dst = encoding.PackUint(dst, m.TotalDocLen)
	return dst
}

// DecodeMetaInfo parses a MetaInfo record.
func DecodeMetaInfo(tag []byte) (MetaInfo, error) {
	var m MetaInfo
	var err error
	var rest []byte
	if m.LastDocID, rest, err = encoding.UnpackUint(tag); err != nil {
		return MetaInfo{}, errCorrupt(err)
	}
	if m.DoclenLowerBound, rest, err = encoding.UnpackUint(rest); err != nil {
		return MetaInfo{}, errCorrupt(err)
	}
	if m.WdfUpperBound, rest, err = encoding.UnpackUint(rest); err != nil {
		return MetaInfo{}, errCorrupt(err)
	}
	if m.DoclenUpperBound, rest, err = encoding.UnpackUint(rest); err != nil {
		return MetaInfo{}, errCorrupt(err)
	}
	if m.TotalDocLen, _, err = encoding.UnpackUint(rest); err != nil {
		return MetaInfo{}, errCorrupt(err)
	}
	return m, nil
}

// ValueStats is the per-slot statistics entry stored under
// ValueStatsKey.
type ValueStats struct {
	Freq  uint64
	Lower []byte
	Upper []byte
}

// Encode appends v's wire representation to dst.
func (v ValueStats) Encode(dst []byte) []byte {
	dst = encoding.PackUint(dst, v.Freq)
	dst = encoding.AppendLengthPrefixedSlice(dst, v.Lower)
	dst = encoding.AppendLengthPrefixedSlice(dst, v.Upper)
	return dst
}

// DecodeValueStats parses a ValueStats record.
func DecodeValueStats(tag []byte) (ValueStats, error) {
	freq, rest, err := encoding.UnpackUint(tag)
	if err != nil {
		return ValueStats{}, errCorrupt(err)
	}
	lower, rest, err := encoding.DecodeLengthPrefixedSlice(rest)
	if err != nil {
		return ValueStats{}, errCorrupt(err)
	}
	upper, _, err := encoding.DecodeLengthPrefixedSlice(rest)
	if err != nil {
		return ValueStats{}, errCorrupt(err)
	}
	return ValueStats{Freq: freq, Lower: append([]byte(nil), lower...), Upper: append([]byte(nil), upper...)}, nil
}

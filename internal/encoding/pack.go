// Package encoding provides the byte-level packing primitives used
// throughout glassdb: little-endian varints for counts and sizes, a
// sort-preserving unsigned integer encoding for docids embedded in keys,
// and a sort-preserving string encoding for terms.
//
// Reference: Xapian glass backend (xapian-core/backends/glass), whose key
// space relies on exactly these three encodings to keep B-tree key order
// equal to docid/term order.
package encoding

import (
	"encoding/binary"
	"errors"
)

// MaxVarint32Length is the maximum number of bytes a varint32 can occupy.
const MaxVarint32Length = 5

// MaxVarint64Length is the maximum number of bytes a varint64 can occupy.
const MaxVarint64Length = 10

var (
	// ErrBufferTooSmall is returned when the buffer doesn't have enough space.
	ErrBufferTooSmall = errors.New("encoding: buffer too small")

	// ErrVarintOverflow is returned when a varint exceeds the maximum value.
	ErrVarintOverflow = errors.New("encoding: varint overflow")

	// ErrVarintTermination is returned when varint doesn't terminate properly.
	ErrVarintTermination = errors.New("encoding: varint not terminated")
)

// -----------------------------------------------------------------------------
// Fixed-width encoding (big-endian — all on-disk words in glassdb are
// big-endian, matching Xapian's wordaccess.h convention)
// -----------------------------------------------------------------------------

func EncodeFixed16(dst []byte, value uint16) { binary.BigEndian.PutUint16(dst, value) }
func DecodeFixed16(src []byte) uint16        { return binary.BigEndian.Uint16(src) }
func EncodeFixed32(dst []byte, value uint32) { binary.BigEndian.PutUint32(dst, value) }
func DecodeFixed32(src []byte) uint32        { return binary.BigEndian.Uint32(src) }
func EncodeFixed64(dst []byte, value uint64) { binary.BigEndian.PutUint64(dst, value) }
func DecodeFixed64(src []byte) uint64        { return binary.BigEndian.Uint64(src) }

// -----------------------------------------------------------------------------
// Variable-length unsigned integer: 7 bits of payload per byte, little
// endian base-128, high bit set on every non-final byte. Used for sizes,
// counts, termfreq/collection_freq/wdf.
// -----------------------------------------------------------------------------

// PackUint appends v to dst as a varint and returns the extended slice.
func PackUint(dst []byte, v uint64) []byte {
	var buf [MaxVarint64Length]byte
	n := 0
	for v >= 0x80 {
		buf[n] = byte(v) | 0x80
		v >>= 7
		n++
	}
	buf[n] = byte(v)
	n++
	return append(dst, buf[:n]...)
}

// UnpackUint decodes a varint from the front of src.
// Returns the value, the remaining unconsumed bytes, and an error.
func UnpackUint(src []byte) (value uint64, rest []byte, err error) {
	var result uint64
	for shift := uint(0); shift < 64; shift += 7 {
		if len(src) == 0 {
			return 0, nil, ErrVarintTermination
		}
		b := src[0]
		src = src[1:]
		if b < 0x80 {
			result |= uint64(b) << shift
			return result, src, nil
		}
		result |= uint64(b&0x7f) << shift
	}
	return 0, nil, ErrVarintOverflow
}

// VarintLength returns the number of bytes PackUint would write for v.
func VarintLength(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// -----------------------------------------------------------------------------
// Sort-preserving unsigned integer encoding.
//
// First byte encodes the big-endian byte-length L of what follows, biased
// by kLenBias so that the lexicographic order of the encoded form matches
// the numeric order: values needing fewer bytes sort before values needing
// more, and within a fixed length, big-endian bytes already sort correctly.
// -----------------------------------------------------------------------------

// kLenBias biases the length byte so it never collides with the high bit
// used elsewhere and keeps zero (length 0, no value bytes) sorting first.
const kLenBias = 0

// PackUintPreservingSort appends v to dst in sort-preserving form.
func PackUintPreservingSort(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	i := 0
	for i < 8 && tmp[i] == 0 {
		i++
	}
	n := 8 - i
	dst = append(dst, byte(n+kLenBias))
	return append(dst, tmp[i:]...)
}

// UnpackUintPreservingSort decodes a sort-preserving unsigned integer from
// the front of src, returning the value and the unconsumed remainder.
func UnpackUintPreservingSort(src []byte) (value uint64, rest []byte, err error) {
	if len(src) == 0 {
		return 0, nil, ErrBufferTooSmall
	}
	n := int(src[0]) - kLenBias
	if n < 0 || n > 8 || len(src) < 1+n {
		return 0, nil, ErrBufferTooSmall
	}
	var tmp [8]byte
	copy(tmp[8-n:], src[1:1+n])
	return binary.BigEndian.Uint64(tmp[:]), src[1+n:], nil
}

// -----------------------------------------------------------------------------
// Sort-preserving string encoding.
//
// Each byte of the payload is emitted verbatim, except 0x00 which is
// doubled to the two-byte sequence 0x00,0xFF; the string is terminated by
// the two-byte sequence 0x00,0x00, which cannot occur inside the escaped
// payload (a real zero byte is always immediately followed by 0xFF, never
// 0x00). This keeps lexicographic order — a terminated string always
// sorts before any extension of itself — while letting two sort-preserving
// strings be concatenated unambiguously inside a key.
// -----------------------------------------------------------------------------

// PackStringPreservingSort appends s to dst in sort-preserving form.
func PackStringPreservingSort(dst []byte, s []byte) []byte {
	for _, b := range s {
		if b == 0 {
			dst = append(dst, 0x00, 0xFF)
		} else {
			dst = append(dst, b)
		}
	}
	return append(dst, 0x00, 0x00)
}

// UnpackStringPreservingSort decodes a sort-preserving string from the
// front of src, returning the decoded bytes and the unconsumed remainder.
func UnpackStringPreservingSort(src []byte) (value []byte, rest []byte, err error) {
	var out []byte
	i := 0
	for {
		if i >= len(src) {
			return nil, nil, ErrBufferTooSmall
		}
		b := src[i]
		if b == 0x00 {
			if i+1 >= len(src) {
				return nil, nil, ErrBufferTooSmall
			}
			switch src[i+1] {
			case 0xFF:
				out = append(out, 0x00)
				i += 2
				continue
			case 0x00:
				return out, src[i+2:], nil
			default:
				return nil, nil, ErrBufferTooSmall
			}
		}
		out = append(out, b)
		i++
	}
}

// -----------------------------------------------------------------------------
// Length-prefixed slices (varint length header) — used for tag components
// and for miscellaneous blob fields in the version record.
// -----------------------------------------------------------------------------

func AppendLengthPrefixedSlice(dst []byte, value []byte) []byte {
	dst = PackUint(dst, uint64(len(value)))
	return append(dst, value...)
}

func DecodeLengthPrefixedSlice(src []byte) (value []byte, rest []byte, err error) {
	length, rest, err := UnpackUint(src)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < length {
		return nil, nil, ErrBufferTooSmall
	}
	return rest[:length], rest[length:], nil
}

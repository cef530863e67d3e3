package checksum

import "github.com/zeebo/xxh3"

// XXH3Value computes the 64-bit XXH3 hash of data using the zeebo/xxh3
// implementation (SIMD-accelerated where available).
func XXH3Value(data []byte) uint64 {
	return xxh3.Hash(data)
}

// XXH3Checksum returns the low 32 bits of the XXH3 hash of data, used as
// the version-file record checksum when Options.Checksum is TypeXXH3
// (spec §4.5, §6.3). Table blocks carry no checksum.
func XXH3Checksum(data []byte) uint32 {
	return uint32(xxh3.Hash(data))
}

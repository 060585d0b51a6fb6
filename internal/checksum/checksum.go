// Package checksum implements the two integrity-hash algorithms the DL and
// CA formats may select: CRC32C (Castagnoli) for the 4-byte fast path, and
// SHA-256 for the 32-byte strong path. Both are standard-library
// implementations of exactly the algorithms the wire format mandates — see
// DESIGN.md for why no third-party hash library has a place here.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"hash/crc32"
)

// Size returns the number of bytes the hash occupies on the wire.
func Size(useSHA256 bool) int {
	if useSHA256 {
		return sha256.Size
	}
	return crc32.Size
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Sum computes the selected hash over data and returns it as its wire
// encoding: CRC32C is 4 bytes little-endian, SHA-256 is 32 bytes as produced
// by the standard library (big-endian digest, no further byte-swapping).
func Sum(useSHA256 bool, data []byte) []byte {
	if useSHA256 {
		sum := sha256.Sum256(data)
		return sum[:]
	}
	sum := crc32.Checksum(data, castagnoli)
	out := make([]byte, 4)
	out[0] = byte(sum)
	out[1] = byte(sum >> 8)
	out[2] = byte(sum >> 16)
	out[3] = byte(sum >> 24)
	return out
}

// Verify recomputes the hash over data and compares it against want,
// returning true iff they match exactly.
func Verify(useSHA256 bool, data, want []byte) bool {
	got := Sum(useSHA256, data)
	return bytes.Equal(got, want)
}

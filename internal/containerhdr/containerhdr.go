// Package containerhdr implements the framing shared by the DL and CA
// container formats: the nine-field, 12-byte fixed prefix (magic, version, flags,
// compression/encryption kind, the two reserved extended-data lengths,
// size_types, padding) plus the variable trailing fields (entry/file count,
// uncompressed size, integrity hash, and — for encrypted files — the IV and
// tag slots), per spec §3 and §6.
//
// The split between a small fixed struct and appended variable-length
// regions mirrors internal/squashfs/writer.go's superblock (written via
// binary.Write after seeking back to offset 0) and its length-prefixed
// metadata chunks (writeMetadataChunks).
package containerhdr

import (
	"encoding/binary"

	"github.com/oiarchive/oi/internal/checksum"
	"github.com/oiarchive/oi/internal/compress"
	"github.com/oiarchive/oi/internal/oierr"
	"github.com/oiarchive/oi/internal/sizeclass"
)

// Magic values, little-endian encodings of "oiDL" and "oiCA".
const (
	MagicDL uint32 = 0x4C44696F
	MagicCA uint32 = 0x4143696F
)

// EncryptionKind selects the AEAD scheme applied to a container's payload.
type EncryptionKind uint8

const (
	EncryptionNone EncryptionKind = iota
	EncryptionAES256GCM
)

func (k EncryptionKind) Valid() bool {
	return k == EncryptionNone || k == EncryptionAES256GCM
}

// FlagUseSHA256 is the shared bit (bit 0) both formats use to select
// SHA-256 over CRC32C for the integrity hash; only meaningful when the
// container is compressed (spec §4.6 step 4).
const FlagUseSHA256 = 1 << 0

// FixedSize is the byte length of the fixed header prefix.
//
// Note: spec.md labels this region "8 bytes fixed" while enumerating nine
// fields (a 4-byte magic plus eight single-byte fields), which total 12
// bytes. This implementation follows the literal field list — the
// authoritative wire contract — treating the "8 bytes" label as counting
// only the post-magic single-byte fields, a documentation slip recorded as
// an Open Question resolution in DESIGN.md.
const FixedSize = 12

// Fixed is the 12-byte fixed header prefix common to DL and CA.
type Fixed struct {
	Magic            uint32
	Version          uint8 // encoded major/minor, see EncodeVersion
	Flags            uint8
	CompressionKind  compress.Kind
	EncryptionKind   EncryptionKind
	HeaderExtLen     uint8 // reserved, must be zero
	PerEntryExtLen   uint8 // reserved, must be zero
	SizeTypes        uint8
	Padding          uint8
}

// EncodeVersion packs major.minor into the header's version byte. Per spec
// §3, the initial 1.0 release is encoded as 0x00, so the stored major is
// major-1.
func EncodeVersion(major, minor int) uint8 {
	return uint8((major-1)<<4&0xF0 | minor&0x0F)
}

// DecodeVersion unpacks the header's version byte into major.minor.
func DecodeVersion(v uint8) (major, minor int) {
	return int(v>>4) + 1, int(v & 0x0F)
}

// Marshal writes the 12-byte fixed prefix into buf, which must be at least
// FixedSize bytes.
func (f Fixed) Marshal(buf []byte) error {
	if len(buf) < FixedSize {
		return oierr.InvalidParameter("buf", "short", -1)
	}
	binary.LittleEndian.PutUint32(buf[0:4], f.Magic)
	buf[4] = f.Version
	buf[5] = f.Flags
	buf[6] = uint8(f.CompressionKind)
	buf[7] = uint8(f.EncryptionKind)
	buf[8] = f.HeaderExtLen
	buf[9] = f.PerEntryExtLen
	buf[10] = f.SizeTypes
	buf[11] = f.Padding
	return nil
}

// Unmarshal parses the 12-byte fixed prefix from buf.
func Unmarshal(buf []byte) (Fixed, error) {
	if len(buf) < FixedSize {
		return Fixed{}, oierr.InvalidParameter("buf", "short", -1)
	}
	f := Fixed{
		Magic:           binary.LittleEndian.Uint32(buf[0:4]),
		Version:         buf[4],
		Flags:           buf[5],
		CompressionKind: compress.Kind(buf[6]),
		EncryptionKind:  EncryptionKind(buf[7]),
		HeaderExtLen:    buf[8],
		PerEntryExtLen:  buf[9],
		SizeTypes:       buf[10],
		Padding:         buf[11],
	}
	return f, nil
}

// PackSizeTypes composes the size_types byte: bits 0-1 the entry/file count
// class, bits 2-3 the uncompressed-size class, bits 4-5 the per-entry-size
// class, and formatBits (already shifted into bits 6-7) for format-specific
// use.
func PackSizeTypes(countClass, uncompressedClass, perEntryClass sizeclass.Class, formatBits uint8) uint8 {
	return uint8(countClass)&0x3 |
		(uint8(uncompressedClass)&0x3)<<2 |
		(uint8(perEntryClass)&0x3)<<4 |
		formatBits&0xC0
}

// UnpackSizeTypes reverses PackSizeTypes.
func UnpackSizeTypes(b uint8) (countClass, uncompressedClass, perEntryClass sizeclass.Class, formatBits uint8) {
	countClass = sizeclass.Class(b & 0x3)
	uncompressedClass = sizeclass.Class((b >> 2) & 0x3)
	perEntryClass = sizeclass.Class((b >> 4) & 0x3)
	formatBits = b & 0xC0
	return
}

// ValidateReserved checks the reserved fields that must be zero on write and
// rejected on read if non-zero, per spec §9.
func ValidateReserved(f Fixed) error {
	if f.HeaderExtLen != 0 {
		return oierr.UnsupportedOperation("header_extended_data")
	}
	if f.PerEntryExtLen != 0 {
		return oierr.UnsupportedOperation("per_entry_extended_data")
	}
	_, _, _, formatBits := UnpackSizeTypes(f.SizeTypes)
	// The "AES chunk size class" reservation lives in format-specific flag
	// bits (dlfile/cafile), not in size_types' formatBits; size_types'
	// reserved upper bits must still be zero for this core, which never
	// emits format-specific size_types extensions.
	if formatBits != 0 {
		return oierr.UnsupportedOperation("size_types_reserved_bits")
	}
	return nil
}

// UseSHA256 reports whether flags selects SHA-256 over CRC32C.
func UseSHA256(flags uint8) bool {
	return flags&FlagUseSHA256 != 0
}

// VariableFields bundles the decoded variable trailing header fields
// common to DL and CA.
type VariableFields struct {
	Count            uint64
	UncompressedSize uint64 // only meaningful if compressed
	Hash             []byte // only present if compressed
	IV               []byte // only present if encrypted
	Tag              []byte // only present if encrypted
}

// Sizes carries the size classes packed into SizeTypes that BuildAAD uses
// to encode the variable count and uncompressed-size fields.
type Sizes struct {
	CountClass        sizeclass.Class
	UncompressedClass sizeclass.Class
	PerEntryClass     sizeclass.Class
}

// BuildAAD assembles the bytes used as AEAD associated data: the fixed
// prefix, the variable count/uncompressed-size/hash fields, and — for
// encrypted containers — a zeroed 28-byte IV+tag placeholder standing in
// for the slots that get filled in after encryption (spec §4.3).
func BuildAAD(fixed Fixed, sizes Sizes, count, uncompressedSize uint64, hash []byte) ([]byte, error) {
	buf := make([]byte, FixedSize)
	if err := fixed.Marshal(buf); err != nil {
		return nil, err
	}

	compressed := fixed.CompressionKind != compress.None
	encrypted := fixed.EncryptionKind == EncryptionAES256GCM

	var err error
	buf, err = sizeclass.Append(buf, sizes.CountClass, count)
	if err != nil {
		return nil, err
	}
	if compressed {
		buf, err = sizeclass.Append(buf, sizes.UncompressedClass, uncompressedSize)
		if err != nil {
			return nil, err
		}
		buf = append(buf, hash...)
	}
	if encrypted {
		buf = append(buf, make([]byte, 12+16)...)
	}
	return buf, nil
}

// FinalizeEncrypted overwrites the zeroed IV/tag placeholder at the tail of
// a header previously built by BuildAAD with the real values, producing the
// on-disk header bytes that precede the payload.
func FinalizeEncrypted(header []byte, iv, tag []byte) error {
	if len(iv) != 12 || len(tag) != 16 {
		return oierr.InvalidParameter("iv/tag", "size", -1)
	}
	if len(header) < 28 {
		return oierr.InvalidParameter("header", "short", -1)
	}
	copy(header[len(header)-28:len(header)-16], iv)
	copy(header[len(header)-16:], tag)
	return nil
}

// ZeroTrailingIVTag returns a copy of header with its trailing 28-byte
// IV+tag slot zeroed, reconstructing the AAD used at encryption time from a
// parsed on-disk header.
func ZeroTrailingIVTag(header []byte) ([]byte, error) {
	if len(header) < 28 {
		return nil, oierr.InvalidParameter("header", "short", -1)
	}
	out := make([]byte, len(header))
	copy(out, header)
	for i := len(out) - 28; i < len(out); i++ {
		out[i] = 0
	}
	return out, nil
}

// HashSlotSize returns the wire size of the hash field for useSHA256.
func HashSlotSize(useSHA256 bool) int {
	return checksum.Size(useSHA256)
}

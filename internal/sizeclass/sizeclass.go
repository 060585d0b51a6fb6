// Package sizeclass implements the variable-width integer size-class codec
// shared by the DL and CA container formats: every count or length field is
// stored in the smallest of {1,2,4,8} bytes that represents it, selected up
// front from the largest value in its population (entry count, max entry
// length, uncompressed total) and recorded as a 2-bit tag in the header.
//
// The write/read shape mirrors the teacher's encoding/binary little-endian
// field framing (internal/squashfs/writer.go's binary.Write calls and
// dirEntry.Unmarshal's manual byte-offset slicing).
package sizeclass

import (
	"encoding/binary"

	"golang.org/x/exp/slices"

	"github.com/oiarchive/oi/internal/oierr"
)

// Class identifies the byte width used to encode a variable-width field.
type Class uint8

const (
	U8 Class = iota
	U16
	U32
	U64
)

// ByteWidth returns the number of bytes a value of this class occupies.
func (c Class) ByteWidth() int {
	switch c {
	case U8:
		return 1
	case U16:
		return 2
	case U32:
		return 4
	case U64:
		return 8
	default:
		return 0
	}
}

func (c Class) String() string {
	switch c {
	case U8:
		return "U8"
	case U16:
		return "U16"
	case U32:
		return "U32"
	case U64:
		return "U64"
	default:
		return "invalid"
	}
}

// RequiredClass returns the smallest Class able to represent v.
func RequiredClass(v uint64) Class {
	switch {
	case v <= 0xFF:
		return U8
	case v <= 0xFFFF:
		return U16
	case v <= 0xFFFFFFFF:
		return U32
	default:
		return U64
	}
}

// RequiredClassOf scans a population of values and returns the class
// required to represent their maximum. An empty population requires U8.
func RequiredClassOf(values []uint64) Class {
	if len(values) == 0 {
		return U8
	}
	return RequiredClass(slices.Max(values))
}

// Write encodes v little-endian into buf using class's byte width. buf must
// be at least class.ByteWidth() bytes long. Fails if v exceeds the class's
// representable range.
func Write(buf []byte, class Class, v uint64) error {
	w := class.ByteWidth()
	if w == 0 {
		return oierr.InvalidParameter("class", "", -1)
	}
	if len(buf) < w {
		return oierr.InvalidParameter("buf", "short", -1)
	}
	switch class {
	case U8:
		if v > 0xFF {
			return oierr.Overflow("size-class", v, 0xFF)
		}
		buf[0] = byte(v)
	case U16:
		if v > 0xFFFF {
			return oierr.Overflow("size-class", v, 0xFFFF)
		}
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case U32:
		if v > 0xFFFFFFFF {
			return oierr.Overflow("size-class", v, 0xFFFFFFFF)
		}
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case U64:
		binary.LittleEndian.PutUint64(buf, v)
	default:
		return oierr.InvalidParameter("class", "", -1)
	}
	return nil
}

// Read decodes a little-endian value of the given class from buf,
// zero-extending to uint64. buf must be at least class.ByteWidth() bytes.
func Read(buf []byte, class Class) (uint64, error) {
	w := class.ByteWidth()
	if w == 0 {
		return 0, oierr.InvalidParameter("class", "", -1)
	}
	if len(buf) < w {
		return 0, oierr.InvalidParameter("buf", "short", -1)
	}
	switch class {
	case U8:
		return uint64(buf[0]), nil
	case U16:
		return uint64(binary.LittleEndian.Uint16(buf)), nil
	case U32:
		return uint64(binary.LittleEndian.Uint32(buf)), nil
	case U64:
		return binary.LittleEndian.Uint64(buf), nil
	default:
		return 0, oierr.InvalidParameter("class", "", -1)
	}
}

// Append is a convenience wrapper that grows dst by class.ByteWidth() bytes
// and writes v into the new tail, the way the codecs build up header and
// table regions incrementally.
func Append(dst []byte, class Class, v uint64) ([]byte, error) {
	w := class.ByteWidth()
	off := len(dst)
	dst = append(dst, make([]byte, w)...)
	if err := Write(dst[off:], class, v); err != nil {
		return nil, err
	}
	return dst, nil
}

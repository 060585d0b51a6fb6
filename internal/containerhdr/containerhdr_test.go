package containerhdr

import (
	"bytes"
	"testing"

	"github.com/oiarchive/oi/internal/compress"
	"github.com/oiarchive/oi/internal/sizeclass"
)

func TestVersionRoundTrip(t *testing.T) {
	v := EncodeVersion(1, 0)
	if v != 0x00 {
		t.Errorf("EncodeVersion(1,0) = %#x, want 0x00", v)
	}
	major, minor := DecodeVersion(v)
	if major != 1 || minor != 0 {
		t.Errorf("DecodeVersion(0x00) = %d.%d, want 1.0", major, minor)
	}

	v2 := EncodeVersion(2, 3)
	gotMajor, gotMinor := DecodeVersion(v2)
	if gotMajor != 2 || gotMinor != 3 {
		t.Errorf("round trip 2.3 = %d.%d", gotMajor, gotMinor)
	}
}

func TestFixedMarshalUnmarshal(t *testing.T) {
	f := Fixed{
		Magic:           MagicDL,
		Version:         EncodeVersion(1, 0),
		Flags:           FlagUseSHA256,
		CompressionKind: compress.Brotli11,
		EncryptionKind:  EncryptionAES256GCM,
		SizeTypes:       PackSizeTypes(sizeclass.U8, sizeclass.U32, sizeclass.U16, 0),
	}
	buf := make([]byte, FixedSize)
	if err := f.Marshal(buf); err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got != f {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestPackUnpackSizeTypes(t *testing.T) {
	b := PackSizeTypes(sizeclass.U16, sizeclass.U64, sizeclass.U8, 0)
	count, uncompressed, perEntry, format := UnpackSizeTypes(b)
	if count != sizeclass.U16 || uncompressed != sizeclass.U64 || perEntry != sizeclass.U8 || format != 0 {
		t.Errorf("unpack mismatch: %v %v %v %v", count, uncompressed, perEntry, format)
	}
}

func TestValidateReservedRejectsNonZero(t *testing.T) {
	if err := ValidateReserved(Fixed{HeaderExtLen: 1}); err == nil {
		t.Error("expected rejection of non-zero HeaderExtLen")
	}
	if err := ValidateReserved(Fixed{PerEntryExtLen: 1}); err == nil {
		t.Error("expected rejection of non-zero PerEntryExtLen")
	}
	if err := ValidateReserved(Fixed{}); err != nil {
		t.Errorf("unexpected rejection of zeroed fixed header: %v", err)
	}
}

func TestBuildAADAndFinalizeEncrypted(t *testing.T) {
	fixed := Fixed{
		Magic:           MagicCA,
		Version:         EncodeVersion(1, 0),
		CompressionKind: compress.Brotli11,
		EncryptionKind:  EncryptionAES256GCM,
		SizeTypes:       PackSizeTypes(sizeclass.U8, sizeclass.U32, sizeclass.U8, 0),
	}
	sizes := Sizes{CountClass: sizeclass.U8, UncompressedClass: sizeclass.U32}
	hash := bytes.Repeat([]byte{0xAB}, 4)

	aad, err := BuildAAD(fixed, sizes, 3, 1024, hash)
	if err != nil {
		t.Fatal(err)
	}
	wantLen := FixedSize + 1 /*count*/ + 4 /*uncompressed size*/ + len(hash) + 28
	if len(aad) != wantLen {
		t.Fatalf("AAD length = %d, want %d", len(aad), wantLen)
	}
	if !bytes.Equal(aad[len(aad)-28:], make([]byte, 28)) {
		t.Error("expected zeroed IV/tag placeholder in AAD")
	}

	iv := bytes.Repeat([]byte{0x11}, 12)
	tag := bytes.Repeat([]byte{0x22}, 16)
	header := bytes.Clone(aad)
	if err := FinalizeEncrypted(header, iv, tag); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(header[len(header)-28:len(header)-16], iv) {
		t.Error("IV not written to its slot")
	}
	if !bytes.Equal(header[len(header)-16:], tag) {
		t.Error("tag not written to its slot")
	}

	rebuilt, err := ZeroTrailingIVTag(header)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rebuilt, aad) {
		t.Error("ZeroTrailingIVTag did not reconstruct the original AAD")
	}
}

func TestHashSlotSize(t *testing.T) {
	if HashSlotSize(false) != 4 {
		t.Errorf("HashSlotSize(false) = %d, want 4", HashSlotSize(false))
	}
	if HashSlotSize(true) != 32 {
		t.Errorf("HashSlotSize(true) = %d, want 32", HashSlotSize(true))
	}
}

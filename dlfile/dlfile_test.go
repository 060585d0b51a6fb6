package dlfile

import (
	"bytes"
	"errors"
	"testing"

	"github.com/oiarchive/oi/internal/aead"
	"github.com/oiarchive/oi/internal/compress"
	"github.com/oiarchive/oi/internal/containerhdr"
	"github.com/oiarchive/oi/internal/oierr"
	"github.com/oiarchive/oi/internal/randsrc"
	"github.com/oiarchive/oi/internal/sizeclass"
)

func TestDLEmpty(t *testing.T) {
	dl, err := New(Settings{CompressionKind: compress.None, EncryptionKind: containerhdr.EncryptionNone, DataKind: Raw})
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := dl.Write(randsrc.Default)
	if err != nil {
		t.Fatal(err)
	}

	fixed, err := containerhdr.Unmarshal(out[:containerhdr.FixedSize])
	if err != nil {
		t.Fatal(err)
	}
	if fixed.Flags != 0 {
		t.Errorf("flags = %#x, want 0", fixed.Flags)
	}
	countClass, _, _, _ := containerhdr.UnpackSizeTypes(fixed.SizeTypes)
	if countClass != sizeclass.U8 {
		t.Errorf("entry_count_class = %v, want U8", countClass)
	}
	if len(out) != containerhdr.FixedSize+1 {
		t.Errorf("total length = %d, want %d (header + 1-byte zero count, empty payload)", len(out), containerhdr.FixedSize+1)
	}

	parsed, err := Read(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Entries()) != 0 {
		t.Errorf("expected no entries, got %d", len(parsed.Entries()))
	}
}

func TestDLAsciiTwoEntries(t *testing.T) {
	dl, err := New(Settings{CompressionKind: compress.None, EncryptionKind: containerhdr.EncryptionNone, DataKind: Ascii})
	if err != nil {
		t.Fatal(err)
	}
	if err := dl.Append([]byte("oi")); err != nil {
		t.Fatal(err)
	}
	if err := dl.Append([]byte("xx")); err != nil {
		t.Fatal(err)
	}
	out, _, err := dl.Write(randsrc.Default)
	if err != nil {
		t.Fatal(err)
	}

	fixed, err := containerhdr.Unmarshal(out[:containerhdr.FixedSize])
	if err != nil {
		t.Fatal(err)
	}
	if fixed.Flags&flagIsString == 0 {
		t.Error("expected is_string flag bit set")
	}
	if fixed.Flags&flagUtf8 != 0 {
		t.Error("expected utf8 flag bit unset for Ascii")
	}

	offset := containerhdr.FixedSize
	n, _ := sizeclass.Read(out[offset:], sizeclass.U8)
	if n != 2 {
		t.Fatalf("entry_count = %d, want 2", n)
	}
	offset++
	// per-entry sizes [2,2] then "oixx"
	size0, _ := sizeclass.Read(out[offset:], sizeclass.U8)
	size1, _ := sizeclass.Read(out[offset+1:], sizeclass.U8)
	if size0 != 2 || size1 != 2 {
		t.Errorf("per-entry sizes = [%d,%d], want [2,2]", size0, size1)
	}
	data := out[offset+2:]
	if string(data) != "oixx" {
		t.Errorf("data region = %q, want oixx", data)
	}

	parsed, err := Read(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := parsed.Entries()
	if string(got[0]) != "oi" || string(got[1]) != "xx" {
		t.Errorf("round trip mismatch: %q %q", got[0], got[1])
	}
}

func TestDLUtf8BoundaryAndCorruption(t *testing.T) {
	dl, err := New(Settings{CompressionKind: compress.None, EncryptionKind: containerhdr.EncryptionNone, DataKind: Utf8})
	if err != nil {
		t.Fatal(err)
	}
	entries := [][]byte{[]byte("A"), []byte("©"), []byte("€")}
	for _, e := range entries {
		if err := dl.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	out, _, err := dl.Write(randsrc.Default)
	if err != nil {
		t.Fatal(err)
	}

	fixed, _ := containerhdr.Unmarshal(out[:containerhdr.FixedSize])
	_, _, entryLenClass, _ := containerhdr.UnpackSizeTypes(fixed.SizeTypes)
	if entryLenClass != sizeclass.U8 {
		t.Errorf("entry_len_class = %v, want U8 (max_len=3)", entryLenClass)
	}

	parsed, err := Read(out, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := parsed.Entries()
	for i, want := range entries {
		if !bytes.Equal(got[i], want) {
			t.Errorf("entry %d = %q, want %q", i, got[i], want)
		}
	}

	// Corrupt the middle byte of the euro sign in the data region.
	idx := bytes.LastIndex(out, []byte("€"))
	if idx < 0 {
		t.Fatal("could not locate euro sign in output")
	}
	corrupted := bytes.Clone(out)
	corrupted[idx+1] ^= 0xFF

	if _, err := Read(corrupted, nil); err == nil {
		t.Error("expected corrupted UTF-8 entry to fail reading")
	} else if !errors.Is(err, oierr.InvalidParameter("entry", "not-utf8", -1)) {
		t.Errorf("unexpected error kind: %v", err)
	}
}

func TestDLEncryptedRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, aead.KeySize)
	dl, err := New(Settings{
		CompressionKind: compress.None,
		EncryptionKind:  containerhdr.EncryptionAES256GCM,
		DataKind:        Raw,
		EncryptionKey:   key,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := dl.Append([]byte("secret")); err != nil {
		t.Fatal(err)
	}
	out, generated, err := dl.Write(randsrc.Default)
	if err != nil {
		t.Fatal(err)
	}
	if generated != nil {
		t.Error("expected no generated key when one was supplied")
	}

	parsed, err := Read(out, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(parsed.Entries()[0]) != "secret" {
		t.Errorf("got %q, want secret", parsed.Entries()[0])
	}

	wrongKey := bytes.Repeat([]byte{0x43}, aead.KeySize)
	if _, err := Read(out, wrongKey); err == nil {
		t.Error("expected wrong key to fail authentication")
	}
}

func TestDLCompressedRoundTripAndHashMismatch(t *testing.T) {
	dl, err := New(Settings{CompressionKind: compress.Brotli11, EncryptionKind: containerhdr.EncryptionNone, DataKind: Raw})
	if err != nil {
		t.Fatal(err)
	}
	if err := dl.Append(bytes.Repeat([]byte("payload"), 50)); err != nil {
		t.Fatal(err)
	}
	out, _, err := dl.Write(randsrc.Default)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Read(out, nil); err != nil {
		t.Fatal(err)
	}

	corrupted := bytes.Clone(out)
	corrupted[len(corrupted)-1] ^= 0xFF
	if _, err := Read(corrupted, nil); err == nil {
		t.Error("expected corrupted compressed payload to fail")
	}
}

func TestAppendAfterSerializeRejected(t *testing.T) {
	dl, err := New(Settings{CompressionKind: compress.None, EncryptionKind: containerhdr.EncryptionNone, DataKind: Raw})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := dl.Write(randsrc.Default); err != nil {
		t.Fatal(err)
	}
	if err := dl.Append([]byte("x")); err == nil {
		t.Error("expected append after Write to be rejected")
	}
}

func TestAsciiValidationRejectsNonAscii(t *testing.T) {
	dl, err := New(Settings{CompressionKind: compress.None, EncryptionKind: containerhdr.EncryptionNone, DataKind: Ascii})
	if err != nil {
		t.Fatal(err)
	}
	if err := dl.Append([]byte{0x80}); err == nil {
		t.Error("expected non-ASCII byte to be rejected")
	}
}

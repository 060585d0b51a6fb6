// Package dlfile implements the DL container format (spec §4.6): a list of
// raw, ASCII, or UTF-8 entries serialized as a count, per-entry sizes, and a
// concatenated data region, wrapped in the shared header/compress/hash/
// encrypt pipeline from internal/containerhdr, internal/compress,
// internal/checksum, and internal/aead.
//
// The Empty -> Populating -> Serialized lifecycle (spec §4.10) mirrors
// internal/squashfs/writer.go's accumulate-then-Flush shape: entries are
// appended freely until Write is called once, after which the DLFile is
// considered consumed.
package dlfile

import (
	"unicode/utf8"

	"github.com/oiarchive/oi/internal/aead"
	"github.com/oiarchive/oi/internal/checksum"
	"github.com/oiarchive/oi/internal/compress"
	"github.com/oiarchive/oi/internal/containerhdr"
	"github.com/oiarchive/oi/internal/oierr"
	"github.com/oiarchive/oi/internal/randsrc"
	"github.com/oiarchive/oi/internal/sizeclass"
)

// DataKind fixes the variant of every entry in a DLFile.
type DataKind uint8

const (
	Raw DataKind = iota
	Ascii
	Utf8
)

func (k DataKind) Valid() bool {
	switch k {
	case Raw, Ascii, Utf8:
		return true
	default:
		return false
	}
}

const (
	flagUseSHA256 = containerhdr.FlagUseSHA256
	flagIsString  = 1 << 1
	flagUtf8      = 1 << 2
	flagReserved  = 0x3 << 3 // AES chunk size class, always 0 in v1.0
)

// Settings is the immutable configuration captured when a DLFile is
// created, per spec §3's DLSettings.
type Settings struct {
	CompressionKind compress.Kind
	EncryptionKind  containerhdr.EncryptionKind
	DataKind        DataKind
	UseSHA256       bool
	EncryptionKey   []byte // 32 bytes; ignored if EncryptionKind is None
	GenerateKey     bool   // if true and EncryptionKey is nil, Write generates one
}

func (s Settings) validate() error {
	if !s.CompressionKind.Valid() {
		return oierr.InvalidParameter("compression_kind", "", -1)
	}
	if !s.EncryptionKind.Valid() {
		return oierr.InvalidParameter("encryption_kind", "", -1)
	}
	if !s.DataKind.Valid() {
		return oierr.InvalidParameter("data_kind", "", -1)
	}
	if s.EncryptionKind == containerhdr.EncryptionAES256GCM {
		if s.EncryptionKey == nil && !s.GenerateKey {
			return oierr.Unauthorized("encryption_key")
		}
		if s.EncryptionKey != nil && len(s.EncryptionKey) != aead.KeySize {
			return oierr.InvalidParameter("encryption_key", "size", -1)
		}
	}
	return nil
}

type state uint8

const (
	stateEmpty state = iota
	statePopulating
	stateSerialized
	stateParsed
)

// DLFile is an ordered sequence of entries sharing one Settings, following
// the Empty -> Populating -> Serialized / Empty -> Parsed state machine.
type DLFile struct {
	settings Settings
	entries  [][]byte
	state    state
}

// New creates an empty DLFile with the given settings.
func New(settings Settings) (*DLFile, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	return &DLFile{settings: settings, state: stateEmpty}, nil
}

// Append adds one entry. data must already match the DLFile's DataKind:
// Ascii entries must be 7-bit ASCII, Utf8 entries must be well-formed UTF-8.
func (d *DLFile) Append(data []byte) error {
	if d.state == stateSerialized || d.state == stateParsed {
		return oierr.InvalidOperation("append-after-serialize")
	}
	if err := validateVariant(d.settings.DataKind, data); err != nil {
		return err
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	d.entries = append(d.entries, owned)
	d.state = statePopulating
	return nil
}

func validateVariant(kind DataKind, data []byte) error {
	switch kind {
	case Ascii:
		for _, b := range data {
			if b >= 0x80 {
				return oierr.InvalidParameter("entry", "not-ascii", -1)
			}
		}
	case Utf8:
		if !utf8.Valid(data) {
			return oierr.InvalidParameter("entry", "not-utf8", -1)
		}
	}
	return nil
}

// Entries returns the appended/parsed entry byte slices in serialized order.
func (d *DLFile) Entries() [][]byte {
	out := make([][]byte, len(d.entries))
	copy(out, d.entries)
	return out
}

// Settings returns the DLFile's configuration.
func (d *DLFile) Settings() Settings {
	return d.settings
}

// Write serializes the DLFile per spec §4.6, returning the container bytes
// and, if a key was generated because Settings.GenerateKey was set, the
// generated 32-byte key.
func (d *DLFile) Write(rng randsrc.Source) (data []byte, generatedKey []byte, err error) {
	if d.state == stateSerialized || d.state == stateParsed {
		return nil, nil, oierr.InvalidOperation("already-serialized")
	}

	n := uint64(len(d.entries))
	lens := make([]uint64, n)
	var maxLen, dataTotal uint64
	for i, e := range d.entries {
		l := uint64(len(e))
		lens[i] = l
		dataTotal += l
		if l > maxLen {
			maxLen = l
		}
	}

	entryCountClass := sizeclass.RequiredClass(n)
	entryLenClass := sizeclass.RequiredClass(maxLen)

	payload := make([]byte, 0, dataTotal+n*uint64(entryLenClass.ByteWidth()))
	for _, l := range lens {
		payload, err = sizeclass.Append(payload, entryLenClass, l)
		if err != nil {
			return nil, nil, err
		}
	}
	for _, e := range d.entries {
		payload = append(payload, e...)
	}
	uncompressedSize := uint64(len(payload))

	compressed := d.settings.CompressionKind != compress.None
	encrypted := d.settings.EncryptionKind == containerhdr.EncryptionAES256GCM

	// required_class of the payload total, unconditionally — the field is
	// only emitted on the wire when compressed, but size_types always
	// records the class per spec §8 size-class minimality.
	uncompressedSizeClass := sizeclass.RequiredClass(uncompressedSize)

	var flags uint8
	if d.settings.UseSHA256 {
		flags |= flagUseSHA256
	}
	switch d.settings.DataKind {
	case Ascii:
		flags |= flagIsString
	case Utf8:
		flags |= flagIsString | flagUtf8
	}

	fixed := containerhdr.Fixed{
		Magic:           containerhdr.MagicDL,
		Version:         containerhdr.EncodeVersion(1, 0),
		Flags:           flags,
		CompressionKind: d.settings.CompressionKind,
		EncryptionKind:  d.settings.EncryptionKind,
		SizeTypes:       containerhdr.PackSizeTypes(entryCountClass, uncompressedSizeClass, entryLenClass, 0),
	}

	body := payload
	var hash []byte
	if compressed {
		hash = checksum.Sum(d.settings.UseSHA256, payload)
		body, err = compress.Compress(d.settings.CompressionKind, payload)
		if err != nil {
			return nil, nil, err
		}
	}

	sizes := containerhdr.Sizes{CountClass: entryCountClass, UncompressedClass: uncompressedSizeClass}
	header, err := containerhdr.BuildAAD(fixed, sizes, n, uncompressedSize, hash)
	if err != nil {
		return nil, nil, err
	}

	if encrypted {
		result, err := aead.Encrypt(rng, body, header, d.settings.EncryptionKey, nil)
		if err != nil {
			return nil, nil, err
		}
		if err := containerhdr.FinalizeEncrypted(header, result.IV, result.Tag); err != nil {
			return nil, nil, err
		}
		body = result.Ciphertext
		generatedKey = result.Key
	}

	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	out = append(out, body...)

	d.state = stateSerialized
	return out, generatedKey, nil
}

// Read parses a serialized DLFile. key is required (and must be 32 bytes)
// when the container is encrypted; it is ignored otherwise.
func Read(data []byte, key []byte) (*DLFile, error) {
	if len(data) < containerhdr.FixedSize {
		return nil, oierr.InvalidParameter("data", "short", -1)
	}
	fixed, err := containerhdr.Unmarshal(data[:containerhdr.FixedSize])
	if err != nil {
		return nil, err
	}
	if fixed.Magic != containerhdr.MagicDL {
		return nil, oierr.InvalidParameter("magic", "", -1)
	}
	major, _ := containerhdr.DecodeVersion(fixed.Version)
	if major != 1 {
		return nil, oierr.UnsupportedOperation("version")
	}
	if err := containerhdr.ValidateReserved(fixed); err != nil {
		return nil, err
	}
	if fixed.Flags&flagReserved != 0 {
		return nil, oierr.UnsupportedOperation("aes-chunk-mode")
	}
	if !fixed.CompressionKind.Valid() || !fixed.EncryptionKind.Valid() {
		return nil, oierr.InvalidParameter("header", "kind", -1)
	}

	entryCountClass, uncompressedSizeClass, entryLenClass, _ := containerhdr.UnpackSizeTypes(fixed.SizeTypes)

	offset := containerhdr.FixedSize
	n, err := sizeclass.Read(data[offset:], entryCountClass)
	if err != nil {
		return nil, err
	}
	offset += entryCountClass.ByteWidth()

	compressed := fixed.CompressionKind != compress.None
	encrypted := fixed.EncryptionKind == containerhdr.EncryptionAES256GCM
	useSHA256 := containerhdr.UseSHA256(fixed.Flags)

	var uncompressedSize uint64
	var hash []byte
	if compressed {
		uncompressedSize, err = sizeclass.Read(data[offset:], uncompressedSizeClass)
		if err != nil {
			return nil, err
		}
		offset += uncompressedSizeClass.ByteWidth()
		hashLen := containerhdr.HashSlotSize(useSHA256)
		if len(data) < offset+hashLen {
			return nil, oierr.InvalidParameter("data", "short", -1)
		}
		hash = data[offset : offset+hashLen]
		offset += hashLen
	}

	var iv, tag []byte
	if encrypted {
		if len(data) < offset+28 {
			return nil, oierr.InvalidParameter("data", "short", -1)
		}
		iv = data[offset : offset+12]
		tag = data[offset+12 : offset+28]
		offset += 28
	}

	rawHeader := data[:offset]
	body := data[offset:]

	aad := rawHeader
	if encrypted {
		aad, err = containerhdr.ZeroTrailingIVTag(rawHeader)
		if err != nil {
			return nil, err
		}
	}

	var payload []byte
	if encrypted {
		if len(key) != aead.KeySize {
			return nil, oierr.Unauthorized("encryption_key")
		}
		payload, err = aead.Decrypt(body, aad, key, iv, tag)
		if err != nil {
			return nil, err
		}
	} else {
		payload = body
	}

	var uncompressedPayload []byte
	if compressed {
		uncompressedPayload, err = compress.Decompress(fixed.CompressionKind, payload, uncompressedSize)
		if err != nil {
			return nil, err
		}
		if !checksum.Verify(useSHA256, uncompressedPayload, hash) {
			return nil, oierr.HashMismatch()
		}
	} else {
		uncompressedPayload = payload
	}

	pos := 0
	lens := make([]uint64, n)
	for i := range lens {
		l, err := sizeclass.Read(uncompressedPayload[pos:], entryLenClass)
		if err != nil {
			return nil, err
		}
		lens[i] = l
		pos += entryLenClass.ByteWidth()
	}

	isString := fixed.Flags&flagIsString != 0
	isUtf8 := fixed.Flags&flagUtf8 != 0
	dataKind := Raw
	if isString {
		if isUtf8 {
			dataKind = Utf8
		} else {
			dataKind = Ascii
		}
	}

	entries := make([][]byte, n)
	for i, l := range lens {
		if uint64(len(uncompressedPayload)) < uint64(pos)+l {
			return nil, oierr.InvalidParameter("entry", "short", int(i))
		}
		raw := uncompressedPayload[pos : uint64(pos)+l]
		if err := validateVariant(dataKind, raw); err != nil {
			return nil, err
		}
		owned := make([]byte, len(raw))
		copy(owned, raw)
		entries[i] = owned
		pos += int(l)
	}

	return &DLFile{
		settings: Settings{
			CompressionKind: fixed.CompressionKind,
			EncryptionKind:  fixed.EncryptionKind,
			DataKind:        dataKind,
			UseSHA256:       useSHA256,
		},
		entries: entries,
		state:   stateParsed,
	}, nil
}

// Package cafile implements the CA container format (spec §4.8): an
// Archive serialized as a directory table, a file table, and a
// concatenated data region, wrapped in the same
// header/compress/hash/encrypt pipeline as dlfile.
//
// The three-region layout (directory table / file table / data region) is
// a flattened descendant of internal/squashfs/writer.go's directory-table
// / inode-table / data-block split (w.dirBuf, w.inodeBuf, already-written
// data blocks): CA has no random-access requirement (spec §1 NON-GOALS),
// so the block/metadata-chunk indirection SquashFS needs collapses into
// single contiguous tables here.
package cafile

import (
	"time"

	"github.com/oiarchive/oi/archive"
	"github.com/oiarchive/oi/internal/aead"
	"github.com/oiarchive/oi/internal/checksum"
	"github.com/oiarchive/oi/internal/compress"
	"github.com/oiarchive/oi/internal/containerhdr"
	"github.com/oiarchive/oi/internal/oierr"
	"github.com/oiarchive/oi/internal/pathresolve"
	"github.com/oiarchive/oi/internal/randsrc"
	"github.com/oiarchive/oi/internal/sizeclass"
)

// StringForm selects the maximum length an encoder permits for directory
// and file names; both forms share the same 1-byte-length-prefixed wire
// encoding, the flag only records which cap the encoder enforced.
type StringForm uint8

const (
	ShortString StringForm = iota // names up to 32 bytes
	LongString                    // names up to 255 bytes
)

const (
	flagUseSHA256       = containerhdr.FlagUseSHA256
	flagIncludeDate     = 1 << 1
	flagIncludeFullDate = 1 << 2
	flagStringForm      = 1 << 3
	flagReserved        = 0x3 << 4 // AES chunk size class, always 0 in v1.0
)

// shortDateEpoch anchors the 2-second-resolution short date field.
//
// Open Question: spec.md does not define the short date's bit layout
// beyond "a packed DOS-style date+time with 2-second resolution" over 2
// bytes. This implements it as a tick count of 2-second intervals since
// this epoch, saturating (rounding to the nearest representable value, per
// §8) at the representable range of 0xFFFF ticks, about 36.4 hours (up to
// 2020-01-02T12:24:30Z); every later timestamp encodes as 0xFFFF and every
// earlier one as 0 — resolved this way in DESIGN.md.
var shortDateEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func encodeShortDate(t time.Time) uint16 {
	d := t.UTC().Sub(shortDateEpoch) / (2 * time.Second)
	if d < 0 {
		d = 0
	}
	if d > 0xFFFF {
		d = 0xFFFF
	}
	return uint16(d)
}

func decodeShortDate(v uint16) time.Time {
	return shortDateEpoch.Add(time.Duration(v) * 2 * time.Second)
}

func encodeFullDate(t time.Time) uint64 {
	return uint64(t.UnixNano())
}

func decodeFullDate(v uint64) time.Time {
	return time.Unix(0, int64(v)).UTC()
}

// Settings is the immutable configuration captured when a CAFile is
// created, per spec §3's CASettings.
type Settings struct {
	CompressionKind compress.Kind
	EncryptionKind  containerhdr.EncryptionKind
	UseSHA256       bool
	IncludeDate     bool
	IncludeFullDate bool // implies IncludeDate
	EncryptionKey   []byte
	GenerateKey     bool
}

func (s *Settings) validate() error {
	if !s.CompressionKind.Valid() {
		return oierr.InvalidParameter("compression_kind", "", -1)
	}
	if !s.EncryptionKind.Valid() {
		return oierr.InvalidParameter("encryption_kind", "", -1)
	}
	if s.IncludeFullDate {
		s.IncludeDate = true
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
	stateBound
	stateSerialized
	stateParsed
)

// CAFile holds settings plus an Archive logically owned by this CAFile
// once bound, following the Empty -> Bound -> Serialized / Empty -> Parsed
// state machine (spec §4.10).
type CAFile struct {
	settings Settings
	arc      *archive.Archive
	state    state
}

// Create binds settings and arc into a new CAFile. Per spec §4.10, arc
// becomes logically owned by the CAFile; callers should not continue using
// their reference to it.
func Create(settings Settings, arc *archive.Archive) (*CAFile, error) {
	if err := settings.validate(); err != nil {
		return nil, err
	}
	if arc == nil {
		return nil, oierr.NullArgument("archive")
	}
	return &CAFile{settings: settings, arc: arc, state: stateBound}, nil
}

// Archive returns the bound Archive (valid before Write is called).
func (c *CAFile) Archive() *archive.Archive {
	return c.arc
}

type dirRow struct {
	name      string
	parentIdx uint64 // sentinel (all-ones of dirCountClass) if root
}

type fileRow struct {
	parentIdx uint64
	name      string
	length    uint64
	hasStamp  bool
	timestamp time.Time
	data      []byte
}

func sentinelFor(class sizeclass.Class) uint64 {
	switch class {
	case sizeclass.U8:
		return 0xFF
	case sizeclass.U16:
		return 0xFFFF
	default:
		return 0xFFFFFFFFFFFFFFFF
	}
}

// Write serializes the CAFile per spec §4.8, returning the container bytes
// and, if a key was generated, the generated 32-byte key.
func (c *CAFile) Write(rng randsrc.Source) (data []byte, generatedKey []byte, err error) {
	if c.state == stateSerialized || c.state == stateParsed {
		return nil, nil, oierr.InvalidOperation("already-serialized")
	}

	entries := c.arc.Entries()

	dirIndex := make(map[string]int)
	var dirs []dirRow
	var files []fileRow
	var maxNameLen, maxFileLen uint64

	for _, e := range entries {
		name := pathresolve.BaseOf(e.Path)
		if uint64(len(name)) > maxNameLen {
			maxNameLen = uint64(len(name))
		}
		if e.Kind == archive.KindDirectory {
			dirIndex[e.Path] = len(dirs)
			dirs = append(dirs, dirRow{name: name})
		}
	}

	dirCountClass := sizeclass.RequiredClass(uint64(len(dirs)))
	if dirCountClass > sizeclass.U16 {
		return nil, nil, oierr.Overflow("directory_count", uint64(len(dirs)), 0xFFFF)
	}
	sentinel := sentinelFor(dirCountClass)

	for i, e := range entries {
		if e.Kind != archive.KindDirectory {
			continue
		}
		parent := pathresolve.ParentOf(e.Path)
		if parent == "" {
			dirs[dirIndex[e.Path]].parentIdx = sentinel
		} else {
			dirs[dirIndex[e.Path]].parentIdx = uint64(dirIndex[parent])
		}
		_ = i
	}

	for _, e := range entries {
		if e.Kind != archive.KindFile {
			continue
		}
		parent := pathresolve.ParentOf(e.Path)
		var parentIdx uint64 = sentinel
		if parent != "" {
			parentIdx = uint64(dirIndex[parent])
		}
		l := uint64(len(e.Data))
		if l > maxFileLen {
			maxFileLen = l
		}
		row := fileRow{parentIdx: parentIdx, name: pathresolve.BaseOf(e.Path), length: l, data: e.Data}
		if e.Timestamp != nil {
			row.hasStamp = true
			row.timestamp = *e.Timestamp
		}
		files = append(files, row)
	}

	stringForm := ShortString
	if maxNameLen > 32 {
		stringForm = LongString
	}
	if maxNameLen > 255 {
		return nil, nil, oierr.Overflow("name_length", maxNameLen, 255)
	}

	perEntryClass := sizeclass.RequiredClass(maxFileLen)
	totalEntries := uint64(len(entries))
	entryCountClass := sizeclass.RequiredClass(totalEntries)

	// dirCount is written at entryCountClass width (not dirCountClass):
	// Read must know this field's width before it has decoded dirCount
	// itself, and entryCountClass is always wide enough since
	// dirCount <= totalEntries. dirCountClass is used below only for the
	// parent-index fields within the directory/file tables.
	var payload []byte
	payload, err = sizeclass.Append(payload, entryCountClass, uint64(len(dirs)))
	if err != nil {
		return nil, nil, err
	}
	for _, d := range dirs {
		payload = append(payload, byte(len(d.name)))
		payload = append(payload, d.name...)
		payload, err = sizeclass.Append(payload, dirCountClass, d.parentIdx)
		if err != nil {
			return nil, nil, err
		}
	}

	for _, f := range files {
		payload, err = sizeclass.Append(payload, dirCountClass, f.parentIdx)
		if err != nil {
			return nil, nil, err
		}
		payload = append(payload, byte(len(f.name)))
		payload = append(payload, f.name...)
		payload, err = sizeclass.Append(payload, perEntryClass, f.length)
		if err != nil {
			return nil, nil, err
		}
		if c.settings.IncludeDate {
			if c.settings.IncludeFullDate {
				var stamp uint64
				if f.hasStamp {
					stamp = encodeFullDate(f.timestamp)
				}
				payload, err = sizeclass.Append(payload, sizeclass.U64, stamp)
			} else {
				var stamp uint64
				if f.hasStamp {
					stamp = uint64(encodeShortDate(f.timestamp))
				}
				payload, err = sizeclass.Append(payload, sizeclass.U16, stamp)
			}
			if err != nil {
				return nil, nil, err
			}
		}
	}

	for _, f := range files {
		payload = append(payload, f.data...)
	}

	uncompressedSize := uint64(len(payload))
	compressed := c.settings.CompressionKind != compress.None
	encrypted := c.settings.EncryptionKind == containerhdr.EncryptionAES256GCM

	// required_class of the payload total, unconditionally — the field is
	// only emitted on the wire when compressed, but size_types always
	// records the class per spec §8 size-class minimality.
	uncompressedSizeClass := sizeclass.RequiredClass(uncompressedSize)

	var flags uint8
	if c.settings.UseSHA256 {
		flags |= flagUseSHA256
	}
	if c.settings.IncludeDate {
		flags |= flagIncludeDate
	}
	if c.settings.IncludeFullDate {
		flags |= flagIncludeFullDate
	}
	if stringForm == LongString {
		flags |= flagStringForm
	}

	fixed := containerhdr.Fixed{
		Magic:           containerhdr.MagicCA,
		Version:         containerhdr.EncodeVersion(1, 0),
		Flags:           flags,
		CompressionKind: c.settings.CompressionKind,
		EncryptionKind:  c.settings.EncryptionKind,
		SizeTypes:       containerhdr.PackSizeTypes(entryCountClass, uncompressedSizeClass, perEntryClass, 0),
	}

	body := payload
	var hash []byte
	if compressed {
		hash = checksum.Sum(c.settings.UseSHA256, payload)
		body, err = compress.Compress(c.settings.CompressionKind, payload)
		if err != nil {
			return nil, nil, err
		}
	}

	sizes := containerhdr.Sizes{CountClass: entryCountClass, UncompressedClass: uncompressedSizeClass}
	header, err := containerhdr.BuildAAD(fixed, sizes, totalEntries, uncompressedSize, hash)
	if err != nil {
		return nil, nil, err
	}

	if encrypted {
		result, err := aead.Encrypt(rng, body, header, c.settings.EncryptionKey, nil)
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

	c.state = stateSerialized
	return out, generatedKey, nil
}

// Read parses a serialized CAFile. key is required when the container is
// encrypted.
func Read(data []byte, key []byte) (*CAFile, error) {
	if len(data) < containerhdr.FixedSize {
		return nil, oierr.InvalidParameter("data", "short", -1)
	}
	fixed, err := containerhdr.Unmarshal(data[:containerhdr.FixedSize])
	if err != nil {
		return nil, err
	}
	if fixed.Magic != containerhdr.MagicCA {
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

	entryCountClass, uncompressedSizeClass, perEntryClass, _ := containerhdr.UnpackSizeTypes(fixed.SizeTypes)

	offset := containerhdr.FixedSize
	totalEntries, err := sizeclass.Read(data[offset:], entryCountClass)
	if err != nil {
		return nil, err
	}
	offset += entryCountClass.ByteWidth()

	compressed := fixed.CompressionKind != compress.None
	encrypted := fixed.EncryptionKind == containerhdr.EncryptionAES256GCM
	useSHA256 := containerhdr.UseSHA256(fixed.Flags)
	includeDate := fixed.Flags&flagIncludeDate != 0
	includeFullDate := fixed.Flags&flagIncludeFullDate != 0

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
	dirCount, err := sizeclass.Read(uncompressedPayload[pos:], entryCountClass)
	if err != nil {
		return nil, err
	}
	// The directory table's own parent-index width is re-derived from
	// dirCount the same way Write chose it, not read separately.
	dirCountClass := sizeclass.RequiredClass(dirCount)
	if dirCountClass > sizeclass.U16 {
		return nil, oierr.Overflow("directory_count", dirCount, 0xFFFF)
	}
	pos += entryCountClass.ByteWidth()
	sentinel := sentinelFor(dirCountClass)

	type parsedDir struct {
		name      string
		parentIdx uint64
		path      string
	}
	dirRows := make([]parsedDir, dirCount)
	for i := range dirRows {
		if pos >= len(uncompressedPayload) {
			return nil, oierr.InvalidParameter("directory_table", "short", int(i))
		}
		nameLen := int(uncompressedPayload[pos])
		pos++
		if pos+nameLen > len(uncompressedPayload) {
			return nil, oierr.InvalidParameter("directory_table", "short", int(i))
		}
		name := string(uncompressedPayload[pos : pos+nameLen])
		pos += nameLen
		parentIdx, err := sizeclass.Read(uncompressedPayload[pos:], dirCountClass)
		if err != nil {
			return nil, err
		}
		pos += dirCountClass.ByteWidth()
		dirRows[i] = parsedDir{name: name, parentIdx: parentIdx}
	}
	for i := range dirRows {
		if dirRows[i].parentIdx == sentinel {
			dirRows[i].path = dirRows[i].name
		} else {
			dirRows[i].path = dirRows[dirRows[i].parentIdx].path + "/" + dirRows[i].name
		}
	}

	fileCount := totalEntries - dirCount

	type parsedFile struct {
		path      string
		length    uint64
		timestamp *time.Time
	}
	fileRows := make([]parsedFile, fileCount)
	for i := uint64(0); i < fileCount; i++ {
		parentIdx, err := sizeclass.Read(uncompressedPayload[pos:], dirCountClass)
		if err != nil {
			return nil, err
		}
		pos += dirCountClass.ByteWidth()
		if pos >= len(uncompressedPayload) {
			return nil, oierr.InvalidParameter("file_table", "short", int(i))
		}
		nameLen := int(uncompressedPayload[pos])
		pos++
		if pos+nameLen > len(uncompressedPayload) {
			return nil, oierr.InvalidParameter("file_table", "short", int(i))
		}
		name := string(uncompressedPayload[pos : pos+nameLen])
		pos += nameLen
		length, err := sizeclass.Read(uncompressedPayload[pos:], perEntryClass)
		if err != nil {
			return nil, err
		}
		pos += perEntryClass.ByteWidth()

		var ts *time.Time
		if includeDate {
			if includeFullDate {
				v, err := sizeclass.Read(uncompressedPayload[pos:], sizeclass.U64)
				if err != nil {
					return nil, err
				}
				pos += 8
				t := decodeFullDate(v)
				ts = &t
			} else {
				v, err := sizeclass.Read(uncompressedPayload[pos:], sizeclass.U16)
				if err != nil {
					return nil, err
				}
				pos += 2
				t := decodeShortDate(uint16(v))
				ts = &t
			}
		}

		var path string
		if parentIdx == sentinel {
			path = name
		} else {
			path = dirRows[parentIdx].path + "/" + name
		}
		fileRows[i] = parsedFile{path: path, length: length, timestamp: ts}
	}

	arc := archive.New()
	for _, d := range dirRows {
		if err := arc.AddDirectory(d.path); err != nil {
			return nil, err
		}
	}
	for _, f := range fileRows {
		if uint64(len(uncompressedPayload)) < uint64(pos)+f.length {
			return nil, oierr.InvalidParameter("data_region", "short", -1)
		}
		fileData := uncompressedPayload[pos : uint64(pos)+f.length]
		owned := make([]byte, len(fileData))
		copy(owned, fileData)
		pos += int(f.length)
		if err := arc.AddFile(f.path, owned, f.timestamp); err != nil {
			return nil, err
		}
	}

	return &CAFile{
		settings: Settings{
			CompressionKind: fixed.CompressionKind,
			EncryptionKind:  fixed.EncryptionKind,
			UseSHA256:       useSHA256,
			IncludeDate:     includeDate,
			IncludeFullDate: includeFullDate,
		},
		arc:   arc,
		state: stateParsed,
	}, nil
}

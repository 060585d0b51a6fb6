// Package archive implements the in-memory entry tree CA serializes: an
// ordered list of files and directories with validated paths, used both as
// the ingester's build target and as the CA codec's logical model (§4.7).
//
// The builder shape — an ordered collection grown by Add calls, with
// parent directories materialized on demand — is grounded in
// internal/squashfs/writer.go's Directory/file tree (Root *Directory,
// Directory.Directory(name), Directory.File(name)), generalized from
// SquashFS's parent-pointer inode tree to a flat ordered entry list keyed
// by full path, since CA (unlike SquashFS) has no random-access
// requirement and serializes its tables in a single pass.
package archive

import (
	"time"

	"github.com/oiarchive/oi/internal/oierr"
	"github.com/oiarchive/oi/internal/pathresolve"
)

// Kind distinguishes a file entry from a directory entry.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "invalid"
	}
}

// Entry is one file or directory within an Archive. Directory entries
// never carry Data.
type Entry struct {
	Path      string
	Kind      Kind
	Timestamp *time.Time
	Data      []byte
}

// Archive is an ordered list of Entry values maintaining two invariants:
// every ancestor directory of every entry exists as its own entry earlier
// in the list, and no two entries share a path. ForEach/serialization rely
// on this order directly; no sort is performed on write (§4.7).
type Archive struct {
	entries []Entry
	index   map[string]int
}

// New returns an empty Archive.
func New() *Archive {
	return &Archive{index: make(map[string]int)}
}

// Len returns the number of entries, files and directories combined.
func (a *Archive) Len() int {
	return len(a.entries)
}

func (a *Archive) ensureDirectory(path string) error {
	if path == "" {
		return nil
	}
	if idx, ok := a.index[path]; ok {
		if a.entries[idx].Kind != KindDirectory {
			return oierr.InvalidOperation("path-is-file-not-directory")
		}
		return nil
	}
	if err := a.ensureDirectory(pathresolve.ParentOf(path)); err != nil {
		return err
	}
	a.index[path] = len(a.entries)
	a.entries = append(a.entries, Entry{Path: path, Kind: KindDirectory})
	return nil
}

// AddDirectory adds a directory entry at path, auto-creating any missing
// ancestor directories in parent-before-child order. It is not an error to
// add a directory that already exists.
func (a *Archive) AddDirectory(path string) error {
	if err := pathresolve.ValidateEntryPath(path); err != nil {
		return err
	}
	return a.ensureDirectory(path)
}

// AddFile adds a file entry at path with the given data and optional
// timestamp, auto-creating any missing ancestor directories. It is an
// error to add a file at a path already occupied by any entry.
func (a *Archive) AddFile(path string, data []byte, timestamp *time.Time) error {
	if err := pathresolve.ValidateEntryPath(path); err != nil {
		return err
	}
	if _, exists := a.index[path]; exists {
		return oierr.InvalidOperation("duplicate-path")
	}
	parent := pathresolve.ParentOf(path)
	if err := a.ensureDirectory(parent); err != nil {
		return err
	}
	a.index[path] = len(a.entries)
	a.entries = append(a.entries, Entry{Path: path, Kind: KindFile, Data: data, Timestamp: timestamp})
	return nil
}

// Lookup returns the entry at path, if any.
func (a *Archive) Lookup(path string) (Entry, bool) {
	idx, ok := a.index[path]
	if !ok {
		return Entry{}, false
	}
	return a.entries[idx], true
}

// Remove deletes the entry at path. Removing a directory cascades to every
// entry whose path has it as a strict ancestor, preserving the "every
// ancestor directory exists" invariant rather than orphaning children.
func (a *Archive) Remove(path string) error {
	idx, ok := a.index[path]
	if !ok {
		return oierr.NotFound("path", path, -1)
	}

	prefix := path + "/"
	kept := make([]Entry, 0, len(a.entries))
	for i, e := range a.entries {
		if i == idx {
			continue
		}
		if hasPrefix(e.Path, prefix) {
			continue
		}
		kept = append(kept, e)
	}

	a.entries = kept
	a.index = make(map[string]int, len(kept))
	for i, e := range a.entries {
		a.index[e.Path] = i
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// ForEach visits every entry in serialization order, stopping at the first
// error returned by cb.
func (a *Archive) ForEach(cb func(e Entry) error) error {
	for _, e := range a.entries {
		if err := cb(e); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns a copy of the ordered entry list.
func (a *Archive) Entries() []Entry {
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

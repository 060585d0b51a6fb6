// Package pathresolve implements the path validator/resolver used when
// ingesting files into an archive (spec §4.5): normalization of path
// separators, resolution of "." and ".." within a mount anchor, rejection
// of reserved DOS device names and absolute escapes, and classification of
// "virtual" (//-prefixed) versus "local" paths.
//
// The anchor-relative composition idiom is grounded in
// internal/squashfs/writer.go's Directory.path() (filepath.Join(d.parent.path(),
// d.name)) and the directory-tree walks in cmd/distri/pack.go.
package pathresolve

import (
	"strings"

	"github.com/oiarchive/oi/internal/oierr"
)

// reservedNames are the DOS device names that must be rejected
// case-insensitively, per spec §4.5.
var reservedNames = map[string]bool{
	"CON": true, "AUX": true, "NUL": true, "PRN": true,
}

// isReservedComLptName reports whether name is COMn or LPTn for n in 0..9:
// exactly 4 characters, the first three a fixed prefix, the last a digit.
func isReservedComLptName(name string) bool {
	if len(name) != 4 {
		return false
	}
	upper := strings.ToUpper(name)
	prefix := upper[:3]
	if prefix != "COM" && prefix != "LPT" {
		return false
	}
	last := upper[3]
	return last >= '0' && last <= '9'
}

func isReservedName(name string) bool {
	upper := strings.ToUpper(name)
	if reservedNames[upper] {
		return true
	}
	return isReservedComLptName(name)
}

func hasControlOrNUL(s string) bool {
	for _, r := range s {
		if r == 0 || r < 0x20 || r == 0x7F {
			return true
		}
	}
	return false
}

// driveLetterPrefix reports whether s begins with "X:/" for a single ASCII
// letter X, returning the drive letter and the remainder including the
// leading slash. ok is false if s has no such prefix.
func driveLetterPrefix(s string) (drive byte, rest string, ok bool) {
	if len(s) < 3 {
		return 0, "", false
	}
	c := s[0]
	isAlpha := (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
	if !isAlpha || s[1] != ':' {
		return 0, "", false
	}
	if s[2] != '/' {
		return 0, "", false
	}
	return c, s[2:], true
}

// Resolve normalizes and validates raw relative to anchor (the platform
// working-directory anchor), per spec §4.5. It returns the resolved,
// forward-slash-joined path and whether it addresses the virtual (//)
// namespace rather than the host filesystem.
func Resolve(raw, anchor string) (resolved string, isVirtual bool, err error) {
	if strings.HasPrefix(raw, `\\`) {
		return "", false, oierr.UnsupportedOperation("unc-path")
	}

	normalized := strings.ReplaceAll(raw, `\`, "/")

	isVirtual = strings.HasPrefix(normalized, "//")

	var drive byte
	hasDrive := false
	// isAbsolute tracks a leading "/" (or drive-rooted path) independently of
	// the component split below, which discards the empty component a
	// leading slash produces — the anchor-containment check further down
	// needs to know this regardless of how the joined result looks.
	isAbsolute := false
	if !isVirtual {
		if hasDriveLetterPlatform {
			if d, rest, ok := driveLetterPrefix(normalized); ok {
				drive = d
				hasDrive = true
				isAbsolute = true
				normalized = rest
			} else if len(normalized) >= 2 && normalized[1] == ':' {
				return "", false, oierr.InvalidParameter("path", "bare-drive", -1)
			} else if strings.HasPrefix(normalized, "/") {
				isAbsolute = true
			}
		} else if strings.HasPrefix(normalized, "/") {
			isAbsolute = true
		}
	}

	components := strings.Split(normalized, "/")

	var kept []string
	for _, comp := range components {
		switch comp {
		case "":
			// Collapses "//" and leading/trailing slashes.
			continue
		case ".":
			continue
		case "..":
			if len(kept) == 0 {
				return "", false, oierr.Unauthorized("path")
			}
			kept = kept[:len(kept)-1]
			continue
		}

		if hasControlOrNUL(comp) || strings.ContainsAny(comp, `\`) {
			return "", false, oierr.InvalidParameter("path", "component", -1)
		}
		if isReservedName(comp) {
			return "", false, oierr.InvalidParameter("path", "reserved-name", -1)
		}
		kept = append(kept, comp)
	}

	joined := strings.Join(kept, "/")

	if isVirtual {
		return "/" + joined, true, nil
	}

	switch {
	case hasDrive:
		resolved = string(drive) + ":/" + joined
	case isAbsolute:
		resolved = "/" + joined
	default:
		resolved = joined
	}

	// An absolute result must lie under the platform anchor (case-insensitive
	// prefix); a relative result is accepted as anchor-relative.
	if isAbsolute {
		normAnchor := strings.ToLower(strings.TrimSuffix(strings.ReplaceAll(anchor, `\`, "/"), "/"))
		normResolved := strings.ToLower(resolved)
		if !strings.HasPrefix(normResolved, normAnchor) {
			return "", false, oierr.Unauthorized("path")
		}
	}

	if hasDriveLetterPlatform && len(resolved) >= 260 {
		return "", false, oierr.InvalidParameter("path", "too-long", -1)
	}

	return resolved, false, nil
}

// DefaultAnchor returns the platform working-directory anchor to pass as
// Resolve's anchor argument.
func DefaultAnchor() (string, error) {
	return platformAnchor()
}

// ValidateEntryPath validates a path as used within an Archive entry
// (spec §3's ArchiveEntry.path): forward-slash-separated, no leading slash,
// no "."/".." components, no empty components, no reserved names.
func ValidateEntryPath(p string) error {
	if p == "" {
		return oierr.InvalidParameter("path", "empty", -1)
	}
	if strings.HasPrefix(p, "/") {
		return oierr.InvalidParameter("path", "leading-slash", -1)
	}
	for _, comp := range strings.Split(p, "/") {
		if comp == "" {
			return oierr.InvalidParameter("path", "empty-component", -1)
		}
		if comp == "." || comp == ".." {
			return oierr.InvalidParameter("path", "dot-component", -1)
		}
		if hasControlOrNUL(comp) {
			return oierr.InvalidParameter("path", "control-char", -1)
		}
		if isReservedName(comp) {
			return oierr.InvalidParameter("path", "reserved-name", -1)
		}
	}
	return nil
}

// ParentOf returns the parent directory path of p ("" for a top-level
// entry), assuming p has already passed ValidateEntryPath.
func ParentOf(p string) string {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

// BaseOf returns the final path component of p.
func BaseOf(p string) string {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}

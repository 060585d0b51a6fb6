//go:build !windows

package pathresolve

import "os"

// platformAnchor returns the current directory via the standard library;
// non-Windows hosts have no drive-letter concept.
func platformAnchor() (string, error) {
	return os.Getwd()
}

const hasDriveLetterPlatform = false

//go:build windows

package pathresolve

import "golang.org/x/sys/windows"

// platformAnchor returns the current directory via the Windows API directly,
// matching how a drive-letter host would report its own working directory
// anchor rather than relying on the POSIX-flavored os.Getwd path form.
func platformAnchor() (string, error) {
	buf := make([]uint16, windows.MAX_PATH)
	n, err := windows.GetCurrentDirectory(uint32(len(buf)), &buf[0])
	if err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:n]), nil
}

// hasDriveLetterPlatform reports whether this build targets a platform with
// drive-letter path semantics, gating the 260-byte path-length check and the
// "X:/" drive prefix acceptance in Resolve.
const hasDriveLetterPlatform = true

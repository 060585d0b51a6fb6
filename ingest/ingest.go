// Package ingest implements the recursive ingester (spec §4.9): walking a
// filesystem subtree via fsiface.FS.ForEach and populating an
// archive.Archive with the files and directories found there.
//
// The walk-and-classify shape is grounded in cmd/distri/pack.go's
// directory-walk-into-archive loop, generalized from a direct os.Walk over
// the real filesystem to fsiface.FS so the same ingester runs against
// localfs or any other backing store satisfying the interface.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/oiarchive/oi/archive"
	"github.com/oiarchive/oi/internal/fsiface"
	"github.com/oiarchive/oi/internal/oierr"
	"github.com/oiarchive/oi/internal/pathresolve"
)

// DefaultReadTimeout is the read deadline spec §4.9 calls "the configured
// one-second read deadline."
const DefaultReadTimeout = time.Second

// Ingest walks root on fs, adding every visited entry to arc as a file or
// directory relative to root. Paths are validated with
// pathresolve.ValidateEntryPath before being added; an invalid or
// unreadable entry aborts the walk and returns the error, leaving arc
// partially populated — per spec §4.9 it is the caller's responsibility to
// discard a partial Archive on error.
func Ingest(ctx context.Context, fs fsiface.FS, root string, arc *archive.Archive, readTimeout time.Duration) error {
	if fs == nil {
		return oierr.NullArgument("fs")
	}
	if arc == nil {
		return oierr.NullArgument("archive")
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	_, canonicalRoot, err := fs.Resolve(root)
	if err != nil {
		return err
	}

	return fs.ForEach(ctx, root, true, func(path string, kind fsiface.Kind, mtime time.Time, size int64) error {
		rel := relativeTo(canonicalRoot, path)
		if err := pathresolve.ValidateEntryPath(rel); err != nil {
			return err
		}

		switch kind {
		case fsiface.KindDirectory:
			return arc.AddDirectory(rel)
		case fsiface.KindFile:
			data, err := fs.Read(ctx, path, readTimeout)
			if err != nil {
				return err
			}
			stamp := mtime
			return arc.AddFile(rel, data, &stamp)
		default:
			return oierr.InvalidParameter("kind", "", -1)
		}
	})
}

// relativeTo strips canonicalRoot and a following separator from path,
// normalizing backslashes to forward slashes so the result is a valid
// ArchiveEntry path regardless of host path-separator convention.
func relativeTo(canonicalRoot, path string) string {
	normRoot := strings.ReplaceAll(canonicalRoot, `\`, "/")
	normPath := strings.ReplaceAll(path, `\`, "/")
	rel := strings.TrimPrefix(normPath, normRoot)
	return strings.TrimPrefix(rel, "/")
}

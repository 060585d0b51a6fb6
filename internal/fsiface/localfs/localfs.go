// Package localfs implements fsiface.FS against the real, local filesystem
// rooted at a fixed anchor directory. It is the reference/testing
// implementation the ingester is exercised against; a FUSE-backed or
// in-memory implementation could satisfy the same interface without the
// ingester changing.
//
// The directory walk is grounded in the teacher's cmd/distri/pack.go
// filepath.Walk-based packing and internal/squashfs/writer.go's directory
// traversal; atomic writes use github.com/google/renameio the way the
// teacher's internal/build package does for generated files; non-recursive
// ForEach's parallel per-sibling stat fan-out uses golang.org/x/sync/errgroup.
package localfs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"golang.org/x/sync/errgroup"

	"github.com/oiarchive/oi/internal/fsiface"
	"github.com/oiarchive/oi/internal/oierr"
	"github.com/oiarchive/oi/internal/pathresolve"
)

// FS roots fsiface.FS operations at Anchor, resolving every path through
// pathresolve.Resolve so traversal outside Anchor is rejected the same way
// an ingest call site would see it rejected.
type FS struct {
	Anchor string
}

// New returns a localfs.FS anchored at dir.
func New(dir string) *FS {
	return &FS{Anchor: dir}
}

func (f *FS) resolve(path string) (string, bool, error) {
	resolved, isVirtual, err := pathresolve.Resolve(path, f.Anchor)
	if err != nil || isVirtual {
		return resolved, isVirtual, err
	}
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(f.Anchor, resolved)
	}
	return resolved, false, nil
}

func (f *FS) GetInfo(ctx context.Context, path string) (fsiface.Info, error) {
	if err := ctx.Err(); err != nil {
		return fsiface.Info{}, err
	}
	resolved, isVirtual, err := f.resolve(path)
	if err != nil {
		return fsiface.Info{}, err
	}
	if isVirtual {
		return fsiface.Info{}, oierr.UnsupportedOperation("localfs-virtual-path")
	}
	st, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return fsiface.Info{}, oierr.NotFound("path", resolved, -1)
		}
		return fsiface.Info{}, oierr.Wrap("localfs.GetInfo", err)
	}
	kind := fsiface.KindFile
	if st.IsDir() {
		kind = fsiface.KindDirectory
	}
	return fsiface.Info{Kind: kind, Size: st.Size(), MTime: st.ModTime()}, nil
}

func (f *FS) Read(ctx context.Context, path string, timeout time.Duration) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved, isVirtual, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	if isVirtual {
		return nil, oierr.UnsupportedOperation("localfs-virtual-path")
	}
	done := make(chan struct{})
	var data []byte
	var readErr error
	go func() {
		data, readErr = os.ReadFile(resolved)
		close(done)
	}()
	select {
	case <-done:
		if readErr != nil {
			return nil, oierr.Wrap("localfs.Read", readErr)
		}
		return data, nil
	case <-time.After(timeout):
		return nil, oierr.InvalidState("read-timeout")
	}
}

func (f *FS) Write(ctx context.Context, data []byte, path string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, isVirtual, err := f.resolve(path)
	if err != nil {
		return err
	}
	if isVirtual {
		return oierr.UnsupportedOperation("localfs-virtual-path")
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return oierr.Wrap("localfs.Write: mkdir", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- renameio.WriteFile(resolved, data, 0o644)
	}()
	select {
	case err := <-done:
		if err != nil {
			return oierr.Wrap("localfs.Write", err)
		}
		return nil
	case <-time.After(timeout):
		return oierr.InvalidState("write-timeout")
	}
}

// ForEach walks path, visiting every entry. When recursive is false only
// the immediate children of path are visited, and their stats are fanned
// out with errgroup — the filesystem-side concurrency the ingester's
// codec-side single-threaded model explicitly allows (spec §5). The
// recursive walk uses filepath.WalkDir and stats entries one at a time.
func (f *FS) ForEach(ctx context.Context, path string, recursive bool, visit fsiface.VisitFunc) error {
	resolved, isVirtual, err := f.resolve(path)
	if err != nil {
		return err
	}
	if isVirtual {
		return oierr.UnsupportedOperation("localfs-virtual-path")
	}

	if !recursive {
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return oierr.Wrap("localfs.ForEach: readdir", err)
		}
		infos := make([]fsiface.Info, len(entries))
		paths := make([]string, len(entries))
		g, gctx := errgroup.WithContext(ctx)
		for i, e := range entries {
			i, e := i, e
			childPath := filepath.Join(resolved, e.Name())
			paths[i] = childPath
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				st, err := e.Info()
				if err != nil {
					return oierr.Wrap("localfs.ForEach: stat", err)
				}
				kind := fsiface.KindFile
				if st.IsDir() {
					kind = fsiface.KindDirectory
				}
				infos[i] = fsiface.Info{Kind: kind, Size: st.Size(), MTime: st.ModTime()}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for i := range entries {
			if err := visit(paths[i], infos[i].Kind, infos[i].MTime, infos[i].Size); err != nil {
				return err
			}
		}
		return nil
	}

	return filepath.WalkDir(resolved, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return oierr.Wrap("localfs.ForEach: walk", err)
		}
		if p == resolved {
			return nil
		}
		st, err := d.Info()
		if err != nil {
			return oierr.Wrap("localfs.ForEach: stat", err)
		}
		kind := fsiface.KindFile
		if st.IsDir() {
			kind = fsiface.KindDirectory
		}
		return visit(p, kind, st.ModTime(), st.Size())
	})
}

func (f *FS) Add(ctx context.Context, path string, kind fsiface.Kind, timeout time.Duration) error {
	resolved, isVirtual, err := f.resolve(path)
	if err != nil {
		return err
	}
	if isVirtual {
		return oierr.UnsupportedOperation("localfs-virtual-path")
	}
	switch kind {
	case fsiface.KindDirectory:
		if err := os.MkdirAll(resolved, 0o755); err != nil {
			return oierr.Wrap("localfs.Add", err)
		}
		return nil
	case fsiface.KindFile:
		return f.Write(ctx, nil, path, timeout)
	default:
		return oierr.InvalidParameter("kind", "", -1)
	}
}

func (f *FS) Remove(ctx context.Context, path string, timeout time.Duration) error {
	resolved, isVirtual, err := f.resolve(path)
	if err != nil {
		return err
	}
	if isVirtual {
		return oierr.UnsupportedOperation("localfs-virtual-path")
	}
	done := make(chan error, 1)
	go func() {
		done <- os.RemoveAll(resolved)
	}()
	select {
	case err := <-done:
		if err != nil {
			return oierr.Wrap("localfs.Remove", err)
		}
		return nil
	case <-time.After(timeout):
		return oierr.InvalidState("remove-timeout")
	}
}

func (f *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	resolvedOld, isVirtualOld, err := f.resolve(oldPath)
	if err != nil {
		return err
	}
	resolvedNew, isVirtualNew, err := f.resolve(newPath)
	if err != nil {
		return err
	}
	if isVirtualOld || isVirtualNew {
		return oierr.UnsupportedOperation("localfs-virtual-path")
	}
	if err := os.Rename(resolvedOld, resolvedNew); err != nil {
		return oierr.Wrap("localfs.Rename", err)
	}
	return nil
}

func (f *FS) Move(ctx context.Context, src, dst string) error {
	return f.Rename(ctx, src, dst)
}

func (f *FS) Resolve(path string) (isVirtual bool, canonical string, err error) {
	resolved, isVirtual, err := f.resolve(path)
	if err != nil {
		return false, "", err
	}
	return isVirtual, resolved, nil
}

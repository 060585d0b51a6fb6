// Package fsiface declares the filesystem interface consumed by the
// ingester (package ingest), keeping it independent of the real
// filesystem, os, and any particular backing store. This is modeled on
// fuseops' op-dispatch shape (github.com/jacobsa/fuse/fuseops), which the
// teacher links for its FUSE frontend, here generalized to a plain
// synchronous Go interface since the spec treats the kernel FUSE protocol
// as out of scope — only the shape of "a filesystem ingest talks to" is
// carried over.
package fsiface

import (
	"context"
	"time"
)

// Kind identifies whether a filesystem entry is a regular file or a
// directory.
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

// Info describes a filesystem entry as reported by GetInfo/ForEach.
type Info struct {
	Kind  Kind
	Size  int64
	MTime time.Time
}

// VisitFunc is called once per entry during a ForEach walk.
type VisitFunc func(path string, kind Kind, mtime time.Time, size int64) error

// FS is the filesystem consumed by the ingester and exercised by
// internal/fsiface/localfs. Every operation except Resolve takes an explicit
// context; Read, Write, Add and Remove also take an explicit timeout. This
// matches §9's "no hidden
// globals" requirement — no package-level state anywhere in this
// interface's implementations.
type FS interface {
	GetInfo(ctx context.Context, path string) (Info, error)
	Read(ctx context.Context, path string, timeout time.Duration) ([]byte, error)
	Write(ctx context.Context, data []byte, path string, timeout time.Duration) error
	ForEach(ctx context.Context, path string, recursive bool, visit VisitFunc) error
	Add(ctx context.Context, path string, kind Kind, timeout time.Duration) error
	Remove(ctx context.Context, path string, timeout time.Duration) error
	Rename(ctx context.Context, oldPath, newPath string) error
	Move(ctx context.Context, src, dst string) error
	Resolve(path string) (isVirtual bool, canonical string, err error)
}

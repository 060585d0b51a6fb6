package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oiarchive/oi/archive"
	"github.com/oiarchive/oi/internal/fsiface/localfs"
)

func TestIngestWalksFilesAndDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a", "b", "c.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatal(err)
	}

	fs := localfs.New(dir)
	arc := archive.New()
	if err := Ingest(context.Background(), fs, dir, arc, time.Second); err != nil {
		t.Fatal(err)
	}

	entry, ok := arc.Lookup("a/b/c.txt")
	if !ok {
		t.Fatal("expected a/b/c.txt to be ingested")
	}
	if string(entry.Data) != "hello" {
		t.Errorf("data = %q, want hello", entry.Data)
	}
	if entry.Timestamp == nil {
		t.Error("expected a timestamp to be recorded")
	}

	dirEntry, ok := arc.Lookup("a/b")
	if !ok || dirEntry.Kind != archive.KindDirectory {
		t.Fatal("expected a/b to be ingested as a directory")
	}

	topEntry, ok := arc.Lookup("top.txt")
	if !ok || string(topEntry.Data) != "top" {
		t.Fatalf("expected top.txt = %q, got %+v ok=%v", "top", topEntry, ok)
	}
}

func TestIngestRejectsReservedName(t *testing.T) {
	dir := t.TempDir()
	// Reserved names are rejected case-insensitively by ValidateEntryPath;
	// use a directory name that collides after the root prefix is stripped.
	if err := os.Mkdir(filepath.Join(dir, "con"), 0o755); err != nil {
		t.Fatal(err)
	}

	fs := localfs.New(dir)
	arc := archive.New()
	if err := Ingest(context.Background(), fs, dir, arc, time.Second); err == nil {
		t.Error("expected reserved directory name to abort ingestion")
	}
}

func TestIngestNilArgumentsRejected(t *testing.T) {
	dir := t.TempDir()
	fs := localfs.New(dir)
	arc := archive.New()

	if err := Ingest(context.Background(), nil, dir, arc, time.Second); err == nil {
		t.Error("expected nil fs to be rejected")
	}
	if err := Ingest(context.Background(), fs, dir, nil, time.Second); err == nil {
		t.Error("expected nil archive to be rejected")
	}
}

func TestIngestPropagatesMissingRootError(t *testing.T) {
	dir := t.TempDir()
	fs := localfs.New(dir)
	arc := archive.New()
	if err := Ingest(context.Background(), fs, filepath.Join(dir, "missing"), arc, time.Second); err == nil {
		t.Error("expected ingesting a missing root to fail")
	}
}

func TestIngestDefaultsReadTimeout(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	fs := localfs.New(dir)
	arc := archive.New()
	if err := Ingest(context.Background(), fs, dir, arc, 0); err != nil {
		t.Fatal(err)
	}
	if _, ok := arc.Lookup("f.txt"); !ok {
		t.Error("expected f.txt to be ingested with the default read timeout")
	}
}

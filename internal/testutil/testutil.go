// Package testutil provides shared test helpers for course folders, notebooks
// and manifests.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/nbpublish/internal/manifest"
	"github.com/starford/nbpublish/internal/notebook"
	"github.com/starford/nbpublish/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestManifest creates a temporary manifest database that is closed on cleanup.
func TestManifest(t *testing.T) *manifest.DB {
	t.Helper()
	db, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDir creates dir (and parents) under root and returns a provider for it.
func TestDir(t *testing.T, root, dir string) storage.Provider {
	t.Helper()
	abs := filepath.Join(root, dir)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(abs)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// WriteNotebook writes a notebook built from cells into dir/name.
func WriteNotebook(t *testing.T, dir, name string, cells ...*notebook.Cell) []byte {
	t.Helper()
	data, err := notebook.New(cells...).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
	return data
}

// Code returns a code cell.
func Code(src string) *notebook.Cell { return notebook.NewCell(notebook.CellCode, src) }

// Markdown returns a markdown cell.
func Markdown(src string) *notebook.Cell { return notebook.NewCell(notebook.CellMarkdown, src) }

// Package storage defines the file-system abstraction over course folders.
package storage

import "github.com/starford/nbpublish/internal/models"

// Provider is the interface for operations on one folder tree.
// All paths are relative to the provider root.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// List returns metadata for the regular files directly in dir whose
	// names match the glob pattern, sorted by path.
	List(dir, pattern string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
}

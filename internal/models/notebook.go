// Package models defines the domain types shared across nbpublish packages.
package models

import "time"

// Build statuses recorded in the manifest.
const (
	StatusPublished = "published"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// FileMetadata is a lightweight description of a file in a folder.
type FileMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FolderPair maps an authored folder to its published counterpart.
type FolderPair struct {
	Topic  string `json:"topic"`
	Source string `json:"source"`
	Dest   string `json:"dest"`
}

// BuildRecord is the last known publish outcome of one notebook.
type BuildRecord struct {
	Source         string    `json:"source"`
	Dest           string    `json:"dest"`
	Topic          string    `json:"topic"`
	SourceChecksum string    `json:"source_checksum"`
	OutputChecksum string    `json:"output_checksum,omitempty"`
	Fingerprint    string    `json:"fingerprint"`
	CellsProcessed int       `json:"cells_processed"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// AssetRecord is a media file referenced by a published notebook.
type AssetRecord struct {
	Source   string `json:"source"`
	Filename string `json:"filename"`
	Found    bool   `json:"found"`
}

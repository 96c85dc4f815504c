package manifest

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/nbpublish/internal/apperr"
	"github.com/starford/nbpublish/internal/models"
)

// Store defines the manifest operations used by the publisher and the
// query surfaces. *DB is the only implementation.
type Store interface {
	Record(rec models.BuildRecord, assets []models.AssetRecord) error
	Get(source string) (*models.BuildRecord, error)
	List(status string, limit, offset int) ([]models.BuildRecord, int, error)
	Assets(source string) ([]models.AssetRecord, error)
	SourcesForAsset(filename string) ([]string, error)
	Delete(source string) error
	Close() error
}

var _ Store = (*DB)(nil)

// Record upserts a build record and replaces its asset list in one transaction.
// A nil assets slice keeps the previously recorded assets.
func (db *DB) Record(rec models.BuildRecord, assets []models.AssetRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.Exec(`
		INSERT INTO notebooks (source, dest, topic, source_checksum, output_checksum,
			fingerprint, cells_processed, status, error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			dest            = excluded.dest,
			topic           = excluded.topic,
			source_checksum = excluded.source_checksum,
			output_checksum = excluded.output_checksum,
			fingerprint     = excluded.fingerprint,
			cells_processed = excluded.cells_processed,
			status          = excluded.status,
			error           = excluded.error,
			updated_at      = excluded.updated_at
	`, rec.Source, rec.Dest, rec.Topic, rec.SourceChecksum, rec.OutputChecksum,
		rec.Fingerprint, rec.CellsProcessed, rec.Status, rec.Error, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("manifest: upsert notebook: %w", err)
	}

	if assets != nil {
		if _, err := tx.Exec(`DELETE FROM assets WHERE source = ?`, rec.Source); err != nil {
			return fmt.Errorf("manifest: clear assets: %w", err)
		}
		if len(assets) > 0 {
			stmt, err := tx.Prepare(`INSERT OR REPLACE INTO assets (source, filename, found) VALUES (?, ?, ?)`)
			if err != nil {
				return fmt.Errorf("manifest: prepare asset insert: %w", err)
			}
			defer stmt.Close()
			for _, a := range assets {
				if _, err := stmt.Exec(rec.Source, a.Filename, a.Found); err != nil {
					return fmt.Errorf("manifest: insert asset: %w", err)
				}
			}
		}
	}

	return tx.Commit()
}

// Get returns the record for source, or apperr.ErrNotFound.
func (db *DB) Get(source string) (*models.BuildRecord, error) {
	row := db.conn.QueryRow(`
		SELECT source, dest, topic, source_checksum, output_checksum, fingerprint,
		       cells_processed, status, error, updated_at
		FROM notebooks WHERE source = ?`, source)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: get: %w", err)
	}
	return rec, nil
}

// List returns records ordered by source, optionally filtered by status,
// plus the total number of matching records.
func (db *DB) List(status string, limit, offset int) ([]models.BuildRecord, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	var args []any
	if status != "" {
		where = "WHERE status = ?"
		args = append(args, status)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notebooks `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("manifest: count: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT source, dest, topic, source_checksum, output_checksum, fingerprint,
		       cells_processed, status, error, updated_at
		FROM notebooks `+where+`
		ORDER BY source
		LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("manifest: list: %w", err)
	}
	defer rows.Close()

	var out []models.BuildRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("manifest: list: %w", err)
		}
		out = append(out, *rec)
	}
	return out, total, rows.Err()
}

// Assets returns the media files recorded for source.
func (db *DB) Assets(source string) ([]models.AssetRecord, error) {
	rows, err := db.conn.Query(`SELECT source, filename, found FROM assets WHERE source = ? ORDER BY filename`, source)
	if err != nil {
		return nil, fmt.Errorf("manifest: assets: %w", err)
	}
	defer rows.Close()

	var out []models.AssetRecord
	for rows.Next() {
		var a models.AssetRecord
		if err := rows.Scan(&a.Source, &a.Filename, &a.Found); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SourcesForAsset returns the notebooks that reference filename.
func (db *DB) SourcesForAsset(filename string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM assets WHERE filename = ? ORDER BY source`, filename)
	if err != nil {
		return nil, fmt.Errorf("manifest: sources for asset: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a record and its assets.
func (db *DB) Delete(source string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM assets WHERE source = ?`, source); err != nil {
		return fmt.Errorf("manifest: delete assets: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notebooks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("manifest: delete notebook: %w", err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.BuildRecord, error) {
	var rec models.BuildRecord
	err := s.Scan(&rec.Source, &rec.Dest, &rec.Topic, &rec.SourceChecksum, &rec.OutputChecksum,
		&rec.Fingerprint, &rec.CellsProcessed, &rec.Status, &rec.Error, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

package manifest

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/nbpublish/internal/apperr"
	"github.com/starford/nbpublish/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func record(source, status string) models.BuildRecord {
	return models.BuildRecord{
		Source:         source,
		Dest:           "out/" + source,
		Topic:          "1",
		SourceChecksum: "src-" + source,
		Fingerprint:    "fp",
		Status:         status,
		UpdatedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notebooks`).Scan(&count); err != nil {
		t.Fatalf("notebooks table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM assets`).Scan(&count); err != nil {
		t.Fatalf("assets table missing: %v", err)
	}
}

func TestRecordAndGet(t *testing.T) {
	db := testDB(t)
	rec := record("a.ipynb", models.StatusPublished)
	rec.CellsProcessed = 3
	assets := []models.AssetRecord{{Filename: "plot.png", Found: true}, {Filename: "gone.png"}}
	if err := db.Record(rec, assets); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := db.Get("a.ipynb")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CellsProcessed != 3 || got.Status != models.StatusPublished || got.Dest != "out/a.ipynb" {
		t.Errorf("record = %+v", got)
	}
	if !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, rec.UpdatedAt)
	}

	as, err := db.Assets("a.ipynb")
	if err != nil {
		t.Fatalf("Assets: %v", err)
	}
	if len(as) != 2 || as[0].Filename != "gone.png" || as[0].Found || !as[1].Found {
		t.Errorf("assets = %+v", as)
	}
}

func TestRecordReplacesAssets(t *testing.T) {
	db := testDB(t)
	_ = db.Record(record("a.ipynb", models.StatusPublished), []models.AssetRecord{{Filename: "old.png"}})
	_ = db.Record(record("a.ipynb", models.StatusPublished), []models.AssetRecord{{Filename: "new.png"}})

	if srcs, _ := db.SourcesForAsset("old.png"); len(srcs) != 0 {
		t.Errorf("old asset still linked: %v", srcs)
	}
	if srcs, _ := db.SourcesForAsset("new.png"); len(srcs) != 1 {
		t.Errorf("new asset not linked: %v", srcs)
	}
}

func TestRecordNilAssetsKeepsExisting(t *testing.T) {
	db := testDB(t)
	_ = db.Record(record("a.ipynb", models.StatusPublished), []models.AssetRecord{{Filename: "keep.png"}})
	_ = db.Record(record("a.ipynb", models.StatusFailed), nil)

	as, _ := db.Assets("a.ipynb")
	if len(as) != 1 {
		t.Errorf("assets = %+v, want the previous one", as)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.Get("missing.ipynb"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListFilterAndPaging(t *testing.T) {
	db := testDB(t)
	_ = db.Record(record("c.ipynb", models.StatusPublished), nil)
	_ = db.Record(record("a.ipynb", models.StatusPublished), nil)
	_ = db.Record(record("b.ipynb", models.StatusFailed), nil)

	all, total, err := db.List("", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(all) != 3 || all[0].Source != "a.ipynb" {
		t.Errorf("all = %+v total = %d", all, total)
	}

	failed, total, _ := db.List(models.StatusFailed, 10, 0)
	if total != 1 || len(failed) != 1 || failed[0].Source != "b.ipynb" {
		t.Errorf("failed = %+v", failed)
	}

	page, total, _ := db.List("", 1, 1)
	if total != 3 || len(page) != 1 || page[0].Source != "b.ipynb" {
		t.Errorf("page = %+v", page)
	}
}

func TestDelete(t *testing.T) {
	db := testDB(t)
	_ = db.Record(record("d.ipynb", models.StatusPublished), []models.AssetRecord{{Filename: "x.png"}})
	if err := db.Delete("d.ipynb"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := db.Get("d.ipynb"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("record still present: %v", err)
	}
	if srcs, _ := db.SourcesForAsset("x.png"); len(srcs) != 0 {
		t.Errorf("assets still present: %v", srcs)
	}
}

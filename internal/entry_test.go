package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/nbpublish/internal/apperr"
	"github.com/starford/nbpublish/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	root := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Course.Root = root
	cfg.Course.Folders = []FolderConfig{{Topic: "1"}, {Topic: "2"}}
	cfg.SQLite.Path = filepath.Join(root, ".nbpublish.db")
	if err := os.MkdirAll(filepath.Join(root, "notebooks", "1-dev"), 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestPublish_WritesReport(t *testing.T) {
	cfg := testConfig(t)
	src := filepath.Join(cfg.Course.Root, "notebooks", "1-dev")
	testutil.WriteNotebook(t, src, "1.01.ipynb",
		testutil.Code("### BEGIN SOLUTION\nx = 1\n### END SOLUTION"))
	if err := os.MkdirAll(filepath.Join(cfg.Course.Root, "media"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Course.Root, "media", "fig.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	testutil.WriteNotebook(t, src, "1.02.ipynb", testutil.Markdown("![fig](../../media/fig.png)"))

	var out bytes.Buffer
	err := Publish(context.Background(), PublishOptions{},
		WithConfig(cfg), WithLogOutput(io.Discard), WithOutput(&out))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !strings.Contains(out.String(), "2 published, 0 skipped, 0 failed") {
		t.Errorf("report = %s", out.String())
	}
	for _, p := range []string{
		filepath.Join("notebooks", "1", "1.01.ipynb"),
		filepath.Join("notebooks", "1", "1.02.ipynb"),
		filepath.Join("_build", "html", "_images", "fig.png"),
	} {
		if _, err := os.Stat(filepath.Join(cfg.Course.Root, p)); err != nil {
			t.Errorf("%s missing: %v", p, err)
		}
	}

	out.Reset()
	if err := Publish(context.Background(), PublishOptions{},
		WithConfig(cfg), WithLogOutput(io.Discard), WithOutput(&out)); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if !strings.Contains(out.String(), "0 published, 2 skipped") {
		t.Errorf("second report = %s", out.String())
	}
}

func TestPublish_FailureReturnsError(t *testing.T) {
	cfg := testConfig(t)
	src := filepath.Join(cfg.Course.Root, "notebooks", "1-dev")
	testutil.WriteNotebook(t, src, "good.ipynb", testutil.Code("x"))
	if err := os.WriteFile(filepath.Join(src, "bad.ipynb"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := Publish(context.Background(), PublishOptions{Workers: 2},
		WithConfig(cfg), WithLogOutput(io.Discard), WithOutput(&out))
	if !errors.Is(err, apperr.ErrInvalidNotebook) {
		t.Fatalf("err = %v, want ErrInvalidNotebook", err)
	}
	if !strings.Contains(out.String(), "1 published, 0 skipped, 1 failed") {
		t.Errorf("report = %s", out.String())
	}
	if _, err := os.Stat(filepath.Join(cfg.Course.Root, "notebooks", "1", "bad.ipynb")); !os.IsNotExist(err) {
		t.Errorf("failed notebook left output: %v", err)
	}
}

func TestPublish_NoSourceFolders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Course.Folders = []FolderConfig{{Topic: "9"}}

	err := Publish(context.Background(), PublishOptions{},
		WithConfig(cfg), WithLogOutput(io.Discard), WithOutput(io.Discard))
	if err == nil {
		t.Fatal("expected error without any source folder")
	}
}

func TestPublish_RequiresConfig(t *testing.T) {
	if err := Publish(context.Background(), PublishOptions{}, WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestSetup_Locked(t *testing.T) {
	cfg := testConfig(t)

	rt, err := setup([]Option{WithConfig(cfg), WithLogOutput(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.close()

	err = Publish(context.Background(), PublishOptions{},
		WithConfig(cfg), WithLogOutput(io.Discard), WithOutput(io.Discard))
	if !errors.Is(err, apperr.ErrLocked) {
		t.Errorf("err = %v, want ErrLocked", err)
	}
}

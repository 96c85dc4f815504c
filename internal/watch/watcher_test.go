package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/nbpublish/internal/manifest"
	"github.com/starford/nbpublish/internal/models"
	"github.com/starford/nbpublish/internal/publish"
	"github.com/starford/nbpublish/internal/sanitize"
	"github.com/starford/nbpublish/internal/testutil"
)

type watchEnv struct {
	src, dst, media, images string
	pub                     *publish.Publisher
	db                      *manifest.DB
}

func newWatchEnv(t *testing.T) watchEnv {
	t.Helper()
	root := t.TempDir()
	db := testutil.TestManifest(t)
	f := publish.Folder{
		Pair: models.FolderPair{Topic: "2", Source: "2-dev", Dest: "2"},
		Src:  testutil.TestDir(t, root, "2-dev"),
		Dst:  testutil.TestDir(t, root, "2"),
	}
	assets := publish.NewAssetPublisher(testutil.TestDir(t, root, "media"), testutil.TestDir(t, root, "images"), testutil.Logger())
	pub := publish.New([]publish.Folder{f}, sanitize.DefaultRules(), assets, testutil.Logger(), publish.WithManifest(db))
	return watchEnv{
		src:    filepath.Join(root, "2-dev"),
		dst:    filepath.Join(root, "2"),
		media:  filepath.Join(root, "media"),
		images: filepath.Join(root, "images"),
		pub:    pub,
		db:     db,
	}
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) cb(kind, path string) {
	r.mu.Lock()
	r.events = append(r.events, kind+":"+filepath.Base(path))
	r.mu.Unlock()
}

func (r *recorder) has(e string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.events {
		if got == e {
			return true
		}
	}
	return false
}

func startWatch(t *testing.T, e watchEnv, rec *recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, e.pub, e.db, testutil.Logger(), rec.cb)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_NewNotebookPublished(t *testing.T) {
	e := newWatchEnv(t)
	rec := &recorder{}
	startWatch(t, e, rec)

	testutil.WriteNotebook(t, e.src, "new.ipynb", testutil.Code("### BEGIN SOLUTION\nx\n### END SOLUTION"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		data, err := os.ReadFile(filepath.Join(e.dst, "new.ipynb"))
		return err == nil && strings.Contains(string(data), "# Add your solution here")
	}, "new notebook not published by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("published:new.ipynb")
	}, "published event not delivered")
}

func TestWatcher_IgnoresNonMatchingFiles(t *testing.T) {
	e := newWatchEnv(t)
	rec := &recorder{}
	startWatch(t, e, rec)

	_ = os.WriteFile(filepath.Join(e.src, "scratch.txt"), []byte("x"), 0o644)
	time.Sleep(500 * time.Millisecond)

	if _, err := os.Stat(filepath.Join(e.dst, "scratch.txt")); !os.IsNotExist(err) {
		t.Error("non-notebook file should not be published")
	}
}

func TestWatcher_DeleteRemovesPublishedCopy(t *testing.T) {
	e := newWatchEnv(t)
	rec := &recorder{}
	testutil.WriteNotebook(t, e.src, "gone.ipynb", testutil.Code("x"))
	if _, err := e.pub.Run(context.Background(), publish.Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	startWatch(t, e, rec)

	_ = os.Remove(filepath.Join(e.src, "gone.ipynb"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := os.Stat(filepath.Join(e.dst, "gone.ipynb"))
		return os.IsNotExist(err)
	}, "published copy not removed")
	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("removed:gone.ipynb")
	}, "removed event not delivered")
}

func TestWatcher_MediaChangeRecopies(t *testing.T) {
	e := newWatchEnv(t)
	rec := &recorder{}
	_ = os.WriteFile(filepath.Join(e.media, "fig.png"), []byte("v1"), 0o644)
	testutil.WriteNotebook(t, e.src, "fig.ipynb", testutil.Markdown("![f](../../media/fig.png)"))
	if _, err := e.pub.Run(context.Background(), publish.Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	startWatch(t, e, rec)

	_ = os.WriteFile(filepath.Join(e.media, "fig.png"), []byte("v2"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		data, err := os.ReadFile(filepath.Join(e.images, "fig.png"))
		return err == nil && string(data) == "v2"
	}, "changed media not copied again")
}

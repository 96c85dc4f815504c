// Package watch republishes notebooks as their authored copies or the media
// files they reference change on disk.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/nbpublish/internal/manifest"
	"github.com/starford/nbpublish/internal/models"
	"github.com/starford/nbpublish/internal/publish"
)

// Event kinds passed to EventCallback.
const (
	KindPublished = "published"
	KindFailed    = "failed"
	KindRemoved   = "removed"
)

// EventCallback is called after each watcher-driven publish or removal.
type EventCallback func(kind string, path string)

const debounce = 200 * time.Millisecond

type change struct {
	folder  publish.Folder
	name    string
	removed bool
}

// Watch watches every source folder and the media directory until ctx is
// cancelled. Bursts of events for the same file are coalesced for a short
// debounce window before acting on them.
func Watch(ctx context.Context, pub *publish.Publisher, m manifest.Store, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	bySrc := make(map[string]publish.Folder)
	for _, f := range pub.Folders() {
		root := f.Src.Root()
		if err := w.Add(root); err != nil {
			return err
		}
		bySrc[root] = f
	}
	mediaRoot := pub.MediaRoot()
	if mediaRoot != "" {
		if err := w.Add(mediaRoot); err != nil {
			return err
		}
	}

	logger.Info("watcher: started", slog.Int("folders", len(bySrc)), slog.String("media", mediaRoot))

	pending := make(map[string]change)
	pendingMedia := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			flush(ctx, pub, m, logger, cb, pending, pendingMedia)
			pending = make(map[string]change)
			pendingMedia = make(map[string]struct{})

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			dir, name := filepath.Split(ev.Name)
			dir = filepath.Clean(dir)

			if dir == mediaRoot {
				if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
					pendingMedia[name] = struct{}{}
					schedule()
				}
				continue
			}

			f, ok := bySrc[dir]
			if !ok || !pub.Matches(name) {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[ev.Name] = change{folder: f, name: name}
				schedule()
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify reports Rename on the old path; the new path
				// arrives as its own Create.
				pending[ev.Name] = change{folder: f, name: name, removed: true}
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// flush applies the coalesced changes in a stable order.
func flush(ctx context.Context, pub *publish.Publisher, m manifest.Store, logger *slog.Logger, cb EventCallback,
	pending map[string]change, pendingMedia map[string]struct{}) {
	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		c := pending[k]
		if c.removed {
			exists, _ := c.folder.Src.Exists(c.name)
			if !exists {
				if err := pub.Remove(c.folder, c.name); err != nil {
					logger.Warn("watcher: remove failed", slog.String("path", k), slog.String("error", err.Error()))
					continue
				}
				notify(cb, KindRemoved, filepath.Join(c.folder.Pair.Dest, c.name))
				continue
			}
		}
		res := pub.PublishNotebook(ctx, c.folder, c.name, false)
		report(cb, res)
	}

	if m == nil || len(pendingMedia) == 0 {
		return
	}
	files := make([]string, 0, len(pendingMedia))
	for f := range pendingMedia {
		files = append(files, f)
	}
	sort.Strings(files)
	done := make(map[string]struct{})
	for _, file := range files {
		sources, err := m.SourcesForAsset(file)
		if err != nil {
			logger.Warn("watcher: asset lookup failed", slog.String("file", file), slog.String("error", err.Error()))
			continue
		}
		for _, src := range sources {
			if _, ok := done[src]; ok {
				continue
			}
			done[src] = struct{}{}
			f, name, ok := pub.Resolve(src)
			if !ok {
				continue
			}
			logger.Debug("watcher: media changed", slog.String("file", file), slog.String("source", src))
			report(cb, pub.PublishNotebook(ctx, f, name, true))
		}
	}
}

func report(cb EventCallback, res publish.Result) {
	switch res.Status {
	case models.StatusPublished:
		notify(cb, KindPublished, res.Dest)
	case models.StatusFailed:
		notify(cb, KindFailed, res.Source)
	}
}

func notify(cb EventCallback, kind, path string) {
	if cb != nil {
		cb(kind, path)
	}
}

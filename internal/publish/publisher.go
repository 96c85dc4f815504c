// Package publish drives the notebook sanitizer over the course folders: it
// reads authored notebooks, runs the rewrite pipeline, copies referenced media
// and writes the published copies, recording each outcome in the manifest.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nbpublish/internal/apperr"
	"github.com/starford/nbpublish/internal/checksum"
	"github.com/starford/nbpublish/internal/manifest"
	"github.com/starford/nbpublish/internal/models"
	"github.com/starford/nbpublish/internal/notebook"
	"github.com/starford/nbpublish/internal/sanitize"
	"github.com/starford/nbpublish/internal/storage"
)

// Folder is a folder pair with its opened storage.
type Folder struct {
	Pair models.FolderPair
	Src  storage.Provider
	Dst  storage.Provider
}

// Options controls a batch run.
type Options struct {
	Force   bool
	Prune   bool
	Topics  []string
	Workers int
}

// Result is the outcome of publishing one notebook.
type Result struct {
	Topic          string         `json:"topic"`
	Source         string         `json:"source"`
	Dest           string         `json:"dest"`
	Status         string         `json:"status"`
	CellsProcessed int            `json:"cells_processed"`
	Hits           map[string]int `json:"hits,omitempty"`
	Assets         []AssetResult  `json:"assets,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	Err            error          `json:"-"`
}

// Summary is the outcome of a batch run, in folder then filename order.
type Summary struct {
	Results []Result `json:"results"`
	Pruned  []string `json:"pruned,omitempty"`
}

// Count returns how many results have the given status.
func (s Summary) Count(status string) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithManifest enables build records and incremental skipping.
func WithManifest(m manifest.Store) Option {
	return func(p *Publisher) { p.manifest = m }
}

// WithPattern sets the glob notebooks must match. Default "*.ipynb".
func WithPattern(pattern string) Option {
	return func(p *Publisher) { p.pattern = pattern }
}

// WithLockFile sets the file used to keep two processes from publishing
// into the same build at once.
func WithLockFile(path string) Option {
	return func(p *Publisher) { p.lock = flock.New(path) }
}

// Publisher publishes notebooks for a fixed set of folder pairs.
type Publisher struct {
	folders     []Folder
	rules       sanitize.Rules
	pipeline    *sanitize.Pipeline
	fingerprint string
	pattern     string
	assets      *AssetPublisher
	manifest    manifest.Store
	lock        *flock.Flock
	logger      *slog.Logger

	runMu sync.Mutex

	sourceMu sync.Mutex
	sources  map[string]*sync.Mutex
}

// New creates a Publisher.
func New(folders []Folder, rules sanitize.Rules, assets *AssetPublisher, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		folders:     folders,
		rules:       rules,
		pipeline:    sanitize.DefaultPipeline(rules),
		fingerprint: rules.Fingerprint(),
		pattern:     "*.ipynb",
		assets:      assets,
		logger:      logger,
		sources:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire takes the cross-process build lock. It returns apperr.ErrLocked
// when another process holds it. Without a lock file it is a no-op.
func (p *Publisher) Acquire() error {
	if p.lock == nil {
		return nil
	}
	ok, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("publish: acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("publish: %s: %w", p.lock.Path(), apperr.ErrLocked)
	}
	return nil
}

// Release drops the build lock.
func (p *Publisher) Release() {
	if p.lock == nil {
		return
	}
	if err := p.lock.Unlock(); err != nil {
		p.logger.Warn("publish: release lock failed", slog.String("error", err.Error()))
	}
}

// Rules returns the rule set the publisher applies.
func (p *Publisher) Rules() sanitize.Rules { return p.rules }

// Steps returns the pipeline step names in execution order.
func (p *Publisher) Steps() []string { return p.pipeline.StepNames() }

// Folders returns the configured folder pairs.
func (p *Publisher) Folders() []Folder { return p.folders }

// MediaRoot returns the absolute media directory, or "" if there is none.
func (p *Publisher) MediaRoot() string { return p.assets.MediaRoot() }

// Pattern returns the notebook filename glob.
func (p *Publisher) Pattern() string { return p.pattern }

// Folder returns the folder pair for topic.
func (p *Publisher) Folder(topic string) (Folder, bool) {
	for _, f := range p.folders {
		if f.Pair.Topic == topic {
			return f, true
		}
	}
	return Folder{}, false
}

// Matches reports whether name is a notebook the publisher handles.
func (p *Publisher) Matches(name string) bool {
	ok, _ := filepath.Match(p.pattern, filepath.Base(name))
	return ok
}

// SourceKey is the manifest key of a notebook.
func SourceKey(f Folder, name string) string {
	return filepath.Join(f.Pair.Source, name)
}

// Resolve maps a manifest source key back to its folder and filename.
func (p *Publisher) Resolve(source string) (Folder, string, bool) {
	dir, name := filepath.Split(source)
	dir = filepath.Clean(dir)
	for _, f := range p.folders {
		if filepath.Clean(f.Pair.Source) == dir {
			return f, name, true
		}
	}
	return Folder{}, "", false
}

// Preview sanitizes a notebook document without touching any file.
func (p *Publisher) Preview(data []byte) (*notebook.Notebook, sanitize.Report, error) {
	nb, err := notebook.Parse(data)
	if err != nil {
		return nil, sanitize.Report{}, err
	}
	return nb, p.pipeline.Run(nb), nil
}

// PublishNotebook publishes one notebook of folder f. Parse, asset copy and
// write failures are fatal for this notebook only: nothing is written and the
// failure is recorded and returned in Result.Err.
func (p *Publisher) PublishNotebook(ctx context.Context, f Folder, name string, force bool) Result {
	res := Result{
		Topic:  f.Pair.Topic,
		Source: SourceKey(f, name),
		Dest:   filepath.Join(f.Pair.Dest, name),
	}
	if err := ctx.Err(); err != nil {
		return p.fail(res, "", err)
	}
	unlock := p.lockSource(res.Source)
	defer unlock()

	p.logger.Info("publish: opening", slog.String("source", res.Source))
	data, err := f.Src.Read(name)
	if err != nil {
		return p.fail(res, "", err)
	}
	srcSum := checksum.Sum(data)

	if rec := p.upToDate(f, name, res.Source, srcSum, force); rec != nil {
		return p.refreshAssets(res, rec)
	}

	nb, rep, err := p.Preview(data)
	if err != nil {
		return p.fail(res, srcSum, err)
	}
	res.CellsProcessed = rep.CellsProcessed
	res.Hits = rep.Hits

	assetRecs, err := p.publishAssets(&res, rep.AssetFiles())
	if err != nil {
		return p.fail(res, srcSum, err)
	}

	out, err := nb.Marshal()
	if err != nil {
		return p.fail(res, srcSum, err)
	}
	if err := f.Dst.Write(name, out); err != nil {
		return p.fail(res, srcSum, err)
	}

	res.Status = models.StatusPublished
	p.logger.Info("publish: cells processed",
		slog.String("dest", res.Dest),
		slog.Int("cells", rep.CellsProcessed),
		slog.Int("assets", len(res.Assets)))

	p.record(models.BuildRecord{
		Source:         res.Source,
		Dest:           res.Dest,
		Topic:          res.Topic,
		SourceChecksum: srcSum,
		OutputChecksum: checksum.Sum(out),
		Fingerprint:    p.fingerprint,
		CellsProcessed: rep.CellsProcessed,
		Status:         models.StatusPublished,
		UpdatedAt:      time.Now().UTC(),
	}, assetRecs)
	return res
}

// lockSource serializes publishes and removals of one notebook. Batch runs,
// the watcher and API calls may target the same source at once.
func (p *Publisher) lockSource(source string) func() {
	p.sourceMu.Lock()
	mu, ok := p.sources[source]
	if !ok {
		mu = &sync.Mutex{}
		p.sources[source] = mu
	}
	p.sourceMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// upToDate returns the stored record when the notebook can be skipped: it
// was published from the same source bytes under the same rules and the
// output still exists.
func (p *Publisher) upToDate(f Folder, name, source, srcSum string, force bool) *models.BuildRecord {
	if force || p.manifest == nil {
		return nil
	}
	rec, err := p.manifest.Get(source)
	if err != nil {
		return nil
	}
	if rec.Status != models.StatusPublished || rec.SourceChecksum != srcSum || rec.Fingerprint != p.fingerprint {
		return nil
	}
	if ok, err := f.Dst.Exists(name); err != nil || !ok {
		return nil
	}
	return rec
}

// refreshAssets runs the asset pass for a skipped notebook so media added
// since the last publish, or removed from the build, is copied again.
func (p *Publisher) refreshAssets(res Result, rec *models.BuildRecord) Result {
	res.Status = models.StatusSkipped
	res.CellsProcessed = rec.CellsProcessed
	p.logger.Debug("publish: unchanged", slog.String("source", res.Source))

	stored, err := p.manifest.Assets(res.Source)
	if err != nil {
		p.logger.Warn("publish: asset lookup failed", slog.String("source", res.Source), slog.String("error", err.Error()))
		return res
	}
	files := make([]string, len(stored))
	for i, a := range stored {
		files[i] = a.Filename
	}
	recs, err := p.publishAssets(&res, files)
	if err != nil {
		return p.fail(res, rec.SourceChecksum, err)
	}
	for i := range recs {
		if recs[i].Found != stored[i].Found {
			p.record(*rec, recs)
			break
		}
	}
	return res
}

// publishAssets copies every referenced media file and reports the missing
// ones as warnings on res.
func (p *Publisher) publishAssets(res *Result, files []string) ([]models.AssetRecord, error) {
	recs := []models.AssetRecord{}
	for _, file := range files {
		ar, err := p.assets.Publish(file)
		if err != nil {
			return nil, err
		}
		if !ar.Found {
			res.Warnings = append(res.Warnings, fmt.Sprintf("media file not found: %s", file))
			p.logger.Warn("publish: media file not found",
				slog.String("source", res.Source),
				slog.String("file", file),
				slog.String("media_dir", p.assets.MediaRoot()))
		}
		res.Assets = append(res.Assets, ar)
		recs = append(recs, models.AssetRecord{Filename: file, Found: ar.Found})
	}
	return recs, nil
}

func (p *Publisher) fail(res Result, srcSum string, err error) Result {
	res.Status = models.StatusFailed
	res.Err = fmt.Errorf("%s: %w", res.Source, err)
	p.logger.Error("publish: failed", slog.String("source", res.Source), slog.String("error", err.Error()))
	p.record(models.BuildRecord{
		Source:         res.Source,
		Dest:           res.Dest,
		Topic:          res.Topic,
		SourceChecksum: srcSum,
		Fingerprint:    p.fingerprint,
		Status:         models.StatusFailed,
		Error:          err.Error(),
		UpdatedAt:      time.Now().UTC(),
	}, nil)
	return res
}

func (p *Publisher) record(rec models.BuildRecord, assets []models.AssetRecord) {
	if p.manifest == nil {
		return
	}
	if err := p.manifest.Record(rec, assets); err != nil {
		p.logger.Warn("publish: manifest record failed", slog.String("source", rec.Source), slog.String("error", err.Error()))
	}
}

// Run publishes every matching notebook of the selected folders. Failures of
// single notebooks do not stop the batch; they are all joined into the
// returned error.
func (p *Publisher) Run(ctx context.Context, opts Options) (Summary, error) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	folders, err := p.selectFolders(opts.Topics)
	if err != nil {
		return Summary{}, err
	}

	type job struct {
		folder Folder
		name   string
	}
	var jobs []job
	var errs []error
	for _, f := range folders {
		metas, err := f.Src.List("", p.pattern)
		if err != nil {
			p.logger.Error("publish: list failed", slog.String("folder", f.Pair.Source), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", f.Pair.Source, err))
			continue
		}
		for _, m := range metas {
			jobs = append(jobs, job{folder: f, name: m.Path})
		}
	}

	results := make([]Result, len(jobs))
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = p.PublishNotebook(gCtx, j.folder, j.name, opts.Force)
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Results: results}
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}

	if opts.Prune {
		for _, f := range folders {
			pruned, err := p.Prune(f)
			if err != nil {
				errs = append(errs, err)
			}
			sum.Pruned = append(sum.Pruned, pruned...)
		}
	}

	p.logger.Info("publish: run finished",
		slog.Int("published", sum.Count(models.StatusPublished)),
		slog.Int("skipped", sum.Count(models.StatusSkipped)),
		slog.Int("failed", sum.Count(models.StatusFailed)),
		slog.Int("pruned", len(sum.Pruned)))

	return sum, errors.Join(errs...)
}

func (p *Publisher) selectFolders(topics []string) ([]Folder, error) {
	if len(topics) == 0 {
		return p.folders, nil
	}
	out := make([]Folder, 0, len(topics))
	for _, t := range topics {
		f, ok := p.Folder(t)
		if !ok {
			return nil, fmt.Errorf("publish: unknown topic %q: %w", t, apperr.ErrNotFound)
		}
		out = append(out, f)
	}
	return out, nil
}

// Remove deletes the published copy of a notebook and its build record.
// A published copy that is already gone is not an error.
func (p *Publisher) Remove(f Folder, name string) error {
	unlock := p.lockSource(SourceKey(f, name))
	defer unlock()

	ok, err := f.Dst.Exists(name)
	if err != nil {
		return err
	}
	if ok {
		if err := f.Dst.Delete(name); err != nil {
			return err
		}
	}
	if p.manifest != nil {
		if err := p.manifest.Delete(SourceKey(f, name)); err != nil {
			return err
		}
	}
	p.logger.Info("publish: removed", slog.String("dest", filepath.Join(f.Pair.Dest, name)))
	return nil
}

// Prune removes published notebooks whose authored source no longer exists.
func (p *Publisher) Prune(f Folder) ([]string, error) {
	published, err := f.Dst.List("", p.pattern)
	if err != nil {
		return nil, fmt.Errorf("publish: prune %s: %w", f.Pair.Dest, err)
	}
	var pruned []string
	for _, m := range published {
		ok, err := f.Src.Exists(m.Path)
		if err != nil {
			return pruned, fmt.Errorf("publish: prune %s: %w", f.Pair.Dest, err)
		}
		if ok {
			continue
		}
		if err := p.Remove(f, m.Path); err != nil {
			return pruned, fmt.Errorf("publish: prune %s: %w", f.Pair.Dest, err)
		}
		pruned = append(pruned, filepath.Join(f.Pair.Dest, m.Path))
	}
	return pruned, nil
}

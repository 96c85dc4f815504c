// Package buildservice is the query and command surface shared by the HTTP
// API and the MCP server.
package buildservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/nbpublish/internal/apperr"
	"github.com/starford/nbpublish/internal/manifest"
	"github.com/starford/nbpublish/internal/models"
	"github.com/starford/nbpublish/internal/notebook"
	"github.com/starford/nbpublish/internal/publish"
	"github.com/starford/nbpublish/internal/sanitize"
)

// BuildDetail is a build record with its media assets.
type BuildDetail struct {
	models.BuildRecord
	Assets []models.AssetRecord `json:"assets"`
}

// PreviewCell is one sanitized cell.
type PreviewCell struct {
	Type   notebook.CellType `json:"cell_type"`
	Source string            `json:"source"`
}

// Preview is the result of sanitizing a notebook without publishing it.
type Preview struct {
	Cells  []PreviewCell   `json:"cells"`
	Report sanitize.Report `json:"report"`
}

// PublishResult is the JSON form of a publish.Result.
type PublishResult struct {
	publish.Result
	Error string `json:"error,omitempty"`
}

// EventCallback receives "published", "failed" and "removed" notifications
// for publishes started through the service.
type EventCallback func(kind, path string)

// Service coordinates the publisher and the manifest.
type Service struct {
	pub    *publish.Publisher
	db     manifest.Store
	notify EventCallback
}

// NewService creates a new build service. notify may be nil.
func NewService(pub *publish.Publisher, db manifest.Store, notify EventCallback) *Service {
	return &Service{pub: pub, db: db, notify: notify}
}

// ListBuilds returns build records, optionally filtered by status.
func (s *Service) ListBuilds(_ context.Context, status string, limit, offset int) ([]models.BuildRecord, int, error) {
	rows, total, err := s.db.List(status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return nonNilSlice(rows), total, nil
}

// GetBuild returns the record and assets of one notebook.
func (s *Service) GetBuild(_ context.Context, source string) (*BuildDetail, error) {
	rec, err := s.db.Get(source)
	if err != nil {
		return nil, err
	}
	assets, err := s.db.Assets(source)
	if err != nil {
		return nil, err
	}
	return &BuildDetail{BuildRecord: *rec, Assets: nonNilSlice(assets)}, nil
}

// ListSources returns the authored notebooks of every folder, or only those
// of topic when it is non-empty.
func (s *Service) ListSources(_ context.Context, topic string) ([]string, error) {
	var out []string
	for _, f := range s.pub.Folders() {
		if topic != "" && f.Pair.Topic != topic {
			continue
		}
		metas, err := f.Src.List("", s.pub.Pattern())
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			out = append(out, publish.SourceKey(f, m.Path))
		}
	}
	if topic != "" && out == nil {
		if _, ok := s.pub.Folder(topic); !ok {
			return nil, apperr.ErrNotFound
		}
	}
	return nonNilSlice(out), nil
}

// PublishAll runs a batch publish.
func (s *Service) PublishAll(ctx context.Context, opts publish.Options) (publish.Summary, error) {
	sum, err := s.pub.Run(ctx, opts)
	for _, r := range sum.Results {
		s.emit(r)
	}
	if s.notify != nil {
		for _, p := range sum.Pruned {
			s.notify("removed", p)
		}
	}
	return sum, err
}

// PublishOne publishes one notebook named by topic and filename.
func (s *Service) PublishOne(ctx context.Context, topic, name string, force bool) (PublishResult, error) {
	f, ok := s.pub.Folder(topic)
	if !ok || !s.pub.Matches(name) {
		return PublishResult{}, apperr.ErrNotFound
	}
	exists, err := f.Src.Exists(name)
	if err != nil {
		return PublishResult{}, err
	}
	if !exists {
		return PublishResult{}, apperr.ErrNotFound
	}
	res := s.pub.PublishNotebook(ctx, f, name, force)
	s.emit(res)
	return ToPublishResult(res), res.Err
}

// Preview sanitizes data without writing anything.
func (s *Service) Preview(_ context.Context, data []byte) (*Preview, error) {
	nb, rep, err := s.pub.Preview(data)
	if err != nil {
		return nil, err
	}
	cells := make([]PreviewCell, len(nb.Cells))
	for i, c := range nb.Cells {
		cells[i] = PreviewCell{Type: c.Type, Source: c.Source}
	}
	return &Preview{Cells: cells, Report: rep}, nil
}

// PreviewSource sanitizes an authored notebook identified by topic and name.
func (s *Service) PreviewSource(ctx context.Context, topic, name string) (*Preview, error) {
	f, ok := s.pub.Folder(topic)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	data, err := f.Src.Read(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrNotFound, err)
	}
	return s.Preview(ctx, data)
}

// Rules returns the active rule set and the pipeline order.
func (s *Service) Rules() (sanitize.Rules, []string) {
	return s.pub.Rules(), s.pub.Steps()
}

func (s *Service) emit(r publish.Result) {
	if s.notify == nil {
		return
	}
	switch r.Status {
	case models.StatusPublished:
		s.notify("published", r.Dest)
	case models.StatusFailed:
		s.notify("failed", r.Source)
	}
}

// ToPublishResult converts a publish.Result for JSON output.
func ToPublishResult(r publish.Result) PublishResult {
	out := PublishResult{Result: r}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// IsInvalidInput reports whether err was caused by the caller's document.
func IsInvalidInput(err error) bool {
	return errors.Is(err, apperr.ErrInvalidNotebook)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

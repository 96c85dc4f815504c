// Package sanitize turns authored notebooks into publishable ones: it removes
// instructor-only regions, rewrites data and media paths to public URLs and
// normalizes admonition markup. Everything here is pure text processing; the
// media files referenced by rewritten links are reported, never touched.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/starford/nbpublish/internal/notebook"
)

// AssetRef is a media file referenced by a rewritten link.
type AssetRef struct {
	Filename string `json:"filename"`
	Cell     int    `json:"cell"`
}

// Outcome is the result of applying one step to one cell source.
type Outcome struct {
	Source string
	Hits   int
	Assets []string
}

// Step is one rewrite pass of the pipeline.
type Step interface {
	Name() string
	Applies(t notebook.CellType) bool
	Apply(src string) Outcome
}

// StripRegion replaces every begin...end region (markers included) with
// placeholder. Regions are found leftmost-first and never overlap. A begin
// marker without a later end marker is left as is.
func StripRegion(src, begin, end, placeholder string) (string, int) {
	if begin == "" || end == "" {
		return src, 0
	}
	var b strings.Builder
	n := 0
	rest := src
	for {
		i := strings.Index(rest, begin)
		if i < 0 {
			break
		}
		j := strings.Index(rest[i+len(begin):], end)
		if j < 0 {
			break
		}
		if n == 0 {
			b.Grow(len(src))
		}
		b.WriteString(rest[:i])
		b.WriteString(placeholder)
		rest = rest[i+len(begin)+j+len(end):]
		n++
	}
	if n == 0 {
		return src, 0
	}
	b.WriteString(rest)
	return b.String(), n
}

// ReplaceLiteral replaces every occurrence of old with new.
func ReplaceLiteral(src, old, new string) (string, int) {
	if old == "" {
		return src, 0
	}
	n := strings.Count(src, old)
	if n == 0 {
		return src, 0
	}
	return strings.ReplaceAll(src, old, new), n
}

// RegionStep strips a marker-delimited region from code cells.
type RegionStep struct {
	Label  string
	Region Region
}

func (s RegionStep) Name() string { return s.Label }

func (s RegionStep) Applies(t notebook.CellType) bool { return t == notebook.CellCode }

func (s RegionStep) Apply(src string) Outcome {
	out, n := StripRegion(src, s.Region.Begin, s.Region.End, s.Region.Placeholder)
	return Outcome{Source: out, Hits: n}
}

// LiteralStep replaces a fixed string in cells of one type.
type LiteralStep struct {
	Replacement Replacement
	CellType    notebook.CellType
}

func (s LiteralStep) Name() string { return s.Replacement.Name }

func (s LiteralStep) Applies(t notebook.CellType) bool { return t == s.CellType }

func (s LiteralStep) Apply(src string) Outcome {
	out, n := ReplaceLiteral(src, s.Replacement.From, s.Replacement.To)
	return Outcome{Source: out, Hits: n}
}

// MediaStep rewrites [text](<prefix><file>) links in markdown cells to
// [text](<base>/<file>). A leading "!" sits outside the match, so images and
// plain links are both handled.
type MediaStep struct {
	rule MediaRule
	re   *regexp.Regexp
}

// NewMediaStep compiles the link pattern for rule.
func NewMediaStep(rule MediaRule) *MediaStep {
	return &MediaStep{
		rule: rule,
		re:   regexp.MustCompile(`\[(.*?)\]\(` + regexp.QuoteMeta(rule.LinkPrefix) + `(.*?)\)`),
	}
}

func (s *MediaStep) Name() string { return "media-links" }

func (s *MediaStep) Applies(t notebook.CellType) bool { return t == notebook.CellMarkdown }

// FindAssets lists the media filenames src links to, in order of appearance.
func (s *MediaStep) FindAssets(src string) []string {
	matches := s.re.FindAllStringSubmatch(src, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[2])
	}
	return out
}

func (s *MediaStep) Apply(src string) Outcome {
	assets := s.FindAssets(src)
	if len(assets) == 0 {
		return Outcome{Source: src}
	}
	base := strings.TrimRight(s.rule.BaseURL, "/")
	out := s.re.ReplaceAllString(src, "[${1}]("+strings.ReplaceAll(base, "$", "$$")+"/${2})")
	return Outcome{Source: out, Hits: len(assets), Assets: assets}
}

package sanitize

import (
	"github.com/starford/nbpublish/internal/notebook"
)

// Report summarizes what a pipeline run changed in one notebook.
type Report struct {
	CellsProcessed int            `json:"cells_processed"`
	Hits           map[string]int `json:"hits"`
	Assets         []AssetRef     `json:"assets"`
}

// AssetFiles returns each referenced filename once, in first-seen order.
func (r Report) AssetFiles() []string {
	seen := make(map[string]struct{}, len(r.Assets))
	var out []string
	for _, a := range r.Assets {
		if _, ok := seen[a.Filename]; ok {
			continue
		}
		seen[a.Filename] = struct{}{}
		out = append(out, a.Filename)
	}
	return out
}

// Pipeline applies its steps, in order, to every cell they apply to. Later
// steps see the output of earlier ones.
type Pipeline struct {
	steps []Step
}

// NewPipeline returns a pipeline running steps in the given order.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// DefaultPipeline builds the publishing order: solution regions, hidden
// tests, data path, admonition styles, admonition titles, and media links
// last so no other pass sees the published URLs.
func DefaultPipeline(r Rules) *Pipeline {
	steps := []Step{
		RegionStep{Label: "solution", Region: r.Solution},
		RegionStep{Label: "hidden-tests", Region: r.HiddenTests},
		LiteralStep{Replacement: r.DataPath, CellType: notebook.CellCode},
	}
	for _, rep := range r.AdmonitionStyles {
		steps = append(steps, LiteralStep{Replacement: rep, CellType: notebook.CellMarkdown})
	}
	for _, rep := range r.AdmonitionTitles {
		steps = append(steps, LiteralStep{Replacement: rep, CellType: notebook.CellMarkdown})
	}
	steps = append(steps, NewMediaStep(r.Media))
	return NewPipeline(steps...)
}

// StepNames lists the step names in execution order.
func (p *Pipeline) StepNames() []string {
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Name()
	}
	return out
}

// Run rewrites nb's cells in place and reports what changed. Cell order and
// unmatched text are preserved.
func (p *Pipeline) Run(nb *notebook.Notebook) Report {
	rep := Report{Hits: make(map[string]int), Assets: []AssetRef{}}
	for i, c := range nb.Cells {
		src := c.Source
		for _, s := range p.steps {
			if !s.Applies(c.Type) {
				continue
			}
			out := s.Apply(src)
			if out.Hits == 0 {
				continue
			}
			src = out.Source
			rep.Hits[s.Name()] += out.Hits
			for _, f := range out.Assets {
				rep.Assets = append(rep.Assets, AssetRef{Filename: f, Cell: i})
			}
		}
		if src != c.Source {
			c.Source = src
			rep.CellsProcessed++
		}
	}
	return rep
}

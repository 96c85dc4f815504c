package sanitize

import (
	"strings"
	"testing"

	"github.com/starford/nbpublish/internal/notebook"
)

const (
	begin = "### BEGIN SOLUTION"
	end   = "### END SOLUTION"
	ph    = "# Add your solution here"
)

func TestStripRegion_Single(t *testing.T) {
	src := "x = 1\n### BEGIN SOLUTION\nanswer=42\n### END SOLUTION\ny = 2"
	got, n := StripRegion(src, begin, end, ph)
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
	if got != "x = 1\n# Add your solution here\ny = 2" {
		t.Errorf("got %q", got)
	}
}

func TestStripRegion_Multiple(t *testing.T) {
	src := "a\n" + begin + "\none\n" + end + "\nb\n" + begin + "\ntwo\nthree\n" + end + "\nc\n" + begin + end
	got, n := StripRegion(src, begin, end, ph)
	if n != 3 {
		t.Errorf("n = %d, want 3", n)
	}
	if c := strings.Count(got, ph); c != 3 {
		t.Errorf("placeholder count = %d, want 3", c)
	}
	if strings.Contains(got, begin) || strings.Contains(got, end) {
		t.Errorf("markers left in %q", got)
	}
	if got != "a\n"+ph+"\nb\n"+ph+"\nc\n"+ph {
		t.Errorf("got %q", got)
	}
}

func TestStripRegion_Unterminated(t *testing.T) {
	src := "x = 1\n" + begin + "\nsecret = 1\n"
	got, n := StripRegion(src, begin, end, ph)
	if n != 0 || got != src {
		t.Errorf("unterminated region changed: n=%d got=%q", n, got)
	}
}

func TestStripRegion_TrailingUnterminatedAfterMatch(t *testing.T) {
	src := begin + "\na\n" + end + "\n" + begin + "\nb\n"
	got, n := StripRegion(src, begin, end, ph)
	if n != 1 {
		t.Errorf("n = %d, want 1", n)
	}
	if got != ph+"\n"+begin+"\nb\n" {
		t.Errorf("got %q", got)
	}
}

func TestStripRegion_EndBeforeBeginIgnored(t *testing.T) {
	src := end + "\n" + begin + "\nz\n" + end
	got, n := StripRegion(src, begin, end, ph)
	if n != 1 || got != end+"\n"+ph {
		t.Errorf("n=%d got=%q", n, got)
	}
}

func TestReplaceLiteral(t *testing.T) {
	got, n := ReplaceLiteral("pd.read_csv('./data/a.csv'); open('./data/b')", "./data/", "https://x/data/")
	if n != 2 || got != "pd.read_csv('https://x/data/a.csv'); open('https://x/data/b')" {
		t.Errorf("n=%d got=%q", n, got)
	}
	if got, n := ReplaceLiteral("abc", "", "z"); n != 0 || got != "abc" {
		t.Errorf("empty old should be a no-op, got %q", got)
	}
}

func TestSteps_IdentityWhenUnmatched(t *testing.T) {
	r := DefaultRules()
	src := "nothing to see here\n[link](../media/x.png) <b>Other</b>:"
	for _, s := range DefaultPipeline(r).steps {
		out := s.Apply(src)
		if out.Source != src || out.Hits != 0 {
			t.Errorf("step %s changed unmatched source: %q", s.Name(), out.Source)
		}
	}
}

func TestMediaStep_RewritesLinksAndImages(t *testing.T) {
	s := NewMediaStep(MediaRule{LinkPrefix: "../../media/", BaseURL: "https://site/_images/"})
	src := "![fig](../../media/plot.png) and [see](../../media/table.pdf)"
	out := s.Apply(src)
	want := "![fig](https://site/_images/plot.png) and [see](https://site/_images/table.pdf)"
	if out.Source != want {
		t.Errorf("got %q, want %q", out.Source, want)
	}
	if out.Hits != 2 || len(out.Assets) != 2 || out.Assets[0] != "plot.png" || out.Assets[1] != "table.pdf" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestMediaStep_RoundTripExample(t *testing.T) {
	s := NewMediaStep(MediaRule{LinkPrefix: "../../media/", BaseURL: "https://site/img"})
	out := s.Apply("[see](../../media/plot.png)")
	if out.Source != "[see](https://site/img/plot.png)" {
		t.Errorf("got %q", out.Source)
	}
}

func TestMediaStep_DollarInBaseURL(t *testing.T) {
	s := NewMediaStep(MediaRule{LinkPrefix: "../../media/", BaseURL: "https://site/$1"})
	out := s.Apply("[a](../../media/b.png)")
	if out.Source != "[a](https://site/$1/b.png)" {
		t.Errorf("got %q", out.Source)
	}
}

func TestPipeline_EndToEnd(t *testing.T) {
	r := DefaultRules()
	style := r.AdmonitionStyles[0]
	title := r.AdmonitionTitles[0]

	code := notebook.NewCell(notebook.CellCode, "x = 1\n### BEGIN SOLUTION\nanswer=42\n### END SOLUTION\ny = 2")
	md := notebook.NewCell(notebook.CellMarkdown,
		`<div `+style.From+">\n\n<b>Home Activity</b>: plot it\n\n![p](../../media/plot.png)\n</div>")
	plain := notebook.NewCell(notebook.CellMarkdown, "untouched ### BEGIN SOLUTION x ### END SOLUTION")
	nb := notebook.New(code, md, plain)

	rep := DefaultPipeline(r).Run(nb)

	if code.Source != "x = 1\n# Add your solution here\ny = 2" {
		t.Errorf("code = %q", code.Source)
	}
	if !strings.Contains(md.Source, style.To) || strings.Contains(md.Source, style.From) {
		t.Errorf("style not normalized: %q", md.Source)
	}
	if !strings.Contains(md.Source, title.To) || strings.Contains(md.Source, "<b>Home Activity</b>:") {
		t.Errorf("title not normalized: %q", md.Source)
	}
	if !strings.Contains(md.Source, "![p]("+r.Media.BaseURL+"/plot.png)") {
		t.Errorf("media not rewritten: %q", md.Source)
	}
	if plain.Source != "untouched ### BEGIN SOLUTION x ### END SOLUTION" {
		t.Errorf("markdown cell should not be region-stripped: %q", plain.Source)
	}
	if rep.CellsProcessed != 2 {
		t.Errorf("CellsProcessed = %d, want 2", rep.CellsProcessed)
	}
	if rep.Hits["solution"] != 1 || rep.Hits["media-links"] != 1 {
		t.Errorf("hits = %v", rep.Hits)
	}
	if files := rep.AssetFiles(); len(files) != 1 || files[0] != "plot.png" {
		t.Errorf("assets = %v", files)
	}
}

func TestPipeline_DataPathOnlyInCode(t *testing.T) {
	r := DefaultRules()
	code := notebook.NewCell(notebook.CellCode, "df = pd.read_csv('./data/tclab.csv')")
	md := notebook.NewCell(notebook.CellMarkdown, "see ./data/tclab.csv")
	DefaultPipeline(r).Run(notebook.New(code, md))
	if code.Source != "df = pd.read_csv('"+r.DataPath.To+"tclab.csv')" {
		t.Errorf("code = %q", code.Source)
	}
	if md.Source != "see ./data/tclab.csv" {
		t.Errorf("markdown changed: %q", md.Source)
	}
}

func TestPipeline_OrderIsFixed(t *testing.T) {
	names := DefaultPipeline(DefaultRules()).StepNames()
	if names[0] != "solution" || names[1] != "hidden-tests" || names[2] != "data-path" {
		t.Errorf("leading steps = %v", names[:3])
	}
	if names[len(names)-1] != "media-links" {
		t.Errorf("media links must run last, order = %v", names)
	}
	if len(names) != 3+4+5+1 {
		t.Errorf("len = %d", len(names))
	}
}

func TestPipeline_OptionalHomeActivityTitle(t *testing.T) {
	md := notebook.NewCell(notebook.CellMarkdown, "<b>Optional Home Activity</b>: extra")
	DefaultPipeline(DefaultRules()).Run(notebook.New(md))
	want := `<p class="admonition-title" style="font-weight:bold"> Optional Home Activity </p> extra`
	if md.Source != want {
		t.Errorf("got %q, want %q", md.Source, want)
	}
}

func TestRules_FingerprintChanges(t *testing.T) {
	a := DefaultRules()
	b := DefaultRules()
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("fingerprint is not stable")
	}
	b.Media.BaseURL = "https://elsewhere"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("fingerprint should change with the rules")
	}
}

func TestRules_Validate(t *testing.T) {
	r := DefaultRules()
	if err := r.Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}
	r.Solution.End = ""
	if err := r.Validate(); err == nil {
		t.Error("missing end marker should fail validation")
	}
}

func TestRules_ValidateNested(t *testing.T) {
	cases := map[string]func(r *Rules){
		"hidden tests begin": func(r *Rules) { r.HiddenTests.Begin = "" },
		"solution end":       func(r *Rules) { r.Solution.End = "" },
		"media base url":     func(r *Rules) { r.Media.BaseURL = "" },
		"media link prefix":  func(r *Rules) { r.Media.LinkPrefix = "" },
		"data path from":     func(r *Rules) { r.DataPath.From = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := DefaultRules()
			mutate(&r)
			if err := r.Validate(); err == nil {
				t.Errorf("%s: empty value passed validation", name)
			}
		})
	}

	r := DefaultRules()
	r.Solution.Placeholder = ""
	if err := r.Validate(); err != nil {
		t.Errorf("empty placeholder should be allowed: %v", err)
	}
}

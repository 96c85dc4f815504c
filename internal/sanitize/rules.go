package sanitize

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nbpublish/internal/checksum"
)

// Region is a begin/end marker pair bounding instructor-only code.
type Region struct {
	Begin       string `yaml:"begin" json:"begin"`
	End         string `yaml:"end" json:"end"`
	Placeholder string `yaml:"placeholder" json:"placeholder"`
}

// Validate validates the region markers. The placeholder may be empty.
func (r Region) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Begin, validation.Required),
		validation.Field(&r.End, validation.Required),
	)
}

// Replacement is a named literal substitution.
type Replacement struct {
	Name string `yaml:"name" json:"name"`
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Validate validates the replacement.
func (r Replacement) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.From, validation.Required),
	)
}

// MediaRule describes how repository-relative media links are published.
type MediaRule struct {
	LinkPrefix string `yaml:"link_prefix" json:"link_prefix"`
	BaseURL    string `yaml:"base_url" json:"base_url"`
}

// Validate validates the media rule.
func (m MediaRule) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.LinkPrefix, validation.Required),
		validation.Field(&m.BaseURL, validation.Required),
	)
}

// Rules is the full rewrite configuration for one course.
type Rules struct {
	Solution         Region        `yaml:"solution" json:"solution"`
	HiddenTests      Region        `yaml:"hidden_tests" json:"hidden_tests"`
	DataPath         Replacement   `yaml:"data_path" json:"data_path"`
	AdmonitionStyles []Replacement `yaml:"admonition_styles" json:"admonition_styles"`
	AdmonitionTitles []Replacement `yaml:"admonition_titles" json:"admonition_titles"`
	Media            MediaRule     `yaml:"media" json:"media"`
}

// Validate validates every rule group.
func (r *Rules) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Solution),
		validation.Field(&r.HiddenTests),
		validation.Field(&r.DataPath),
		validation.Field(&r.AdmonitionStyles),
		validation.Field(&r.AdmonitionTitles),
		validation.Field(&r.Media),
	)
}

// Fingerprint returns a digest of the rule set. Published outputs recorded
// under a different fingerprint are stale.
func (r *Rules) Fingerprint() string {
	parts := []string{
		r.Solution.Begin, r.Solution.End, r.Solution.Placeholder,
		r.HiddenTests.Begin, r.HiddenTests.End, r.HiddenTests.Placeholder,
		r.DataPath.From, r.DataPath.To,
		r.Media.LinkPrefix, r.Media.BaseURL,
	}
	for _, rep := range r.AdmonitionStyles {
		parts = append(parts, "style", rep.From, rep.To)
	}
	for _, rep := range r.AdmonitionTitles {
		parts = append(parts, "title", rep.From, rep.To)
	}
	return checksum.SumStrings(parts...)
}

func admonitionStyle(rgba, border string) string {
	return `style="background-color: rgba(` + rgba + `) ; padding: 10px; border: 1px solid ` + border + `;"`
}

func admonitionTitle(title string) Replacement {
	return Replacement{
		Name: "title:" + strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		From: "<b>" + title + "</b>:",
		To:   `<p class="admonition-title" style="font-weight:bold"> ` + title + ` </p>`,
	}
}

// DefaultRules returns the rule set used by the course book.
func DefaultRules() Rules {
	return Rules{
		Solution: Region{
			Begin:       "### BEGIN SOLUTION",
			End:         "### END SOLUTION",
			Placeholder: "# Add your solution here",
		},
		HiddenTests: Region{
			Begin:       "### BEGIN HIDDEN TESTS",
			End:         "### END HIDDEN TESTS",
			Placeholder: "# Removed autograder test. You may delete this cell.",
		},
		DataPath: Replacement{
			Name: "data-path",
			From: "./data/",
			To:   "https://raw.githubusercontent.com/ndcbe/cbe30338-book/main/notebooks/data/",
		},
		AdmonitionStyles: []Replacement{
			{Name: "style:home-activity", From: admonitionStyle("0,255,0,0.05", "darkgreen"), To: `class="admonition seealso"`},
			{Name: "style:tutorial-activity", From: admonitionStyle("255,0,0,0.05", "darkred"), To: `class="admonition error"`},
			{Name: "style:class-activity", From: admonitionStyle("0,0,255,0.05", "darkblue"), To: `class="admonition note"`},
			{Name: "style:note", From: admonitionStyle("255,255,0,0.05", "darkorange"), To: `class="admonition attention"`},
		},
		AdmonitionTitles: []Replacement{
			admonitionTitle("Home Activity"),
			admonitionTitle("Optional Home Activity"),
			admonitionTitle("Tutorial Activity"),
			admonitionTitle("Class Activity"),
			admonitionTitle("Note"),
		},
		Media: MediaRule{
			LinkPrefix: "../../media/",
			BaseURL:    "https://ndcbe.github.io/cbe30338-book/_images",
		},
	}
}

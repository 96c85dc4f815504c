package mcpserver

import (
	"fmt"
	"strings"
)

// AuthoringGuide describes how instructors mark up notebooks so that
// publishing removes and rewrites the right content.
const AuthoringGuide = `# nbpublish Authoring Rules

Authored notebooks live in ` + "`" + `notebooks/<topic>-dev/` + "`" + `. Publishing writes a
sanitized copy to ` + "`" + `notebooks/<topic>/` + "`" + `. Authored files are never modified.

## Code cells

1. Wrap instructor solutions in the solution markers. Everything from the begin
   marker through the end marker is replaced by the solution placeholder.
2. Wrap autograder tests in the hidden test markers. They are replaced the same way.
3. A begin marker without an end marker is left as is. Always close regions.
4. Use the local data prefix for data files. It is rewritten to the public data URL.

## Markdown cells

1. Admonition boxes use the exact inline style strings listed below. They are
   rewritten to CSS classes.
2. Admonition titles use ` + "`" + `<b>Title</b>:` + "`" + `. They are rewritten to an
   admonition title paragraph.
3. Images and links to the shared media folder use the media prefix. They are
   rewritten to the published image URL and the file is copied into the build.
   A missing media file is reported as a warning; the link is still rewritten.
`

func (s *Server) rulesDocument() string {
	rules, steps := s.svc.Rules()

	var b strings.Builder
	b.WriteString(AuthoringGuide)
	b.WriteString("\n## Active rules\n\n")
	fmt.Fprintf(&b, "- Solution: `%s` ... `%s` becomes `%s`\n",
		rules.Solution.Begin, rules.Solution.End, rules.Solution.Placeholder)
	fmt.Fprintf(&b, "- Hidden tests: `%s` ... `%s` becomes `%s`\n",
		rules.HiddenTests.Begin, rules.HiddenTests.End, rules.HiddenTests.Placeholder)
	fmt.Fprintf(&b, "- Data path: `%s` becomes `%s`\n", rules.DataPath.From, rules.DataPath.To)
	fmt.Fprintf(&b, "- Media: `%s<file>` becomes `%s/<file>`\n", rules.Media.LinkPrefix, rules.Media.BaseURL)
	for _, r := range rules.AdmonitionStyles {
		fmt.Fprintf(&b, "- %s: `%s` becomes `%s`\n", r.Name, r.From, r.To)
	}
	for _, r := range rules.AdmonitionTitles {
		fmt.Fprintf(&b, "- %s: `%s` becomes `%s`\n", r.Name, r.From, r.To)
	}
	b.WriteString("\n## Step order\n\n")
	for i, name := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
	}
	return b.String()
}

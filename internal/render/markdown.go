package render

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// =============================================================================
// INLINE MARKDOWN
// =============================================================================

// singleParagraph matches output that is exactly one <p> element.
var singleParagraph = regexp.MustCompile(`(?s)^<p>(.*)</p>\s*$`)

// inlineMarkdown renders short cell values (names, notes, credentials) that
// operators format with markdown in the spreadsheet.
type inlineMarkdown struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func newInlineMarkdown() *inlineMarkdown {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)

	return &inlineMarkdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: policy,
	}
}

// Render converts s to sanitized HTML. A single paragraph loses its <p>
// wrapper so the value can sit inside a table cell or a sentence.
func (m *inlineMarkdown) Render(s string) template.HTML {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := m.md.Convert([]byte(s), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(s))
	}

	out := m.policy.Sanitize(buf.String())
	if strings.Count(out, "<p>") == 1 {
		out = singleParagraph.ReplaceAllString(out, "$1")
	}
	return template.HTML(strings.TrimSpace(out))
}

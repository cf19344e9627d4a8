package mailer

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	lineBreak     = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockEnd      = regexp.MustCompile(`(?i)</(p|div|h[1-6]|table)>`)
	lineEnd       = regexp.MustCompile(`(?i)</(tr|li)>`)
	cellEnd       = regexp.MustCompile(`(?i)</t[dh]>`)
	horizontalRun = regexp.MustCompile(`[ \t]+`)
	blankLineRun  = regexp.MustCompile(`\n{3,}`)
	strictPolicy  = bluemonday.StrictPolicy()
)

// PlainText derives the text alternative of an HTML email.
func PlainText(body string) string {
	body = lineBreak.ReplaceAllString(body, "\n")
	body = blockEnd.ReplaceAllString(body, "$0\n\n")
	body = lineEnd.ReplaceAllString(body, "$0\n")
	body = cellEnd.ReplaceAllString(body, "$0 ")

	text := html.UnescapeString(strictPolicy.Sanitize(body))
	text = strings.ReplaceAll(text, "\u00a0", " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalRun.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

package render

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// document is a template file split into its frontmatter and body.
type document struct {
	Subject string
	Body    string
}

type frontmatter struct {
	Subject string `yaml:"Subject"`
}

var delimiter = []byte("---")

// parseDocument splits content into YAML frontmatter and an HTML body.
// Content that does not start with "---" has no frontmatter.
func parseDocument(content []byte) (*document, error) {
	if !bytes.HasPrefix(content, delimiter) {
		return &document{Body: string(content)}, nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delimiter), "\r\n")
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: no content after opening delimiter", ErrInvalidFrontmatter)
	}

	end := bytes.Index(rest, delimiter)
	if end == -1 {
		return nil, fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	head := rest[:end]
	bodyStart := end + len(delimiter)
	if bytes.HasPrefix(rest[bodyStart:], []byte("\r\n")) {
		bodyStart += 2
	} else if bytes.HasPrefix(rest[bodyStart:], []byte("\n")) {
		bodyStart++
	}

	var meta frontmatter
	if len(bytes.TrimSpace(head)) > 0 {
		if err := yaml.Unmarshal(head, &meta); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}

	return &document{Subject: meta.Subject, Body: string(rest[bodyStart:])}, nil
}

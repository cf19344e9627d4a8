package render

import "errors"

var (
	// ErrTemplateNotFound indicates <templates_dir>/<name>.html does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrRenderFailed indicates a template could not be parsed or executed.
	ErrRenderFailed = errors.New("failed to render template")

	// ErrInvalidFrontmatter indicates invalid YAML frontmatter.
	ErrInvalidFrontmatter = errors.New("invalid frontmatter")
)

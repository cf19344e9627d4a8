// =============================================================================
// ETC Mailer - Email Template Engine
// =============================================================================
//
// This module turns a consolidated customer record into an HTML email.
//
// TEMPLATE FILES:
//   <templates_dir>/<name>.html, one per email template name
//   (renewal-pending, renewal-done, new-account, ...). Each file is an
//   html/template body with optional YAML frontmatter:
//
//     ---
//     Subject: Renewal for {{.CustomerName}}
//     ---
//     <html>...</html>
//
//   Images referenced as "cid:<id>" live next to the templates.
//
// Templates are parsed once and cached for the lifetime of the Engine.
//
// =============================================================================

package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"strings"
	"sync"
	texttemplate "text/template"
	"time"

	"github.com/ginjaninja78/etc-mailer/internal/types"
)

// templateExt is the file extension of email templates.
const templateExt = ".html"

// DefaultReferencePrefix precedes the ETC number in reference numbers.
const DefaultReferencePrefix = "ETC2950-"

// Engine renders customer records with cached templates.
type Engine struct {
	fs     fs.FS
	md     *inlineMarkdown
	prefix string
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]*cachedTemplate
}

type cachedTemplate struct {
	body    *template.Template
	subject *texttemplate.Template
}

// Option configures an Engine.
type Option func(*Engine)

// WithReferencePrefix sets the prefix of ReferenceNumber.
func WithReferencePrefix(prefix string) Option {
	return func(e *Engine) {
		if prefix != "" {
			e.prefix = prefix
		}
	}
}

// WithClock overrides the clock used for CurrentDate and IsExpiringSoon.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine reading templates from dir.
func New(dir string, opts ...Option) *Engine {
	return NewFS(os.DirFS(dir), opts...)
}

// NewFS creates an Engine reading templates from fsys.
func NewFS(fsys fs.FS, opts ...Option) *Engine {
	e := &Engine{
		fs:     fsys,
		md:     newInlineMarkdown(),
		prefix: DefaultReferencePrefix,
		now:    time.Now,
		cache:  make(map[string]*cachedTemplate),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Result is a rendered email.
type Result struct {
	HTML string

	// Subject is the frontmatter subject executed over the view, or "" when
	// the template has none.
	Subject string
}

// Render executes template name for rec.
//
// RETURNS:
//   - The rendered HTML and frontmatter subject.
//   - ErrTemplateNotFound if the template file does not exist.
//   - ErrRenderFailed if it cannot be parsed or executed.
func (e *Engine) Render(name string, rec *types.CustomerRecord) (*Result, error) {
	cached, err := e.template(name)
	if err != nil {
		return nil, err
	}

	view := e.NewView(rec)

	var body bytes.Buffer
	if err := cached.body.Execute(&body, view); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}

	result := &Result{HTML: body.String()}
	if cached.subject != nil {
		var subject bytes.Buffer
		if err := cached.subject.Execute(&subject, view); err != nil {
			return nil, fmt.Errorf("%w: %s subject: %v", ErrRenderFailed, name, err)
		}
		result.Subject = strings.TrimSpace(subject.String())
	}
	return result, nil
}

// Has reports whether template name exists.
func (e *Engine) Has(name string) bool {
	_, err := e.template(name)
	return !errors.Is(err, ErrTemplateNotFound)
}

// Asset reads a file stored next to the templates, such as an inline image.
func (e *Engine) Asset(name string) ([]byte, error) {
	data, err := fs.ReadFile(e.fs, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", name, err)
	}
	return data, nil
}

// template returns a cached template or parses and caches it.
func (e *Engine) template(name string) (*cachedTemplate, error) {
	e.mu.RLock()
	cached, ok := e.cache[name]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.cache[name]; ok {
		return cached, nil
	}

	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	content, err := fs.ReadFile(e.fs, name+templateExt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, name, err)
	}

	doc, err := parseDocument(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}

	body, err := template.New(name).Funcs(e.funcMap()).Parse(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}

	cached = &cachedTemplate{body: body}
	if doc.Subject != "" {
		subject, err := texttemplate.New(name + ".subject").Parse(doc.Subject)
		if err != nil {
			return nil, fmt.Errorf("%w: %s subject: %v", ErrRenderFailed, name, err)
		}
		cached.subject = subject
	}

	e.cache[name] = cached
	return cached, nil
}

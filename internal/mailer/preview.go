package mailer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ginjaninja78/etc-mailer/internal/render"
)

// PreviewSender is the dry-run transport. It writes the HTML to
// <Dir>/<etc>-<template>-preview.html and sends nothing.
type PreviewSender struct {
	Dir string
}

// NewPreviewSender creates a PreviewSender writing into dir.
func NewPreviewSender(dir string) *PreviewSender {
	return &PreviewSender{Dir: dir}
}

// Send implements Sender. Inline attachments are embedded as data URLs so
// the preview opens in a browser as it would in a mail client.
func (s *PreviewSender) Send(_ context.Context, email *Email) (string, error) {
	html := email.HTML
	for _, a := range email.Attachments {
		if a.ContentID != "" {
			html = render.InlineCID(html, a.ContentID, a.ContentType, a.Content)
		}
	}

	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create preview folder: %w", err)
	}

	path := filepath.Join(s.Dir, PreviewName(email.Tags[TagBusinessKey], email.Tags[TagTemplate]))
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return "", fmt.Errorf("failed to write preview: %w", err)
	}

	return "dry-run-" + uuid.NewString(), nil
}

// PreviewName is the file name of a dry-run preview.
func PreviewName(key, template string) string {
	return fmt.Sprintf("%s-%s-preview.html", key, template)
}

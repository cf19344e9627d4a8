package mailer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogFileName is the append-only email log in the logs folder.
const LogFileName = "email-log.txt"

// Status is the outcome recorded for one recipient.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusDryRun  Status = "DRY_RUN"
	StatusError   Status = "ERROR"
)

// EmailLog appends one line per dispatch attempt:
//
//	2025-08-01T09:00:00.000Z | SUCCESS | ETC: 0055 | Ali Raza | ali@example.com | Message ID: abc
type EmailLog struct {
	path string
	mu   sync.Mutex
}

// NewEmailLog creates a log at <dir>/email-log.txt.
func NewEmailLog(dir string) *EmailLog {
	return &EmailLog{path: filepath.Join(dir, LogFileName)}
}

// Path returns the log file path.
func (l *EmailLog) Path() string {
	return l.path
}

// Append writes one entry.
func (l *EmailLog) Append(at time.Time, status Status, key, name, email, details string) error {
	line := fmt.Sprintf("%s | %s | ETC: %s | %s | %s | %s\n",
		at.UTC().Format("2006-01-02T15:04:05.000Z"),
		status, key, name, email,
		strings.ReplaceAll(details, "\n", " "),
	)

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create log folder: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open email log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to write email log: %w", err)
	}
	return nil
}

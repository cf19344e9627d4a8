package mailer

import (
	"context"
	"fmt"
)

// Sender delivers a fully prepared Email and returns the provider's
// message ID.
type Sender interface {
	Send(ctx context.Context, email *Email) (string, error)
}

// Email is a message ready for sending.
type Email struct {
	From        string
	To          []string
	CC          []string
	ReplyTo     string
	Subject     string
	HTML        string
	Text        string
	Headers     map[string]string
	Tags        map[string]string
	Attachments []Attachment
}

// Attachment is a file sent with an Email. A non-empty ContentID makes it
// an inline image referenced as "cid:<ContentID>".
type Attachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Content     []byte
}

// Tag names set on every dispatched Email.
const (
	TagBusinessKey = "etc_number"
	TagTemplate    = "template"
)

// Address formats a name and email as "Name <email>".
func Address(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

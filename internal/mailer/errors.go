package mailer

import "errors"

var (
	// ErrNoRecipient indicates the customer has no email address.
	ErrNoRecipient = errors.New("no email address")

	// ErrNoTemplate indicates the customer has no finalized template.
	ErrNoTemplate = errors.New("email template not set")

	// ErrSendFailed indicates the transport rejected the email.
	ErrSendFailed = errors.New("failed to send email")

	// ErrNoSender indicates a live dispatch without a live transport.
	ErrNoSender = errors.New("no mail transport configured")
)

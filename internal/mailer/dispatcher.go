// =============================================================================
// ETC Mailer - Email Dispatcher
// =============================================================================
//
// This module sends one email per consolidated customer.
//
// DISPATCH LOOP (sequential, in record order):
//   1. Check for cancellation
//   2. Reject customers without a template or an email address (FAILED)
//   3. Render the customer's template (ERROR on failure)
//   4. Resolve the subject and attach the template's inline image
//   5. Send through the live transport, or write a preview on a dry run
//   6. Append the outcome to the email log and report progress
//   7. Wait Delay before the next live send (never after the last one)
//
// A failure for one customer never stops the run. Cancellation is checked
// between customers only; an email in flight completes.
//
// SUBJECT RESOLUTION:
//   1. Configured title    -> "<title> - <prefix><etc>"
//   2. Template frontmatter Subject
//   3. Built-in title for the template, renewal-pending for unknown ones
//
// =============================================================================

package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/ginjaninja78/etc-mailer/internal/metrics"
	"github.com/ginjaninja78/etc-mailer/internal/render"
	"github.com/ginjaninja78/etc-mailer/internal/types"
	"github.com/ginjaninja78/etc-mailer/pkg/logger"
)

// DefaultCC is copied on every email when no CC list is configured.
const DefaultCC = "team@etracking.pk"

// Renderer produces the HTML of a customer's email.
type Renderer interface {
	Render(name string, rec *types.CustomerRecord) (*render.Result, error)
	Asset(name string) ([]byte, error)
}

// Config holds the message defaults.
type Config struct {
	FromName        string
	FromEmail       string
	ReplyTo         string
	CC              []string
	ReferencePrefix string

	// Subjects maps a template to a configured subject title.
	Subjects map[string]string

	// Attachments maps a template to an inline image file served by the
	// Renderer. The content ID is the file name without extension.
	Attachments map[string]string

	// Delay is the pause between live sends.
	Delay time.Duration
}

// =============================================================================
// DISPATCHER STRUCTURE
// =============================================================================

// Dispatcher sends batches of customer emails.
type Dispatcher struct {
	live     Sender
	preview  Sender
	renderer Renderer
	log      *EmailLog
	config   Config
	metrics  *metrics.Registry
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithClock overrides the clock used for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithSleeper overrides how the dispatcher waits between live sends.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// WithPreviewSender replaces the dry-run transport.
func WithPreviewSender(s Sender) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.preview = s
		}
	}
}

// NewDispatcher creates a Dispatcher.
//
// PARAMETERS:
//   - live: The live transport. May be nil when only dry runs are made.
//   - renderer: Renders templates and serves inline images.
//   - emailLog: Receives one line per customer.
//   - outputDir: Receives dry-run previews.
func NewDispatcher(live Sender, renderer Renderer, emailLog *EmailLog, outputDir string, cfg Config, opts ...Option) *Dispatcher {
	if len(cfg.CC) == 0 {
		cfg.CC = []string{DefaultCC}
	}
	if cfg.ReplyTo == "" {
		cfg.ReplyTo = cfg.FromEmail
	}
	if cfg.ReferencePrefix == "" {
		cfg.ReferencePrefix = render.DefaultReferencePrefix
	}

	d := &Dispatcher{
		live:     live,
		preview:  NewPreviewSender(outputDir),
		renderer: renderer,
		log:      emailLog,
		config:   cfg,
		logger:   logger.NewNope(),
		now:      time.Now,
		sleep:    sleepContext,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// =============================================================================
// DISPATCH
// =============================================================================

// SendOptions controls one SendAll call.
type SendOptions struct {
	// DryRun writes previews instead of sending.
	DryRun bool

	// Progress is called after every customer.
	Progress func(Progress)
}

// Progress reports the outcome for one customer.
type Progress struct {
	// Index is 1-based.
	Index  int
	Total  int
	Result Result
}

// Result is the outcome for one customer.
type Result struct {
	BusinessKey string `json:"etcNumber"`
	Name        string `json:"customerName"`
	Email       string `json:"email"`
	Template    string `json:"template"`
	Subject     string `json:"subject,omitempty"`
	Status      Status `json:"status"`
	MessageID   string `json:"messageId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Succeeded reports whether the customer was sent or previewed.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusDryRun
}

// Stats counts the outcomes of a SendAll call.
type Stats struct {
	Sent      int `json:"sent"`
	Previewed int `json:"previewed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// SendAll sends one email per record, in order.
//
// RETURNS:
//   - The counts of the customers handled before any cancellation.
//   - The context error if the run was cancelled, ErrNoSender for a live
//     run without a transport; per-customer failures are only counted.
func (d *Dispatcher) SendAll(ctx context.Context, records []*types.CustomerRecord, opts SendOptions) (Stats, error) {
	var stats Stats

	sender := d.live
	if opts.DryRun {
		sender = d.preview
	}
	if sender == nil {
		return stats, ErrNoSender
	}

	mode := "live"
	if opts.DryRun {
		mode = "dry-run"
	}
	d.logger.InfoContext(ctx, "starting email dispatch",
		slog.String("mode", mode),
		slog.Int("customers", len(records)),
		slog.Duration("delay", d.config.Delay),
	)

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		started := d.now()
		result := d.sendOne(ctx, sender, rec, opts.DryRun)

		stats.Total++
		switch result.Status {
		case StatusSuccess:
			stats.Sent++
			d.metrics.EmailProcessed(metrics.OutcomeSent, d.now().Sub(started))
		case StatusDryRun:
			stats.Previewed++
			d.metrics.EmailProcessed(metrics.OutcomeDryRun, d.now().Sub(started))
		default:
			stats.Failed++
			d.metrics.EmailProcessed(metrics.OutcomeFailed, d.now().Sub(started))
		}

		if opts.Progress != nil {
			opts.Progress(Progress{Index: i + 1, Total: len(records), Result: result})
		}

		if !opts.DryRun && i < len(records)-1 && d.config.Delay > 0 {
			if err := d.sleep(ctx, d.config.Delay); err != nil {
				return stats, err
			}
		}
	}

	d.logger.InfoContext(ctx, "email dispatch finished",
		slog.Int("sent", stats.Sent),
		slog.Int("previewed", stats.Previewed),
		slog.Int("failed", stats.Failed),
	)
	return stats, nil
}

// sendOne handles one customer and records the outcome.
func (d *Dispatcher) sendOne(ctx context.Context, sender Sender, rec *types.CustomerRecord, dryRun bool) Result {
	result := Result{
		BusinessKey: rec.BusinessKey,
		Name:        rec.Name,
		Email:       rec.Email,
		Template:    rec.TemplateSelection,
	}

	if rec.TemplateSelection == "" {
		err := fmt.Errorf("%w for customer %s (ETC: %s)", ErrNoTemplate, rec.Name, rec.BusinessKey)
		return d.record(ctx, result, StatusFailed, err.Error())
	}
	if rec.Email == "" {
		err := fmt.Errorf("%w for customer %s (ETC: %s)", ErrNoRecipient, rec.Name, rec.BusinessKey)
		return d.record(ctx, result, StatusFailed, err.Error())
	}

	email, err := d.compose(rec)
	if err != nil {
		return d.record(ctx, result, StatusError, err.Error())
	}
	result.Subject = email.Subject

	id, err := sender.Send(ctx, email)
	if err != nil {
		err = errors.Join(ErrSendFailed, err)
		return d.record(ctx, result, StatusFailed, err.Error())
	}
	result.MessageID = id

	if dryRun {
		return d.record(ctx, result, StatusDryRun, "Email prepared but not sent (dry run mode)")
	}
	return d.record(ctx, result, StatusSuccess, "Message ID: "+id)
}

// compose renders rec into a ready-to-send Email.
func (d *Dispatcher) compose(rec *types.CustomerRecord) (*Email, error) {
	template := rec.TemplateSelection

	rendered, err := d.renderer.Render(template, rec)
	if err != nil {
		return nil, err
	}

	email := &Email{
		From:    Address(d.config.FromName, d.config.FromEmail),
		To:      []string{rec.Email},
		CC:      append([]string(nil), d.config.CC...),
		ReplyTo: d.config.ReplyTo,
		Subject: d.subject(template, rec.BusinessKey, rendered.Subject),
		HTML:    rendered.HTML,
		Text:    PlainText(rendered.HTML),
		Tags: map[string]string{
			TagBusinessKey: rec.BusinessKey,
			TagTemplate:    template,
		},
	}

	if file := d.config.Attachments[template]; file != "" {
		content, err := d.renderer.Asset(file)
		if err != nil {
			return nil, err
		}
		base := path.Base(file)
		email.Attachments = append(email.Attachments, Attachment{
			Filename:    base,
			ContentType: render.ContentType(base),
			ContentID:   base[:len(base)-len(path.Ext(base))],
			Content:     content,
		})
	}
	return email, nil
}

// subject applies the subject resolution order.
func (d *Dispatcher) subject(template, key, fromTemplate string) string {
	if title := d.config.Subjects[template]; title != "" {
		return fmt.Sprintf("%s - %s%s", title, d.config.ReferencePrefix, key)
	}
	if fromTemplate != "" {
		return fromTemplate
	}
	return FallbackSubject(template, key)
}

// record logs the outcome and returns result with it set.
func (d *Dispatcher) record(ctx context.Context, result Result, status Status, details string) Result {
	result.Status = status
	if status == StatusFailed || status == StatusError {
		result.Error = details
		d.logger.WarnContext(ctx, "email not sent",
			slog.String("etc", result.BusinessKey),
			slog.String("status", string(status)),
			slog.String("error", details),
		)
	} else {
		d.logger.InfoContext(ctx, "email processed",
			slog.String("etc", result.BusinessKey),
			slog.String("status", string(status)),
			slog.String("template", result.Template),
		)
	}

	if d.log != nil {
		if err := d.log.Append(d.now(), status, result.BusinessKey, result.Name, result.Email, details); err != nil {
			d.logger.ErrorContext(ctx, "failed to write email log", slog.String("error", err.Error()))
		}
	}
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

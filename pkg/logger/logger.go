// =============================================================================
// ETC Mailer - Logger
// =============================================================================
//
// Structured logging for every command and service. The logger is built once
// by the root command and passed down explicitly; library packages never
// reach for a global.
//
// OUTPUTS:
//   - stderr, as text (default) or JSON
//   - Sentry, when a DSN is configured: warnings and errors are stored as
//     logs, errors additionally raise issues
//
// RUN CORRELATION:
//   WithRunID stores a batch run identifier in the context. Every record
//   logged with that context carries a "run_id" attribute.
//
// =============================================================================

package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// Options configures a logger.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string

	// Format is "json" or "text".
	Format string

	// SentryDSN enables Sentry forwarding when non-empty.
	SentryDSN string

	// SentryEnvironment tags Sentry events.
	SentryEnvironment string
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// New creates a logger writing to w. If a Sentry DSN is set and the SDK
// initialises, records are also forwarded to Sentry; otherwise the logger
// degrades to w only.
func New(w io.Writer, opts Options) *slog.Logger {
	base := newBaseHandler(w, opts)

	if opts.SentryDSN == "" {
		return slog.New(newDecorator(base))
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         opts.SentryDSN,
		Environment: opts.SentryEnvironment,
		EnableLogs:  true,
	}); err != nil {
		slog.New(base).Error("failed to initialize Sentry", slog.String("error", err.Error()))
		return slog.New(newDecorator(base))
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	return slog.New(newDecorator(newMultiHandler(base, sentryHandler)))
}

// NewNope creates a logger that discards everything. Services fall back to
// it when no logger is injected.
func NewNope() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newBaseHandler(w io.Writer, opts Options) slog.Handler {
	ho := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	if strings.EqualFold(opts.Format, "json") {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

// =============================================================================
// RUN ID
// =============================================================================

type runIDKey struct{}

// WithRunID returns a context carrying the batch run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunID returns the run identifier stored in ctx, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Flush waits for buffered Sentry events. Safe to call when Sentry is off.
func Flush() {
	sentry.Flush(flushTimeout)
}

package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ginjaninja78/etc-mailer/internal/batch"
	"github.com/ginjaninja78/etc-mailer/internal/config"
	"github.com/ginjaninja78/etc-mailer/internal/mailer"
	"github.com/ginjaninja78/etc-mailer/internal/mailer/resend"
	"github.com/ginjaninja78/etc-mailer/internal/metrics"
	"github.com/ginjaninja78/etc-mailer/internal/render"
	"github.com/ginjaninja78/etc-mailer/pkg/logger"
)

// app wires the services shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Registry
	out     io.Writer
	in      io.Reader
}

// loadApp reads the configuration and builds the logger.
func loadApp(out io.Writer, in io.Reader) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	l := logger.New(os.Stderr, logger.Options{
		Level:             level,
		Format:            cfg.LogFormat,
		SentryDSN:         cfg.SentryDSN,
		SentryEnvironment: cfg.SentryEnvironment,
	})

	return &app{
		cfg:     cfg,
		logger:  l,
		metrics: metrics.NewRegistry(),
		out:     out,
		in:      in,
	}, nil
}

func (a *app) processor(inputDir string) *batch.Processor {
	if inputDir == "" {
		inputDir = a.cfg.InputDir
	}
	return batch.New(batch.Options{
		InputDir:     inputDir,
		ProcessedDir: a.cfg.ProcessedDir,
		OutputDir:    a.cfg.OutputDir,
		CSVSettings:  a.cfg.CSVSettings,
	}, batch.WithLogger(a.logger), batch.WithMetrics(a.metrics))
}

func (a *app) engine() *render.Engine {
	return render.New(a.cfg.TemplatesDir, render.WithReferencePrefix(a.cfg.Mail.ReferencePrefix))
}

// dispatcher builds the mail dispatcher. The live transport is only
// created when the credentials are complete.
func (a *app) dispatcher(engine *render.Engine, opts ...mailer.Option) *mailer.Dispatcher {
	var live mailer.Sender
	if a.cfg.ValidateForSending() == nil {
		live = resend.New(resend.Config{
			APIKey:    a.cfg.Mail.APIKey,
			FromEmail: a.cfg.Mail.FromEmail,
			FromName:  a.cfg.Mail.FromName,
		})
	}

	opts = append([]mailer.Option{mailer.WithLogger(a.logger), mailer.WithMetrics(a.metrics)}, opts...)
	return mailer.NewDispatcher(live, engine, mailer.NewEmailLog(a.cfg.LogsDir), a.cfg.OutputDir, mailer.Config{
		FromName:        a.cfg.Mail.FromName,
		FromEmail:       a.cfg.Mail.FromEmail,
		ReplyTo:         a.cfg.Mail.ReplyTo,
		CC:              a.cfg.Mail.CC,
		ReferencePrefix: a.cfg.Mail.ReferencePrefix,
		Subjects:        a.cfg.Mail.Subjects,
		Attachments:     a.cfg.Mail.Attachments,
		Delay:           a.cfg.Mail.Delay,
	}, opts...)
}

// close flushes buffered log events.
func (a *app) close() {
	logger.Flush()
}

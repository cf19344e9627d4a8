// =============================================================================
// ETC Mailer - Configuration Module
// =============================================================================
//
// This module loads the application configuration from a single YAML file
// and the process environment.
//
// CONFIGURATION SOURCES (later wins):
//   1. Built-in defaults
//   2. config.yaml (optional; a missing file means "all defaults")
//   3. Environment variables, for secrets and per-host overrides:
//        RESEND_API_KEY, MAIL_FROM_EMAIL, MAIL_FROM_NAME, MAIL_REPLY_TO,
//        MAIL_DELAY, SENTRY_DSN, email-title-<template>
//
// Loading validates the configuration and creates any missing working
// directory. Mail credentials are only checked by ValidateForSending, so a
// dry run needs no secrets at all.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "config.yaml"

// subjectEnvPrefix prefixes per-template subject overrides in the environment.
const subjectEnvPrefix = "email-title-"

// ErrMissingCredentials is returned by ValidateForSending.
var ErrMissingCredentials = errors.New("missing mail credentials")

// =============================================================================
// CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the application configuration.
type Config struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for customer sheets (.csv, .xlsx).
	// Default: "./customers"
	InputDir string `yaml:"input_dir"`

	// ProcessedDir receives archived sheets and holds the ingestion ledger.
	// Default: "./processed"
	ProcessedDir string `yaml:"processed_dir"`

	// OutputDir receives dry-run and preview HTML files.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// TemplatesDir holds <template>.html files and inline images.
	// Default: "./templates"
	TemplatesDir string `yaml:"templates_dir"`

	// LogsDir holds email-log.txt.
	// Default: "./logs"
	LogsDir string `yaml:"logs_dir"`

	// UploadsDir receives sheets uploaded through the web front end.
	// Default: "./uploads"
	UploadsDir string `yaml:"uploads_dir"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel is one of "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" or "json".
	// Default: "text"
	LogFormat string `yaml:"log_format"`

	// SentryDSN enables error reporting to Sentry when set.
	SentryDSN string `yaml:"sentry_dsn"`

	// SentryEnvironment tags Sentry events.
	// Default: "production"
	SentryEnvironment string `yaml:"sentry_environment"`

	// =========================================================================
	// SECTIONS
	// =========================================================================

	CSVSettings CSVSettings    `yaml:"csv_settings"`
	Mail        MailConfig     `yaml:"mail"`
	Server      ServerConfig   `yaml:"server"`
	Schedule    ScheduleConfig `yaml:"schedule"`
}

// CSVSettings contains settings for reading CSV customer sheets.
type CSVSettings struct {
	// Delimiter separates fields. "tab", "pipe" and "semicolon" are accepted
	// as names.
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// HeaderRows is the number of header rows. Multi-row headers are joined
	// with a newline, the way spreadsheet exports write wrapped headers.
	// Default: 1
	HeaderRows int `yaml:"header_rows"`

	// DataStartRow is the 1-indexed row where data begins.
	// Default: HeaderRows + 1
	DataStartRow int `yaml:"data_start_row"`
}

// MailConfig configures the mail transport and message defaults.
type MailConfig struct {
	// Provider selects the live transport. Only "resend" is supported.
	Provider string `yaml:"provider"`

	// APIKey authenticates with the provider.
	APIKey string `yaml:"api_key"`

	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`

	// ReplyTo defaults to FromEmail.
	ReplyTo string `yaml:"reply_to"`

	// CC is copied on every message.
	// Default: ["team@etracking.pk"]
	CC []string `yaml:"cc"`

	// Delay is the pause between consecutive live sends.
	// Default: 2s
	Delay time.Duration `yaml:"delay"`

	// ReferencePrefix precedes the ETC number in subjects and templates.
	// Default: "ETC2950-"
	ReferencePrefix string `yaml:"reference_prefix"`

	// Subjects maps a template name to a subject title. The final subject
	// is "<title> - <ReferencePrefix><ETC number>".
	Subjects map[string]string `yaml:"subjects"`

	// Attachments maps a template name to an inline image in TemplatesDir.
	// The image is attached with a content ID equal to its base name.
	// Default: {"renewal-pending": "payment-options.jpeg"}
	Attachments map[string]string `yaml:"attachments"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	// Address is the listen address.
	// Default: ":8080"
	Address string `yaml:"address"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ScheduleConfig configures the recurring runner.
type ScheduleConfig struct {
	// Cron is a five-field cron expression.
	// Default: "0 9 * * 1-5"
	Cron string `yaml:"cron"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Load reads the configuration from path and the process environment.
//
// PARAMETERS:
//   - path: The YAML file. A missing file is not an error.
//
// RETURNS:
//   - The validated configuration, with working directories created.
//   - An error if the file cannot be parsed or a directory cannot be created.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv, os.Environ())
}

func load(path string, lookup func(string) (string, bool), environ []string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, lookup, environ); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool), environ []string) error {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(&cfg.Mail.APIKey, "RESEND_API_KEY")
	set(&cfg.Mail.FromEmail, "MAIL_FROM_EMAIL")
	set(&cfg.Mail.FromName, "MAIL_FROM_NAME")
	set(&cfg.Mail.ReplyTo, "MAIL_REPLY_TO")
	set(&cfg.SentryDSN, "SENTRY_DSN")

	if v, ok := lookup("MAIL_DELAY"); ok && v != "" {
		d, err := parseDelay(v)
		if err != nil {
			return fmt.Errorf("invalid MAIL_DELAY %q: %w", v, err)
		}
		cfg.Mail.Delay = d
	}

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(name, subjectEnvPrefix) {
			continue
		}
		template := strings.TrimPrefix(name, subjectEnvPrefix)
		if template == "" {
			continue
		}
		if cfg.Mail.Subjects == nil {
			cfg.Mail.Subjects = make(map[string]string)
		}
		cfg.Mail.Subjects[template] = value
	}

	return nil
}

// parseDelay accepts a Go duration ("1500ms", "2s") or a bare number of
// milliseconds ("2000").
func parseDelay(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	var ms int64
	if _, err := fmt.Sscanf(s, "%d", &ms); err != nil || fmt.Sprint(ms) != strings.TrimSpace(s) {
		return 0, fmt.Errorf("not a duration or millisecond count")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(cfg *Config) {
	if cfg.InputDir == "" {
		cfg.InputDir = "./customers"
	}
	if cfg.ProcessedDir == "" {
		cfg.ProcessedDir = "./processed"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./output"
	}
	if cfg.TemplatesDir == "" {
		cfg.TemplatesDir = "./templates"
	}
	if cfg.LogsDir == "" {
		cfg.LogsDir = "./logs"
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = "./uploads"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.SentryEnvironment == "" {
		cfg.SentryEnvironment = "production"
	}

	// CSV settings defaults.
	if cfg.CSVSettings.Delimiter == "" {
		cfg.CSVSettings.Delimiter = ","
	}
	if cfg.CSVSettings.HeaderRows == 0 {
		cfg.CSVSettings.HeaderRows = 1
	}
	if cfg.CSVSettings.DataStartRow == 0 {
		cfg.CSVSettings.DataStartRow = cfg.CSVSettings.HeaderRows + 1
	}

	// Mail defaults.
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "resend"
	}
	if cfg.Mail.ReplyTo == "" {
		cfg.Mail.ReplyTo = cfg.Mail.FromEmail
	}
	if cfg.Mail.CC == nil {
		cfg.Mail.CC = []string{"team@etracking.pk"}
	}
	if cfg.Mail.Delay == 0 {
		cfg.Mail.Delay = 2 * time.Second
	}
	if cfg.Mail.ReferencePrefix == "" {
		cfg.Mail.ReferencePrefix = "ETC2950-"
	}
	if cfg.Mail.Subjects == nil {
		cfg.Mail.Subjects = make(map[string]string)
	}
	if cfg.Mail.Attachments == nil {
		cfg.Mail.Attachments = map[string]string{"renewal-pending": "payment-options.jpeg"}
	}

	// Server defaults.
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Schedule.Cron == "" {
		cfg.Schedule.Cron = "0 9 * * 1-5"
	}
}

// validate checks the configuration and creates missing directories.
func validate(cfg *Config) error {
	if cfg.CSVSettings.HeaderRows < 0 {
		return fmt.Errorf("csv_settings.header_rows must be at least 1")
	}
	if cfg.CSVSettings.DataStartRow <= cfg.CSVSettings.HeaderRows {
		return fmt.Errorf("csv_settings.data_start_row must come after the header rows")
	}
	if cfg.Mail.Delay < 0 {
		return fmt.Errorf("mail.delay must not be negative")
	}
	if cfg.Mail.Provider != "resend" {
		return fmt.Errorf("unsupported mail.provider %q", cfg.Mail.Provider)
	}

	for _, dir := range cfg.Directories() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Directories returns every working directory.
func (c *Config) Directories() []string {
	return []string{
		c.InputDir,
		c.ProcessedDir,
		c.OutputDir,
		c.TemplatesDir,
		c.LogsDir,
		c.UploadsDir,
	}
}

// ValidateForSending checks that live mail can be sent.
func (c *Config) ValidateForSending() error {
	var missing []string
	if c.Mail.APIKey == "" {
		missing = append(missing, "RESEND_API_KEY (mail.api_key)")
	}
	if c.Mail.FromEmail == "" {
		missing = append(missing, "MAIL_FROM_EMAIL (mail.from_email)")
	}
	if c.Mail.FromName == "" {
		missing = append(missing, "MAIL_FROM_NAME (mail.from_name)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

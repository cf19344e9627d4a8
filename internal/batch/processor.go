// =============================================================================
// ETC Mailer - Batch Processor
// =============================================================================
//
// This module drives one processing run over the customers folder.
//
// PROCESSING PIPELINE:
//   1. Load the ingestion ledger from the processed folder
//   2. List the sheets in the input folder (.csv/.xlsx, hidden files skipped)
//   3. For each sheet, in name order:
//        a. Fingerprint the bytes as found
//        b. Classify against the ledger: new / unchanged / changed
//        c. Skip unchanged sheets; warn about changed ones
//        d. Read every row, normalize two-digit-year dates and, if any date
//           changed, REWRITE THE SOURCE FILE with the normalized values
//        e. Admit each row to the consolidator
//   4. Finalize template selection for every customer
//
// After the mailer has dispatched the batch, ArchiveProcessed moves the
// admitted sheets to the processed folder and only then records them in the
// ledger.
//
// ERROR POLICY:
//   - Row without an ETC number     -> warning, row skipped
//   - Row without an email template -> run aborted, no records exposed
//   - Sheet unreadable              -> warning, sheet skipped
//   - Ledger unreadable             -> run aborted
//   - Ledger not writable           -> warning; the sheet is re-processed
//                                      next run
//
// CONCURRENCY:
//   Sheets are processed one at a time, rows in file order. The merge rules
//   depend on that order. Cancellation is checked between sheets only.
//
// =============================================================================

package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/etc-mailer/internal/config"
	"github.com/ginjaninja78/etc-mailer/internal/consolidator"
	"github.com/ginjaninja78/etc-mailer/internal/ledger"
	"github.com/ginjaninja78/etc-mailer/internal/metrics"
	"github.com/ginjaninja78/etc-mailer/internal/types"
	"github.com/ginjaninja78/etc-mailer/pkg/logger"
	"github.com/ginjaninja78/etc-mailer/pkg/utils"
)

var (
	// ErrNotProcessed is returned by operations that need a completed run.
	ErrNotProcessed = errors.New("no batch has been processed")

	// ErrUnreadableSheet is returned by ProcessUpload for a sheet that
	// cannot be parsed.
	ErrUnreadableSheet = errors.New("sheet could not be read")
)

// =============================================================================
// PROCESSOR STRUCTURE
// =============================================================================

// Options locates the folders a run works on.
type Options struct {
	InputDir     string
	ProcessedDir string
	OutputDir    string
	CSVSettings  config.CSVSettings
}

// Processor runs batches. It is not safe for concurrent use; the HTTP front
// end serializes access to it.
type Processor struct {
	opts         Options
	consolidator *consolidator.Consolidator
	files        *utils.FileManager
	ledger       *ledger.Ledger
	metrics      *metrics.Registry
	logger       *slog.Logger
	now          func() time.Time

	summary  types.ProcessingSummary
	done     bool
	archived bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithClock overrides the clock for timestamps, archive names and the
// expiry filter.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a Processor.
func New(opts Options, options ...Option) *Processor {
	p := &Processor{
		opts:   opts,
		logger: logger.NewNope(),
		now:    time.Now,
	}
	for _, o := range options {
		o(p)
	}

	p.consolidator = consolidator.New(consolidator.WithClock(p.now), consolidator.WithLogger(p.logger))
	p.files = utils.NewFileManager(opts.InputDir, opts.ProcessedDir, opts.OutputDir)
	p.files.Now = p.now
	return p
}

// =============================================================================
// RUNS
// =============================================================================

// ProcessFolder runs the ingestion pipeline over InputDir.
//
// RETURNS:
//   - The run summary.
//   - An error if the run was aborted: corrupt ledger, missing email
//     template, unreadable input folder or cancellation. After an error no
//     customer records are exposed.
func (p *Processor) ProcessFolder(ctx context.Context) (*types.ProcessingSummary, error) {
	p.begin()
	ctx = logger.WithRunID(ctx, p.summary.RunID)

	l, err := ledger.Load(p.opts.ProcessedDir)
	if err != nil {
		return p.abort(ctx, fmt.Errorf("failed to load ledger: %w", err))
	}
	p.ledger = l

	paths, err := utils.DiscoverSheets(p.opts.InputDir)
	if err != nil {
		return p.abort(ctx, err)
	}
	if len(paths) == 0 {
		p.logger.InfoContext(ctx, "no customer sheets found", slog.String("folder", p.opts.InputDir))
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return p.abort(ctx, err)
		}

		report, err := p.scanFile(ctx, path)
		p.metrics.FileSeen(report.Status)
		p.summary.Files = append(p.summary.Files, report)
		if err != nil {
			return p.abort(ctx, err)
		}
	}

	return p.finish(ctx)
}

// ProcessUpload runs the pipeline over a single uploaded sheet. The ledger
// is neither consulted nor updated and nothing is archived.
func (p *Processor) ProcessUpload(ctx context.Context, path string) (*types.ProcessingSummary, error) {
	p.begin()
	ctx = logger.WithRunID(ctx, p.summary.RunID)

	report := types.FileReport{
		FileName: filepath.Base(path),
		FilePath: path,
		Status:   types.FileStatusUploaded,
	}
	if fp, err := ledger.Fingerprint(path); err == nil {
		report.Fingerprint = fp
	}

	err := p.ingest(ctx, &report)
	p.metrics.FileSeen(report.Status)
	p.summary.Files = append(p.summary.Files, report)
	if err != nil {
		if consolidator.IsFatal(err) {
			return p.abort(ctx, err)
		}
		return p.abort(ctx, fmt.Errorf("%w: %s: %v", ErrUnreadableSheet, report.FileName, err))
	}

	return p.finish(ctx)
}

func (p *Processor) begin() {
	p.consolidator.Reset()
	p.ledger = nil
	p.done = false
	p.archived = false
	p.summary = types.ProcessingSummary{
		RunID:     uuid.NewString(),
		StartedAt: p.now(),
	}
}

func (p *Processor) finish(ctx context.Context) (*types.ProcessingSummary, error) {
	if err := p.consolidator.FinalizeTemplates(); err != nil {
		return p.abort(ctx, err)
	}

	p.summary.TotalCustomers = p.consolidator.Len()
	p.summary.FinishedAt = p.now()
	p.done = true
	p.metrics.SetCustomers(p.summary.TotalCustomers)

	p.logger.InfoContext(ctx, "batch processed",
		slog.Int("files", p.summary.FilesProcessed),
		slog.Int("customers", p.summary.TotalCustomers),
		slog.Int("warnings", len(p.summary.Warnings)),
	)

	summary := p.summary
	return &summary, nil
}

// abort discards every record of the run and returns err.
func (p *Processor) abort(ctx context.Context, err error) (*types.ProcessingSummary, error) {
	p.consolidator.Reset()
	p.done = false
	p.summary.FinishedAt = p.now()
	p.metrics.SetCustomers(0)
	p.logger.ErrorContext(ctx, "batch aborted", slog.String("error", err.Error()))

	summary := p.summary
	return &summary, err
}

// =============================================================================
// PER-FILE PROCESSING
// =============================================================================

// scanFile classifies one sheet and ingests it if admitted. Only fatal
// errors are returned; everything else becomes a warning.
func (p *Processor) scanFile(ctx context.Context, path string) (types.FileReport, error) {
	report := types.FileReport{
		FileName: filepath.Base(path),
		FilePath: path,
	}

	fp, err := ledger.Fingerprint(path)
	if err != nil {
		report.Status = types.FileStatusFailed
		report.Error = err.Error()
		p.warn(ctx, fmt.Sprintf("%s: could not be read, skipped: %v", report.FileName, err))
		return report, nil
	}
	report.Fingerprint = fp
	report.Status = p.ledger.Classify(report.FileName, fp)

	switch report.Status {
	case types.FileStatusUnchanged:
		p.logger.InfoContext(ctx, "already processed (identical file), skipping", slog.String("file", report.FileName))
		return report, nil
	case types.FileStatusChanged:
		p.warn(ctx, fmt.Sprintf("%s: same filename as an already processed file but DIFFERENT data; processing it as new data", report.FileName))
	}

	if err := p.ingest(ctx, &report); err != nil {
		if consolidator.IsFatal(err) {
			return report, err
		}
		report.Status = types.FileStatusFailed
		report.Error = err.Error()
		p.warn(ctx, fmt.Sprintf("%s: could not be processed, skipped: %v", report.FileName, err))
	}
	return report, nil
}

// ingest reads a sheet, normalizes and rewrites its dates, and admits its
// rows. Read errors leave the consolidator untouched.
func (p *Processor) ingest(ctx context.Context, report *types.FileReport) error {
	s, err := readSheet(report.FilePath, p.opts.CSVSettings)
	if err != nil {
		return err
	}

	if changes := s.normalizeDates(); len(changes) > 0 {
		if err := s.rewrite(changes); err != nil {
			p.warn(ctx, fmt.Sprintf("%s: dates normalized in memory but the file could not be rewritten: %v", report.FileName, err))
		} else {
			report.Rewritten = true
			p.logger.InfoContext(ctx, "dates normalized and file rewritten",
				slog.String("file", report.FileName),
				slog.Int("cells", len(changes)),
			)
		}
	}

	for _, row := range s.rows {
		err := p.consolidator.AdmitRow(row, report.FileName)
		switch {
		case err == nil:
			report.RowCount++
			p.metrics.RowAdmitted()
		case errors.Is(err, consolidator.ErrMissingBusinessKey):
			report.Rejected++
			p.metrics.RowRejected()
			p.warn(ctx, fmt.Sprintf("%s row %d: no ETC number, row skipped", report.FileName, row.Line))
		default:
			return err
		}
	}

	report.ProcessedAt = p.now()
	p.summary.FilesProcessed++
	p.logger.InfoContext(ctx, "file processed",
		slog.String("file", report.FileName),
		slog.String("status", string(report.Status)),
		slog.Int("rows", report.RowCount),
		slog.Int("rejected", report.Rejected),
	)
	return nil
}

func (p *Processor) warn(ctx context.Context, msg string) {
	p.summary.Warnings = append(p.summary.Warnings, msg)
	p.logger.WarnContext(ctx, msg)
}

// =============================================================================
// ARCHIVAL
// =============================================================================

// ArchiveResult lists what ArchiveProcessed did.
type ArchiveResult struct {
	Archived []string
	Failed   []string

	// LedgerError is set when the ledger could not be written. The archive
	// moves still happened.
	LedgerError error
}

// ArchiveProcessed moves every sheet admitted from the input folder into
// the processed folder and records it in the ledger. Call it after the
// batch has been dispatched. It runs at most once per batch.
func (p *Processor) ArchiveProcessed(ctx context.Context) (*ArchiveResult, error) {
	if !p.done {
		return nil, ErrNotProcessed
	}
	result := &ArchiveResult{}
	if p.archived || p.ledger == nil {
		return result, nil
	}
	ctx = logger.WithRunID(ctx, p.summary.RunID)

	for _, report := range p.summary.Files {
		if report.Status != types.FileStatusNew && report.Status != types.FileStatusChanged {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}

		archivePath, err := p.files.ArchiveFile(report.FilePath)
		if err != nil {
			result.Failed = append(result.Failed, report.FileName)
			p.logger.ErrorContext(ctx, "failed to archive file",
				slog.String("file", report.FileName),
				slog.String("error", err.Error()),
			)
			continue
		}

		p.ledger.Record(report.FileName, report.Fingerprint)
		result.Archived = append(result.Archived, archivePath)
		p.logger.InfoContext(ctx, "file archived",
			slog.String("file", report.FileName),
			slog.String("archive", filepath.Base(archivePath)),
		)
	}

	if len(result.Archived) > 0 {
		if err := p.ledger.Save(); err != nil {
			result.LedgerError = err
			p.logger.ErrorContext(ctx, "failed to save ledger; archived files will be re-processed if dropped again",
				slog.String("error", err.Error()),
			)
		}
	}

	p.archived = true
	return result, ctx.Err()
}

// =============================================================================
// RESULTS
// =============================================================================

// Filters narrows the customers of a run. Zero values disable a filter.
// They apply in field order.
type Filters struct {
	// Keys keeps only these ETC numbers.
	Keys []string

	// ExpiryDays keeps customers whose earliest expiry is within this many
	// days from now (past expiries included).
	ExpiryDays *int

	// Package keeps customers with a vehicle whose package contains this
	// text, ignoring case.
	Package string

	// Limit keeps at most this many customers.
	Limit int
}

// Records returns the finalized customers of the last successful run, in
// first-seen order.
func (p *Processor) Records() []*types.CustomerRecord {
	if !p.done {
		return nil
	}
	return p.consolidator.Records()
}

// Select returns the customers of the last run that pass f.
func (p *Processor) Select(f Filters) []*types.CustomerRecord {
	records := p.Records()
	if len(f.Keys) > 0 {
		records = consolidator.WithKeys(records, f.Keys)
	}
	if f.ExpiryDays != nil {
		records = consolidator.ExpiringWithin(records, *f.ExpiryDays, p.now())
	}
	if f.Package != "" {
		records = consolidator.WithPackage(records, f.Package)
	}
	if f.Limit > 0 && len(records) > f.Limit {
		records = records[:f.Limit]
	}
	return records
}

// Summary returns the summary of the last run.
func (p *Processor) Summary() types.ProcessingSummary {
	return p.summary
}

// Processed reports whether the last run completed.
func (p *Processor) Processed() bool {
	return p.done
}

// WriteSummary stores the last run summary as JSON in the output folder.
func (p *Processor) WriteSummary() (string, error) {
	return p.files.WriteSummary(p.summary)
}

// Clear discards the records of the last run.
func (p *Processor) Clear() {
	p.consolidator.Reset()
	p.done = false
	p.ledger = nil
	p.summary = types.ProcessingSummary{}
	p.metrics.SetCustomers(0)
}

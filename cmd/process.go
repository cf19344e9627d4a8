// =============================================================================
// ETC Mailer - Process Command
// =============================================================================
//
// This file defines the 'process' command, the main command of the tool. It
// runs one batch from the customers folder to the customers' inboxes.
//
// COMMAND USAGE:
//   etcmailer process [flags]
//
// FLAGS:
//   --folder   : Customers folder (default from config)
//   --dry-run  : Write HTML previews instead of sending
//   --etc      : Only these ETC numbers (repeatable)
//   --expiry   : Only customers expiring within N days
//   --package  : Only customers with a matching package
//   --limit    : At most N customers
//   --delay    : Pause between live sends
//   --yes      : Skip the confirmation prompt
//
// PROCESSING PIPELINE:
//   1. Load configuration; live runs require mail credentials
//   2. Consolidate the customer sheets (see internal/batch)
//   3. Apply the filters: etc, expiry, package, limit
//   4. Print a summary and a preview of the first recipients
//   5. Ask for confirmation (live runs without --yes)
//   6. Send one email per customer
//   7. Archive the processed sheets and update the ledger (live runs only)
//   8. Print final statistics and write the run summary
//
// =============================================================================

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/etc-mailer/internal/batch"
	"github.com/ginjaninja78/etc-mailer/internal/mailer"
	"github.com/ginjaninja78/etc-mailer/internal/render"
	"github.com/ginjaninja78/etc-mailer/internal/types"
)

// previewCount is the number of recipients listed before sending.
const previewCount = 5

// processOptions holds the flags of one run.
type processOptions struct {
	Folder  string
	DryRun  bool
	Filters batch.Filters
	Delay   *time.Duration
	Yes     bool
}

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	processFolder  string
	processDryRun  bool
	processETC     []string
	processExpiry  int
	processPackage string
	processLimit   int
	processDelay   time.Duration
	processYes     bool
)

// =============================================================================
// PROCESS COMMAND DEFINITION
// =============================================================================

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Consolidate customer sheets and send emails",
	Long: `The process command reads every customer sheet in the customers folder,
merges all rows that share an ETC number into one customer, and sends each
customer one email using the template their vehicles call for.

Sheets that were already processed with identical content are skipped.
After a live run, processed sheets are moved to the processed folder.

Examples:
  etcmailer process --dry-run
  etcmailer process --etc 0055 --etc 0221
  etcmailer process --expiry 7
  etcmailer process --package Gold --limit 10`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.OutOrStdout(), cmd.InOrStdin())
		if err != nil {
			return err
		}
		defer a.close()

		opts := processOptions{
			Folder:  processFolder,
			DryRun:  processDryRun,
			Yes:     processYes,
			Filters: batch.Filters{Keys: processETC, Package: processPackage, Limit: processLimit},
		}
		if cmd.Flags().Changed("expiry") {
			opts.Filters.ExpiryDays = &processExpiry
		}
		if cmd.Flags().Changed("delay") {
			opts.Delay = &processDelay
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return runProcess(ctx, a, opts)
	},
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processFolder, "folder", "", "Customers folder (default from config)")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Write HTML previews instead of sending")
	processCmd.Flags().StringSliceVar(&processETC, "etc", nil, "Only these ETC numbers (repeatable)")
	processCmd.Flags().IntVar(&processExpiry, "expiry", 0, "Only customers expiring within N days")
	processCmd.Flags().StringVar(&processPackage, "package", "", "Only customers with a package containing this text")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "Send at most N emails")
	processCmd.Flags().DurationVar(&processDelay, "delay", 0, "Pause between live emails (default from config)")
	processCmd.Flags().BoolVarP(&processYes, "yes", "y", false, "Skip the confirmation prompt")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// runProcess runs one batch. Fatal errors are returned; per-customer
// failures are only reported.
func runProcess(ctx context.Context, a *app, opts processOptions) error {
	out := a.out

	if !opts.DryRun {
		if err := a.cfg.ValidateForSending(); err != nil {
			return err
		}
	}
	if opts.Delay != nil {
		a.cfg.Mail.Delay = *opts.Delay
	}

	fmt.Fprintln(out, "=== ETC Mailer ===")
	mode := "LIVE"
	if opts.DryRun {
		mode = "DRY RUN"
	}
	fmt.Fprintf(out, "Mode: %s\n\n", mode)

	// =========================================================================
	// STEP 1: CONSOLIDATE
	// =========================================================================

	processor := a.processor(opts.Folder)
	summary, err := processor.ProcessFolder(ctx)
	if err != nil {
		return fmt.Errorf("processing failed: %w", err)
	}
	printFileReports(out, summary)

	// =========================================================================
	// STEP 2: FILTER
	// =========================================================================

	recipients := processor.Select(opts.Filters)

	fmt.Fprintln(out, "\nProcessing Summary:")
	fmt.Fprintf(out, "  Files processed:        %d\n", summary.FilesProcessed)
	fmt.Fprintf(out, "  Total unique customers: %d\n", summary.TotalCustomers)
	fmt.Fprintf(out, "  Customers to email:     %d\n", len(recipients))

	if len(recipients) == 0 {
		fmt.Fprintln(out, "\nNo customers match the specified criteria.")
		return nil
	}

	printPreview(out, recipients, opts.DryRun)

	// =========================================================================
	// STEP 3: CONFIRM
	// =========================================================================

	if !opts.DryRun && !opts.Yes {
		if !confirm(out, a.in, fmt.Sprintf("Send emails to %d customers? (yes/no): ", len(recipients))) {
			fmt.Fprintln(out, "Email sending cancelled by user.")
			return nil
		}
	}

	// =========================================================================
	// STEP 4: SEND
	// =========================================================================

	dispatcher := a.dispatcher(a.engine())
	fmt.Fprintf(out, "\nSending %d email(s) (%s), delay %s\n", len(recipients), mode, a.cfg.Mail.Delay)

	stats, sendErr := dispatcher.SendAll(ctx, recipients, mailer.SendOptions{
		DryRun: opts.DryRun,
		Progress: func(p mailer.Progress) {
			printProgress(out, p)
		},
	})

	// =========================================================================
	// STEP 5: ARCHIVE
	// =========================================================================

	if !opts.DryRun && sendErr == nil {
		result, err := processor.ArchiveProcessed(ctx)
		if err != nil && !errors.Is(err, batch.ErrNotProcessed) {
			return fmt.Errorf("archiving failed: %w", err)
		}
		if result != nil {
			fmt.Fprintf(out, "\nArchived %d file(s) to %s\n", len(result.Archived), a.cfg.ProcessedDir)
			for _, name := range result.Failed {
				fmt.Fprintf(out, "  ! could not archive %s\n", name)
			}
			if result.LedgerError != nil {
				fmt.Fprintf(out, "  ! ledger not saved: %v\n", result.LedgerError)
			}
		}
	}

	if path, err := processor.WriteSummary(); err == nil {
		fmt.Fprintf(out, "Run summary: %s\n", path)
	} else {
		a.logger.Warn("failed to write run summary", "error", err)
	}

	// =========================================================================
	// STEP 6: FINAL STATISTICS
	// =========================================================================

	fmt.Fprintln(out, "\nFinal Statistics:")
	fmt.Fprintf(out, "  Emails sent:     %d\n", stats.Sent)
	if opts.DryRun {
		fmt.Fprintf(out, "  Previews:        %d\n", stats.Previewed)
	}
	fmt.Fprintf(out, "  Failed:          %d\n", stats.Failed)
	fmt.Fprintf(out, "  Total processed: %d\n", stats.Total)
	if stats.Failed > 0 {
		fmt.Fprintf(out, "\nCheck logs for details: %s\n", filepath.Join(a.cfg.LogsDir, mailer.LogFileName))
	}

	return sendErr
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printFileReports(out io.Writer, summary *types.ProcessingSummary) {
	if len(summary.Files) == 0 {
		fmt.Fprintln(out, "No customer sheets found.")
		return
	}
	for _, f := range summary.Files {
		switch f.Status {
		case types.FileStatusUnchanged:
			fmt.Fprintf(out, "  - %s: already processed, skipped\n", f.FileName)
		case types.FileStatusFailed:
			fmt.Fprintf(out, "  ✗ %s: %s\n", f.FileName, f.Error)
		default:
			fmt.Fprintf(out, "  ✓ %s: %d row(s)\n", f.FileName, f.RowCount)
		}
	}
	if len(summary.Warnings) > 0 {
		fmt.Fprintf(out, "\nWarnings (%d):\n", len(summary.Warnings))
		for _, w := range summary.Warnings {
			fmt.Fprintf(out, "  ! %s\n", w)
		}
	}
}

func printPreview(out io.Writer, recipients []*types.CustomerRecord, dryRun bool) {
	mode := "LIVE MODE"
	if dryRun {
		mode = "DRY RUN"
	}
	rule := strings.Repeat("─", 60)

	fmt.Fprintf(out, "\nEmail Preview (%s):\n%s\n", mode, rule)
	for i, rec := range recipients {
		if i == previewCount {
			break
		}
		email := rec.Email
		if email == "" {
			email = "NO EMAIL"
		}
		expires := "N/A"
		if rec.EarliestExpiry != nil {
			expires = render.FormatDate(rec.EarliestExpiry)
		}

		fmt.Fprintf(out, "%d. %s (ETC: %s)\n", i+1, rec.Name, rec.BusinessKey)
		fmt.Fprintf(out, "   Email:    %s\n", email)
		fmt.Fprintf(out, "   Vehicles: %d\n", len(rec.Vehicles))
		fmt.Fprintf(out, "   Total:    %s\n", render.FormatCurrency(rec.TotalAmount))
		fmt.Fprintf(out, "   Expires:  %s\n", expires)
		if rec.SourceFiles.Len() > 0 {
			fmt.Fprintf(out, "   Source:   %s\n", strings.Join(rec.SourceFiles.Values(), ", "))
		}
		fmt.Fprintln(out)
	}
	if len(recipients) > previewCount {
		fmt.Fprintf(out, "   ... and %d more customers\n", len(recipients)-previewCount)
	}
	fmt.Fprintln(out, rule)
}

func printProgress(out io.Writer, p mailer.Progress) {
	r := p.Result
	fmt.Fprintf(out, "[%d/%d] %s (ETC: %s) [Template: %s] ", p.Index, p.Total, r.Name, r.BusinessKey, r.Template)
	switch r.Status {
	case mailer.StatusSuccess:
		fmt.Fprintln(out, "sent")
	case mailer.StatusDryRun:
		fmt.Fprintf(out, "preview saved: %s\n", mailer.PreviewName(r.BusinessKey, r.Template))
	default:
		fmt.Fprintf(out, "FAILED: %s\n", r.Error)
	}
}

// confirm asks a yes/no question. Any answer starting with "y" is yes.
func confirm(out io.Writer, in io.Reader, question string) bool {
	fmt.Fprintf(out, "\n%s", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y")
}

// =============================================================================
// ETC Mailer - Schedule Command
// =============================================================================
//
// The schedule command runs the process pipeline on a cron schedule until
// interrupted. Every run is unattended: the confirmation prompt is skipped.
//
// COMMAND USAGE:
//   etcmailer schedule [--cron "0 9 * * 1-5"] [--dry-run]
//
// =============================================================================

package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/etc-mailer/internal/scheduler"
)

var (
	scheduleCron   string
	scheduleDryRun bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the process pipeline on a cron schedule",
	Long: `Run 'process --yes' at every activation of a five-field cron expression.
Sheets dropped into the customers folder between runs are picked up by
the next run; sheets already processed are skipped by the ledger.

A failed run is logged and the schedule continues.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.OutOrStdout(), cmd.InOrStdin())
		if err != nil {
			return err
		}
		defer a.close()

		if !scheduleDryRun {
			if err := a.cfg.ValidateForSending(); err != nil {
				return err
			}
		}

		expr := scheduleCron
		if expr == "" {
			expr = a.cfg.Schedule.Cron
		}

		runner, err := scheduler.New(expr, func(ctx context.Context) error {
			return runProcess(ctx, a, processOptions{DryRun: scheduleDryRun, Yes: true})
		}, scheduler.WithLogger(a.logger))
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a.logger.Info("scheduler started", slog.String("cron", expr), slog.Bool("dry_run", scheduleDryRun))
		return runner.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "Five-field cron expression (default from config)")
	scheduleCmd.Flags().BoolVar(&scheduleDryRun, "dry-run", false, "Write HTML previews instead of sending")
}

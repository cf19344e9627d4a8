// =============================================================================
// ETC Mailer - Serve Command
// =============================================================================
//
// The serve command starts the HTTP front end: operators upload one sheet,
// preview individual emails and watch the dispatch progress in a browser.
//
// COMMAND USAGE:
//   etcmailer serve [--addr :8080]
//
// =============================================================================

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/etc-mailer/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web front end",
	Long: `Start the HTTP front end. Uploaded sheets are consolidated in memory and
bypass the ingestion ledger; nothing is archived.

Prometheus metrics are exposed on /metrics.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.OutOrStdout(), cmd.InOrStdin())
		if err != nil {
			return err
		}
		defer a.close()

		if serveAddr != "" {
			a.cfg.Server.Address = serveAddr
		}
		engine := a.engine()
		svc := server.New(server.Deps{
			Config:     a.cfg,
			Processor:  a.processor(a.cfg.UploadsDir),
			Engine:     engine,
			Dispatcher: a.dispatcher(engine),
			Metrics:    a.metrics,
			Logger:     a.logger,
		})

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return svc.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
}

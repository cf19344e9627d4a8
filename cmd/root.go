// =============================================================================
// ETC Mailer - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every subcommand
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (etcmailer)
//   ├── processCmd  (etcmailer process)
//   ├── serveCmd    (etcmailer serve)
//   ├── scheduleCmd (etcmailer schedule)
//   ├── previewCmd  (etcmailer preview)
//   └── versionCmd  (etcmailer version)
//
// CONFIGURATION:
//   The root command owns the flags shared by every subcommand (--config,
//   --verbose). Subcommands call loadApp to get the configuration and the
//   logger.
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/etc-mailer/internal/config"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "etcmailer",
	Short: "ETC Mailer - Consolidate customer sheets and send tracking service emails",
	Long: `ETC Mailer reads the customer sheets (.csv, .xlsx) dropped into the
customers folder, consolidates every row into one record per ETC number, and
sends each customer the email template their vehicles call for.

Key Features:
  - Multi-vehicle consolidation across any number of sheets
  - Duplicate protection: identical files are never processed twice
  - Two-digit-year dates fixed in the source files
  - Dry runs that write HTML previews instead of sending
  - Web front end and cron scheduling

Example Usage:
  etcmailer process --dry-run          # Preview emails for every customer
  etcmailer process --etc 0055 --yes   # Send to one customer without asking
  etcmailer serve                      # Start the web front end`,

	SilenceUsage:  true,
	SilenceErrors: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		config.DefaultPath,
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable verbose output for debugging",
	)
}

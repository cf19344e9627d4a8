// =============================================================================
// ETC Mailer - Main Entry Point
// =============================================================================
//
// ETC Mailer consolidates customer sheets exported by the sales team and
// sends every customer one templated email.
//
// USAGE:
//   etcmailer process       - Consolidate the customers folder and send
//   etcmailer preview       - Render one customer's email to a file
//   etcmailer serve         - Start the web front end
//   etcmailer schedule      - Run 'process' on a cron schedule
//   etcmailer version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Consolidation, rendering, mailing, HTTP front end
//   - pkg/           : Logging and file management utilities
//   - templates/     : Email templates and inline images
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/etc-mailer/cmd"
)

func main() {
	cmd.Execute()
}

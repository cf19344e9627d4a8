// =============================================================================
// ETC Mailer - Preview Command
// =============================================================================
//
// The preview command renders the email of one customer to an HTML file
// without sending anything and without archiving the sheets.
//
// COMMAND USAGE:
//   etcmailer preview --etc 0055 [--template renewal-done]
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/etc-mailer/internal/mailer"
	"github.com/ginjaninja78/etc-mailer/internal/types"
)

// errCustomerNotFound is returned when no consolidated customer has the
// requested ETC number.
var errCustomerNotFound = errors.New("customer not found")

var (
	previewETC      string
	previewTemplate string
	previewFolder   string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render one customer's email to an HTML file",
	Long: `Consolidate the customers folder and render the email of one customer.
Inline images are embedded so the file opens directly in a browser.

Examples:
  etcmailer preview --etc 0055
  etcmailer preview --etc 0055 --template renewal-reminder`,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.OutOrStdout(), cmd.InOrStdin())
		if err != nil {
			return err
		}
		defer a.close()

		path, err := runPreview(cmd.Context(), a, previewFolder, previewETC, previewTemplate)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Preview written to %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewCmd.Flags().StringVar(&previewETC, "etc", "", "ETC number of the customer (required)")
	previewCmd.Flags().StringVar(&previewTemplate, "template", "", "Render this template instead of the customer's")
	previewCmd.Flags().StringVar(&previewFolder, "folder", "", "Customers folder (default from config)")
	_ = previewCmd.MarkFlagRequired("etc")
}

// runPreview writes the preview of customer key and returns its path.
func runPreview(ctx context.Context, a *app, folder, key, templateName string) (string, error) {
	processor := a.processor(folder)
	if _, err := processor.ProcessFolder(ctx); err != nil {
		return "", fmt.Errorf("processing failed: %w", err)
	}

	var rec *types.CustomerRecord
	for _, r := range processor.Records() {
		if r.BusinessKey == key {
			rec = r
			break
		}
	}
	if rec == nil {
		return "", fmt.Errorf("%w: ETC %s", errCustomerNotFound, key)
	}

	if templateName == "" {
		templateName = rec.TemplateSelection
	}
	if templateName == "" {
		return "", fmt.Errorf("ETC %s: %w", key, mailer.ErrNoTemplate)
	}

	result, err := a.engine().Preview(templateName, rec)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(a.cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(a.cfg.OutputDir, mailer.PreviewName(key, templateName))
	if err := os.WriteFile(path, []byte(result.HTML), 0644); err != nil {
		return "", fmt.Errorf("failed to write preview: %w", err)
	}
	return path, nil
}

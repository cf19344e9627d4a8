package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/etc-mailer/internal/batch"
	"github.com/ginjaninja78/etc-mailer/internal/config"
	"github.com/ginjaninja78/etc-mailer/internal/mailer"
	"github.com/ginjaninja78/etc-mailer/pkg/logger"
)

const sheetHeader = "ETC-number,Customer-Name,Send-Email-To,Vehicle-Rank,Package-Activated,Payment-Amount,Tenure-Ending-Date,email-template\n"

func testApp(t *testing.T, answer string) (*app, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		InputDir:     filepath.Join(root, "customers"),
		ProcessedDir: filepath.Join(root, "processed"),
		OutputDir:    filepath.Join(root, "output"),
		TemplatesDir: filepath.Join(root, "templates"),
		LogsDir:      filepath.Join(root, "logs"),
		UploadsDir:   filepath.Join(root, "uploads"),
		CSVSettings:  config.CSVSettings{Delimiter: ",", HeaderRows: 1, DataStartRow: 2},
	}
	for _, d := range cfg.Directories() {
		require.NoError(t, os.MkdirAll(d, 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(cfg.TemplatesDir, "renewal-pending.html"),
		[]byte("---\nSubject: Renewal for {{.ETCNumber}}\n---\n<p>Dear {{.CustomerName}}</p>"), 0644))

	out := &bytes.Buffer{}
	return &app{
		cfg:    cfg,
		logger: logger.NewNope(),
		out:    out,
		in:     strings.NewReader(answer),
	}, out
}

func writeSheet(t *testing.T, a *app, name string, rows ...string) string {
	t.Helper()
	path := filepath.Join(a.cfg.InputDir, name)
	require.NoError(t, os.WriteFile(path, []byte(sheetHeader+strings.Join(rows, "\n")+"\n"), 0644))
	return path
}

func TestRunProcess_LiveRequiresCredentials(t *testing.T) {
	a, out := testApp(t, "")
	writeSheet(t, a, "a.csv", "0055,Ali Raza,ali@example.com,1,Gold,100,,renewal-pending")

	err := runProcess(context.Background(), a, processOptions{})
	require.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.Empty(t, out.String())
}

func TestRunProcess_DryRunWritesPreviewsAndKeepsSheets(t *testing.T) {
	a, out := testApp(t, "")
	sheet := writeSheet(t, a, "a.csv",
		"0055,Ali Raza,ali@example.com,1,Gold,\"12,500\",,renewal-pending",
		"0221,Sara Khan,,1,Silver,500,,renewal-pending",
	)

	require.NoError(t, runProcess(context.Background(), a, processOptions{DryRun: true}))

	text := out.String()
	assert.Contains(t, text, "Mode: DRY RUN")
	assert.Contains(t, text, "Customers to email:     2")
	assert.Contains(t, text, "1. Ali Raza (ETC: 0055)")
	assert.Contains(t, text, "Total:    Rs 12,500")
	assert.Contains(t, text, "Email:    NO EMAIL")
	assert.Contains(t, text, "Previews:        1")
	assert.Contains(t, text, "Failed:          1")
	assert.Contains(t, text, mailer.LogFileName)
	assert.NotContains(t, text, "Send emails to")

	assert.FileExists(t, filepath.Join(a.cfg.OutputDir, mailer.PreviewName("0055", "renewal-pending")))
	assert.FileExists(t, sheet, "dry runs do not archive")
	assert.NoFileExists(t, filepath.Join(a.cfg.ProcessedDir, ".processed-hashes.json"))
}

func TestRunProcess_NoMatches(t *testing.T) {
	a, out := testApp(t, "")
	writeSheet(t, a, "a.csv", "0055,Ali Raza,ali@example.com,1,Gold,100,,renewal-pending")

	err := runProcess(context.Background(), a, processOptions{
		DryRun:  true,
		Filters: batch.Filters{Keys: []string{"9999"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No customers match the specified criteria.")
	assert.NotContains(t, out.String(), "Final Statistics")
}

func TestRunProcess_DeclinedConfirmationSendsNothing(t *testing.T) {
	a, out := testApp(t, "no\n")
	a.cfg.Mail = config.MailConfig{APIKey: "re_test", FromEmail: "billing@example.com", FromName: "Billing"}
	sheet := writeSheet(t, a, "a.csv", "0055,Ali Raza,ali@example.com,1,Gold,100,,renewal-pending")

	require.NoError(t, runProcess(context.Background(), a, processOptions{}))

	text := out.String()
	assert.Contains(t, text, "Send emails to 1 customers? (yes/no)")
	assert.Contains(t, text, "Email sending cancelled by user.")
	assert.NotContains(t, text, "Final Statistics")
	assert.FileExists(t, sheet)
	assert.NoFileExists(t, filepath.Join(a.cfg.LogsDir, mailer.LogFileName))
}

func TestRunProcess_PreviewListIsCapped(t *testing.T) {
	a, out := testApp(t, "")
	var rows []string
	for _, key := range []string{"0001", "0002", "0003", "0004", "0005", "0006", "0007"} {
		rows = append(rows, key+",Customer "+key+",c"+key+"@example.com,1,Gold,100,,renewal-pending")
	}
	writeSheet(t, a, "a.csv", rows...)

	require.NoError(t, runProcess(context.Background(), a, processOptions{DryRun: true}))
	assert.Contains(t, out.String(), "5. Customer 0005")
	assert.NotContains(t, out.String(), "6. Customer 0006")
	assert.Contains(t, out.String(), "... and 2 more customers")
}

func TestConfirm(t *testing.T) {
	cases := map[string]bool{
		"yes\n": true,
		"Y\n":   true,
		"y":     true,
		"no\n":  false,
		"\n":    false,
		"":      false,
	}
	for answer, want := range cases {
		var out bytes.Buffer
		assert.Equal(t, want, confirm(&out, strings.NewReader(answer), "Send? "), "answer %q", answer)
	}
}

func TestRunPreview(t *testing.T) {
	a, _ := testApp(t, "")
	writeSheet(t, a, "a.csv", "0055,Ali Raza,ali@example.com,1,Gold,100,,renewal-pending")

	path, err := runPreview(context.Background(), a, "", "0055", "")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Dear Ali Raza")

	_, err = runPreview(context.Background(), a, "", "9999", "")
	assert.ErrorIs(t, err, errCustomerNotFound)
}

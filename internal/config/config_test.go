package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load("does-not-exist.yaml", noEnv, nil)
	require.NoError(t, err)

	assert.Equal(t, "./customers", cfg.InputDir)
	assert.Equal(t, "./processed", cfg.ProcessedDir)
	assert.Equal(t, ",", cfg.CSVSettings.Delimiter)
	assert.Equal(t, 2, cfg.CSVSettings.DataStartRow)
	assert.Equal(t, 2*time.Second, cfg.Mail.Delay)
	assert.Equal(t, "ETC2950-", cfg.Mail.ReferencePrefix)
	assert.Equal(t, []string{"team@etracking.pk"}, cfg.Mail.CC)
	assert.Equal(t, "payment-options.jpeg", cfg.Mail.Attachments["renewal-pending"])
	assert.Equal(t, ":8080", cfg.Server.Address)

	for _, dir := range cfg.Directories() {
		assert.DirExists(t, dir)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
input_dir: ` + filepath.Join(dir, "in") + `
processed_dir: ` + filepath.Join(dir, "done") + `
output_dir: ` + filepath.Join(dir, "out") + `
templates_dir: ` + filepath.Join(dir, "tpl") + `
logs_dir: ` + filepath.Join(dir, "logs") + `
uploads_dir: ` + filepath.Join(dir, "up") + `
log_level: debug
mail:
  from_email: billing@example.com
  from_name: Billing
  delay: 500ms
  cc: []
  subjects:
    renewal-done: Thanks
server:
  address: ":9000"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0644))

	env := envMap(map[string]string{
		"RESEND_API_KEY": "re_123",
		"MAIL_DELAY":     "1500",
	})
	cfg, err := load(path, env, []string{"email-title-renewal-pending=Renewal due", "PATH=/bin"})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "re_123", cfg.Mail.APIKey)
	assert.Equal(t, 1500*time.Millisecond, cfg.Mail.Delay)
	assert.Equal(t, "billing@example.com", cfg.Mail.ReplyTo)
	assert.Empty(t, cfg.Mail.CC, "explicit empty list disables CC")
	assert.Equal(t, "Thanks", cfg.Mail.Subjects["renewal-done"])
	assert.Equal(t, "Renewal due", cfg.Mail.Subjects["renewal-pending"])
	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.NoError(t, cfg.ValidateForSending())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input_dir: [unterminated"), 0644))

	_, err := load(path, noEnv, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_InvalidDelayEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := load("missing.yaml", envMap(map[string]string{"MAIL_DELAY": "soon"}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAIL_DELAY")
}

func TestValidateForSending(t *testing.T) {
	t.Parallel()

	cfg := &Config{Mail: MailConfig{FromEmail: "a@b.co"}}
	err := cfg.ValidateForSending()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Contains(t, err.Error(), "RESEND_API_KEY")
	assert.Contains(t, err.Error(), "MAIL_FROM_NAME")
	assert.NotContains(t, err.Error(), "MAIL_FROM_EMAIL")
}

func TestParseDelay(t *testing.T) {
	t.Parallel()

	d, err := parseDelay("2s")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	d, err = parseDelay("250")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = parseDelay("12abc")
	assert.Error(t, err)
}

package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/etc-mailer/internal/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	l, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, l.Len())
}

func TestLoad_EmptyFileIsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "  \n")

	l, err := Load(dir)
	require.NoError(t, err)
	assert.Zero(t, l.Len())
}

func TestLoad_Corrupt(t *testing.T) {
	t.Parallel()

	for _, content := range []string{"{not json", `["a.csv"]`, `{"a.csv": 12}`} {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, FileName), content)

		_, err := Load(dir)
		require.Error(t, err, content)
		assert.ErrorIs(t, err, ErrCorruptLedger, content)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	l, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, types.FileStatusNew, l.Classify("a.csv", "abc"))

	l.Record("a.csv", "abc")
	assert.Equal(t, types.FileStatusUnchanged, l.Classify("a.csv", "abc"))
	assert.Equal(t, types.FileStatusChanged, l.Classify("a.csv", "abd"))
}

func TestSave_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "processed")
	l, err := Load(dir)
	require.NoError(t, err)

	l.Record("b.csv", "222")
	l.Record("a.csv", "111")
	require.NoError(t, l.Save())

	raw, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a.csv":"111","b.csv":"222"}`, string(raw))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, reloaded.Names())
	fp, ok := reloaded.Lookup("b.csv")
	assert.True(t, ok)
	assert.Equal(t, "222", fp)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	writeFile(t, a, "ETC,Name\n1,Ali\n")
	writeFile(t, b, "ETC,Name\n1,Ali \n")

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	assert.Len(t, fa, 64)

	again, err := Fingerprint(a)
	require.NoError(t, err)
	assert.Equal(t, fa, again)

	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb, "whitespace changes the fingerprint")

	_, err = Fingerprint(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestFingerprint_KnownDigest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x")
	writeFile(t, path, "abc")
	fp, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", fp)
}

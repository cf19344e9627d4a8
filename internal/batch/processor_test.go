package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/etc-mailer/internal/config"
	"github.com/ginjaninja78/etc-mailer/internal/consolidator"
	"github.com/ginjaninja78/etc-mailer/internal/ledger"
	"github.com/ginjaninja78/etc-mailer/internal/metrics"
	"github.com/ginjaninja78/etc-mailer/internal/types"
)

const header = "ETC-number,Customer-Name,Send-Email-To,Vehicle-Rank,Package-Activated,Payment-Amount,Tenure-Ending-Date,email-template\n"

var fixedNow = time.Date(2025, time.August, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	root      string
	input     string
	processed string
	output    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:      root,
		input:     filepath.Join(root, "customers"),
		processed: filepath.Join(root, "processed"),
		output:    filepath.Join(root, "output"),
	}
	for _, d := range []string{f.input, f.processed, f.output} {
		require.NoError(t, os.MkdirAll(d, 0755))
	}
	return f
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.input, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (f *fixture) processor(opts ...Option) *Processor {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(Options{
		InputDir:     f.input,
		ProcessedDir: f.processed,
		OutputDir:    f.output,
		CSVSettings:  config.CSVSettings{Delimiter: ",", HeaderRows: 1, DataStartRow: 2},
	}, opts...)
}

func reportFor(t *testing.T, s *types.ProcessingSummary, name string) types.FileReport {
	t.Helper()
	for _, r := range s.Files {
		if r.FileName == name {
			return r
		}
	}
	t.Fatalf("no report for %s", name)
	return types.FileReport{}
}

func TestProcessFolder_TwoFileScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "fileA.csv", header+
		"0055,Ali Raza,ali@example.com,2,Gold,\"Rs 12,500\",12-Aug-25,renewal-pending\n"+
		"0055,Ali Raza,ali@example.com,1,Gold,\"7,000\",01-Jul-2025,renewal-pending\n")
	f.write(t, "fileB.csv", header+
		"0055,Ali Raza,ali@example.com,3,Silver,500,,renewal-done\n")

	p := f.processor()
	summary, err := p.ProcessFolder(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.FilesProcessed)
	assert.Equal(t, 1, summary.TotalCustomers)
	assert.NotEmpty(t, summary.RunID)

	records := p.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "0055", rec.BusinessKey)
	assert.Len(t, rec.Vehicles, 3)
	assert.Equal(t, "renewal-done", rec.TemplateSelection)
	assert.Equal(t, []string{"fileA.csv", "fileB.csv"}, rec.SourceFiles.Values())
	assert.Equal(t, []string{"1", "2", "3"}, []string{rec.Vehicles[0].Rank, rec.Vehicles[1].Rank, rec.Vehicles[2].Rank})
	assert.Equal(t, "20000", rec.TotalAmount.String())
	require.NotNil(t, rec.EarliestExpiry)
	assert.Equal(t, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), *rec.EarliestExpiry)

	a := reportFor(t, summary, "fileA.csv")
	assert.Equal(t, types.FileStatusNew, a.Status)
	assert.Equal(t, 2, a.RowCount)
	assert.True(t, a.Rewritten)
	assert.Equal(t, fixedNow, a.ProcessedAt)
}

func TestProcessFolder_RewritesDatesOnlyWhenChanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	twoDigit := f.write(t, "a.csv", header+"0001,A,a@x.io,1,Gold,0,5-Jan-24,renewal-pending\n")
	canonical := header + "0002,B,b@x.io,1,Gold,0,05-Jan-2024,renewal-pending\n"
	fourDigit := f.write(t, "b.csv", canonical)

	summary, err := f.processor().ProcessFolder(context.Background())
	require.NoError(t, err)

	raw, err := os.ReadFile(twoDigit)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "05-Jan-2024")
	assert.NotContains(t, string(raw), ",5-Jan-24,")
	assert.True(t, reportFor(t, summary, "a.csv").Rewritten)

	raw, err = os.ReadFile(fourDigit)
	require.NoError(t, err)
	assert.Equal(t, canonical, string(raw))
	assert.False(t, reportFor(t, summary, "b.csv").Rewritten)
}

func TestProcessFolder_IdempotentAfterArchive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	original := header + "0055,Ali,ali@example.com,1,Gold,100,5-Jan-26,renewal-pending\n"
	f.write(t, "fileA.csv", original)

	reg := metrics.NewRegistry()
	p := f.processor(WithMetrics(reg))
	_, err := p.ProcessFolder(context.Background())
	require.NoError(t, err)

	result, err := p.ArchiveProcessed(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Archived, 1)
	assert.Equal(t, "2025-08-01T09-00-00-000Z_fileA.csv", filepath.Base(result.Archived[0]))
	assert.NoError(t, result.LedgerError)
	assert.NoFileExists(t, filepath.Join(f.input, "fileA.csv"))

	l, err := ledger.Load(f.processed)
	require.NoError(t, err)
	_, ok := l.Lookup("fileA.csv")
	assert.True(t, ok)

	// The operator drops the same original file again.
	f.write(t, "fileA.csv", original)

	p2 := f.processor(WithMetrics(reg))
	summary, err := p2.ProcessFolder(context.Background())
	require.NoError(t, err)

	report := reportFor(t, summary, "fileA.csv")
	assert.Equal(t, types.FileStatusUnchanged, report.Status)
	assert.Zero(t, report.RowCount)
	assert.Zero(t, summary.FilesProcessed)
	assert.Empty(t, p2.Records())

	// Nothing was admitted, so nothing moves.
	result, err = p2.ArchiveProcessed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Archived)
	assert.FileExists(t, filepath.Join(f.input, "fileA.csv"))
}

func TestProcessFolder_ChangedSameNameWarns(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	l, err := ledger.Load(f.processed)
	require.NoError(t, err)
	l.Record("fileA.csv", "0000")
	require.NoError(t, l.Save())

	f.write(t, "fileA.csv", header+"0055,Ali,ali@example.com,1,Gold,100,,renewal-pending\n")

	p := f.processor()
	summary, err := p.ProcessFolder(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.FileStatusChanged, reportFor(t, summary, "fileA.csv").Status)
	require.NotEmpty(t, summary.Warnings)
	assert.Contains(t, summary.Warnings[0], "DIFFERENT data")
	assert.Len(t, p.Records(), 1)
}

func TestProcessFolder_MissingHintAbortsBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "a.csv", header+"0001,Ok,ok@x.io,1,Gold,100,,renewal-pending\n")
	f.write(t, "b.csv", header+
		"0099,Bad,bad@x.io,1,Gold,100,,renewal-pending\n"+
		"0099,Bad,bad@x.io,2,Gold,100,,\n")

	p := f.processor()
	_, err := p.ProcessFolder(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, consolidator.ErrMissingTemplateHint)
	assert.Contains(t, err.Error(), "0099")
	assert.Contains(t, err.Error(), "b.csv")

	assert.False(t, p.Processed())
	assert.Empty(t, p.Records())
	for _, r := range p.Select(Filters{Keys: []string{"0099"}}) {
		t.Errorf("unexpected record %s", r.BusinessKey)
	}

	_, err = p.ArchiveProcessed(context.Background())
	assert.ErrorIs(t, err, ErrNotProcessed)
}

func TestProcessFolder_BadFileDoesNotStopBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "a.xlsx", "this is not a workbook")
	f.write(t, "b.csv", header+"0001,Ok,ok@x.io,1,Gold,100,,new-account\n")
	f.write(t, ".hidden.csv", header+"0002,Hidden,h@x.io,1,Gold,100,,new-account\n")
	f.write(t, "notes.txt", "ignored")

	p := f.processor()
	summary, err := p.ProcessFolder(context.Background())
	require.NoError(t, err)

	bad := reportFor(t, summary, "a.xlsx")
	assert.Equal(t, types.FileStatusFailed, bad.Status)
	assert.NotEmpty(t, bad.Error)
	assert.Len(t, summary.Files, 2)
	assert.Equal(t, 1, summary.FilesProcessed)
	require.Len(t, p.Records(), 1)
	assert.Equal(t, "0001", p.Records()[0].BusinessKey)

	found := false
	for _, w := range summary.Warnings {
		if strings.HasPrefix(w, "a.xlsx") {
			found = true
		}
	}
	assert.True(t, found)

	// The failed file stays in the input folder.
	result, err := p.ArchiveProcessed(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Archived, 1)
	assert.FileExists(t, filepath.Join(f.input, "a.xlsx"))
}

func TestProcessFolder_RowsWithoutKeyAreRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "a.csv", header+
		",Nobody,n@x.io,1,Gold,100,,renewal-pending\n"+
		"0001,Ok,ok@x.io,1,Gold,100,,renewal-pending\n")

	summary, err := f.processor().ProcessFolder(context.Background())
	require.NoError(t, err)

	report := reportFor(t, summary, "a.csv")
	assert.Equal(t, 1, report.RowCount)
	assert.Equal(t, 1, report.Rejected)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "a.csv row 2")
}

func TestProcessFolder_CorruptLedgerAborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.processed, ledger.FileName), []byte("{oops"), 0644))
	f.write(t, "a.csv", header+"0001,Ok,ok@x.io,1,Gold,100,,renewal-pending\n")

	_, err := f.processor().ProcessFolder(context.Background())
	assert.ErrorIs(t, err, ledger.ErrCorruptLedger)
}

func TestProcessFolder_Cancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "a.csv", header+"0001,Ok,ok@x.io,1,Gold,100,,renewal-pending\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := f.processor()
	_, err := p.ProcessFolder(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, p.Records())
}

func TestProcessUpload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	path := filepath.Join(f.root, "upload.csv")
	require.NoError(t, os.WriteFile(path, []byte(header+"0001,Ok,ok@x.io,1,Gold,100,,device-redo\n"), 0644))

	p := f.processor()
	summary, err := p.ProcessUpload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, types.FileStatusUploaded, summary.Files[0].Status)
	require.Len(t, p.Records(), 1)
	assert.Equal(t, "device-redo", p.Records()[0].TemplateSelection)

	result, err := p.ArchiveProcessed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Archived)
	assert.FileExists(t, path)
}

func TestSelect(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "a.csv", header+
		"0001,A,a@x.io,1,Gold,100,10-Aug-2025,renewal-pending\n"+
		"0002,B,b@x.io,1,Platinum,100,10-Dec-2025,renewal-pending\n"+
		"0003,C,c@x.io,1,gold plus,100,,renewal-pending\n"+
		"0004,D,d@x.io,1,Gold,100,20-Aug-2025,renewal-pending\n")

	p := f.processor()
	_, err := p.ProcessFolder(context.Background())
	require.NoError(t, err)

	keys := func(rs []*types.CustomerRecord) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.BusinessKey)
		}
		return out
	}

	thirty := 30
	assert.Equal(t, []string{"0001", "0002", "0003", "0004"}, keys(p.Select(Filters{})))
	assert.Equal(t, []string{"0002", "0004"}, keys(p.Select(Filters{Keys: []string{"0004", "0002"}})))
	assert.Equal(t, []string{"0001", "0004"}, keys(p.Select(Filters{ExpiryDays: &thirty})))
	assert.Equal(t, []string{"0001", "0003", "0004"}, keys(p.Select(Filters{Package: "GOLD"})))
	assert.Equal(t, []string{"0001"}, keys(p.Select(Filters{ExpiryDays: &thirty, Package: "gold", Limit: 1})))
}

func TestWriteSummaryAndClear(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.write(t, "a.csv", header+"0001,A,a@x.io,1,Gold,100,,renewal-pending\n")

	p := f.processor()
	_, err := p.ProcessFolder(context.Background())
	require.NoError(t, err)

	path, err := p.WriteSummary()
	require.NoError(t, err)
	assert.FileExists(t, path)

	p.Clear()
	assert.False(t, p.Processed())
	assert.Empty(t, p.Records())
}

func TestProcessFolder_MultiRowHeaderSurvivesRewrite(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	settings := config.CSVSettings{Delimiter: ",", HeaderRows: 2, DataStartRow: 3}
	path := f.write(t, "wrapped.csv",
		"ETC-number,Customer,Send-Email-To,Vehicle-Rank,Package-Activated,Payment-Amount,Tenure-Ending,email-template\n"+
			",Name,,,,,Date,\n"+
			"0001,Ali,ali@example.com,1,Gold,100,5-Jan-24,renewal-pending\n"+
			"0002,Sara,sara@example.com,1,Gold,200,6-Feb-24,renewal-pending\n")

	newProcessor := func() *Processor {
		return New(Options{
			InputDir:     f.input,
			ProcessedDir: f.processed,
			OutputDir:    f.output,
			CSVSettings:  settings,
		}, WithClock(func() time.Time { return fixedNow }))
	}

	keys := func(p *Processor) []string {
		var out []string
		for _, rec := range p.Records() {
			out = append(out, rec.BusinessKey)
		}
		return out
	}

	first := newProcessor()
	summary, err := first.ProcessFolder(context.Background())
	require.NoError(t, err)
	assert.True(t, reportFor(t, summary, "wrapped.csv").Rewritten)
	assert.ElementsMatch(t, []string{"0001", "0002"}, keys(first))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "ETC-number,Customer,Send-Email-To,"), "header rows are kept as read")
	assert.Contains(t, string(raw), "\n,Name,,,,,Date,\n")
	assert.Contains(t, string(raw), "05-Jan-2024")

	// Nothing was archived, so the next run reads the rewritten file.
	second := newProcessor()
	summary, err = second.ProcessFolder(context.Background())
	require.NoError(t, err)
	report := reportFor(t, summary, "wrapped.csv")
	assert.Equal(t, types.FileStatusNew, report.Status)
	assert.Equal(t, 2, report.RowCount)
	assert.False(t, report.Rewritten)
	assert.ElementsMatch(t, []string{"0001", "0002"}, keys(second))
}

func TestArchiveProcessed_LedgerSaveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	original := header + "0055,Ali,ali@example.com,1,Gold,100,05-Jan-2026,renewal-pending\n"
	f.write(t, "fileA.csv", original)

	p := f.processor()
	_, err := p.ProcessFolder(context.Background())
	require.NoError(t, err)

	// A directory where the ledger file belongs makes the final rename fail.
	blocker := filepath.Join(f.processed, ledger.FileName)
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0755))

	result, err := p.ArchiveProcessed(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Archived, 1)
	assert.Error(t, result.LedgerError)
	assert.NoFileExists(t, filepath.Join(f.input, "fileA.csv"))

	require.NoError(t, os.RemoveAll(blocker))

	// The identical file dropped again is treated as unprocessed.
	f.write(t, "fileA.csv", original)
	summary, err := f.processor().ProcessFolder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.FileStatusNew, reportFor(t, summary, "fileA.csv").Status)
	assert.Equal(t, 1, summary.TotalCustomers)
}

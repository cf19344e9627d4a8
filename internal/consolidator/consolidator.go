// =============================================================================
// ETC Mailer - Record Consolidator
// =============================================================================
//
// The consolidator groups raw rows by ETC number into one CustomerRecord per
// customer. Rows must be admitted in file order, and in row order within a
// file: the merge rules below are order dependent.
//
// MERGE RULES (per field):
//   - name, contactNumber, nationalId, email
//         seeded from the first row for the key, never changed afterwards
//   - installationDate, credentials, alertMobile, residentCity, notes
//         filled from a later row only while still empty
//   - sourceFiles
//         ordered set, every contributing file is added once
//   - vehicles
//         every admitted row appends exactly one vehicle
//   - totalAmount
//         incremented by each vehicle's parsed amount
//   - earliestExpiry
//         minimum parsed end date; only moves earlier
//
// FAILURE POLICY:
//   - A row without an ETC number is rejected and the batch continues.
//   - A row without an email template aborts the batch. The check runs
//     before any mutation, so no partial record is left behind for that key.
//
// LIFECYCLE:
//   AdmitRow (many) -> FinalizeTemplates (once) -> Records / filters
//
// =============================================================================

package consolidator

import (
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ginjaninja78/etc-mailer/internal/fields"
	"github.com/ginjaninja78/etc-mailer/internal/normalize"
	"github.com/ginjaninja78/etc-mailer/internal/types"
	"github.com/ginjaninja78/etc-mailer/pkg/logger"
)

// unrankedPosition is the sort position of vehicles without a numeric rank.
const unrankedPosition = 999

// templatePriority lists the template hints that win a disagreement,
// highest first.
var templatePriority = []string{
	"renewal-done",
	"device-transfer",
	"device-addition",
	"device-redo",
	"new-account",
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// =============================================================================
// CONSOLIDATOR STRUCTURE
// =============================================================================

// Consolidator accumulates customer records for one processing run.
// It is not safe for concurrent use.
type Consolidator struct {
	records map[string]*types.CustomerRecord

	// order holds business keys in first-seen order.
	order []string

	finalized bool
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Consolidator.
type Option func(*Consolidator)

// WithClock overrides the clock used by the expiry filter.
func WithClock(now func() time.Time) Option {
	return func(c *Consolidator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for rejected-row notices.
func WithLogger(l *slog.Logger) Option {
	return func(c *Consolidator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates an empty Consolidator.
func New(opts ...Option) *Consolidator {
	c := &Consolidator{
		records: make(map[string]*types.CustomerRecord),
		now:     time.Now,
		logger:  logger.NewNope(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// ADMISSION
// =============================================================================

// AdmitRow folds one raw row into the customer set.
//
// PARAMETERS:
//   - row: The raw row, with dates already normalized.
//   - sourceFile: The base name of the file the row came from.
//
// RETURNS:
//   - nil when the row was admitted.
//   - A *RowError wrapping ErrMissingBusinessKey when the row was skipped.
//     The caller records a warning and continues.
//   - A *RowError wrapping ErrMissingTemplateHint when the batch must stop.
func (c *Consolidator) AdmitRow(row types.RawRow, sourceFile string) error {
	key := strings.TrimSpace(fields.Extract(row, fields.BusinessKey))
	if key == "" {
		c.logger.Warn("skipping row without ETC number",
			slog.String("file", sourceFile),
			slog.Int("line", row.Line),
		)
		return &RowError{SourceFile: sourceFile, Line: row.Line, Err: ErrMissingBusinessKey}
	}

	hint := strings.TrimSpace(fields.Extract(row, fields.TemplateHint))
	if hint == "" {
		return &RowError{BusinessKey: key, SourceFile: sourceFile, Line: row.Line, Err: ErrMissingTemplateHint}
	}

	record, seen := c.records[key]
	if !seen {
		record = seedRecord(key, row)
		c.records[key] = record
		c.order = append(c.order, key)
	} else {
		mergeOnboarding(record, row)
	}
	record.SourceFiles.Add(sourceFile)

	vehicle := buildVehicle(row, hint, sourceFile)
	record.Vehicles = append(record.Vehicles, vehicle)
	record.TotalAmount = record.TotalAmount.Add(vehicle.Amount)

	if end, ok := normalize.ParseDate(vehicle.EndDate); ok {
		if record.EarliestExpiry == nil || end.Before(*record.EarliestExpiry) {
			record.EarliestExpiry = &end
		}
	}

	// New rows invalidate an earlier finalization.
	if c.finalized {
		record.TemplateSelection = ""
		c.finalized = false
	}

	return nil
}

func seedRecord(key string, row types.RawRow) *types.CustomerRecord {
	record := &types.CustomerRecord{
		BusinessKey:   key,
		Name:          strings.TrimSpace(fields.Extract(row, fields.CustomerName)),
		ContactNumber: strings.TrimSpace(fields.Extract(row, fields.ContactNumber)),
		NationalID:    strings.TrimSpace(fields.Extract(row, fields.NationalID)),
		Email:         validEmail(fields.Extract(row, fields.Email)),
		SourceFiles:   types.NewOrderedSet(),
	}
	mergeOnboarding(record, row)
	return record
}

// mergeOnboarding fills empty onboarding fields and notes from row.
func mergeOnboarding(record *types.CustomerRecord, row types.RawRow) {
	fill := func(dst *string, field fields.Field) {
		if *dst != "" {
			return
		}
		*dst = strings.TrimSpace(fields.Extract(row, field))
	}

	fill(&record.InstallationDate, fields.InstallationDate)
	fill(&record.Credentials, fields.Credentials)
	fill(&record.AlertMobile, fields.AlertMobile)
	fill(&record.ResidentCity, fields.ResidentCity)
	fill(&record.Notes, fields.Notes)
}

func buildVehicle(row types.RawRow, hint, sourceFile string) types.Vehicle {
	get := func(field fields.Field) string {
		return strings.TrimSpace(fields.Extract(row, field))
	}

	return types.Vehicle{
		Rank:         get(fields.VehicleRank),
		RegNumber:    get(fields.RegNumber),
		Model:        get(fields.VehicleModel),
		PackageName:  get(fields.PackageName),
		Amount:       normalize.ParseAmount(get(fields.PaymentAmount)),
		StartDate:    get(fields.TenureStart),
		EndDate:      get(fields.TenureEnd),
		TenureLength: get(fields.TenureLength),
		TemplateHint: hint,
		SourceFile:   sourceFile,
	}
}

// validEmail returns the trimmed address, or "" if it does not look like one.
func validEmail(s string) string {
	s = strings.TrimSpace(s)
	if !emailPattern.MatchString(s) {
		return ""
	}
	return s
}

// =============================================================================
// FINALIZATION
// =============================================================================

// FinalizeTemplates fixes the template selection of every record and sorts
// its vehicles by rank. It returns ErrNoVehicles, wrapped with the business
// key, if a record has no vehicles.
func (c *Consolidator) FinalizeTemplates() error {
	for _, key := range c.order {
		record := c.records[key]
		if len(record.Vehicles) == 0 {
			return &RowError{BusinessKey: key, SourceFile: strings.Join(record.SourceFiles.Values(), ","), Err: ErrNoVehicles}
		}
		record.TemplateSelection = SelectTemplate(record.Vehicles)
		SortVehicles(record.Vehicles)
	}
	c.finalized = true
	return nil
}

// SelectTemplate picks the template for a set of vehicles.
//
// SELECTION:
//  1. All vehicles agree: that hint, whatever it is.
//  2. Otherwise the highest-priority hint present, from
//     renewal-done > device-transfer > device-addition > device-redo > new-account.
//  3. Otherwise the first vehicle's hint.
func SelectTemplate(vehicles []types.Vehicle) string {
	if len(vehicles) == 0 {
		return ""
	}

	distinct := make(map[string]struct{}, len(vehicles))
	for _, v := range vehicles {
		distinct[v.TemplateHint] = struct{}{}
	}
	if len(distinct) == 1 {
		return vehicles[0].TemplateHint
	}

	for _, candidate := range templatePriority {
		if _, ok := distinct[candidate]; ok {
			return candidate
		}
	}
	return vehicles[0].TemplateHint
}

// SortVehicles orders vehicles by numeric rank, in place. Missing or
// non-numeric ranks sort as 999. Ties keep insertion order.
func SortVehicles(vehicles []types.Vehicle) {
	sort.SliceStable(vehicles, func(i, j int) bool {
		return rankOf(vehicles[i]) < rankOf(vehicles[j])
	})
}

func rankOf(v types.Vehicle) int {
	n, err := strconv.Atoi(strings.TrimSpace(v.Rank))
	if err != nil {
		return unrankedPosition
	}
	return n
}

// =============================================================================
// READ-ONLY VIEWS
// =============================================================================

// Len returns the number of distinct customers.
func (c *Consolidator) Len() int {
	return len(c.order)
}

// Finalized reports whether FinalizeTemplates has run since the last
// admitted row.
func (c *Consolidator) Finalized() bool {
	return c.finalized
}

// Records returns copies of all records in first-seen order.
func (c *Consolidator) Records() []*types.CustomerRecord {
	out := make([]*types.CustomerRecord, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.records[key].Clone())
	}
	return out
}

// Get returns a copy of the record for key.
func (c *Consolidator) Get(key string) (*types.CustomerRecord, bool) {
	record, ok := c.records[key]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// FilterByKeys returns copies of the records for keys, in the order the
// keys were given. Unknown and repeated keys are ignored.
func (c *Consolidator) FilterByKeys(keys []string) []*types.CustomerRecord {
	seen := make(map[string]struct{}, len(keys))
	out := make([]*types.CustomerRecord, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if record, ok := c.records[key]; ok {
			out = append(out, record.Clone())
		}
	}
	return out
}

// FilterByExpiryWithin returns copies of the records whose earliest expiry
// is known and falls on or before now + days.
func (c *Consolidator) FilterByExpiryWithin(days int) []*types.CustomerRecord {
	return ExpiringWithin(c.Records(), days, c.now())
}

// Reset discards every record.
func (c *Consolidator) Reset() {
	c.records = make(map[string]*types.CustomerRecord)
	c.order = nil
	c.finalized = false
}

// =============================================================================
// SLICE FILTERS
// =============================================================================

// ExpiringWithin keeps the records whose earliest expiry is non-null and
// not after now + days. Records with an unknown expiry are never included.
func ExpiringWithin(records []*types.CustomerRecord, days int, now time.Time) []*types.CustomerRecord {
	cutoff := now.AddDate(0, 0, days)
	out := make([]*types.CustomerRecord, 0, len(records))
	for _, r := range records {
		if r.EarliestExpiry != nil && !r.EarliestExpiry.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// WithKeys keeps the records whose business key is in keys, preserving the
// order of records.
func WithKeys(records []*types.CustomerRecord, keys []string) []*types.CustomerRecord {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[strings.TrimSpace(k)] = struct{}{}
	}
	out := make([]*types.CustomerRecord, 0, len(records))
	for _, r := range records {
		if _, ok := set[r.BusinessKey]; ok {
			out = append(out, r)
		}
	}
	return out
}

// WithPackage keeps the records with at least one vehicle whose package name
// contains substr, ignoring case.
func WithPackage(records []*types.CustomerRecord, substr string) []*types.CustomerRecord {
	needle := strings.ToLower(substr)
	out := make([]*types.CustomerRecord, 0, len(records))
	for _, r := range records {
		for _, v := range r.Vehicles {
			if strings.Contains(strings.ToLower(v.PackageName), needle) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

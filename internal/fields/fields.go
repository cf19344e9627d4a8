// =============================================================================
// ETC Mailer - Field Extractor
// =============================================================================
//
// Customer sheets arrive from several exports, each spelling the same column
// differently: hyphenated ("Customer-Name"), spaced ("Customer Name"),
// split across two header lines ("Customer\nContact #") or camelCase
// ("customerName"). This module maps those spellings to one canonical field
// set.
//
// The alias table is plain data. Supporting a new export means adding an
// alias to the table, not writing code.
//
// LOOKUP RULES:
//   1. Aliases are tried in table order against the exact header spelling.
//      The first alias whose value is non-empty wins.
//   2. If no exact spelling yields a value, the same aliases are tried again
//      against normalized headers (case-folded, with whitespace, newlines,
//      hyphens and underscores removed).
//   3. No match yields "". Extraction never fails.
//
// =============================================================================

package fields

import (
	"strings"
	"unicode"

	"github.com/ginjaninja78/etc-mailer/internal/types"
)

// Field is a canonical field name.
type Field string

// Canonical fields.
const (
	BusinessKey      Field = "businessKey"
	CustomerName     Field = "customerName"
	ContactNumber    Field = "contactNumber"
	NationalID       Field = "nationalId"
	Email            Field = "email"
	InstallationDate Field = "installationDate"
	Credentials      Field = "credentials"
	AlertMobile      Field = "alertMobile"
	ResidentCity     Field = "residentCity"
	Notes            Field = "notes"
	VehicleRank      Field = "vehicleRank"
	RegNumber        Field = "regNumber"
	VehicleModel     Field = "vehicleModel"
	PackageName      Field = "packageName"
	PaymentAmount    Field = "paymentAmount"
	TenureStart      Field = "tenureStart"
	TenureEnd        Field = "tenureEnd"
	TenureLength     Field = "tenureLength"
	TemplateHint     Field = "templateHint"
)

// Alias binds a canonical field to the header spellings known for it.
type Alias struct {
	Field    Field
	Spelling []string

	// IsDate marks columns whose values are normalized and rewritten on
	// ingestion.
	IsDate bool
}

// =============================================================================
// ALIAS TABLE
// =============================================================================

// Table is the ordered alias table. Order within Spelling is precedence.
var Table = []Alias{
	{Field: BusinessKey, Spelling: []string{"ETC-number", "ETC\n#", "ETC #", "ETC"}},
	{Field: CustomerName, Spelling: []string{"Customer-Name", "Customer Name", "customerName"}},
	{Field: ContactNumber, Spelling: []string{"Customer-Contact", "Customer\nContact #", "Customer Contact #", "contactNumber"}},
	{Field: NationalID, Spelling: []string{"CNIC", "CNIC no.", "cnic"}},
	{Field: Email, Spelling: []string{"Send-Email-To", "eTrack-User-1", "eTrack\nUser-1", "eTrack User-1", "email"}},
	{Field: InstallationDate, Spelling: []string{"installation-date", "Installation Date", "installationDate"}, IsDate: true},
	{Field: Credentials, Spelling: []string{"credentials", "Credentials"}},
	{Field: AlertMobile, Spelling: []string{"mobile-for-alerts", "alert-mobile", "Alert Mobile", "Mobile number for alerts", "alertMobile"}},
	{Field: ResidentCity, Spelling: []string{"resident-city", "geofence-city", "Resident City", "Resident city for geo fence", "residentCity"}},
	{Field: Notes, Spelling: []string{"notes", "Notes", "NOTES"}},
	{Field: VehicleRank, Spelling: []string{"Vehicle-Rank", "Vehicle\nRank #", "Vehicle Rank #", "vehicleRank"}},
	{Field: RegNumber, Spelling: []string{"Vehicle-Reg-number", "Vehicle\nReg no.", "Vehicle Reg no.", "vehicleReg"}},
	{Field: VehicleModel, Spelling: []string{"Vehicle-Model", "Vehicle Model", "vehicleModel"}},
	{Field: PackageName, Spelling: []string{"Package-Activated", "Package\nActivated", "Package Activated", "package"}},
	{Field: PaymentAmount, Spelling: []string{"Payment-Amount", "Payment\nAmount", "Payment Amount", "paymentAmount"}},
	{Field: TenureStart, Spelling: []string{"Tenure-Start-Date", "Tenure\nStart Date", "Tenure Start Date", "tenureStart"}, IsDate: true},
	{Field: TenureEnd, Spelling: []string{"Tenure-Ending-Date", "Tenure\nEnding Date", "Tenure Ending Date", "tenureEnd"}, IsDate: true},
	{Field: TenureLength, Spelling: []string{"Tenure-Length", "Tenure\nLength", "Tenure Length", "tenureLength"}},
	{Field: TemplateHint, Spelling: []string{"email-template", "Email-Template", "emailTemplate"}},
}

var (
	byField     map[Field]Alias
	dateHeaders map[string]struct{}
)

func init() {
	byField = make(map[Field]Alias, len(Table))
	dateHeaders = make(map[string]struct{})
	for _, a := range Table {
		byField[a.Field] = a
		if a.IsDate {
			for _, s := range a.Spelling {
				dateHeaders[normalizeHeader(s)] = struct{}{}
			}
		}
	}
}

// =============================================================================
// LOOKUP
// =============================================================================

// Extract returns the first non-empty value for field in row, or "".
func Extract(row types.RawRow, field Field) string {
	alias, ok := byField[field]
	if !ok {
		return ""
	}

	for _, spelling := range alias.Spelling {
		if v := row.Get(spelling); v != "" {
			return v
		}
	}

	// Second pass: tolerate casing and separator drift in the header.
	if len(row.Columns) == 0 {
		return ""
	}
	for _, spelling := range alias.Spelling {
		want := normalizeHeader(spelling)
		for _, col := range row.Columns {
			if normalizeHeader(col) != want {
				continue
			}
			if v := row.Get(col); v != "" {
				return v
			}
		}
	}

	return ""
}

// Aliases returns the known spellings for a field, in precedence order.
func Aliases(field Field) []string {
	return append([]string(nil), byField[field].Spelling...)
}

// IsDateColumn reports whether header names a date-bearing column.
func IsDateColumn(header string) bool {
	_, ok := dateHeaders[normalizeHeader(header)]
	return ok
}

// normalizeHeader folds case and drops whitespace, hyphens and underscores.
func normalizeHeader(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

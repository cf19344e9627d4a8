// =============================================================================
// ETC Mailer - Shared Types
// =============================================================================
//
// This package contains the types shared by the ingestion pipeline and its
// collaborators. Types defined here are used by:
//   - fields / normalize   (row-level extraction)
//   - consolidator         (customer aggregation)
//   - batch                (orchestration and summaries)
//   - render / mailer      (email generation and dispatch)
//   - server               (HTTP front end)
//
// Keeping them here avoids import cycles between the pipeline stages.
//
// =============================================================================

package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RAW INPUT
// =============================================================================

// RawRow is one data row of a tabular input file.
//
// Columns keeps the header order of the source file so that rows can be
// written back without reordering. Values maps a header to its cell value.
// Header spellings are whatever the spreadsheet export produced, including
// embedded newlines.
type RawRow struct {
	// Columns is the ordered list of headers from the source file.
	Columns []string

	// Values maps a header to the cell value in this row.
	Values map[string]string

	// Line is the 1-indexed row number in the source file.
	Line int
}

// Get returns the value stored under the exact header name.
func (r RawRow) Get(column string) string {
	if r.Values == nil {
		return ""
	}
	return r.Values[column]
}

// Set replaces the value under an existing header.
func (r RawRow) Set(column, value string) {
	if r.Values == nil {
		return
	}
	r.Values[column] = value
}

// =============================================================================
// CUSTOMER AGGREGATE
// =============================================================================

// Vehicle is one line item of a customer record. Every admitted row
// produces exactly one vehicle.
type Vehicle struct {
	Rank         string          `json:"rank"`
	RegNumber    string          `json:"regNumber"`
	Model        string          `json:"model"`
	PackageName  string          `json:"package"`
	Amount       decimal.Decimal `json:"amount"`
	StartDate    string          `json:"startDate"`
	EndDate      string          `json:"endDate"`
	TenureLength string          `json:"tenureLength"`
	TemplateHint string          `json:"emailTemplate"`
	SourceFile   string          `json:"sourceFile"`
}

// CustomerRecord aggregates every row that shares a business key.
//
// INVARIANTS:
//   - TotalAmount equals the sum of Vehicles[i].Amount.
//   - EarliestExpiry only ever moves earlier as vehicles are added.
//   - TemplateSelection is empty until the consolidator finalizes the batch.
type CustomerRecord struct {
	BusinessKey   string `json:"etcNumber"`
	Name          string `json:"customerName"`
	ContactNumber string `json:"contactNumber"`
	NationalID    string `json:"cnic"`
	Email         string `json:"email"`

	// Onboarding fields, used by the new-account family of templates.
	InstallationDate string `json:"installationDate"`
	Credentials      string `json:"credentials"`
	AlertMobile      string `json:"alertMobile"`
	ResidentCity     string `json:"residentCity"`

	// Notes is trimmed free text; empty means absent.
	Notes string `json:"notes,omitempty"`

	Vehicles          []Vehicle       `json:"vehicles"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	EarliestExpiry    *time.Time      `json:"earliestExpiry"`
	TemplateSelection string          `json:"emailTemplate,omitempty"`
	SourceFiles       *OrderedSet     `json:"sourceFiles"`
}

// HasNotes reports whether the record carries non-blank notes.
func (c *CustomerRecord) HasNotes() bool {
	return strings.TrimSpace(c.Notes) != ""
}

// Finalized reports whether a template has been selected for the record.
func (c *CustomerRecord) Finalized() bool {
	return c.TemplateSelection != ""
}

// Clone returns a deep copy that callers may sort or mutate freely.
func (c *CustomerRecord) Clone() *CustomerRecord {
	out := *c
	out.Vehicles = append([]Vehicle(nil), c.Vehicles...)
	if c.EarliestExpiry != nil {
		t := *c.EarliestExpiry
		out.EarliestExpiry = &t
	}
	if c.SourceFiles != nil {
		out.SourceFiles = c.SourceFiles.Clone()
	} else {
		out.SourceFiles = NewOrderedSet()
	}
	return &out
}

// =============================================================================
// ORDERED SET
// =============================================================================

// OrderedSet is an insertion-ordered, duplicate-free set of strings.
// It marshals to a JSON array in insertion order.
type OrderedSet struct {
	items []string
	index map[string]struct{}
}

// NewOrderedSet creates a set seeded with the given values.
func NewOrderedSet(values ...string) *OrderedSet {
	s := &OrderedSet{index: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v if it is not already present. It reports whether v was new.
func (s *OrderedSet) Add(v string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Contains reports whether v is in the set.
func (s *OrderedSet) Contains(v string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[v]
	return ok
}

// Len returns the number of elements.
func (s *OrderedSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Values returns a copy of the elements in insertion order.
func (s *OrderedSet) Values() []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s.items...)
}

// Clone returns an independent copy of the set.
func (s *OrderedSet) Clone() *OrderedSet {
	return NewOrderedSet(s.Values()...)
}

// MarshalJSON renders the set as an ordered JSON array.
func (s *OrderedSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON reads a JSON array, dropping duplicates.
func (s *OrderedSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = *NewOrderedSet(values...)
	return nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// FileStatus is the ingestion decision taken for a source file.
type FileStatus string

const (
	FileStatusNew       FileStatus = "new"
	FileStatusUnchanged FileStatus = "unchanged"
	FileStatusChanged   FileStatus = "changed"
	FileStatusFailed    FileStatus = "failed"
	FileStatusUploaded  FileStatus = "uploaded"
)

// FileReport describes what happened to one source file during a run.
type FileReport struct {
	FileName    string     `json:"fileName"`
	FilePath    string     `json:"-"`
	Status      FileStatus `json:"status"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	RowCount    int        `json:"rowCount"`
	Rejected    int        `json:"rejectedRows"`
	Rewritten   bool       `json:"rewritten"`
	ProcessedAt time.Time  `json:"processedAt"`
	Error       string     `json:"error,omitempty"`
}

// Admitted reports whether the file's rows reached the consolidator.
func (f FileReport) Admitted() bool {
	switch f.Status {
	case FileStatusNew, FileStatusChanged, FileStatusUploaded:
		return true
	default:
		return false
	}
}

// ProcessingSummary is the derived, per-run view of what was ingested.
type ProcessingSummary struct {
	RunID          string       `json:"runId"`
	StartedAt      time.Time    `json:"startedAt"`
	FinishedAt     time.Time    `json:"finishedAt"`
	FilesProcessed int          `json:"filesProcessed"`
	TotalCustomers int          `json:"totalCustomers"`
	Files          []FileReport `json:"processedFiles"`
	Warnings       []string     `json:"warnings,omitempty"`
}

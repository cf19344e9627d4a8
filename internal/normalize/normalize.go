// =============================================================================
// ETC Mailer - Date and Amount Normalizer
// =============================================================================
//
// Spreadsheet exports write tenure dates as DD-MMM-YY or DD-MMM-YYYY
// ("5-Jan-24", "21-Oct-2025") and amounts as currency strings ("Rs 12,500").
// This module turns them into canonical forms.
//
// Every function here is best-effort. Bad input never produces an error:
//   - NormalizeDate returns the input unchanged
//   - ParseDate reports "no date" (expiry unknown, never "already expired")
//   - ParseAmount returns zero
//
// KNOWN LIMITATION:
//   Two-digit years are always read as 20YY. There is no pivot for years
//   before 2000 or after 2099.
//
// =============================================================================

package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// months maps lower-cased three-letter abbreviations to calendar months.
var months = map[string]time.Month{
	"jan": time.January,
	"feb": time.February,
	"mar": time.March,
	"apr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"aug": time.August,
	"sep": time.September,
	"oct": time.October,
	"nov": time.November,
	"dec": time.December,
}

var (
	currencyToken = regexp.MustCompile(`(?i)\brs\.?\s?`)
	leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)
)

// dateParts holds the three components of a DD-MMM-YY[YY] string.
type dateParts struct {
	day      int
	month    string
	year     int
	yearText string
}

// splitDate breaks s into its components, or reports false when s does not
// have the DD-MMM-YY[YY] shape.
func splitDate(s string) (dateParts, bool) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return dateParts{}, false
	}

	dayText := strings.TrimSpace(parts[0])
	month := strings.TrimSpace(parts[1])
	yearText := strings.TrimSpace(parts[2])

	if !isDigits(dayText) || len(dayText) > 2 || !isDigits(yearText) || !isLetters(month) {
		return dateParts{}, false
	}

	day, err := strconv.Atoi(dayText)
	if err != nil {
		return dateParts{}, false
	}
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return dateParts{}, false
	}

	return dateParts{day: day, month: month, year: year, yearText: yearText}, true
}

// =============================================================================
// DATES
// =============================================================================

// NormalizeDate rewrites a two-digit-year date into DD-MMM-YYYY.
//
// EXAMPLES:
//   "5-Jan-24"    -> "05-Jan-2024"
//   "05-Jan-2024" -> "05-Jan-2024" (already canonical, unchanged)
//   "2024/01/05"  -> "2024/01/05"  (unrecognized, unchanged)
//
// The function is idempotent.
func NormalizeDate(s string) string {
	p, ok := splitDate(s)
	if !ok {
		return s
	}
	if len(p.yearText) >= 3 {
		return s
	}
	return fmt.Sprintf("%02d-%s-%d", p.day, p.month, p.year+2000)
}

// ParseDate converts a DD-MMM-YY[YY] string into a UTC calendar date.
//
// An unrecognized month abbreviation falls back to January. The boolean is
// false when s has no usable date; callers must treat that as "expiry
// unknown".
func ParseDate(s string) (time.Time, bool) {
	p, ok := splitDate(s)
	if !ok {
		return time.Time{}, false
	}

	year := p.year
	if year < 100 {
		year += 2000
	}

	month, known := months[strings.ToLower(p.month)]
	if !known {
		month = time.January
	}

	return time.Date(year, month, p.day, 0, 0, 0, 0, time.UTC), true
}

// FormatDate renders t as DD-MMM-YYYY, the format used in emails.
func FormatDate(t time.Time) string {
	return t.Format("02-Jan-2006")
}

// =============================================================================
// AMOUNTS
// =============================================================================

// ParseAmount strips the currency token and digit-group separators and
// parses the leading decimal number. Anything non-numeric yields zero.
//
// EXAMPLES:
//   "Rs 12,500"  -> 12500
//   "Rs.1,250.50"-> 1250.50
//   "N/A"        -> 0
func ParseAmount(s string) decimal.Decimal {
	cleaned := currencyToken.ReplaceAllString(s, "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	match := leadingNumber.FindString(cleaned)
	if match == "" {
		return decimal.Zero
	}

	amount, err := decimal.NewFromString(strings.TrimSuffix(match, "."))
	if err != nil {
		return decimal.Zero
	}
	return amount
}

// =============================================================================
// HELPERS
// =============================================================================

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

package render

import (
	"encoding/json"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/ginjaninja78/etc-mailer/internal/normalize"
)

// =============================================================================
// FORMATTING
// =============================================================================

var currencyPrinter = message.NewPrinter(language.English)

// FormatCurrency renders an amount as "Rs 12,345", with up to two decimals.
func FormatCurrency(v any) string {
	var d decimal.Decimal
	switch val := v.(type) {
	case decimal.Decimal:
		d = val
	case *decimal.Decimal:
		if val != nil {
			d = *val
		}
	case int:
		d = decimal.NewFromInt(int64(val))
	case int64:
		d = decimal.NewFromInt(val)
	case float64:
		d = decimal.NewFromFloat(val)
	case string:
		d = normalize.ParseAmount(val)
	}

	if d.IsZero() {
		return "Rs 0"
	}
	return currencyPrinter.Sprintf("Rs %v", number.Decimal(d.Round(2).InexactFloat64(), number.MaxFractionDigits(2)))
}

// FormatDate renders a date as DD-MMM-YYYY. Strings that are not dates are
// returned as-is; nil and zero values yield "N/A".
func FormatDate(v any) string {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return "N/A"
		}
		return normalize.FormatDate(val)
	case *time.Time:
		if val == nil || val.IsZero() {
			return "N/A"
		}
		return normalize.FormatDate(*val)
	case string:
		if val == "" {
			return "N/A"
		}
		if t, ok := normalize.ParseDate(val); ok {
			return normalize.FormatDate(t)
		}
		return val
	default:
		return "N/A"
	}
}

// funcMap returns the helpers available to every template. eq and gt are
// the template builtins.
func (e *Engine) funcMap() template.FuncMap {
	return template.FuncMap{
		"markdown":       func(s string) template.HTML { return e.md.Render(s) },
		"formatCurrency": FormatCurrency,
		"formatDate":     FormatDate,
		"add":            func(a, b int) int { return a + b },
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}
}

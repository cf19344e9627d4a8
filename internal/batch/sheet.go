package batch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/etc-mailer/internal/config"
	"github.com/ginjaninja78/etc-mailer/internal/csvparser"
	"github.com/ginjaninja78/etc-mailer/internal/fields"
	"github.com/ginjaninja78/etc-mailer/internal/normalize"
	"github.com/ginjaninja78/etc-mailer/internal/types"
	"github.com/ginjaninja78/etc-mailer/internal/xlsxparser"
)

// sheet is a source file read into memory, with a way to write normalized
// values back to it.
type sheet struct {
	columns []string
	rows    []types.RawRow
	rewrite func(changes []xlsxparser.CellUpdate) error
}

// readSheet reads a .csv or .xlsx file.
func readSheet(path string, settings config.CSVSettings) (*sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		s, err := csvparser.ReadFile(path, settings)
		if err != nil {
			return nil, err
		}
		return &sheet{
			columns: s.Columns,
			rows:    s.Rows,
			rewrite: func([]xlsxparser.CellUpdate) error {
				return csvparser.WriteFile(path, s, settings)
			},
		}, nil

	case ".xlsx":
		s, err := xlsxparser.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &sheet{
			columns: s.Columns,
			rows:    s.Rows,
			rewrite: func(changes []xlsxparser.CellUpdate) error {
				return xlsxparser.UpdateCells(path, s, changes)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// normalizeDates rewrites two-digit-year dates in date columns, in place,
// and returns the cells that changed.
func (s *sheet) normalizeDates() []xlsxparser.CellUpdate {
	var dateColumns []string
	for _, c := range s.columns {
		if fields.IsDateColumn(c) {
			dateColumns = append(dateColumns, c)
		}
	}
	if len(dateColumns) == 0 {
		return nil
	}

	var changes []xlsxparser.CellUpdate
	for _, row := range s.rows {
		for _, col := range dateColumns {
			value := row.Get(col)
			if value == "" {
				continue
			}
			if normalized := normalize.NormalizeDate(value); normalized != value {
				row.Set(col, normalized)
				changes = append(changes, xlsxparser.CellUpdate{Line: row.Line, Column: col, Value: normalized})
			}
		}
	}
	return changes
}

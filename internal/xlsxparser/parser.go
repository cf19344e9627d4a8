// =============================================================================
// ETC Mailer - XLSX Sheet Reader
// =============================================================================
//
// Operators often drop the workbook itself instead of a CSV export. This
// module reads the first worksheet of an .xlsx file into the same RawRow
// shape the CSV reader produces, and writes normalized date cells back.
//
// LAYOUT ASSUMPTIONS:
//   - Row 1 holds the headers. Wrapped header cells keep their newline
//     ("Customer\nContact #"), so the alias table matches them as-is.
//   - Every following non-blank row is a data row.
//   - Cell values are read as displayed, so a date cell formatted
//     "d-mmm-yy" reads as "5-Jan-24".
//
// UpdateCells writes plain text values. A rewritten date cell therefore
// stops being an Excel date and shows exactly the normalized string.
//
// =============================================================================

package xlsxparser

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/etc-mailer/internal/fields"
	"github.com/ginjaninja78/etc-mailer/internal/types"
)

// Sheet is the content of one worksheet.
type Sheet struct {
	// Name is the worksheet name.
	Name string

	// Columns holds the headers in column order.
	Columns []string

	// Rows holds the data rows in sheet order. RawRow.Line is the
	// 1-indexed worksheet row.
	Rows []types.RawRow
}

// CellUpdate replaces the value of one data cell.
type CellUpdate struct {
	// Line is the 1-indexed worksheet row.
	Line int

	// Column is the header of the cell's column.
	Column string

	Value string
}

// =============================================================================
// READING
// =============================================================================

// ReadFile reads the first worksheet of an .xlsx workbook.
//
// RETURNS:
//   - The sheet. A workbook with only a header row yields zero rows.
//   - An error if the workbook cannot be opened or has no header row.
func ReadFile(path string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 || fields.IsBlankRow(rows[0]) {
		return nil, fmt.Errorf("worksheet %q has no header row", sheetName)
	}

	sheet := &Sheet{
		Name:    sheetName,
		Columns: fields.CleanHeaders(rows[0]),
	}

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if fields.IsBlankRow(row) {
			continue
		}

		values := make(map[string]string, len(sheet.Columns))
		for col, header := range sheet.Columns {
			if col < len(row) {
				values[header] = strings.TrimSpace(row[col])
			} else {
				values[header] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, types.RawRow{
			Columns: sheet.Columns,
			Values:  values,
			Line:    i + 1,
		})
	}

	return sheet, nil
}

// =============================================================================
// WRITING
// =============================================================================

// UpdateCells writes updates into the named worksheet and saves the
// workbook in place. No updates means no write.
func UpdateCells(path string, sheet *Sheet, updates []CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	index := make(map[string]int, len(sheet.Columns))
	for i, c := range sheet.Columns {
		index[c] = i + 1
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	for _, u := range updates {
		col, ok := index[u.Column]
		if !ok {
			return fmt.Errorf("unknown column %q", u.Column)
		}
		cell, err := excelize.CoordinatesToCellName(col, u.Line)
		if err != nil {
			return fmt.Errorf("invalid cell for row %d column %q: %w", u.Line, u.Column, err)
		}
		if err := f.SetCellStr(sheet.Name, cell, u.Value); err != nil {
			return fmt.Errorf("failed to set %s: %w", cell, err)
		}
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

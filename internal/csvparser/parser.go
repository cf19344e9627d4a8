// =============================================================================
// ETC Mailer - CSV Sheet Reader and Writer
// =============================================================================
//
// This module reads customer sheets exported as CSV and writes them back
// after date normalization.
//
// READING:
//   - Configurable delimiter, header rows and data start row (CSVSettings)
//   - Multi-row headers are joined with a newline, matching how wrapped
//     spreadsheet headers ("Customer\nContact #") are exported
//   - A UTF-8 byte order mark on the first header is dropped
//   - Blank rows are skipped; values are trimmed
//
// WRITING:
//   Write is DESTRUCTIVE: it replaces the source file. Every record read
//   before the first data row (header rows, skipped rows) is written back
//   as read, so the file keeps its layout and its raw header text. A field
//   is quoted only when it contains the delimiter, a quote, or a line break;
//   inner quotes are doubled. Everything else is written bare.
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ginjaninja78/etc-mailer/internal/config"
	"github.com/ginjaninja78/etc-mailer/internal/fields"
	"github.com/ginjaninja78/etc-mailer/internal/types"
)

const utf8BOM = "\ufeff"

// Sheet is a fully read CSV file.
type Sheet struct {
	// Columns holds the cleaned headers in file order.
	Columns []string

	// Preamble holds the raw records before the first data row.
	Preamble [][]string

	// Rows holds the data rows in file order.
	Rows []types.RawRow
}

// =============================================================================
// PARSER FUNCTIONS
// =============================================================================

// ReadFile reads every data row of a CSV file.
//
// PARAMETERS:
//   - filePath: The path to the CSV file.
//   - settings: Delimiter and header layout.
//
// RETURNS:
//   - The sheet. A header-only file yields zero rows.
//   - An error if the file cannot be opened or is malformed.
func ReadFile(filePath string, settings config.CSVSettings) (*Sheet, error) {
	parser, err := NewStreamingParser(filePath, settings)
	if err != nil {
		return nil, err
	}
	defer parser.Close()

	sheet := &Sheet{Columns: parser.Headers(), Preamble: parser.Preamble()}
	for parser.Next() {
		sheet.Rows = append(sheet.Rows, parser.Row())
	}
	if err := parser.Err(); err != nil {
		return nil, err
	}

	return sheet, nil
}

// configureReader configures the CSV reader based on the settings.
func configureReader(reader *csv.Reader, settings config.CSVSettings) {
	reader.Comma = delimiterRune(settings.Delimiter)

	// Exports are not always rectangular.
	reader.FieldsPerRecord = -1

	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// delimiterRune resolves a configured delimiter name.
func delimiterRune(delimiter string) rune {
	switch delimiter {
	case "\\t", "\t", "tab", "TAB":
		return '\t'
	case "|", "pipe", "PIPE":
		return '|'
	case ";", "semicolon":
		return ';'
	default:
		if len(delimiter) > 0 {
			return rune(delimiter[0])
		}
		return ','
	}
}

// extractHeaders merges the header rows into one header per column.
//
// MULTI-LINE HEADER HANDLING:
//   Row 1: "Customer", "Vehicle"
//   Row 2: "Contact #", "Rank #"
//   Result: "Customer\nContact #", "Vehicle\nRank #"
func extractHeaders(headerRows [][]string, settings config.CSVSettings) ([]string, error) {
	if settings.HeaderRows <= 0 {
		return nil, fmt.Errorf("header_rows must be at least 1")
	}
	if len(headerRows) < settings.HeaderRows {
		return nil, fmt.Errorf("file has fewer rows than header_rows setting")
	}

	if len(headerRows[0]) > 0 {
		headerRows[0][0] = strings.TrimPrefix(headerRows[0][0], utf8BOM)
	}

	if settings.HeaderRows == 1 {
		return fields.CleanHeaders(headerRows[0]), nil
	}

	maxCols := 0
	for _, row := range headerRows {
		if len(row) > maxCols {
			maxCols = len(row)
		}
	}

	headers := make([]string, maxCols)
	for col := 0; col < maxCols; col++ {
		var parts []string
		for _, row := range headerRows {
			if col < len(row) {
				if value := strings.TrimSpace(row[col]); value != "" {
					parts = append(parts, value)
				}
			}
		}
		headers[col] = strings.Join(parts, "\n")
	}

	return fields.CleanHeaders(headers), nil
}

// =============================================================================
// STREAMING PARSER
// =============================================================================

// StreamingParser reads a CSV file one row at a time.
//
// USAGE:
//   parser, err := NewStreamingParser(filePath, settings)
//   if err != nil {
//       return err
//   }
//   defer parser.Close()
//
//   for parser.Next() {
//       row := parser.Row()
//   }
//
//   if err := parser.Err(); err != nil {
//       return err
//   }
type StreamingParser struct {
	file       *os.File
	reader     *csv.Reader
	headers    []string
	preamble   [][]string
	currentRow types.RawRow
	rowNumber  int
	err        error
	settings   config.CSVSettings
}

// NewStreamingParser opens a CSV file and reads its headers.
func NewStreamingParser(filePath string, settings config.CSVSettings) (*StreamingParser, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	reader := csv.NewReader(bufio.NewReader(file))
	configureReader(reader, settings)

	parser := &StreamingParser{
		file:     file,
		reader:   reader,
		settings: settings,
	}

	if err := parser.readHeaders(); err != nil {
		file.Close()
		return nil, err
	}

	if err := parser.skipToDataStart(); err != nil {
		file.Close()
		return nil, err
	}

	return parser, nil
}

// readHeaders reads and processes the header rows.
func (p *StreamingParser) readHeaders() error {
	count := p.settings.HeaderRows
	if count <= 0 {
		count = 1
	}
	headerRows := make([][]string, 0, count)

	for i := 0; i < count; i++ {
		row, err := p.reader.Read()
		if err == io.EOF {
			return fmt.Errorf("unexpected end of file while reading headers")
		}
		if err != nil {
			return fmt.Errorf("error reading header row %d: %w", i+1, err)
		}
		p.preamble = append(p.preamble, append([]string(nil), row...))
		headerRows = append(headerRows, row)
		p.rowNumber++
	}

	headers, err := extractHeaders(headerRows, config.CSVSettings{
		Delimiter:  p.settings.Delimiter,
		HeaderRows: count,
	})
	if err != nil {
		return err
	}

	p.headers = headers
	return nil
}

// skipToDataStart skips rows until the data start row.
func (p *StreamingParser) skipToDataStart() error {
	targetRow := p.settings.DataStartRow
	if targetRow <= 0 {
		targetRow = p.rowNumber + 1
	}

	for p.rowNumber < targetRow-1 {
		row, err := p.reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error skipping to data start: %w", err)
		}
		p.preamble = append(p.preamble, row)
		p.rowNumber++
	}

	return nil
}

// Next advances to the next non-blank row. It returns false at end of file
// or on error.
func (p *StreamingParser) Next() bool {
	for {
		if p.err != nil {
			return false
		}

		row, err := p.reader.Read()
		if err == io.EOF {
			return false
		}
		if err != nil {
			p.err = fmt.Errorf("error reading row %d: %w", p.rowNumber+1, err)
			return false
		}

		p.rowNumber++

		if fields.IsBlankRow(row) {
			continue
		}

		values := make(map[string]string, len(p.headers))
		for i, header := range p.headers {
			if i < len(row) {
				values[header] = strings.TrimSpace(row[i])
			} else {
				values[header] = ""
			}
		}
		p.currentRow = types.RawRow{Columns: p.headers, Values: values, Line: p.rowNumber}
		return true
	}
}

// Row returns the current row.
func (p *StreamingParser) Row() types.RawRow {
	return p.currentRow
}

// Headers returns the parsed headers.
func (p *StreamingParser) Headers() []string {
	return p.headers
}

// Preamble returns the raw header rows and the rows skipped before the
// data start row.
func (p *StreamingParser) Preamble() [][]string {
	return p.preamble
}

// RowNumber returns the current row number (1-indexed).
func (p *StreamingParser) RowNumber() int {
	return p.rowNumber
}

// Err returns any error that occurred during parsing.
func (p *StreamingParser) Err() error {
	return p.err
}

// Close closes the underlying file.
func (p *StreamingParser) Close() error {
	return p.file.Close()
}

// =============================================================================
// WRITER
// =============================================================================

// WriteFile replaces filePath with the content of sheet: its preamble as
// read, then one record per row in column order. A sheet without a
// preamble gets its column names as a single header row.
//
// The file is written to a temporary sibling and renamed into place, so a
// failed write leaves the original intact.
func WriteFile(filePath string, sheet *Sheet, settings config.CSVSettings) error {
	delim := delimiterRune(settings.Delimiter)
	columns := sheet.Columns

	preamble := sheet.Preamble
	if len(preamble) == 0 {
		preamble = [][]string{columns}
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, raw := range preamble {
		if err := writeRecord(w, raw, delim); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
	}
	record := make([]string, len(columns))
	for _, row := range sheet.Rows {
		for i, col := range columns {
			record[i] = row.Get(col)
		}
		if err := writeRecord(w, record, delim); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", filePath, err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filePath, err)
	}
	return nil
}

func writeRecord(w *bufio.Writer, fields []string, delim rune) error {
	for i, field := range fields {
		if i > 0 {
			if _, err := w.WriteRune(delim); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(QuoteField(field, delim)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}

// QuoteField applies the minimal quoting rule to one field.
func QuoteField(field string, delim rune) string {
	if !strings.ContainsRune(field, delim) && !strings.ContainsAny(field, "\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

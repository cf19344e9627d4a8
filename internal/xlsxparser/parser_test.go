package xlsxparser

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows ...[]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}

	path := filepath.Join(t.TempDir(), "customers.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	path := buildWorkbook(t,
		[]interface{}{"ETC-number", "Vehicle\nRank #", "Tenure-Ending-Date", "email-template"},
		[]interface{}{"0055", 1, "5-Jan-24", "renewal-pending"},
		[]interface{}{nil, nil, nil, nil},
		[]interface{}{"0056", 2},
	)

	sheet, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Sheet1", sheet.Name)
	assert.Equal(t, []string{"ETC-number", "Vehicle\nRank #", "Tenure-Ending-Date", "email-template"}, sheet.Columns)
	require.Len(t, sheet.Rows, 2)

	assert.Equal(t, "0055", sheet.Rows[0].Get("ETC-number"))
	assert.Equal(t, "1", sheet.Rows[0].Get("Vehicle\nRank #"))
	assert.Equal(t, 2, sheet.Rows[0].Line)

	assert.Equal(t, "0056", sheet.Rows[1].Get("ETC-number"))
	assert.Equal(t, "", sheet.Rows[1].Get("email-template"))
	assert.Equal(t, 4, sheet.Rows[1].Line)
}

func TestReadFile_NoHeader(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := ReadFile(path)
	assert.Error(t, err)
}

func TestReadFile_NotAWorkbook(t *testing.T) {
	t.Parallel()

	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.Error(t, err)
}

func TestUpdateCells(t *testing.T) {
	t.Parallel()

	path := buildWorkbook(t,
		[]interface{}{"ETC", "Tenure-Ending-Date"},
		[]interface{}{"0055", "5-Jan-24"},
		[]interface{}{"0056", "21-Oct-2025"},
	)

	sheet, err := ReadFile(path)
	require.NoError(t, err)

	err = UpdateCells(path, sheet, []CellUpdate{{Line: 2, Column: "Tenure-Ending-Date", Value: "05-Jan-2024"}})
	require.NoError(t, err)

	again, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "05-Jan-2024", again.Rows[0].Get("Tenure-Ending-Date"))
	assert.Equal(t, "21-Oct-2025", again.Rows[1].Get("Tenure-Ending-Date"))

	err = UpdateCells(path, sheet, []CellUpdate{{Line: 2, Column: "Nope", Value: "x"}})
	assert.Error(t, err)

	assert.NoError(t, UpdateCells(path, sheet, nil))
}

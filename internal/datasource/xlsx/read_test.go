package xlsx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeBook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &r))
	}
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestRead_RaggedRawValues(t *testing.T) {
	t.Parallel()

	path := writeBook(t, "NUEVO DESEMPEÑO", [][]any{
		{"CONCEPTO", "DIAS"},
		{"Lunes", 1, 2.5},
	})

	got, err := Read(path, "NUEVO DESEMPEÑO")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2"}, got.Columns)
	assert.Equal(t, []any{"CONCEPTO", "DIAS", nil}, got.Rows[0])
	assert.Equal(t, []any{"Lunes", "1", "2.5"}, got.Rows[1])

	first, err := Read(path, "")
	require.NoError(t, err)
	assert.Equal(t, got.Rows, first.Rows)
}

func TestRead_DistinguishesMissingFileAndSheet(t *testing.T) {
	t.Parallel()

	_, err := Read(filepath.Join(t.TempDir(), "nope.xlsx"), "")
	assert.ErrorIs(t, err, ErrFileNotFound)

	path := writeBook(t, "Datos", [][]any{{"x"}})
	_, err = Read(path, "Otra")
	assert.ErrorIs(t, err, ErrSheetNotFound)
	assert.NotErrorIs(t, err, ErrFileNotFound)

	sheets, err := Sheets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Datos"}, sheets)
}

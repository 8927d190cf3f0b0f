// Package xlsx reads spreadsheet sheets into raw tables with excelize.
//
// Every row is data (no header is trusted): columns are named by position
// "0", "1", ... and callers promote headers or select positions themselves.
package xlsx

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"pbietl/internal/table"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrFileNotFound means the workbook path does not exist.
	ErrFileNotFound = errors.New("xlsx: file not found")
	// ErrSheetNotFound means the workbook exists but lacks the sheet.
	ErrSheetNotFound = errors.New("xlsx: sheet not found")
)

// Read loads one sheet. An empty sheet name selects the first sheet.
//
// Cells are read raw (no number formats applied), so numbers and dates arrive
// as their stored text ("45730", "12.5") and empty cells are nil. Ragged rows
// are padded to the widest row.
//
// Errors:
//   - ErrFileNotFound / ErrSheetNotFound, wrapped with the path and sheet.
//   - Any other open or read failure, wrapped.
func Read(path, sheet string) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if sheet == "" {
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: %s has no sheets", ErrSheetNotFound, path)
		}
		sheet = sheets[0]
	} else if !contains(sheets, sheet) {
		return nil, fmt.Errorf("%w: %q in %s (have %v)", ErrSheetNotFound, sheet, path, sheets)
	}

	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q of %s: %w", sheet, path, err)
	}
	return fromRows(raw), nil
}

// Sheets lists the sheet names of a workbook in tab order.
func Sheets(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func fromRows(raw [][]string) *table.Table {
	width := 0
	for _, r := range raw {
		if len(r) > width {
			width = len(r)
		}
	}
	cols := make([]string, width)
	for i := range cols {
		cols[i] = strconv.Itoa(i)
	}
	out := table.New(cols...)
	out.Rows = make([][]any, 0, len(raw))
	for _, r := range raw {
		row := make([]any, width)
		for i, v := range r {
			if v != "" {
				row[i] = v
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

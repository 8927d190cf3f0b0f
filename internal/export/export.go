// Package export writes tables to spreadsheet and CSV files.
//
// Files are written to a temporary sibling and renamed into place, so a failed
// export never leaves a truncated output behind for the next job to read.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"pbietl/internal/metrics"
	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// Format selects the writer.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Default styles for time.Time cells.
const (
	DefaultDateFormat     = "yyyy-mm-dd"
	DefaultDateTimeFormat = "yyyy-mm-dd hh:mm:ss"
)

// Target describes one output file.
type Target struct {
	Path string
	// Format defaults from the Path extension.
	Format Format
	// Sheet defaults to "Sheet1".
	Sheet string
	// DateFormat is the number format of date cells (xlsx only).
	DateFormat string
}

func (t Target) format() Format {
	if t.Format != "" {
		return t.Format
	}
	if strings.EqualFold(filepath.Ext(t.Path), ".csv") {
		return FormatCSV
	}
	return FormatXLSX
}

// Exporter writes a table to a target.
type Exporter interface {
	Export(ctx context.Context, t *table.Table, target Target) error
}

// Files is the file-system exporter.
type Files struct{}

// Export writes t to target.Path, creating parent directories.
//
// Errors are wrapped with the path; the previous file, if any, is left intact.
func (Files) Export(ctx context.Context, t *table.Table, target Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if target.Path == "" {
		return fmt.Errorf("export: empty path")
	}
	dir := filepath.Dir(target.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export %s: %w", target.Path, err)
	}

	var err error
	switch f := target.format(); f {
	case FormatXLSX:
		err = atomicWrite(target.Path, func(w io.Writer) error { return writeXLSX(w, t, target) })
	case FormatCSV:
		err = atomicWrite(target.Path, func(w io.Writer) error { return WriteCSV(w, t) })
	default:
		err = fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", target.Path, err)
	}
	metrics.RecordRows("written", filepath.Base(target.Path), t.Len())
	return nil
}

func atomicWrite(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeXLSX(w io.Writer, t *table.Table, target Target) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := target.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("sheet name %q: %w", sheet, err)
		}
	}
	dateFmt := target.DateFormat
	if dateFmt == "" {
		dateFmt = DefaultDateFormat
	}
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return err
	}
	tsFmt := DefaultDateTimeFormat
	tsStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &tsFmt})
	if err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, r := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		vals := make([]any, len(r))
		for j, v := range r {
			vals[j] = xlsxValue(v, dateStyle, tsStyle)
		}
		if err := sw.SetRow(cell, vals); err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func xlsxValue(v any, dateStyle, tsStyle int) any {
	tv, ok := v.(time.Time)
	if !ok {
		return v
	}
	style := tsStyle
	if tv.Equal(builtin.DateOnly(tv)) {
		style = dateStyle
	}
	return excelize.Cell{StyleID: style, Value: tv}
}

// WriteCSV writes a UTF-8 BOM, the header and every row. Cells are rendered
// with builtin.CellText, so dates at midnight are written as YYYY-MM-DD.
func WriteCSV(w io.Writer, t *table.Table) error {
	if _, err := io.WriteString(w, "\uFEFF"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for j := range rec {
			rec[j] = ""
			if j < len(r) {
				rec[j] = builtin.CellText(r[j])
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var _ Exporter = Files{}

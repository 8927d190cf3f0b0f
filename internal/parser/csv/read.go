package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// Options controls how CSV text becomes a raw table.
type Options struct {
	// SkipRows drops this many physical records before anything else.
	SkipRows int

	// HasHeader promotes the first record (after SkipRows) to column names.
	// Without a header, columns are named by position: "0", "1", ...
	HasHeader bool

	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// LazyQuotes tolerates stray quotes, which spreadsheet exports produce.
	LazyQuotes bool

	// TrimSpace trims edge whitespace of every cell.
	TrimSpace bool

	// HeaderMap renames header cells after trimming.
	HeaderMap map[string]string
}

// Read parses CSV into a table of string cells. Empty cells become nil.
//
// Records may be ragged; the table is as wide as the widest record and short
// records are padded with nil. A UTF-8 BOM on the first cell is removed.
//
// Errors:
//   - Returns the first csv read error with its record number.
//   - Returns ctx.Err() if the context is cancelled mid-read.
func Read(ctx context.Context, r io.Reader, opt Options) (*table.Table, error) {
	cr := csv.NewReader(r)
	if opt.Comma != 0 {
		cr.Comma = opt.Comma
	}
	cr.ReuseRecord = true
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1

	var (
		header []string
		rows   [][]any
		width  int
		line   int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv read record %d: %w", line, err)
		}
		if line == 1 && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\uFEFF")
		}
		if line <= opt.SkipRows {
			continue
		}
		if opt.HasHeader && header == nil {
			header = make([]string, len(rec))
			for i, h := range rec {
				if builtin.HasEdgeSpace(h) {
					h = strings.TrimSpace(h)
				}
				if mapped, ok := opt.HeaderMap[h]; ok {
					h = mapped
				}
				header[i] = h
			}
			width = len(header)
			continue
		}

		row := make([]any, len(rec))
		for i, v := range rec {
			if opt.TrimSpace && builtin.HasEdgeSpace(v) {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				row[i] = v
			}
		}
		if len(row) > width {
			width = len(row)
		}
		rows = append(rows, row)
	}

	cols := make([]string, width)
	for i := range cols {
		if i < len(header) && header[i] != "" {
			cols[i] = header[i]
		} else {
			cols[i] = strconv.Itoa(i)
		}
	}
	out := table.New(cols...)
	out.Rows = make([][]any, 0, len(rows))
	for _, r := range rows {
		if len(r) < width {
			r = append(r, make([]any, width-len(r))...)
		}
		out.Rows = append(out.Rows, r)
	}
	return out, nil
}

package storage

import (
	"math"
	"strings"
	"time"

	"pbietl/internal/transformer/builtin"
)

// Value converts a table cell to the driver value for a column of type t.
//
// Backends must not assume the cell type matches the column type: an integer
// column may hold whole float64 values and text columns receive any cell
// rendered as text. Values that cannot be converted become NULL.
func Value(v any, t ColumnType) any {
	if v == nil {
		return nil
	}
	switch t {
	case TypeText:
		s := builtin.CellText(v)
		if builtin.HasEdgeSpace(s) {
			s = strings.TrimSpace(s)
		}
		return s
	case TypeInteger:
		switch x := v.(type) {
		case int64:
			return x
		case int:
			return int64(x)
		}
		if n, ok := builtin.ParseInt(v); ok {
			return n
		}
		return nil
	case TypeReal:
		f, ok := builtin.ParseNumber(v)
		if !ok || math.IsInf(f, 0) {
			return nil
		}
		return f
	case TypeDate, TypeTimestamp:
		d, ok := builtin.ParseDate(v)
		if !ok {
			return nil
		}
		if t == TypeDate {
			return builtin.DateOnly(d)
		}
		return d.UTC()
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b
		}
		return nil
	default:
		return v
	}
}

// Values converts every row with spec's column types.
func Values(spec TableSpec, rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		nr := make([]any, len(spec.Columns))
		for j, c := range spec.Columns {
			if j < len(r) {
				nr[j] = Value(r[j], c.Type)
			}
		}
		out[i] = nr
	}
	return out
}

// formatTime is the text form used by backends without native time types.
func formatTime(v time.Time, t ColumnType) string {
	if t == TypeDate {
		return v.Format("2006-01-02")
	}
	return v.Format(time.RFC3339Nano)
}

// TextTimes replaces time.Time cells with their text form for backends that
// store dates as TEXT.
func TextTimes(spec TableSpec, rows [][]any) [][]any {
	for _, r := range rows {
		for j, c := range spec.Columns {
			if tv, ok := r[j].(time.Time); ok {
				r[j] = formatTime(tv, c.Type)
			}
		}
	}
	return rows
}

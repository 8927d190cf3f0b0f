package storage

import (
	"fmt"
	"time"

	"pbietl/internal/transformer/builtin"
)

// ColumnType is the portable column type; each backend maps it to DDL.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeReal      ColumnType = "real"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
	TypeBool      ColumnType = "bool"
)

// RowHashColumn is appended to fact tables by WithRowHash.
const RowHashColumn = "row_hash"

// ColumnSpec is one warehouse column.
type ColumnSpec struct {
	Name string
	Type ColumnType
}

// TableSpec is the full shape of a replaced table.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// ColumnNames returns the column names in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate checks table and column names and types before any DDL is built.
func (t TableSpec) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("storage: table %s has no columns", t.Name)
	}
	seen := map[string]bool{}
	for _, c := range t.Columns {
		if c.Name == "" {
			return fmt.Errorf("storage: table %s has an unnamed column", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("storage: table %s repeats column %q", t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// InferSpec derives column types from the cells of rows.
//
// A column is integer when every non-nil cell is int64, real when cells are
// numeric with at least one float64, date when every cell is a time.Time at
// midnight, timestamp for other times, bool for bools, and text otherwise
// (including all-nil columns and mixed types).
func InferSpec(name string, columns []string, rows [][]any) TableSpec {
	spec := TableSpec{Name: name, Columns: make([]ColumnSpec, len(columns))}
	for i, c := range columns {
		spec.Columns[i] = ColumnSpec{Name: c, Type: inferType(rows, i)}
	}
	return spec
}

func inferType(rows [][]any, col int) ColumnType {
	var typ ColumnType
	for _, r := range rows {
		if col >= len(r) || r[col] == nil {
			continue
		}
		var ct ColumnType
		switch v := r[col].(type) {
		case int64, int:
			ct = TypeInteger
		case float64:
			ct = TypeReal
		case bool:
			ct = TypeBool
		case time.Time:
			ct = TypeTimestamp
			if v.Equal(builtin.DateOnly(v)) {
				ct = TypeDate
			}
		default:
			return TypeText
		}
		switch {
		case typ == "":
			typ = ct
		case typ == ct:
		case isNumeric(typ) && isNumeric(ct):
			typ = TypeReal
		case isTime(typ) && isTime(ct):
			typ = TypeTimestamp
		default:
			return TypeText
		}
	}
	if typ == "" {
		return TypeText
	}
	return typ
}

func isNumeric(t ColumnType) bool { return t == TypeInteger || t == TypeReal }
func isTime(t ColumnType) bool    { return t == TypeDate || t == TypeTimestamp }

// WithRowHash appends a row_hash text column holding the SHA-256 of each row's
// spec columns. Surrogate keys are renumbered per run; the hash lets a reload
// be compared with the previous one by content.
func WithRowHash(spec TableSpec, rows [][]any) (TableSpec, [][]any) {
	cols := spec.ColumnNames()
	h := builtin.RowHash{Fields: cols, TrimSpace: true}

	out := TableSpec{Name: spec.Name, Columns: append(append([]ColumnSpec(nil), spec.Columns...), ColumnSpec{Name: RowHashColumn, Type: TypeText})}
	outRows := make([][]any, len(rows))
	for i, r := range rows {
		nr := make([]any, 0, len(r)+1)
		nr = append(nr, r...)
		outRows[i] = append(nr, h.Sum(cols, r))
	}
	return out, outRows
}

// Batches splits rows so a single multi-row INSERT stays under maxParams
// bind parameters.
func Batches(rows [][]any, ncols, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := len(rows)
	if ncols > 0 && maxParams > 0 {
		per = maxParams / ncols
		if per < 1 {
			per = 1
		}
	}
	var out [][][]any
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// Package table holds the untyped, fully materialized tables every job works on.
//
// A Table is a list of column names plus rows of cells. Cells are nil or one of
// string, float64, int64, bool, time.Time. Operations never mutate their
// receiver; they return a new Table whose rows are fresh slices.
package table

import (
	"errors"
	"fmt"

	"pbietl/internal/transformer/builtin"
)

var (
	// ErrColumnOutOfRange is returned when a positional selection references a
	// column index the table does not have.
	ErrColumnOutOfRange = errors.New("table: column index out of range")

	// ErrMissingColumn is returned when a named column does not exist.
	ErrMissingColumn = errors.New("table: missing column")
)

// Table is an in-memory table of untyped cells.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New returns an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// Append adds one row. Missing trailing cells are nil; extra cells are dropped.
func (t *Table) Append(values ...any) {
	row := make([]any, len(t.Columns))
	copy(row, values)
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows. A nil table has zero rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether every named column exists.
func (t *Table) Has(names ...string) bool {
	for _, n := range names {
		if t.Index(n) < 0 {
			return false
		}
	}
	return true
}

func (t *Table) indices(names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		ix := t.Index(n)
		if ix < 0 {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, n)
		}
		out[i] = ix
	}
	return out, nil
}

// Col returns a copy of the named column's cells.
func (t *Table) Col(name string) ([]any, error) {
	ix := t.Index(name)
	if ix < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMissingColumn, name)
	}
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[ix]
	}
	return out, nil
}

// Clone returns a deep copy of the table structure. Cells are shared values.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]any(nil), r...)
	}
	return out
}

// Row is a read-only view of one row, used by predicates and mappers.
type Row struct {
	t *Table
	V []any
}

// Get returns the cell of the named column, or nil when the column is absent.
func (r Row) Get(name string) any {
	ix := r.t.Index(name)
	if ix < 0 || ix >= len(r.V) {
		return nil
	}
	return r.V[ix]
}

// String returns the named cell formatted with FormatCell.
func (r Row) String(name string) string { return FormatCell(r.Get(name)) }

// At returns the cell at a position, or nil when out of range.
func (r Row) At(i int) any {
	if i < 0 || i >= len(r.V) {
		return nil
	}
	return r.V[i]
}

// FormatCell renders a cell as text (see builtin.CellText).
func FormatCell(v any) string { return builtin.CellText(v) }

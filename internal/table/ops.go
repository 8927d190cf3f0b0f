package table

import (
	"fmt"
)

// SelectPositions builds a table from the columns at the given zero-based
// positions, naming them names[i].
//
// When to use:
//   - Sources without a trustworthy header, where columns are addressed by
//     position (spreadsheets read header-less, skipped CSV preambles).
//
// Edge cases:
//   - Rows shorter than a position yield nil for that cell; only the widest row
//     decides whether a position exists at all.
//
// Errors:
//   - ErrColumnOutOfRange when a position is negative or beyond the table width.
func (t *Table) SelectPositions(positions []int, names []string) (*Table, error) {
	if len(positions) != len(names) {
		return nil, fmt.Errorf("table: %d positions for %d names", len(positions), len(names))
	}
	width := len(t.Columns)
	for _, p := range positions {
		if p < 0 || p >= width {
			return nil, fmt.Errorf("%w: index %d, table has %d columns", ErrColumnOutOfRange, p, width)
		}
	}
	out := New(names...)
	out.Rows = make([][]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		nr := make([]any, len(positions))
		for i, p := range positions {
			if p < len(r) {
				nr[i] = r[p]
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out, nil
}

// Select keeps the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx, err := t.indices(names)
	if err != nil {
		return nil, err
	}
	return t.project(names, idx), nil
}

// SelectPresent keeps the named columns that exist, in the given order.
func (t *Table) SelectPresent(names ...string) *Table {
	var keep []string
	var idx []int
	for _, n := range names {
		if ix := t.Index(n); ix >= 0 {
			keep = append(keep, n)
			idx = append(idx, ix)
		}
	}
	return t.project(keep, idx)
}

func (t *Table) project(names []string, idx []int) *Table {
	out := New(names...)
	out.Rows = make([][]any, 0, len(t.Rows))
	for _, r := range t.Rows {
		nr := make([]any, len(idx))
		for i, ix := range idx {
			nr[i] = r[ix]
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// Rename renames columns by old->new. Absent old names are ignored.
func (t *Table) Rename(m map[string]string) *Table {
	out := t.Clone()
	for i, c := range out.Columns {
		if n, ok := m[c]; ok {
			out.Columns[i] = n
		}
	}
	return out
}

// Reorder moves the listed columns (those present) to the front in the given
// order; the remaining columns follow in their current order.
func (t *Table) Reorder(first ...string) *Table {
	used := make(map[string]bool, len(first))
	order := make([]string, 0, len(t.Columns))
	for _, n := range first {
		if t.Index(n) >= 0 && !used[n] {
			order = append(order, n)
			used[n] = true
		}
	}
	for _, c := range t.Columns {
		if !used[c] {
			order = append(order, c)
			used[c] = true
		}
	}
	out, _ := t.Select(order...)
	return out
}

// Drop removes the named columns. Absent names are ignored.
func (t *Table) Drop(names ...string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []string
	for _, c := range t.Columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.Columns...)
	for _, r := range t.Rows {
		if keep(Row{t: t, V: r}) {
			out.Rows = append(out.Rows, append([]any(nil), r...))
		}
	}
	return out
}

// DropFirst removes the first row. It is the header-promotion step applied
// after filtering, where the first surviving row is a duplicated header.
func (t *Table) DropFirst() *Table {
	out := New(t.Columns...)
	for i, r := range t.Rows {
		if i == 0 {
			continue
		}
		out.Rows = append(out.Rows, append([]any(nil), r...))
	}
	return out
}

// PromoteHeader turns the first row into column names. name renders each
// header cell; blank names become Column<n> (1-based).
func (t *Table) PromoteHeader(name func(any) string) *Table {
	if len(t.Rows) == 0 {
		return t.Clone()
	}
	if name == nil {
		name = FormatCell
	}
	header := t.Rows[0]
	cols := make([]string, len(t.Columns))
	for i := range cols {
		var h string
		if i < len(header) {
			h = name(header[i])
		}
		if h == "" {
			h = fmt.Sprintf("Column%d", i+1)
		}
		cols[i] = h
	}
	out := New(cols...)
	for _, r := range t.Rows[1:] {
		out.Rows = append(out.Rows, append([]any(nil), r...))
	}
	return out
}

// Concat stacks tables vertically. Columns are the union of all column names in
// first-seen order; cells of columns a table lacks are nil.
func Concat(tables ...*Table) *Table {
	var cols []string
	seen := map[string]bool{}
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	out := New(cols...)
	for _, t := range tables {
		if t == nil {
			continue
		}
		pos := make([]int, len(cols))
		for i, c := range cols {
			pos[i] = t.Index(c)
		}
		for _, r := range t.Rows {
			nr := make([]any, len(cols))
			for i, p := range pos {
				if p >= 0 {
					nr[i] = r[p]
				}
			}
			out.Rows = append(out.Rows, nr)
		}
	}
	return out
}

// Distinct removes rows whose key duplicates an earlier row, keeping the first
// occurrence in encountered order. No keys means all columns. nil equals nil.
func (t *Table) Distinct(keys ...string) (*Table, error) {
	return t.DistinctBy(nil, keys...)
}

// DistinctBy is Distinct with a custom key rendering.
func (t *Table) DistinctBy(kf KeyFunc, keys ...string) (*Table, error) {
	if len(keys) == 0 {
		keys = t.Columns
	}
	idx, err := t.indices(keys)
	if err != nil {
		return nil, err
	}
	seen := newKeyIndex(len(t.Rows))
	out := New(t.Columns...)
	for i, r := range t.Rows {
		k, _ := compositeKey(r, idx, kf)
		if seen.add(k, i) {
			out.Rows = append(out.Rows, append([]any(nil), r...))
		}
	}
	return out, nil
}

// AddIndex appends a column holding start, start+1, ... by row position.
func (t *Table) AddIndex(name string, start int64) *Table {
	return t.With(name, func(i int, _ Row) any { return start + int64(i) })
}

// Map replaces (or appends) the named column with fn's result per row.
func (t *Table) Map(name string, fn func(Row) any) *Table {
	return t.With(name, func(_ int, r Row) any { return fn(r) })
}

// With is Map with the zero-based row position.
func (t *Table) With(name string, fn func(i int, r Row) any) *Table {
	out := t.Clone()
	ix := out.Index(name)
	if ix < 0 {
		out.Columns = append(out.Columns, name)
		ix = len(out.Columns) - 1
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], nil)
		}
	}
	for i, r := range out.Rows {
		// fn sees the original cells so column order does not matter.
		src := Row{t: t, V: t.Rows[i]}
		r[ix] = fn(i, src)
	}
	return out
}

// Ensure appends each missing column filled with def.
func (t *Table) Ensure(def any, names ...string) *Table {
	out := t
	for _, n := range names {
		if out.Index(n) < 0 {
			out = out.Map(n, func(Row) any { return def })
		}
	}
	if out == t {
		return t.Clone()
	}
	return out
}

package table

import (
	"fmt"

	"pbietl/internal/transformer/builtin"
)

// JoinKind selects inner or left-outer semantics.
type JoinKind int

const (
	Inner JoinKind = iota
	Left
)

func (k JoinKind) String() string {
	if k == Left {
		return "left"
	}
	return "inner"
}

// JoinSpec describes an equi-join between two tables.
type JoinSpec struct {
	LeftOn  []string
	RightOn []string
	Kind    JoinKind

	// KeyFunc renders key cells on both sides; nil compares FormatCell output.
	KeyFunc KeyFunc

	// KeepRightKeys keeps the right key columns in the output.
	KeepRightKeys bool

	// Suffix is appended to right column names that clash with left names.
	// Defaults to "_right".
	Suffix string
}

// Join performs a hash join. Output rows follow left order; for each left row
// the matching right rows follow right order.
//
// Edge cases:
//   - Keys containing nil never match.
//   - With Kind == Left, unmatched left rows are kept with nil right cells, so
//     the row count is unchanged whenever right keys are unique.
func (t *Table) Join(right *Table, spec JoinSpec) (*Table, error) {
	if len(spec.LeftOn) == 0 || len(spec.LeftOn) != len(spec.RightOn) {
		return nil, fmt.Errorf("table: join needs matching key lists, got %d and %d", len(spec.LeftOn), len(spec.RightOn))
	}
	lidx, err := t.indices(spec.LeftOn)
	if err != nil {
		return nil, fmt.Errorf("join left: %w", err)
	}
	ridx, err := right.indices(spec.RightOn)
	if err != nil {
		return nil, fmt.Errorf("join right: %w", err)
	}
	suffix := spec.Suffix
	if suffix == "" {
		suffix = "_right"
	}

	isKey := make(map[int]bool, len(ridx))
	if !spec.KeepRightKeys {
		for _, ix := range ridx {
			isKey[ix] = true
		}
	}
	cols := append([]string(nil), t.Columns...)
	var rkeep []int
	for i, c := range right.Columns {
		if isKey[i] {
			continue
		}
		name := c
		if t.Index(name) >= 0 {
			name += suffix
		}
		cols = append(cols, name)
		rkeep = append(rkeep, i)
	}

	ix := newKeyIndex(len(right.Rows))
	for i, r := range right.Rows {
		if k, ok := compositeKey(r, ridx, spec.KeyFunc); ok {
			ix.add(k, i)
		}
	}

	out := New(cols...)
	for _, l := range t.Rows {
		var matches []int
		if k, ok := compositeKey(l, lidx, spec.KeyFunc); ok {
			matches = ix.lookup(k)
		}
		if len(matches) == 0 {
			if spec.Kind == Left {
				nr := make([]any, len(cols))
				copy(nr, l)
				out.Rows = append(out.Rows, nr)
			}
			continue
		}
		for _, m := range matches {
			nr := make([]any, 0, len(cols))
			nr = append(nr, l...)
			for _, ri := range rkeep {
				nr = append(nr, right.Rows[m][ri])
			}
			out.Rows = append(out.Rows, nr)
		}
	}
	return out, nil
}

// Melt reshapes valueCols into long form: one row per (id cells, column name,
// cell). keep filters cells; nil keep drops only nil cells.
//
// Output is grouped by value column, then by input row, as pandas melt does.
func (t *Table) Melt(idCols, valueCols []string, varName, valueName string, keep func(any) bool) (*Table, error) {
	iidx, err := t.indices(idCols)
	if err != nil {
		return nil, fmt.Errorf("melt id: %w", err)
	}
	vidx, err := t.indices(valueCols)
	if err != nil {
		return nil, fmt.Errorf("melt value: %w", err)
	}
	if keep == nil {
		keep = func(v any) bool { return v != nil }
	}
	cols := append(append([]string(nil), idCols...), varName, valueName)
	out := New(cols...)
	for j, vi := range vidx {
		for _, r := range t.Rows {
			v := r[vi]
			if !keep(v) {
				continue
			}
			nr := make([]any, 0, len(cols))
			for _, ii := range iidx {
				nr = append(nr, r[ii])
			}
			nr = append(nr, valueCols[j], v)
			out.Rows = append(out.Rows, nr)
		}
	}
	return out, nil
}

// PivotSpec configures PivotSum.
type PivotSpec struct {
	// Group columns identify an output row. Missing group columns are skipped.
	Group []string
	// Label holds the balance-type label of each input row.
	Label string
	// Value holds the amount summed into the label's column.
	Value string
	// Columns maps a rendered label to its output column. Unknown labels are ignored.
	Columns map[string]string
	// Order lists every output value column; all are present, defaulting to 0.
	Order []string
	// LabelFunc renders labels before the Columns lookup; nil uses FormatCell.
	LabelFunc func(any) string
}

// PivotSum groups rows by Group (first-seen order) and sums Value into one
// float64 column per label. Unparseable values count as 0.
func (t *Table) PivotSum(spec PivotSpec) (*Table, error) {
	var group []string
	for _, g := range spec.Group {
		if t.Index(g) >= 0 {
			group = append(group, g)
		}
	}
	gidx, _ := t.indices(group)
	li := t.Index(spec.Label)
	vi := t.Index(spec.Value)
	if li < 0 || vi < 0 {
		return nil, fmt.Errorf("%w: pivot needs %q and %q", ErrMissingColumn, spec.Label, spec.Value)
	}
	labelFn := spec.LabelFunc
	if labelFn == nil {
		labelFn = FormatCell
	}
	pos := make(map[string]int, len(spec.Order))
	for i, c := range spec.Order {
		pos[c] = i
	}

	out := New(append(append([]string(nil), group...), spec.Order...)...)
	groups := newKeyIndex(len(t.Rows))
	for _, r := range t.Rows {
		col, ok := spec.Columns[labelFn(r[li])]
		if !ok {
			continue
		}
		p, ok := pos[col]
		if !ok {
			continue
		}
		k, _ := compositeKey(r, gidx, nil)
		if groups.add(k, len(out.Rows)) {
			nr := make([]any, len(out.Columns))
			for i, gi := range gidx {
				nr[i] = r[gi]
			}
			for i := range spec.Order {
				nr[len(gidx)+i] = float64(0)
			}
			out.Rows = append(out.Rows, nr)
		}
		target := out.Rows[groups.lookup(k)[0]]
		f, _ := builtin.ParseNumber(r[vi])
		target[len(gidx)+p] = target[len(gidx)+p].(float64) + f
	}
	return out, nil
}

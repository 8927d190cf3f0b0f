package jobs

import (
	"math"
	"strings"

	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// Cell converters used with table.Map. Each returns nil for cells it cannot
// convert so missing values stay missing.

func stripCell(col string) func(table.Row) any {
	return func(r table.Row) any { return builtin.StripCell(r.Get(col)) }
}

func upperCell(col string) func(table.Row) any {
	return func(r table.Row) any {
		v := builtin.StripCell(r.Get(col))
		if v == nil {
			return nil
		}
		return builtin.Simple(builtin.CellText(v))
	}
}

func floatCell(col string) func(table.Row) any {
	return func(r table.Row) any {
		if f, ok := builtin.ParseNumber(r.Get(col)); ok {
			return f
		}
		return nil
	}
}

func floatOrZero(col string) func(table.Row) any {
	return func(r table.Row) any {
		f, _ := builtin.ParseNumber(r.Get(col))
		return f
	}
}

func intCell(col string) func(table.Row) any {
	return func(r table.Row) any {
		if n, ok := builtin.ParseInt(r.Get(col)); ok {
			return n
		}
		return nil
	}
}

// roundedIntCell accepts fractional numbers and rounds them.
func roundedIntCell(col string) func(table.Row) any {
	return func(r table.Row) any {
		if f, ok := builtin.ParseNumber(r.Get(col)); ok {
			return int64(math.Round(f))
		}
		return nil
	}
}

func dateCell(col string) func(table.Row) any {
	return func(r table.Row) any {
		if t, ok := builtin.ParseDate(r.Get(col)); ok {
			return builtin.DateOnly(t)
		}
		return nil
	}
}

func timestampCell(col string) func(table.Row) any {
	return func(r table.Row) any {
		if t, ok := builtin.ParseDate(r.Get(col)); ok {
			return t
		}
		return nil
	}
}

// mapAll applies fn to every listed column that exists.
func mapAll(t *table.Table, fn func(col string) func(table.Row) any, cols ...string) *table.Table {
	for _, c := range cols {
		if t.Has(c) {
			t = t.Map(c, fn(c))
		}
	}
	return t
}

// requireColumns returns table.ErrMissingColumn naming every absent column.
func requireColumns(t *table.Table, what string, cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &missingError{what: what, cols: missing, have: t.Columns}
	}
	return nil
}

type missingError struct {
	what       string
	cols, have []string
}

func (e *missingError) Error() string {
	return e.what + ": " + table.ErrMissingColumn.Error() + " " + strings.Join(e.cols, ", ") + " (have " + strings.Join(e.have, ", ") + ")"
}

func (e *missingError) Unwrap() error { return table.ErrMissingColumn }

// innerJoin is table.Join with the empty-result diagnostic: when nothing
// matches it returns a *JoinError with five sample keys per side.
func innerJoin(left, right *table.Table, leftName, rightName string, spec table.JoinSpec) (*table.Table, error) {
	spec.Kind = table.Inner
	out, err := left.Join(right, spec)
	if err != nil {
		return nil, err
	}
	if out.Empty() {
		return nil, &JoinError{
			Left:      leftName,
			Right:     rightName,
			LeftKeys:  left.SampleKeys(spec.LeftOn, 5, spec.KeyFunc),
			RightKeys: right.SampleKeys(spec.RightOn, 5, spec.KeyFunc),
		}
	}
	return out, nil
}

// Package catalog normalizes reference tables (concept catalogs, working-day
// catalogs) before they are joined against transactional data.
package catalog

import (
	"errors"
	"fmt"
	"log"

	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// ErrColumnCount is returned when a catalog does not have the expected width.
var ErrColumnCount = errors.New("catalog: unexpected column count")

// Logger is the minimal logging surface used here.
type Logger interface {
	Printf(format string, v ...any)
}

// Spec describes one catalog.
type Spec struct {
	Name string

	// Columns are the output names. With Positions, column i is read from
	// position Positions[i]; otherwise columns are selected by name.
	Columns   []string
	Positions []int

	// ExpectedColumns, when positive, is the exact raw width required.
	ExpectedColumns int

	// KeyColumns must be non-empty for a row to be kept.
	KeyColumns []string
	// UpperKeys uppercases key columns after stripping.
	UpperKeys bool
	// Dedupe keeps the first row per key.
	Dedupe bool
}

// Normalize shapes a raw catalog table.
//
// Steps: width check, selection, strip every text cell ("" becomes nil),
// uppercase keys when asked, drop fully-empty rows, drop rows with an empty
// key, optional keep-first dedupe. Duplicate keys are logged either way.
//
// Errors:
//   - ErrColumnCount when ExpectedColumns is set and the width differs.
//   - table.ErrColumnOutOfRange or table.ErrMissingColumn from selection.
func Normalize(t *table.Table, spec Spec, logger Logger) (*table.Table, error) {
	if logger == nil {
		logger = log.Default()
	}
	if spec.ExpectedColumns > 0 && len(t.Columns) != spec.ExpectedColumns {
		return nil, fmt.Errorf("%w: %s has %d columns, want %d", ErrColumnCount, spec.Name, len(t.Columns), spec.ExpectedColumns)
	}

	var (
		out *table.Table
		err error
	)
	if len(spec.Positions) > 0 {
		out, err = t.SelectPositions(spec.Positions, spec.Columns)
	} else {
		out, err = t.Select(spec.Columns...)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", spec.Name, err)
	}

	keyIdx := make([]int, 0, len(spec.KeyColumns))
	for _, k := range spec.KeyColumns {
		ix := out.Index(k)
		if ix < 0 {
			return nil, fmt.Errorf("catalog %s: %w: key %q", spec.Name, table.ErrMissingColumn, k)
		}
		keyIdx = append(keyIdx, ix)
	}
	isKey := make(map[int]bool, len(keyIdx))
	for _, ix := range keyIdx {
		isKey[ix] = true
	}

	clean := table.New(out.Columns...)
	for _, r := range out.Rows {
		nr := make([]any, len(r))
		empty := true
		for i, v := range r {
			v = builtin.StripCell(v)
			if spec.UpperKeys && isKey[i] {
				if s, ok := v.(string); ok {
					v = builtin.Simple(s)
				}
			}
			nr[i] = v
			if v != nil {
				empty = false
			}
		}
		if empty {
			continue
		}
		keep := true
		for _, ix := range keyIdx {
			if nr[ix] == nil {
				keep = false
				break
			}
		}
		if keep {
			clean.Rows = append(clean.Rows, nr)
		}
	}

	if len(spec.KeyColumns) > 0 {
		dd, _ := clean.Distinct(spec.KeyColumns...)
		if dups := clean.Len() - dd.Len(); dups > 0 {
			logger.Printf("[WARN] catalog=%s duplicate_keys=%d keys=%v", spec.Name, dups, spec.KeyColumns)
			if spec.Dedupe {
				clean = dd
			}
		}
	}
	return clean, nil
}

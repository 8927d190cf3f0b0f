// Package star assembles dimension and fact tables with positional surrogate
// keys.
//
// Surrogate keys are 1..N in first-seen order of the natural key and are
// renumbered on every run; facts resolve them by natural key against the
// dimensions built in the same run.
package star

import (
	"fmt"
	"log"
	"strings"

	"pbietl/internal/table"
)

// NaturalKey builds a composite key column from parts joined by Sep.
type NaturalKey struct {
	Name  string
	Parts []string
	Sep   string
}

// Value renders the key of one row. Parts are trimmed text.
func (k NaturalKey) Value(r table.Row) string {
	sep := k.Sep
	if sep == "" {
		sep = "|"
	}
	parts := make([]string, len(k.Parts))
	for i, p := range k.Parts {
		parts[i] = strings.TrimSpace(r.String(p))
	}
	return strings.Join(parts, sep)
}

// DimensionSpec describes a dimension table.
type DimensionSpec struct {
	// Columns are selected from the source in this order.
	Columns []string
	// Natural, when Name is set, is appended as a composite key column.
	Natural NaturalKey
	// DedupeOn lists the columns that identify a member. Empty means all
	// selected columns (plus the natural key when present).
	DedupeOn []string
	// KeyFunc compares DedupeOn cells; nil compares exact text. Facts should
	// resolve against the dimension with the same function.
	KeyFunc table.KeyFunc
	// KeyName is the surrogate key column.
	KeyName string
	// KeyFirst puts the surrogate key before the other columns.
	KeyFirst bool
}

// BuildDimension selects, dedupes (keep first) and numbers a dimension.
//
// Errors:
//   - table.ErrMissingColumn when a selected column is absent.
func BuildDimension(src *table.Table, spec DimensionSpec) (*table.Table, error) {
	if spec.KeyName == "" {
		return nil, fmt.Errorf("star: dimension needs a key name")
	}
	t, err := src.Select(spec.Columns...)
	if err != nil {
		return nil, fmt.Errorf("dimension %s: %w", spec.KeyName, err)
	}
	if spec.Natural.Name != "" {
		nk := spec.Natural
		for _, p := range nk.Parts {
			if !t.Has(p) {
				return nil, fmt.Errorf("dimension %s: %w: natural key part %q", spec.KeyName, table.ErrMissingColumn, p)
			}
		}
		t = t.Map(nk.Name, func(r table.Row) any { return nk.Value(r) })
	}
	if spec.KeyFunc != nil {
		t, err = t.DistinctBy(spec.KeyFunc, spec.DedupeOn...)
	} else {
		t, err = t.Distinct(spec.DedupeOn...)
	}
	if err != nil {
		return nil, fmt.Errorf("dimension %s: %w", spec.KeyName, err)
	}
	t = t.AddIndex(spec.KeyName, 1)
	if spec.KeyFirst {
		t = t.Reorder(spec.KeyName)
	}
	return t, nil
}

// CheckKeys verifies that keyName holds exactly 1..N in row order.
func CheckKeys(dim *table.Table, keyName string) error {
	col, err := dim.Col(keyName)
	if err != nil {
		return err
	}
	for i, v := range col {
		k, ok := v.(int64)
		if !ok || k != int64(i+1) {
			return fmt.Errorf("star: %s row %d has key %v, want %d", keyName, i, v, i+1)
		}
	}
	return nil
}

// Lookup resolves one surrogate key of a fact table.
type Lookup struct {
	Dimension *table.Table
	// FactOn and DimOn are the natural-key columns on each side.
	FactOn []string
	DimOn  []string
	// KeyName is the surrogate key column copied from the dimension.
	KeyName string
}

// Logger receives collision warnings.
type Logger interface {
	Printf(format string, args ...any)
}

// Options controls ResolveFacts.
type Options struct {
	// KeyFunc renders key cells on both sides; nil compares trimmed text.
	KeyFunc table.KeyFunc
	// Drop lists fact columns removed after resolution (replaced natural keys).
	Drop []string
	// Job names the caller in warnings.
	Job string
	// Logger defaults to log.Default().
	Logger Logger
}

func (o Options) logger() Logger {
	if o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

// ResolveFacts left-joins every lookup and appends its surrogate key. Facts
// whose natural key is missing from the dimension get a nil key; the row
// count never changes. Dimension members whose natural keys collide under
// KeyFunc resolve to the first one, with a warning.
//
// Errors:
//   - table.ErrMissingColumn for absent key columns.
func ResolveFacts(facts *table.Table, lookups []Lookup, opt Options) (*table.Table, error) {
	kf := opt.KeyFunc
	if kf == nil {
		kf = func(v any) string { return strings.TrimSpace(table.FormatCell(v)) }
	}
	out := facts
	for _, lk := range lookups {
		dim, err := lk.Dimension.Select(append(append([]string(nil), lk.DimOn...), lk.KeyName)...)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", lk.KeyName, err)
		}
		uniq, err := dim.DistinctBy(kf, lk.DimOn...)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", lk.KeyName, err)
		}
		if n := dim.Len() - uniq.Len(); n > 0 {
			opt.logger().Printf("[WARN] job=%s key=%s colliding_members=%d: kept the first per %v", opt.Job, lk.KeyName, n, lk.DimOn)
			dim = uniq
		}
		before := out.Len()
		out, err = out.Join(dim, table.JoinSpec{
			LeftOn:  lk.FactOn,
			RightOn: lk.DimOn,
			Kind:    table.Left,
			KeyFunc: kf,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", lk.KeyName, err)
		}
		if out.Len() != before {
			return nil, fmt.Errorf("resolve %s: row count changed %d -> %d", lk.KeyName, before, out.Len())
		}
	}
	return out.Drop(opt.Drop...), nil
}

// Unresolved counts facts whose keyName is nil.
func Unresolved(facts *table.Table, keyName string) int {
	col, err := facts.Col(keyName)
	if err != nil {
		return 0
	}
	n := 0
	for _, v := range col {
		if v == nil {
			n++
		}
	}
	return n
}

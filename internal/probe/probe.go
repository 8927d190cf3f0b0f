// Package probe profiles a loaded source column by column so positional
// contracts (a concept in column 1, working days in column 11) can be checked
// against what a sheet actually holds.
//
// Profiles are computed from the whole table; distinct counting is bounded
// per column so wide text columns do not grow memory without limit.
package probe

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// distinctCapPerColumn bounds distinct tracking per column.
const distinctCapPerColumn = 10000

// Column is the profile of one column.
type Column struct {
	Index  int
	Header string
	// NonEmpty counts cells that are not nil and not blank text.
	NonEmpty int
	Distinct int
	// Capped is set when Distinct stopped at the tracking bound.
	Capped bool
	// Type is one of integer, float, boolean, date, text; empty columns are text.
	Type string
	// Samples are the first distinct non-empty values, rendered as text.
	Samples []string
}

// Ratio is Distinct over NonEmpty, 0 for empty columns.
func (c Column) Ratio() float64 {
	if c.NonEmpty == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.NonEmpty)
}

// Report is the profile of a table.
type Report struct {
	Name    string
	Rows    int
	Columns []Column
}

// Profile computes per-column statistics of t, keeping up to sampleN sample
// values per column.
func Profile(name string, t *table.Table, sampleN int) Report {
	rep := Report{Name: name, Rows: t.Len(), Columns: make([]Column, len(t.Columns))}
	for i, h := range t.Columns {
		rep.Columns[i] = profileColumn(t, i, h, sampleN)
	}
	return rep
}

func profileColumn(t *table.Table, ix int, header string, sampleN int) Column {
	c := Column{Index: ix, Header: header}
	seen := map[string]struct{}{}
	allInt, allFloat, allBool, allDate := true, true, true, true

	for _, r := range t.Rows {
		if ix >= len(r) || builtin.IsBlank(r[ix]) {
			continue
		}
		v := r[ix]
		s := strings.TrimSpace(builtin.CellText(v))
		c.NonEmpty++

		if allInt {
			_, allInt = builtin.ParseInt(v)
		}
		if allFloat {
			_, allFloat = builtin.ParseNumber(v)
		}
		if allBool {
			_, allBool = parseBoolLoose(v)
		}
		if allDate {
			allDate = looksLikeDate(v)
		}

		if c.Capped {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if len(c.Samples) < sampleN {
			c.Samples = append(c.Samples, s)
		}
		if len(seen) >= distinctCapPerColumn {
			c.Capped = true
			seen = nil
		}
	}
	if c.Capped {
		c.Distinct = distinctCapPerColumn
	} else {
		c.Distinct = len(seen)
	}

	// Prefer more specific types.
	switch {
	case c.NonEmpty == 0:
		c.Type = "text"
	case allInt:
		c.Type = "integer"
	case allBool:
		c.Type = "boolean"
	case allDate:
		c.Type = "date"
	case allFloat:
		c.Type = "float"
	default:
		c.Type = "text"
	}
	return c
}

func parseBoolLoose(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	switch strings.ToLower(strings.TrimSpace(builtin.CellText(v))) {
	case "true", "t", "yes", "y", "si", "sí":
		return true, true
	case "false", "f", "no", "n":
		return false, true
	}
	return false, false
}

// looksLikeDate accepts time values and date text, but not numbers: every
// small integer is also a valid spreadsheet serial.
func looksLikeDate(v any) bool {
	if _, isNum := builtin.ParseNumber(v); isNum {
		return false
	}
	_, ok := builtin.ParseDate(v)
	return ok
}

// Render writes the report as an aligned text table.
func (r Report) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "source=%s rows=%d cols=%d\n", r.Name, r.Rows, len(r.Columns)); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "idx\theader\ttype\tnon_empty\tunique\tratio\tsamples")
	for _, c := range r.Columns {
		unique := fmt.Sprint(c.Distinct)
		if c.Capped {
			unique += "+"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%.1f%%\t%s\n",
			c.Index, c.Header, c.Type, c.NonEmpty, unique, c.Ratio()*100, strings.Join(quoteAll(c.Samples), ", "))
	}
	return tw.Flush()
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// Candidates returns the columns whose header or samples contain needle
// (trimmed, case-insensitive), in column order. It helps locate a role whose
// position drifted.
func (r Report) Candidates(needle string) []Column {
	needle = builtin.Simple(needle)
	if needle == "" {
		return nil
	}
	var out []Column
	for _, c := range r.Columns {
		hit := strings.Contains(builtin.Simple(c.Header), needle)
		for _, s := range c.Samples {
			if hit {
				break
			}
			hit = strings.Contains(builtin.Simple(s), needle)
		}
		if hit {
			out = append(out, c)
		}
	}
	return out
}

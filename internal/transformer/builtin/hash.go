// Package builtin contains the cell-level helpers shared by every job:
// key canonicalization, tolerant number/date parsing and row hashing.
package builtin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RowHash computes a deterministic SHA-256 over selected columns of a row.
//
// Warehouse fact tables carry it as row_hash so a reload can be compared with
// the previous one without relying on surrogate keys, which are renumbered on
// every run.
//
// Canonicalization rules:
//   - Fields are concatenated in the given order using Separator.
//   - Missing columns and nil cells are encoded as a single NUL byte so missing
//     differs from empty-string.
//   - time.Time values are encoded as RFC3339Nano in UTC.
//   - Output is a lowercase hex string (length 64).
type RowHash struct {
	// Fields is the ordered list of columns hashed. Empty means all columns.
	Fields []string

	// IncludeFieldNames includes "field=value" in the canonical form.
	IncludeFieldNames bool

	// Separator between components. Defaults to ASCII Unit Separator (0x1f).
	Separator string

	// TrimSpace trims edge whitespace of string cells before hashing.
	TrimSpace bool
}

// Sum hashes row, whose cells are laid out as columns.
func (h RowHash) Sum(columns []string, row []any) string {
	sep := h.Separator
	if sep == "" {
		sep = "\x1f"
	}
	fields := h.Fields
	if len(fields) == 0 {
		fields = columns
	}

	var b strings.Builder
	b.Grow(len(fields) * 20)
	for i, f := range fields {
		if i > 0 {
			b.WriteString(sep)
		}
		if h.IncludeFieldNames {
			b.WriteString(f)
			b.WriteByte('=')
		}
		ix := indexOf(columns, f)
		if ix < 0 || ix >= len(row) || row[ix] == nil {
			b.WriteByte('\x00')
			continue
		}
		appendCanonicalValue(&b, row[ix], h.TrimSpace)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

// appendCanonicalValue appends a stable representation of v without going
// through fmt for the common cell types.
func appendCanonicalValue(b *strings.Builder, v any, trimSpace bool) {
	switch t := v.(type) {
	case string:
		if trimSpace && HasEdgeSpace(t) {
			t = strings.TrimSpace(t)
		}
		b.WriteString(t)
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		b.WriteString(tt.Format(time.RFC3339Nano))
	default:
		b.WriteString(fmt.Sprint(t))
	}
}

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace. It lets
// hot paths skip strings.TrimSpace allocations for already-clean values.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	return isSpace(s[0]) || isSpace(s[len(s)-1])
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

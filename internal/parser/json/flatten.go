package json

import (
	"encoding/json"
	"strings"

	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// Flatten turns records into a table. Nested object keys are joined with sep
// ("GENERAL.DIAS" or "GENERAL_DIAS"); columns appear in first-seen order across
// all records, and keys a record lacks are nil.
//
// Cell types: numbers become float64, strings stay strings, booleans stay
// bool, null becomes nil, and arrays of scalars are joined with ", ".
func Flatten(records []*Object, sep string) *table.Table {
	var cols []string
	pos := map[string]int{}
	flat := make([]map[string]any, len(records))

	for i, rec := range records {
		m := map[string]any{}
		flattenInto(m, "", rec, sep, func(k string) {
			if _, ok := pos[k]; !ok {
				pos[k] = len(cols)
				cols = append(cols, k)
			}
		})
		flat[i] = m
	}

	out := table.New(cols...)
	out.Rows = make([][]any, 0, len(flat))
	for _, m := range flat {
		row := make([]any, len(cols))
		for k, v := range m {
			row[pos[k]] = v
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func flattenInto(dst map[string]any, prefix string, obj *Object, sep string, seen func(string)) {
	for _, k := range obj.Keys {
		name := k
		if prefix != "" {
			name = prefix + sep + k
		}
		switch v := obj.Values[k].(type) {
		case *Object:
			if len(v.Keys) == 0 {
				seen(name)
				dst[name] = nil
				continue
			}
			flattenInto(dst, name, v, sep, seen)
		default:
			seen(name)
			dst[name] = scalar(v)
		}
	}
}

func scalar(v any) any {
	switch x := v.(type) {
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if e == nil {
				continue
			}
			if o, ok := e.(*Object); ok {
				parts = append(parts, objectText(o))
				continue
			}
			parts = append(parts, builtin.CellText(scalar(e)))
		}
		return strings.Join(parts, ", ")
	default:
		return x
	}
}

func objectText(o *Object) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range o.Keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(builtin.CellText(scalar(o.Values[k])))
	}
	b.WriteByte('}')
	return b.String()
}

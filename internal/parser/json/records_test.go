package json

import (
	"errors"
	"strings"
	"testing"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := Decode(strings.NewReader(s))
	if err != nil {
		t.Fatalf("Decode(%q): %v", s, err)
	}
	return v
}

// TestRecords_Shapes verifies record-list detection for the document shapes
// the APIs return.
//
// Edge cases:
//   - Envelope fields that hold scalars or scalar arrays are skipped.
//   - A lone object is treated as one record.
func TestRecords_Shapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want int
	}{
		{name: "root_array", in: `[{"a":1},null,{"a":2}]`, want: 2},
		{name: "envelope", in: `{"status":"ok","tags":["x"],"rows":[{"a":1},{"a":2},{"a":3}]}`, want: 3},
		{name: "single_object", in: `{"a":1,"b":{"c":2}}`, want: 1},
		{name: "empty_envelope_list_skipped", in: `{"empty":[],"a":1}`, want: 1},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			recs, err := Records(mustDecode(t, tc.in))
			if err != nil {
				t.Fatalf("Records: %v", err)
			}
			if len(recs) != tc.want {
				t.Fatalf("got %d records, want %d", len(recs), tc.want)
			}
		})
	}
}

func TestRecords_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Records(mustDecode(t, `[1,2]`)); err == nil {
		t.Fatalf("expected error for scalar array")
	}
	if _, err := Records(mustDecode(t, `"x"`)); err == nil {
		t.Fatalf("expected error for scalar root")
	}
	if _, err := Decode(strings.NewReader(`{"a":`)); err == nil {
		t.Fatalf("expected error for truncated json")
	}
	if _, err := Decode(strings.NewReader(`{} {}`)); err == nil {
		t.Fatalf("expected error for trailing data")
	}
}

func TestField(t *testing.T) {
	t.Parallel()

	root := mustDecode(t, `{"ok":true,"data":[{"id":1}]}`)
	recs, err := Field(root, "data")
	if err != nil || len(recs) != 1 {
		t.Fatalf("Field(data)=%v, %v", recs, err)
	}
	if _, err := Field(root, "missing"); !errors.Is(err, ErrNoRecords) {
		t.Fatalf("Field(missing) err=%v, want ErrNoRecords", err)
	}
}

func TestFirstList(t *testing.T) {
	t.Parallel()

	root := mustDecode(t, `{"meta":{"n":0},"data":[],"other":[{"a":1}]}`)
	recs, err := FirstList(root)
	if err != nil {
		t.Fatalf("FirstList: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("FirstList should stop at the first list field, got %d records", len(recs))
	}
}

func TestFlatten_OrderAndNesting(t *testing.T) {
	t.Parallel()

	root := mustDecode(t, `[
		{"date":"2025-01-01","planta":"P1","GENERAL":{"DIAS":5,"X":null},"tags":["a","b"]},
		{"date":"2025-01-02","extra":true,"GENERAL":{"DIAS":6}}
	]`)
	recs, err := Records(root)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	tb := Flatten(recs, "_")

	wantCols := []string{"date", "planta", "GENERAL_DIAS", "GENERAL_X", "tags", "extra"}
	if strings.Join(tb.Columns, ",") != strings.Join(wantCols, ",") {
		t.Fatalf("columns=%v, want %v", tb.Columns, wantCols)
	}
	if tb.Rows[0][2] != 5.0 || tb.Rows[1][2] != 6.0 {
		t.Fatalf("numbers not flattened to float64: %v", tb.Rows)
	}
	if tb.Rows[0][4] != "a, b" {
		t.Fatalf("array join=%v", tb.Rows[0][4])
	}
	if tb.Rows[1][1] != nil || tb.Rows[1][5] != true {
		t.Fatalf("missing keys should be nil: %v", tb.Rows[1])
	}
}

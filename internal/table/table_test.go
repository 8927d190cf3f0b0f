package table

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Table {
	t := New("concept", "value")
	t.Append("A", "10")
	t.Append("B", "-")
	t.Append("A", "20")
	t.Append("C", nil)
	return t
}

func TestSelectPositions_OutOfRange(t *testing.T) {
	t.Parallel()

	_, err := sample().SelectPositions([]int{0, 11}, []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnOutOfRange))
}

func TestSelectPositions_ShortRowsYieldNil(t *testing.T) {
	t.Parallel()

	src := &Table{Columns: []string{"0", "1", "2"}, Rows: [][]any{{"x"}, {"a", "b", "c"}}}
	got, err := src.SelectPositions([]int{2, 0}, []string{"c", "a"})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, "x"}, got.Rows[0])
	assert.Equal(t, []any{"c", "a"}, got.Rows[1])
}

func TestFilter_PlaceholderRowsRemoved(t *testing.T) {
	t.Parallel()

	src := New("k", "v")
	for _, v := range []string{"1", "2", "-", "3", "4", "5"} {
		src.Append("x", v)
	}
	got := src.Filter(func(r Row) bool { return r.String("v") != "-" })
	assert.Equal(t, 5, got.Len())
	assert.Equal(t, 6, src.Len(), "input must not be mutated")
}

func TestDistinct_KeepsFirstAndIsIdempotent(t *testing.T) {
	t.Parallel()

	once, err := sample().Distinct("concept")
	require.NoError(t, err)
	require.Equal(t, 3, once.Len())
	assert.Equal(t, "10", once.Rows[0][1], "first occurrence wins")

	twice, err := once.Distinct("concept")
	require.NoError(t, err)
	assert.Equal(t, once.Rows, twice.Rows)
}

func TestDistinct_MissingKey(t *testing.T) {
	t.Parallel()

	_, err := sample().Distinct("nope")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestConcat_UnionOfColumns(t *testing.T) {
	t.Parallel()

	a := New("x", "y")
	a.Append(1, 2)
	b := New("y", "z")
	b.Append(3, 4)

	got := Concat(a, nil, b)
	assert.Equal(t, []string{"x", "y", "z"}, got.Columns)
	assert.Equal(t, [][]any{{1, 2, nil}, {nil, 3, 4}}, got.Rows)
}

func TestDropFirstAndPromoteHeader(t *testing.T) {
	t.Parallel()

	src := &Table{Columns: []string{"0", "1"}, Rows: [][]any{{"Concepto ", "Dias"}, {"A", "1"}, {"B", ""}}}

	got := src.PromoteHeader(func(v any) string { return FormatCell(v) })
	assert.Equal(t, []string{"Concepto ", "Dias"}, got.Columns)
	assert.Equal(t, 2, got.Len())

	dropped := src.DropFirst()
	assert.Equal(t, 2, dropped.Len())
	assert.Equal(t, "A", dropped.Rows[0][0])
}

func TestMelt_IsLossless(t *testing.T) {
	t.Parallel()

	src := New("date", "plant", "REAL", "META")
	src.Append("2025-01-01", "P1", 1.5, nil)
	src.Append("2025-01-02", "P1", 2.0, 3.0)

	got, err := src.Melt([]string{"date", "plant"}, []string{"REAL", "META"}, "type", "value", nil)
	require.NoError(t, err)

	var before, after []string
	for _, r := range src.Rows {
		for j, c := range []string{"REAL", "META"} {
			if v := r[2+j]; v != nil {
				before = append(before, FormatCell(r[0])+"|"+FormatCell(r[1])+"|"+c+"|"+FormatCell(v))
			}
		}
	}
	for _, r := range got.Rows {
		after = append(after, FormatCell(r[0])+"|"+FormatCell(r[1])+"|"+FormatCell(r[2])+"|"+FormatCell(r[3]))
	}
	sort.Strings(before)
	sort.Strings(after)
	assert.Equal(t, before, after)
}

func TestJoin_LeftKeepsUnmatchedAndNeverDuplicates(t *testing.T) {
	t.Parallel()

	facts := New("client", "amount")
	facts.Append("ana", 1)
	facts.Append("bob", 2)
	facts.Append("zed", 3)
	facts.Append(nil, 4)

	dim := New("client", "key")
	dim.Append("ANA", int64(1))
	dim.Append("Bob ", int64(2))

	upper := func(v any) string {
		s := FormatCell(v)
		out := []rune{}
		for _, r := range s {
			if r == ' ' {
				continue
			}
			if r >= 'a' && r <= 'z' {
				r -= 'a' - 'A'
			}
			out = append(out, r)
		}
		return string(out)
	}

	got, err := facts.Join(dim, JoinSpec{LeftOn: []string{"client"}, RightOn: []string{"client"}, Kind: Left, KeyFunc: upper})
	require.NoError(t, err)
	require.Equal(t, facts.Len(), got.Len())
	assert.Equal(t, []string{"client", "amount", "key"}, got.Columns)
	assert.Equal(t, int64(1), got.Rows[0][2])
	assert.Equal(t, int64(2), got.Rows[1][2])
	assert.Nil(t, got.Rows[2][2])
	assert.Nil(t, got.Rows[3][2])

	inner, err := facts.Join(dim, JoinSpec{LeftOn: []string{"client"}, RightOn: []string{"client"}, KeyFunc: upper})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Len())
}

func TestJoin_SuffixOnClash(t *testing.T) {
	t.Parallel()

	l := New("k", "v")
	l.Append("a", 1)
	r := New("rk", "v")
	r.Append("a", 2)

	got, err := l.Join(r, JoinSpec{LeftOn: []string{"k"}, RightOn: []string{"rk"}, Kind: Inner, KeepRightKeys: true, Suffix: "_cat"})
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "v", "rk", "v_cat"}, got.Columns)
}

func TestPivotSum_GroupsAndEnsuresColumns(t *testing.T) {
	t.Parallel()

	src := New("date", "concept", "type", "value")
	src.Append("d1", "c1", "REAL", "10")
	src.Append("d1", "c1", "REAL", 5.0)
	src.Append("d1", "c1", "META", "$ 1,000")
	src.Append("d2", "c1", "UNKNOWN", 7.0)
	src.Append("d2", "c2", "META", 2.0)

	got, err := src.PivotSum(PivotSpec{
		Group:   []string{"date", "concept", "absent"},
		Label:   "type",
		Value:   "value",
		Columns: map[string]string{"REAL": "Real", "META": "Meta"},
		Order:   []string{"Real", "Meta", "Valor Tope"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "concept", "Real", "Meta", "Valor Tope"}, got.Columns)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, []any{"d1", "c1", 15.0, 1000.0, 0.0}, got.Rows[0])
	assert.Equal(t, []any{"d2", "c2", 0.0, 2.0, 0.0}, got.Rows[1])
}

func TestAddIndexAndReorder(t *testing.T) {
	t.Parallel()

	got := sample().AddIndex("Key", 1).Reorder("Key")
	assert.Equal(t, []string{"Key", "concept", "value"}, got.Columns)
	for i, r := range got.Rows {
		assert.Equal(t, int64(i+1), r[0])
	}
}

func TestSampleKeys(t *testing.T) {
	t.Parallel()

	got := sample().SampleKeys([]string{"concept"}, 5, nil)
	assert.Equal(t, []string{"A", "B", "C"}, got)
}

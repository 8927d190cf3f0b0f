package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWarehouse struct{}

func (fakeWarehouse) Close() {}
func (fakeWarehouse) ReplaceTable(context.Context, TableSpec, [][]any) (int64, error) {
	return 0, nil
}

func TestRegisterAndOpen(t *testing.T) {
	Register("fake-test", func(context.Context, Config) (Warehouse, error) { return fakeWarehouse{}, nil })

	w, err := Open(context.Background(), Config{Kind: "fake-test"})
	require.NoError(t, err)
	assert.NotNil(t, w)
	assert.Contains(t, Kinds(), "fake-test")

	_, err = Open(context.Background(), Config{Kind: "nope"})
	require.Error(t, err)
	_, err = Open(context.Background(), Config{})
	require.Error(t, err)

	assert.Panics(t, func() { Register("fake-test", func(context.Context, Config) (Warehouse, error) { return nil, nil }) })
	assert.Panics(t, func() { Register("", func(context.Context, Config) (Warehouse, error) { return nil, nil }) })
	assert.Panics(t, func() { Register("nil-factory", nil) })
}

func TestInferSpec(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := [][]any{
		{int64(1), 1.5, day, day, "x", nil, int64(1), true},
		{int64(2), int64(2), day, day.Add(time.Hour), 3.0, nil, "a", nil},
	}
	spec := InferSpec("t", []string{"i", "r", "d", "ts", "mixed", "empty", "txt", "b"}, rows)

	want := []ColumnType{TypeInteger, TypeReal, TypeDate, TypeTimestamp, TypeText, TypeText, TypeText, TypeBool}
	for i, c := range spec.Columns {
		assert.Equal(t, want[i], c.Type, "column %s", c.Name)
	}
}

func TestWithRowHash_StableAndContentSensitive(t *testing.T) {
	t.Parallel()

	spec := TableSpec{Name: "f", Columns: []ColumnSpec{{Name: "a", Type: TypeText}, {Name: "b", Type: TypeReal}}}
	s1, r1 := WithRowHash(spec, [][]any{{"x", 1.0}, {"x ", 1.0}, {"x", 2.0}})

	require.Equal(t, []string{"a", "b", RowHashColumn}, s1.ColumnNames())
	assert.Len(t, r1[0][2], 64)
	assert.Equal(t, r1[0][2], r1[1][2], "edge space is trimmed before hashing")
	assert.NotEqual(t, r1[0][2], r1[2][2])
	assert.Len(t, spec.Columns, 2, "input spec is not modified")
}

func TestBatches(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 7)
	got := Batches(rows, 3, 9)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 3)
	assert.Len(t, got[2], 1)
	assert.Nil(t, Batches(nil, 3, 9))
	assert.Len(t, Batches(rows, 10, 5), 7)
}

func TestValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(3), Value(3.0, TypeInteger))
	assert.Nil(t, Value(3.5, TypeInteger))
	assert.Equal(t, "3", Value(3.0, TypeText))
	assert.Equal(t, 1234.5, Value("$ 1,234.5", TypeReal))
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), Value("2025-01-02 10:00:00", TypeDate))
	assert.Nil(t, Value(nil, TypeText))
	assert.Nil(t, Value("x", TypeBool))
}

func TestTableSpecValidate(t *testing.T) {
	t.Parallel()

	assert.Error(t, TableSpec{}.Validate())
	assert.Error(t, TableSpec{Name: "t"}.Validate())
	assert.Error(t, TableSpec{Name: "t", Columns: []ColumnSpec{{Name: "a"}, {Name: "a"}}}.Validate())
	assert.NoError(t, TableSpec{Name: "t", Columns: []ColumnSpec{{Name: "a"}}}.Validate())
}

package probe

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbietl/internal/table"
)

func sampleTable() *table.Table {
	t := table.New("0", "1", "2", "3", "4")
	t.Append("Ventas Netas", "3", "2025-03-03", "si", 1.5)
	t.Append("Horas", "5.0", time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), "no", "2")
	t.Append("Horas", nil, "2025-03-05", "  ", "x")
	t.Append("  ", "7", nil, nil, nil)
	return t
}

func TestProfile_Types(t *testing.T) {
	t.Parallel()

	rep := Profile("desempeno", sampleTable(), 2)
	require.Len(t, rep.Columns, 5)
	assert.Equal(t, 4, rep.Rows)

	tests := []struct {
		idx      int
		typ      string
		nonEmpty int
		distinct int
		samples  []string
	}{
		{0, "text", 3, 2, []string{"Ventas Netas", "Horas"}},
		{1, "integer", 3, 3, []string{"3", "5.0"}},
		{2, "date", 3, 3, []string{"2025-03-03", "2025-03-04"}},
		{3, "boolean", 2, 2, []string{"si", "no"}},
		{4, "text", 3, 3, []string{"1.5", "2"}},
	}
	for _, tt := range tests {
		c := rep.Columns[tt.idx]
		assert.Equal(t, tt.typ, c.Type, "column %d", tt.idx)
		assert.Equal(t, tt.nonEmpty, c.NonEmpty, "column %d", tt.idx)
		assert.Equal(t, tt.distinct, c.Distinct, "column %d", tt.idx)
		assert.Equal(t, tt.samples, c.Samples, "column %d", tt.idx)
	}
}

func TestProfile_FloatAndEmpty(t *testing.T) {
	t.Parallel()

	tb := table.New("a", "b")
	tb.Append("1.5", nil)
	tb.Append("$ 1,200", "")
	rep := Profile("x", tb, 5)
	assert.Equal(t, "float", rep.Columns[0].Type)
	assert.Equal(t, "text", rep.Columns[1].Type)
	assert.Zero(t, rep.Columns[1].Ratio())
	assert.InDelta(t, 1.0, rep.Columns[0].Ratio(), 1e-9)
}

func TestReport_Render(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	require.NoError(t, Profile("desempeno", sampleTable(), 1).Render(&b))
	out := b.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "source=desempeno rows=4 cols=5", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "idx"))
	assert.Contains(t, lines[2], `"Ventas Netas"`)
	assert.Contains(t, lines[3], "integer")
}

func TestReport_Candidates(t *testing.T) {
	t.Parallel()

	rep := Profile("desempeno", sampleTable(), 5)
	got := rep.Candidates(" horas ")
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Index)
	assert.Nil(t, rep.Candidates(""))
}

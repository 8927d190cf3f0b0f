package star

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbietl/internal/table"
)

func datos() *table.Table {
	t := table.New("Fecha", "planta", "Division", "Reporte", "Concepto", "Real")
	t.Append("2025-01-01", "P1", "Norte", "Ventas 360", " Ventas ", 10.0)
	t.Append("2025-01-01", "P2", "Sur", "Ventas 360", "Ventas", 5.0)
	t.Append("2025-01-02", "P1", "Norte", "Produccion 360", "Ton", 3.0)
	t.Append("2025-01-02", "P9", "Sur", "Nada", "Nada", 1.0)
	return t
}

func TestBuildDimension_CompositeKeyAndNumbering(t *testing.T) {
	t.Parallel()

	dim, err := BuildDimension(datos(), DimensionSpec{
		Columns:  []string{"Concepto", "Reporte"},
		Natural:  NaturalKey{Name: "IdConcepto", Parts: []string{"Reporte", "Concepto"}},
		DedupeOn: []string{"IdConcepto"},
		KeyName:  "Key_Conceptos",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Concepto", "Reporte", "IdConcepto", "Key_Conceptos"}, dim.Columns)
	require.Equal(t, 3, dim.Len(), "trimmed parts collapse ' Ventas ' and 'Ventas'")
	assert.Equal(t, "Ventas 360|Ventas", dim.Rows[0][2])
	require.NoError(t, CheckKeys(dim, "Key_Conceptos"))
}

func TestBuildDimension_KeyFirstAndMissingColumn(t *testing.T) {
	t.Parallel()

	dim, err := BuildDimension(datos(), DimensionSpec{Columns: []string{"planta"}, KeyName: "Key_PlantasCte", KeyFirst: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Key_PlantasCte", "planta"}, dim.Columns)
	assert.Equal(t, 3, dim.Len())

	_, err = BuildDimension(datos(), DimensionSpec{Columns: []string{"Cliente"}, KeyName: "Key_Cliente"})
	require.ErrorIs(t, err, table.ErrMissingColumn)
}

func TestCheckKeys_Detects(t *testing.T) {
	t.Parallel()

	d := table.New("k")
	d.Append(int64(1))
	d.Append(int64(3))
	require.Error(t, CheckKeys(d, "k"))
}

func TestResolveFacts_LeftJoinKeepsRowCount(t *testing.T) {
	t.Parallel()

	facts := datos()
	plantas, err := BuildDimension(facts, DimensionSpec{
		Columns: []string{"planta", "Division"},
		Natural: NaturalKey{Name: "IdPlanta", Parts: []string{"planta", "Division"}},
		KeyName: "Key_Plantas",
	})
	require.NoError(t, err)
	plantas = plantas.Filter(func(r table.Row) bool { return r.String("planta") != "P9" })

	facts = facts.Map("IdPlanta", func(r table.Row) any {
		return NaturalKey{Parts: []string{"planta", "Division"}}.Value(r)
	})
	got, err := ResolveFacts(facts, []Lookup{{
		Dimension: plantas, FactOn: []string{"IdPlanta"}, DimOn: []string{"IdPlanta"}, KeyName: "Key_Plantas",
	}}, Options{Drop: []string{"planta", "Division", "IdPlanta"}})
	require.NoError(t, err)

	require.Equal(t, facts.Len(), got.Len())
	assert.Equal(t, []string{"Fecha", "Reporte", "Concepto", "Real", "Key_Plantas"}, got.Columns)
	keys, _ := got.Col("Key_Plantas")
	assert.Equal(t, []any{int64(1), int64(2), int64(1), nil}, keys)
	assert.Equal(t, 1, Unresolved(got, "Key_Plantas"))
}

type lines []string

func (l *lines) Printf(format string, args ...any) { *l = append(*l, fmt.Sprintf(format, args...)) }

func upperKey(v any) string { return strings.ToUpper(strings.TrimSpace(table.FormatCell(v))) }

func TestResolveFacts_CollidingMembersKeepFirst(t *testing.T) {
	t.Parallel()

	dim := table.New("planta", "Key")
	dim.Append("Planta Norte", int64(1))
	dim.Append("PLANTA NORTE ", int64(2))
	dim.Append("Planta Sur", int64(3))
	facts := table.New("planta", "Real")
	facts.Append("planta norte", 1.0)
	facts.Append("Planta Sur", 2.0)
	facts.Append("Planta Este", 3.0)

	var lg lines
	got, err := ResolveFacts(facts, []Lookup{{Dimension: dim, FactOn: []string{"planta"}, DimOn: []string{"planta"}, KeyName: "Key"}},
		Options{KeyFunc: upperKey, Job: "fctFinanzasDiario", Logger: &lg})
	require.NoError(t, err)

	require.Equal(t, 3, got.Len())
	keys, _ := got.Col("Key")
	assert.Equal(t, []any{int64(1), int64(3), nil}, keys)
	require.Len(t, lg, 1)
	assert.Contains(t, lg[0], "job=fctFinanzasDiario key=Key colliding_members=1")
}

func TestBuildDimension_KeyFuncFoldsCaseAndSpace(t *testing.T) {
	t.Parallel()

	src := table.New("planta", "Division")
	src.Append("Planta Norte", "Industrial")
	src.Append("PLANTA NORTE", "Industrial")
	src.Append(" planta norte ", "INDUSTRIAL")
	src.Append("Planta Sur", "Comercial")
	spec := DimensionSpec{
		Columns:  []string{"planta", "Division"},
		Natural:  NaturalKey{Name: "IdPlanta", Parts: []string{"planta", "Division"}},
		DedupeOn: []string{"IdPlanta"},
		KeyName:  "Key_Plantas",
	}

	exact, err := BuildDimension(src, spec)
	require.NoError(t, err)
	assert.Equal(t, 4, exact.Len())

	spec.KeyFunc = upperKey
	dim, err := BuildDimension(src, spec)
	require.NoError(t, err)
	require.Equal(t, 2, dim.Len())
	assert.Equal(t, []any{"Planta Norte", "Industrial", "Planta Norte|Industrial", int64(1)}, dim.Rows[0])
	require.NoError(t, CheckKeys(dim, "Key_Plantas"))

	// Facts resolved with the same function find every variant.
	facts := src.Map("IdPlanta", func(r table.Row) any { return spec.Natural.Value(r) })
	var lg lines
	got, err := ResolveFacts(facts, []Lookup{{Dimension: dim, FactOn: []string{"IdPlanta"}, DimOn: []string{"IdPlanta"}, KeyName: "Key_Plantas"}},
		Options{KeyFunc: upperKey, Logger: &lg})
	require.NoError(t, err)
	keys, _ := got.Col("Key_Plantas")
	assert.Equal(t, []any{int64(1), int64(1), int64(1), int64(2)}, keys)
	assert.Empty(t, lg)
}

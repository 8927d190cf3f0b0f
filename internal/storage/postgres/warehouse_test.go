package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pbietl/internal/storage"
)

func TestBuildInsertSQL_PlaceholderNumbering(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL("bi.DimEmpleado", []string{"Key_Empleado", "Empleado"}, [][]any{
		{int64(1), "Ana"},
		{int64(2), "Luis"},
	})
	assert.Equal(t, `INSERT INTO "bi"."DimEmpleado" ("Key_Empleado", "Empleado") VALUES ($1, $2), ($3, $4);`, q)
	assert.Equal(t, []any{int64(1), "Ana", int64(2), "Luis"}, args)
}

func TestBuildReplaceDDL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec storage.TableSpec
		want []string
	}{
		{
			name: "unqualified",
			spec: storage.TableSpec{Name: "DimPlanta", Columns: []storage.ColumnSpec{
				{Name: "planta", Type: storage.TypeText},
				{Name: "Key_Plantas", Type: storage.TypeInteger},
			}},
			want: []string{
				`DROP TABLE IF EXISTS "DimPlanta";`,
				`CREATE TABLE "DimPlanta" ("planta" TEXT, "Key_Plantas" BIGINT);`,
			},
		},
		{
			name: "qualified_with_types",
			spec: storage.TableSpec{Name: "bi.fct", Columns: []storage.ColumnSpec{
				{Name: "Fecha", Type: storage.TypeDate},
				{Name: "Real", Type: storage.TypeReal},
				{Name: "Fecha Inicio", Type: storage.TypeTimestamp},
				{Name: "ok", Type: storage.TypeBool},
			}},
			want: []string{
				`CREATE SCHEMA IF NOT EXISTS "bi";`,
				`DROP TABLE IF EXISTS "bi"."fct";`,
				`CREATE TABLE "bi"."fct" ("Fecha" DATE, "Real" DOUBLE PRECISION, "Fecha Inicio" TIMESTAMP, "ok" BOOLEAN);`,
			},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, buildReplaceDDL(tc.spec))
		})
	}
}

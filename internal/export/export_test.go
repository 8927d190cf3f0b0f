package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pbietl/internal/table"
)

func sample() *table.Table {
	t := table.New("Fecha", "planta", "Real", "Key")
	t.Append(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), "P1", 10.5, int64(1))
	t.Append(time.Date(2025, 2, 4, 9, 30, 0, 0, time.UTC), nil, 0.0, int64(2))
	return t
}

func TestExport_XLSXHeaderSheetAndDates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "fctAtencionClientes.xlsx")
	require.NoError(t, Files{}.Export(context.Background(), sample(), Target{Path: path, Sheet: "fctAtencionClientes"}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"fctAtencionClientes"}, f.GetSheetList())
	rows, err := f.GetRows("fctAtencionClientes")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Fecha", "planta", "Real", "Key"}, rows[0])
	assert.Equal(t, "2025-02-03", rows[1][0])
	assert.Equal(t, "P1", rows[1][1])
	assert.Equal(t, "2025-02-04 09:30:00", rows[2][0])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is renamed away")
}

func TestExport_CSVWithBOM(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Ext_Datos.csv")
	require.NoError(t, Files{}.Export(context.Background(), sample(), Target{Path: path}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("\uFEFF")))
	assert.Equal(t, "\uFEFFFecha,planta,Real,Key\n2025-02-03,P1,10.5,1\n2025-02-04 09:30:00,,0,2\n", string(b))
}

func TestExport_FailureKeepsPreviousFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	err := Files{}.Export(context.Background(), sample(), Target{Path: path, Sheet: "bad/name[]"})
	require.Error(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(b))
}

func TestExport_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Files{}.Export(ctx, sample(), Target{Path: filepath.Join(t.TempDir(), "x.xlsx")})
	require.ErrorIs(t, err, context.Canceled)
}

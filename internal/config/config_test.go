package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbietl/internal/datasource"
)

func TestDefault_ReproducesProductionSources(t *testing.T) {
	t.Parallel()

	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTP.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Metrics.FlushEvery)

	pf, ok := cfg.Source(SourceProdFlag)
	require.True(t, ok)
	assert.Equal(t, SourceProdFlag, pf.Name)
	assert.Equal(t, datasource.KindCSVURL, pf.Kind)
	assert.True(t, pf.ExportFromEdit)
	assert.Equal(t, 9, pf.SkipRows)
	assert.Equal(t, map[string]int{"concepto": 1, "reporte": 5, "flag": 8}, pf.Columns)

	at, _ := cfg.Source(SourceAtencionAPI)
	assert.Equal(t, "servicio-cliente", at.Params["op"])
	assert.Equal(t, "Mozilla/5.0", at.Headers["User-Agent"])
	assert.Equal(t, "data", at.JSONField)

	de, _ := cfg.Source(SourceDesempeno)
	assert.Equal(t, "NUEVO DESEMPEÑO", de.Sheet)
	assert.Equal(t, 11, de.Columns["dias"])

	assert.Empty(t, Validate(cfg))
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pbietl.yaml")
	doc := `
output_dir: /data/out
input_dir: /data/in
warehouse:
  kind: sqlite
  dsn: ${PBIETL_TEST_DB}
sources:
  kpi_api:
    url: https://example.test/api
  maquinas_local:
    kind: csv_file
    path: maquinas.csv
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("PBIETL_TEST_DB", "file:wh.db")
	t.Setenv("PBIETL_INPUT_DIR", "/env/in")
	t.Setenv("PBIETL_SOURCES__DIAS_API__TIMEOUT", "5s")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("output-dir", "", "")
	fs.String("metrics-backend", "", "")
	require.NoError(t, fs.Parse([]string{"--output-dir", "/flag/out"}))

	cfg, err := Load(Options{File: path, Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "/flag/out", cfg.OutputDir, "flag beats file")
	assert.Equal(t, "/env/in", cfg.InputDir, "env beats file")
	assert.Equal(t, "none", cfg.Metrics.Backend, "unset flag keeps default")
	assert.Equal(t, "file:wh.db", cfg.Warehouse.DSN)

	kpi, _ := cfg.Source(SourceKPIAPI)
	assert.Equal(t, "https://example.test/api", kpi.URL)
	assert.Equal(t, ".", kpi.FlattenSep, "file overrides one field, default keeps the rest")

	dias, _ := cfg.Source(SourceDiasAPI)
	assert.Equal(t, "5s", dias.Timeout)

	local, ok := cfg.Source("maquinas_local")
	require.True(t, ok)
	assert.Equal(t, datasource.KindCSVFile, local.Kind)
	assert.Equal(t, filepath.Join("/env/in", "x.xlsx"), cfg.InputPath("x.xlsx"))
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(Options{File: filepath.Join(t.TempDir(), "none.yaml"), NoEnv: true})
	require.Error(t, err)
}

func TestValidate_Issues(t *testing.T) {
	t.Parallel()

	cfg, err := Default()
	require.NoError(t, err)

	cfg.Sources["bad_kind"] = datasource.Spec{Kind: "ftp"}
	cfg.Sources["no_path"] = datasource.Spec{Kind: datasource.KindXLSX}
	cfg.Sources["bad_url"] = datasource.Spec{Kind: datasource.KindJSONURL, URL: "kpis/api", Timeout: "soon"}
	m := cfg.Sources[SourceMaquinas]
	m.Columns = map[string]int{"concepto": 0, "real": 0, "meta": -1}
	cfg.Sources[SourceMaquinas] = m
	cfg.Metrics.Backend = "statsd"
	cfg.Warehouse.Kind = "postgres"
	delete(cfg.Sources, SourceFestivos)

	issues := Validate(cfg)
	require.True(t, HasErrors(issues))

	got := map[string]Severity{}
	for _, i := range issues {
		got[i.Path] = i.Severity
	}
	for _, p := range []string{
		"sources.bad_kind.kind",
		"sources.no_path.path",
		"sources.bad_url.url",
		"sources.bad_url.timeout",
		"sources.conceptos_maquinas.columns.orden",
		"sources.conceptos_maquinas.columns.real",
		"sources.conceptos_maquinas.columns.meta",
		"metrics.backend",
		"warehouse.dsn",
	} {
		assert.Equal(t, SeverityError, got[p], "path %s", p)
	}
	assert.Equal(t, SeverityWarning, got["sources.festivos"])
}

// Package config loads the pipeline configuration: directories, source
// specs, orchestrator command, metrics and the optional warehouse sink.
//
// Precedence (highest first): explicitly set flags, PBIETL_* environment
// variables, the YAML config file, built-in defaults. The defaults reproduce
// the production paths and URLs, so running without a file behaves like the
// hand-maintained scripts did.
package config

import (
	"sort"
	"time"

	"pbietl/internal/datasource"
)

// Source names used by the jobs.
const (
	SourceKPIAPI       = "kpi_api"
	SourceDiasAPI      = "dias_api"
	SourceAtencionAPI  = "atencion_api"
	SourceCatalogo     = "catalogo_reporte"
	SourceMaquinas     = "conceptos_maquinas"
	SourceProdFlag     = "prod_flag"
	SourceDesempeno    = "desempeno"
	SourceCapacidad    = "capacidad"
	SourceFestivos     = "festivos"
	DefaultConfigFile  = "pbietl.yaml"
	DefaultEnvPrefix   = "PBIETL_"
	DefaultHTTPTimeout = 30 * time.Second
)

// Config is the decoded configuration.
type Config struct {
	InputDir  string `koanf:"input_dir"`
	OutputDir string `koanf:"output_dir"`
	LogDir    string `koanf:"log_dir"`
	RulesFile string `koanf:"rules_file"`
	Verbose   bool   `koanf:"verbose"`

	HTTP         HTTPConfig                 `koanf:"http"`
	Sources      map[string]datasource.Spec `koanf:"sources"`
	Orchestrator OrchestratorConfig         `koanf:"orchestrator"`
	Metrics      MetricsConfig              `koanf:"metrics"`
	Warehouse    WarehouseConfig            `koanf:"warehouse"`

	// File is the config file that was read, empty when none.
	File string `koanf:"-"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`
}

// OrchestratorConfig overrides the child process command. Empty Command means
// the running binary with "run <job>".
type OrchestratorConfig struct {
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend    string        `koanf:"backend"`
	Tags       string        `koanf:"tags"`
	FlushEvery time.Duration `koanf:"flush_every"`
}

// WarehouseConfig enables the SQL sink when Kind is set.
type WarehouseConfig struct {
	Kind string `koanf:"kind"`
	DSN  string `koanf:"dsn"`
}

// Enabled reports whether a warehouse sink is configured.
func (w WarehouseConfig) Enabled() bool { return w.Kind != "" }

// Source returns the named source spec with its Name filled in.
func (c *Config) Source(name string) (datasource.Spec, bool) {
	s, ok := c.Sources[name]
	if !ok {
		return datasource.Spec{}, false
	}
	s.Name = name
	return s, true
}

// SourceNames returns configured source names sorted.
func (c *Config) SourceNames() []string {
	out := make([]string, 0, len(c.Sources))
	for k := range c.Sources {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const (
	kpiURL      = "https://kpis.grupo-ortiz.site/Controllers/apiController.php?op=api"
	atencionURL = "https://nominas.grupo-ortiz.site/Controllers/whatsappController.php"
	catalogURL  = "https://docs.google.com/spreadsheets/d/1EK96qUKEW2dfnRBT7NfeVouAFouUXDOvHRVVGJ8gs34/gviz/tq?tqx=out:csv&gid=0"
	maquinasURL = "https://docs.google.com/spreadsheets/d/1EK96qUKEW2dfnRBT7NfeVouAFouUXDOvHRVVGJ8gs34/gviz/tq?tqx=out:csv&gid=700246857"
	prodFlagURL = "https://docs.google.com/spreadsheets/d/1EK96qUKEW2dfnRBT7NfeVouAFouUXDOvHRVVGJ8gs34/edit?pli=1&gid=1118832498#gid=1118832498"
)

// defaults is the flat key map loaded first. Source maps are nested so a
// config file can override a single field of one source.
func defaults() map[string]any {
	return map[string]any{
		"input_dir":  ".",
		"output_dir": ".",
		"log_dir":    "logs",
		"rules_file": "",
		"verbose":    false,

		"http.timeout":    DefaultHTTPTimeout.String(),
		"http.user_agent": "pbietl/1.0",

		"metrics.backend":     "none",
		"metrics.tags":        "",
		"metrics.flush_every": "60s",

		"warehouse.kind": "",
		"warehouse.dsn":  "",

		"orchestrator.command": "",

		"sources": map[string]any{
			SourceKPIAPI: map[string]any{
				"kind":         string(datasource.KindJSONURL),
				"url":          kpiURL,
				"json_records": datasource.RecordsFirstList,
				"flatten_sep":  ".",
			},
			SourceDiasAPI: map[string]any{
				"kind":         string(datasource.KindJSONURL),
				"url":          kpiURL,
				"json_records": datasource.RecordsAuto,
				"flatten_sep":  "_",
				"timeout":      "15s",
			},
			SourceAtencionAPI: map[string]any{
				"kind":         string(datasource.KindJSONURL),
				"url":          atencionURL,
				"json_records": datasource.RecordsField,
				"json_field":   "data",
				"flatten_sep":  ".",
				"timeout":      "30s",
				"params":       map[string]any{"op": "servicio-cliente"},
				"headers": map[string]any{
					"User-Agent": "Mozilla/5.0",
					"Accept":     "application/json",
				},
			},
			SourceCatalogo: map[string]any{
				"kind": string(datasource.KindCSVURL),
				"url":  catalogURL,
			},
			SourceMaquinas: map[string]any{
				"kind":    string(datasource.KindCSVURL),
				"url":     maquinasURL,
				"columns": map[string]any{"concepto": 0, "real": 1, "meta": 2, "orden": 4},
			},
			SourceProdFlag: map[string]any{
				"kind":             string(datasource.KindCSVURL),
				"url":              prodFlagURL,
				"export_from_edit": true,
				"skip_rows":        9,
				"columns":          map[string]any{"concepto": 1, "reporte": 5, "flag": 8},
			},
			SourceDesempeno: map[string]any{
				"kind":    string(datasource.KindXLSX),
				"path":    "Datos de power bi (1).xlsx",
				"sheet":   "NUEVO DESEMPEÑO",
				"columns": map[string]any{"concepto": 1, "dias": 11},
			},
			SourceCapacidad: map[string]any{
				"kind":    string(datasource.KindXLSX),
				"path":    "catalogos/Cat_DiasLaborablesCapacidad.xlsx",
				"columns": map[string]any{"concepto": 0, "dias": 1},
			},
			SourceFestivos: map[string]any{
				"kind":       string(datasource.KindXLSX),
				"path":       "catalogos/DiasFestivos.xlsx",
				"has_header": true,
			},
		},
	}
}

// Default returns the configuration with no file, env or flags applied.
func Default() (*Config, error) {
	return Load(Options{NoFile: true, NoEnv: true})
}

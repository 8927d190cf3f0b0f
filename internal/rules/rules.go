// Package rules holds the business constants shared by the jobs as one
// versioned YAML document. The built-in copy is embedded; an override file may
// replace it.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"pbietl/internal/transformer/builtin"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultYAML []byte

// Version is the only document version this build understands.
const Version = 1

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid rules")

// BalanceColumn maps a balance type label to its pivoted column.
type BalanceColumn struct {
	Type   string `yaml:"type"`
	Column string `yaml:"column"`
}

// InventoryConcept is one simulated inventory row of the concept catalog.
type InventoryConcept struct {
	Concepto          string `yaml:"concepto"`
	Unidad            string `yaml:"unidad"`
	Seccion           string `yaml:"seccion"`
	Orden             int64  `yaml:"orden"`
	Concepto2         string `yaml:"concepto2"`
	ConceptoCapacidad string `yaml:"concepto_capacidad"`
	TipoSaldo         string `yaml:"tipo_saldo"`
	ConceptoReporte   string `yaml:"concepto_reporte"`
}

// Rules is the decoded document.
type Rules struct {
	Version                int                `yaml:"version"`
	ExcludedPlants         []string           `yaml:"excluded_plants"`
	ReportSections         []string           `yaml:"report_sections"`
	AlwaysApplicableReport string             `yaml:"always_applicable_report"`
	MachineOrder           int64              `yaml:"machine_order"`
	BalanceColumns         []BalanceColumn    `yaml:"balance_columns"`
	CatalogBalanceTypes    []string           `yaml:"catalog_balance_types"`
	CanonicalFillers       []string           `yaml:"canonical_fillers"`
	InventoryConcepts      []InventoryConcept `yaml:"inventory_concepts"`
	HeaderLabel            string             `yaml:"header_label"`
	Placeholders           []string           `yaml:"placeholders"`
	CustomerServiceRenames map[string]string  `yaml:"customer_service_renames"`
}

// Default returns the embedded rules.
func Default() (*Rules, error) {
	return Parse(defaultYAML)
}

// Load reads path, or returns Default when path is empty.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	r, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates a rules document. Unknown keys are rejected.
func Parse(b []byte) (*Rules, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	var r Rules
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the document version and the fields every job relies on.
func (r *Rules) Validate() error {
	var problems []string
	if r.Version != Version {
		problems = append(problems, fmt.Sprintf("unsupported version %d (want %d)", r.Version, Version))
	}
	if len(r.BalanceColumns) == 0 {
		problems = append(problems, "balance_columns is empty")
	}
	seen := map[string]bool{}
	for i, bc := range r.BalanceColumns {
		if strings.TrimSpace(bc.Type) == "" || strings.TrimSpace(bc.Column) == "" {
			problems = append(problems, fmt.Sprintf("balance_columns[%d] needs type and column", i))
		}
		k := builtin.Simple(bc.Type)
		if seen[k] {
			problems = append(problems, fmt.Sprintf("balance_columns[%d] duplicates type %q", i, bc.Type))
		}
		seen[k] = true
	}
	for i, t := range r.CatalogBalanceTypes {
		if !seen[builtin.Simple(t)] {
			problems = append(problems, fmt.Sprintf("catalog_balance_types[%d] %q has no balance column", i, t))
		}
	}
	if len(r.ReportSections) == 0 {
		problems = append(problems, "report_sections is empty")
	}
	if strings.TrimSpace(r.HeaderLabel) == "" {
		problems = append(problems, "header_label is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// BalanceMap returns balance type (trimmed, uppercased) to column name.
func (r *Rules) BalanceMap() map[string]string {
	m := make(map[string]string, len(r.BalanceColumns))
	for _, bc := range r.BalanceColumns {
		m[builtin.Simple(bc.Type)] = bc.Column
	}
	return m
}

// BalanceOrder returns the pivoted column names in declaration order.
func (r *Rules) BalanceOrder() []string {
	out := make([]string, len(r.BalanceColumns))
	for i, bc := range r.BalanceColumns {
		out[i] = bc.Column
	}
	return out
}

// Canonicalizer returns the key canonicalizer configured with the fillers.
func (r *Rules) Canonicalizer() builtin.Canonicalizer {
	return builtin.Canonicalizer{Fillers: r.CanonicalFillers}
}

// IsExcludedPlant compares after trim and uppercase.
func (r *Rules) IsExcludedPlant(v any) bool {
	p := builtin.SimpleKey(v)
	for _, e := range r.ExcludedPlants {
		if builtin.Simple(e) == p {
			return true
		}
	}
	return false
}

// IsPlaceholder reports whether v is empty or one of the placeholder tokens.
func (r *Rules) IsPlaceholder(v any) bool {
	return builtin.IsPlaceholder(v, r.Placeholders)
}

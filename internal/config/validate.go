package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"pbietl/internal/datasource"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// RequiredRoles lists the column roles each positional source must declare.
var RequiredRoles = map[string][]string{
	SourceMaquinas:  {"concepto", "real", "meta", "orden"},
	SourceProdFlag:  {"concepto", "reporte", "flag"},
	SourceDesempeno: {"concepto", "dias"},
	SourceCapacidad: {"concepto", "dias"},
}

var knownBackends = map[string]bool{"": true, "none": true, "datadog": true}

// Validate checks cfg before any job runs. Issues are sorted by path.
//
// Checks:
//   - Every source has a known kind and the path or URL that kind needs.
//   - Remote URLs are absolute http(s) URLs; timeouts parse.
//   - Positional sources declare their required roles with non-negative,
//     unique positions.
//   - metrics.backend is known; warehouse.kind without a DSN is an error.
//   - Missing job sources are warnings, since a single job may not need them.
func Validate(cfg *Config) []Issue {
	var out []Issue
	add := func(sev Severity, path, format string, a ...any) {
		out = append(out, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(cfg.OutputDir) == "" {
		add(SeverityError, "output_dir", "must not be empty")
	}
	if cfg.HTTP.Timeout < 0 {
		add(SeverityError, "http.timeout", "must not be negative")
	}

	for _, name := range cfg.SourceNames() {
		s := cfg.Sources[name]
		base := "sources." + name
		if !s.Kind.Valid() {
			add(SeverityError, base+".kind", "unknown kind %q (want one of %v)", s.Kind, datasource.Kinds())
			continue
		}
		if s.Kind.Remote() {
			if u, err := url.Parse(s.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				add(SeverityError, base+".url", "must be an absolute http(s) URL, got %q", s.URL)
			}
		} else if strings.TrimSpace(s.Path) == "" {
			add(SeverityError, base+".path", "required for kind %s", s.Kind)
		}
		if s.Timeout != "" {
			if d, err := time.ParseDuration(s.Timeout); err != nil || d <= 0 {
				add(SeverityError, base+".timeout", "invalid duration %q", s.Timeout)
			}
		}
		if s.SkipRows < 0 {
			add(SeverityError, base+".skip_rows", "must not be negative")
		}
		if s.JSONRecords == datasource.RecordsField && s.JSONField == "" {
			add(SeverityError, base+".json_field", "required when json_records is %q", datasource.RecordsField)
		}
		if len([]rune(s.Delimiter)) > 1 {
			add(SeverityError, base+".delimiter", "must be a single character")
		}
		out = append(out, validateColumns(base, s, RequiredRoles[name])...)
	}

	for _, name := range []string{SourceKPIAPI, SourceDiasAPI, SourceAtencionAPI, SourceCatalogo, SourceMaquinas, SourceProdFlag, SourceDesempeno, SourceCapacidad, SourceFestivos} {
		if _, ok := cfg.Sources[name]; !ok {
			add(SeverityWarning, "sources."+name, "not configured; jobs reading it will fail")
		}
	}

	if !knownBackends[cfg.Metrics.Backend] {
		add(SeverityError, "metrics.backend", "unknown backend %q", cfg.Metrics.Backend)
	}
	if cfg.Metrics.Backend == "datadog" && cfg.Metrics.FlushEvery <= 0 {
		add(SeverityWarning, "metrics.flush_every", "not positive; the datadog default applies")
	}
	if cfg.Warehouse.Kind != "" && strings.TrimSpace(cfg.Warehouse.DSN) == "" {
		add(SeverityError, "warehouse.dsn", "required when warehouse.kind is %q", cfg.Warehouse.Kind)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func validateColumns(base string, s datasource.Spec, required []string) []Issue {
	var out []Issue
	for _, role := range required {
		if _, ok := s.Columns[role]; !ok {
			out = append(out, Issue{SeverityError, base + ".columns." + role, "required column role is missing"})
		}
	}
	byPos := map[int]string{}
	roles := make([]string, 0, len(s.Columns))
	for r := range s.Columns {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	for _, r := range roles {
		p := s.Columns[r]
		if p < 0 {
			out = append(out, Issue{SeverityError, base + ".columns." + r, fmt.Sprintf("position %d is negative", p)})
			continue
		}
		if other, dup := byPos[p]; dup {
			out = append(out, Issue{SeverityError, base + ".columns." + r, fmt.Sprintf("position %d already used by %q", p, other)})
			continue
		}
		byPos[p] = r
	}
	return out
}

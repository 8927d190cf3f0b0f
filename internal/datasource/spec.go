// Package datasource turns configured source specs into raw tables.
//
// Failures are classified so logs can tell a missing file from a missing sheet
// or a bad HTTP status; LoadOrEmpty degrades any failure to an empty table.
package datasource

import (
	"fmt"
	"sort"
)

// Kind selects the reader for a source.
type Kind string

const (
	KindXLSX    Kind = "xlsx"
	KindCSVFile Kind = "csv_file"
	KindCSVURL  Kind = "csv_url"
	KindJSONURL Kind = "json_url"
	KindHTMLURL Kind = "html_url"
)

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindXLSX, KindCSVFile, KindCSVURL, KindJSONURL, KindHTMLURL}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	for _, v := range Kinds() {
		if v == k {
			return true
		}
	}
	return false
}

// Remote reports whether the kind is fetched over HTTP.
func (k Kind) Remote() bool {
	return k == KindCSVURL || k == KindJSONURL || k == KindHTMLURL
}

// JSON record-list modes.
const (
	// RecordsAuto: root list, else the first field holding objects, else the
	// root object as one record.
	RecordsAuto = "auto"
	// RecordsFirstList: the first field holding a list, even if empty.
	RecordsFirstList = "first_list"
	// RecordsField: the list under JSONField.
	RecordsField = "field"
)

// Spec describes one source. Field tags match the config file layout under
// sources.<name>.
type Spec struct {
	Name string `koanf:"-"`
	Kind Kind   `koanf:"kind"`

	// Path is a local file (xlsx, csv_file). Relative paths resolve against
	// the loader's BaseDir.
	Path string `koanf:"path"`
	// URL is fetched for remote kinds. For csv_url, an edit URL of a hosted
	// spreadsheet is converted to its CSV export when ExportFromEdit is set.
	URL            string `koanf:"url"`
	ExportFromEdit bool   `koanf:"export_from_edit"`

	Sheet     string `koanf:"sheet"`
	SkipRows  int    `koanf:"skip_rows"`
	HasHeader bool   `koanf:"has_header"`
	Delimiter string `koanf:"delimiter"`
	Selector  string `koanf:"selector"`

	Headers map[string]string `koanf:"headers"`
	Params  map[string]string `koanf:"params"`
	Timeout string            `koanf:"timeout"`

	JSONRecords string `koanf:"json_records"`
	JSONField   string `koanf:"json_field"`
	FlattenSep  string `koanf:"flatten_sep"`

	// Columns maps logical roles to zero-based positions for sources without
	// a trustworthy header.
	Columns map[string]int `koanf:"columns"`
}

// Location is the path or URL, for messages.
func (s Spec) Location() string {
	if s.Kind.Remote() {
		return s.URL
	}
	return s.Path
}

// Position returns the configured position of role.
func (s Spec) Position(role string) (int, bool) {
	p, ok := s.Columns[role]
	return p, ok
}

// Positions resolves roles in order.
//
// Errors:
//   - A role that is not configured.
func (s Spec) Positions(roles ...string) ([]int, error) {
	out := make([]int, len(roles))
	for i, r := range roles {
		p, ok := s.Columns[r]
		if !ok {
			return nil, fmt.Errorf("source %s: column role %q not configured (have %v)", s.Name, r, s.roleNames())
		}
		out[i] = p
	}
	return out, nil
}

func (s Spec) roleNames() []string {
	names := make([]string, 0, len(s.Columns))
	for k := range s.Columns {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

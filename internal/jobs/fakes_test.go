package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pbietl/internal/config"
	"pbietl/internal/datasource"
	"pbietl/internal/export"
	"pbietl/internal/rules"
	"pbietl/internal/storage"
	"pbietl/internal/table"
	"pbietl/internal/transformer/builtin"
)

// fakeIO serves configured sources by name and keeps exported files in
// memory. Exported tables are stored as text, the way a raw workbook read
// returns them, so jobs exercise the same parsing they do in production.
type fakeIO struct {
	mu      sync.Mutex
	sources map[string]*table.Table
	files   map[string]*table.Table
	targets map[string]export.Target
	specs   map[string]datasource.Spec
}

func newFakeIO() *fakeIO {
	return &fakeIO{
		sources: map[string]*table.Table{},
		files:   map[string]*table.Table{},
		targets: map[string]export.Target{},
		specs:   map[string]datasource.Spec{},
	}
}

func (f *fakeIO) Load(_ context.Context, s datasource.Spec) (*table.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs[s.Name] = s
	if t, ok := f.sources[s.Name]; ok {
		return t.Clone(), nil
	}
	if t, ok := f.files[s.Name]; ok {
		return t.Clone(), nil
	}
	return nil, fmt.Errorf("source %s: %w", s.Name, os.ErrNotExist)
}

func (f *fakeIO) LoadOrEmpty(ctx context.Context, s datasource.Spec) *table.Table {
	t, err := f.Load(ctx, s)
	if err != nil {
		return table.New()
	}
	return t
}

func (f *fakeIO) Export(_ context.Context, t *table.Table, target export.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(target.Path)
	f.files[name] = asText(t)
	f.targets[name] = target
	return nil
}

func (f *fakeIO) seed(name string, t *table.Table) { f.files[name] = t }

func (f *fakeIO) file(t *testing.T, name string) *table.Table {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out, ok := f.files[name]
	require.Truef(t, ok, "file %s was not written", name)
	return out
}

func asText(t *table.Table) *table.Table {
	out := table.New(t.Columns...)
	for _, r := range t.Rows {
		nr := make([]any, len(r))
		for i, v := range r {
			if s := builtin.CellText(v); v != nil && s != "" {
				nr[i] = s
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

type fakeWarehouse struct {
	mu     sync.Mutex
	tables map[string]storage.TableSpec
	rows   map[string][][]any
}

func (w *fakeWarehouse) Close() {}

func (w *fakeWarehouse) ReplaceTable(_ context.Context, spec storage.TableSpec, rows [][]any) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tables == nil {
		w.tables = map[string]storage.TableSpec{}
		w.rows = map[string][][]any{}
	}
	w.tables[spec.Name] = spec
	w.rows[spec.Name] = rows
	return int64(len(rows)), nil
}

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLogger) Printf(format string, v ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, v...))
}

func (c *captureLogger) contains(sub string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

func newEnv(t *testing.T, io *fakeIO) (*Env, *captureLogger) {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.OutputDir = t.TempDir()
	r, err := rules.Default()
	require.NoError(t, err)
	lg := &captureLogger{}
	return &Env{Config: cfg, Rules: r, Loader: io, Exporter: io, Logger: lg}, lg
}

// rows builds a table of the given columns from literal rows.
func rows(cols []string, data ...[]any) *table.Table {
	t := table.New(cols...)
	for _, d := range data {
		t.Append(d...)
	}
	return t
}

func run(t *testing.T, env *Env, name string) error {
	t.Helper()
	return Default().Run(context.Background(), env, name)
}

func column(t *testing.T, tb *table.Table, name string) []any {
	t.Helper()
	col, err := tb.Col(name)
	require.NoError(t, err)
	return col
}

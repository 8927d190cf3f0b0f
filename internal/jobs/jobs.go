// Package jobs holds the datasets of the financial and modeling segments.
//
// A Job reads configured sources or the outputs of earlier jobs, shapes them
// with the table operations and writes one output file. Jobs never call each
// other; ordering is declared through DependsOn and enforced by the
// orchestrator plan.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"pbietl/internal/config"
	"pbietl/internal/datasource"
	"pbietl/internal/export"
	"pbietl/internal/metrics"
	"pbietl/internal/rules"
	"pbietl/internal/storage"
	"pbietl/internal/table"
)

// Segments.
const (
	SegmentFinanciero = "FINANCIERO"
	SegmentModelado   = "MODELADO"
)

var (
	// ErrEmptySource is returned before any export when a required input is empty.
	ErrEmptySource = errors.New("jobs: empty source")
	// ErrEmptyResult is returned when a job produced no rows.
	ErrEmptyResult = errors.New("jobs: empty result")
	// ErrEmptyJoin is matched by *JoinError.
	ErrEmptyJoin = errors.New("jobs: join produced no rows")
	// ErrUnknownJob is returned by Registry.Run for names that are not registered.
	ErrUnknownJob = errors.New("jobs: unknown job")
)

// JoinError reports an inner join without matches together with a sample of
// the keys on each side, so taxonomy drift can be diagnosed from the log.
type JoinError struct {
	Left, Right         string
	LeftKeys, RightKeys []string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("%s x %s: no matching keys; %s sample=%q; %s sample=%q",
		e.Left, e.Right, e.Left, e.LeftKeys, e.Right, e.RightKeys)
}

func (e *JoinError) Is(target error) bool { return target == ErrEmptyJoin }

// Logger is the minimal logging surface used here.
type Logger interface {
	Printf(format string, v ...any)
}

// Sources is the read side of Env; *datasource.Loader implements it.
type Sources interface {
	Load(ctx context.Context, s datasource.Spec) (*table.Table, error)
	LoadOrEmpty(ctx context.Context, s datasource.Spec) *table.Table
}

// Env carries everything a job touches outside its own logic.
type Env struct {
	Config   *config.Config
	Rules    *rules.Rules
	Loader   Sources
	Exporter export.Exporter
	// Warehouse is nil unless a SQL sink is configured.
	Warehouse storage.Warehouse
	Logger    Logger
	Now       func() time.Time
	// Since, when set, is sent as the desde=YYYY-MM-DD parameter to API sources.
	Since string
}

func (e *Env) logger() Logger {
	if e.Logger == nil {
		return log.Default()
	}
	return e.Logger
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Env) spec(name string) (datasource.Spec, error) {
	s, ok := e.Config.Source(name)
	if !ok {
		return datasource.Spec{}, fmt.Errorf("source %q is not configured", name)
	}
	if e.Since != "" && s.Kind == datasource.KindJSONURL {
		params := make(map[string]string, len(s.Params)+1)
		for k, v := range s.Params {
			params[k] = v
		}
		params["desde"] = e.Since
		s.Params = params
	}
	return s, nil
}

// source reads a configured source through the degrading boundary: failures
// are logged by the loader and come back as an empty table.
func (e *Env) source(ctx context.Context, name string) (*table.Table, error) {
	s, err := e.spec(name)
	if err != nil {
		return nil, err
	}
	return e.Loader.LoadOrEmpty(ctx, s), nil
}

// requireSource is source for inputs a job cannot run without.
func (e *Env) requireSource(ctx context.Context, name string) (*table.Table, error) {
	t, err := e.source(ctx, name)
	if err != nil {
		return nil, err
	}
	if t.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, name)
	}
	return t, nil
}

// intermediate reads the output file of an earlier job. Workbooks are read
// raw, so numbers and dates come back as text and serials.
func (e *Env) intermediate(ctx context.Context, file string) (*table.Table, error) {
	p, err := filepath.Abs(e.Config.OutputPath(file))
	if err != nil {
		return nil, err
	}
	s := datasource.Spec{Name: file, Kind: datasource.KindXLSX, Path: p, HasHeader: true}
	if strings.EqualFold(filepath.Ext(file), ".csv") {
		s.Kind = datasource.KindCSVFile
	}
	return e.Loader.Load(ctx, s)
}

// requireIntermediate fails with ErrEmptySource when the file is missing or empty.
func (e *Env) requireIntermediate(ctx context.Context, file string) (*table.Table, error) {
	t, err := e.intermediate(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptySource, err)
	}
	if t.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmptySource, file)
	}
	return t, nil
}

// optionalIntermediate treats an unreadable catalog as unavailable: it logs a
// warning and returns an empty table.
func (e *Env) optionalIntermediate(ctx context.Context, file string) *table.Table {
	t, err := e.intermediate(ctx, file)
	if err != nil {
		e.logger().Printf("[WARN] catalog=%q unavailable, continuing without it: %v", file, err)
		return table.New()
	}
	return t
}

// write exports t to the output directory. Empty tables are refused.
func (e *Env) write(ctx context.Context, job string, t *table.Table, target export.Target) error {
	if t.Empty() {
		return fmt.Errorf("%w: %s", ErrEmptyResult, job)
	}
	target.Path = e.Config.OutputPath(target.Path)
	if err := e.Exporter.Export(ctx, t, target); err != nil {
		e.logger().Printf("[ERROR] export job=%s path=%s: %v", job, target.Path, err)
		return err
	}
	e.logger().Printf("[OK] job=%s output=%s rows=%d cols=%d", job, target.Path, t.Len(), len(t.Columns))
	return nil
}

// load replaces the warehouse table of a dimension or fact. It is a no-op
// without a configured warehouse.
func (e *Env) load(ctx context.Context, name string, t *table.Table, rowHash bool) error {
	if e.Warehouse == nil {
		return nil
	}
	spec := storage.InferSpec(name, t.Columns, t.Rows)
	rows := t.Rows
	if rowHash {
		spec, rows = storage.WithRowHash(spec, rows)
	}
	n, err := e.Warehouse.ReplaceTable(ctx, spec, rows)
	if err != nil {
		e.logger().Printf("[ERROR] warehouse table=%s: %v", name, err)
		return fmt.Errorf("warehouse %s: %w", name, err)
	}
	e.logger().Printf("[OK] warehouse table=%s rows=%d", name, n)
	return nil
}

// Job is one dataset.
type Job struct {
	Name    string
	Segment string
	// DependsOn names the jobs whose outputs this job reads.
	DependsOn []string
	// Output is the file written under the output directory.
	Output string
	Run    func(ctx context.Context, env *Env) error
}

// Registry keeps jobs in declaration order.
type Registry struct {
	jobs  []*Job
	index map[string]*Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: map[string]*Job{}}
}

// Add registers j.
//
// Errors:
//   - An empty name, a nil Run or a duplicate name.
func (r *Registry) Add(j *Job) error {
	switch {
	case j == nil || j.Name == "":
		return errors.New("jobs: job needs a name")
	case j.Run == nil:
		return fmt.Errorf("jobs: job %s has no Run", j.Name)
	}
	if _, dup := r.index[j.Name]; dup {
		return fmt.Errorf("jobs: duplicate job %s", j.Name)
	}
	r.jobs = append(r.jobs, j)
	r.index[j.Name] = j
	return nil
}

func (r *Registry) mustAdd(j *Job) {
	if err := r.Add(j); err != nil {
		panic(err)
	}
}

// Get returns the named job.
func (r *Registry) Get(name string) (*Job, bool) {
	j, ok := r.index[name]
	return j, ok
}

// All returns the jobs in declaration order.
func (r *Registry) All() []*Job {
	return append([]*Job(nil), r.jobs...)
}

// Names returns job names in declaration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.Name
	}
	return out
}

// Run executes one job, logging its duration and recording the job metric.
func (r *Registry) Run(ctx context.Context, env *Env, name string) error {
	j, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	lg := env.logger()
	start := env.now()
	lg.Printf("job=%s segment=%s start", j.Name, j.Segment)

	err := j.Run(ctx, env)
	d := env.now().Sub(start)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordJob(j.Name, j.Segment, status, d)
	if err != nil {
		lg.Printf("[ERROR] job=%s duration=%s: %v", j.Name, d.Round(time.Millisecond), err)
		return fmt.Errorf("job %s: %w", j.Name, err)
	}
	lg.Printf("job=%s status=ok duration=%s", j.Name, d.Round(time.Millisecond))
	return nil
}

// Default returns every job of both segments in the order the production
// flow declared them.
func Default() *Registry {
	r := NewRegistry()
	for _, j := range financialJobs() {
		r.mustAdd(j)
	}
	for _, j := range modelJobs() {
		r.mustAdd(j)
	}
	return r
}

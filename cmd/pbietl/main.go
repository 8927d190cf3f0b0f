// Command pbietl runs the Power BI migration jobs: one job per invocation
// (run), a whole segment in dependency order (orchestrate), and a few
// operator helpers (jobs, validate, doctor, probe).
//
// Exit codes: 0 success, 1 job failure or unknown orchestrator segment,
// 2 usage errors (unknown command or job, malformed flags, invalid
// configuration).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pbietl/internal/config"
	"pbietl/internal/datasource"
	"pbietl/internal/datasource/httpds"
	"pbietl/internal/export"
	"pbietl/internal/jobs"
	"pbietl/internal/metrics"
	"pbietl/internal/metrics/datadog"
	"pbietl/internal/orchestrator"
	"pbietl/internal/probe"
	"pbietl/internal/rules"
	"pbietl/internal/storage"

	// register all backends with the storage factory.
	_ "pbietl/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], defaultDeps())
	stop()
	os.Exit(code)
}

// metricsBackend is a metrics backend that must be closed at shutdown.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// deps holds everything run touches outside its arguments.
type deps struct {
	Stdout, Stderr io.Writer
	Registry       *jobs.Registry
	Exporter       export.Exporter
	NewGetter      func(cfg *config.Config) datasource.Getter
	OpenWarehouse  func(ctx context.Context, cfg storage.Config) (storage.Warehouse, error)
	NewDatadog     func(ctx context.Context, opts datadog.Options) (metricsBackend, error)
}

func defaultDeps() deps {
	return deps{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Registry: jobs.Default(),
		Exporter: export.Files{},
		NewGetter: func(cfg *config.Config) datasource.Getter {
			return httpds.NewClient(cfg.HTTP.Timeout, cfg.HTTP.UserAgent)
		},
		OpenWarehouse: storage.Open,
		NewDatadog: func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
			return datadog.NewBackend(ctx, opts)
		},
	}
}

// usageError marks errors that exit with code 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error {
	return usageError{fmt.Errorf(format, a...)}
}

func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// exitStatus ends a command with the given code; the command already
// reported why.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func exitCode(err error) int {
	var ue usageError
	var st exitStatus
	switch {
	case err == nil:
		return 0
	case errors.As(err, &st):
		return int(st)
	case errors.As(err, &ue), errors.Is(err, jobs.ErrUnknownJob):
		return 2
	default:
		return 1
	}
}

// app is the state shared by the subcommands of one invocation.
type app struct {
	deps    deps
	cfgFile string
	cfg     *config.Config
	log     *log.Logger
}

func run(ctx context.Context, args []string, d deps) int {
	a := &app{deps: d, log: log.New(d.Stdout, "", log.LstdFlags)}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(d.Stdout)
	root.SetErr(d.Stderr)

	err := root.ExecuteContext(ctx)
	var st exitStatus
	if err != nil && !errors.As(err, &st) {
		fmt.Fprintf(d.Stderr, "%v\n", err)
	}
	return exitCode(err)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pbietl",
		Short: "Power BI dataset pipelines",
		Long: `pbietl rebuilds the financial and customer-attention datasets that feed the
Power BI model: extraction and catalog jobs (FINANCIERO) followed by the star
schema dimensions and facts (MODELADO).`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd == cmd.Root() {
				return nil
			}
			return a.loadConfig(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.DefaultConfigFile+")")
	pf.String("input-dir", "", "directory of local source workbooks")
	pf.String("output-dir", "", "directory receiving the exported datasets")
	pf.String("log-dir", "", "directory of orchestrator logs")
	pf.String("rules", "", "business rules YAML (default: built-in rules)")
	pf.String("metrics-backend", "", "metrics backend (none, datadog)")
	pf.String("warehouse-kind", "", "optional SQL sink: "+strings.Join(storage.Kinds(), ", "))
	pf.String("warehouse-dsn", "", "SQL sink connection string")
	pf.BoolP("verbose", "v", false, "enable verbose logs")

	root.AddCommand(a.runCmd(), a.orchestrateCmd(), a.jobsCmd(), a.validateCmd(), a.doctorCmd(), a.probeCmd())
	return root
}

// loadConfig resolves the configuration. Every command except validate
// refuses to start on error-severity issues.
func (a *app) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(config.Options{File: a.cfgFile, Flags: cmd.Root().PersistentFlags()})
	if err != nil {
		return usageError{err}
	}
	a.cfg = cfg
	if cfg.Verbose && cfg.File != "" {
		a.log.Printf("config: file=%s", cfg.File)
	}
	if cmd.Name() == "validate" {
		return nil
	}
	issues := config.Validate(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityError || cfg.Verbose {
			fmt.Fprintln(cmd.ErrOrStderr(), iss)
		}
	}
	if config.HasErrors(issues) {
		return usagef("invalid configuration (run pbietl validate)")
	}
	return nil
}

// startMetrics installs the configured backend and returns its shutdown.
func (a *app) startMetrics(ctx context.Context, command string) func() {
	backend := a.cfg.Metrics.Backend
	switch backend {
	case "datadog":
		tags := datadog.ParseTagsCSV(a.cfg.Metrics.Tags)
		b, err := a.deps.NewDatadog(ctx, datadog.Options{
			Command:    command,
			Tags:       tags,
			FlushEvery: a.cfg.Metrics.FlushEvery,
		})
		if err != nil {
			a.log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		a.log.Printf("metrics: backend=%v command=%v tags=%v", backend, command, tags)
		prev := metrics.SetBackend(b)
		return func() {
			// Close stops the periodic flush loop and performs a final flush.
			if err := b.Close(); err != nil {
				a.log.Printf("metrics: datadog close/flush error: %v", err)
			}
			metrics.SetBackend(prev)
		}

	case "", "none":
		if a.cfg.Verbose {
			a.log.Printf("metrics: disabled (backend=%q)", backend)
		}

	default:
		a.log.Printf("metrics: unknown backend %q; metrics disabled", backend)
	}
	return func() {}
}

func (a *app) loadRules() (*rules.Rules, error) {
	return rules.Load(a.cfg.RulesFile)
}

func (a *app) loader() *datasource.Loader {
	return &datasource.Loader{HTTP: a.deps.NewGetter(a.cfg), BaseDir: a.cfg.InputDir, Logger: a.log}
}

func (a *app) runCmd() *cobra.Command {
	var since string
	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run one job",
		Example: `  pbietl run Ext_data
  pbietl run TR_Real --output-dir /data/powerbi
  pbietl run Ext_AtencionClientes --since 2025-01-01`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if _, ok := a.deps.Registry.Get(name); !ok {
				return fmt.Errorf("%w: %s (see pbietl jobs)", jobs.ErrUnknownJob, name)
			}
			if since != "" {
				if _, err := time.Parse("2006-01-02", since); err != nil {
					return usagef("--since %q: want YYYY-MM-DD", since)
				}
			}
			ctx := cmd.Context()
			defer a.startMetrics(ctx, "run")()

			r, err := a.loadRules()
			if err != nil {
				return err
			}
			env := &jobs.Env{
				Config:   a.cfg,
				Rules:    r,
				Loader:   a.loader(),
				Exporter: a.deps.Exporter,
				Logger:   a.log,
				Since:    since,
			}
			if a.cfg.Warehouse.Enabled() {
				wh, err := a.deps.OpenWarehouse(ctx, storage.Config{Kind: a.cfg.Warehouse.Kind, DSN: a.cfg.Warehouse.DSN})
				if err != nil {
					return err
				}
				defer wh.Close()
				env.Warehouse = wh
			}
			return a.deps.Registry.Run(ctx, env, name)
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only fetch API records from this date (YYYY-MM-DD)")
	return cmd
}

func (a *app) orchestrateCmd() *cobra.Command {
	var segment string
	cmd := &cobra.Command{
		Use:   "orchestrate",
		Short: "Run a segment's jobs as child processes in dependency order",
		Long: `orchestrate runs every job of a segment (FINANCIERO, MODELADO or TODOS), each
in its own process. A failed job is logged and the remaining jobs still run;
the exit code is 1 when any job failed.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := orchestrator.Plan(a.deps.Registry, segment)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.startMetrics(ctx, "orchestrate")()

			res, err := a.runner().Run(ctx, segment, plan)
			if err != nil {
				return err
			}
			if code := res.ExitCode(); code != 0 {
				return exitStatus(code)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&segment, "segment", "s", orchestrator.SegmentTodos,
		"segment to run: "+strings.Join(orchestrator.Segments(), ", "))
	return cmd
}

// runner builds the child process runner. Children of the running binary
// receive the resolved directories through the environment, so flag
// overrides given to orchestrate reach every job.
func (a *app) runner() *orchestrator.Runner {
	r := &orchestrator.Runner{
		Command: a.cfg.Orchestrator.Command,
		Args:    a.cfg.Orchestrator.Args,
		LogDir:  a.cfg.LogDir,
		Console: a.deps.Stdout,
	}
	if r.Command == "" {
		if a.cfg.File != "" {
			r.Args = []string{"--config", a.cfg.File, "run", orchestrator.JobPlaceholder}
		}
		r.Env = []string{
			config.DefaultEnvPrefix + "INPUT_DIR=" + a.cfg.InputDir,
			config.DefaultEnvPrefix + "OUTPUT_DIR=" + a.cfg.OutputDir,
			config.DefaultEnvPrefix + "METRICS__BACKEND=" + a.cfg.Metrics.Backend,
		}
		if a.cfg.RulesFile != "" {
			r.Env = append(r.Env, config.DefaultEnvPrefix+"RULES_FILE="+a.cfg.RulesFile)
		}
	}
	return r
}

func (a *app) jobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs with their segment, dependencies and output",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "JOB\tSEGMENT\tDEPENDS ON\tOUTPUT")
			for _, j := range a.deps.Registry.All() {
				dep := strings.Join(j.DependsOn, ",")
				if dep == "" {
					dep = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.Name, j.Segment, dep, j.Output)
			}
			return tw.Flush()
		},
	}
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration, the business rules and the job graph",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			stderr := cmd.ErrOrStderr()
			issues := config.Validate(a.cfg)
			for _, iss := range issues {
				fmt.Fprintln(stderr, iss)
			}
			failed := config.HasErrors(issues)

			if a.cfg.Warehouse.Enabled() && !knownKind(a.cfg.Warehouse.Kind) {
				fmt.Fprintf(stderr, "%s: warehouse.kind: unknown kind %q (want one of %v)\n",
					config.SeverityError, a.cfg.Warehouse.Kind, storage.Kinds())
				failed = true
			}
			if _, err := a.loadRules(); err != nil {
				fmt.Fprintf(stderr, "%s: rules: %v\n", config.SeverityError, err)
				failed = true
			}
			if _, err := orchestrator.Plan(a.deps.Registry, orchestrator.SegmentTodos); err != nil {
				fmt.Fprintf(stderr, "%s: jobs: %v\n", config.SeverityError, err)
				failed = true
			}

			name := a.cfg.File
			if name == "" {
				name = "(defaults)"
			}
			if failed {
				a.log.Printf("Configuration is invalid: %v", name)
				return exitStatus(1)
			}
			a.log.Printf("Configuration is valid: %v", name)
			return nil
		},
	}
}

func knownKind(kind string) bool {
	for _, k := range storage.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

func (a *app) doctorCmd() *cobra.Command {
	var parallel int
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that every configured source can be read",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := a.cfg.SourceNames()
			type check struct {
				rows int
				err  error
			}
			results := make([]check, len(names))
			ld := a.loader()
			ld.Logger = log.New(io.Discard, "", 0)

			g, ctx := errgroup.WithContext(cmd.Context())
			if parallel > 0 {
				g.SetLimit(parallel)
			}
			for i, name := range names {
				g.Go(func() error {
					s, _ := a.cfg.Source(name)
					t, err := ld.Load(ctx, s)
					if err != nil {
						results[i].err = err
						return nil
					}
					results[i].rows = t.Len()
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := 0
			for i, name := range names {
				s, _ := a.cfg.Source(name)
				if err := results[i].err; err != nil {
					failed++
					a.log.Printf("[ERROR] source=%s kind=%s reason=%q location=%s err=%v", name, s.Kind, datasource.Reason(err), s.Location(), err)
					continue
				}
				a.log.Printf("[OK] source=%s kind=%s rows=%d", name, s.Kind, results[i].rows)
			}
			if failed > 0 {
				a.log.Printf("[WARN] %d of %d sources failed", failed, len(names))
				return exitStatus(1)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", 4, "sources checked concurrently")
	return cmd
}

func (a *app) probeCmd() *cobra.Command {
	var (
		samples int
		find    string
	)
	cmd := &cobra.Command{
		Use:   "probe <source>",
		Short: "Profile a configured source column by column",
		Long: `probe loads a source and prints one line per column position with its
inferred type, fill and samples, so positional column mappings can be checked
against what the sheet actually holds.`,
		Example: `  pbietl probe desempeno
  pbietl probe conceptos_maquinas --find meta`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ok := a.cfg.Source(args[0])
			if !ok {
				return usagef("unknown source %q (configured: %s)", args[0], strings.Join(a.cfg.SourceNames(), ", "))
			}
			ld := a.loader()
			ld.Logger = log.New(io.Discard, "", 0)
			t, err := ld.Load(cmd.Context(), s)
			if err != nil {
				return err
			}
			rep := probe.Profile(s.Name, t, samples)
			out := cmd.OutOrStdout()
			if err := rep.Render(out); err != nil {
				return err
			}
			if find != "" {
				hits := rep.Candidates(find)
				if len(hits) == 0 {
					fmt.Fprintf(out, "no column matches %q\n", find)
				}
				for _, c := range hits {
					fmt.Fprintf(out, "match %q: column %d (%s)\n", find, c.Index, c.Header)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&samples, "samples", 3, "sample values shown per column")
	cmd.Flags().StringVar(&find, "find", "", "report columns whose header or samples contain this text")
	return cmd
}

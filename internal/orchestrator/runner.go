package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"pbietl/internal/jobs"
	"pbietl/internal/metrics"
)

// JobPlaceholder in Runner.Args is replaced by the job name.
const JobPlaceholder = "{job}"

// RunIDEnv carries the run id to child processes.
const RunIDEnv = "PBIETL_RUN_ID"

// Runner executes planned jobs sequentially.
type Runner struct {
	// Command is the executable; empty means the running binary.
	Command string
	// Args are passed to Command. An element equal to JobPlaceholder is
	// replaced by the job name; without one the name is appended. Empty
	// Args with an empty Command means "run <job>".
	Args []string
	// Env is appended to the parent environment of each child.
	Env []string

	LogDir string
	// Console receives every log line as well; nil means os.Stdout.
	Console io.Writer
	Now     func() time.Time
}

// StepResult is the outcome of one child process.
type StepResult struct {
	Job      string
	Command  []string
	Code     int
	Duration time.Duration
	Stdout   string
	Stderr   string
	// Err is set when the process could not be started or waited for.
	Err error
}

// OK reports a zero exit code.
func (s StepResult) OK() bool { return s.Err == nil && s.Code == 0 }

// Result summarizes a run.
type Result struct {
	RunID   string
	Segment string
	LogPath string
	Steps   []StepResult
	Failed  []string
}

// ExitCode is 0 when every step succeeded, else 1.
func (r *Result) ExitCode() int {
	if len(r.Failed) > 0 {
		return 1
	}
	return 0
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// command returns the argv of one job.
func (r *Runner) command(job string) ([]string, error) {
	exe := r.Command
	args := r.Args
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: locate own binary: %w", err)
		}
		exe = self
		if len(args) == 0 {
			args = []string{"run"}
		}
	}
	argv := []string{exe}
	placed := false
	for _, a := range args {
		if a == JobPlaceholder {
			a = job
			placed = true
		}
		argv = append(argv, a)
	}
	if !placed {
		argv = append(argv, job)
	}
	return argv, nil
}

// runLog writes timestamped lines to the console and the log file.
type runLog struct {
	file    *os.File
	console io.Writer
	now     func() time.Time
}

func (l *runLog) printf(format string, v ...any) {
	line := l.now().Format("[2006-01-02 15:04:05]") + " " + fmt.Sprintf(format, v...)
	fmt.Fprintln(l.console, line)
	if l.file != nil {
		if _, err := fmt.Fprintln(l.file, line); err != nil {
			fmt.Fprintf(l.console, "ERROR DE LOGGING: %s: %v\n", l.file.Name(), err)
		}
	}
}

// openLog creates the log directory and the run's log file.
func (r *Runner) openLog(segment string) (*os.File, error) {
	dir := r.LogDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("orchestrator: log dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.log", LogPrefix(segment), r.now().Format("20060102_150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: log file: %w", err)
	}
	return f, nil
}

// Run executes steps in order. A failed step is recorded and the next one
// still runs. The returned error covers only the log file; job failures are
// reported through Result.
func (r *Runner) Run(ctx context.Context, segment string, steps []*jobs.Job) (*Result, error) {
	f, err := r.openLog(segment)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	console := r.Console
	if console == nil {
		console = os.Stdout
	}
	lg := &runLog{file: f, console: console, now: r.now}
	res := &Result{RunID: uuid.NewString(), Segment: strings.ToUpper(segment), LogPath: f.Name()}

	lg.printf("########################################################")
	lg.printf("####### INICIO DE PROCESAMIENTO SEGMENTADO ###########")
	lg.printf("Log de salida en: %s", res.LogPath)
	lg.printf("Run ID: %s", res.RunID)
	lg.printf("Segmento a ejecutar: %s (%d procesos)", res.Segment, len(steps))
	lg.printf("########################################################")

	start := r.now()
	for _, j := range steps {
		if ctx.Err() != nil {
			lg.printf(" CANCELADO: %s no se ejecutó: %v", j.Name, ctx.Err())
			res.Failed = append(res.Failed, j.Name)
			continue
		}
		sr := r.step(ctx, lg, j.Name, res.RunID)
		res.Steps = append(res.Steps, sr)
		if !sr.OK() {
			res.Failed = append(res.Failed, j.Name)
		}
	}
	status := "ok"
	if len(res.Failed) > 0 {
		status = "error"
	}
	metrics.RecordSegment(res.Segment, status, r.now().Sub(start), len(res.Failed))

	lg.printf("========================================================")
	lg.printf("               RESUMEN DE PROCESAMIENTO                 ")
	lg.printf("========================================================")
	if len(res.Failed) == 0 {
		lg.printf(" Todos los procesos se ejecutaron con éxito.")
		return res, nil
	}
	lg.printf(" Se detectaron %d fallos en los siguientes procesos:", len(res.Failed))
	for _, name := range res.Failed {
		lg.printf(" - %s", name)
	}
	lg.printf("################ FIN DE PROCESAMIENTO ##################")
	return res, nil
}

func (r *Runner) step(ctx context.Context, lg *runLog, job, runID string) StepResult {
	sr := StepResult{Job: job}
	lg.printf("--- INICIANDO PROCESO: %s ---", job)

	argv, err := r.command(job)
	if err != nil {
		sr.Err = err
		lg.printf(" ERROR INESPERADO al ejecutar %s: %v", job, err)
		return sr
	}
	sr.Command = argv
	lg.printf("   Comando: %s", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(append(os.Environ(), RunIDEnv+"="+runID), r.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := r.now()
	err = cmd.Run()
	sr.Duration = r.now().Sub(start)
	sr.Stdout = strings.TrimSpace(stdout.String())
	sr.Stderr = strings.TrimSpace(stderr.String())

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		lg.printf(" ÉXITO: %s completado (Código 0).", job)
		if sr.Stdout != "" {
			lg.printf("   Salida Estándar (stdout):\n%s", sr.Stdout)
		}
	case errors.As(err, &exitErr):
		sr.Code = exitErr.ExitCode()
		lg.printf(" FALLO: %s finalizó con CÓDIGO DE ERROR %d.", job, sr.Code)
		lg.printf("--- Salida de Error Estándar (stderr) ---")
		if sr.Stderr == "" {
			lg.printf("No hay mensajes de error específicos.")
		} else {
			lg.printf("%s", sr.Stderr)
		}
		lg.printf("-----------------------------------------")
		if sr.Code == 2 {
			lg.printf(" DIAGNÓSTICO: Código 2 = Archivo/Comando no encontrado. Revise rutas.")
		}
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		sr.Err = err
		lg.printf(" ERROR CRÍTICO: el ejecutable %q no fue encontrado.", argv[0])
		lg.printf("   Revise orchestrator.command o el PATH.")
	default:
		sr.Err = err
		lg.printf(" ERROR INESPERADO al ejecutar %s: %v", job, err)
	}
	return sr
}

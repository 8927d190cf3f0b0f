package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pbietl/internal/jobs"
)

// TestHelperProcess is the child process used by the runner tests. The job
// name decides its behavior.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PBIETL_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	job := ""
	if len(args) > 1 {
		job = args[1]
	}
	switch job {
	case "ok":
		fmt.Fprintln(os.Stdout, "[OK] job=ok rows=3")
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "job fail: jobs: empty source")
		os.Exit(1)
	case "silent":
		os.Exit(1)
	case "usage":
		os.Exit(2)
	case "runid":
		fmt.Fprintln(os.Stdout, os.Getenv(RunIDEnv))
		os.Exit(0)
	}
	os.Exit(3)
}

func helperRunner(t *testing.T, console *bytes.Buffer) *Runner {
	t.Helper()
	clock := time.Date(2025, 3, 3, 6, 30, 0, 0, time.UTC)
	return &Runner{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--", JobPlaceholder},
		Env:     []string{"PBIETL_HELPER_PROCESS=1"},
		LogDir:  filepath.Join(t.TempDir(), "logs"),
		Console: console,
		Now:     func() time.Time { return clock },
	}
}

func steps(names ...string) []*jobs.Job {
	out := make([]*jobs.Job, len(names))
	for i, n := range names {
		out[i] = &jobs.Job{Name: n}
	}
	return out
}

func TestRunner_AllSucceed(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	r := helperRunner(t, &console)
	res, err := r.Run(context.Background(), "financiero", steps("ok", "runid"))
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode())
	assert.Equal(t, filepath.Join(r.LogDir, "Proceso_FINANCIERO_20250303_063000.log"), res.LogPath)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "[OK] job=ok rows=3", res.Steps[0].Stdout)
	assert.Equal(t, res.RunID, res.Steps[1].Stdout)

	b, err := os.ReadFile(res.LogPath)
	require.NoError(t, err)
	log := string(b)
	assert.Equal(t, console.String(), log)
	assert.Contains(t, log, "[2025-03-03 06:30:00] ####### INICIO DE PROCESAMIENTO SEGMENTADO")
	assert.Contains(t, log, "--- INICIANDO PROCESO: ok ---")
	assert.Contains(t, log, "ÉXITO: ok completado (Código 0).")
	assert.Contains(t, log, "[OK] job=ok rows=3")
	assert.Contains(t, log, "Todos los procesos se ejecutaron con éxito.")
}

func TestRunner_CollectsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	r := helperRunner(t, &console)
	res, err := r.Run(context.Background(), "TODOS", steps("fail", "silent", "usage", "ok"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.ExitCode())
	assert.Equal(t, []string{"fail", "silent", "usage"}, res.Failed)
	assert.Equal(t, []int{1, 1, 2, 0}, []int{res.Steps[0].Code, res.Steps[1].Code, res.Steps[2].Code, res.Steps[3].Code})
	assert.True(t, strings.HasPrefix(filepath.Base(res.LogPath), "Proceso_Completo_"))

	log := console.String()
	assert.Contains(t, log, "FALLO: fail finalizó con CÓDIGO DE ERROR 1.")
	assert.Contains(t, log, "job fail: jobs: empty source")
	assert.Contains(t, log, "No hay mensajes de error específicos.")
	assert.Contains(t, log, "DIAGNÓSTICO: Código 2")
	assert.Contains(t, log, "Se detectaron 3 fallos")
	assert.Contains(t, log, " - usage")
}

func TestRunner_MissingExecutable(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	r := helperRunner(t, &console)
	r.Command = "pbietl-no-such-binary"
	r.Args = nil
	res, err := r.Run(context.Background(), "MODELADO", steps("Dim_Concepto"))
	require.NoError(t, err)

	assert.Equal(t, 1, res.ExitCode())
	assert.Error(t, res.Steps[0].Err)
	assert.Equal(t, []string{"pbietl-no-such-binary", "Dim_Concepto"}, res.Steps[0].Command)
	assert.Contains(t, console.String(), "ERROR CRÍTICO")
}

func TestRunner_Command(t *testing.T) {
	t.Parallel()

	r := &Runner{Command: "python", Args: []string{"scripts/{job}.py"}}
	argv, err := r.command("TR_Real")
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "scripts/{job}.py", "TR_Real"}, argv)

	r.Args = []string{"-u", JobPlaceholder}
	argv, err = r.command("TR_Real")
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "-u", "TR_Real"}, argv)

	self, err := (&Runner{}).command("Ext_data")
	require.NoError(t, err)
	assert.Equal(t, []string{"run", "Ext_data"}, self[1:])
}

func TestRunner_CanceledContextSkipsSteps(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var console bytes.Buffer
	res, err := helperRunner(t, &console).Run(ctx, "FINANCIERO", steps("ok"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res.Failed)
	assert.Empty(t, res.Steps)
	assert.Contains(t, console.String(), "CANCELADO")
}

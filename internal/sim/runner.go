// Package sim persists generated SystemVerilog, builds it with Verilator and
// runs the resulting simulation binary.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	DesignFile    = "design.sv"
	TestbenchFile = "tb.sv"
	BuildDir      = "obj_dir"
	TracePattern  = "*.vcd"
)

type Stage string

const (
	StageBuild Stage = "build"
	StageRun   Stage = "run"
)

// Result is the toolchain verdict for one artifact pair. Diagnostic is empty
// when Passed is true.
type Result struct {
	Passed     bool
	Stage      Stage
	Diagnostic string
}

// Runner owns the design, testbench, build directory and trace files inside
// Dir. Only one Run may be active at a time.
type Runner struct {
	Dir       string
	Exec      Executor
	Verilator string
	Logger    *slog.Logger
}

func NewRunner(dir string, exec Executor, verilator string, logger *slog.Logger) *Runner {
	if exec == nil {
		exec = LocalExecutor{}
	}
	if strings.TrimSpace(verilator) == "" {
		verilator = "verilator"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Dir: dir, Exec: exec, Verilator: verilator, Logger: logger}
}

// BuildCommand compiles both files into a traced simulation binary.
func (r *Runner) BuildCommand() Command {
	return Command{
		Name: r.Verilator,
		Args: []string{"--binary", "-sv", DesignFile, TestbenchFile, "--trace", "-Wno-EOFNEWLINE", "-Wno-DECLFILENAME"},
	}
}

// RunCommand executes the binary Verilator names after the first source file.
func (r *Runner) RunCommand() Command {
	return Command{Name: "./" + BuildDir + "/V" + strings.TrimSuffix(DesignFile, filepath.Ext(DesignFile))}
}

// Run replaces the previous attempt's artifacts with design and tb, builds and
// simulates them. The returned error covers failures to prepare the working
// directory or start a tool; toolchain verdicts are reported in Result.
func (r *Runner) Run(ctx context.Context, design, tb string) (Result, error) {
	if err := r.Clean(); err != nil {
		r.dropSources()
		return Result{}, err
	}
	if err := r.Write(design, tb); err != nil {
		return Result{}, err
	}

	build := r.BuildCommand()
	r.Logger.Debug("toolchain build", "cmd", build.String(), "dir", r.Dir)
	res, err := r.Exec.Exec(ctx, r.Dir, build)
	if err != nil {
		return Result{}, err
	}
	if res.ExitCode != 0 {
		r.Logger.Info("build failed", "exit_code", res.ExitCode)
		return Result{Stage: StageBuild, Diagnostic: diagnostic(res)}, nil
	}

	run := r.RunCommand()
	r.Logger.Debug("simulation", "cmd", run.String(), "dir", r.Dir)
	res, err = r.Exec.Exec(ctx, r.Dir, run)
	if err != nil {
		return Result{}, err
	}
	if res.ExitCode != 0 {
		r.Logger.Info("simulation failed", "exit_code", res.ExitCode)
		return Result{Stage: StageRun, Diagnostic: diagnostic(res)}, nil
	}
	return Result{Passed: true, Stage: StageRun}, nil
}

// Clean removes the build directory and every trace file.
func (r *Runner) Clean() error {
	if err := os.RemoveAll(filepath.Join(r.Dir, BuildDir)); err != nil {
		return fmt.Errorf("remove %s: %w", BuildDir, err)
	}
	traces, err := filepath.Glob(filepath.Join(r.Dir, TracePattern))
	if err != nil {
		return fmt.Errorf("glob traces: %w", err)
	}
	for _, p := range traces {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove trace %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// dropSources removes the previous pair so a failed cleanup never leaves
// sources from an older attempt next to the new verdict.
func (r *Runner) dropSources() {
	for _, name := range []string{DesignFile, TestbenchFile} {
		if err := os.Remove(filepath.Join(r.Dir, name)); err != nil && !os.IsNotExist(err) {
			r.Logger.Warn("remove stale source", "file", name, "error", err)
		}
	}
}

// Write overwrites both source files unconditionally.
func (r *Runner) Write(design, tb string) error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.Dir, DesignFile), []byte(design), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", DesignFile, err)
	}
	if err := os.WriteFile(filepath.Join(r.Dir, TestbenchFile), []byte(tb), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", TestbenchFile, err)
	}
	return nil
}

// diagnostic prefers stderr. Verilator prints some errors on stdout only.
func diagnostic(res ExecResult) string {
	if strings.TrimSpace(res.Stderr) != "" {
		return res.Stderr
	}
	if strings.TrimSpace(res.Stdout) != "" {
		return res.Stdout
	}
	return fmt.Sprintf("process exited with status %d and no output", res.ExitCode)
}

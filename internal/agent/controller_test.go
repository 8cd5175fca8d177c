package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svagent/internal/archive"
	"svagent/internal/history"
	"svagent/internal/llm"
	"svagent/internal/sim"
)

const (
	andDesign = "module dut(input logic a, input logic b, output logic y);\n  assign y = a & b;\nendmodule"
	andTB     = "module tb;\n  logic a, b, y;\n  dut u(.a(a), .b(b), .y(y));\n  initial begin $dumpfile(\"dump.vcd\"); $dumpvars; a = 1; b = 1; #1 assert(y); $finish; end\nendmodule"
)

func reply(design, tb string) llm.Reply {
	return llm.Reply{Text: "Here you go.\n<DESIGN>\n" + design + "\n</DESIGN>\n<TB>\n" + tb + "\n</TB>\n"}
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// toolchain stands in for verilator and the simulation binary. The build
// stage leaves an obj_dir behind and the run stage writes a trace, like the
// real tools.
type toolchain struct {
	build  func(n int) sim.ExecResult
	run    func(n int) sim.ExecResult
	err    error
	builds int
	runs   int
}

func (tc *toolchain) Exec(_ context.Context, dir string, cmd sim.Command) (sim.ExecResult, error) {
	if tc.err != nil {
		return sim.ExecResult{}, tc.err
	}
	if cmd.Name == "verilator" {
		tc.builds++
		if err := os.MkdirAll(filepath.Join(dir, sim.BuildDir), 0o755); err != nil {
			return sim.ExecResult{}, err
		}
		if tc.build != nil {
			return tc.build(tc.builds), nil
		}
		return sim.ExecResult{}, nil
	}
	tc.runs++
	trace := filepath.Join(dir, fmt.Sprintf("dump%d.vcd", tc.runs))
	if err := os.WriteFile(trace, []byte("$enddefinitions $end"), 0o644); err != nil {
		return sim.ExecResult{}, err
	}
	if tc.run != nil {
		return tc.run(tc.runs), nil
	}
	return sim.ExecResult{}, nil
}

type fakeLauncher struct{ calls int }

func (l *fakeLauncher) Launch() string {
	l.calls++
	return ""
}

type harness struct {
	dir      string
	client   *llm.FakeClient
	tools    *toolchain
	launcher *fakeLauncher
	out      *bytes.Buffer
	states   []State
	deps     Deps
}

func newHarness(t *testing.T, replies ...llm.Reply) *harness {
	t.Helper()
	h := &harness{
		dir:      t.TempDir(),
		client:   llm.NewFakeClient(replies...),
		tools:    &toolchain{},
		launcher: &fakeLauncher{},
		out:      &bytes.Buffer{},
	}
	h.deps = Deps{
		LLM:      h.client,
		Runner:   sim.NewRunner(h.dir, h.tools, "verilator", quiet()),
		Launcher: h.launcher,
		Reporter: NewConsoleReporter(h.out),
		Logger:   quiet(),
		NewRunID: func() string { return "run-1" },
		OnState:  func(s State) { h.states = append(h.states, s) },
	}
	return h
}

func (h *harness) run(t *testing.T, cfg Config, spec string) Report {
	t.Helper()
	if cfg.WorkDir == "" {
		cfg.WorkDir = h.dir
	}
	c, err := New(cfg, h.deps)
	require.NoError(t, err)
	report, err := c.Run(context.Background(), spec)
	require.NoError(t, err)
	return report
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

func TestRun_PassesOnFirstAttempt(t *testing.T) {
	h := newHarness(t, reply(andDesign, andTB))

	report := h.run(t, Config{MaxAttempts: 10, MaxTokens: 2048}, "2-input AND gate")

	assert.True(t, report.Passed)
	assert.Equal(t, StateSuccess, report.State)
	require.Len(t, report.Attempts, 1)
	assert.Equal(t, OutcomeSuccess, report.Attempts[0].Outcome)
	assert.Len(t, h.client.Requests(), 1)
	assert.Equal(t, 2048, h.client.Requests()[0].MaxTokens)
	assert.Contains(t, h.client.Requests()[0].User, "2-input AND gate")
	assert.Equal(t, 1, h.launcher.calls)
	assert.Equal(t, "\nATTEMPT 1\nPASS\n", h.out.String())

	assert.Equal(t, []State{
		StateIdle, StatePrompting, StateAwaitingModel, StateParsing, StateRunning, StateSuccess,
	}, h.states)
}

func TestRun_FormatFailureFeedsMissingTags(t *testing.T) {
	h := newHarness(t,
		llm.Reply{Text: "Sure! Here is a module that does what you asked."},
		reply(andDesign, andTB),
	)

	report := h.run(t, Config{MaxAttempts: 10}, "bad spec")

	assert.True(t, report.Passed)
	require.Len(t, report.Attempts, 2)
	assert.Equal(t, OutcomeFormatFailure, report.Attempts[0].Outcome)
	assert.Equal(t, MissingTags, report.Attempts[0].Diagnostic)

	reqs := h.client.Requests()
	require.Len(t, reqs, 2)
	assert.NotContains(t, reqs[0].User, MissingTags)
	assert.Contains(t, reqs[1].User, MissingTags)
	assert.Equal(t, 1, h.tools.builds)
	assert.Equal(t, "\nATTEMPT 1\nFormat failure\n\nATTEMPT 2\nPASS\n", h.out.String())
}

func TestRun_ExhaustsOnRepeatedBuildFailures(t *testing.T) {
	h := newHarness(t, reply("module a;", andTB), reply("module b;", andTB), reply("module c;", andTB))
	h.tools.build = func(n int) sim.ExecResult {
		return sim.ExecResult{ExitCode: 1, Stderr: fmt.Sprintf("%%Error: design.sv:1:%d: syntax error", n)}
	}

	report := h.run(t, Config{MaxAttempts: 3}, "counter")

	assert.False(t, report.Passed)
	assert.Equal(t, StateExhausted, report.State)
	require.Len(t, report.Attempts, 3)
	for _, a := range report.Attempts {
		assert.Equal(t, OutcomeBuildFailure, a.Outcome)
	}

	reqs := h.client.Requests()
	require.Len(t, reqs, 3)
	assert.NotContains(t, reqs[0].User, "%Error")
	assert.Contains(t, reqs[1].User, "%Error: design.sv:1:1: syntax error")
	assert.Contains(t, reqs[2].User, "%Error: design.sv:1:2: syntax error")
	assert.NotContains(t, reqs[2].User, "design.sv:1:1:")

	assert.Equal(t, 0, h.tools.runs)
	assert.Equal(t, 0, h.launcher.calls)
	assert.Contains(t, h.out.String(), "Verilator failed:\n%Error: design.sv:1:3: syntax error\n")
	assert.True(t, bytes.HasSuffix(h.out.Bytes(), []byte("FAILED AFTER MAX ATTEMPTS\n")))
	assert.Equal(t, StateExhausted, h.states[len(h.states)-1])
}

func TestRun_RuntimeFailureIsRetried(t *testing.T) {
	h := newHarness(t, reply(andDesign, andTB), reply(andDesign, andTB))
	h.tools.run = func(n int) sim.ExecResult {
		if n == 1 {
			return sim.ExecResult{ExitCode: 134, Stderr: "%Error: tb.sv:4: Assertion failed in top.tb"}
		}
		return sim.ExecResult{}
	}

	report := h.run(t, Config{MaxAttempts: 5}, "AND gate")

	assert.True(t, report.Passed)
	require.Len(t, report.Attempts, 2)
	assert.Equal(t, OutcomeRuntimeFailure, report.Attempts[0].Outcome)
	assert.Contains(t, h.client.Requests()[1].User, "Assertion failed in top.tb")
}

func TestRun_FinalFilesMatchPassingAttempt(t *testing.T) {
	h := newHarness(t, reply("module stale;", "module stale_tb;"), reply(andDesign, andTB))
	h.tools.run = func(n int) sim.ExecResult {
		if n == 1 {
			return sim.ExecResult{ExitCode: 1, Stderr: "assertion failed"}
		}
		return sim.ExecResult{}
	}

	report := h.run(t, Config{MaxAttempts: 3}, "AND gate")
	require.True(t, report.Passed)

	assert.Equal(t, andDesign, readFile(t, filepath.Join(h.dir, sim.DesignFile)))
	assert.Equal(t, andTB, readFile(t, filepath.Join(h.dir, sim.TestbenchFile)))

	traces, err := filepath.Glob(filepath.Join(h.dir, sim.TracePattern))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(h.dir, "dump2.vcd")}, traces)
}

func TestRun_ConfigErrorRetriesUntilExhausted(t *testing.T) {
	h := newHarness(t)
	factoryCalls := 0
	h.deps.LLM = llm.NewShared("openai", func(context.Context) (llm.LLMClient, error) {
		factoryCalls++
		return nil, fmt.Errorf("%w: export OPENAI_API_KEY", llm.ErrMissingCredential)
	})

	report := h.run(t, Config{MaxAttempts: 4}, "AND gate")

	assert.False(t, report.Passed)
	require.Len(t, report.Attempts, 4)
	for _, a := range report.Attempts {
		assert.Equal(t, OutcomeConfigError, a.Outcome)
		assert.Contains(t, a.Diagnostic, "OPENAI_API_KEY")
	}
	assert.Equal(t, 4, factoryCalls)
	assert.Equal(t, 0, h.tools.builds)
}

func TestRun_FailFastStopsOnConfigError(t *testing.T) {
	h := newHarness(t)
	h.deps.LLM = llm.NewShared("openai", func(context.Context) (llm.LLMClient, error) {
		return nil, errors.New("no credential")
	})

	report := h.run(t, Config{MaxAttempts: 10, FailFast: true}, "AND gate")

	assert.False(t, report.Passed)
	assert.Equal(t, StateExhausted, report.State)
	assert.Len(t, report.Attempts, 1)
	assert.Contains(t, h.out.String(), "FAILED AFTER MAX ATTEMPTS")
}

func TestRun_RequestErrorIsCarriedForward(t *testing.T) {
	h := newHarness(t,
		llm.Reply{Err: errors.New("429 rate limited")},
		reply(andDesign, andTB),
	)
	h.deps.LLM = llm.NewShared("fake", func(context.Context) (llm.LLMClient, error) { return h.client, nil })

	report := h.run(t, Config{MaxAttempts: 3}, "AND gate")

	assert.True(t, report.Passed)
	require.Len(t, report.Attempts, 2)
	assert.Equal(t, OutcomeRequestError, report.Attempts[0].Outcome)
	assert.Contains(t, h.out.String(), "llm request failed: 429 rate limited\n")
	assert.Contains(t, h.client.Requests()[1].User, "429 rate limited")
}

func TestRun_EmptyReplyIsRequestError(t *testing.T) {
	h := newHarness(t, llm.Reply{Text: ""}, reply(andDesign, andTB))
	h.deps.LLM = llm.NewShared("fake", func(context.Context) (llm.LLMClient, error) { return h.client, nil })

	report := h.run(t, Config{MaxAttempts: 2}, "AND gate")

	require.Len(t, report.Attempts, 2)
	assert.Equal(t, OutcomeRequestError, report.Attempts[0].Outcome)
	assert.Contains(t, report.Attempts[0].Diagnostic, llm.ErrEmptyResponse.Error())
}

func TestRun_ToolchainStartFailureBecomesDiagnostic(t *testing.T) {
	h := newHarness(t, reply(andDesign, andTB), reply(andDesign, andTB))
	h.tools.err = errors.New(`exec: "verilator": executable file not found in $PATH`)

	report := h.run(t, Config{MaxAttempts: 2}, "AND gate")

	assert.False(t, report.Passed)
	require.Len(t, report.Attempts, 2)
	assert.Equal(t, OutcomeToolchainError, report.Attempts[0].Outcome)
	assert.Contains(t, h.client.Requests()[1].User, "executable file not found")
}

func TestRun_RecordsHistoryAndArchivesPass(t *testing.T) {
	h := newHarness(t, llm.Reply{Text: "no tags"}, reply(andDesign, andTB))
	store, err := history.NewFileStore(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)
	bucket := archive.NewMemoryStore()
	h.deps.History = store
	h.deps.Archive = bucket

	report := h.run(t, Config{MaxAttempts: 3, Model: "gpt-4o-mini"}, "AND gate")
	require.True(t, report.Passed)
	assert.Equal(t, []string{sim.DesignFile, sim.TestbenchFile, "dump1.vcd"}, report.Archived)

	runs, err := store.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "gpt-4o-mini", runs[0].Model)
	assert.True(t, runs[0].Passed)
	assert.Equal(t, 2, runs[0].Attempts)

	attempts, err := store.Attempts(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, string(OutcomeFormatFailure), attempts[0].Outcome)
	assert.Equal(t, string(OutcomeSuccess), attempts[1].Outcome)

	names, err := bucket.List(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{sim.DesignFile, "dump1.vcd", sim.TestbenchFile}, names)
	design, err := bucket.Get(context.Background(), "run-1", sim.DesignFile)
	require.NoError(t, err)
	assert.Equal(t, andDesign, string(design))
}

func TestRun_CanceledContext(t *testing.T) {
	h := newHarness(t, reply(andDesign, andTB))
	c, err := New(Config{MaxAttempts: 3}, h.deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := c.Run(ctx, "AND gate")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Attempts)
	assert.Empty(t, h.client.Requests())
}

func TestNew_Validation(t *testing.T) {
	runner := sim.NewRunner(t.TempDir(), &toolchain{}, "verilator", quiet())
	client := llm.NewFakeClient()

	_, err := New(Config{MaxAttempts: 1}, Deps{Runner: runner})
	assert.Error(t, err)
	_, err = New(Config{MaxAttempts: 1}, Deps{LLM: client})
	assert.Error(t, err)
	_, err = New(Config{MaxAttempts: 0}, Deps{LLM: client, Runner: runner})
	assert.Error(t, err)

	c, err := New(Config{MaxAttempts: 1}, Deps{LLM: client, Runner: runner})
	require.NoError(t, err)
	assert.NotNil(t, c.deps.Reporter)
	assert.NotNil(t, c.deps.History)
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf)
	r.AttemptStarted(3)
	r.ModelFailed(errors.New("llm request failed: timeout"))
	r.FormatFailure()
	r.ToolchainFailed("%Error: syntax")
	r.Passed()
	r.Exhausted()

	assert.Equal(t, "\nATTEMPT 3\nllm request failed: timeout\nFormat failure\nVerilator failed:\n%Error: syntax\nPASS\nFAILED AFTER MAX ATTEMPTS\n", buf.String())
}

// Package agent drives the generate, build and simulate loop until a design
// passes its own testbench or the attempt budget runs out.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"svagent/internal/archive"
	"svagent/internal/extract"
	"svagent/internal/history"
	"svagent/internal/llm"
	"svagent/internal/prompt"
	"svagent/internal/sim"
	"svagent/internal/wave"
)

// Runner builds and simulates one design/testbench pair.
type Runner interface {
	Run(ctx context.Context, design, tb string) (sim.Result, error)
}

// Launcher opens the newest trace and returns its path.
type Launcher interface {
	Launch() string
}

type Config struct {
	MaxAttempts int
	MaxTokens   int
	// FailFast ends the run after the first configuration error.
	FailFast bool
	Model    string
	// WorkDir is where the runner leaves its sources and traces.
	WorkDir string
}

// Deps holds the collaborators of a Controller. LLM and Runner are
// required; the rest are optional.
type Deps struct {
	LLM      llm.LLMClient
	Runner   Runner
	Launcher Launcher
	Reporter Reporter
	History  history.Store
	Archive  archive.Store
	Logger   *slog.Logger
	NewRunID func() string
	Now      func() time.Time
	OnState  func(State)
}

// Attempt is everything produced by one pass through the loop.
type Attempt struct {
	Index      int
	Prompt     prompt.Prompt
	Response   string
	Design     string
	Testbench  string
	Outcome    Outcome
	Diagnostic string
	Duration   time.Duration
}

// Report summarizes a finished run.
type Report struct {
	RunID    string
	Passed   bool
	State    State
	Attempts []Attempt
	// Trace is the waveform opened after a pass, if any.
	Trace    string
	Archived []string
}

type Controller struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) (*Controller, error) {
	if deps.LLM == nil {
		return nil, errors.New("agent: llm client is required")
	}
	if deps.Runner == nil {
		return nil, errors.New("agent: runner is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("agent: max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	if deps.History == nil {
		deps.History = history.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Controller{cfg: cfg, deps: deps}, nil
}

func (c *Controller) enter(s State) {
	c.deps.Logger.Debug("state", "state", string(s))
	if c.deps.OnState != nil {
		c.deps.OnState(s)
	}
}

// Run generates a design for spec. A run that exhausts its budget is a
// normal result, not an error; the error is non-nil only when ctx ends.
func (c *Controller) Run(ctx context.Context, spec string) (Report, error) {
	report := Report{RunID: c.deps.NewRunID(), State: StateIdle}
	c.enter(StateIdle)
	log := c.deps.Logger.With("run_id", report.RunID)

	started := c.deps.Now()
	if err := c.deps.History.StartRun(ctx, history.Run{
		ID: report.RunID, Spec: spec, Model: c.cfg.Model, StartedAt: started,
	}); err != nil {
		log.Warn("history: start run", "error", err)
	}

	var diagnostic string
	for index := 1; index <= c.cfg.MaxAttempts; index++ {
		if err := ctx.Err(); err != nil {
			c.finish(log, &report)
			return report, err
		}
		c.deps.Reporter.AttemptStarted(index)

		at := c.deps.Now()
		attempt := c.attempt(ctx, index, spec, diagnostic)
		attempt.Duration = c.deps.Now().Sub(at)
		report.Attempts = append(report.Attempts, attempt)
		c.record(ctx, log, report.RunID, attempt, at)

		if attempt.Outcome == OutcomeSuccess {
			report.Passed = true
			report.State = StateSuccess
			c.enter(StateSuccess)
			c.deps.Reporter.Passed()
			c.afterPass(ctx, log, &report)
			c.finish(log, &report)
			return report, nil
		}

		if err := ctx.Err(); err != nil {
			c.finish(log, &report)
			return report, err
		}
		c.enter(StateRetrying)
		diagnostic = attempt.Diagnostic
		if attempt.Outcome == OutcomeConfigError && c.cfg.FailFast {
			log.Warn("stopping after configuration error", "attempt", index)
			break
		}
	}

	report.State = StateExhausted
	c.enter(StateExhausted)
	c.deps.Reporter.Exhausted()
	c.finish(log, &report)
	return report, nil
}

func (c *Controller) attempt(ctx context.Context, index int, spec, diagnostic string) Attempt {
	a := Attempt{Index: index}

	c.enter(StatePrompting)
	a.Prompt = prompt.Build(spec, diagnostic)

	c.enter(StateAwaitingModel)
	phaseCtx := llm.WithPhase(ctx, "attempt-"+strconv.Itoa(index))
	raw, err := c.deps.LLM.Generate(phaseCtx, llm.Request{
		System:    a.Prompt.System,
		User:      a.Prompt.User,
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		a.Outcome = OutcomeRequestError
		if llm.IsConfigError(err) {
			a.Outcome = OutcomeConfigError
		}
		a.Diagnostic = err.Error()
		c.deps.Reporter.ModelFailed(err)
		return a
	}
	a.Response = raw

	c.enter(StateParsing)
	blocks, ok := extract.Parse(raw)
	if !ok {
		a.Outcome = OutcomeFormatFailure
		a.Diagnostic = MissingTags
		c.deps.Reporter.FormatFailure()
		return a
	}
	a.Design, a.Testbench = blocks.Design, blocks.Testbench

	c.enter(StateRunning)
	res, err := c.deps.Runner.Run(ctx, a.Design, a.Testbench)
	switch {
	case err != nil:
		a.Outcome = OutcomeToolchainError
		a.Diagnostic = err.Error()
	case res.Passed:
		a.Outcome = OutcomeSuccess
		return a
	case res.Stage == sim.StageBuild:
		a.Outcome = OutcomeBuildFailure
		a.Diagnostic = res.Diagnostic
	default:
		a.Outcome = OutcomeRuntimeFailure
		a.Diagnostic = res.Diagnostic
	}
	c.deps.Reporter.ToolchainFailed(a.Diagnostic)
	return a
}

// afterPass opens the trace and archives the passing files. Neither step
// can change the verdict.
func (c *Controller) afterPass(ctx context.Context, log *slog.Logger, report *Report) {
	if c.deps.Launcher != nil {
		report.Trace = c.deps.Launcher.Launch()
	}
	if c.deps.Archive == nil || c.cfg.WorkDir == "" {
		return
	}
	trace := report.Trace
	if trace == "" {
		trace = wave.LatestTrace(c.cfg.WorkDir, sim.TracePattern)
	}
	uploaded, err := archive.UploadFiles(ctx, c.deps.Archive, report.RunID,
		filepath.Join(c.cfg.WorkDir, sim.DesignFile),
		filepath.Join(c.cfg.WorkDir, sim.TestbenchFile),
		trace,
	)
	report.Archived = uploaded
	if err != nil {
		log.Warn("archive upload failed", "error", err)
		return
	}
	log.Info("archived passing design", "files", uploaded)
}

func (c *Controller) record(ctx context.Context, log *slog.Logger, runID string, a Attempt, at time.Time) {
	log.Info("attempt finished", "attempt", a.Index, "outcome", string(a.Outcome), "duration", a.Duration)
	err := c.deps.History.AddAttempt(ctx, history.Attempt{
		RunID:      runID,
		Index:      a.Index,
		Outcome:    string(a.Outcome),
		Diagnostic: a.Diagnostic,
		Duration:   a.Duration,
		At:         at,
	})
	if err != nil {
		log.Warn("history: add attempt", "attempt", a.Index, "error", err)
	}
}

func (c *Controller) finish(log *slog.Logger, report *Report) {
	// The run context may already be canceled; the summary is still written.
	ctx := context.Background()
	if err := c.deps.History.FinishRun(ctx, report.RunID, report.Passed, len(report.Attempts), c.deps.Now()); err != nil {
		log.Warn("history: finish run", "error", err)
	}
}

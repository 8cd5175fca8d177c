package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"svagent/internal/agent"
	"svagent/internal/config"
	"svagent/internal/sim"
	"svagent/internal/wave"
)

type rootOptions struct {
	envFile     string
	spec        string
	workDir     string
	maxAttempts int
	model       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "svagent",
		Short: "Generate a SystemVerilog design and testbench that pass Verilator",
		Long: `svagent asks a language model for a SystemVerilog design and a
self-checking testbench, builds and simulates them with Verilator, and feeds
any compiler or simulator errors back to the model until the testbench passes
or the attempt budget is spent. On success the newest waveform is opened in
the configured viewer.
`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "KEY=VALUE settings file read at startup")
	cmd.Flags().StringVar(&opts.spec, "spec", "", "hardware behavior to implement (prompted for when empty)")
	cmd.Flags().StringVar(&opts.workDir, "workdir", "", "directory for generated sources, build output and traces")
	cmd.Flags().IntVar(&opts.maxAttempts, "max-attempts", 0, "attempt budget (overrides SV_AGENT_MAX_ATTEMPTS)")
	cmd.Flags().StringVar(&opts.model, "model", "", "model identifier (overrides SV_AGENT_MODEL)")

	cmd.AddCommand(newHistoryCmd(opts), newArchiveCmd(opts))
	return cmd
}

// applyOverrides lets explicit flags win over file and environment values.
func applyOverrides(cfg *config.Config, opts *rootOptions) {
	if opts.workDir != "" {
		cfg.WorkDir = opts.workDir
	}
	if opts.maxAttempts > 0 {
		cfg.MaxAttempts = opts.maxAttempts
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
}

func runAgent(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts)
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	spec := opts.spec
	if spec == "" {
		spec, err = readSpec(os.Stdin, cmd.OutOrStdout())
		if err != nil {
			return err
		}
	}

	client := newLLMClient(cfg, logger)
	defer client.Close()

	exec, closeExec, err := newExecutor(cfg, logger)
	if err != nil {
		return err
	}
	defer closeExec()

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bucket, err := newArchive(cfg)
	if err != nil {
		return err
	}

	controller, err := agent.New(agent.Config{
		MaxAttempts: cfg.MaxAttempts,
		MaxTokens:   cfg.MaxTokens,
		FailFast:    cfg.FailFast,
		Model:       cfg.Model,
		WorkDir:     cfg.WorkDir,
	}, agent.Deps{
		LLM:      client,
		Runner:   sim.NewRunner(cfg.WorkDir, exec, cfg.Verilator, logger),
		Launcher: wave.NewLauncher(cfg.WorkDir, sim.TracePattern, cfg.Viewer, logger),
		Reporter: agent.NewConsoleReporter(cmd.OutOrStdout()),
		History:  store,
		Archive:  bucket,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	report, err := controller.Run(ctx, spec)
	if err != nil {
		logger.Warn("run interrupted", "run_id", report.RunID, "attempts", len(report.Attempts), "error", err)
		return nil
	}
	logger.Info("run finished", "run_id", report.RunID, "passed", report.Passed, "attempts", len(report.Attempts))
	return nil
}

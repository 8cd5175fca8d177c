package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"svagent/internal/archive"
	"svagent/internal/config"
	"svagent/internal/history"
	"svagent/internal/llm"
	"svagent/internal/sim"
)

const specPrompt = "Describe the hardware behavior: "

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

// readSpec reads one line from in. The prompt is only shown when in is a
// terminal so piped input stays clean.
func readSpec(in *os.File, out io.Writer) (string, error) {
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(out, specPrompt)
	}
	return readLine(in)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read specification: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// newLLMClient returns the run-wide client. The provider is built on the
// first request so a missing credential surfaces as an attempt diagnostic.
func newLLMClient(cfg *config.Config, logger *slog.Logger) llm.LLMClient {
	factory := func(ctx context.Context) (llm.LLMClient, error) {
		base, err := llm.NewProvider(ctx, llm.ProviderConfig{
			Provider:      cfg.Provider,
			Model:         cfg.Model,
			APIKey:        cfg.APIKey,
			CredentialKey: cfg.CredentialKey(),
			BaseURL:       cfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return llm.Wrap(base,
			llm.WithHooks(),
			llm.WithLogging(logger),
			llm.Retry(cfg.LLMRetries, 2*time.Second),
			llm.RateLimit(cfg.LLMRPS, cfg.LLMBurst),
		), nil
	}

	var client llm.LLMClient = llm.NewShared(cfg.Provider, factory)
	if cfg.TranscriptDir != "" {
		client = llm.WithHook(client, &llm.TranscriptSaver{Dir: cfg.TranscriptDir})
	}
	return client
}

func newExecutor(cfg *config.Config, logger *slog.Logger) (sim.Executor, func(), error) {
	switch cfg.Toolchain {
	case config.ToolchainDocker:
		d, err := sim.NewDockerExecutor(cfg.DockerImage, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	case config.ToolchainLocal, "":
		return sim.LocalExecutor{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown toolchain %q (want %s or %s)", cfg.Toolchain, config.ToolchainLocal, config.ToolchainDocker)
	}
}

func openHistory(cfg *config.Config) (history.Store, error) {
	store, err := history.Open(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", cfg.History, err)
	}
	return store, nil
}

// newArchive returns nil when archiving is disabled.
func newArchive(cfg *config.Config) (archive.Store, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	s3, err := archive.NewS3Store(archive.S3Config{
		Endpoint:  cfg.Archive.Endpoint,
		Region:    cfg.Archive.Region,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Bucket:    cfg.Archive.Bucket,
		UseSSL:    cfg.Archive.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	return s3, nil
}

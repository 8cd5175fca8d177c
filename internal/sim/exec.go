package sim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command is one toolchain invocation, run inside the working directory.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// ExecResult is what a finished process left behind. A non-zero ExitCode is a
// verdict, not an error.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs toolchain commands. An error means the command could not be
// run at all.
type Executor interface {
	Exec(ctx context.Context, dir string, cmd Command) (ExecResult, error)
}

// LocalExecutor runs commands on the host.
type LocalExecutor struct{}

func (LocalExecutor) Exec(ctx context.Context, dir string, cmd Command) (ExecResult, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("run %s: %w", cmd.Name, err)
}

// Package history records every run and attempt so past results can be
// inspected after the process exits.
package history

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("history: run not found")

type Run struct {
	ID         string    `json:"id"`
	Spec       string    `json:"spec"`
	Model      string    `json:"model"`
	Passed     bool      `json:"passed"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

type Attempt struct {
	RunID      string        `json:"run_id"`
	Index      int           `json:"index"`
	Outcome    string        `json:"outcome"`
	Diagnostic string        `json:"diagnostic,omitempty"`
	Duration   time.Duration `json:"duration"`
	At         time.Time     `json:"at"`
}

// Store persists runs and their attempts.
type Store interface {
	StartRun(ctx context.Context, run Run) error
	AddAttempt(ctx context.Context, attempt Attempt) error
	FinishRun(ctx context.Context, runID string, passed bool, attempts int, at time.Time) error
	// Runs returns the most recent runs first.
	Runs(ctx context.Context, limit int) ([]Run, error)
	Attempts(ctx context.Context, runID string) ([]Attempt, error)
	Close() error
}

// Open picks a backend from location: "" disables history, "sqlite://path"
// uses SQLite, "postgres://..." uses PostgreSQL, anything else is a JSON file.
func Open(location string) (Store, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return Nop{}, nil
	case strings.HasPrefix(location, "sqlite://"):
		return NewSQLite(strings.TrimPrefix(location, "sqlite://"))
	case strings.HasPrefix(location, "postgres://"), strings.HasPrefix(location, "postgresql://"):
		return NewPostgres(location)
	default:
		return NewFileStore(location)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) StartRun(context.Context, Run) error { return nil }

func (Nop) AddAttempt(context.Context, Attempt) error { return nil }

func (Nop) FinishRun(context.Context, string, bool, int, time.Time) error { return nil }

func (Nop) Runs(context.Context, int) ([]Run, error) { return nil, nil }

func (Nop) Attempts(context.Context, string) ([]Attempt, error) { return nil, nil }

func (Nop) Close() error { return nil }

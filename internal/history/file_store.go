package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type fileData struct {
	Runs     []Run     `json:"runs"`
	Attempts []Attempt `json:"attempts"`
}

// FileStore keeps the whole history in one JSON document and rewrites it
// after every change.
type FileStore struct {
	path string

	mu   sync.Mutex
	data fileData
}

func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode history file: %w", err)
	}
	return s, nil
}

func (s *FileStore) StartRun(_ context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.data.Runs {
		if s.data.Runs[i].ID == run.ID {
			s.data.Runs[i] = run
			return s.saveLocked()
		}
	}
	s.data.Runs = append(s.data.Runs, run)
	return s.saveLocked()
}

func (s *FileStore) AddAttempt(_ context.Context, attempt Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(attempt.RunID) < 0 {
		return ErrNotFound
	}
	s.data.Attempts = append(s.data.Attempts, attempt)
	return s.saveLocked()
}

func (s *FileStore) FinishRun(_ context.Context, runID string, passed bool, attempts int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findLocked(runID)
	if i < 0 {
		return ErrNotFound
	}
	s.data.Runs[i].Passed = passed
	s.data.Runs[i].Attempts = attempts
	s.data.Runs[i].FinishedAt = at
	return s.saveLocked()
}

func (s *FileStore) Runs(_ context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	out := append([]Run(nil), s.data.Runs...)
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *FileStore) Attempts(_ context.Context, runID string) ([]Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findLocked(runID) < 0 {
		return nil, ErrNotFound
	}
	var out []Attempt
	for _, a := range s.data.Attempts {
		if a.RunID == runID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) findLocked(runID string) int {
	for i := range s.data.Runs {
		if s.data.Runs[i].ID == runID {
			return i
		}
	}
	return -1
}

func (s *FileStore) saveLocked() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Package wave opens the newest simulation trace in an external viewer.
package wave

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// LatestTrace returns the most recently modified file in dir matching
// pattern, or "" when there is none.
func LatestTrace(dir, pattern string) string {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return ""
	}
	var (
		newest string
		best   int64
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		mt := info.ModTime().UnixNano()
		if newest == "" || mt > best {
			newest, best = m, mt
		}
	}
	return newest
}

// StartFunc starts a viewer process without waiting for it to exit.
type StartFunc func(viewer, trace string) error

// Launcher opens traces in Viewer. Failures are logged and never returned.
type Launcher struct {
	Dir     string
	Pattern string
	Viewer  string
	Start   StartFunc
	Logger  *slog.Logger
}

func NewLauncher(dir, pattern, viewer string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{Dir: dir, Pattern: pattern, Viewer: viewer, Start: startDetached, Logger: logger}
}

// Launch opens the newest trace, if any, and returns its path.
func (l *Launcher) Launch() string {
	trace := LatestTrace(l.Dir, l.Pattern)
	if trace == "" {
		l.Logger.Info("no trace file to open", "dir", l.Dir)
		return ""
	}
	if l.Viewer == "" || l.Start == nil {
		return trace
	}
	if err := l.Start(l.Viewer, trace); err != nil {
		l.Logger.Warn("waveform viewer did not start", "viewer", l.Viewer, "trace", trace, "error", err)
	}
	return trace
}

// startDetached starts the viewer and reaps it in the background; nobody
// waits for the result.
func startDetached(viewer, trace string) error {
	cmd := exec.Command(viewer, trace)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

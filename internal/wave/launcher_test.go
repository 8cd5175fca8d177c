package wave

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("$date $end"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestLatestTrace(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "", LatestTrace(dir, "*.vcd"))

	base := time.Now().Add(-time.Hour)
	touch(t, filepath.Join(dir, "a.vcd"), base)
	touch(t, filepath.Join(dir, "b.vcd"), base.Add(2*time.Minute))
	touch(t, filepath.Join(dir, "c.vcd"), base.Add(time.Minute))
	touch(t, filepath.Join(dir, "newest.txt"), base.Add(time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "dir.vcd"), 0o755))

	assert.Equal(t, filepath.Join(dir, "b.vcd"), LatestTrace(dir, "*.vcd"))
}

func TestLauncher_StartsViewerWithNewestTrace(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "dump.vcd"), time.Now())

	var gotViewer, gotTrace string
	l := NewLauncher(dir, "*.vcd", "surfer", quiet())
	l.Start = func(viewer, trace string) error {
		gotViewer, gotTrace = viewer, trace
		return nil
	}

	assert.Equal(t, filepath.Join(dir, "dump.vcd"), l.Launch())
	assert.Equal(t, "surfer", gotViewer)
	assert.Equal(t, filepath.Join(dir, "dump.vcd"), gotTrace)
}

func TestLauncher_NoTraceDoesNothing(t *testing.T) {
	called := false
	l := NewLauncher(t.TempDir(), "*.vcd", "surfer", quiet())
	l.Start = func(viewer, trace string) error {
		called = true
		return nil
	}
	assert.Equal(t, "", l.Launch())
	assert.False(t, called)
}

func TestLauncher_ViewerFailureIsSwallowed(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "dump.vcd"), time.Now())
	l := NewLauncher(dir, "*.vcd", "surfer", quiet())
	l.Start = func(viewer, trace string) error { return errors.New("exec: \"surfer\": not found") }

	assert.NotPanics(t, func() { l.Launch() })
}

func TestStartDetached_MissingViewer(t *testing.T) {
	assert.Error(t, startDetached("definitely-not-a-real-viewer-svagent", "x.vcd"))
}

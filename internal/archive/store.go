// Package archive uploads the files of a passing run to object storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("archive: object not found")

// Store keeps run files under "<run-id>/<name>".
type Store interface {
	Put(ctx context.Context, runID, name string, content []byte) error
	Get(ctx context.Context, runID, name string) ([]byte, error)
	List(ctx context.Context, runID string) ([]string, error)
}

func objectKey(runID, name string) (string, error) {
	runID = strings.TrimSpace(runID)
	name = strings.TrimLeft(strings.TrimSpace(name), "/")
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if name == "" {
		return "", fmt.Errorf("object name is required")
	}
	return runID + "/" + name, nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".sv", ".v", ".vcd", ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// UploadFiles copies each path to store under its base name. Empty paths
// are skipped. It stops at the first failure.
func UploadFiles(ctx context.Context, store Store, runID string, paths ...string) ([]string, error) {
	var uploaded []string
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return uploaded, fmt.Errorf("read %s: %w", p, err)
		}
		name := filepath.Base(p)
		if err := store.Put(ctx, runID, name, raw); err != nil {
			return uploaded, fmt.Errorf("upload %s: %w", name, err)
		}
		uploaded = append(uploaded, name)
	}
	return uploaded, nil
}

// Package workspace owns the process-wide temporary directory and the
// per-job directories inside it.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"interpserve/logger"
)

// Workspace is created once at startup and removed at shutdown.
type Workspace struct {
	root string
	once sync.Once
}

// New creates a fresh temp root under base (os.TempDir() when empty).
func New(base string) (*Workspace, error) {
	if base != "" {
		if err := os.MkdirAll(base, 0755); err != nil {
			return nil, fmt.Errorf("create work base %s: %w", base, err)
		}
	}
	root, err := os.MkdirTemp(base, "interpserve-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "jobs"), 0755); err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	logger.Infof("Temporary directory: %s", root)
	return &Workspace{root: root}, nil
}

// Root returns the temp root.
func (w *Workspace) Root() string {
	return w.root
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// JobPath returns the directory for job id without creating it.
func (w *Workspace) JobPath(id string) (string, error) {
	if !validID(id) {
		return "", fmt.Errorf("invalid job id %q", id)
	}
	return filepath.Join(w.root, "jobs", id), nil
}

// JobDir creates and returns the directory for job id.
func (w *Workspace) JobDir(id string) (string, error) {
	dir, err := w.JobPath(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}
	return dir, nil
}

// SaveUpload streams r into <job dir>/upload<ext> and returns the path.
func (w *Workspace) SaveUpload(id, filename string, r io.Reader) (string, error) {
	dir, err := w.JobDir(id)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "upload"+strings.ToLower(filepath.Ext(filename)))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

// RemoveJob deletes a job's directory.
func (w *Workspace) RemoveJob(id string) error {
	dir, err := w.JobPath(id)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// Prune removes job directories not modified within maxAge and returns their ids.
// Ids in keep are left alone.
func (w *Workspace) Prune(maxAge time.Duration, keep func(id string) bool) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, "jobs"))
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || (keep != nil && keep(e.Name())) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := w.RemoveJob(e.Name()); err != nil {
			logger.Errorf("Failed to prune job directory %s: %v", e.Name(), err)
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// Cleanup removes the whole temp tree. Errors are logged, not returned, and
// later calls do nothing.
func (w *Workspace) Cleanup() {
	w.once.Do(func() {
		if err := os.RemoveAll(w.root); err != nil {
			logger.Errorf("Error while cleaning temporary directory: %v", err)
			return
		}
		logger.Infof("Cleaned temporary directory: %s", w.root)
	})
}

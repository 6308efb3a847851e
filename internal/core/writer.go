package core

// writer.go places generated files under {root}/{tenant}/{YYYY-MM}/.
//
// Every write goes to a temp file in the target directory, is fsynced and
// then renamed over the destination, so a reader never sees a half-written
// artifact and a failed write leaves the previous file intact.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrInvalidPath is returned when a tenant id or file name would escape the
// output directory.
var ErrInvalidPath = errors.New("invalid artifact path")

// ArtifactWriter writes artifact files atomically below a root directory.
type ArtifactWriter struct {
	root string
}

// NewArtifactWriter creates a writer rooted at dir.
func NewArtifactWriter(dir string) (*ArtifactWriter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: empty output directory", ErrInvalidPath)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	return &ArtifactWriter{root: abs}, nil
}

// Root returns the absolute output directory.
func (w *ArtifactWriter) Root() string { return w.root }

// Dir returns the directory that holds a tenant's files for a period.
func (w *ArtifactWriter) Dir(tenantID string, p Period) (string, error) {
	if !safeSegment(tenantID) {
		return "", fmt.Errorf("%w: tenant %q", ErrInvalidPath, tenantID)
	}
	return filepath.Join(w.root, tenantID, p.String()), nil
}

// Write stores data as name inside the tenant/period directory and returns
// the final path.
func (w *ArtifactWriter) Write(ctx context.Context, tenantID string, p Period, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !safeSegment(name) {
		return "", fmt.Errorf("%w: file %q", ErrInvalidPath, name)
	}
	dir, err := w.Dir(tenantID, p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	dest := filepath.Join(dir, name)
	if err := writeFileAtomic(dir, dest, data); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return dest, nil
}

// ReadFile reads back a file previously returned by Write. Paths outside
// the root are refused.
func (w *ArtifactWriter) ReadFile(path string) ([]byte, error) {
	rel, err := filepath.Rel(w.root, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return os.ReadFile(path)
}

func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && filepath.VolumeName(s) == ""
}

func writeFileAtomic(dir, dest string, data []byte) error {
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	return d.Sync()
}

package core

// scheduler.go provides background maintenance for the artifact directory.
//
// A generation interrupted between CreateTemp and Rename leaves a ".tmp-*"
// file next to the artifacts. The sweeper removes such files once they are
// older than MaxAge. It logs progress and errors but never stops the
// application when one pass fails.

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const tempPrefix = ".tmp-"

// SweepConfig holds configuration for the temp-file sweeper.
// Zero values fall back to defaults.
type SweepConfig struct {
	MaxAge        time.Duration // Age after which a temp file is abandoned (default: 1h)
	CheckInterval time.Duration // How often to run (default: 15m)
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.MaxAge <= 0 {
		c.MaxAge = time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 15 * time.Minute
	}
	return c
}

// StartTempSweeper runs SweepTemp immediately, then every CheckInterval,
// until ctx is cancelled. Run it in its own goroutine.
func (w *ArtifactWriter) StartTempSweeper(ctx context.Context, cfg SweepConfig) {
	cfg = cfg.withDefaults()
	slog.Info("temp sweeper started",
		"root", w.root,
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.CheckInterval.String(),
	)

	w.runSweep(cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("temp sweeper stopped")
			return
		case <-ticker.C:
			w.runSweep(cfg)
		}
	}
}

func (w *ArtifactWriter) runSweep(cfg SweepConfig) {
	start := time.Now()
	removed, err := w.SweepTemp(start.Add(-cfg.MaxAge))
	if err != nil {
		slog.Error("temp sweep failed", "error", err, "removed", removed)
		return
	}
	slog.Debug("temp sweep completed",
		"removed", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// SweepTemp removes writer temp files last modified before cutoff and
// returns how many were removed. Finished artifacts are never touched.
func (w *ArtifactWriter) SweepTemp(cutoff time.Time) (int, error) {
	removed := 0
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

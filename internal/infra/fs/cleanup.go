// Package fs provides the periodic cleanup backstop: the pipeline
// deletes its own artifacts, the sweeper catches anything orphaned by a
// crash mid-delivery.
package fs

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// HistoryPruner prunes old delivery-history rows.
type HistoryPruner interface {
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// RemotePruner expires uploaded oversize artifacts.
type RemotePruner interface {
	DeleteOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// Cleaner handles automated cleanup of files and history.
type Cleaner struct {
	downloadDir string
	maxFileAge  time.Duration
	interval    time.Duration

	history       HistoryPruner // may be nil
	historyMaxAge time.Duration

	remote       RemotePruner // may be nil
	remoteMaxAge time.Duration

	stopCh chan struct{}
}

// Config holds configuration for the cleaner.
type Config struct {
	DownloadDir string
	MaxFileAge  time.Duration
	Interval    time.Duration

	History       HistoryPruner
	HistoryMaxAge time.Duration

	Remote       RemotePruner
	RemoteMaxAge time.Duration
}

// NewCleaner creates a new Cleaner.
func NewCleaner(cfg *Config) *Cleaner {
	return &Cleaner{
		downloadDir:   cfg.DownloadDir,
		maxFileAge:    cfg.MaxFileAge,
		interval:      cfg.Interval,
		history:       cfg.History,
		historyMaxAge: cfg.HistoryMaxAge,
		remote:        cfg.Remote,
		remoteMaxAge:  cfg.RemoteMaxAge,
		stopCh:        make(chan struct{}),
	}
}

// Start runs the cleanup loop until the context is done or Stop is called.
func (c *Cleaner) Start(ctx context.Context) {
	if c.interval <= 0 {
		return
	}

	go func() {
		slog.Info("Starting cleanup loop",
			"dir", c.downloadDir,
			"max_age", c.maxFileAge,
			"interval", c.interval,
		)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		// Run immediately on start to drop leftovers from a previous run.
		c.runOnce(ctx)

		for {
			select {
			case <-ticker.C:
				c.runOnce(ctx)
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the cleanup loop.
func (c *Cleaner) Stop() {
	close(c.stopCh)
}

func (c *Cleaner) runOnce(ctx context.Context) {
	c.SweepDownloads()

	if c.history != nil && c.historyMaxAge > 0 {
		if deleted, err := c.history.DeleteOlderThan(ctx, c.historyMaxAge); err != nil {
			slog.Error("History prune error", "error", err)
		} else if deleted > 0 {
			slog.Info("History pruned", "deleted", deleted, "max_age", c.historyMaxAge)
		}
	}

	if c.remote != nil && c.remoteMaxAge > 0 {
		if deleted, err := c.remote.DeleteOlderThan(ctx, c.remoteMaxAge); err != nil {
			slog.Error("Remote prune error", "error", err)
		} else if deleted > 0 {
			slog.Info("Remote storage pruned", "deleted", deleted, "max_age", c.remoteMaxAge)
		}
	}
}

// SweepDownloads removes download-dir files older than the max age.
func (c *Cleaner) SweepDownloads() {
	if c.downloadDir == "" {
		return
	}

	threshold := time.Now().Add(-c.maxFileAge)
	deleted := 0

	err := filepath.Walk(c.downloadDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		if info.ModTime().Before(threshold) {
			if err := os.Remove(path); err != nil {
				slog.Warn("Failed to delete orphaned file",
					"path", path,
					"error", err,
				)
			} else {
				deleted++
			}
		}

		return nil
	})

	if err != nil {
		slog.Error("Download sweep error",
			"dir", c.downloadDir,
			"error", err,
		)
	}

	if deleted > 0 {
		slog.Info("Download sweep completed",
			"deleted", deleted,
			"max_age", c.maxFileAge,
		)
	}
}

package cleanup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/italolelis/filebot/internal/files"
	"github.com/italolelis/filebot/internal/logctx"
	"github.com/italolelis/filebot/internal/storage"
)

// Cleaner deletes completed downloads from the upload directory once they
// are older than the retention period.
type Cleaner struct {
	repo  storage.HistoryRepository
	store *files.Store
	keep  time.Duration
	now   func() time.Time
}

func NewCleaner(repo storage.HistoryRepository, store *files.Store, keep time.Duration) *Cleaner {
	return &Cleaner{repo: repo, store: store, keep: keep, now: time.Now}
}

// Run deletes expired files every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) error {
	logger := logctx.LoggerFromContext(ctx).With("component", "cleanup")
	ctx = logctx.WithLogger(ctx, logger)

	logger.InfoContext(ctx, "cleanup started", "keep", c.keep, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "cleanup shutdown", "reason", "context_cancelled")

			return nil
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *Cleaner) runOnce(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "cleanup panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	deleted, err := c.DeleteExpiredFiles(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete expired files", "err", err)

		return
	}

	if deleted > 0 {
		logger.InfoContext(ctx, "expired downloads deleted", "count", deleted)
	}
}

// DeleteExpiredFiles removes the payload of every completed download older
// than the retention period and returns how many were deleted.
func (c *Cleaner) DeleteExpiredFiles(ctx context.Context) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := c.now()

	records, err := c.repo.ListExpired(ctx, now.Add(-c.keep))
	if err != nil {
		return 0, fmt.Errorf("failed to list expired downloads: %w", err)
	}

	deleted := 0

	for _, rec := range records {
		recLogger := logger.With("gid", rec.GID, "name", rec.Name)

		name, err := c.relativeName(rec)
		if err != nil {
			recLogger.WarnContext(ctx, "download is outside the upload directory, skipping", "dir", rec.Dir)
		} else {
			switch err := c.store.Delete(name); {
			case errors.Is(err, files.ErrNotFound):
				recLogger.DebugContext(ctx, "expired download already gone")
			case err != nil:
				recLogger.ErrorContext(ctx, "failed to delete expired download", "err", err)

				continue
			default:
				deleted++

				recLogger.InfoContext(ctx, "deleted expired download")
			}
		}

		if err := c.repo.MarkCleaned(ctx, rec.ID, now); err != nil {
			return deleted, fmt.Errorf("failed to mark %s cleaned: %w", rec.GID, err)
		}
	}

	return deleted, nil
}

func (c *Cleaner) relativeName(rec storage.DownloadRecord) (string, error) {
	dir := rec.Dir
	if dir == "" {
		dir = c.store.Root()
	}

	rel, err := filepath.Rel(c.store.Root(), filepath.Join(dir, rec.Name))
	if err != nil {
		return "", err
	}

	if _, err := c.store.Resolve(rel); err != nil {
		return "", err
	}

	return rel, nil
}

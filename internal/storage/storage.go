package storage

import (
	"context"
	"time"
)

// DownloadRecord is the audit entry of a finished download lifecycle.
type DownloadRecord struct {
	ID         int64
	GID        string
	Name       string
	Status     string
	Message    string
	Dir        string
	ChatID     int64
	FinishedAt time.Time
	CleanedAt  *time.Time
}

// HistoryRepository stores terminal lifecycle outcomes. Nothing is resumed
// from it after a restart.
type HistoryRepository interface {
	RecordOutcome(ctx context.Context, record DownloadRecord) error
	ListRecent(ctx context.Context, limit int) ([]DownloadRecord, error)
	// ListExpired returns completed downloads finished before the cutoff that
	// were not cleaned up yet.
	ListExpired(ctx context.Context, before time.Time) ([]DownloadRecord, error)
	MarkCleaned(ctx context.Context, id int64, at time.Time) error
}

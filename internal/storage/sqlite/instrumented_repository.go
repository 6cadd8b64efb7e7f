package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/filebot/internal/storage"
	"github.com/italolelis/filebot/internal/telemetry"
)

// InstrumentedDownloadRepository wraps DownloadRepository with telemetry.
type InstrumentedDownloadRepository struct {
	repo      *DownloadRepository
	telemetry *telemetry.Telemetry
}

var _ storage.HistoryRepository = (*InstrumentedDownloadRepository)(nil)

// NewInstrumentedDownloadRepository creates a new instrumented download repository.
func NewInstrumentedDownloadRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      NewDownloadRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedDownloadRepository) RecordOutcome(ctx context.Context, rec storage.DownloadRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_outcome", func(ctx context.Context) error {
		return r.repo.RecordOutcome(ctx, rec)
	})
}

func (r *InstrumentedDownloadRepository) ListRecent(ctx context.Context, limit int) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_recent", func(ctx context.Context) error {
		var err error
		result, err = r.repo.ListRecent(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedDownloadRepository) ListExpired(ctx context.Context, before time.Time) ([]storage.DownloadRecord, error) {
	var result []storage.DownloadRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_expired", func(ctx context.Context) error {
		var err error
		result, err = r.repo.ListExpired(ctx, before)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedDownloadRepository) MarkCleaned(ctx context.Context, id int64, at time.Time) error {
	return r.telemetry.InstrumentDBOperation(ctx, "mark_cleaned", func(ctx context.Context) error {
		return r.repo.MarkCleaned(ctx, id, at)
	})
}

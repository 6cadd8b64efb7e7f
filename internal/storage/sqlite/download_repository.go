package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/filebot/internal/storage"
)

const statusComplete = "complete"

type DownloadRepository struct {
	db *sql.DB
}

var _ storage.HistoryRepository = (*DownloadRepository)(nil)

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: dbConn}
}

func (r *DownloadRepository) RecordOutcome(ctx context.Context, rec storage.DownloadRecord) error {
	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO history (gid, name, status, message, dir, chat_id, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.GID, rec.Name, rec.Status, rec.Message, rec.Dir, rec.ChatID, formatTime(finishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	return nil
}

func (r *DownloadRepository) ListRecent(ctx context.Context, limit int) ([]storage.DownloadRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, gid, name, status, message, dir, chat_id, finished_at, cleaned_at
		FROM history
		ORDER BY finished_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *DownloadRepository) ListExpired(ctx context.Context, before time.Time) ([]storage.DownloadRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, gid, name, status, message, dir, chat_id, finished_at, cleaned_at
		FROM history
		WHERE status = ? AND cleaned_at IS NULL AND finished_at < ?
		ORDER BY finished_at`, statusComplete, formatTime(before))
	if err != nil {
		return nil, fmt.Errorf("failed to query expired downloads: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (r *DownloadRepository) MarkCleaned(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE history SET cleaned_at = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark record %d cleaned: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("history record %d not found", id)
	}

	return nil
}

func scanRecords(rows *sql.Rows) ([]storage.DownloadRecord, error) {
	var records []storage.DownloadRecord

	for rows.Next() {
		var (
			record     storage.DownloadRecord
			name       sql.NullString
			message    sql.NullString
			dir        sql.NullString
			chatID     sql.NullInt64
			finishedAt string
			cleanedAt  sql.NullString
		)

		if err := rows.Scan(&record.ID, &record.GID, &name, &record.Status, &message, &dir, &chatID, &finishedAt, &cleanedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}

		record.Name = name.String
		record.Message = message.String
		record.Dir = dir.String
		record.ChatID = chatID.Int64
		record.FinishedAt = parseTime(finishedAt)

		if cleanedAt.Valid {
			t := parseTime(cleanedAt.String)
			record.CleanedAt = &t
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	return records, nil
}

// Times are stored as UTC RFC3339 so that text comparison orders them.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}

	return t
}

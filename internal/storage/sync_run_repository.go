package storage

import (
	"context"
	"fmt"

	"github.com/listing-sync/backend/internal/storage/models"
)

// SyncRunRepository records sync history.
type SyncRunRepository struct {
	BaseRepository
}

// NewSyncRunRepository creates a new sync run repository.
func NewSyncRunRepository(db *DB) *SyncRunRepository {
	return &SyncRunRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a finished run.
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	if run.ID == "" {
		run.ID = GenerateID()
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, property_id, status, error_code, error, window_start, window_end,
			days, diff_published, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.PropertyID, run.Status, run.ErrorCode, run.Error,
		run.WindowStart, run.WindowEnd, run.Days, run.DiffPublished,
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting sync run: %w", err)
	}

	return nil
}

// ListByProperty returns the most recent runs of a property, newest first.
func (r *SyncRunRepository) ListByProperty(ctx context.Context, propertyID string, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.DB().QueryContext(ctx, `
		SELECT id, property_id, status, error_code, error, window_start, window_end,
		       days, diff_published, started_at, finished_at
		FROM sync_runs
		WHERE property_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		if err := rows.Scan(
			&run.ID, &run.PropertyID, &run.Status, &run.ErrorCode, &run.Error,
			&run.WindowStart, &run.WindowEnd, &run.Days, &run.DiffPublished,
			&run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

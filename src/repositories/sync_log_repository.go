package repositories

import (
	"context"
	"errors"
	"time"

	"treasury/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SyncLogRepository interface {
	MarkSynced(ctx context.Context, datasetKey string, syncedAt time.Time, rowCount int, tx pgx.Tx) error
	GetLastSyncDate(ctx context.Context, datasetKey string) (*time.Time, error)
	Get(ctx context.Context, datasetKey string) (*models.SyncLog, error)
}

type syncLogRepo struct {
	DB *pgxpool.Pool
}

func NewSyncLogRepository(db *pgxpool.Pool) SyncLogRepository {
	return &syncLogRepo{DB: db}
}

func (r *syncLogRepo) MarkSynced(ctx context.Context, datasetKey string, syncedAt time.Time, rowCount int, tx pgx.Tx) error {
	query := `
		INSERT INTO sync_logs (dataset_key, synced_at, row_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (dataset_key) DO UPDATE SET
			synced_at = EXCLUDED.synced_at,
			row_count = EXCLUDED.row_count`

	_, err := pick(r.DB, tx).Exec(ctx, query, datasetKey, syncedAt, rowCount)
	return err
}

func (r *syncLogRepo) GetLastSyncDate(ctx context.Context, datasetKey string) (*time.Time, error) {
	log, err := r.Get(ctx, datasetKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &log.SyncedAt, nil
}

func (r *syncLogRepo) Get(ctx context.Context, datasetKey string) (*models.SyncLog, error) {
	var log models.SyncLog
	err := r.DB.QueryRow(ctx, `
		SELECT dataset_key, synced_at, row_count
		FROM sync_logs
		WHERE dataset_key = $1
	`, datasetKey).Scan(&log.DatasetKey, &log.SyncedAt, &log.RowCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

package repositories

import (
	"context"

	"treasury/src/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TimeSeriesRepository interface {
	GetByEntityID(ctx context.Context, entityID uuid.UUID) ([]models.TimeSeriesPoint, error)
	CountByEntityID(ctx context.Context, entityID uuid.UUID, tx pgx.Tx) (int, error)
	ReplaceForEntity(ctx context.Context, entityID uuid.UUID, points []models.TimeSeriesPoint, tx pgx.Tx) error
}

type timeSeriesRepo struct {
	db *pgxpool.Pool
}

func NewTimeSeriesRepository(db *pgxpool.Pool) TimeSeriesRepository {
	return &timeSeriesRepo{db: db}
}

// GetByEntityID returns points grouped by series type, oldest first within each series.
func (r *timeSeriesRepo) GetByEntityID(ctx context.Context, entityID uuid.UUID) ([]models.TimeSeriesPoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, entity_id, series_type, date, value, token
		FROM time_series_points
		WHERE entity_id = $1
		ORDER BY series_type ASC, date ASC`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.TimeSeriesPoint
	for rows.Next() {
		var p models.TimeSeriesPoint
		if err := rows.Scan(&p.ID, &p.EntityID, &p.SeriesType, &p.Date, &p.Value, &p.Token); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *timeSeriesRepo) CountByEntityID(ctx context.Context, entityID uuid.UUID, tx pgx.Tx) (int, error) {
	var count int
	err := pick(r.db, tx).QueryRow(ctx, `SELECT COUNT(*) FROM time_series_points WHERE entity_id = $1`, entityID).Scan(&count)
	return count, err
}

// ReplaceForEntity expects points already deduplicated on (series type, date); the unique constraint rejects anything else.
func (r *timeSeriesRepo) ReplaceForEntity(ctx context.Context, entityID uuid.UUID, points []models.TimeSeriesPoint, tx pgx.Tx) error {
	return inTx(ctx, r.db, tx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM time_series_points WHERE entity_id = $1`, entityID); err != nil {
			return err
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"time_series_points"},
			[]string{"entity_id", "series_type", "date", "value", "token"},
			pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
				p := points[i]
				return []any{entityID, string(p.SeriesType), p.Date, p.Value, p.Token}, nil
			}),
		)
		return err
	})
}

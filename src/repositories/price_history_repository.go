package repositories

import (
	"context"
	"errors"

	"treasury/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PriceHistoryRepository interface {
	GetAll(ctx context.Context) ([]models.PriceHistoryPoint, error)
	GetLatest(ctx context.Context) (*models.PriceHistoryPoint, error)
	Count(ctx context.Context) (int, error)
	ReplaceAll(ctx context.Context, points []models.PriceHistoryPoint, tx pgx.Tx) error
}

type priceHistoryRepo struct {
	db *pgxpool.Pool
}

func NewPriceHistoryRepository(db *pgxpool.Pool) PriceHistoryRepository {
	return &priceHistoryRepo{db: db}
}

func (r *priceHistoryRepo) GetAll(ctx context.Context) ([]models.PriceHistoryPoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT timestamp, date, price
		FROM price_history
		ORDER BY timestamp ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.PriceHistoryPoint
	for rows.Next() {
		var p models.PriceHistoryPoint
		if err := rows.Scan(&p.Timestamp, &p.Date, &p.Price); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *priceHistoryRepo) GetLatest(ctx context.Context) (*models.PriceHistoryPoint, error) {
	var p models.PriceHistoryPoint
	err := r.db.QueryRow(ctx, `
		SELECT timestamp, date, price
		FROM price_history
		ORDER BY timestamp DESC
		LIMIT 1`).Scan(&p.Timestamp, &p.Date, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *priceHistoryRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM price_history`).Scan(&count)
	return count, err
}

// ReplaceAll swaps the whole table for points.
func (r *priceHistoryRepo) ReplaceAll(ctx context.Context, points []models.PriceHistoryPoint, tx pgx.Tx) error {
	return inTx(ctx, r.db, tx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM price_history`); err != nil {
			return err
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"price_history"},
			[]string{"timestamp", "date", "price"},
			pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
				p := points[i]
				return []any{p.Timestamp, p.Date, p.Price}, nil
			}),
		)
		return err
	})
}

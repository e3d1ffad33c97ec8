package repositories

import (
	"context"
	"errors"

	"treasury/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AggregateHoldingsRepository interface {
	GetAll(ctx context.Context) ([]models.AggregateHoldingsPoint, error)
	GetLatest(ctx context.Context) (*models.AggregateHoldingsPoint, error)
	Count(ctx context.Context) (int, error)
	ReplaceAll(ctx context.Context, points []models.AggregateHoldingsPoint, tx pgx.Tx) error
}

type aggregateHoldingsRepo struct {
	db *pgxpool.Pool
}

func NewAggregateHoldingsRepository(db *pgxpool.Pool) AggregateHoldingsRepository {
	return &aggregateHoldingsRepo{db: db}
}

const aggregateColumns = `timestamp, date, private_company, public_company, government, defi, exchange, fund, total`

func scanAggregate(row pgx.Row, p *models.AggregateHoldingsPoint) error {
	return row.Scan(&p.Timestamp, &p.Date, &p.PrivateCompany, &p.PublicCompany, &p.Government, &p.DeFi, &p.Exchange, &p.Fund, &p.Total)
}

func (r *aggregateHoldingsRepo) GetAll(ctx context.Context) ([]models.AggregateHoldingsPoint, error) {
	rows, err := r.db.Query(ctx, `SELECT `+aggregateColumns+` FROM aggregate_holdings ORDER BY timestamp ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.AggregateHoldingsPoint
	for rows.Next() {
		var p models.AggregateHoldingsPoint
		if err := scanAggregate(rows, &p); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *aggregateHoldingsRepo) GetLatest(ctx context.Context) (*models.AggregateHoldingsPoint, error) {
	var p models.AggregateHoldingsPoint
	err := scanAggregate(r.db.QueryRow(ctx, `SELECT `+aggregateColumns+` FROM aggregate_holdings ORDER BY timestamp DESC LIMIT 1`), &p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *aggregateHoldingsRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM aggregate_holdings`).Scan(&count)
	return count, err
}

func (r *aggregateHoldingsRepo) ReplaceAll(ctx context.Context, points []models.AggregateHoldingsPoint, tx pgx.Tx) error {
	return inTx(ctx, r.db, tx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM aggregate_holdings`); err != nil {
			return err
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"aggregate_holdings"},
			[]string{"timestamp", "date", "private_company", "public_company", "government", "defi", "exchange", "fund", "total"},
			pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
				p := points[i]
				return []any{p.Timestamp, p.Date, p.PrivateCompany, p.PublicCompany, p.Government, p.DeFi, p.Exchange, p.Fund, p.Total}, nil
			}),
		)
		return err
	})
}

package repositories

import (
	"context"

	"treasury/src/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BalanceSheetRepository interface {
	GetByEntityID(ctx context.Context, entityID uuid.UUID) ([]models.BalanceSheetRow, error)
	CountByEntityID(ctx context.Context, entityID uuid.UUID, tx pgx.Tx) (int, error)
	ReplaceForEntity(ctx context.Context, entityID uuid.UUID, rows []models.BalanceSheetRow, tx pgx.Tx) error
}

type balanceSheetRepo struct {
	db *pgxpool.Pool
}

func NewBalanceSheetRepository(db *pgxpool.Pool) BalanceSheetRepository {
	return &balanceSheetRepo{db: db}
}

// GetByEntityID returns the entity's rows, newest first.
func (r *balanceSheetRepo) GetByEntityID(ctx context.Context, entityID uuid.UUID) ([]models.BalanceSheetRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, entity_id, date, btc_balance, change, cost_basis, market_price, stock_price
		FROM balance_sheet_rows
		WHERE entity_id = $1
		ORDER BY date DESC`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.BalanceSheetRow
	for rows.Next() {
		var b models.BalanceSheetRow
		if err := rows.Scan(&b.ID, &b.EntityID, &b.Date, &b.BTCBalance, &b.Change, &b.CostBasis, &b.MarketPrice, &b.StockPrice); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *balanceSheetRepo) CountByEntityID(ctx context.Context, entityID uuid.UUID, tx pgx.Tx) (int, error) {
	var count int
	err := pick(r.db, tx).QueryRow(ctx, `SELECT COUNT(*) FROM balance_sheet_rows WHERE entity_id = $1`, entityID).Scan(&count)
	return count, err
}

func (r *balanceSheetRepo) ReplaceForEntity(ctx context.Context, entityID uuid.UUID, rows []models.BalanceSheetRow, tx pgx.Tx) error {
	return inTx(ctx, r.db, tx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM balance_sheet_rows WHERE entity_id = $1`, entityID); err != nil {
			return err
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"balance_sheet_rows"},
			[]string{"entity_id", "date", "btc_balance", "change", "cost_basis", "market_price", "stock_price"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
				b := rows[i]
				return []any{entityID, b.Date, b.BTCBalance, b.Change, b.CostBasis, b.MarketPrice, b.StockPrice}, nil
			}),
		)
		return err
	})
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// BalanceSheetRow is one dated observation of an entity's holdings and valuation.
type BalanceSheetRow struct {
	ID          int64     `db:"id"`
	EntityID    uuid.UUID `db:"entity_id"`
	Date        time.Time `db:"date"`
	BTCBalance  float64   `db:"btc_balance"`
	Change      float64   `db:"change"`
	CostBasis   float64   `db:"cost_basis"`
	MarketPrice float64   `db:"market_price"`
	StockPrice  float64   `db:"stock_price"`
}

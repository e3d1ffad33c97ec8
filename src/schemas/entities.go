package schemas

import "time"

type BalanceSheetRow struct {
	Date        time.Time `json:"date"`
	BTCBalance  float64   `json:"btcBalance"`
	Change      float64   `json:"change"`
	CostBasis   float64   `json:"costBasis"`
	MarketPrice float64   `json:"marketPrice"`
	StockPrice  float64   `json:"stockPrice"`
}

// EntityTimeSeries maps a series type to its `[epochMillis, value]` points, oldest first.
type EntityTimeSeries map[string][][2]float64

// EntityInput is the admin payload for creating an entity.
type EntityInput struct {
	Slug         string  `json:"slug"`
	ExternalSlug string  `json:"externalSlug"`
	Name         string  `json:"name"`
	Ticker       string  `json:"ticker"`
	Country      string  `json:"country"`
	EntityType   string  `json:"entityType"`
	Rank         int     `json:"rank"`
	BTCHoldings  float64 `json:"btcHoldings"`
	CostBasis    float64 `json:"costBasis"`
	About        string  `json:"about"`
	Active       *bool   `json:"active"`
}

// EntityUpdate is the admin payload for editing an entity. Nil fields are left untouched.
type EntityUpdate struct {
	ExternalSlug *string  `json:"externalSlug"`
	Name         *string  `json:"name"`
	Ticker       *string  `json:"ticker"`
	Country      *string  `json:"country"`
	EntityType   *string  `json:"entityType"`
	Rank         *int     `json:"rank"`
	BTCHoldings  *float64 `json:"btcHoldings"`
	CostBasis    *float64 `json:"costBasis"`
	About        *string  `json:"about"`
	Active       *bool    `json:"active"`
}

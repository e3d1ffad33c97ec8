package models

import (
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityTypePrivateCompany EntityType = "PRIVATE_COMPANY"
	EntityTypePublicCompany  EntityType = "PUBLIC_COMPANY"
	EntityTypeGovernment     EntityType = "GOVERNMENT"
	EntityTypeDeFi           EntityType = "DEFI"
	EntityTypeExchange       EntityType = "EXCHANGE"
	EntityTypeFund           EntityType = "FUND"
)

// EntityTypes lists the classification tags in their canonical order.
var EntityTypes = []EntityType{
	EntityTypePrivateCompany,
	EntityTypePublicCompany,
	EntityTypeGovernment,
	EntityTypeDeFi,
	EntityTypeExchange,
	EntityTypeFund,
}

func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Entity is a tracked organization holding bitcoin.
type Entity struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Slug          string     `db:"slug" json:"slug"`
	ExternalSlug  string     `db:"external_slug" json:"externalSlug"`
	Name          string     `db:"name" json:"name"`
	Ticker        string     `db:"ticker" json:"ticker"`
	Country       string     `db:"country" json:"country"`
	EntityType    EntityType `db:"entity_type" json:"entityType"`
	Rank          int        `db:"rank" json:"rank"`
	HoldingSince  *time.Time `db:"holding_since" json:"holdingSince"`
	BTCHoldings   float64    `db:"btc_holdings" json:"btcHoldings"`
	CostBasis     float64    `db:"cost_basis" json:"costBasis"`
	AvgCostPerBTC float64    `db:"avg_cost_per_btc" json:"avgCostPerBtc"`
	ProfitLossPct float64    `db:"profit_loss_pct" json:"profitLossPct"`
	SharePrice    float64    `db:"share_price" json:"sharePrice"`
	MarketCap     float64    `db:"market_cap" json:"marketCap"`
	NAVMultiplier float64    `db:"nav_multiplier" json:"navMultiplier"`
	About         string     `db:"about" json:"about"`
	Active        bool       `db:"active" json:"active"`
	LastUpdated   *time.Time `db:"last_updated" json:"lastUpdated"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// UpstreamSlug is the slug used against the upstream API.
func (e *Entity) UpstreamSlug() string {
	if e.ExternalSlug != "" {
		return e.ExternalSlug
	}
	return e.Slug
}

type EntityLink struct {
	ID       int64     `db:"id" json:"id"`
	EntityID uuid.UUID `db:"entity_id" json:"entityId"`
	Label    string    `db:"label" json:"label"`
	URL      string    `db:"url" json:"url"`
}

// EntitySnapshot holds the scalar fields an entity-detail sync overwrites.
type EntitySnapshot struct {
	Rank          int
	HoldingSince  *time.Time
	BTCHoldings   float64
	CostBasis     float64
	AvgCostPerBTC float64
	ProfitLossPct float64
	SharePrice    float64
	MarketCap     float64
	NAVMultiplier float64
}

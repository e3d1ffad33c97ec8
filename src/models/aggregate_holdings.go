package models

import "time"

// AggregateHoldingsPoint is the BTC held across all tracked entities at one timestamp, split by sector.
type AggregateHoldingsPoint struct {
	Timestamp      int64     `db:"timestamp"`
	Date           time.Time `db:"date"`
	PrivateCompany float64   `db:"private_company"`
	PublicCompany  float64   `db:"public_company"`
	Government     float64   `db:"government"`
	DeFi           float64   `db:"defi"`
	Exchange       float64   `db:"exchange"`
	Fund           float64   `db:"fund"`
	Total          float64   `db:"total"`
}

// SectorValue returns a pointer to the field holding the given sector, or nil for unknown sectors.
func (p *AggregateHoldingsPoint) SectorValue(sector EntityType) *float64 {
	switch sector {
	case EntityTypePrivateCompany:
		return &p.PrivateCompany
	case EntityTypePublicCompany:
		return &p.PublicCompany
	case EntityTypeGovernment:
		return &p.Government
	case EntityTypeDeFi:
		return &p.DeFi
	case EntityTypeExchange:
		return &p.Exchange
	case EntityTypeFund:
		return &p.Fund
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type SeriesType string

const (
	SeriesBTCBalance    SeriesType = "btcBalances"
	SeriesBTCPrice      SeriesType = "btcPrices"
	SeriesStockPrice    SeriesType = "stockPrices"
	SeriesBTCPerShare   SeriesType = "btcPerShare"
	SeriesFiatValue     SeriesType = "fiatValues"
	SeriesNAVMultiplier SeriesType = "navMultipliers"
)

var SeriesTypes = []SeriesType{
	SeriesBTCBalance,
	SeriesBTCPrice,
	SeriesStockPrice,
	SeriesBTCPerShare,
	SeriesFiatValue,
	SeriesNAVMultiplier,
}

func (s SeriesType) Valid() bool {
	for _, known := range SeriesTypes {
		if s == known {
			return true
		}
	}
	return false
}

// TimeSeriesPoint is unique on (EntityID, SeriesType, Date).
type TimeSeriesPoint struct {
	ID         int64      `db:"id"`
	EntityID   uuid.UUID  `db:"entity_id"`
	SeriesType SeriesType `db:"series_type"`
	Date       time.Time  `db:"date"`
	Value      float64    `db:"value"`
	Token      string     `db:"token"`
}

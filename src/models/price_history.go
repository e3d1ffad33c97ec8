package models

import "time"

type PriceHistoryPoint struct {
	Timestamp int64     `db:"timestamp"`
	Date      time.Time `db:"date"`
	Price     float64   `db:"price"`
}

package schemas

import "time"

// PricePoint is `[epochMillis, price]`.
type PricePoint [2]float64

type PriceHistory []PricePoint

type SpotPrice struct {
	ID        string    `json:"id"`
	Price     float64   `json:"price"`
	Timestamp int64     `json:"timestamp"`
	Date      time.Time `json:"date"`
}

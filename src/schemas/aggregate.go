package schemas

import "time"

type AggregatePoint struct {
	Timestamp      int64     `json:"timestamp"`
	Date           time.Time `json:"date"`
	PrivateCompany float64   `json:"privateCompany"`
	PublicCompany  float64   `json:"publicCompany"`
	Government     float64   `json:"government"`
	DeFi           float64   `json:"defi"`
	Exchange       float64   `json:"exchange"`
	Fund           float64   `json:"fund"`
	Total          float64   `json:"total"`
}

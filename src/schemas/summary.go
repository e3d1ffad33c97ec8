package schemas

type SectorSummary struct {
	EntityType  string  `json:"entityType"`
	EntityCount int     `json:"entityCount"`
	TotalBTC    float64 `json:"totalBtc"`
}

type Summary struct {
	EntityCount    int             `json:"entityCount"`
	TotalBTC       float64         `json:"totalBtc"`
	BTCPrice       float64         `json:"btcPrice"`
	TotalValueUSD  float64         `json:"totalValueUsd"`
	SupplyPercent  float64         `json:"supplyPercent"`
	Sectors        []SectorSummary `json:"sectors"`
	PriceTimestamp int64           `json:"priceTimestamp"`
}

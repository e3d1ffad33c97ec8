package treasuries

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SeriesPoint is one `[token, value]` pair. Either side may be a number or a string upstream.
type SeriesPoint struct {
	Token interface{}
	Value interface{}
}

func (p *SeriesPoint) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := decodeWithNumbers(data, &raw); err != nil {
		return fmt.Errorf("series point: %w", err)
	}
	if len(raw) > 0 {
		p.Token = raw[0]
	}
	if len(raw) > 1 {
		p.Value = raw[1]
	}
	return nil
}

func (p SeriesPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{p.Token, p.Value})
}

type PriceSeriesResponse []SeriesPoint

// SectorSeries is one `[sectorTag, [[ms, value], ...]]` entry of the aggregate payload.
type SectorSeries struct {
	Sector string
	Points []SeriesPoint
}

func (s *SectorSeries) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("sector series: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("sector series: expected [tag, points], got %d elements", len(raw))
	}
	if err := json.Unmarshal(raw[0], &s.Sector); err != nil {
		return fmt.Errorf("sector tag: %w", err)
	}
	if err := json.Unmarshal(raw[1], &s.Points); err != nil {
		return fmt.Errorf("sector %s points: %w", s.Sector, err)
	}
	return nil
}

func (s SectorSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{s.Sector, s.Points})
}

type AggregateResponse []SectorSeries

type EntityResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Message string        `json:"message,omitempty"`
	Data    *EntityBundle `json:"data,omitempty"`
}

type EntityBundle struct {
	BitcoinHoldings BitcoinHoldings          `json:"bitcoinHoldings"`
	StockFinancials StockFinancials          `json:"stockFinancials"`
	AboutEntity     AboutEntity              `json:"aboutEntity"`
	BalanceSheet    BalanceSheet             `json:"balanceSheet"`
	Timeseries      map[string][]SeriesPoint `json:"timeseries"`
}

type BitcoinHoldings struct {
	Rank            interface{} `json:"rank"`
	HoldingSince    interface{} `json:"holdingSince"`
	BTCHoldings     interface{} `json:"btcHoldings"`
	CostBasis       interface{} `json:"costBasis"`
	AvgCostPerBTC   interface{} `json:"avgCostPerBtc"`
	ProfitLossPct   interface{} `json:"profitLossPercentage"`
	CurrentValueUSD interface{} `json:"currentValue"`
}

type StockFinancials struct {
	SharePrice    interface{} `json:"sharePrice"`
	MarketCap     interface{} `json:"marketCap"`
	NAVMultiplier interface{} `json:"navMultiplier"`
}

type AboutEntity struct {
	Description string      `json:"description"`
	Links       []AboutLink `json:"links"`
}

type AboutLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type BalanceSheet struct {
	Rows []BalanceSheetRow `json:"rows"`
}

type BalanceSheetRow struct {
	Date        interface{} `json:"date"`
	BTCBalance  interface{} `json:"btcBalance"`
	Change      interface{} `json:"change"`
	CostBasis   interface{} `json:"costBasis"`
	MarketPrice interface{} `json:"marketPrice"`
	StockPrice  interface{} `json:"stockPrice"`
}

// decodeWithNumbers keeps numbers as json.Number so epoch millis survive without float rounding.
func decodeWithNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

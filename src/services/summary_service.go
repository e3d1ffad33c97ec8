package services

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"treasury/src/config"
	"treasury/src/models"
	"treasury/src/repositories"
	"treasury/src/schemas"
	"treasury/src/utils"
)

const SummaryKey = "bitcoin-treasury-summary"

type SummaryServiceI interface {
	GetSummary(ctx context.Context) (*schemas.Summary, error)
}

// SummaryService derives headline statistics from the stored entities and the latest BTC price.
type SummaryService struct {
	repos  *repositories.Repositories
	prices *PriceService
	engine *SyncEngine
	cfg    *config.Config
	logger *logrus.Logger
}

func NewSummaryService(repos *repositories.Repositories, prices *PriceService, engine *SyncEngine, cfg *config.Config, logger *logrus.Logger) *SummaryService {
	return &SummaryService{repos: repos, prices: prices, engine: engine, cfg: cfg, logger: logger}
}

func (s *SummaryService) GetSummary(ctx context.Context) (*schemas.Summary, error) {
	return SyncedDataset[*schemas.Summary]{
		Engine:   s.engine,
		CacheKey: SummaryKey,
		TTL:      s.cfg.Cache.SummaryTTL,
		Source:   s.prices.Source(),
		Load:     s.load,
	}.Read(ctx)
}

func (s *SummaryService) load(ctx context.Context) (*schemas.Summary, error) {
	entities, err := s.repos.Entities.List(ctx, repositories.EntityFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	var price *models.PriceHistoryPoint
	price, err = s.repos.Prices.GetLatest(ctx)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, err
	}

	return BuildSummary(entities, price), nil
}

// BuildSummary aggregates holdings per entity type. Sectors are reported in the canonical order, empty ones included.
func BuildSummary(entities []models.Entity, price *models.PriceHistoryPoint) *schemas.Summary {
	type sectorTotals struct {
		count int
		btc   decimal.Decimal
	}
	sectors := make(map[models.EntityType]*sectorTotals, len(models.EntityTypes))
	for _, t := range models.EntityTypes {
		sectors[t] = &sectorTotals{btc: decimal.Zero}
	}

	total := decimal.Zero
	for _, e := range entities {
		holdings := decimal.NewFromFloat(e.BTCHoldings)
		total = total.Add(holdings)
		if sector, ok := sectors[e.EntityType]; ok {
			sector.count++
			sector.btc = sector.btc.Add(holdings)
		}
	}

	summary := &schemas.Summary{
		EntityCount: len(entities),
		Sectors:     make([]schemas.SectorSummary, 0, len(models.EntityTypes)),
	}
	summary.TotalBTC, _ = total.Round(8).Float64()
	summary.SupplyPercent, _ = total.Div(decimal.NewFromInt(utils.BitcoinMaxSupply)).Mul(decimal.NewFromInt(100)).Round(4).Float64()

	if price != nil {
		summary.BTCPrice = price.Price
		summary.PriceTimestamp = price.Timestamp
		summary.TotalValueUSD, _ = total.Mul(decimal.NewFromFloat(price.Price)).Round(2).Float64()
	}

	for _, t := range models.EntityTypes {
		btc, _ := sectors[t].btc.Round(8).Float64()
		summary.Sectors = append(summary.Sectors, schemas.SectorSummary{
			EntityType:  string(t),
			EntityCount: sectors[t].count,
			TotalBTC:    btc,
		})
	}
	return summary
}

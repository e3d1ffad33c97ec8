package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"treasury/src/clients/treasuries"
	"treasury/src/config"
	"treasury/src/models"
	"treasury/src/repositories"
	"treasury/src/schemas"
	"treasury/src/utils"
)

const AggregateBalancesKey = "aggregate-balances"

type AggregateServiceI interface {
	GetAggregateHoldings(ctx context.Context) ([]schemas.AggregatePoint, error)
	SyncAggregateHoldings(ctx context.Context) error
}

type AggregateService struct {
	repos  *repositories.Repositories
	client treasuries.TreasuriesServiceClientI
	engine *SyncEngine
	cfg    *config.Config
	logger *logrus.Logger
	source *SyncSource
}

func NewAggregateService(repos *repositories.Repositories, client treasuries.TreasuriesServiceClientI, engine *SyncEngine, cfg *config.Config, logger *logrus.Logger) *AggregateService {
	s := &AggregateService{
		repos:  repos,
		client: client,
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
	s.source = &SyncSource{
		Key:       AggregateBalancesKey,
		Window:    cfg.Sync.AggregateWindow,
		Freshness: s.freshness,
		Sync:      s.SyncAggregateHoldings,
	}
	return s
}

func (s *AggregateService) freshness(ctx context.Context) (*time.Time, int, error) {
	lastKnown, err := s.repos.SyncLogs.GetLastSyncDate(ctx, AggregateBalancesKey)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repos.Aggregates.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return lastKnown, count, nil
}

// SyncAggregateHoldings replaces the stored aggregate table with the merged upstream sector series.
func (s *AggregateService) SyncAggregateHoldings(ctx context.Context) error {
	response, err := s.client.GetAggregate(ctx)
	if err != nil {
		return err
	}

	points := MergeAggregateSeries(response, s.logger.WithField("dataset", AggregateBalancesKey))

	syncedAt := s.engine.Now()
	return s.repos.Tx.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.repos.Aggregates.ReplaceAll(ctx, points, tx); err != nil {
			return fmt.Errorf("failed to replace aggregate holdings: %w", err)
		}
		return s.repos.SyncLogs.MarkSynced(ctx, AggregateBalancesKey, syncedAt, len(points), tx)
	})
}

type sectorValue struct {
	date  time.Time
	value float64
}

// MergeAggregateSeries folds the per-sector series into one point per timestamp.
// Sectors are applied in the canonical EntityTypes order whatever order upstream sends them in; the result holds the
// union of timestamps, a sector missing at a timestamp stays 0, and Total is recomputed after every sector is applied.
// Unknown sector tags are logged and ignored.
func MergeAggregateSeries(response treasuries.AggregateResponse, log *logrus.Entry) []models.AggregateHoldingsPoint {
	bySector := make(map[models.EntityType][]treasuries.SeriesPoint, len(response))
	for _, series := range response {
		sector := models.EntityType(series.Sector)
		if !sector.Valid() {
			log.WithField("sector", series.Sector).Warn("Ignoring unknown sector")
			continue
		}
		bySector[sector] = append(bySector[sector], series.Points...)
	}

	merged := make(map[int64]*models.AggregateHoldingsPoint)
	for _, sector := range models.EntityTypes {
		values, _ := convertRows(fmt.Sprintf("aggregate %s", sector), bySector[sector], SkipInvalidRows, log, toSectorValue)
		for _, v := range values {
			ts := v.date.UnixMilli()
			point, ok := merged[ts]
			if !ok {
				point = &models.AggregateHoldingsPoint{Timestamp: ts, Date: v.date}
				merged[ts] = point
			}
			*point.SectorValue(sector) = v.value
			point.Total = sumSectors(point)
		}
	}

	points := make([]models.AggregateHoldingsPoint, 0, len(merged))
	for _, p := range merged {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points
}

func toSectorValue(p treasuries.SeriesPoint) (sectorValue, error) {
	date, err := utils.NormalizeDate(p.Token)
	if err != nil {
		return sectorValue{}, err
	}
	value, ok := utils.ParseNumber(p.Value)
	if !ok {
		return sectorValue{}, fmt.Errorf("value %v is not numeric", p.Value)
	}
	return sectorValue{date: date, value: value}, nil
}

func sumSectors(p *models.AggregateHoldingsPoint) float64 {
	var total float64
	for _, sector := range models.EntityTypes {
		total += *p.SectorValue(sector)
	}
	return total
}

func (s *AggregateService) GetAggregateHoldings(ctx context.Context) ([]schemas.AggregatePoint, error) {
	return SyncedDataset[[]schemas.AggregatePoint]{
		Engine:   s.engine,
		CacheKey: AggregateBalancesKey,
		TTL:      s.cfg.Cache.AggregateTTL,
		Source:   s.source,
		Load: func(ctx context.Context) ([]schemas.AggregatePoint, error) {
			points, err := s.repos.Aggregates.GetAll(ctx)
			if err != nil {
				return nil, err
			}
			result := make([]schemas.AggregatePoint, 0, len(points))
			for _, p := range points {
				result = append(result, schemas.AggregatePoint{
					Timestamp:      p.Timestamp,
					Date:           p.Date,
					PrivateCompany: p.PrivateCompany,
					PublicCompany:  p.PublicCompany,
					Government:     p.Government,
					DeFi:           p.DeFi,
					Exchange:       p.Exchange,
					Fund:           p.Fund,
					Total:          p.Total,
				})
			}
			return result, nil
		},
	}.Read(ctx)
}

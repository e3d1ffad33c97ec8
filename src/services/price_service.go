package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
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

const (
	HistoricalPriceKey = "bitcoin-historical-price"
	SpotPriceKeyPrefix = "price_"
)

var ErrUnknownPriceID = errors.New("unknown price id")

// spotPriceIDs are the asset ids answered from the BTC price history.
var spotPriceIDs = map[string]bool{"bitcoin": true, "btc": true}

type PriceServiceI interface {
	GetPriceHistory(ctx context.Context) (schemas.PriceHistory, error)
	GetSpotPrice(ctx context.Context, id string) (*schemas.SpotPrice, error)
	SyncPriceHistory(ctx context.Context) error
}

type PriceService struct {
	repos  *repositories.Repositories
	client treasuries.TreasuriesServiceClientI
	engine *SyncEngine
	cfg    *config.Config
	logger *logrus.Logger
	source *SyncSource
}

func NewPriceService(repos *repositories.Repositories, client treasuries.TreasuriesServiceClientI, engine *SyncEngine, cfg *config.Config, logger *logrus.Logger) *PriceService {
	s := &PriceService{
		repos:  repos,
		client: client,
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
	s.source = &SyncSource{
		Key:       HistoricalPriceKey,
		Window:    cfg.Sync.PriceWindow,
		Freshness: s.freshness,
		Sync:      s.SyncPriceHistory,
	}
	return s
}

// Source is the price history sync, shared with every dataset derived from the BTC price.
func (s *PriceService) Source() *SyncSource {
	return s.source
}

func (s *PriceService) freshness(ctx context.Context) (*time.Time, int, error) {
	lastKnown, err := s.repos.SyncLogs.GetLastSyncDate(ctx, HistoricalPriceKey)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repos.Prices.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return lastKnown, count, nil
}

// SyncPriceHistory replaces the stored price history with the upstream series.
func (s *PriceService) SyncPriceHistory(ctx context.Context) error {
	log := s.logger.WithField("dataset", HistoricalPriceKey)

	response, err := s.client.GetPrices(ctx)
	if err != nil {
		return err
	}

	points, err := convertRows("price history", response, SkipInvalidRows, log, toPricePoint)
	if err != nil {
		return err
	}
	points = dedupPricePoints(points)

	syncedAt := s.engine.Now()
	err = s.repos.Tx.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.repos.Prices.ReplaceAll(ctx, points, tx); err != nil {
			return fmt.Errorf("failed to replace price history: %w", err)
		}
		return s.repos.SyncLogs.MarkSynced(ctx, HistoricalPriceKey, syncedAt, len(points), tx)
	})
	if err != nil {
		return err
	}
	log.WithField("rows", len(points)).Info("Price history replaced")
	return nil
}

func toPricePoint(p treasuries.SeriesPoint) (models.PriceHistoryPoint, error) {
	date, err := utils.NormalizeDate(p.Token)
	if err != nil {
		return models.PriceHistoryPoint{}, err
	}
	price, ok := utils.ParseNumber(p.Value)
	if !ok {
		return models.PriceHistoryPoint{}, fmt.Errorf("price %v is not numeric", p.Value)
	}
	return models.PriceHistoryPoint{Timestamp: date.UnixMilli(), Date: date, Price: price}, nil
}

// dedupPricePoints keeps the last point per timestamp and sorts ascending.
func dedupPricePoints(points []models.PriceHistoryPoint) []models.PriceHistoryPoint {
	byTimestamp := make(map[int64]models.PriceHistoryPoint, len(points))
	for _, p := range points {
		byTimestamp[p.Timestamp] = p
	}
	deduped := make([]models.PriceHistoryPoint, 0, len(byTimestamp))
	for _, p := range byTimestamp {
		deduped = append(deduped, p)
	}
	sort.Slice(deduped, func(i, j int) bool { return deduped[i].Timestamp < deduped[j].Timestamp })
	return deduped
}

func (s *PriceService) GetPriceHistory(ctx context.Context) (schemas.PriceHistory, error) {
	return SyncedDataset[schemas.PriceHistory]{
		Engine:   s.engine,
		CacheKey: HistoricalPriceKey,
		TTL:      s.cfg.Cache.HistoricalPriceTTL,
		Source:   s.source,
		Load: func(ctx context.Context) (schemas.PriceHistory, error) {
			points, err := s.repos.Prices.GetAll(ctx)
			if err != nil {
				return nil, err
			}
			history := make(schemas.PriceHistory, 0, len(points))
			for _, p := range points {
				history = append(history, schemas.PricePoint{float64(p.Timestamp), p.Price})
			}
			return history, nil
		},
	}.Read(ctx)
}

// GetSpotPrice returns the latest stored BTC price for one of the accepted ids.
func (s *PriceService) GetSpotPrice(ctx context.Context, id string) (*schemas.SpotPrice, error) {
	id = strings.ToLower(id)
	if !spotPriceIDs[id] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPriceID, id)
	}

	return SyncedDataset[*schemas.SpotPrice]{
		Engine:   s.engine,
		CacheKey: SpotPriceKeyPrefix + id,
		TTL:      s.cfg.Cache.SpotPriceTTL,
		Source:   s.source,
		Load: func(ctx context.Context) (*schemas.SpotPrice, error) {
			latest, err := s.repos.Prices.GetLatest(ctx)
			if err != nil {
				return nil, err
			}
			return &schemas.SpotPrice{ID: id, Price: latest.Price, Timestamp: latest.Timestamp, Date: latest.Date}, nil
		},
	}.Read(ctx)
}

package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type WarmupServiceI interface {
	Warmup(ctx context.Context) error
}

// WarmupService runs the global read paths so stale datasets are synced and caches filled ahead of traffic.
type WarmupService struct {
	prices     PriceServiceI
	aggregates AggregateServiceI
	summary    SummaryServiceI
	entities   EntityServiceI
	logger     *logrus.Logger
}

func NewWarmupService(prices PriceServiceI, aggregates AggregateServiceI, summary SummaryServiceI, entities EntityServiceI, logger *logrus.Logger) *WarmupService {
	return &WarmupService{prices: prices, aggregates: aggregates, summary: summary, entities: entities, logger: logger}
}

func (s *WarmupService) Warmup(ctx context.Context) error {
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := s.prices.GetPriceHistory(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.aggregates.GetAggregateHoldings(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.summary.GetSummary(ctx)
		return err
	})
	g.Go(func() error {
		_, err := s.entities.ListEntities(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.WithError(err).Error("Warm-up failed")
		return err
	}
	s.logger.WithField("elapsed", time.Since(start).String()).Info("Warm-up completed")
	return nil
}

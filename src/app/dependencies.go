package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"treasury/src/clients/treasuries"
	"treasury/src/config"
	"treasury/src/database"
	"treasury/src/repositories"
	"treasury/src/services"
	"treasury/src/utils"
	redis_utils "treasury/src/utils/redis"
)

// Dependencies is the wired service graph shared by the API, the worker and the CLI.
type Dependencies struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Cache      utils.CacheHandlerI
	Engine     *services.SyncEngine
	Prices     *services.PriceService
	Aggregates *services.AggregateService
	Entities   *services.EntityService
	Summary    *services.SummaryService
	Warmup     *services.WarmupService

	closers []func()
}

// NewDependencies wires services on top of already built storage and upstream client.
func NewDependencies(cfg *config.Config, logger *logrus.Logger, cache utils.CacheHandlerI, repos *repositories.Repositories, client treasuries.TreasuriesServiceClientI) *Dependencies {
	engine := services.NewSyncEngine(cache, cfg.Sync, logger)
	prices := services.NewPriceService(repos, client, engine, cfg, logger)
	aggregates := services.NewAggregateService(repos, client, engine, cfg, logger)
	entities := services.NewEntityService(repos, client, engine, cfg, logger)
	summary := services.NewSummaryService(repos, prices, engine, cfg, logger)

	return &Dependencies{
		Config:     cfg,
		Logger:     logger,
		Cache:      cache,
		Engine:     engine,
		Prices:     prices,
		Aggregates: aggregates,
		Entities:   entities,
		Summary:    summary,
		Warmup:     services.NewWarmupService(prices, aggregates, summary, entities, logger),
	}
}

// Build connects Postgres and the cache and wires every service. Close releases the connections.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Dependencies, error) {
	pool, err := database.SetupDB(ctx, cfg.Databases.SQL)
	if err != nil {
		return nil, err
	}

	cache, closeCache, err := newCache(ctx, cfg.Databases.Redis, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	client := treasuries.NewClient(cfg.ExternalClients.Treasuries, logger)
	deps := NewDependencies(cfg, logger, cache, repositories.NewRepositories(pool), client)
	deps.closers = []func(){closeCache, pool.Close}
	return deps, nil
}

func (d *Dependencies) Close() {
	for _, closer := range d.closers {
		closer()
	}
}

func newCache(ctx context.Context, cfg config.RedisConfig, logger *logrus.Logger) (utils.CacheHandlerI, func(), error) {
	if cfg.Host == "" {
		logger.Warn("No redis host configured, using in-memory cache")
		return utils.NewMemoryCache(), func() {}, nil
	}
	handler, err := redis_utils.NewRedisHandler(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return handler, func() { _ = handler.Close() }, nil
}

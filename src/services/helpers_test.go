package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"treasury/src/clients/treasuries"
	"treasury/src/clients/treasuries/treasuriestest"
	"treasury/src/config"
	"treasury/src/repositories"
	"treasury/src/repositories/repotest"
	"treasury/src/utils"
)

const mockDataDir = "../clients/treasuries/testdata"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	cfg        *config.Config
	store      *repotest.Store
	repos      *repositories.Repositories
	client     *treasuriestest.MockClient
	cache      *utils.MemoryCache
	clock      *testClock
	engine     *SyncEngine
	prices     *PriceService
	aggregates *AggregateService
	entities   *EntityService
	summary    *SummaryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	client, err := treasuriestest.NewMockClientFromDir(mockDataDir)
	require.NoError(t, err)

	cfg := config.Default()
	logger := utils.NewDiscardLogger()
	repos, store := repotest.NewRepositories()
	cache := utils.NewMemoryCache()
	clock := &testClock{now: time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)}

	engine := NewSyncEngine(cache, cfg.Sync, logger)
	engine.now = clock.Now

	prices := NewPriceService(repos, client, engine, cfg, logger)
	return &testEnv{
		cfg:        cfg,
		store:      store,
		repos:      repos,
		client:     client,
		cache:      cache,
		clock:      clock,
		engine:     engine,
		prices:     prices,
		aggregates: NewAggregateService(repos, client, engine, cfg, logger),
		entities:   NewEntityService(repos, client, engine, cfg, logger),
		summary:    NewSummaryService(repos, prices, engine, cfg, logger),
	}
}

func (e *testEnv) cached(t *testing.T, key string) bool {
	t.Helper()
	exists, err := e.cache.Exists(context.Background(), key)
	require.NoError(t, err)
	return exists
}

func decodeBundle(t *testing.T, raw string) *treasuries.EntityBundle {
	t.Helper()
	var bundle treasuries.EntityBundle
	require.NoError(t, json.Unmarshal([]byte(raw), &bundle))
	return &bundle
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/src/clients/treasuries"
	"treasury/src/models"
	"treasury/src/schemas"
	"treasury/src/utils"
)

func createStrategy(t *testing.T, env *testEnv) *models.Entity {
	t.Helper()
	entity, err := env.entities.CreateEntity(context.Background(), schemas.EntityInput{
		Slug:       "strategy",
		Name:       "Strategy",
		Ticker:     "MSTR",
		Country:    "US",
		EntityType: "public_company",
	})
	require.NoError(t, err)
	return entity
}

func TestCreateEntity(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	entity := createStrategy(t, env)
	assert.Equal(t, models.EntityTypePublicCompany, entity.EntityType)
	assert.True(t, entity.Active)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", entity.ID.String())

	cases := []struct {
		name  string
		input schemas.EntityInput
		want  error
	}{
		{"duplicate slug", schemas.EntityInput{Slug: "strategy", Name: "Other", EntityType: "FUND"}, ErrSlugTaken},
		{"slug with spaces", schemas.EntityInput{Slug: "Bad Slug", Name: "Bad", EntityType: "FUND"}, ErrInvalidEntity},
		{"slug with trailing dash", schemas.EntityInput{Slug: "bad-", Name: "Bad", EntityType: "FUND"}, ErrInvalidEntity},
		{"missing name", schemas.EntityInput{Slug: "nameless", EntityType: "FUND"}, ErrInvalidEntity},
		{"unknown type", schemas.EntityInput{Slug: "martian", Name: "Martian", EntityType: "PLANET"}, ErrInvalidEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.entities.CreateEntity(ctx, tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpdateEntityInvalidatesLists(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	createStrategy(t, env)

	entities, err := env.entities.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.True(t, env.cached(t, EntitiesAllKey))

	admin, err := env.entities.ListAdminEntities(ctx, "PUBLIC_COMPANY")
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.True(t, env.cached(t, AdminEntitiesKeyPrefix+"PUBLIC_COMPANY"))

	inactive := false
	name := "Strategy Inc"
	updated, err := env.entities.UpdateEntity(ctx, "strategy", schemas.EntityUpdate{Active: &inactive, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Strategy Inc", updated.Name)
	assert.False(t, env.cached(t, EntitiesAllKey))
	assert.False(t, env.cached(t, AdminEntitiesKeyPrefix+"PUBLIC_COMPANY"))

	entities, err = env.entities.ListEntities(ctx)
	require.NoError(t, err)
	assert.Empty(t, entities)

	admin, err = env.entities.ListAdminEntities(ctx, "PUBLIC_COMPANY")
	require.NoError(t, err)
	require.Len(t, admin, 1)
	assert.False(t, admin[0].Active)

	t.Run("unknown slug", func(t *testing.T) {
		_, err := env.entities.UpdateEntity(ctx, "ghost", schemas.EntityUpdate{Name: &name})
		assert.ErrorIs(t, err, ErrEntityNotFound)
	})

	t.Run("empty name", func(t *testing.T) {
		empty := " "
		_, err := env.entities.UpdateEntity(ctx, "strategy", schemas.EntityUpdate{Name: &empty})
		assert.ErrorIs(t, err, ErrInvalidEntity)
	})

	t.Run("invalid admin type filter", func(t *testing.T) {
		_, err := env.entities.ListAdminEntities(ctx, "PLANET")
		assert.ErrorIs(t, err, ErrInvalidEntity)
	})
}

func TestUpdateEntityKeepsFieldsSyncedByAnotherProcess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	createStrategy(t, env)

	// a second service on the same store stands in for the worker process
	worker := NewEntityService(env.repos, env.client, env.engine, env.cfg, utils.NewDiscardLogger())
	fired := false
	env.store.OnEntityRead(func(slug string) {
		if fired {
			return
		}
		fired = true
		_, err := worker.SyncEntityDetail(ctx, slug)
		require.NoError(t, err)
	})

	name := "Strategy Inc"
	updated, err := env.entities.UpdateEntity(ctx, "strategy", schemas.EntityUpdate{Name: &name})
	require.NoError(t, err)
	require.True(t, fired)
	assert.Equal(t, "Strategy Inc", updated.Name)
	assert.Equal(t, 226331.0, updated.BTCHoldings)
	assert.Equal(t, 1, updated.Rank)

	env.store.OnEntityRead(nil)
	stored, err := env.repos.Entities.GetBySlug(ctx, "strategy")
	require.NoError(t, err)
	assert.Equal(t, "Strategy Inc", stored.Name)
	assert.Equal(t, 226331.0, stored.BTCHoldings)
	assert.Equal(t, 1, stored.Rank)
	assert.Equal(t, 8_330_000_000.0, stored.CostBasis)
	assert.Contains(t, stored.About, "Business intelligence")

	t.Run("supplied fields still win", func(t *testing.T) {
		holdings := 1.0
		updated, err := env.entities.UpdateEntity(ctx, "strategy", schemas.EntityUpdate{BTCHoldings: &holdings})
		require.NoError(t, err)
		assert.Equal(t, 1.0, updated.BTCHoldings)
		assert.Equal(t, "Strategy Inc", updated.Name)
		assert.Equal(t, 1, updated.Rank)
	})
}

func TestEntityReadPaths(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	createStrategy(t, env)

	rows, err := env.entities.GetBalanceSheet(ctx, "strategy")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, time.Date(2024, 3, 19, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.Equal(t, 214246.0, rows[0].BTCBalance)
	assert.Equal(t, 9245.0, rows[0].Change)
	assert.Equal(t, 7_540_000_000.0, rows[0].CostBasis)
	assert.True(t, env.cached(t, EntityBalanceSheetKeyPrefix+"strategy"))

	series, err := env.entities.GetTimeSeries(ctx, "strategy")
	require.NoError(t, err)
	assert.Equal(t, [][2]float64{{1710115200000, 68477}, {1710806400000, 67382}}, series["btcPrices"])
	assert.Equal(t, [][2]float64{{1710806400000, 1452}}, series["stockPrices"])
	assert.Equal(t, [][2]float64{{1710806400000, 14_400_000_000}}, series["fiatValues"])
	assert.NotContains(t, series, "btcPerShare")

	// both datasets share one sync per entity
	assert.Equal(t, 1, env.client.Calls(treasuries.EntityDetailBundle))

	log, err := env.repos.SyncLogs.Get(ctx, EntityDataSyncKeyPrefix+"strategy")
	require.NoError(t, err)
	assert.Equal(t, 9, log.RowCount)

	t.Run("unknown entity", func(t *testing.T) {
		_, err := env.entities.GetBalanceSheet(ctx, "ghost")
		assert.ErrorIs(t, err, ErrEntityNotFound)
		_, err = env.entities.GetTimeSeries(ctx, "ghost")
		assert.ErrorIs(t, err, ErrEntityNotFound)
	})

	t.Run("entity window is twelve hours", func(t *testing.T) {
		require.NoError(t, env.cache.Delete(ctx, EntityBalanceSheetKeyPrefix+"strategy"))
		env.clock.Advance(11 * time.Hour)
		_, err := env.entities.GetBalanceSheet(ctx, "strategy")
		require.NoError(t, err)
		assert.Equal(t, 1, env.client.Calls(treasuries.EntityDetailBundle))

		require.NoError(t, env.cache.Delete(ctx, EntityBalanceSheetKeyPrefix+"strategy"))
		env.clock.Advance(2 * time.Hour)
		_, err = env.entities.GetBalanceSheet(ctx, "strategy")
		require.NoError(t, err)
		assert.Equal(t, 2, env.client.Calls(treasuries.EntityDetailBundle))
	})

	t.Run("inactive entities are hidden", func(t *testing.T) {
		inactive := false
		_, err := env.entities.UpdateEntity(ctx, "strategy", schemas.EntityUpdate{Active: &inactive})
		require.NoError(t, err)

		_, err = env.entities.GetBalanceSheet(ctx, "strategy")
		assert.ErrorIs(t, err, ErrEntityNotFound)
	})
}

func TestReadSyncSkipsInvalidRowsAndDedups(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	createStrategy(t, env)

	env.client.SetEntity("strategy", decodeBundle(t, `{
		"balanceSheet": {"rows": [
			{"date": "not a date", "btcBalance": "1"},
			{"date": "2024-01-01", "btcBalance": "n/a"},
			{"date": "2024-02-01", "btcBalance": "1.5K", "change": null}
		]},
		"timeseries": {
			"btcBalances": [["2024-01-01", 1], ["2024-01-01", 2], ["bad", 3]],
			"unknownSeries": [["2024-01-01", 1]]
		}
	}`))

	rows, err := env.entities.GetBalanceSheet(ctx, "strategy")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1500.0, rows[0].BTCBalance)
	assert.Equal(t, 0.0, rows[0].Change)

	series, err := env.entities.GetTimeSeries(ctx, "strategy")
	require.NoError(t, err)
	assert.Len(t, series, 1)
	assert.Equal(t, [][2]float64{{1704067200000, 2}}, series["btcBalances"])
}

func TestReadSyncUpstreamFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	createStrategy(t, env)
	env.client.SetError(&treasuries.UpstreamError{Kind: treasuries.TransportFailure, Endpoint: "/bitcoin/entity/strategy", Status: 500})

	rows, err := env.entities.GetBalanceSheet(ctx, "strategy")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.False(t, env.cached(t, EntityBalanceSheetKeyPrefix+"strategy"))
}

func TestSyncEntityDetail(t *testing.T) {
	ctx := context.Background()

	t.Run("first sync populates everything", func(t *testing.T) {
		env := newTestEnv(t)
		created := createStrategy(t, env)

		entity, err := env.entities.SyncEntityDetail(ctx, "strategy")
		require.NoError(t, err)
		assert.Equal(t, 1, entity.Rank)
		assert.Equal(t, 226331.0, entity.BTCHoldings)
		assert.Equal(t, 8_330_000_000.0, entity.CostBasis)
		assert.Equal(t, 36798.0, entity.AvgCostPerBTC)
		assert.Equal(t, 115.4, entity.ProfitLossPct)
		assert.Equal(t, 1652.5, entity.SharePrice)
		assert.Equal(t, 31_200_000_000.0, entity.MarketCap)
		assert.Equal(t, 1.74, entity.NAVMultiplier)
		require.NotNil(t, entity.HoldingSince)
		assert.Equal(t, time.Date(2020, 8, 11, 0, 0, 0, 0, time.UTC), *entity.HoldingSince)
		require.NotNil(t, entity.LastUpdated)
		assert.Contains(t, entity.About, "Business intelligence")

		stored, err := env.repos.Entities.GetBySlug(ctx, "strategy")
		require.NoError(t, err)
		assert.Equal(t, 226331.0, stored.BTCHoldings)
		assert.Equal(t, entity.About, stored.About)

		links, err := env.repos.Entities.GetLinks(ctx, created.ID, nil)
		require.NoError(t, err)
		assert.Len(t, links, 2)

		rows, err := env.repos.BalanceSheets.CountByEntityID(ctx, created.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, rows)
		points, err := env.repos.TimeSeries.CountByEntityID(ctx, created.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 7, points)
	})

	t.Run("later syncs only overwrite scalar fields", func(t *testing.T) {
		env := newTestEnv(t)
		created := createStrategy(t, env)
		_, err := env.entities.SyncEntityDetail(ctx, "strategy")
		require.NoError(t, err)

		env.client.SetEntity("strategy", decodeBundle(t, `{
			"bitcoinHoldings": {"rank": 2, "btcHoldings": "250K"},
			"aboutEntity": {"description": "Rewritten upstream", "links": [{"label": "New", "url": "https://example.com/new"}]},
			"balanceSheet": {"rows": [{"date": "2024-05-01", "btcBalance": 250000}]},
			"timeseries": {"btcBalances": [["2024-05-01", 250000]]}
		}`))

		entity, err := env.entities.SyncEntityDetail(ctx, "strategy")
		require.NoError(t, err)
		assert.Equal(t, 2, entity.Rank)
		assert.Equal(t, 250000.0, entity.BTCHoldings)
		assert.Equal(t, 0.0, entity.SharePrice)
		assert.Nil(t, entity.HoldingSince)
		assert.Contains(t, entity.About, "Business intelligence")

		links, err := env.repos.Entities.GetLinks(ctx, created.ID, nil)
		require.NoError(t, err)
		assert.Len(t, links, 2)
		rows, err := env.repos.BalanceSheets.CountByEntityID(ctx, created.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, rows)
		points, err := env.repos.TimeSeries.CountByEntityID(ctx, created.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 7, points)
	})

	t.Run("locally written about text is kept", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.entities.CreateEntity(ctx, schemas.EntityInput{
			Slug: "strategy", Name: "Strategy", EntityType: "PUBLIC_COMPANY", About: "Curated description",
		})
		require.NoError(t, err)

		entity, err := env.entities.SyncEntityDetail(ctx, "strategy")
		require.NoError(t, err)
		assert.Equal(t, "Curated description", entity.About)
	})

	t.Run("external slug addresses upstream", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.entities.CreateEntity(ctx, schemas.EntityInput{
			Slug: "microstrategy", ExternalSlug: "strategy", Name: "MicroStrategy", EntityType: "PUBLIC_COMPANY",
		})
		require.NoError(t, err)

		entity, err := env.entities.SyncEntityDetail(ctx, "microstrategy")
		require.NoError(t, err)
		assert.Equal(t, 226331.0, entity.BTCHoldings)
	})

	t.Run("an invalid row aborts before any write", func(t *testing.T) {
		env := newTestEnv(t)
		created := createStrategy(t, env)
		env.client.SetEntity("strategy", decodeBundle(t, `{
			"bitcoinHoldings": {"btcHoldings": 10},
			"aboutEntity": {"description": "Should not be stored"},
			"balanceSheet": {"rows": [
				{"date": "2024-05-01", "btcBalance": 10},
				{"date": "garbage", "btcBalance": 11}
			]},
			"timeseries": {"btcBalances": [["2024-05-01", 10]]}
		}`))

		_, err := env.entities.SyncEntityDetail(ctx, "strategy")
		var rowErr *RowValidationError
		require.True(t, errors.As(err, &rowErr))
		assert.Equal(t, 1, rowErr.Index)

		stored, err := env.repos.Entities.GetBySlug(ctx, "strategy")
		require.NoError(t, err)
		assert.Nil(t, stored.LastUpdated)
		assert.Equal(t, 0.0, stored.BTCHoldings)
		assert.Empty(t, stored.About)

		rows, err := env.repos.BalanceSheets.CountByEntityID(ctx, created.ID, nil)
		require.NoError(t, err)
		assert.Zero(t, rows)
		points, err := env.repos.TimeSeries.CountByEntityID(ctx, created.ID, nil)
		require.NoError(t, err)
		assert.Zero(t, points)
	})

	t.Run("an invalid time series point aborts too", func(t *testing.T) {
		env := newTestEnv(t)
		createStrategy(t, env)
		env.client.SetEntity("strategy", decodeBundle(t, `{
			"timeseries": {"btcPrices": [["2024-05-01", "not a number"]]}
		}`))

		_, err := env.entities.SyncEntityDetail(ctx, "strategy")
		var rowErr *RowValidationError
		assert.True(t, errors.As(err, &rowErr))
	})

	t.Run("upstream failure is returned", func(t *testing.T) {
		env := newTestEnv(t)
		createStrategy(t, env)
		env.client.SetError(&treasuries.UpstreamError{Kind: treasuries.TransportFailure, Endpoint: "/bitcoin/entity/strategy", Status: 502})

		_, err := env.entities.SyncEntityDetail(ctx, "strategy")
		assert.True(t, treasuries.IsUpstreamFailure(err))
	})

	t.Run("unknown entity", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.entities.SyncEntityDetail(ctx, "ghost")
		assert.ErrorIs(t, err, ErrEntityNotFound)
		assert.Equal(t, 0, env.client.Calls(treasuries.EntityDetailBundle))
	})

	t.Run("sync invalidates cached views", func(t *testing.T) {
		env := newTestEnv(t)
		createStrategy(t, env)
		_, err := env.entities.ListEntities(ctx)
		require.NoError(t, err)
		require.True(t, env.cached(t, EntitiesAllKey))

		_, err = env.entities.SyncEntityDetail(ctx, "strategy")
		require.NoError(t, err)
		assert.False(t, env.cached(t, EntitiesAllKey))
	})
}

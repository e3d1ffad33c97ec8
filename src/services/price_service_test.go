package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/src/clients/treasuries"
	"treasury/src/repositories"
	"treasury/src/schemas"
)

var fixturePrices = schemas.PriceHistory{{1000, 50000}, {2000, 51000}, {3000, 52500.5}}

func TestGetPriceHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("cold read syncs, stores and caches", func(t *testing.T) {
		env := newTestEnv(t)

		history, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, fixturePrices, history)
		assert.Equal(t, 1, env.client.Calls(treasuries.SpotPriceSeries))
		assert.True(t, env.cached(t, HistoricalPriceKey))

		log, err := env.repos.SyncLogs.Get(ctx, HistoricalPriceKey)
		require.NoError(t, err)
		assert.Equal(t, 3, log.RowCount)
		assert.Equal(t, env.clock.Now(), log.SyncedAt)
		assert.False(t, env.cached(t, HistoricalPriceKey+"_busy"))
	})

	t.Run("cache hit makes no upstream call", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		history, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, fixturePrices, history)
		assert.Equal(t, 1, env.client.Calls(treasuries.SpotPriceSeries))
	})

	t.Run("fresh rows are served from the store after cache expiry", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		require.NoError(t, env.cache.Delete(ctx, HistoricalPriceKey))
		env.clock.Advance(4 * time.Minute)

		history, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, fixturePrices, history)
		assert.Equal(t, 1, env.client.Calls(treasuries.SpotPriceSeries))
	})

	t.Run("stale rows are replaced", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		require.NoError(t, env.cache.Delete(ctx, HistoricalPriceKey))
		env.clock.Advance(6 * time.Minute)
		env.client.SetPrices(treasuries.PriceSeriesResponse{{Token: 5000, Value: 60000}})

		history, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, schemas.PriceHistory{{5000, 60000}}, history)
		assert.Equal(t, 2, env.client.Calls(treasuries.SpotPriceSeries))
	})

	t.Run("duplicate timestamps keep the last value", func(t *testing.T) {
		env := newTestEnv(t)
		env.client.SetPrices(treasuries.PriceSeriesResponse{
			{Token: 2000, Value: 1},
			{Token: 1000, Value: 2},
			{Token: 2000, Value: 3},
		})

		history, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, schemas.PriceHistory{{1000, 2}, {2000, 3}}, history)
	})

	t.Run("upstream failure serves stored rows without caching", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		require.NoError(t, env.cache.Delete(ctx, HistoricalPriceKey))
		env.clock.Advance(time.Hour)
		env.client.SetError(&treasuries.UpstreamError{Kind: treasuries.TransportFailure, Endpoint: "/bitcoin/prices", Status: 503})

		history, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		assert.Equal(t, fixturePrices, history)
		assert.False(t, env.cached(t, HistoricalPriceKey))
		assert.False(t, env.cached(t, HistoricalPriceKey+"_busy"))
	})

	t.Run("upstream failure on an empty store returns an empty history", func(t *testing.T) {
		env := newTestEnv(t)
		env.client.SetError(&treasuries.UpstreamError{Kind: treasuries.ShapeFailure, Endpoint: "/bitcoin/prices"})

		history, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		assert.Empty(t, history)
		assert.False(t, env.cached(t, HistoricalPriceKey))
	})

	t.Run("store failure is returned", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.SetError(errors.New("connection refused"))

		_, err := env.prices.GetPriceHistory(ctx)
		assert.Error(t, err)
		assert.Equal(t, 0, env.client.Calls(treasuries.SpotPriceSeries))
	})

	t.Run("busy marker held elsewhere skips the sync", func(t *testing.T) {
		env := newTestEnv(t)
		ok, err := env.cache.SetNX(ctx, HistoricalPriceKey+"_busy", 1, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		history, err := env.prices.GetPriceHistory(ctx)
		require.NoError(t, err)
		assert.Empty(t, history)
		assert.Equal(t, 0, env.client.Calls(treasuries.SpotPriceSeries))
		assert.False(t, env.cached(t, HistoricalPriceKey))
	})

	t.Run("concurrent cold reads share one sync", func(t *testing.T) {
		env := newTestEnv(t)
		env.client.SetDelay(100 * time.Millisecond)

		var wg sync.WaitGroup
		results := make([]schemas.PriceHistory, 10)
		errs := make([]error, 10)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = env.prices.GetPriceHistory(ctx)
			}(i)
		}
		wg.Wait()

		for i := range results {
			require.NoError(t, errs[i])
			assert.Equal(t, fixturePrices, results[i])
		}
		assert.Equal(t, 1, env.client.Calls(treasuries.SpotPriceSeries))
	})

	t.Run("cancelled caller returns while the sync completes", func(t *testing.T) {
		env := newTestEnv(t)
		env.client.SetDelay(150 * time.Millisecond)

		callCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := env.prices.GetPriceHistory(callCtx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		assert.Eventually(t, func() bool {
			count, err := env.repos.Prices.Count(ctx)
			return err == nil && count == 3
		}, 2*time.Second, 20*time.Millisecond)
	})
}

func TestGetSpotPrice(t *testing.T) {
	ctx := context.Background()

	t.Run("latest price for accepted ids", func(t *testing.T) {
		env := newTestEnv(t)

		price, err := env.prices.GetSpotPrice(ctx, "BTC")
		require.NoError(t, err)
		assert.Equal(t, "btc", price.ID)
		assert.Equal(t, 52500.5, price.Price)
		assert.Equal(t, int64(3000), price.Timestamp)
		assert.True(t, env.cached(t, SpotPriceKeyPrefix+"btc"))

		price, err = env.prices.GetSpotPrice(ctx, "bitcoin")
		require.NoError(t, err)
		assert.Equal(t, 52500.5, price.Price)
		assert.Equal(t, 1, env.client.Calls(treasuries.SpotPriceSeries))
	})

	t.Run("unknown id", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.prices.GetSpotPrice(ctx, "ethereum")
		assert.ErrorIs(t, err, ErrUnknownPriceID)
		assert.Equal(t, 0, env.client.Calls(treasuries.SpotPriceSeries))
	})

	t.Run("no stored price", func(t *testing.T) {
		env := newTestEnv(t)
		env.client.SetPrices(treasuries.PriceSeriesResponse{})

		_, err := env.prices.GetSpotPrice(ctx, "btc")
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

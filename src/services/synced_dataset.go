package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"treasury/src/clients/treasuries"
	"treasury/src/config"
	"treasury/src/utils"
)

// FreshnessFunc reports when a dataset was last synced and how many rows are stored locally.
type FreshnessFunc func(ctx context.Context) (lastKnown *time.Time, rowCount int, err error)

// SyncSource describes how a durable dataset is refreshed from upstream.
// Datasets sharing a Key must share Freshness and Sync.
type SyncSource struct {
	Key       string
	Window    time.Duration
	Freshness FreshnessFunc
	Sync      func(ctx context.Context) error
}

type syncOutcome int

const (
	syncNotNeeded syncOutcome = iota
	syncCompleted
	// syncDegraded means the sync failed upstream or ran elsewhere; local rows may be stale.
	syncDegraded
)

// SyncEngine coalesces syncs per key inside the process and across processes through a busy marker in the cache.
type SyncEngine struct {
	cache       utils.CacheHandlerI
	flights     singleflight.Group
	syncTimeout time.Duration
	busyTTL     time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

func NewSyncEngine(cache utils.CacheHandlerI, cfg config.SyncConfig, logger *logrus.Logger) *SyncEngine {
	return &SyncEngine{
		cache:       cache,
		syncTimeout: cfg.Timeout,
		busyTTL:     cfg.BusyTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// Now returns the engine clock in UTC.
func (e *SyncEngine) Now() time.Time {
	return e.now().UTC()
}

// Invalidate removes cached entries. Failures are logged, the durable store stays the source of truth.
func (e *SyncEngine) Invalidate(ctx context.Context, keys ...string) {
	if err := e.cache.Delete(ctx, keys...); err != nil {
		e.logger.WithError(err).WithField("keys", keys).Warn("Failed to invalidate cache keys")
	}
}

// ensureFresh runs source.Sync at most once at a time per key. A caller whose ctx ends first gets ctx.Err()
// while the sync keeps running on a detached context bounded by the sync timeout.
func (e *SyncEngine) ensureFresh(ctx context.Context, source *SyncSource) (syncOutcome, error) {
	ch := e.flights.DoChan(source.Key, func() (interface{}, error) {
		syncCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.syncTimeout)
		defer cancel()
		return e.refresh(syncCtx, source)
	})

	select {
	case <-ctx.Done():
		return syncNotNeeded, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return syncNotNeeded, res.Err
		}
		return res.Val.(syncOutcome), nil
	}
}

func (e *SyncEngine) refresh(ctx context.Context, source *SyncSource) (syncOutcome, error) {
	log := e.logger.WithField("sync_key", source.Key)

	// Checked again inside the flight so a caller arriving right after a sync does not repeat it.
	lastKnown, rowCount, err := source.Freshness(ctx)
	if err != nil {
		return syncNotNeeded, fmt.Errorf("failed to check freshness of %s: %w", source.Key, err)
	}
	if !NeedsRefresh(lastKnown, rowCount, source.Window, e.now()) {
		return syncNotNeeded, nil
	}

	busyKey := source.Key + "_busy"
	acquired, err := e.cache.SetNX(ctx, busyKey, e.now().UnixMilli(), e.busyTTL)
	switch {
	case err != nil:
		log.WithError(err).Warn("Could not set busy marker, syncing without it")
	case !acquired:
		log.Info("Sync already running in another process, serving stored data")
		return syncDegraded, nil
	default:
		defer e.Invalidate(context.WithoutCancel(ctx), busyKey)
	}

	start := e.now()
	if err := source.Sync(ctx); err != nil {
		var rowErr *RowValidationError
		if treasuries.IsUpstreamFailure(err) || errors.As(err, &rowErr) {
			log.WithError(err).Warn("Sync failed, serving stored data")
			return syncDegraded, nil
		}
		return syncNotNeeded, fmt.Errorf("failed to sync %s: %w", source.Key, err)
	}
	log.WithField("elapsed", e.now().Sub(start).String()).Info("Dataset synced")
	return syncCompleted, nil
}

// SyncedDataset is a cache-aside view over durable rows, refreshed from upstream when stale.
type SyncedDataset[T any] struct {
	Engine   *SyncEngine
	CacheKey string
	TTL      time.Duration
	// Source is nil for datasets that only live in the durable store.
	Source *SyncSource
	Load   func(ctx context.Context) (T, error)
}

// Read returns the cached value, or syncs when stale, reloads from the store and caches the result.
// Upstream failures are logged and the stored rows served uncached; store failures are returned.
func (d SyncedDataset[T]) Read(ctx context.Context) (T, error) {
	var value T
	log := d.Engine.logger.WithField("dataset", d.CacheKey)

	err := d.Engine.cache.Get(ctx, d.CacheKey, &value)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, utils.ErrKeyNotFound) {
		log.WithError(err).Warn("Cache read failed")
	}

	outcome := syncNotNeeded
	if d.Source != nil {
		outcome, err = d.Engine.ensureFresh(ctx, d.Source)
		if err != nil {
			var zero T
			return zero, err
		}
	}

	value, err = d.Load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if outcome == syncDegraded {
		return value, nil
	}
	if err := d.Engine.cache.Set(ctx, d.CacheKey, value, d.TTL); err != nil {
		log.WithError(err).Warn("Cache write failed")
	}
	return value, nil
}

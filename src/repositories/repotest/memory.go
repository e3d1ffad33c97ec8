// Package repotest provides in-memory repositories with the same contracts as the Postgres ones.
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"treasury/src/models"
	"treasury/src/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store holds every table in memory. Err, when set, is returned by every call.
type Store struct {
	mu            sync.Mutex
	err           error
	entities      map[string]*models.Entity
	links         map[uuid.UUID][]models.EntityLink
	prices        []models.PriceHistoryPoint
	aggregates    []models.AggregateHoldingsPoint
	balanceSheets map[uuid.UUID][]models.BalanceSheetRow
	timeSeries    map[uuid.UUID][]models.TimeSeriesPoint
	syncLogs      map[string]models.SyncLog
	nextID        int64
	onEntityRead  func(slug string)
}

func NewStore() *Store {
	return &Store{
		entities:      make(map[string]*models.Entity),
		links:         make(map[uuid.UUID][]models.EntityLink),
		balanceSheets: make(map[uuid.UUID][]models.BalanceSheetRow),
		timeSeries:    make(map[uuid.UUID][]models.TimeSeriesPoint),
		syncLogs:      make(map[string]models.SyncLog),
	}
}

// NewRepositories returns repositories backed by a fresh Store.
func NewRepositories() (*repositories.Repositories, *Store) {
	s := NewStore()
	return s.Repositories(), s
}

func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Entities:      entityRepo{s},
		Prices:        priceRepo{s},
		Aggregates:    aggregateRepo{s},
		BalanceSheets: balanceSheetRepo{s},
		TimeSeries:    timeSeriesRepo{s},
		SyncLogs:      syncLogRepo{s},
		Tx:            txManager{s},
	}
}

func (s *Store) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// OnEntityRead registers fn to run after every successful entity read by slug, outside the store lock.
// Tests use it to interleave a second writer between a read and the write that follows it.
func (s *Store) OnEntityRead(fn func(slug string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEntityRead = fn
}

func (s *Store) entityRead(slug string) {
	s.mu.Lock()
	fn := s.onEntityRead
	s.mu.Unlock()
	if fn != nil {
		fn(slug)
	}
}

func (s *Store) lock() error {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

type txManager struct{ s *Store }

// WithTx runs fn with a nil transaction; in-memory writes are applied immediately.
func (m txManager) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

type syncLogRepo struct{ s *Store }

func (r syncLogRepo) MarkSynced(ctx context.Context, key string, at time.Time, rowCount int, tx pgx.Tx) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	r.s.syncLogs[key] = models.SyncLog{DatasetKey: key, SyncedAt: at, RowCount: rowCount}
	return nil
}

func (r syncLogRepo) GetLastSyncDate(ctx context.Context, key string) (*time.Time, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	log, ok := r.s.syncLogs[key]
	if !ok {
		return nil, nil
	}
	at := log.SyncedAt
	return &at, nil
}

func (r syncLogRepo) Get(ctx context.Context, key string) (*models.SyncLog, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	log, ok := r.s.syncLogs[key]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &log, nil
}

type priceRepo struct{ s *Store }

func (r priceRepo) GetAll(ctx context.Context) ([]models.PriceHistoryPoint, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	points := append([]models.PriceHistoryPoint(nil), r.s.prices...)
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points, nil
}

func (r priceRepo) GetLatest(ctx context.Context) (*models.PriceHistoryPoint, error) {
	points, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, repositories.ErrNotFound
	}
	return &points[len(points)-1], nil
}

func (r priceRepo) Count(ctx context.Context) (int, error) {
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	return len(r.s.prices), nil
}

func (r priceRepo) ReplaceAll(ctx context.Context, points []models.PriceHistoryPoint, tx pgx.Tx) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	r.s.prices = append([]models.PriceHistoryPoint(nil), points...)
	return nil
}

type aggregateRepo struct{ s *Store }

func (r aggregateRepo) GetAll(ctx context.Context) ([]models.AggregateHoldingsPoint, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	points := append([]models.AggregateHoldingsPoint(nil), r.s.aggregates...)
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	return points, nil
}

func (r aggregateRepo) GetLatest(ctx context.Context) (*models.AggregateHoldingsPoint, error) {
	points, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, repositories.ErrNotFound
	}
	return &points[len(points)-1], nil
}

func (r aggregateRepo) Count(ctx context.Context) (int, error) {
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	return len(r.s.aggregates), nil
}

func (r aggregateRepo) ReplaceAll(ctx context.Context, points []models.AggregateHoldingsPoint, tx pgx.Tx) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	r.s.aggregates = append([]models.AggregateHoldingsPoint(nil), points...)
	return nil
}

type balanceSheetRepo struct{ s *Store }

func (r balanceSheetRepo) GetByEntityID(ctx context.Context, entityID uuid.UUID) ([]models.BalanceSheetRow, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	rows := append([]models.BalanceSheetRow(nil), r.s.balanceSheets[entityID]...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.After(rows[j].Date) })
	return rows, nil
}

func (r balanceSheetRepo) CountByEntityID(ctx context.Context, entityID uuid.UUID, tx pgx.Tx) (int, error) {
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	return len(r.s.balanceSheets[entityID]), nil
}

func (r balanceSheetRepo) ReplaceForEntity(ctx context.Context, entityID uuid.UUID, rows []models.BalanceSheetRow, tx pgx.Tx) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	stored := make([]models.BalanceSheetRow, 0, len(rows))
	for _, row := range rows {
		row.ID = r.s.id()
		row.EntityID = entityID
		stored = append(stored, row)
	}
	r.s.balanceSheets[entityID] = stored
	return nil
}

type timeSeriesRepo struct{ s *Store }

func (r timeSeriesRepo) GetByEntityID(ctx context.Context, entityID uuid.UUID) ([]models.TimeSeriesPoint, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	points := append([]models.TimeSeriesPoint(nil), r.s.timeSeries[entityID]...)
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].SeriesType != points[j].SeriesType {
			return points[i].SeriesType < points[j].SeriesType
		}
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}

func (r timeSeriesRepo) CountByEntityID(ctx context.Context, entityID uuid.UUID, tx pgx.Tx) (int, error) {
	if err := r.s.lock(); err != nil {
		return 0, err
	}
	defer r.s.mu.Unlock()
	return len(r.s.timeSeries[entityID]), nil
}

// ReplaceForEntity enforces the (series type, date) uniqueness the Postgres constraint does.
func (r timeSeriesRepo) ReplaceForEntity(ctx context.Context, entityID uuid.UUID, points []models.TimeSeriesPoint, tx pgx.Tx) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	type key struct {
		series models.SeriesType
		date   int64
	}
	seen := make(map[key]bool, len(points))
	stored := make([]models.TimeSeriesPoint, 0, len(points))
	for _, p := range points {
		k := key{p.SeriesType, p.Date.UnixNano()}
		if seen[k] {
			return repositories.ErrDuplicate
		}
		seen[k] = true
		p.ID = r.s.id()
		p.EntityID = entityID
		stored = append(stored, p)
	}
	r.s.timeSeries[entityID] = stored
	return nil
}

type entityRepo struct{ s *Store }

func (r entityRepo) Create(ctx context.Context, e *models.Entity, tx pgx.Tx) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if _, ok := r.s.entities[e.Slug]; ok {
		return repositories.ErrDuplicate
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	stored := *e
	r.s.entities[e.Slug] = &stored
	return nil
}

func (r entityRepo) Update(ctx context.Context, entityID uuid.UUID, patch repositories.EntityPatch, tx pgx.Tx) (*models.Entity, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	stored := r.s.byID(entityID)
	if stored == nil {
		return nil, repositories.ErrNotFound
	}
	if patch.ExternalSlug != nil {
		stored.ExternalSlug = *patch.ExternalSlug
	}
	if patch.Name != nil {
		stored.Name = *patch.Name
	}
	if patch.Ticker != nil {
		stored.Ticker = *patch.Ticker
	}
	if patch.Country != nil {
		stored.Country = *patch.Country
	}
	if patch.EntityType != nil {
		stored.EntityType = *patch.EntityType
	}
	if patch.Rank != nil {
		stored.Rank = *patch.Rank
	}
	if patch.BTCHoldings != nil {
		stored.BTCHoldings = *patch.BTCHoldings
	}
	if patch.CostBasis != nil {
		stored.CostBasis = *patch.CostBasis
	}
	if patch.About != nil {
		stored.About = *patch.About
	}
	if patch.Active != nil {
		stored.Active = *patch.Active
	}
	stored.UpdatedAt = time.Now().UTC()
	updated := *stored
	return &updated, nil
}

func (s *Store) byID(id uuid.UUID) *models.Entity {
	for _, e := range s.entities {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (r entityRepo) GetBySlug(ctx context.Context, slug string) (*models.Entity, error) {
	found, err := r.getBySlug(slug)
	if err == nil {
		r.s.entityRead(slug)
	}
	return found, err
}

func (r entityRepo) getBySlug(slug string) (*models.Entity, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	e, ok := r.s.entities[slug]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	found := *e
	return &found, nil
}

// LockBySlug reads like GetBySlug. The store is process-local, so there is no row lock to take.
func (r entityRepo) LockBySlug(ctx context.Context, slug string, tx pgx.Tx) (*models.Entity, error) {
	return r.GetBySlug(ctx, slug)
}

func (r entityRepo) List(ctx context.Context, filter repositories.EntityFilter) ([]models.Entity, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	var entities []models.Entity
	for _, e := range r.s.entities {
		if filter.Type != nil && e.EntityType != *filter.Type {
			continue
		}
		if filter.ActiveOnly && !e.Active {
			continue
		}
		entities = append(entities, *e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].BTCHoldings != entities[j].BTCHoldings {
			return entities[i].BTCHoldings > entities[j].BTCHoldings
		}
		return entities[i].Name < entities[j].Name
	})
	return entities, nil
}

func (r entityRepo) ApplySnapshot(ctx context.Context, entityID uuid.UUID, snap models.EntitySnapshot, syncedAt time.Time, tx pgx.Tx) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	e := r.s.byID(entityID)
	if e == nil {
		return repositories.ErrNotFound
	}
	e.Rank = snap.Rank
	e.HoldingSince = snap.HoldingSince
	e.BTCHoldings = snap.BTCHoldings
	e.CostBasis = snap.CostBasis
	e.AvgCostPerBTC = snap.AvgCostPerBTC
	e.ProfitLossPct = snap.ProfitLossPct
	e.SharePrice = snap.SharePrice
	e.MarketCap = snap.MarketCap
	e.NAVMultiplier = snap.NAVMultiplier
	at := syncedAt
	e.LastUpdated = &at
	return nil
}

func (r entityRepo) SetAbout(ctx context.Context, entityID uuid.UUID, about string, tx pgx.Tx) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	if e := r.s.byID(entityID); e != nil {
		e.About = about
	}
	return nil
}

func (r entityRepo) GetLinks(ctx context.Context, entityID uuid.UUID, tx pgx.Tx) ([]models.EntityLink, error) {
	if err := r.s.lock(); err != nil {
		return nil, err
	}
	defer r.s.mu.Unlock()
	return append([]models.EntityLink(nil), r.s.links[entityID]...), nil
}

func (r entityRepo) ReplaceLinks(ctx context.Context, entityID uuid.UUID, links []models.EntityLink, tx pgx.Tx) error {
	if err := r.s.lock(); err != nil {
		return err
	}
	defer r.s.mu.Unlock()
	stored := make([]models.EntityLink, 0, len(links))
	for _, l := range links {
		l.ID = r.s.id()
		l.EntityID = entityID
		stored = append(stored, l)
	}
	r.s.links[entityID] = stored
	return nil
}

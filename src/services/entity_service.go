package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
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
	EntitiesAllKey              = "entities-all-data"
	AdminEntitiesKeyPrefix      = "admin-entities_"
	EntityBalanceSheetKeyPrefix = "entity-balance-sheet_"
	EntityTimeSeriesKeyPrefix   = "entity-timeseries_"
	EntityDataSyncKeyPrefix     = "entity-data_"

	adminEntitiesAll = "ALL"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrSlugTaken      = errors.New("slug already in use")
	ErrInvalidEntity  = errors.New("invalid entity")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type EntityServiceI interface {
	CreateEntity(ctx context.Context, input schemas.EntityInput) (*models.Entity, error)
	UpdateEntity(ctx context.Context, slug string, input schemas.EntityUpdate) (*models.Entity, error)
	ListEntities(ctx context.Context) ([]models.Entity, error)
	ListAdminEntities(ctx context.Context, entityType string) ([]models.Entity, error)
	SyncEntityDetail(ctx context.Context, slug string) (*models.Entity, error)
	GetBalanceSheet(ctx context.Context, slug string) ([]schemas.BalanceSheetRow, error)
	GetTimeSeries(ctx context.Context, slug string) (schemas.EntityTimeSeries, error)
}

type EntityService struct {
	repos  *repositories.Repositories
	client treasuries.TreasuriesServiceClientI
	engine *SyncEngine
	cfg    *config.Config
	locks  *utils.KeyedMutex
	logger *logrus.Logger
}

func NewEntityService(repos *repositories.Repositories, client treasuries.TreasuriesServiceClientI, engine *SyncEngine, cfg *config.Config, logger *logrus.Logger) *EntityService {
	return &EntityService{
		repos:  repos,
		client: client,
		engine: engine,
		cfg:    cfg,
		locks:  utils.NewKeyedMutex(),
		logger: logger,
	}
}

func (s *EntityService) getEntity(ctx context.Context, slug string) (*models.Entity, error) {
	entity, err := s.repos.Entities.GetBySlug(ctx, slug)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, slug)
	}
	return entity, err
}

// lockEntity takes the entity row lock inside tx. Writers in the API and the worker share one
// database, so the row lock orders them. The keyed mutex only orders writers within one process.
func (s *EntityService) lockEntity(ctx context.Context, slug string, tx pgx.Tx) (*models.Entity, error) {
	entity, err := s.repos.Entities.LockBySlug(ctx, slug, tx)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, slug)
	}
	return entity, err
}

func parseEntityType(raw string) (models.EntityType, error) {
	entityType := models.EntityType(strings.ToUpper(strings.TrimSpace(raw)))
	if !entityType.Valid() {
		return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidEntity, raw)
	}
	return entityType, nil
}

// invalidate drops every cached view an admin write to slug can change.
func (s *EntityService) invalidate(ctx context.Context, slug string) {
	keys := []string{
		EntitiesAllKey,
		SummaryKey,
		AdminEntitiesKeyPrefix + adminEntitiesAll,
		EntityBalanceSheetKeyPrefix + slug,
		EntityTimeSeriesKeyPrefix + slug,
	}
	for _, t := range models.EntityTypes {
		keys = append(keys, AdminEntitiesKeyPrefix+string(t))
	}
	s.engine.Invalidate(ctx, keys...)
}

func (s *EntityService) CreateEntity(ctx context.Context, input schemas.EntityInput) (*models.Entity, error) {
	slug := strings.TrimSpace(input.Slug)
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug %q must be lowercase letters, digits and dashes", ErrInvalidEntity, input.Slug)
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidEntity)
	}
	entityType, err := parseEntityType(input.EntityType)
	if err != nil {
		return nil, err
	}

	entity := &models.Entity{
		Slug:         slug,
		ExternalSlug: strings.TrimSpace(input.ExternalSlug),
		Name:         strings.TrimSpace(input.Name),
		Ticker:       input.Ticker,
		Country:      input.Country,
		EntityType:   entityType,
		Rank:         input.Rank,
		BTCHoldings:  input.BTCHoldings,
		CostBasis:    input.CostBasis,
		About:        input.About,
		Active:       input.Active == nil || *input.Active,
	}

	unlock := s.locks.Lock(slug)
	defer unlock()

	if err := s.repos.Entities.Create(ctx, entity, nil); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrSlugTaken, slug)
		}
		return nil, err
	}
	s.invalidate(ctx, slug)
	s.logger.WithField("slug", slug).Info("Entity created")
	return entity, nil
}

func (s *EntityService) UpdateEntity(ctx context.Context, slug string, input schemas.EntityUpdate) (*models.Entity, error) {
	unlock := s.locks.Lock(slug)
	defer unlock()

	patch := repositories.EntityPatch{
		Ticker:      input.Ticker,
		Country:     input.Country,
		Rank:        input.Rank,
		BTCHoldings: input.BTCHoldings,
		CostBasis:   input.CostBasis,
		About:       input.About,
		Active:      input.Active,
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidEntity)
		}
		patch.Name = &name
	}
	if input.EntityType != nil {
		entityType, err := parseEntityType(*input.EntityType)
		if err != nil {
			return nil, err
		}
		patch.EntityType = &entityType
	}
	if input.ExternalSlug != nil {
		externalSlug := strings.TrimSpace(*input.ExternalSlug)
		patch.ExternalSlug = &externalSlug
	}

	var updated *models.Entity
	err := s.repos.Tx.WithTx(ctx, func(tx pgx.Tx) error {
		entity, err := s.lockEntity(ctx, slug, tx)
		if err != nil {
			return err
		}
		updated, err = s.repos.Entities.Update(ctx, entity.ID, patch, tx)
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEntityNotFound, slug)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, slug)
	return updated, nil
}

// ListEntities returns the active entities, largest holders first.
func (s *EntityService) ListEntities(ctx context.Context) ([]models.Entity, error) {
	return SyncedDataset[[]models.Entity]{
		Engine:   s.engine,
		CacheKey: EntitiesAllKey,
		TTL:      s.cfg.Cache.EntitiesAllTTL,
		Load: func(ctx context.Context) ([]models.Entity, error) {
			entities, err := s.repos.Entities.List(ctx, repositories.EntityFilter{ActiveOnly: true})
			if entities == nil {
				entities = []models.Entity{}
			}
			return entities, err
		},
	}.Read(ctx)
}

// ListAdminEntities returns every entity of entityType, inactive ones included. An empty type lists all.
func (s *EntityService) ListAdminEntities(ctx context.Context, entityType string) ([]models.Entity, error) {
	filter := repositories.EntityFilter{}
	suffix := adminEntitiesAll
	if entityType != "" {
		t, err := parseEntityType(entityType)
		if err != nil {
			return nil, err
		}
		filter.Type = &t
		suffix = string(t)
	}

	return SyncedDataset[[]models.Entity]{
		Engine:   s.engine,
		CacheKey: AdminEntitiesKeyPrefix + suffix,
		TTL:      s.cfg.Cache.AdminEntitiesTTL,
		Load: func(ctx context.Context) ([]models.Entity, error) {
			entities, err := s.repos.Entities.List(ctx, filter)
			if entities == nil {
				entities = []models.Entity{}
			}
			return entities, err
		},
	}.Read(ctx)
}

func (s *EntityService) entitySource(entity *models.Entity) *SyncSource {
	key := EntityDataSyncKeyPrefix + entity.Slug
	return &SyncSource{
		Key:    key,
		Window: s.cfg.Sync.EntityWindow,
		Freshness: func(ctx context.Context) (*time.Time, int, error) {
			lastKnown, err := s.repos.SyncLogs.GetLastSyncDate(ctx, key)
			if err != nil {
				return nil, 0, err
			}
			rows, err := s.repos.BalanceSheets.CountByEntityID(ctx, entity.ID, nil)
			if err != nil {
				return nil, 0, err
			}
			points, err := s.repos.TimeSeries.CountByEntityID(ctx, entity.ID, nil)
			if err != nil {
				return nil, 0, err
			}
			return lastKnown, rows + points, nil
		},
		Sync: func(ctx context.Context) error {
			return s.syncEntityData(ctx, entity)
		},
	}
}

// syncEntityData is the read-triggered refresh: invalid rows are skipped and the entity's
// balance sheet and time series are replaced wholesale.
func (s *EntityService) syncEntityData(ctx context.Context, entity *models.Entity) error {
	unlock := s.locks.Lock(entity.Slug)
	defer unlock()

	log := s.logger.WithField("slug", entity.Slug)
	bundle, err := s.client.GetEntity(ctx, entity.UpstreamSlug())
	if err != nil {
		return err
	}

	rows, err := convertRows("balance sheet", bundle.BalanceSheet.Rows, SkipInvalidRows, log, toBalanceSheetRow)
	if err != nil {
		return err
	}
	points, err := convertTimeSeries(bundle.Timeseries, SkipInvalidRows, log)
	if err != nil {
		return err
	}

	key := EntityDataSyncKeyPrefix + entity.Slug
	syncedAt := s.engine.Now()
	return s.repos.Tx.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := s.lockEntity(ctx, entity.Slug, tx); err != nil {
			return err
		}
		if err := s.repos.BalanceSheets.ReplaceForEntity(ctx, entity.ID, rows, tx); err != nil {
			return fmt.Errorf("failed to replace balance sheet: %w", err)
		}
		if err := s.repos.TimeSeries.ReplaceForEntity(ctx, entity.ID, points, tx); err != nil {
			return fmt.Errorf("failed to replace time series: %w", err)
		}
		return s.repos.SyncLogs.MarkSynced(ctx, key, syncedAt, len(rows)+len(points), tx)
	})
}

// SyncEntityDetail is the edit-triggered refresh. Scalar fields are always overwritten; about text, links,
// balance sheet and time series are only filled when nothing is stored yet. Any invalid row aborts the
// whole sync before a single write.
func (s *EntityService) SyncEntityDetail(ctx context.Context, slug string) (*models.Entity, error) {
	unlock := s.locks.Lock(slug)
	defer unlock()

	entity, err := s.getEntity(ctx, slug)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithField("slug", slug)

	bundle, err := s.client.GetEntity(ctx, entity.UpstreamSlug())
	if err != nil {
		return nil, err
	}

	rows, err := convertRows("balance sheet", bundle.BalanceSheet.Rows, AbortOnInvalidRow, log, toBalanceSheetRow)
	if err != nil {
		return nil, err
	}
	points, err := convertTimeSeries(bundle.Timeseries, AbortOnInvalidRow, log)
	if err != nil {
		return nil, err
	}
	snapshot := toSnapshot(bundle)

	syncedAt := s.engine.Now()
	err = s.repos.Tx.WithTx(ctx, func(tx pgx.Tx) error {
		locked, err := s.lockEntity(ctx, slug, tx)
		if err != nil {
			return err
		}
		entity = locked

		if err := s.repos.Entities.ApplySnapshot(ctx, entity.ID, snapshot, syncedAt, tx); err != nil {
			return fmt.Errorf("failed to update entity fields: %w", err)
		}

		if entity.About == "" && bundle.AboutEntity.Description != "" {
			if err := s.repos.Entities.SetAbout(ctx, entity.ID, bundle.AboutEntity.Description, tx); err != nil {
				return err
			}
			entity.About = bundle.AboutEntity.Description
		}

		links, err := s.repos.Entities.GetLinks(ctx, entity.ID, tx)
		if err != nil {
			return err
		}
		if len(links) == 0 && len(bundle.AboutEntity.Links) > 0 {
			if err := s.repos.Entities.ReplaceLinks(ctx, entity.ID, toLinks(bundle.AboutEntity.Links), tx); err != nil {
				return err
			}
		}

		count, err := s.repos.BalanceSheets.CountByEntityID(ctx, entity.ID, tx)
		if err != nil {
			return err
		}
		if count == 0 {
			if err := s.repos.BalanceSheets.ReplaceForEntity(ctx, entity.ID, rows, tx); err != nil {
				return fmt.Errorf("failed to populate balance sheet: %w", err)
			}
		}

		count, err = s.repos.TimeSeries.CountByEntityID(ctx, entity.ID, tx)
		if err != nil {
			return err
		}
		if count == 0 {
			if err := s.repos.TimeSeries.ReplaceForEntity(ctx, entity.ID, points, tx); err != nil {
				return fmt.Errorf("failed to populate time series: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	applySnapshot(entity, snapshot, syncedAt)
	s.invalidate(ctx, slug)
	log.Info("Entity detail synced")
	return entity, nil
}

func applySnapshot(e *models.Entity, snap models.EntitySnapshot, syncedAt time.Time) {
	e.Rank = snap.Rank
	e.HoldingSince = snap.HoldingSince
	e.BTCHoldings = snap.BTCHoldings
	e.CostBasis = snap.CostBasis
	e.AvgCostPerBTC = snap.AvgCostPerBTC
	e.ProfitLossPct = snap.ProfitLossPct
	e.SharePrice = snap.SharePrice
	e.MarketCap = snap.MarketCap
	e.NAVMultiplier = snap.NAVMultiplier
	e.LastUpdated = &syncedAt
}

func toSnapshot(bundle *treasuries.EntityBundle) models.EntitySnapshot {
	holdings, stock := bundle.BitcoinHoldings, bundle.StockFinancials
	snapshot := models.EntitySnapshot{
		Rank:          int(utils.NormalizeNumber(holdings.Rank)),
		BTCHoldings:   utils.NormalizeNumber(holdings.BTCHoldings),
		CostBasis:     utils.NormalizeNumber(holdings.CostBasis),
		AvgCostPerBTC: utils.NormalizeNumber(holdings.AvgCostPerBTC),
		ProfitLossPct: utils.NormalizeNumber(holdings.ProfitLossPct),
		SharePrice:    utils.NormalizeNumber(stock.SharePrice),
		MarketCap:     utils.NormalizeNumber(stock.MarketCap),
		NAVMultiplier: utils.NormalizeNumber(stock.NAVMultiplier),
	}
	if since, err := utils.NormalizeDate(holdings.HoldingSince); err == nil {
		snapshot.HoldingSince = &since
	}
	return snapshot
}

func toLinks(links []treasuries.AboutLink) []models.EntityLink {
	result := make([]models.EntityLink, 0, len(links))
	for _, l := range links {
		if l.URL == "" {
			continue
		}
		result = append(result, models.EntityLink{Label: l.Label, URL: l.URL})
	}
	return result
}

func toBalanceSheetRow(row treasuries.BalanceSheetRow) (models.BalanceSheetRow, error) {
	date, err := utils.NormalizeDate(row.Date)
	if err != nil {
		return models.BalanceSheetRow{}, err
	}
	balance, ok := utils.ParseNumber(row.BTCBalance)
	if !ok {
		return models.BalanceSheetRow{}, fmt.Errorf("btc balance %v is not numeric", row.BTCBalance)
	}
	return models.BalanceSheetRow{
		Date:        date,
		BTCBalance:  balance,
		Change:      utils.NormalizeNumber(row.Change),
		CostBasis:   utils.NormalizeNumber(row.CostBasis),
		MarketPrice: utils.NormalizeNumber(row.MarketPrice),
		StockPrice:  utils.NormalizeNumber(row.StockPrice),
	}, nil
}

// convertTimeSeries flattens the upstream series map and keeps the last point per (series type, date).
func convertTimeSeries(series map[string][]treasuries.SeriesPoint, policy RowPolicy, log *logrus.Entry) ([]models.TimeSeriesPoint, error) {
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	var points []models.TimeSeriesPoint
	for _, name := range names {
		seriesType := models.SeriesType(name)
		if !seriesType.Valid() {
			log.WithField("series", name).Warn("Ignoring unknown time series")
			continue
		}
		converted, err := convertRows("time series "+name, series[name], policy, log, func(p treasuries.SeriesPoint) (models.TimeSeriesPoint, error) {
			date, err := utils.NormalizeDate(p.Token)
			if err != nil {
				return models.TimeSeriesPoint{}, err
			}
			value, ok := utils.ParseNumber(p.Value)
			if !ok {
				return models.TimeSeriesPoint{}, fmt.Errorf("value %v is not numeric", p.Value)
			}
			return models.TimeSeriesPoint{SeriesType: seriesType, Date: date, Value: value, Token: fmt.Sprint(p.Token)}, nil
		})
		if err != nil {
			return nil, err
		}
		points = append(points, dedupSeries(converted)...)
	}
	return points, nil
}

func dedupSeries(points []models.TimeSeriesPoint) []models.TimeSeriesPoint {
	index := make(map[int64]int, len(points))
	deduped := make([]models.TimeSeriesPoint, 0, len(points))
	for _, p := range points {
		ts := p.Date.UnixMilli()
		if i, ok := index[ts]; ok {
			deduped[i] = p
			continue
		}
		index[ts] = len(deduped)
		deduped = append(deduped, p)
	}
	sort.SliceStable(deduped, func(i, j int) bool { return deduped[i].Date.Before(deduped[j].Date) })
	return deduped
}

func (s *EntityService) activeEntity(ctx context.Context, slug string) (*models.Entity, error) {
	entity, err := s.getEntity(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !entity.Active {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, slug)
	}
	return entity, nil
}

// GetBalanceSheet returns the entity's balance sheet, newest row first.
func (s *EntityService) GetBalanceSheet(ctx context.Context, slug string) ([]schemas.BalanceSheetRow, error) {
	entity, err := s.activeEntity(ctx, slug)
	if err != nil {
		return nil, err
	}

	return SyncedDataset[[]schemas.BalanceSheetRow]{
		Engine:   s.engine,
		CacheKey: EntityBalanceSheetKeyPrefix + slug,
		TTL:      s.cfg.Cache.EntityDataTTL,
		Source:   s.entitySource(entity),
		Load: func(ctx context.Context) ([]schemas.BalanceSheetRow, error) {
			rows, err := s.repos.BalanceSheets.GetByEntityID(ctx, entity.ID)
			if err != nil {
				return nil, err
			}
			result := make([]schemas.BalanceSheetRow, 0, len(rows))
			for _, r := range rows {
				result = append(result, schemas.BalanceSheetRow{
					Date:        r.Date,
					BTCBalance:  r.BTCBalance,
					Change:      r.Change,
					CostBasis:   r.CostBasis,
					MarketPrice: r.MarketPrice,
					StockPrice:  r.StockPrice,
				})
			}
			return result, nil
		},
	}.Read(ctx)
}

// GetTimeSeries returns every stored series of the entity keyed by series type.
func (s *EntityService) GetTimeSeries(ctx context.Context, slug string) (schemas.EntityTimeSeries, error) {
	entity, err := s.activeEntity(ctx, slug)
	if err != nil {
		return nil, err
	}

	return SyncedDataset[schemas.EntityTimeSeries]{
		Engine:   s.engine,
		CacheKey: EntityTimeSeriesKeyPrefix + slug,
		TTL:      s.cfg.Cache.EntityDataTTL,
		Source:   s.entitySource(entity),
		Load: func(ctx context.Context) (schemas.EntityTimeSeries, error) {
			points, err := s.repos.TimeSeries.GetByEntityID(ctx, entity.ID)
			if err != nil {
				return nil, err
			}
			result := make(schemas.EntityTimeSeries)
			for _, p := range points {
				name := string(p.SeriesType)
				result[name] = append(result[name], [2]float64{float64(p.Date.UnixMilli()), p.Value})
			}
			return result, nil
		},
	}.Read(ctx)
}

package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"treasury/src/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EntityFilter struct {
	Type       *models.EntityType
	ActiveOnly bool
}

// EntityPatch holds the admin-editable columns. Nil fields are left untouched.
type EntityPatch struct {
	ExternalSlug *string
	Name         *string
	Ticker       *string
	Country      *string
	EntityType   *models.EntityType
	Rank         *int
	BTCHoldings  *float64
	CostBasis    *float64
	About        *string
	Active       *bool
}

// assignments builds the SET list. Placeholders start at $2, $1 is the entity id.
func (p EntityPatch) assignments() ([]string, []any) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)+1))
	}
	if p.ExternalSlug != nil {
		add("external_slug", *p.ExternalSlug)
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Ticker != nil {
		add("ticker", *p.Ticker)
	}
	if p.Country != nil {
		add("country", *p.Country)
	}
	if p.EntityType != nil {
		add("entity_type", string(*p.EntityType))
	}
	if p.Rank != nil {
		add("rank", *p.Rank)
	}
	if p.BTCHoldings != nil {
		add("btc_holdings", *p.BTCHoldings)
	}
	if p.CostBasis != nil {
		add("cost_basis", *p.CostBasis)
	}
	if p.About != nil {
		add("about", *p.About)
	}
	if p.Active != nil {
		add("active", *p.Active)
	}
	return sets, args
}

type EntityRepository interface {
	Create(ctx context.Context, e *models.Entity, tx pgx.Tx) error
	Update(ctx context.Context, entityID uuid.UUID, patch EntityPatch, tx pgx.Tx) (*models.Entity, error)
	GetBySlug(ctx context.Context, slug string) (*models.Entity, error)
	LockBySlug(ctx context.Context, slug string, tx pgx.Tx) (*models.Entity, error)
	List(ctx context.Context, filter EntityFilter) ([]models.Entity, error)
	ApplySnapshot(ctx context.Context, entityID uuid.UUID, snapshot models.EntitySnapshot, syncedAt time.Time, tx pgx.Tx) error
	SetAbout(ctx context.Context, entityID uuid.UUID, about string, tx pgx.Tx) error
	GetLinks(ctx context.Context, entityID uuid.UUID, tx pgx.Tx) ([]models.EntityLink, error)
	ReplaceLinks(ctx context.Context, entityID uuid.UUID, links []models.EntityLink, tx pgx.Tx) error
}

type entityRepo struct {
	db *pgxpool.Pool
}

func NewEntityRepository(db *pgxpool.Pool) EntityRepository {
	return &entityRepo{db: db}
}

const entityColumns = `id, slug, external_slug, name, ticker, country, entity_type, rank, holding_since,
	btc_holdings, cost_basis, avg_cost_per_btc, profit_loss_pct, share_price, market_cap, nav_multiplier,
	about, active, last_updated, created_at, updated_at`

func scanEntity(row pgx.Row, e *models.Entity) error {
	return row.Scan(
		&e.ID, &e.Slug, &e.ExternalSlug, &e.Name, &e.Ticker, &e.Country, &e.EntityType, &e.Rank, &e.HoldingSince,
		&e.BTCHoldings, &e.CostBasis, &e.AvgCostPerBTC, &e.ProfitLossPct, &e.SharePrice, &e.MarketCap, &e.NAVMultiplier,
		&e.About, &e.Active, &e.LastUpdated, &e.CreatedAt, &e.UpdatedAt,
	)
}

// Create inserts e and fills its ID and timestamps. A taken slug returns ErrDuplicate.
func (r *entityRepo) Create(ctx context.Context, e *models.Entity, tx pgx.Tx) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	query := `
		INSERT INTO entities (id, slug, external_slug, name, ticker, country, entity_type, rank, holding_since,
			btc_holdings, cost_basis, avg_cost_per_btc, profit_loss_pct, share_price, market_cap, nav_multiplier,
			about, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at`

	err := pick(r.db, tx).QueryRow(ctx, query,
		e.ID, e.Slug, e.ExternalSlug, e.Name, e.Ticker, e.Country, string(e.EntityType), e.Rank, e.HoldingSince,
		e.BTCHoldings, e.CostBasis, e.AvgCostPerBTC, e.ProfitLossPct, e.SharePrice, e.MarketCap, e.NAVMultiplier,
		e.About, e.Active,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// Update writes the columns set in patch and returns the stored row.
func (r *entityRepo) Update(ctx context.Context, entityID uuid.UUID, patch EntityPatch, tx pgx.Tx) (*models.Entity, error) {
	sets, args := patch.assignments()
	sets = append(sets, "updated_at = NOW()")
	query := `UPDATE entities SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + entityColumns

	var e models.Entity
	err := scanEntity(pick(r.db, tx).QueryRow(ctx, query, append([]any{entityID}, args...)...), &e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// LockBySlug reads the entity row with FOR UPDATE. Writers for one entity take it first, so the API
// and the worker serialize on the row until tx ends.
func (r *entityRepo) LockBySlug(ctx context.Context, slug string, tx pgx.Tx) (*models.Entity, error) {
	var e models.Entity
	err := scanEntity(pick(r.db, tx).QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE slug = $1 FOR UPDATE`, slug), &e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *entityRepo) GetBySlug(ctx context.Context, slug string) (*models.Entity, error) {
	var e models.Entity
	err := scanEntity(r.db.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE slug = $1`, slug), &e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *entityRepo) List(ctx context.Context, filter EntityFilter) ([]models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE ($1::text IS NULL OR entity_type = $1) AND (NOT $2 OR active)
		ORDER BY btc_holdings DESC, name ASC`

	var entityType *string
	if filter.Type != nil {
		t := string(*filter.Type)
		entityType = &t
	}

	rows, err := r.db.Query(ctx, query, entityType, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		var e models.Entity
		if err := scanEntity(rows, &e); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ApplySnapshot overwrites the upstream-owned scalar fields and stamps last_updated.
func (r *entityRepo) ApplySnapshot(ctx context.Context, entityID uuid.UUID, s models.EntitySnapshot, syncedAt time.Time, tx pgx.Tx) error {
	tag, err := pick(r.db, tx).Exec(ctx, `
		UPDATE entities SET
			rank = $2, holding_since = $3, btc_holdings = $4, cost_basis = $5, avg_cost_per_btc = $6,
			profit_loss_pct = $7, share_price = $8, market_cap = $9, nav_multiplier = $10,
			last_updated = $11, updated_at = NOW()
		WHERE id = $1`,
		entityID, s.Rank, s.HoldingSince, s.BTCHoldings, s.CostBasis, s.AvgCostPerBTC,
		s.ProfitLossPct, s.SharePrice, s.MarketCap, s.NAVMultiplier, syncedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *entityRepo) SetAbout(ctx context.Context, entityID uuid.UUID, about string, tx pgx.Tx) error {
	_, err := pick(r.db, tx).Exec(ctx, `UPDATE entities SET about = $2, updated_at = NOW() WHERE id = $1`, entityID, about)
	return err
}

func (r *entityRepo) GetLinks(ctx context.Context, entityID uuid.UUID, tx pgx.Tx) ([]models.EntityLink, error) {
	rows, err := pick(r.db, tx).Query(ctx, `
		SELECT id, entity_id, label, url
		FROM entity_links
		WHERE entity_id = $1
		ORDER BY id ASC`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []models.EntityLink
	for rows.Next() {
		var l models.EntityLink
		if err := rows.Scan(&l.ID, &l.EntityID, &l.Label, &l.URL); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *entityRepo) ReplaceLinks(ctx context.Context, entityID uuid.UUID, links []models.EntityLink, tx pgx.Tx) error {
	return inTx(ctx, r.db, tx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM entity_links WHERE entity_id = $1`, entityID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, l := range links {
			batch.Queue(`INSERT INTO entity_links (entity_id, label, url) VALUES ($1, $2, $3)`, entityID, l.Label, l.URL)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

func pick(db *pgxpool.Pool, tx pgx.Tx) querier {
	if tx != nil {
		return tx
	}
	return db
}

// inTx runs fn on tx when one is provided, otherwise inside a new transaction.
func inTx(ctx context.Context, db *pgxpool.Pool, tx pgx.Tx, fn func(pgx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	return pgx.BeginFunc(ctx, db, fn)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// TxManager runs a unit of work in a single transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type txManager struct {
	db *pgxpool.Pool
}

func NewTxManager(db *pgxpool.Pool) TxManager {
	return &txManager{db: db}
}

func (m *txManager) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, m.db, fn)
}

// Repositories bundles every repository the services depend on.
type Repositories struct {
	Entities      EntityRepository
	Prices        PriceHistoryRepository
	Aggregates    AggregateHoldingsRepository
	BalanceSheets BalanceSheetRepository
	TimeSeries    TimeSeriesRepository
	SyncLogs      SyncLogRepository
	Tx            TxManager
}

func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		Entities:      NewEntityRepository(db),
		Prices:        NewPriceHistoryRepository(db),
		Aggregates:    NewAggregateHoldingsRepository(db),
		BalanceSheets: NewBalanceSheetRepository(db),
		TimeSeries:    NewTimeSeriesRepository(db),
		SyncLogs:      NewSyncLogRepository(db),
		Tx:            NewTxManager(db),
	}
}

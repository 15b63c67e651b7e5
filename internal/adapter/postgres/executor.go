package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/guillermoBallester/sounder/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor runs guarded SELECT statements inside read-only transactions.
type Executor struct {
	pool         *pgxpool.Pool
	guard        SelectGuard
	queryTimeout time.Duration
}

func NewExecutor(pool *pgxpool.Pool, queryTimeout time.Duration) *Executor {
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Executor{
		pool:         pool,
		queryTimeout: queryTimeout,
	}
}

// Query returns the result rows as records. Errors are classified into
// domain sentinels.
func (e *Executor) Query(ctx context.Context, sql string, args ...any) ([]domain.Record, error) {
	if err := e.guard.Validate(sql); err != nil {
		return nil, fmt.Errorf("%w: rejected generated query: %w", domain.ErrSourceQueryFailed, err)
	}
	if e.pool == nil {
		return nil, fmt.Errorf("%w: no connection pool", domain.ErrSourceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, classify("beginning transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// statement_timeout makes PostgreSQL cancel server-side as well.
	timeoutMS := e.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return nil, classify("setting statement timeout", err)
	}
	// Day buckets are computed in UTC regardless of server settings.
	if _, err := tx.Exec(ctx, "SET LOCAL TimeZone = 'UTC'"); err != nil {
		return nil, classify("setting time zone", err)
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("executing query", err)
	}
	defer rows.Close()

	results, err := rowsToRecords(rows)
	if err != nil {
		return nil, classify("reading rows", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, classify("committing transaction", err)
	}

	return results, nil
}

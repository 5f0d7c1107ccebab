package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polysight/ctfindexer/internal/domain"
)

// Runner implements domain.Atomic on top of a pgx transaction. The stores
// handed to fn share one pgx.Tx, so the order insert and both aggregate
// upserts for a fill commit or roll back together.
type Runner struct {
	pool *pgxpool.Pool
}

// NewRunner creates a Runner backed by the given connection pool.
func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// Atomically begins a transaction, runs fn with tx-bound stores, and commits
// on success. Any error from fn rolls the transaction back and is returned
// unwrapped so callers can errors.Is against their own sentinels.
func (r *Runner) Atomically(ctx context.Context, fn func(s domain.Stores) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	stores := domain.Stores{
		Orders:  &OrderStore{db: tx},
		Markets: &MarketStore{db: tx},
		Daily:   &DailyStatsStore{db: tx},
	}

	if err := fn(stores); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.Atomic          = (*Runner)(nil)
	_ domain.OrderStore      = (*OrderStore)(nil)
	_ domain.MarketStore     = (*MarketStore)(nil)
	_ domain.DailyStatsStore = (*DailyStatsStore)(nil)
)

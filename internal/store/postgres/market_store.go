package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/polysight/ctfindexer/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	db querier
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{db: pool}
}

const marketSelectCols = `token_id, question, description, status,
	total_volume::text, total_orders, last_order_at, created_at, updated_at`

// ApplyFill folds one fill into the market keyed by tokenID. The whole
// read-modify-write is a single upsert statement, so concurrent appliers
// serialize on the row and no increment is ever lost.
func (s *MarketStore) ApplyFill(ctx context.Context, tokenID string, volumeUSD decimal.Decimal, at time.Time) error {
	const query = `
		INSERT INTO markets (
			token_id, question, description, status,
			total_volume, total_orders, last_order_at, created_at, updated_at
		) VALUES (
			$1, $2, '', 'ACTIVE',
			$3, 1, $4, $4, $4
		) ON CONFLICT (token_id) DO UPDATE SET
			total_volume  = markets.total_volume + EXCLUDED.total_volume,
			total_orders  = markets.total_orders + 1,
			last_order_at = EXCLUDED.last_order_at,
			updated_at    = EXCLUDED.updated_at`

	_, err := s.db.Exec(ctx, query,
		tokenID, domain.DefaultQuestion(tokenID), volumeUSD.String(), at)
	if err != nil {
		return fmt.Errorf("postgres: apply fill to market %s: %w", tokenID, err)
	}
	return nil
}

// GetByTokenID returns the market for the given token, or domain.ErrNotFound.
func (s *MarketStore) GetByTokenID(ctx context.Context, tokenID string) (domain.Market, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE token_id = $1`, tokenID)

	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", tokenID, err)
	}
	return m, nil
}

// List returns markets ordered by most recent activity.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets ORDER BY last_order_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m      domain.Market
		status string
		volume string
	)
	if err := row.Scan(
		&m.TokenID, &m.Question, &m.Description, &status,
		&volume, &m.TotalOrders, &m.LastOrderAt, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return domain.Market{}, err
	}

	var err error
	if m.TotalVolume, err = decimal.NewFromString(volume); err != nil {
		return domain.Market{}, fmt.Errorf("bad total volume %q: %w", volume, err)
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/polysight/ctfindexer/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Amounts and
// uint256 asset ids travel as strings into NUMERIC(78,0) columns; derived
// decimals do the same so no driver-level codec registration is needed.
type OrderStore struct {
	db querier
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{db: pool}
}

// NUMERIC columns are selected as text so they scan into plain strings.
const orderSelectCols = `id, order_hash, maker, taker,
	maker_asset_id::text, taker_asset_id::text,
	maker_amount_filled::text, taker_amount_filled::text, fee::text,
	side, price::text, volume_usd::text,
	market_question, block_number, transaction_hash, timestamp, created_at, updated_at`

// CreateIfAbsent inserts the order unless a row already exists for its hash.
// ON CONFLICT DO NOTHING makes the existence check and the insert a single
// atomic step, so two concurrent writers can never both report creation.
func (s *OrderStore) CreateIfAbsent(ctx context.Context, o domain.Order) (bool, error) {
	const query = `
		INSERT INTO orders (
			id, order_hash, maker, taker, maker_asset_id, taker_asset_id,
			maker_amount_filled, taker_amount_filled, fee, side, price,
			volume_usd, market_question, block_number, transaction_hash,
			timestamp, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18
		) ON CONFLICT (id) DO NOTHING`

	tag, err := s.db.Exec(ctx, query,
		o.ID, o.OrderHash, o.Maker, o.Taker, o.MakerAssetID, o.TakerAssetID,
		o.MakerAmountFilled.String(), o.TakerAmountFilled.String(), o.Fee.String(),
		string(o.Side), o.Price.String(),
		o.VolumeUSD.String(), o.MarketQuestion, o.BlockNumber, o.TransactionHash,
		o.Timestamp, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID returns the order with the given hash, or domain.ErrNotFound.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// LastTimestamp returns the newest stored order timestamp, or the zero time
// when no orders exist.
func (s *OrderStore) LastTimestamp(ctx context.Context) (time.Time, error) {
	var ts *time.Time
	err := s.db.QueryRow(ctx, "SELECT MAX(timestamp) FROM orders").Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("postgres: last order timestamp: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// ListRecent returns orders newest-first with pagination and optional time
// filtering.
func (s *OrderStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE TRUE`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"

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
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	return scanOrderRows(rows)
}

// ListBefore returns all orders with timestamp strictly before the given
// time, oldest first, for archiving.
func (s *OrderStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE timestamp < $1 ORDER BY timestamp ASC`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders before: %w", err)
	}
	defer rows.Close()

	return scanOrderRows(rows)
}

// DeleteBefore deletes all orders with timestamp before the given time and
// returns the number deleted. Deleted rows can no longer serve duplicate
// detection; callers must be sure the event source does not replay that far
// back.
func (s *OrderStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM orders WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete orders before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                       domain.Order
		side                    string
		makerAmt, takerAmt, fee string
		price, volume           string
	)
	if err := row.Scan(
		&o.ID, &o.OrderHash, &o.Maker, &o.Taker, &o.MakerAssetID, &o.TakerAssetID,
		&makerAmt, &takerAmt, &fee, &side, &price, &volume,
		&o.MarketQuestion, &o.BlockNumber, &o.TransactionHash,
		&o.Timestamp, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	var ok bool
	if o.MakerAmountFilled, ok = new(big.Int).SetString(makerAmt, 10); !ok {
		return domain.Order{}, fmt.Errorf("bad maker amount %q", makerAmt)
	}
	if o.TakerAmountFilled, ok = new(big.Int).SetString(takerAmt, 10); !ok {
		return domain.Order{}, fmt.Errorf("bad taker amount %q", takerAmt)
	}
	if o.Fee, ok = new(big.Int).SetString(fee, 10); !ok {
		return domain.Order{}, fmt.Errorf("bad fee %q", fee)
	}

	var err error
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Order{}, fmt.Errorf("bad price %q: %w", price, err)
	}
	if o.VolumeUSD, err = decimal.NewFromString(volume); err != nil {
		return domain.Order{}, fmt.Errorf("bad volume %q: %w", volume, err)
	}

	o.Side = domain.Side(side)
	return o, nil
}

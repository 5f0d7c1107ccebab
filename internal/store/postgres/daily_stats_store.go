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

// DailyStatsStore implements domain.DailyStatsStore using PostgreSQL.
type DailyStatsStore struct {
	db querier
}

// NewDailyStatsStore creates a new DailyStatsStore backed by the given
// connection pool.
func NewDailyStatsStore(pool *pgxpool.Pool) *DailyStatsStore {
	return &DailyStatsStore{db: pool}
}

const dailySelectCols = `day_id, date, total_volume::text, total_orders,
	unique_traders, avg_order_size::text, created_at`

// ApplyFill folds one fill into the day bucket. avg_order_size is recomputed
// from the post-increment totals inside the same statement, so the
// avg = volume / orders invariant holds after every update. unique_traders
// is carried but never computed.
func (s *DailyStatsStore) ApplyFill(ctx context.Context, dayID int64, date string, volumeUSD decimal.Decimal, at time.Time) error {
	const query = `
		INSERT INTO daily_stats (
			day_id, date, total_volume, total_orders,
			unique_traders, avg_order_size, created_at
		) VALUES (
			$1, $2, $3, 1,
			0, $3, $4
		) ON CONFLICT (day_id) DO UPDATE SET
			total_volume   = daily_stats.total_volume + EXCLUDED.total_volume,
			total_orders   = daily_stats.total_orders + 1,
			avg_order_size = (daily_stats.total_volume + EXCLUDED.total_volume)
			                 / (daily_stats.total_orders + 1)`

	_, err := s.db.Exec(ctx, query, dayID, date, volumeUSD.String(), at)
	if err != nil {
		return fmt.Errorf("postgres: apply fill to day %d: %w", dayID, err)
	}
	return nil
}

// GetByDay returns the bucket for the given day index, or domain.ErrNotFound.
func (s *DailyStatsStore) GetByDay(ctx context.Context, dayID int64) (domain.DailyStats, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+dailySelectCols+` FROM daily_stats WHERE day_id = $1`, dayID)

	d, err := scanDailyStats(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DailyStats{}, domain.ErrNotFound
		}
		return domain.DailyStats{}, fmt.Errorf("postgres: get daily stats %d: %w", dayID, err)
	}
	return d, nil
}

// ListRecent returns the most recent day buckets, newest first.
func (s *DailyStatsStore) ListRecent(ctx context.Context, limit int) ([]domain.DailyStats, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+dailySelectCols+` FROM daily_stats ORDER BY day_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list daily stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.DailyStats
	for rows.Next() {
		d, err := scanDailyStats(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan daily stats: %w", err)
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}

func scanDailyStats(row pgx.Row) (domain.DailyStats, error) {
	var (
		d           domain.DailyStats
		volume, avg string
	)
	if err := row.Scan(
		&d.DayID, &d.Date, &volume, &d.TotalOrders,
		&d.UniqueTraders, &avg, &d.CreatedAt,
	); err != nil {
		return domain.DailyStats{}, err
	}

	var err error
	if d.TotalVolume, err = decimal.NewFromString(volume); err != nil {
		return domain.DailyStats{}, fmt.Errorf("bad total volume %q: %w", volume, err)
	}
	if d.AvgOrderSize, err = decimal.NewFromString(avg); err != nil {
		return domain.DailyStats{}, fmt.Errorf("bad avg order size %q: %w", avg, err)
	}
	return d, nil
}

package domain

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderStore persists derived orders keyed by order hash.
type OrderStore interface {
	// GetByID returns the order with the given hash, or ErrNotFound.
	GetByID(ctx context.Context, id string) (Order, error)

	// CreateIfAbsent inserts the order unless one already exists under the
	// same hash. It reports whether the insert happened. An existing row is
	// never updated.
	CreateIfAbsent(ctx context.Context, o Order) (bool, error)

	// LastTimestamp returns the newest stored order timestamp, or the zero
	// time when no orders exist. Used as the backfill cursor.
	LastTimestamp(ctx context.Context) (time.Time, error)

	ListRecent(ctx context.Context, opts ListOpts) ([]Order, error)
	ListBefore(ctx context.Context, before time.Time) ([]Order, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// MarketStore persists per-token aggregate records.
type MarketStore interface {
	GetByTokenID(ctx context.Context, tokenID string) (Market, error)

	// ApplyFill folds one fill into the market keyed by tokenID, creating
	// the market with placeholder metadata if it does not exist yet. The
	// increment must be atomic per key: concurrent appliers may not lose
	// updates.
	ApplyFill(ctx context.Context, tokenID string, volumeUSD decimal.Decimal, at time.Time) error

	List(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// DailyStatsStore persists per-day aggregate buckets.
type DailyStatsStore interface {
	GetByDay(ctx context.Context, dayID int64) (DailyStats, error)

	// ApplyFill folds one fill into the bucket dayID, creating it if
	// absent. date is the human-readable YYYY-MM-DD form of the bucket.
	// AvgOrderSize is recomputed from the post-increment totals. The
	// increment must be atomic per key.
	ApplyFill(ctx context.Context, dayID int64, date string, volumeUSD decimal.Decimal, at time.Time) error

	ListRecent(ctx context.Context, limit int) ([]DailyStats, error)
}

// Stores bundles the three entity stores touched by one fill event.
type Stores struct {
	Orders  OrderStore
	Markets MarketStore
	Daily   DailyStatsStore
}

// Atomic runs fn against stores bound to a single atomic unit of work.
// Either every write fn performs is persisted, or none is; a failed event
// leaves no partial state behind.
type Atomic interface {
	Atomically(ctx context.Context, fn func(s Stores) error) error
}

// LockManager provides distributed mutual exclusion. Acquire returns an
// unlock function on success and ErrLockHeld when another party holds the
// lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MarketCache is a read-through cache for market records.
type MarketCache interface {
	Get(ctx context.Context, tokenID string) (Market, error)
	Set(ctx context.Context, market Market) error
	Invalidate(ctx context.Context, tokenID string) error
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

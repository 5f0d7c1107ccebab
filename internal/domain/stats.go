package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyStats is the per-day aggregate bucket, keyed by the Unix day index
// floor(timestamp / 86400). Created lazily on the first fill of the day,
// mutated by every fill in that day, never deleted.
//
// UniqueTraders is declared for schema compatibility with the upstream
// subgraph but is never computed from maker/taker identities; it stays 0.
type DailyStats struct {
	DayID         int64
	Date          string // YYYY-MM-DD
	TotalVolume   decimal.Decimal
	TotalOrders   int64
	UniqueTraders int64
	AvgOrderSize  decimal.Decimal
	CreatedAt     time.Time
}

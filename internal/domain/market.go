package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "ACTIVE"
	MarketStatusClosed   MarketStatus = "CLOSED"
	MarketStatusResolved MarketStatus = "RESOLVED"
)

// Market is the per-token aggregate record. It is created lazily on the
// first observed fill referencing the token and mutated by every fill
// thereafter; it is never deleted. TotalVolume and TotalOrders are
// monotonically non-decreasing.
type Market struct {
	TokenID     string // ERC-1155 token ID (76-digit base-10 string)
	Question    string
	Description string
	Status      MarketStatus
	TotalVolume decimal.Decimal
	TotalOrders int64
	LastOrderAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DefaultQuestion returns the placeholder question stored for markets that
// have not been enriched with real metadata. Enrichment from an external
// metadata source is an extension point, not part of indexing.
func DefaultQuestion(tokenID string) string {
	return "Market " + tokenID
}

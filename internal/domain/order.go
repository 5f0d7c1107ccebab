package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a fill from the maker's perspective.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is the derived, persisted record of one fill event. It is write-once:
// exactly one Order exists per distinct order hash, and a second event
// carrying the same hash never updates it.
type Order struct {
	ID                string // order hash, 0x-prefixed hex
	OrderHash         string
	Maker             string
	Taker             string
	MakerAssetID      string // base-10 uint256
	TakerAssetID      string
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int
	Side              Side
	Price             decimal.Decimal // cents per token, typically 0-100
	VolumeUSD         decimal.Decimal
	MarketQuestion    string
	BlockNumber       uint64
	TransactionHash   string
	Timestamp         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Package derive contains the pure derivation functions that turn the raw
// integer fields of an OrderFilled event into their economic interpretation:
// trade side, price in cents, and USD volume. Nothing in this package
// performs I/O or holds state.
package derive

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/polysight/ctfindexer/internal/domain"
)

// usdcDecimals is the fixed decimal precision of the USDC collateral token.
const usdcDecimals = 6

var hundred = decimal.NewFromInt(100)

// OrderSide classifies a fill from the maker's perspective. Asset ID 0 is
// USDC: a maker paying USDC is buying tokens, every other fill is a sell.
// The classification checks only the maker asset, mirroring the exchange's
// own convention.
func OrderSide(makerAssetID, takerAssetID *big.Int) domain.Side {
	if makerAssetID.Sign() == 0 {
		return domain.SideBuy
	}
	return domain.SideSell
}

// Price computes the fill price in cents on the 0-100 scale of a
// binary-outcome token:
//
//	BUY:  (makerAmount / takerAmount) * 100
//	SELL: (takerAmount / makerAmount) * 100
//
// The legs are divided as raw integer amounts without normalizing their
// decimal scales, matching the upstream subgraph; the result is only
// meaningful when both legs share the same precision. A zero divisor yields
// 0 rather than an error, keeping the function total.
func Price(makerAmount, takerAmount *big.Int, side domain.Side) decimal.Decimal {
	maker := decimal.NewFromBigInt(makerAmount, 0)
	taker := decimal.NewFromBigInt(takerAmount, 0)

	if taker.IsZero() {
		return decimal.Zero
	}

	if side == domain.SideBuy {
		return maker.Div(taker).Mul(hundred)
	}
	if maker.IsZero() {
		return decimal.Zero
	}
	return taker.Div(maker).Mul(hundred)
}

// VolumeUSD returns the USD-denominated leg of the fill: the maker amount
// for buys (USDC paid) and the taker amount for sells (USDC received),
// shifted down by USDC's 6 decimals.
func VolumeUSD(makerAmount, takerAmount *big.Int, side domain.Side) decimal.Decimal {
	usdc := makerAmount
	if side == domain.SideSell {
		usdc = takerAmount
	}
	return decimal.NewFromBigInt(usdc, -usdcDecimals)
}

// MarketTokenID resolves which asset keys the market aggregate: the asset
// acquired on a buy, the asset given up on a sell. The result is 0 for a
// degenerate USDC-for-USDC fill, which updates no market.
func MarketTokenID(makerAssetID, takerAssetID *big.Int, side domain.Side) *big.Int {
	if side == domain.SideBuy {
		return takerAssetID
	}
	return makerAssetID
}

// DayBucket returns the Unix day index for a timestamp in seconds.
func DayBucket(ts int64) int64 {
	if ts < 0 && ts%86400 != 0 {
		return ts/86400 - 1
	}
	return ts / 86400
}

// BucketDate renders a day bucket as a YYYY-MM-DD calendar date. The civil
// date is computed directly from the day count (Gregorian era arithmetic)
// so the result is independent of locale and time zone databases.
func BucketDate(dayID int64) string {
	y, m, d := civilFromDays(dayID)
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// civilFromDays converts a count of days since 1970-01-01 to a proleptic
// Gregorian year, month, and day.
func civilFromDays(z int64) (year int64, month, day int) {
	z += 719468
	era := z
	if z < 0 {
		era -= 146096
	}
	era /= 146097

	// doe: day of era [0, 146096]; yoe: year of era [0, 399];
	// doy: day of year from March 1 [0, 365]; mp: month index with March = 0.
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y := yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	day = int(doy - (153*mp+2)/5 + 1)
	month = int(mp + 3)
	if mp >= 10 {
		month = int(mp - 9)
	}
	year = y
	if month <= 2 {
		year++
	}
	return year, month, day
}

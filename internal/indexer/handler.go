// Package indexer contains the event handler that folds decoded OrderFilled
// events into persisted orders and aggregate statistics. Each event is
// processed exactly once: the order hash is the deduplication key, and the
// order insert plus both aggregate updates commit as one atomic unit.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/polysight/ctfindexer/internal/derive"
	"github.com/polysight/ctfindexer/internal/domain"
)

// lockTTL bounds how long a crashed processor can block redelivery of the
// same order hash.
const lockTTL = 30 * time.Second

// Handler processes decoded fill events. It is safe for concurrent use;
// events for the same order hash serialize on a distributed lock, and the
// storage layer's conditional insert is the hard duplicate guard behind it.
type Handler struct {
	orders domain.OrderStore
	atomic domain.Atomic
	locks  domain.LockManager
	cache  domain.MarketCache
	logger *slog.Logger
}

// NewHandler creates a Handler. orders is used for the duplicate fast path
// and must read the same state that atomic writes. cache may be nil; when
// set, the market entry touched by a fill is invalidated after commit.
func NewHandler(orders domain.OrderStore, atomic domain.Atomic, locks domain.LockManager, cache domain.MarketCache, logger *slog.Logger) *Handler {
	return &Handler{
		orders: orders,
		atomic: atomic,
		locks:  locks,
		cache:  cache,
		logger: logger.With(slog.String("component", "indexer")),
	}
}

// HandleOrderFilled processes one fill event to completion:
// dedupe check, derivation, order persistence, market and daily aggregation.
// A duplicate order hash is a silent no-op. Any storage failure leaves no
// partial state and returns an error so the delivery layer can redeliver.
func (h *Handler) HandleOrderFilled(ctx context.Context, fill domain.FillEvent) error {
	if err := validateFill(fill); err != nil {
		return err
	}

	orderID := fill.OrderHash.Hex()

	// Serialize concurrent deliveries of the same hash so the existence
	// check and the insert act as one step across processes.
	unlock, err := h.locks.Acquire(ctx, "fill:"+orderID, lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("fill %s already in flight: %w", orderID, err)
		}
		return fmt.Errorf("acquiring fill lock %s: %w", orderID, err)
	}
	defer unlock()

	// Duplicate fast path: an existing order means the whole event was
	// already applied, aggregates included.
	if _, err := h.orders.GetByID(ctx, orderID); err == nil {
		h.logger.DebugContext(ctx, "duplicate fill skipped", slog.String("order_id", orderID))
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("dedupe lookup %s: %w", orderID, err)
	}

	order := deriveOrder(fill)
	tokenID := derive.MarketTokenID(fill.MakerAssetID, fill.TakerAssetID, order.Side)
	dayID := derive.DayBucket(fill.Timestamp)

	created := false
	err = h.atomic.Atomically(ctx, func(s domain.Stores) error {
		var err error
		created, err = s.Orders.CreateIfAbsent(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if !created {
			return nil
		}

		// A USDC-for-USDC fill keys no market; the daily bucket still counts it.
		if tokenID.Sign() != 0 {
			if err := s.Markets.ApplyFill(ctx, tokenID.String(), order.VolumeUSD, order.Timestamp); err != nil {
				return fmt.Errorf("market %s: %w", tokenID, err)
			}
		}

		if err := s.Daily.ApplyFill(ctx, dayID, derive.BucketDate(dayID), order.VolumeUSD, order.Timestamp); err != nil {
			return fmt.Errorf("daily bucket %d: %w", dayID, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("indexing fill %s: %w", orderID, err)
	}
	if !created {
		return nil
	}

	// The cached market is stale now; drop it so the next read refetches.
	if h.cache != nil && tokenID.Sign() != 0 {
		if err := h.cache.Invalidate(ctx, tokenID.String()); err != nil {
			h.logger.WarnContext(ctx, "market cache invalidation failed",
				slog.String("token_id", tokenID.String()),
				slog.String("error", err.Error()))
		}
	}

	h.logger.InfoContext(ctx, "order filled",
		slog.String("order_id", orderID),
		slog.String("side", string(order.Side)),
		slog.String("maker_amount_filled", fill.MakerAmountFilled.String()),
		slog.String("price", order.Price.String()),
		slog.String("volume_usd", order.VolumeUSD.String()),
	)
	return nil
}

// deriveOrder copies the event fields and computes the derived ones. The
// created/updated stamps carry the block timestamp, matching write-once
// semantics: they are set here and never touched again.
func deriveOrder(fill domain.FillEvent) domain.Order {
	side := derive.OrderSide(fill.MakerAssetID, fill.TakerAssetID)
	at := time.Unix(fill.Timestamp, 0).UTC()

	order := domain.Order{
		ID:                fill.OrderHash.Hex(),
		OrderHash:         fill.OrderHash.Hex(),
		Maker:             fill.Maker.Hex(),
		Taker:             fill.Taker.Hex(),
		MakerAssetID:      fill.MakerAssetID.String(),
		TakerAssetID:      fill.TakerAssetID.String(),
		MakerAmountFilled: fill.MakerAmountFilled,
		TakerAmountFilled: fill.TakerAmountFilled,
		Fee:               fill.Fee,
		Side:              side,
		Price:             derive.Price(fill.MakerAmountFilled, fill.TakerAmountFilled, side),
		VolumeUSD:         derive.VolumeUSD(fill.MakerAmountFilled, fill.TakerAmountFilled, side),
		BlockNumber:       fill.BlockNumber,
		TransactionHash:   fill.TransactionHash.Hex(),
		Timestamp:         at,
		CreatedAt:         at,
		UpdatedAt:         at,
	}

	if tokenID := derive.MarketTokenID(fill.MakerAssetID, fill.TakerAssetID, side); tokenID.Sign() != 0 {
		order.MarketQuestion = domain.DefaultQuestion(tokenID.String())
	}
	return order
}

// validateFill rejects events whose big-integer fields are missing or
// negative before any derivation runs, so a malformed event fails
// deterministically without touching aggregates.
func validateFill(fill domain.FillEvent) error {
	fields := map[string]*big.Int{
		"makerAssetId":      fill.MakerAssetID,
		"takerAssetId":      fill.TakerAssetID,
		"makerAmountFilled": fill.MakerAmountFilled,
		"takerAmountFilled": fill.TakerAmountFilled,
		"fee":               fill.Fee,
	}
	for name, v := range fields {
		if v == nil {
			return fmt.Errorf("%w: missing %s", domain.ErrInvalidFill, name)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("%w: negative %s", domain.ErrInvalidFill, name)
		}
	}
	return nil
}

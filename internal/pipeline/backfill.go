// Package pipeline coordinates the long-running loops of the indexer: the
// live on-chain subscription, the Goldsky backfill, and cold-storage
// archival.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/polysight/ctfindexer/internal/domain"
	"github.com/polysight/ctfindexer/internal/platform/goldsky"
)

// FillHandler consumes one decoded fill event.
type FillHandler interface {
	HandleOrderFilled(ctx context.Context, fill domain.FillEvent) error
}

// Backfiller replays historical fills from the Goldsky subgraph into the
// fill handler. The cursor is the newest order timestamp already persisted,
// so a restart resumes where the database left off and the handler's
// dedup absorbs the overlap at the cursor boundary.
type Backfiller struct {
	gql          *goldsky.Client
	orders       domain.OrderStore
	handler      FillHandler
	pageSize     int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(gql *goldsky.Client, orders domain.OrderStore, handler FillHandler, pageSize int, pollInterval time.Duration, logger *slog.Logger) *Backfiller {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Backfiller{
		gql:          gql,
		orders:       orders,
		handler:      handler,
		pageSize:     pageSize,
		pollInterval: pollInterval,
		logger:       logger.With("component", "backfill"),
	}
}

// Run fetches pages of fills oldest-first and feeds them to the handler
// until the context is cancelled. When a page comes back short the stream is
// caught up and the loop idles for pollInterval before polling again.
func (b *Backfiller) Run(ctx context.Context) error {
	cursor, err := b.orders.LastTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: load backfill cursor: %w", err)
	}
	b.logger.InfoContext(ctx, "backfill starting", "cursor", cursor.UTC())

	if block, err := b.gql.FetchLatestBlock(ctx); err != nil {
		b.logger.WarnContext(ctx, "subgraph head unavailable", "error", err)
	} else {
		b.logger.InfoContext(ctx, "subgraph head", "block", block)
	}

	for {
		fills, err := b.gql.FetchOrderFills(ctx, cursor, b.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.WarnContext(ctx, "backfill fetch failed, retrying",
				"cursor", cursor.UTC(),
				"error", err)
			if err := sleep(ctx, b.pollInterval); err != nil {
				return err
			}
			continue
		}

		for _, fill := range fills {
			if err := b.handler.HandleOrderFilled(ctx, fill); err != nil {
				if errors.Is(err, domain.ErrLockHeld) {
					// Another worker owns this fill right now. Dedup makes a
					// second delivery harmless, so move on.
					continue
				}
				return fmt.Errorf("pipeline: backfill fill %s: %w", fill.OrderHash.Hex(), err)
			}
		}

		if len(fills) > 0 {
			next := time.Unix(fills[len(fills)-1].Timestamp, 0)
			if len(fills) == b.pageSize && !next.After(cursor) {
				// A full page shares the cursor timestamp. Step past it so
				// the loop cannot spin on the same page forever.
				b.logger.WarnContext(ctx, "full page at cursor timestamp, stepping past",
					"cursor", cursor.UTC())
				next = cursor.Add(time.Second)
			}
			cursor = next
		}

		if len(fills) < b.pageSize {
			if err := sleep(ctx, b.pollInterval); err != nil {
				return err
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/polysight/ctfindexer/internal/domain"
)

// multipartThreshold is the batch size above which the archive goes through
// a multipart upload instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// multipartWriter is satisfied by blob backends that can split a large
// object into concurrently uploaded parts.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver exports orders older than the retention window to cold storage as
// JSONL objects. Pruning the exported rows is opt-in: a deleted row can be
// re-inserted if its fill is ever delivered again, so prune only when the
// event sources can no longer replay that far back.
type Archiver struct {
	orders    domain.OrderStore
	blob      domain.BlobWriter
	retention time.Duration
	prune     bool
	logger    *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(orders domain.OrderStore, blob domain.BlobWriter, retention time.Duration, prune bool, logger *slog.Logger) *Archiver {
	return &Archiver{
		orders:    orders,
		blob:      blob,
		retention: retention,
		prune:     prune,
		logger:    logger.With("component", "archiver"),
	}
}

// Run executes a single archive pass over everything older than the
// retention cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retention)

	orders, err := a.orders.ListBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: list orders before %v: %w", cutoff, err)
	}
	if len(orders) == 0 {
		a.logger.DebugContext(ctx, "nothing to archive", "cutoff", cutoff)
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range orders {
		if err := enc.Encode(o); err != nil {
			return fmt.Errorf("pipeline: encode order %s: %w", o.ID, err)
		}
	}

	path := fmt.Sprintf("orders/%s/orders-%d.jsonl",
		cutoff.Format("2006/01/02"), time.Now().UTC().Unix())
	if err := a.upload(ctx, path, &buf); err != nil {
		return fmt.Errorf("pipeline: upload archive %s: %w", path, err)
	}

	a.logger.InfoContext(ctx, "archived orders",
		"count", len(orders),
		"cutoff", cutoff,
		"path", path)

	if a.prune {
		deleted, err := a.orders.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pipeline: prune orders before %v: %w", cutoff, err)
		}
		a.logger.InfoContext(ctx, "pruned archived orders", "deleted", deleted)
	}

	return nil
}

// upload picks the upload strategy by batch size. Most passes fit in one
// PutObject; a backlog pass (first run after enabling archival, or after a
// long outage) can produce an object large enough to be worth splitting.
func (a *Archiver) upload(ctx context.Context, path string, buf *bytes.Buffer) error {
	if mw, ok := a.blob.(multipartWriter); ok && buf.Len() >= multipartThreshold {
		return mw.PutMultipart(ctx, path, buf, multipartThreshold/2)
	}
	return a.blob.Put(ctx, path, buf, "application/x-ndjson")
}

// RunLoop runs archive passes on the given interval until the context is
// cancelled. A failed pass is logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "archiver started",
		"interval", interval.String(),
		"retention", a.retention.String(),
		"prune", a.prune)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.logger.ErrorContext(ctx, "archive pass failed", "error", err)
			}
		}
	}
}

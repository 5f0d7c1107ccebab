package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polysight/ctfindexer/internal/platform/ctf"
)

// Orchestrator runs the configured pipeline loops concurrently: the live
// on-chain subscription, the Goldsky backfill, and the archiver. Any of the
// three may be nil depending on the run mode; a nil loop is simply not
// started.
type Orchestrator struct {
	subscriber      *ctf.Subscriber
	backfiller      *Backfiller
	archiver        *Archiver
	handler         FillHandler
	archiveInterval time.Duration
	logger          *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the given loops.
func NewOrchestrator(
	subscriber *ctf.Subscriber,
	backfiller *Backfiller,
	archiver *Archiver,
	handler FillHandler,
	archiveInterval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		subscriber:      subscriber,
		backfiller:      backfiller,
		archiver:        archiver,
		handler:         handler,
		archiveInterval: archiveInterval,
		logger:          logger.With("component", "orchestrator"),
	}
}

// Run starts every configured loop in an errgroup and blocks until the
// context is cancelled or a loop fails. Context cancellation is a clean
// shutdown; any other loop error cancels the group and is returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if o.subscriber != nil {
		g.Go(func() error {
			o.logger.InfoContext(ctx, "starting live fill subscription")
			err := o.subscriber.Run(ctx, o.handler.HandleOrderFilled)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("live subscription: %w", err)
		})
	}

	if o.backfiller != nil {
		g.Go(func() error {
			o.logger.InfoContext(ctx, "starting backfill loop")
			err := o.backfiller.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("backfill: %w", err)
		})
	}

	if o.archiver != nil {
		g.Go(func() error {
			o.logger.InfoContext(ctx, "starting archiver loop")
			err := o.archiver.RunLoop(ctx, o.archiveInterval)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	return g.Wait()
}

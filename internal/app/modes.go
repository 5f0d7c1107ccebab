package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polysight/ctfindexer/internal/server"
	"github.com/polysight/ctfindexer/internal/server/handler"
)

// IngestMode runs the configured ingestion loops and, unless disabled, the
// read API alongside them.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode",
		"live", deps.Subscriber != nil,
		"backfill", deps.Backfiller != nil,
		"archive", deps.Archiver != nil,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Orchestrator.Run(ctx)
	})

	if a.cfg.NeedsServer() {
		a.startServer(ctx, g, deps)
	}

	return g.Wait()
}

// ServerMode serves the read API only; no ingestion loops run.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// startServer builds the HTTP server and registers its run and shutdown
// goroutines on the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	checks := make(map[string]handler.Pinger, len(deps.Health))
	for name, ping := range deps.Health {
		checks[name] = ping
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(checks),
			Markets: handler.NewMarketHandler(deps.MarketStore, deps.MarketCache, a.logger),
			Orders:  handler.NewOrderHandler(deps.OrderStore, a.logger),
			Stats:   handler.NewStatsHandler(deps.DailyStore, a.logger),
		},
		a.logger,
	)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

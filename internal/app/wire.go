package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/polysight/ctfindexer/internal/blob/s3"
	"github.com/polysight/ctfindexer/internal/cache/redis"
	"github.com/polysight/ctfindexer/internal/config"
	"github.com/polysight/ctfindexer/internal/domain"
	"github.com/polysight/ctfindexer/internal/indexer"
	"github.com/polysight/ctfindexer/internal/pipeline"
	"github.com/polysight/ctfindexer/internal/platform/ctf"
	"github.com/polysight/ctfindexer/internal/platform/goldsky"
	"github.com/polysight/ctfindexer/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	OrderStore  domain.OrderStore
	MarketStore domain.MarketStore
	DailyStore  domain.DailyStatsStore
	Atomic      domain.Atomic

	// Redis
	LockManager domain.LockManager
	MarketCache domain.MarketCache

	// Health checks, keyed by dependency name.
	Health map[string]func(ctx context.Context) error

	// Ingestion, nil when the mode does not run the loop.
	Handler      *indexer.Handler
	Subscriber   *ctf.Subscriber
	Backfiller   *pipeline.Backfiller
	Archiver     *pipeline.Archiver
	Orchestrator *pipeline.Orchestrator
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Health: make(map[string]func(ctx context.Context) error),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.DailyStore = postgres.NewDailyStatsStore(pool)
	deps.Atomic = postgres.NewRunner(pool)
	deps.Health["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.LockManager = redis.NewLockManager(redisClient)
	deps.MarketCache = redis.NewMarketCache(redisClient)
	deps.Health["redis"] = redisClient.Ping

	// --- Fill handler ---
	deps.Handler = indexer.NewHandler(deps.OrderStore, deps.Atomic, deps.LockManager, deps.MarketCache, logger)

	// --- Live on-chain subscription ---
	if cfg.NeedsLive() {
		sub, err := ctf.NewSubscriber(ctx, cfg.Chain.RPCURL,
			common.HexToAddress(cfg.Chain.ExchangeAddress), logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain subscriber: %w", err)
		}
		closers = append(closers, func() { _ = sub.Close() })
		deps.Subscriber = sub
	}

	// --- Goldsky backfill ---
	if cfg.NeedsBackfill() {
		gql := goldsky.NewClient(cfg.Goldsky.URL, cfg.Goldsky.APIKey)
		deps.Backfiller = pipeline.NewBackfiller(gql, deps.OrderStore, deps.Handler,
			cfg.Goldsky.PageSize, cfg.Goldsky.PollInterval.Duration, logger)
	}

	// --- Cold-storage archiver ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
		deps.Archiver = pipeline.NewArchiver(deps.OrderStore, s3blob.NewWriter(s3Client),
			retention, cfg.Archive.Prune, logger)
		deps.Health["s3"] = s3Client.Health
	}

	deps.Orchestrator = pipeline.NewOrchestrator(
		deps.Subscriber, deps.Backfiller, deps.Archiver, deps.Handler,
		cfg.Archive.Interval.Duration, logger)

	return deps, cleanup, nil
}

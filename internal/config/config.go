// Package config defines the top-level configuration for the indexer and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CTFIDX_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Goldsky  GoldskyConfig  `toml:"goldsky"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds the on-chain subscription parameters.
type ChainConfig struct {
	// RPCURL is a websocket JSON-RPC endpoint for the chain the exchange
	// lives on (Polygon mainnet in production).
	RPCURL string `toml:"rpc_url"`

	// ExchangeAddress is the CTF Exchange contract emitting OrderFilled.
	ExchangeAddress string `toml:"exchange_address"`
}

// GoldskyConfig holds the subgraph backfill parameters.
type GoldskyConfig struct {
	URL          string   `toml:"url"`
	APIKey       string   `toml:"api_key"`
	PageSize     int      `toml:"page_size"`
	PollInterval duration `toml:"poll_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the cold-storage export of aged orders.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`

	// Prune deletes exported rows from PostgreSQL. A pruned order hash can
	// be re-indexed if its fill is delivered again, so leave this off
	// unless the event sources cannot replay past the retention window.
	Prune bool `toml:"prune"`
}

// ServerConfig holds HTTP read API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration wraps time.Duration so the TOML decoder accepts strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values from
// config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL: "",
			// CTF Exchange on Polygon mainnet.
			ExchangeAddress: "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
		},
		Goldsky: GoldskyConfig{
			URL:          "",
			PageSize:     500,
			PollInterval: duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "ctfindexer",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "ctfindexer-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			Prune:         false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
//
//	index    - live on-chain subscription only
//	backfill - Goldsky subgraph replay only
//	server   - read API only, no ingestion
//	full     - everything
var validModes = map[string]bool{
	"index":    true,
	"backfill": true,
	"server":   true,
	"full":     true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsLive reports whether the mode runs the on-chain subscription.
func (c *Config) NeedsLive() bool {
	return c.Mode == "index" || c.Mode == "full"
}

// NeedsBackfill reports whether the mode runs the Goldsky replay.
func (c *Config) NeedsBackfill() bool {
	return c.Mode == "backfill" || c.Mode == "full"
}

// NeedsServer reports whether the mode serves the read API.
func (c *Config) NeedsServer() bool {
	return c.Server.Enabled && (c.Mode == "server" || c.Mode == "full")
}

// Validate checks Config for invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: index, backfill, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.NeedsLive() {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url is required for mode "+c.Mode)
		}
		if c.Chain.ExchangeAddress == "" {
			errs = append(errs, "chain: exchange_address must not be empty")
		}
	}

	if c.NeedsBackfill() {
		if c.Goldsky.URL == "" {
			errs = append(errs, "goldsky: url is required for mode "+c.Mode)
		}
		if c.Goldsky.PageSize < 1 || c.Goldsky.PageSize > 1000 {
			errs = append(errs, fmt.Sprintf("goldsky: page_size must be 1-1000, got %d", c.Goldsky.PageSize))
		}
		if c.Goldsky.PollInterval.Duration <= 0 {
			errs = append(errs, "goldsky: poll_interval must be positive")
		}
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	if c.NeedsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

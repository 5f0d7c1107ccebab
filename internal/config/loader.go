package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CTFIDX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CTFIDX_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "CTFIDX_CHAIN_RPC_URL")
	setStr(&cfg.Chain.ExchangeAddress, "CTFIDX_CHAIN_EXCHANGE_ADDRESS")

	// ── Goldsky ──
	setStr(&cfg.Goldsky.URL, "CTFIDX_GOLDSKY_URL")
	setStr(&cfg.Goldsky.APIKey, "CTFIDX_GOLDSKY_API_KEY")
	setInt(&cfg.Goldsky.PageSize, "CTFIDX_GOLDSKY_PAGE_SIZE")
	setDuration(&cfg.Goldsky.PollInterval, "CTFIDX_GOLDSKY_POLL_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CTFIDX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CTFIDX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CTFIDX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CTFIDX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CTFIDX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CTFIDX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CTFIDX_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CTFIDX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CTFIDX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CTFIDX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CTFIDX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CTFIDX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CTFIDX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CTFIDX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CTFIDX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CTFIDX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CTFIDX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CTFIDX_S3_REGION")
	setStr(&cfg.S3.Bucket, "CTFIDX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CTFIDX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CTFIDX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CTFIDX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CTFIDX_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "CTFIDX_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "CTFIDX_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "CTFIDX_ARCHIVE_INTERVAL")
	setBool(&cfg.Archive.Prune, "CTFIDX_ARCHIVE_PRUNE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CTFIDX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CTFIDX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CTFIDX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CTFIDX_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "CTFIDX_MODE")
	setStr(&cfg.LogLevel, "CTFIDX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

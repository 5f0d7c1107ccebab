package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("merges file over defaults", func(t *testing.T) {
		path := writeConfig(t, `
mode = "backfill"

[goldsky]
url = "https://api.goldsky.com/api/public/x/subgraphs/polymarket-orderbook-resync/gn"
poll_interval = "1m"

[postgres]
database = "fills"
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}

		if cfg.Mode != "backfill" {
			t.Errorf("Mode = %q", cfg.Mode)
		}
		if cfg.Goldsky.PollInterval.Duration != time.Minute {
			t.Errorf("PollInterval = %v", cfg.Goldsky.PollInterval.Duration)
		}
		if cfg.Postgres.Database != "fills" {
			t.Errorf("Database = %q", cfg.Postgres.Database)
		}
		// Untouched fields keep their defaults.
		if cfg.Postgres.Port != 5432 {
			t.Errorf("Port = %d, want default 5432", cfg.Postgres.Port)
		}
		if cfg.Goldsky.PageSize != 500 {
			t.Errorf("PageSize = %d, want default 500", cfg.Goldsky.PageSize)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := writeConfig(t, `
[redis]
addr = "file-redis:6379"
`)
		t.Setenv("CTFIDX_REDIS_ADDR", "env-redis:6379")
		t.Setenv("CTFIDX_ARCHIVE_ENABLED", "true")
		t.Setenv("CTFIDX_GOLDSKY_POLL_INTERVAL", "45s")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}

		if cfg.Redis.Addr != "env-redis:6379" {
			t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
		}
		if !cfg.Archive.Enabled {
			t.Error("Archive.Enabled = false, want env override true")
		}
		if cfg.Goldsky.PollInterval.Duration != 45*time.Second {
			t.Errorf("PollInterval = %v", cfg.Goldsky.PollInterval.Duration)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Fatal("want error for missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Mode = "full"
		cfg.Chain.RPCURL = "wss://polygon.example/ws"
		cfg.Goldsky.URL = "https://goldsky.example/gn"
		return cfg
	}

	t.Run("valid full config passes", func(t *testing.T) {
		cfg := valid()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("index mode requires rpc url", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "index"
		cfg.Chain.RPCURL = ""

		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "rpc_url") {
			t.Fatalf("Validate = %v, want rpc_url error", err)
		}
	})

	t.Run("backfill mode requires goldsky url", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "backfill"
		cfg.Goldsky.URL = ""

		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "goldsky") {
			t.Fatalf("Validate = %v, want goldsky error", err)
		}
	})

	t.Run("server mode skips ingestion requirements", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "server"
		cfg.Chain.RPCURL = ""
		cfg.Goldsky.URL = ""

		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		cfg := valid()
		cfg.Mode = "turbo"

		if err := cfg.Validate(); err == nil {
			t.Fatal("want error for unknown mode")
		}
	})

	t.Run("archive enabled requires s3", func(t *testing.T) {
		cfg := valid()
		cfg.Archive.Enabled = true
		cfg.S3.Bucket = ""

		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "bucket") {
			t.Fatalf("Validate = %v, want bucket error", err)
		}
	})

	t.Run("collects multiple problems", func(t *testing.T) {
		cfg := valid()
		cfg.LogLevel = "loud"
		cfg.Redis.Addr = ""
		cfg.Postgres.PoolMaxConns = 0

		err := cfg.Validate()
		if err == nil {
			t.Fatal("want error")
		}
		for _, want := range []string{"log_level", "redis", "pool_max_conns"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error missing %q: %v", want, err)
			}
		}
	})
}

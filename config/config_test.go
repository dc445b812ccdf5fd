package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig writes content to a temporary yml file and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, "app:\n  name: \"TestApp\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Collector.Depth != 5 {
		t.Errorf("unexpected depth: %d", cfg.Collector.Depth)
	}
	if cfg.Collector.PairChunkSize != 20 {
		t.Errorf("unexpected chunk size: %d", cfg.Collector.PairChunkSize)
	}
	if cfg.Collector.SaveInterval != time.Second {
		t.Errorf("unexpected save interval: %s", cfg.Collector.SaveInterval)
	}
	if cfg.Cache.BookExpiration != 300*time.Second {
		t.Errorf("unexpected book expiration: %s", cfg.Cache.BookExpiration)
	}
	if cfg.Scanner.MinROI != 0.001 {
		t.Errorf("unexpected min roi: %v", cfg.Scanner.MinROI)
	}
	if cfg.Fees.Coinbase == nil || cfg.Fees.Coinbase.Maker != "0.004" {
		t.Errorf("unexpected coinbase fees: %+v", cfg.Fees.Coinbase)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeTempConfig(t, `app:
  name: "TestApp"
collector:
  depth: 10
  save_interval: 250ms
scanner:
  interval: 2s
`)
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("COINBASE_API_KEY", " key ")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Collector.Depth != 10 {
		t.Errorf("unexpected depth: %d", cfg.Collector.Depth)
	}
	if cfg.Collector.SaveInterval != 250*time.Millisecond {
		t.Errorf("unexpected save interval: %s", cfg.Collector.SaveInterval)
	}
	if cfg.Scanner.Interval != 2*time.Second {
		t.Errorf("unexpected scanner interval: %s", cfg.Scanner.Interval)
	}
	if cfg.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("REDIS_URL not applied: %s", cfg.Redis.URL)
	}
	if cfg.Exchanges.Coinbase.APIKey != "key" {
		t.Errorf("COINBASE_API_KEY not applied: %q", cfg.Exchanges.Coinbase.APIKey)
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"depth", func(c *Config) { c.Collector.Depth = 0 }, "collector.depth"},
		{"chunk", func(c *Config) { c.Collector.PairChunkSize = -1 }, "collector.pair_chunk_size"},
		{"ttl", func(c *Config) { c.Cache.BookExpiration = time.Millisecond }, "cache.book_expiration"},
		{"source", func(c *Config) { c.Collector.PairsSource = "ftp" }, "collector.pairs_source"},
		{"ws", func(c *Config) { c.Exchanges.Binance.WSURL = "" }, "exchanges.binance.ws_url"},
		{"fee", func(c *Config) { c.Fees.Coinbase.Maker = "abc" }, "fees.coinbase"},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		err := validateConfig(&cfg)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: expected error mentioning %q, got %v", tc.name, tc.want, err)
		}
	}

	cfg := Default()
	if err := validateConfig(&cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestExchange(t *testing.T) {
	cfg := Default()
	if _, err := cfg.Exchange("kraken"); err == nil {
		t.Fatalf("expected error for unsupported exchange")
	}
	ex, err := cfg.Exchange("Binance")
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	if ex.WSURL != "wss://stream.binance.com:9443" {
		t.Errorf("unexpected ws url: %s", ex.WSURL)
	}
	if got := cfg.EnabledExchanges(); len(got) != 2 || got[0] != ExchangeBinance {
		t.Errorf("unexpected enabled exchanges: %v", got)
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.yml")
	prod := filepath.Join(dir, "config.production.yml")
	if err := os.WriteFile(prod, []byte("app:\n  name: prod\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("APP_ENV", "prod")
	if got := ResolvePath(base); got != prod {
		t.Errorf("ResolvePath = %s, want %s", got, prod)
	}
	t.Setenv("APP_ENV", "staging")
	if got := ResolvePath(base); got != base {
		t.Errorf("ResolvePath = %s, want %s", got, base)
	}
}

func TestLoadFeeFile(t *testing.T) {
	path := writeTempConfig(t, `[{"symbol":"BTCUSDT","makerCommission":"0.001","takerCommission":"0.001"}]`)

	fees, err := LoadFeeFile(path)
	if err != nil {
		t.Fatalf("LoadFeeFile failed: %v", err)
	}
	if len(fees) != 1 || fees[0].Symbol != "BTCUSDT" || fees[0].MakerCommission != "0.001" {
		t.Errorf("unexpected fees: %+v", fees)
	}

	bad := writeTempConfig(t, "- makerCommission: \"0.001\"\n")
	if _, err := LoadFeeFile(bad); err == nil {
		t.Fatalf("expected error for entry without symbol")
	}
}

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	ExchangeBinance  = "binance"
	ExchangeCoinbase = "coinbase"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Collector CollectorConfig `yaml:"collector"`
	Cache     CacheConfig     `yaml:"cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Quotes    QuotesConfig    `yaml:"quotes"`
	Exchanges ExchangesConfig `yaml:"exchanges"`
	Fees      FeesConfig      `yaml:"fees"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type CollectorConfig struct {
	Depth         int           `yaml:"depth"`
	PairChunkSize int           `yaml:"pair_chunk_size"`
	SaveInterval  time.Duration `yaml:"save_interval"`
	MaxReconnects int           `yaml:"max_reconnects"`
	Min24hVolume  float64       `yaml:"min_24h_volume"`
	PairsSource   string        `yaml:"pairs_source"`
	PairsDir      string        `yaml:"pairs_dir"`
}

type CacheConfig struct {
	BookExpiration time.Duration `yaml:"book_expiration"`
}

type RedisConfig struct {
	URL         string        `yaml:"url"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type ScannerConfig struct {
	Interval time.Duration `yaml:"interval"`
	MinROI   float64       `yaml:"min_roi"`
}

type QuotesConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type ExchangesConfig struct {
	Binance  ExchangeConfig `yaml:"binance"`
	Coinbase ExchangeConfig `yaml:"coinbase"`
}

// ExchangeConfig holds the endpoints and credentials of one exchange.
type ExchangeConfig struct {
	Enabled           bool    `yaml:"enabled"`
	WSURL             string  `yaml:"ws_url"`
	RestURL           string  `yaml:"rest_url"`
	APIKey            string  `yaml:"api_key"`
	APISecret         string  `yaml:"api_secret"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

type FeesConfig struct {
	BinanceFile  string        `yaml:"binance_file"`
	Coinbase     *FeeRate      `yaml:"coinbase"`
	LiveCacheTTL time.Duration `yaml:"live_cache_ttl"`
}

// FeeRate is a static maker/taker schedule expressed as fractions.
type FeeRate struct {
	Maker string `yaml:"maker"`
	Taker string `yaml:"taker"`
}

type MetricsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Address    string           `yaml:"address"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		App: AppConfig{Name: "arbflow", Version: "dev"},
		Collector: CollectorConfig{
			Depth:         5,
			PairChunkSize: 20,
			SaveInterval:  time.Second,
			MaxReconnects: 10,
			Min24hVolume:  100000,
			PairsSource:   "api",
			PairsDir:      "data/pairs",
		},
		Cache: CacheConfig{BookExpiration: 300 * time.Second},
		Redis: RedisConfig{
			URL:         "redis://127.0.0.1:6379/0",
			DialTimeout: 5 * time.Second,
		},
		Scanner: ScannerConfig{Interval: time.Second, MinROI: 0.001},
		Quotes:  QuotesConfig{Interval: time.Second},
		Exchanges: ExchangesConfig{
			Binance: ExchangeConfig{
				Enabled:           true,
				WSURL:             "wss://stream.binance.com:9443",
				RestURL:           "https://api.binance.com",
				RequestsPerSecond: 10,
			},
			Coinbase: ExchangeConfig{
				Enabled:           true,
				WSURL:             "wss://advanced-trade-ws.coinbase.com",
				RestURL:           "https://api.coinbase.com",
				RequestsPerSecond: 10,
			},
		},
		Fees: FeesConfig{
			Coinbase:     &FeeRate{Maker: "0.004", Taker: "0.006"},
			LiveCacheTTL: 10 * time.Minute,
		},
		Metrics: MetricsConfig{Address: ":2112"},
		Logging: LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = ResolvePath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Exchanges.Binance.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Exchanges.Binance.APISecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("COINBASE_API_KEY"); v != "" {
		cfg.Exchanges.Coinbase.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("COINBASE_API_SECRET"); v != "" {
		cfg.Exchanges.Coinbase.APISecret = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" && cfg.Metrics.CloudWatch.Region == "" {
		cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Collector.Depth <= 0 {
		return fmt.Errorf("collector.depth must be greater than 0")
	}
	if cfg.Collector.PairChunkSize <= 0 {
		return fmt.Errorf("collector.pair_chunk_size must be greater than 0")
	}
	if cfg.Collector.SaveInterval <= 0 {
		return fmt.Errorf("collector.save_interval must be greater than 0")
	}
	if cfg.Collector.MaxReconnects < 0 {
		return fmt.Errorf("collector.max_reconnects must not be negative")
	}
	switch cfg.Collector.PairsSource {
	case "api", "file":
	default:
		return fmt.Errorf("collector.pairs_source '%s' is invalid", cfg.Collector.PairsSource)
	}

	if cfg.Cache.BookExpiration < time.Second {
		return fmt.Errorf("cache.book_expiration must be at least 1s")
	}

	if _, err := url.Parse(cfg.Redis.URL); err != nil || cfg.Redis.URL == "" {
		return fmt.Errorf("redis.url '%s' is invalid", cfg.Redis.URL)
	}

	if cfg.Scanner.Interval <= 0 {
		return fmt.Errorf("scanner.interval must be greater than 0")
	}
	if cfg.Scanner.MinROI < 0 {
		return fmt.Errorf("scanner.min_roi must not be negative")
	}
	if cfg.Quotes.Interval <= 0 {
		return fmt.Errorf("quotes.interval must be greater than 0")
	}

	for name, ex := range map[string]ExchangeConfig{
		ExchangeBinance:  cfg.Exchanges.Binance,
		ExchangeCoinbase: cfg.Exchanges.Coinbase,
	} {
		if !ex.Enabled {
			continue
		}
		if ex.WSURL == "" {
			return fmt.Errorf("exchanges.%s.ws_url is required", name)
		}
		if ex.RequestsPerSecond <= 0 {
			return fmt.Errorf("exchanges.%s.requests_per_second must be greater than 0", name)
		}
	}

	if cfg.Fees.Coinbase != nil {
		for _, v := range []string{cfg.Fees.Coinbase.Maker, cfg.Fees.Coinbase.Taker} {
			if _, err := decimal.NewFromString(v); err != nil {
				return fmt.Errorf("fees.coinbase value '%s' is not a decimal", v)
			}
		}
	}

	return nil
}

// Exchange returns the configuration of the named exchange.
func (c *Config) Exchange(name string) (ExchangeConfig, error) {
	switch strings.ToLower(name) {
	case ExchangeBinance:
		return c.Exchanges.Binance, nil
	case ExchangeCoinbase:
		return c.Exchanges.Coinbase, nil
	default:
		return ExchangeConfig{}, fmt.Errorf("unsupported exchange '%s'", name)
	}
}

// EnabledExchanges lists enabled exchanges in a stable order.
func (c *Config) EnabledExchanges() []string {
	var out []string
	if c.Exchanges.Binance.Enabled {
		out = append(out, ExchangeBinance)
	}
	if c.Exchanges.Coinbase.Enabled {
		out = append(out, ExchangeCoinbase)
	}
	return out
}

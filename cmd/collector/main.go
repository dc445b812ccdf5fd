package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"arbflow/config"
	"arbflow/internal/cache"
	"arbflow/internal/collector"
	"arbflow/internal/dashboard"
	"arbflow/internal/metrics"
	"arbflow/internal/pairs"
	"arbflow/logger"
	"arbflow/reader"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	var exchange, pair string
	var debug bool
	flag.StringVar(&exchange, "exchange", "", "Collect a single exchange")
	flag.StringVar(&exchange, "e", "", "Shorthand for -exchange")
	flag.StringVar(&pair, "pair", "", "Collect a single pair, e.g. BTC-USDT")
	flag.StringVar(&pair, "p", "", "Shorthand for -pair")
	flag.BoolVar(&debug, "debug", false, "Log at debug level")
	flag.BoolVar(&debug, "d", false, "Shorthand for -debug")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	if err := log.Configure(level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
		"env":     config.AppEnvironment(),
	}).Info("starting collector")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.EqualFold(cfg.Logging.Level, "report") {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	metrics.Init()

	exchange = strings.ToLower(strings.TrimSpace(exchange))
	enabled := cfg.EnabledExchanges()
	if exchange != "" && !contains(enabled, exchange) {
		log.WithFields(logger.Fields{"exchange": exchange, "enabled": enabled}).Error("exchange is not enabled")
		os.Exit(1)
	}

	exchangePairs := make(map[string][]string, len(enabled))
	for _, name := range enabled {
		list, err := loadPairs(ctx, cfg, name)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"exchange": name}).Error("failed to load pairs")
			os.Exit(1)
		}
		exchangePairs[name] = list
	}

	selected, err := pairs.Select(exchangePairs, exchange, pair)
	if err != nil {
		log.WithError(err).Error("failed to select pairs")
		os.Exit(1)
	}

	gateway, err := cache.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.DialTimeout)
	if err != nil {
		log.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}

	targets := enabled
	if exchange != "" {
		targets = []string{exchange}
	}

	var collectors []*collector.Collector
	for _, name := range targets {
		available := pairs.Intersect(selected, exchangePairs[name])
		for _, chunk := range pairs.Chunk(available, cfg.Collector.PairChunkSize) {
			adapter, err := reader.New(name, chunk, cfg)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{"exchange": name}).Error("failed to build adapter")
				os.Exit(1)
			}
			collectors = append(collectors, collector.New(adapter, gateway, collector.FromConfig(cfg), chunk))
		}
	}
	if len(collectors) == 0 {
		log.WithFields(logger.Fields{"exchange": exchange, "pair": pair}).Error("nothing to collect")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"collectors": len(collectors),
		"pairs":      len(selected),
	}).Info("collectors ready")

	server := dashboard.NewServer(cfg.Metrics, log, func() interface{} {
		statuses := make([]collector.Status, 0, len(collectors))
		for _, c := range collectors {
			statuses = append(statuses, c.Status())
		}
		return statuses
	})
	go func() {
		if err := server.Run(ctx, cfg.App.Name); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	var wg sync.WaitGroup
	for _, c := range collectors {
		wg.Add(1)
		go func(c *collector.Collector) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				log.WithError(err).WithFields(logger.Fields{"collector_id": c.ID()}).Error("collector terminated")
			}
		}(c)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown requested")
	case <-finished:
		log.Warn("all collectors stopped")
	}

	shutdown(cancel, collectors, gateway, log)
}

// loadPairs returns the pairs of exchange from its REST API, refreshing the
// pairs file, or from that file when pairs_source is "file".
func loadPairs(ctx context.Context, cfg *config.Config, exchange string) ([]string, error) {
	if cfg.Collector.PairsSource == "file" {
		return pairs.LoadFile(cfg.Collector.PairsDir, exchange)
	}

	client, err := reader.NewClient(exchange, cfg)
	if err != nil {
		return nil, err
	}
	markets, err := client.Markets(ctx)
	if err != nil {
		return nil, err
	}

	list := pairs.FilterByVolume(exchange, markets, decimal.NewFromFloat(cfg.Collector.Min24hVolume))
	if err := pairs.SaveFile(cfg.Collector.PairsDir, exchange, list); err != nil {
		logger.GetLogger().WithError(err).WithFields(logger.Fields{"exchange": exchange}).Warn("failed to save pairs file")
	}
	return list, nil
}

func shutdown(cancel context.CancelFunc, collectors []*collector.Collector, gateway cache.Gateway, log *logger.Log) {
	ctx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()

	stopped := make(chan struct{})
	go func() {
		cancel()
		for _, c := range collectors {
			_ = c.Close()
		}
		if err := gateway.Close(); err != nil {
			log.WithError(err).Warn("failed to close redis")
		}
		close(stopped)
	}()

	select {
	case <-stopped:
		log.Info("collector shutdown complete")
	case <-ctx.Done():
		log.Error("shutdown timed out")
		os.Exit(1)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

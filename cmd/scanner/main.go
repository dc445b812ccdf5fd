package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"arbflow/config"
	"arbflow/internal/cache"
	"arbflow/internal/dashboard"
	"arbflow/internal/fees"
	"arbflow/internal/scanner"
	"arbflow/logger"
	"arbflow/reader"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	level := cfg.Logging.Level
	if *debug {
		level = "debug"
	}
	if err := log.Configure(level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":  cfg.App.Name,
		"version":  cfg.App.Version,
		"interval": cfg.Scanner.Interval.String(),
		"min_roi":  cfg.Scanner.MinROI,
	}).Info("starting scanner")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.EqualFold(cfg.Logging.Level, "report") {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	book, err := fees.NewBook(cfg.Fees)
	if err != nil {
		log.WithError(err).Error("failed to load fees")
		os.Exit(1)
	}
	for _, name := range cfg.EnabledExchanges() {
		ex, _ := cfg.Exchange(name)
		if ex.APIKey == "" {
			continue
		}
		client, err := reader.NewClient(name, cfg)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"exchange": name}).Error("failed to build fee client")
			os.Exit(1)
		}
		book.RegisterLive(name, client.TradeFee)
	}

	gateway, err := cache.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.DialTimeout)
	if err != nil {
		log.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer gateway.Close()

	server := dashboard.NewServer(cfg.Metrics, log, nil)
	go func() {
		if err := server.Run(ctx, cfg.App.Name); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	sc := scanner.New(gateway, book, scanner.Config{
		Interval: cfg.Scanner.Interval,
		MinROI:   decimal.NewFromFloat(cfg.Scanner.MinROI),
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
		sig := <-sigCh
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown requested")
		cancel()
	}()

	if err := sc.Run(ctx, os.Stdout); err != nil {
		log.WithError(err).Error("scanner stopped")
		os.Exit(1)
	}
	log.Info("scanner shutdown complete")
}

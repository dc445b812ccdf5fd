package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"arbflow/config"
	"arbflow/internal/cache"
	"arbflow/internal/fees"
	"arbflow/internal/scanner"
	"arbflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	pair := flag.String("pair", "", "Pair to display, e.g. BTC-USDT")
	flag.Parse()

	if *pair == "" {
		log.Error("-pair is required")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, err := cache.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.DialTimeout)
	if err != nil {
		log.WithError(err).Error("failed to connect to redis")
		os.Exit(1)
	}
	defer gateway.Close()

	// quotes never evaluates fees
	sc := scanner.New(gateway, &fees.Book{}, scanner.Config{Interval: cfg.Quotes.Interval})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	if err := sc.RunQuotes(ctx, os.Stdout, *pair, cfg.Quotes.Interval); err != nil {
		log.WithError(err).Error("quotes stopped")
		os.Exit(1)
	}
}

// Package scanner reads the order books persisted by the collectors and
// reports fee-adjusted cross-exchange arbitrage opportunities.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arbflow/internal/cache"
	"arbflow/internal/fees"
	"arbflow/internal/metrics"
	"arbflow/internal/orderbook"
	"arbflow/logger"
)

type Config struct {
	Interval time.Duration
	MinROI   decimal.Decimal
}

// Scanner polls the cache on a fixed interval.
type Scanner struct {
	gateway cache.Gateway
	fees    fees.Source
	cfg     Config
	now     func() time.Time
	log     *logger.Log
}

func New(gateway cache.Gateway, src fees.Source, cfg Config) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Scanner{
		gateway: gateway,
		fees:    src,
		cfg:     cfg,
		now:     time.Now,
		log:     logger.GetLogger(),
	}
}

// groupKeys maps pair -> book keys, both sorted.
func groupKeys(keys []string) (map[string][]string, []string) {
	sort.Strings(keys)
	grouped := make(map[string][]string)
	var pairs []string
	for _, k := range keys {
		_, pair, err := cache.ParseBookKey(k)
		if err != nil {
			continue
		}
		if _, ok := grouped[pair]; !ok {
			pairs = append(pairs, pair)
		}
		grouped[pair] = append(grouped[pair], k)
	}
	sort.Strings(pairs)
	return grouped, pairs
}

// loadQuotes fetches keys and returns the usable per-exchange quotes in key
// order. Missing, expired or undecodable books are skipped.
func (s *Scanner) loadQuotes(ctx context.Context, keys []string) ([]Quote, error) {
	values, err := s.gateway.MultiGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	log := s.log.WithComponent("scanner")

	quotes := make([]Quote, 0, len(keys))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		exchange, _, err := cache.ParseBookKey(keys[i])
		if err != nil {
			continue
		}
		book, err := orderbook.Unmarshal(raw)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"key": keys[i]}).Warn("skipping undecodable book")
			continue
		}
		if q, ok := BestQuote(exchange, book); ok {
			quotes = append(quotes, q)
		}
	}
	return quotes, nil
}

// Scan runs one full pass over the cache and returns the ranked rows.
func (s *Scanner) Scan(ctx context.Context) ([]Row, error) {
	scanID := uuid.NewString()
	log := s.log.WithComponent("scanner").WithFields(logger.Fields{"scan_id": scanID})
	start := time.Now()

	keys, err := s.gateway.ScanKeys(ctx, cache.BookPattern)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	grouped, pairs := groupKeys(keys)

	var rows []Row
	for _, pair := range pairs {
		pairKeys := grouped[pair]
		if len(pairKeys) < 2 {
			continue
		}

		quotes, err := s.loadQuotes(ctx, pairKeys)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("load %s books: %w", pair, err)
			}
			log.WithError(err).WithFields(logger.Fields{"pair": pair}).Warn("failed to load books, skipping pair")
			continue
		}
		best, ok := Aggregate(pair, quotes)
		if !ok {
			continue
		}

		row, ok, err := Evaluate(ctx, best, s.fees, s.cfg.MinROI)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			log.WithError(err).WithFields(logger.Fields{"pair": pair}).Warn("fee lookup failed, skipping pair")
			continue
		}
		if ok {
			rows = append(rows, row)
		}
	}

	Rank(rows)

	logger.LogPerformanceEntry(log, "scanner", "scan", time.Since(start), logger.Fields{
		"keys":  len(keys),
		"pairs": len(pairs),
		"rows":  len(rows),
	})
	metrics.RecordScan(len(rows))
	logger.RecordScan(len(rows))
	log.LogMetric("scanner", "scan_opportunities", len(rows), "gauge", nil)
	return rows, nil
}

// Run scans every interval and renders the result to out until ctx is
// cancelled. Scans never overlap: ticks that arrive during a slow scan are
// dropped by the ticker.
func (s *Scanner) Run(ctx context.Context, out io.Writer) error {
	log := s.log.WithComponent("scanner")
	log.WithFields(logger.Fields{
		"interval": s.cfg.Interval.String(),
		"min_roi":  s.cfg.MinROI.String(),
	}).Info("starting scanner")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		s.tick(ctx, out)
		select {
		case <-ctx.Done():
			log.Info("scanner stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Scanner) tick(ctx context.Context, out io.Writer) {
	rows, err := s.Scan(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.log.WithComponent("scanner").WithError(err).Warn("scan failed")
		return
	}
	if err := Render(out, s.now(), rows); err != nil {
		s.log.WithComponent("scanner").WithError(err).Warn("render failed")
	}
}

package scanner

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"arbflow/internal/cache"
	"arbflow/internal/symbols"
	"arbflow/logger"
)

// Quotes returns the top of book every exchange currently persists for pair,
// ordered by exchange name.
func (s *Scanner) Quotes(ctx context.Context, pair string) ([]Quote, error) {
	pair = symbols.Canonical(pair)
	keys, err := s.gateway.ScanKeys(ctx, cache.PairPattern(pair))
	if err != nil {
		return nil, fmt.Errorf("list %s books: %w", pair, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)
	return s.loadQuotes(ctx, keys)
}

// RunQuotes refreshes the quotes table of pair every interval until ctx is
// cancelled.
func (s *Scanner) RunQuotes(ctx context.Context, out io.Writer, pair string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	log := s.log.WithComponent("quotes").WithFields(logger.Fields{"pair": pair})
	log.Info("starting quotes")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		quotes, err := s.Quotes(ctx, pair)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.WithError(err).Warn("quotes failed")
		} else if err := RenderQuotes(out, s.now(), symbols.Canonical(pair), quotes); err != nil {
			log.WithError(err).Warn("render failed")
		}

		select {
		case <-ctx.Done():
			log.Info("quotes stopped")
			return nil
		case <-ticker.C:
		}
	}
}

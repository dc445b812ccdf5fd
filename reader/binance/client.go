package binance

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"arbflow/config"
	"arbflow/internal/fees"
	"arbflow/internal/pairs"
	"arbflow/internal/symbols"
	"arbflow/logger"
)

// Client wraps the spot REST API for pair discovery and account fees.
type Client struct {
	api     *gobinance.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient creates a REST client for cfg. Credentials are only needed for
// the trade fee endpoint.
func NewClient(cfg config.ExchangeConfig) *Client {
	api := gobinance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.RestURL != "" {
		api.BaseURL = strings.TrimRight(cfg.RestURL, "/")
	}
	api.HTTPClient = &http.Client{Timeout: 10 * time.Second}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     logger.GetLogger(),
	}
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// Markets lists spot pairs in TRADING status joined with their 24h ticker.
func (c *Client) Markets(ctx context.Context) ([]pairs.Market, error) {
	log := c.log.WithComponent("binance_client").WithFields(logger.Fields{"operation": "markets"})

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	logger.LogPerformanceEntry(log, "binance_client", "exchange_info", time.Since(start), nil)

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	tickers, err := c.api.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("24h tickers: %w", err)
	}
	bySymbol := make(map[string]*gobinance.PriceChangeStats, len(tickers))
	for _, t := range tickers {
		bySymbol[t.Symbol] = t
	}

	var out []pairs.Market
	missing := 0
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || !s.IsSpotTradingAllowed {
			continue
		}
		t, ok := bySymbol[s.Symbol]
		if !ok {
			missing++
			continue
		}
		vol, err := decimal.NewFromString(t.Volume)
		if err != nil {
			missing++
			continue
		}
		last, err := decimal.NewFromString(t.LastPrice)
		if err != nil {
			missing++
			continue
		}
		out = append(out, pairs.Market{
			Pair:       symbols.Canonical(s.BaseAsset + "-" + s.QuoteAsset),
			Base:       strings.ToUpper(s.BaseAsset),
			Quote:      strings.ToUpper(s.QuoteAsset),
			BaseVolume: vol,
			LastPrice:  last,
		})
	}

	log.WithFields(logger.Fields{"active": len(out), "without_ticker": missing}).Info("received binance pairs")
	return out, nil
}

// TradeFee queries the account's commission for pair.
func (c *Client) TradeFee(ctx context.Context, pair string) (fees.Fee, error) {
	if err := c.wait(ctx); err != nil {
		return fees.Fee{}, err
	}
	symbol := symbols.ToWire(exchange, pair)
	res, err := c.api.NewTradeFeeService().Symbol(symbol).Do(ctx)
	if err != nil {
		return fees.Fee{}, fmt.Errorf("trade fee %s: %w", symbol, err)
	}
	for _, d := range res {
		if d.Symbol != symbol {
			continue
		}
		maker, err := decimal.NewFromString(d.MakerCommission)
		if err != nil {
			return fees.Fee{}, fmt.Errorf("maker commission %q: %w", d.MakerCommission, err)
		}
		taker, err := decimal.NewFromString(d.TakerCommission)
		if err != nil {
			return fees.Fee{}, fmt.Errorf("taker commission %q: %w", d.TakerCommission, err)
		}
		return fees.Fee{Maker: maker, Taker: taker}, nil
	}
	return fees.Fee{}, fmt.Errorf("trade fee %s: %w", symbol, fees.ErrNoFee)
}

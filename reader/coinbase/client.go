package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"arbflow/config"
	"arbflow/internal/fees"
	"arbflow/internal/pairs"
	"arbflow/internal/symbols"
	"arbflow/logger"
	"arbflow/models"
)

const (
	productsPath = "/api/v3/brokerage/products"
	summaryPath  = "/api/v3/brokerage/transaction_summary"
)

// Client calls the signed advanced trade REST API.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	limiter   *rate.Limiter
	now       func() time.Time
	log       *logger.Log
}

func NewClient(cfg config.ExchangeConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.RestURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		http:      &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		now:       time.Now,
		log:       logger.GetLogger(),
	}
}

// get issues a signed GET of path and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	ts := unixTimestamp(c.now())
	req.Header.Set("CB-ACCESS-KEY", c.apiKey)
	req.Header.Set("CB-ACCESS-SIGN", sign(c.apiSecret, ts+http.MethodGet+path))
	req.Header.Set("CB-ACCESS-TIMESTAMP", ts)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Markets lists online products that accept trading.
func (c *Client) Markets(ctx context.Context) ([]pairs.Market, error) {
	log := c.log.WithComponent("coinbase_client").WithFields(logger.Fields{"operation": "markets"})

	start := time.Now()
	var res models.CoinbaseProductsResponse
	if err := c.get(ctx, productsPath, &res); err != nil {
		return nil, err
	}
	logger.LogPerformanceEntry(log, "coinbase_client", "products", time.Since(start), nil)

	out := make([]pairs.Market, 0, len(res.Products))
	for _, p := range res.Products {
		if p.Status != "online" || p.IsDisabled || p.TradingDisabled {
			continue
		}
		// volume and price are blank for products without trades
		vol, err := decimal.NewFromString(p.Volume24h)
		if err != nil {
			vol = decimal.Zero
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			price = decimal.Zero
		}
		out = append(out, pairs.Market{
			Pair:       symbols.Canonical(p.ProductID),
			Base:       strings.ToUpper(p.BaseCurrencyID),
			Quote:      strings.ToUpper(p.QuoteCurrencyID),
			BaseVolume: vol,
			LastPrice:  price,
		})
	}

	log.WithFields(logger.Fields{"active": len(out), "total": len(res.Products)}).Info("received coinbase pairs")
	return out, nil
}

// TradeFee returns the account's current fee tier. Coinbase charges the
// same rate for every product.
func (c *Client) TradeFee(ctx context.Context, pair string) (fees.Fee, error) {
	var res models.CoinbaseTransactionSummary
	if err := c.get(ctx, summaryPath, &res); err != nil {
		return fees.Fee{}, err
	}
	maker, err := decimal.NewFromString(res.FeeTier.MakerFeeRate)
	if err != nil {
		return fees.Fee{}, fmt.Errorf("maker fee rate %q for %s: %w", res.FeeTier.MakerFeeRate, pair, fees.ErrNoFee)
	}
	taker, err := decimal.NewFromString(res.FeeTier.TakerFeeRate)
	if err != nil {
		return fees.Fee{}, fmt.Errorf("taker fee rate %q for %s: %w", res.FeeTier.TakerFeeRate, pair, fees.ErrNoFee)
	}
	return fees.Fee{Maker: maker, Taker: taker}, nil
}

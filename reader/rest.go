package reader

import (
	"context"
	"fmt"
	"strings"

	"arbflow/config"
	"arbflow/internal/fees"
	"arbflow/internal/pairs"
	"arbflow/reader/binance"
	"arbflow/reader/coinbase"
)

// Client is the REST side of an exchange: its market list and account fees.
type Client interface {
	pairs.Directory
	TradeFee(ctx context.Context, pair string) (fees.Fee, error)
}

// NewClient builds the REST client of exchange.
func NewClient(exchange string, cfg *config.Config) (Client, error) {
	ex, err := cfg.Exchange(exchange)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(exchange) {
	case config.ExchangeBinance:
		return binance.NewClient(ex), nil
	case config.ExchangeCoinbase:
		return coinbase.NewClient(ex), nil
	default:
		return nil, fmt.Errorf("unsupported exchange '%s'", exchange)
	}
}

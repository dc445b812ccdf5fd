// Package reader holds the exchange protocol adapters that turn websocket
// messages into order book mutations.
package reader

import (
	"fmt"
	"strings"

	"arbflow/config"
	"arbflow/internal/orderbook"
	"arbflow/reader/binance"
	"arbflow/reader/coinbase"
)

// Adapter is the per-exchange protocol a collector drives. All callbacks are
// invoked from the collector's owner goroutine.
type Adapter interface {
	Exchange() string
	// URL is the websocket endpoint to dial; it never changes across reconnects.
	URL() string
	// OnOpen returns the subscription payloads to send after every connect.
	OnOpen() ([][]byte, error)
	// OnMessage applies one inbound frame and returns the pairs whose book
	// really changed. An error means the frame was dropped.
	OnMessage(raw []byte) ([]string, error)
	OnClose()
	OnError(err error)
	Store() *orderbook.Store
}

// New builds the adapter for exchange subscribed to pairs.
func New(exchange string, pairs []string, cfg *config.Config) (Adapter, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no pairs for %s", exchange)
	}
	ex, err := cfg.Exchange(exchange)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(exchange) {
	case config.ExchangeBinance:
		return binance.NewTicker(ex.WSURL, pairs), nil
	case config.ExchangeCoinbase:
		return coinbase.NewLevel2(ex.WSURL, ex.APIKey, ex.APISecret, cfg.Collector.Depth, pairs), nil
	default:
		return nil, fmt.Errorf("unsupported exchange '%s'", exchange)
	}
}

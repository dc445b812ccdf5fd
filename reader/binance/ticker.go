package binance

import (
	"encoding/json"
	"fmt"
	"strings"

	"arbflow/internal/orderbook"
	"arbflow/internal/symbols"
	"arbflow/logger"
	"arbflow/models"
)

const exchange = "binance"

// Ticker consumes the combined bookTicker stream. Every message carries the
// full top of book, so each side is replaced by a single level.
type Ticker struct {
	wsURL   string
	streams []string
	// stream name -> canonical pair
	byStream map[string]string
	store    *orderbook.Store
	log      *logger.Entry
}

// NewTicker prepares a ticker adapter for pairs on the websocket base wsURL.
func NewTicker(wsURL string, pairs []string) *Ticker {
	mapper := symbols.NewMapper(exchange, pairs)
	t := &Ticker{
		wsURL:    strings.TrimRight(wsURL, "/"),
		byStream: make(map[string]string, len(pairs)),
		store:    orderbook.NewStore(),
		log:      logger.GetLogger().WithComponent("binance_ticker"),
	}
	for _, p := range pairs {
		wire, ok := mapper.ToWire(p)
		if !ok {
			continue
		}
		stream := strings.ToLower(wire) + "@bookTicker"
		if _, dup := t.byStream[stream]; dup {
			continue
		}
		pair, err := mapper.FromWire(wire)
		if err != nil {
			t.log.WithError(err).WithFields(logger.Fields{"stream": stream}).Warn("skipping stream")
			continue
		}
		t.byStream[stream] = pair
		t.streams = append(t.streams, stream)
	}
	return t
}

func (t *Ticker) Exchange() string { return exchange }

func (t *Ticker) URL() string {
	return fmt.Sprintf("%s/stream?streams=%s", t.wsURL, strings.Join(t.streams, "/"))
}

func (t *Ticker) OnOpen() ([][]byte, error) {
	payload, err := json.Marshal(models.BinanceSubscribe{Method: "SUBSCRIBE", Params: t.streams, ID: 1})
	if err != nil {
		return nil, fmt.Errorf("marshal subscribe: %w", err)
	}
	return [][]byte{payload}, nil
}

func (t *Ticker) OnMessage(raw []byte) ([]string, error) {
	var env models.BinanceStreamEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Stream == "" {
		// subscription acks: {"result":null,"id":1}
		return nil, nil
	}
	pair, ok := t.byStream[env.Stream]
	if !ok {
		return nil, nil
	}

	var tick models.BinanceBookTicker
	if err := json.Unmarshal(env.Data, &tick); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Stream, err)
	}
	if !strings.EqualFold(tick.Symbol+"@bookTicker", env.Stream) {
		return nil, fmt.Errorf("%s: symbol %q does not match stream", env.Stream, tick.Symbol)
	}
	if !tick.BidPrice.IsPositive() || !tick.AskPrice.IsPositive() {
		return nil, fmt.Errorf("%s: tick without prices", env.Stream)
	}

	return t.store.Update([]string{pair}, func() {
		t.store.ApplyFullTick(pair, orderbook.Bid, tick.BidPrice, tick.BidQty)
		t.store.ApplyFullTick(pair, orderbook.Offer, tick.AskPrice, tick.AskQty)
	}), nil
}

func (t *Ticker) OnClose() {
	t.log.WithFields(logger.Fields{"streams": len(t.streams)}).Info("ticker stream closed")
}

func (t *Ticker) OnError(err error) {
	t.log.WithError(err).Debug("ticker stream error")
}

func (t *Ticker) Store() *orderbook.Store { return t.store }

// Package coinbase implements the advanced trade level2 adapter and the REST
// client used for product discovery and fees.
package coinbase

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"arbflow/internal/orderbook"
	"arbflow/internal/symbols"
	"arbflow/logger"
	"arbflow/models"
)

const (
	exchange    = "coinbase"
	level2      = "level2"
	level2Data  = "l2_data"
	eventSnap   = "snapshot"
	eventUpdate = "update"
)

// Level2 consumes the level2 channel: a snapshot per product followed by
// incremental updates. Books are trimmed to depth after every message.
type Level2 struct {
	wsURL     string
	apiKey    string
	apiSecret string
	depth     int
	products  []string
	mapper    *symbols.Mapper
	store     *orderbook.Store
	now       func() time.Time
	log       *logger.Entry
}

// NewLevel2 prepares a level2 adapter for pairs.
func NewLevel2(wsURL, apiKey, apiSecret string, depth int, pairs []string) *Level2 {
	mapper := symbols.NewMapper(exchange, pairs)
	a := &Level2{
		wsURL:     wsURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		depth:     depth,
		mapper:    mapper,
		store:     orderbook.NewStore(),
		now:       time.Now,
		log:       logger.GetLogger().WithComponent("coinbase_level2"),
	}
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		w, ok := mapper.ToWire(p)
		if !ok || seen[w] {
			continue
		}
		seen[w] = true
		a.products = append(a.products, w)
	}
	return a
}

func (a *Level2) Exchange() string { return exchange }

func (a *Level2) URL() string { return a.wsURL }

// OnOpen signs a fresh subscription; the timestamp must be recent on every
// reconnect.
func (a *Level2) OnOpen() ([][]byte, error) {
	ts := unixTimestamp(a.now())
	msg := models.CoinbaseSubscribe{
		Type:       "subscribe",
		Channel:    level2,
		APIKey:     a.apiKey,
		ProductIDs: a.products,
		Signature:  sign(a.apiSecret, ts+level2+strings.Join(a.products, ",")),
		Timestamp:  ts,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal subscribe: %w", err)
	}
	return [][]byte{payload}, nil
}

func (a *Level2) OnMessage(raw []byte) ([]string, error) {
	var msg models.CoinbaseMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if msg.Channel != level2Data {
		a.log.WithFields(logger.Fields{"channel": msg.Channel}).Debug("ignoring message")
		return nil, nil
	}

	type resolved struct {
		pair  string
		event models.CoinbaseLevel2Event
	}
	events := make([]resolved, 0, len(msg.Events))
	touched := make([]string, 0, len(msg.Events))
	for _, ev := range msg.Events {
		pair, err := a.mapper.FromWire(ev.ProductID)
		if err != nil {
			a.log.WithError(err).Debug("dropping event")
			continue
		}
		if ev.Type != eventSnap && ev.Type != eventUpdate {
			a.log.WithFields(logger.Fields{"type": ev.Type, "pair": pair}).Debug("unknown event type")
			continue
		}
		events = append(events, resolved{pair: pair, event: ev})
		touched = append(touched, pair)
	}
	if len(events) == 0 {
		return nil, nil
	}

	return a.store.Update(touched, func() {
		for _, r := range events {
			a.apply(r.pair, r.event)
		}
		a.store.Trim(a.depth)
	}), nil
}

func (a *Level2) apply(pair string, ev models.CoinbaseLevel2Event) {
	updates := make([]orderbook.Update, 0, len(ev.Updates))
	for _, u := range ev.Updates {
		side, err := orderbook.ParseSide(u.Side)
		if err != nil {
			a.log.WithError(err).WithFields(logger.Fields{"pair": pair}).Debug("dropping update")
			continue
		}
		updates = append(updates, orderbook.Update{Side: side, Price: u.PriceLevel, Quantity: u.NewQuantity})
	}

	if ev.Type == eventSnap {
		a.store.ApplySnapshot(pair, updates)
		return
	}
	for _, u := range updates {
		a.store.ApplyDelta(pair, u.Side, u.Price, u.Quantity)
	}
}

func (a *Level2) OnClose() {
	a.log.WithFields(logger.Fields{"products": len(a.products)}).Info("level2 stream closed")
}

func (a *Level2) OnError(err error) {
	a.log.WithError(err).Debug("level2 stream error")
}

func (a *Level2) Store() *orderbook.Store { return a.store }

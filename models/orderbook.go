package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BINANCE ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BinanceStreamEnvelope wraps every message of a combined stream connection.
type BinanceStreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BinanceBookTicker is the payload of the <symbol>@bookTicker stream.
type BinanceBookTicker struct {
	UpdateID int64           `json:"u"`
	Symbol   string          `json:"s"`
	BidPrice decimal.Decimal `json:"b"`
	BidQty   decimal.Decimal `json:"B"`
	AskPrice decimal.Decimal `json:"a"`
	AskQty   decimal.Decimal `json:"A"`
}

// BinanceSubscribe is the SUBSCRIBE request sent after connecting.
type BinanceSubscribe struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int      `json:"id"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// COINBASE //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// CoinbaseSubscribe is the signed subscription for advanced trade channels.
type CoinbaseSubscribe struct {
	Type       string   `json:"type"`
	Channel    string   `json:"channel"`
	APIKey     string   `json:"api_key"`
	ProductIDs []string `json:"product_ids"`
	Signature  string   `json:"signature"`
	Timestamp  string   `json:"timestamp"`
}

// CoinbaseMessage is the envelope of every advanced trade websocket message.
type CoinbaseMessage struct {
	Channel     string                `json:"channel"`
	ClientID    string                `json:"client_id"`
	Timestamp   string                `json:"timestamp"`
	SequenceNum int64                 `json:"sequence_num"`
	Events      []CoinbaseLevel2Event `json:"events"`
}

// CoinbaseLevel2Event carries either a full snapshot or incremental updates
// for one product.
type CoinbaseLevel2Event struct {
	Type      string                 `json:"type"`
	ProductID string                 `json:"product_id"`
	Updates   []CoinbaseLevel2Update `json:"updates"`
}

// CoinbaseLevel2Update is one price level change; side is "bid" or "offer".
type CoinbaseLevel2Update struct {
	Side        string          `json:"side"`
	EventTime   string          `json:"event_time"`
	PriceLevel  decimal.Decimal `json:"price_level"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
}

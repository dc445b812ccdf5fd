// Package orderbook holds the per-exchange order book model: price levels
// keyed by canonical decimal strings, depth trimming and structural equality.
package orderbook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Side identifies one half of a book.
type Side string

const (
	Bid   Side = "bid"
	Offer Side = "offer"
)

// ParseSide accepts the side names used by the supported exchanges.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "bid", "buy":
		return Bid, nil
	case "offer", "ask", "sell":
		return Offer, nil
	default:
		return "", fmt.Errorf("unknown book side %q", s)
	}
}

// Level is a single price point. A level with zero quantity never lives in a
// SideMap.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// SideMap maps the canonical price string to its level.
type SideMap map[string]Level

// Key returns the canonical map key for a price.
func Key(price decimal.Decimal) string {
	return price.String()
}

// Book is the bid and offer side of one pair on one exchange.
type Book struct {
	Bid   SideMap `json:"bid"`
	Offer SideMap `json:"offer"`
}

// NewBook returns a book with empty sides.
func NewBook() *Book {
	return &Book{Bid: SideMap{}, Offer: SideMap{}}
}

func (b *Book) side(s Side) SideMap {
	if s == Bid {
		return b.Bid
	}
	return b.Offer
}

func (b *Book) setSide(s Side, m SideMap) {
	if s == Bid {
		b.Bid = m
	} else {
		b.Offer = m
	}
}

// upsert sets the level at price, removing it when quantity is zero.
func (b *Book) upsert(s Side, price, quantity decimal.Decimal) {
	m := b.side(s)
	if quantity.IsZero() {
		delete(m, Key(price))
		return
	}
	m[Key(price)] = Level{Price: price, Quantity: quantity}
}

// Clone returns a deep copy of the book.
func (b *Book) Clone() *Book {
	out := &Book{Bid: make(SideMap, len(b.Bid)), Offer: make(SideMap, len(b.Offer))}
	for k, v := range b.Bid {
		out.Bid[k] = v
	}
	for k, v := range b.Offer {
		out.Offer[k] = v
	}
	return out
}

// Levels returns the levels of a side ordered best first: bids descending,
// offers ascending.
func (b *Book) Levels(s Side) []Level {
	m := b.side(s)
	levels := make([]Level, 0, len(m))
	for _, l := range m {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool {
		if s == Bid {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}

// BestBid returns the highest bid.
func (b *Book) BestBid() (Level, bool) {
	var best Level
	found := false
	for _, l := range b.Bid {
		if !found || l.Price.GreaterThan(best.Price) {
			best, found = l, true
		}
	}
	return best, found
}

// BestOffer returns the lowest offer.
func (b *Book) BestOffer() (Level, bool) {
	var best Level
	found := false
	for _, l := range b.Offer {
		if !found || l.Price.LessThan(best.Price) {
			best, found = l, true
		}
	}
	return best, found
}

// Crossed reports whether the best bid is at or above the best offer.
func (b *Book) Crossed() bool {
	bid, okBid := b.BestBid()
	offer, okOffer := b.BestOffer()
	return okBid && okOffer && bid.Price.GreaterThanOrEqual(offer.Price)
}

// Trim keeps the depth levels nearest the top of each side.
func (b *Book) Trim(depth int) {
	if depth < 0 {
		depth = 0
	}
	for _, s := range []Side{Bid, Offer} {
		if len(b.side(s)) <= depth {
			continue
		}
		kept := make(SideMap, depth)
		for _, l := range b.Levels(s)[:depth] {
			kept[Key(l.Price)] = l
		}
		b.setSide(s, kept)
	}
}

// Equal compares key sets and, per key, price and quantity by value.
func Equal(a, b *Book) bool {
	if a == nil || b == nil {
		return a == b
	}
	return sideEqual(a.Bid, b.Bid) && sideEqual(a.Offer, b.Offer)
}

func sideEqual(a, b SideMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, la := range a {
		lb, ok := b[k]
		if !ok {
			return false
		}
		if !la.Price.Equal(lb.Price) || !la.Quantity.Equal(lb.Quantity) {
			return false
		}
	}
	return true
}

// Marshal serialises the book into the persisted snapshot format.
func (b *Book) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// Unmarshal decodes a persisted snapshot. Missing sides decode as empty.
func Unmarshal(data []byte) (*Book, error) {
	b := NewBook()
	if err := json.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	if b.Bid == nil {
		b.Bid = SideMap{}
	}
	if b.Offer == nil {
		b.Offer = SideMap{}
	}
	return b, nil
}

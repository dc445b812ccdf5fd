// Package symbols translates between canonical BASE-QUOTE pairs and the
// wire symbols each exchange uses.
package symbols

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownSymbol   = errors.New("symbol not in configured pairs")
	ErrAmbiguousSymbol = errors.New("symbol matches more than one pair")
)

// Canonical normalises a pair to upper case BASE-QUOTE.
func Canonical(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

// Split returns the base and quote of a canonical pair.
func Split(pair string) (base, quote string, err error) {
	parts := strings.Split(Canonical(pair), "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("pair %q is not BASE-QUOTE", pair)
	}
	return parts[0], parts[1], nil
}

// ToWire converts a canonical pair into the exchange's wire symbol.
func ToWire(exchange, pair string) string {
	pair = Canonical(pair)
	switch strings.ToLower(exchange) {
	case "binance":
		return strings.ReplaceAll(pair, "-", "")
	default:
		// coinbase already uses BASE-QUOTE
		return pair
	}
}

// Mapper resolves wire symbols back to the pairs one collector subscribed to.
type Mapper struct {
	exchange string
	toWire   map[string]string
	fromWire map[string][]string
}

// NewMapper indexes pairs for exchange.
func NewMapper(exchange string, pairs []string) *Mapper {
	m := &Mapper{
		exchange: strings.ToLower(exchange),
		toWire:   make(map[string]string, len(pairs)),
		fromWire: make(map[string][]string, len(pairs)),
	}
	for _, p := range pairs {
		p = Canonical(p)
		if _, dup := m.toWire[p]; dup {
			continue
		}
		w := ToWire(m.exchange, p)
		m.toWire[p] = w
		m.fromWire[strings.ToUpper(w)] = append(m.fromWire[strings.ToUpper(w)], p)
	}
	return m
}

// ToWire returns the wire symbol of a configured pair.
func (m *Mapper) ToWire(pair string) (string, bool) {
	w, ok := m.toWire[Canonical(pair)]
	return w, ok
}

// FromWire fails closed: zero or several matching pairs is an error.
func (m *Mapper) FromWire(symbol string) (string, error) {
	matches := m.fromWire[strings.ToUpper(symbol)]
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s %q: %w", m.exchange, symbol, ErrUnknownSymbol)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s %q matches %v: %w", m.exchange, symbol, matches, ErrAmbiguousSymbol)
	}
}

// Pairs returns the configured pairs in no particular order.
func (m *Mapper) Pairs() []string {
	out := make([]string, 0, len(m.toWire))
	for p := range m.toWire {
		out = append(out, p)
	}
	return out
}

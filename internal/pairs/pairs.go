// Package pairs discovers, filters and selects the pairs each collector
// subscribes to.
package pairs

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"arbflow/internal/symbols"
	"arbflow/logger"
)

// Market is one tradable pair and its 24h activity as reported by the
// exchange's REST API.
type Market struct {
	Pair       string
	Base       string
	Quote      string
	BaseVolume decimal.Decimal
	LastPrice  decimal.Decimal
}

// QuoteVolume is the 24h volume expressed in quote units.
func (m Market) QuoteVolume() decimal.Decimal {
	return m.BaseVolume.Mul(m.LastPrice)
}

// Directory lists the active markets of one exchange.
type Directory interface {
	Markets(ctx context.Context) ([]Market, error)
}

var usdLike = map[string]bool{"USD": true, "USDT": true, "USDC": true, "DAI": true, "BUSD": true}

// usdOrder fixes the lookup order of conversion markets.
var usdOrder = []string{"USD", "USDT", "USDC", "DAI", "BUSD"}

// USDVolume converts m's 24h volume to USD using the other markets of the
// same exchange. ok is false when no conversion path exists.
func USDVolume(m Market, index map[string]Market) (decimal.Decimal, bool) {
	if usdLike[m.Base] {
		return m.BaseVolume, true
	}
	if usdLike[m.Quote] {
		return m.QuoteVolume(), true
	}
	for _, usd := range usdOrder {
		if conv, ok := index[m.Quote+"-"+usd]; ok && conv.LastPrice.IsPositive() {
			return m.QuoteVolume().Mul(conv.LastPrice), true
		}
	}
	for _, usd := range usdOrder {
		if conv, ok := index[usd+"-"+m.Quote]; ok && conv.LastPrice.IsPositive() {
			return m.QuoteVolume().Div(conv.LastPrice), true
		}
	}
	return decimal.Zero, false
}

// FilterByVolume keeps the pairs whose USD volume is at least minUSD, in the
// order of markets. Unconvertible pairs are skipped with a warning.
func FilterByVolume(exchange string, markets []Market, minUSD decimal.Decimal) []string {
	log := logger.GetLogger().WithComponent("pairs").WithFields(logger.Fields{"exchange": exchange})

	index := make(map[string]Market, len(markets))
	for _, m := range markets {
		index[m.Pair] = m
	}

	var out []string
	skipped := 0
	for _, m := range markets {
		vol, ok := USDVolume(m, index)
		if !ok {
			skipped++
			log.WithFields(logger.Fields{"pair": m.Pair}).Warn("cannot convert volume to USD, skipping pair")
			continue
		}
		if vol.GreaterThanOrEqual(minUSD) {
			out = append(out, m.Pair)
		}
	}

	log.WithFields(logger.Fields{
		"markets": len(markets),
		"kept":    len(out),
		"skipped": skipped,
		"min_usd": minUSD.String(),
	}).Info("filtered pairs by 24h volume")
	return out
}

// Select resolves the pair set of exchange from the command line filters.
// exchangePairs maps every exchange to its available pairs.
func Select(exchangePairs map[string][]string, exchange, pair string) ([]string, error) {
	pair = symbols.Canonical(pair)

	switch {
	case exchange != "" && pair != "":
		available, ok := exchangePairs[exchange]
		if !ok {
			return nil, fmt.Errorf("exchange '%s' has no pairs", exchange)
		}
		for _, p := range available {
			if p == pair {
				return []string{pair}, nil
			}
		}
		return nil, fmt.Errorf("pair %s not available on %s", pair, exchange)
	case exchange != "":
		available, ok := exchangePairs[exchange]
		if !ok {
			return nil, fmt.Errorf("exchange '%s' has no pairs", exchange)
		}
		return append([]string(nil), available...), nil
	case pair != "":
		return []string{pair}, nil
	default:
		return Shared(exchangePairs), nil
	}
}

// Shared returns the pairs listed by at least two exchanges, sorted.
func Shared(exchangePairs map[string][]string) []string {
	counts := make(map[string]int)
	for _, list := range exchangePairs {
		seen := make(map[string]bool, len(list))
		for _, p := range list {
			if seen[p] {
				continue
			}
			seen[p] = true
			counts[p]++
		}
	}
	var out []string
	for p, n := range counts {
		if n >= 2 {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Intersect keeps the elements of a that are also in b, in a's order.
func Intersect(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, p := range b {
		in[p] = true
	}
	out := make([]string, 0, len(a))
	for _, p := range a {
		if in[p] {
			out = append(out, p)
		}
	}
	return out
}

// Chunk splits list into consecutive slices of at most size elements.
func Chunk(list []string, size int) [][]string {
	if size <= 0 {
		size = len(list)
	}
	var out [][]string
	for start := 0; start < len(list); start += size {
		end := start + size
		if end > len(list) {
			end = len(list)
		}
		out = append(out, list[start:end])
	}
	return out
}

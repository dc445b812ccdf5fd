// Package fees resolves the maker and taker fee of a pair on an exchange,
// from configuration first and from the exchange's account API otherwise.
package fees

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"arbflow/config"
	"arbflow/internal/symbols"
)

// ErrNoFee is returned when neither configuration nor a live lookup knows
// the fee of a pair.
var ErrNoFee = errors.New("fee not available")

// Fee rates are fractions: 0.001 is 0.1%.
type Fee struct {
	Maker decimal.Decimal
	Taker decimal.Decimal
}

// Source answers fee lookups for the scanner.
type Source interface {
	Configured(exchange, pair string) (Fee, bool)
	Live(ctx context.Context, exchange, pair string) (Fee, error)
}

// LiveLookup queries one exchange for the current fee of pair.
type LiveLookup func(ctx context.Context, pair string) (Fee, error)

type cached struct {
	fee     Fee
	expires time.Time
}

// Book is the Source used by the scanner. Configured fees take precedence;
// live results are cached for ttl.
type Book struct {
	// exchange -> wire symbol -> fee
	perSymbol map[string]map[string]Fee
	// exchange -> flat fee
	flat map[string]Fee
	live map[string]LiveLookup
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

// NewBook builds a fee book from the fees section of cfg.
func NewBook(cfg config.FeesConfig) (*Book, error) {
	b := &Book{
		perSymbol: make(map[string]map[string]Fee),
		flat:      make(map[string]Fee),
		live:      make(map[string]LiveLookup),
		ttl:       cfg.LiveCacheTTL,
		now:       time.Now,
		cache:     make(map[string]cached),
	}

	if cfg.BinanceFile != "" {
		entries, err := config.LoadFeeFile(cfg.BinanceFile)
		if err != nil {
			return nil, err
		}
		table := make(map[string]Fee, len(entries))
		for _, e := range entries {
			fee, err := parseFee(e.MakerCommission, e.TakerCommission)
			if err != nil {
				return nil, fmt.Errorf("fee for %s: %w", e.Symbol, err)
			}
			table[strings.ToUpper(e.Symbol)] = fee
		}
		b.perSymbol[config.ExchangeBinance] = table
	}

	if cfg.Coinbase != nil {
		fee, err := parseFee(cfg.Coinbase.Maker, cfg.Coinbase.Taker)
		if err != nil {
			return nil, fmt.Errorf("coinbase fee: %w", err)
		}
		b.flat[config.ExchangeCoinbase] = fee
	}

	return b, nil
}

func parseFee(maker, taker string) (Fee, error) {
	m, err := decimal.NewFromString(maker)
	if err != nil {
		return Fee{}, fmt.Errorf("maker %q: %w", maker, err)
	}
	t, err := decimal.NewFromString(taker)
	if err != nil {
		return Fee{}, fmt.Errorf("taker %q: %w", taker, err)
	}
	return Fee{Maker: m, Taker: t}, nil
}

// SetFlat configures a single fee for every pair of exchange.
func (b *Book) SetFlat(exchange string, fee Fee) {
	b.flat[strings.ToLower(exchange)] = fee
}

// RegisterLive installs the live lookup of exchange. Not safe to call once
// the book is in use.
func (b *Book) RegisterLive(exchange string, lookup LiveLookup) {
	b.live[strings.ToLower(exchange)] = lookup
}

func (b *Book) Configured(exchange, pair string) (Fee, bool) {
	exchange = strings.ToLower(exchange)
	if table, ok := b.perSymbol[exchange]; ok {
		if fee, ok := table[symbols.ToWire(exchange, pair)]; ok {
			return fee, true
		}
	}
	fee, ok := b.flat[exchange]
	return fee, ok
}

func (b *Book) Live(ctx context.Context, exchange, pair string) (Fee, error) {
	exchange = strings.ToLower(exchange)
	lookup, ok := b.live[exchange]
	if !ok {
		return Fee{}, fmt.Errorf("%s %s: %w", exchange, pair, ErrNoFee)
	}

	key := exchange + "/" + symbols.Canonical(pair)
	b.mu.Lock()
	if c, ok := b.cache[key]; ok && b.now().Before(c.expires) {
		b.mu.Unlock()
		return c.fee, nil
	}
	b.mu.Unlock()

	fee, err := lookup(ctx, pair)
	if err != nil {
		return Fee{}, fmt.Errorf("%s %s live fee: %w", exchange, pair, err)
	}

	if b.ttl > 0 {
		b.mu.Lock()
		b.cache[key] = cached{fee: fee, expires: b.now().Add(b.ttl)}
		b.mu.Unlock()
	}
	return fee, nil
}

// Lookup returns the configured fee when present, the live one otherwise.
func Lookup(ctx context.Context, src Source, exchange, pair string) (Fee, error) {
	if fee, ok := src.Configured(exchange, pair); ok {
		return fee, nil
	}
	return src.Live(ctx, exchange, pair)
}

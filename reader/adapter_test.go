package reader

import (
	"testing"

	"arbflow/config"
)

func TestNewDispatchesByExchange(t *testing.T) {
	defaults := config.Default()
	cfg := &defaults

	a, err := New("binance", []string{"BTC-USDT"}, cfg)
	if err != nil {
		t.Fatalf("binance adapter: %v", err)
	}
	if a.Exchange() != "binance" {
		t.Fatalf("unexpected exchange %s", a.Exchange())
	}

	a, err = New("Coinbase", []string{"BTC-USD"}, cfg)
	if err != nil {
		t.Fatalf("coinbase adapter: %v", err)
	}
	if a.Exchange() != "coinbase" || a.URL() != cfg.Exchanges.Coinbase.WSURL {
		t.Fatalf("unexpected coinbase adapter %s %s", a.Exchange(), a.URL())
	}
	if a.Store() == nil {
		t.Fatal("adapter must own a store")
	}
}

func TestNewRejectsUnknown(t *testing.T) {
	defaults := config.Default()
	cfg := &defaults
	if _, err := New("kraken", []string{"BTC-USD"}, cfg); err == nil {
		t.Fatal("expected error for unknown exchange")
	}
	if _, err := New("binance", nil, cfg); err == nil {
		t.Fatal("expected error for empty pair list")
	}
}

func TestNewClient(t *testing.T) {
	defaults := config.Default()
	cfg := &defaults

	for _, name := range []string{config.ExchangeBinance, config.ExchangeCoinbase} {
		client, err := NewClient(name, cfg)
		if err != nil {
			t.Fatalf("NewClient(%s) returned error: %v", name, err)
		}
		if client == nil {
			t.Fatalf("NewClient(%s) returned nil", name)
		}
	}

	if _, err := NewClient("kraken", cfg); err == nil {
		t.Fatal("expected error for unsupported exchange")
	}
}

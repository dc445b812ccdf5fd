package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersBeforeInitAreNoops(t *testing.T) {
	// must not panic while unregistered
	if bookMessages == nil {
		IncrementMessage("binance")
		RecordScan(3)
	}
}

func TestCounters(t *testing.T) {
	Init()
	Init()

	IncrementMessage("binance")
	IncrementMessage("binance")
	IncrementDropped("binance")
	RecordWrites("coinbase", 3, 1)
	IncrementReconnect("coinbase")
	RecordScan(4)

	if got := testutil.ToFloat64(bookMessages.WithLabelValues("binance")); got < 2 {
		t.Fatalf("book messages = %v", got)
	}
	if got := testutil.ToFloat64(cacheWrites.WithLabelValues("coinbase")); got != 3 {
		t.Fatalf("cache writes = %v", got)
	}
	if got := testutil.ToFloat64(cacheErrors.WithLabelValues("coinbase")); got != 1 {
		t.Fatalf("cache write errors = %v", got)
	}
	if got := testutil.ToFloat64(opportunities); got != 4 {
		t.Fatalf("opportunities = %v", got)
	}
}

// Registers:
//
//	#arbflow_book_messages_total
//	#arbflow_book_messages_dropped_total
//	#arbflow_cache_writes_total
//	#arbflow_cache_write_errors_total
//	#arbflow_reconnects_total
//	#arbflow_scans_total
//	#arbflow_scan_opportunities
//	#go_* and process_* system metrics
//
// They are served by the dashboard's /metrics route.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	once sync.Once

	bookMessages   *prometheus.CounterVec
	droppedMessage *prometheus.CounterVec
	cacheWrites    *prometheus.CounterVec
	cacheErrors    *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	scans          prometheus.Counter
	opportunities  prometheus.Gauge
)

// Init registers the collectors on the default registry. Safe to call more
// than once.
func Init() {
	once.Do(func() {
		bookMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbflow_book_messages_total",
			Help: "Websocket messages received by collectors",
		}, []string{"exchange"})

		droppedMessage = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbflow_book_messages_dropped_total",
			Help: "Websocket messages that could not be decoded",
		}, []string{"exchange"})

		cacheWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbflow_cache_writes_total",
			Help: "Order books persisted to the cache",
		}, []string{"exchange"})

		cacheErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbflow_cache_write_errors_total",
			Help: "Order book writes that failed and will be retried",
		}, []string{"exchange"})

		reconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbflow_reconnects_total",
			Help: "Websocket reconnect attempts",
		}, []string{"exchange"})

		scans = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbflow_scans_total",
			Help: "Completed arbitrage scans",
		})

		opportunities = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbflow_scan_opportunities",
			Help: "Rows reported by the latest scan",
		})

		_ = prometheus.Register(bookMessages)
		_ = prometheus.Register(droppedMessage)
		_ = prometheus.Register(cacheWrites)
		_ = prometheus.Register(cacheErrors)
		_ = prometheus.Register(reconnects)
		_ = prometheus.Register(scans)
		_ = prometheus.Register(opportunities)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

func IncrementMessage(exchange string) {
	if bookMessages != nil {
		bookMessages.WithLabelValues(exchange).Inc()
	}
}

func IncrementDropped(exchange string) {
	if droppedMessage != nil {
		droppedMessage.WithLabelValues(exchange).Inc()
	}
}

// RecordWrites adds the outcome of one batch write.
func RecordWrites(exchange string, ok, failed int) {
	if cacheWrites != nil {
		cacheWrites.WithLabelValues(exchange).Add(float64(ok))
		cacheErrors.WithLabelValues(exchange).Add(float64(failed))
	}
}

func IncrementReconnect(exchange string) {
	if reconnects != nil {
		reconnects.WithLabelValues(exchange).Inc()
	}
}

// RecordScan counts a finished scan and publishes its row count.
func RecordScan(rows int) {
	if scans != nil {
		scans.Inc()
		opportunities.Set(float64(rows))
	}
}

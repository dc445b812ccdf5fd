// Package collector keeps the order books of one exchange connection and
// persists the changed ones to the cache on a fixed interval.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"arbflow/config"
	"arbflow/internal/cache"
	"arbflow/internal/metrics"
	"arbflow/logger"
	"arbflow/reader"
)

// Config controls the write cadence and the reconnect policy.
type Config struct {
	SaveInterval  time.Duration
	TTL           time.Duration
	MaxReconnects int
	BackoffMin    time.Duration
	BackoffMax    time.Duration
}

// FromConfig derives the collector settings from the application config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		SaveInterval:  cfg.Collector.SaveInterval,
		TTL:           cfg.Cache.BookExpiration,
		MaxReconnects: cfg.Collector.MaxReconnects,
		BackoffMin:    500 * time.Millisecond,
		BackoffMax:    30 * time.Second,
	}
}

// Status is a point in time view of a collector for the dashboard.
type Status struct {
	ID          string    `json:"id"`
	Exchange    string    `json:"exchange"`
	Pairs       int       `json:"pairs"`
	Connected   bool      `json:"connected"`
	Reconnects  int       `json:"reconnects"`
	Pending     int       `json:"pending"`
	LastMessage time.Time `json:"last_message"`
}

// session is one websocket connection as seen by the owner goroutine. err is
// written by the read pump before msgs is closed.
type session struct {
	msgs chan []byte
	err  error
}

type writeResult struct {
	versions map[string]uint64
	failed   map[string]error
}

// Collector drives one adapter over one websocket connection. The store and
// the change bookkeeping are only touched by the goroutine running Run.
type Collector struct {
	id      string
	adapter reader.Adapter
	gateway cache.Gateway
	cfg     Config
	dialer  *websocket.Dialer
	log     *logger.Entry

	// owner goroutine state
	versions map[string]uint64
	dirty    map[string]bool
	crossed  map[string]bool
	inFlight bool

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	conn    *websocket.Conn
	status  Status
	done    chan struct{}
	once    sync.Once
}

// New creates a collector for the pairs handled by adapter.
func New(adapter reader.Adapter, gateway cache.Gateway, cfg Config, pairs []string) *Collector {
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = time.Second
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}

	id := uuid.NewString()
	return &Collector{
		id:       id,
		adapter:  adapter,
		gateway:  gateway,
		cfg:      cfg,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: websocket.DefaultDialer.Proxy},
		versions: make(map[string]uint64),
		dirty:    make(map[string]bool),
		crossed:  make(map[string]bool),
		status:   Status{ID: id, Exchange: adapter.Exchange(), Pairs: len(pairs)},
		done:     make(chan struct{}),
		log: logger.GetLogger().WithComponent("collector").WithFields(logger.Fields{
			"collector_id": id,
			"exchange":     adapter.Exchange(),
			"pairs":        len(pairs),
		}),
	}
}

func (c *Collector) ID() string { return c.id }

// Status returns a copy of the collector's current state.
func (c *Collector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Run connects, subscribes and processes messages until ctx is cancelled,
// Close is called or the reconnect budget is exhausted.
func (c *Collector) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("collector closed")
	}
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("collector already running")
	}
	c.running = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	defer close(c.done)
	defer c.adapter.OnClose()

	c.log.WithFields(logger.Fields{"url": c.adapter.URL()}).Info("starting collector")

	ticker := time.NewTicker(c.cfg.SaveInterval)
	defer ticker.Stop()

	results := make(chan writeResult, 1)
	var wg sync.WaitGroup
	defer func() {
		c.cancel()
		c.closeConn()
		wg.Wait()
		c.log.Info("collector stopped")
	}()

	b := &backoff.Backoff{Min: c.cfg.BackoffMin, Max: c.cfg.BackoffMax, Factor: 2, Jitter: true}
	failures := 0

	var sess *session
	var msgs <-chan []byte
	var healthy bool
	retry := make(chan time.Time, 1)
	retry <- time.Now()
	var retryC <-chan time.Time = retry

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-retryC:
			retryC = nil
			next, err := c.connect(ctx, &wg)
			if err == nil {
				sess, msgs, healthy = next, next.msgs, false
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.adapter.OnError(err)
			failures++
			if c.cfg.MaxReconnects > 0 && failures > c.cfg.MaxReconnects {
				c.log.WithError(err).Error("giving up after repeated connection failures")
				return fmt.Errorf("%s: %d consecutive connection failures: %w", c.adapter.Exchange(), failures, err)
			}
			wait := b.Duration()
			c.log.WithError(err).WithFields(logger.Fields{"attempt": failures, "retry_in": wait.String()}).Warn("connect failed")
			retryC = time.After(wait)

		case raw, ok := <-msgs:
			if !ok {
				msgs = nil
				c.setConnected(false)
				if ctx.Err() != nil {
					return nil
				}
				if sess.err != nil {
					c.adapter.OnError(sess.err)
				}
				if healthy {
					failures = 0
					b.Reset()
				}
				failures++
				if c.cfg.MaxReconnects > 0 && failures > c.cfg.MaxReconnects {
					c.log.Error("giving up after repeated disconnects")
					return fmt.Errorf("%s: %d consecutive disconnects", c.adapter.Exchange(), failures)
				}
				wait := b.Duration()
				metrics.IncrementReconnect(c.adapter.Exchange())
				c.mu.Lock()
				c.status.Reconnects++
				c.mu.Unlock()
				c.log.WithFields(logger.Fields{"attempt": failures, "retry_in": wait.String()}).Warn("connection lost, reconnecting")
				retryC = time.After(wait)
				continue
			}
			healthy = true
			c.handle(raw)

		case <-ticker.C:
			c.flush(ctx, results, &wg)

		case res := <-results:
			c.applyResult(res)
		}
	}
}

// connect dials, sends the subscription payloads and starts the read pump.
func (c *Collector) connect(ctx context.Context, wg *sync.WaitGroup) (*session, error) {
	payloads, err := c.adapter.OnOpen()
	if err != nil {
		return nil, fmt.Errorf("build subscription: %w", err)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.adapter.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.adapter.URL(), err)
	}

	for _, p := range payloads {
		if err := conn.WriteMessage(websocket.TextMessage, p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("send subscription: %w", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.status.Connected = true
	c.mu.Unlock()

	c.log.WithFields(logger.Fields{"subscriptions": len(payloads)}).Info("connected")

	sess := &session{msgs: make(chan []byte, 256)}
	wg.Add(1)
	go c.pump(ctx, conn, sess, wg)
	return sess, nil
}

// pump reads frames until the connection fails, then records the error and
// closes the session's channel.
func (c *Collector) pump(ctx context.Context, conn *websocket.Conn, sess *session, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(sess.msgs)
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				sess.err = err
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.log.WithError(err).Debug("read failed")
				}
			}
			return
		}
		select {
		case sess.msgs <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) handle(raw []byte) {
	exchange := c.adapter.Exchange()
	metrics.IncrementMessage(exchange)
	logger.IncrementBookMessage()

	c.mu.Lock()
	c.status.LastMessage = time.Now()
	c.mu.Unlock()

	changed, err := c.adapter.OnMessage(raw)
	if err != nil {
		metrics.IncrementDropped(exchange)
		c.log.WithError(err).Debug("dropping message")
		return
	}

	store := c.adapter.Store()
	for _, pair := range changed {
		c.versions[pair]++
		c.dirty[pair] = true

		book := store.Book(pair)
		crossed := book != nil && book.Crossed()
		if crossed != c.crossed[pair] {
			c.crossed[pair] = crossed
			if crossed {
				bid, _ := book.BestBid()
				offer, _ := book.BestOffer()
				c.log.WithFields(logger.Fields{
					"pair":  pair,
					"bid":   bid.Price.String(),
					"offer": offer.Price.String(),
				}).Warn("book is crossed")
			}
		}
	}
}

// flush serialises every changed book and hands the batch to a writer
// goroutine. At most one batch is in flight.
func (c *Collector) flush(ctx context.Context, results chan<- writeResult, wg *sync.WaitGroup) {
	c.mu.Lock()
	c.status.Pending = len(c.dirty)
	c.mu.Unlock()

	if c.inFlight || len(c.dirty) == 0 {
		return
	}

	pairs := make([]string, 0, len(c.dirty))
	for p := range c.dirty {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)

	store := c.adapter.Store()
	exchange := c.adapter.Exchange()
	entries := make([]cache.Entry, 0, len(pairs))
	versions := make(map[string]uint64, len(pairs))
	for _, p := range pairs {
		book := store.Book(p)
		if book == nil {
			delete(c.dirty, p)
			continue
		}
		data, err := book.Marshal()
		if err != nil {
			c.log.WithError(err).WithFields(logger.Fields{"pair": p}).Warn("failed to serialise book")
			continue
		}
		entries = append(entries, cache.Entry{Key: cache.BookKey(exchange, p), Value: data})
		versions[p] = c.versions[p]
	}
	if len(entries) == 0 {
		return
	}

	c.inFlight = true
	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		failed := c.gateway.SetMany(ctx, entries, c.cfg.TTL)
		logger.LogPerformanceEntry(c.log, "collector", "cache_write", time.Since(start), logger.Fields{"books": len(entries)})
		results <- writeResult{versions: versions, failed: failed}
	}()
}

// applyResult clears the changed flag of every book written successfully
// that has not changed again since it was serialised.
func (c *Collector) applyResult(res writeResult) {
	c.inFlight = false
	exchange := c.adapter.Exchange()

	ok := 0
	for pair, v := range res.versions {
		if err, failed := res.failed[cache.BookKey(exchange, pair)]; failed {
			c.log.WithError(err).WithFields(logger.Fields{"pair": pair}).Warn("cache write failed, will retry")
			continue
		}
		ok++
		if c.versions[pair] == v {
			delete(c.dirty, pair)
		}
	}

	metrics.RecordWrites(exchange, ok, len(res.failed))
	logger.RecordCacheWrites(ok, len(res.failed))
	logger.LogDataFlowEntry(c.log, exchange, "redis", ok, "orderbook")
}

func (c *Collector) setConnected(v bool) {
	c.mu.Lock()
	c.status.Connected = v
	c.conn = nil
	c.mu.Unlock()
}

func (c *Collector) closeConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.status.Connected = false
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close stops Run and waits for it to return. It is safe to call more than
// once and before Run.
func (c *Collector) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		cancel := c.cancel
		running := c.running
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		c.closeConn()
		if running {
			<-c.done
		}
	})
	return nil
}

// Wait blocks until Run has returned.
func (c *Collector) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return errors.New("timed out waiting for collector")
	}
}

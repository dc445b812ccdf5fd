package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbflow/internal/cache"
	"arbflow/internal/orderbook"
	"arbflow/reader"
	"arbflow/reader/binance"
)

const (
	bookKey = "binance_BTC-USDT_orderBook"
	tick1   = `{"stream":"btcusdt@bookTicker","data":{"u":1,"s":"BTCUSDT","b":"100","B":"1","a":"101","A":"2"}}`
	tick2   = `{"stream":"btcusdt@bookTicker","data":{"u":2,"s":"BTCUSDT","b":"102","B":"1","a":"103","A":"2"}}`
)

type wsServer struct {
	*httptest.Server
	mu    sync.Mutex
	conns int
	subs  []string
}

// newWSServer calls handle for every accepted connection after reading the
// subscription frame. n counts connections from 1.
func newWSServer(t *testing.T, handle func(conn *websocket.Conn, n int)) *wsServer {
	t.Helper()
	s := &wsServer{}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, sub, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		n := s.conns
		s.subs = append(s.subs, string(sub))
		s.mu.Unlock()

		handle(conn, n)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *wsServer) subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.subs...)
}

// holdOpen blocks until the client goes away.
func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func testConfig() Config {
	return Config{
		SaveInterval:  20 * time.Millisecond,
		TTL:           300 * time.Second,
		MaxReconnects: 3,
		BackoffMin:    5 * time.Millisecond,
		BackoffMax:    20 * time.Millisecond,
	}
}

func newRedis(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	gw, err := cache.NewRedis(context.Background(), "redis://"+mr.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	return gw, mr
}

func start(t *testing.T, c *Collector) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- c.Run(context.Background()) }()
	t.Cleanup(func() { _ = c.Close() })
	return errc
}

func storedBook(t *testing.T, mr *miniredis.Miniredis) *orderbook.Book {
	t.Helper()
	raw, err := mr.Get(bookKey)
	require.NoError(t, err)
	b, err := orderbook.Unmarshal([]byte(raw))
	require.NoError(t, err)
	return b
}

func TestCollectorPersistsChangedBooks(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, n int) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(tick1))
		holdOpen(conn)
	})
	gw, mr := newRedis(t)

	pairs := []string{"BTC-USDT"}
	c := New(binance.NewTicker(srv.wsURL(), pairs), gw, testConfig(), pairs)
	errc := start(t, c)

	require.Eventually(t, func() bool { return mr.Exists(bookKey) }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 300*time.Second, mr.TTL(bookKey))

	b := storedBook(t, mr)
	assert.Contains(t, b.Bid, "100")
	assert.Contains(t, b.Offer, "101")
	assert.Contains(t, srv.subscriptions()[0], `"SUBSCRIBE"`)

	st := c.Status()
	assert.True(t, st.Connected)
	assert.Equal(t, "binance", st.Exchange)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestCollectorSkipsUnchangedBooks(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, n int) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(tick1))
		holdOpen(conn)
	})
	gw := &fakeGateway{}

	pairs := []string{"BTC-USDT"}
	c := New(binance.NewTicker(srv.wsURL(), pairs), gw, testConfig(), pairs)
	start(t, c)

	require.Eventually(t, func() bool { return gw.calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, gw.calls(), "an unchanged book is written once")
}

func TestCollectorReconnects(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, n int) {
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(tick1))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(tick2))
		holdOpen(conn)
	})
	gw, mr := newRedis(t)

	pairs := []string{"BTC-USDT"}
	c := New(binance.NewTicker(srv.wsURL(), pairs), gw, testConfig(), pairs)
	start(t, c)

	require.Eventually(t, func() bool {
		if !mr.Exists(bookKey) {
			return false
		}
		raw, _ := mr.Get(bookKey)
		return strings.Contains(raw, `"102"`)
	}, 3*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, srv.connections(), 2)
	assert.GreaterOrEqual(t, c.Status().Reconnects, 1)
	assert.Len(t, srv.subscriptions(), srv.connections(), "every connection is subscribed again")
}

func TestCollectorGivesUpAfterMaxReconnects(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, n int) {})
	gw := &fakeGateway{}

	cfg := testConfig()
	cfg.MaxReconnects = 2
	pairs := []string{"BTC-USDT"}
	c := New(binance.NewTicker(srv.wsURL(), pairs), gw, cfg, pairs)
	errc := start(t, c)

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "consecutive")
	case <-time.After(3 * time.Second):
		t.Fatal("collector kept reconnecting")
	}
	assert.Equal(t, 3, srv.connections())
}

func TestCollectorDialFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnects = 1
	pairs := []string{"BTC-USDT"}
	c := New(binance.NewTicker("ws://127.0.0.1:1", pairs), &fakeGateway{}, cfg, pairs)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := c.Run(ctx)
	require.Error(t, err)
	assert.NoError(t, c.Close())
}

func TestCloseBeforeRun(t *testing.T) {
	pairs := []string{"BTC-USDT"}
	c := New(binance.NewTicker("ws://127.0.0.1:1", pairs), &fakeGateway{}, testConfig(), pairs)
	require.NoError(t, c.Close())
	assert.Error(t, c.Run(context.Background()))
}

func TestRunTwice(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, n int) { holdOpen(conn) })
	pairs := []string{"BTC-USDT"}
	c := New(binance.NewTicker(srv.wsURL(), pairs), &fakeGateway{}, testConfig(), pairs)
	start(t, c)

	require.Eventually(t, func() bool { return srv.connections() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Error(t, c.Run(context.Background()))
}

type fakeGateway struct {
	mu      sync.Mutex
	n       int
	failFor int
	written map[string][]byte
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

func (g *fakeGateway) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, cache.ErrNotFound
}

func (g *fakeGateway) MultiGet(ctx context.Context, keys []string) ([][]byte, error) {
	return make([][]byte, len(keys)), nil
}

func (g *fakeGateway) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (g *fakeGateway) SetMany(ctx context.Context, entries []cache.Entry, ttl time.Duration) map[string]error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	failed := make(map[string]error)
	if g.n <= g.failFor {
		for _, e := range entries {
			failed[e.Key] = errors.New("unavailable")
		}
		return failed
	}
	if g.written == nil {
		g.written = make(map[string][]byte)
	}
	for _, e := range entries {
		g.written[e.Key] = e.Value
	}
	return failed
}

func (g *fakeGateway) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	return nil, nil
}

func (g *fakeGateway) Close() error { return nil }

func TestFailedWritesAreRetried(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, n int) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(tick1))
		holdOpen(conn)
	})
	gw := &fakeGateway{failFor: 2}

	pairs := []string{"BTC-USDT"}
	c := New(binance.NewTicker(srv.wsURL(), pairs), gw, testConfig(), pairs)
	start(t, c)

	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		_, ok := gw.written[bookKey]
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, gw.calls())
}

func TestApplyResultKeepsNewerVersions(t *testing.T) {
	pairs := []string{"A-B", "C-D", "E-F"}
	c := New(binance.NewTicker("ws://x", pairs), &fakeGateway{}, testConfig(), pairs)

	c.versions = map[string]uint64{"A-B": 1, "C-D": 3, "E-F": 1}
	c.dirty = map[string]bool{"A-B": true, "C-D": true, "E-F": true}
	c.inFlight = true

	c.applyResult(writeResult{
		versions: map[string]uint64{"A-B": 1, "C-D": 2, "E-F": 1},
		failed:   map[string]error{"binance_E-F_orderBook": errors.New("boom")},
	})

	assert.False(t, c.inFlight)
	assert.False(t, c.dirty["A-B"], "written at the current version")
	assert.True(t, c.dirty["C-D"], "changed again while the write was in flight")
	assert.True(t, c.dirty["E-F"], "failed writes stay pending")
}

// recordingAdapter logs callbacks without locking; running it under the race
// detector checks they all come from the goroutine running Run.
type recordingAdapter struct {
	reader.Adapter
	events []string
}

func (a *recordingAdapter) OnMessage(raw []byte) ([]string, error) {
	a.events = append(a.events, "message")
	return a.Adapter.OnMessage(raw)
}

func (a *recordingAdapter) OnError(err error) {
	a.events = append(a.events, "error")
	a.Adapter.OnError(err)
}

func TestCollectorReportsReadErrorsFromRun(t *testing.T) {
	srv := newWSServer(t, func(conn *websocket.Conn, n int) {
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(tick1))
			return
		}
		holdOpen(conn)
	})
	gw := &fakeGateway{}

	pairs := []string{"BTC-USDT"}
	adapter := &recordingAdapter{Adapter: binance.NewTicker(srv.wsURL(), pairs)}
	c := New(adapter, gw, testConfig(), pairs)
	start(t, c)

	require.Eventually(t, func() bool { return srv.connections() >= 2 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, c.Close())

	require.GreaterOrEqual(t, len(adapter.events), 2)
	assert.Equal(t, []string{"message", "error"}, adapter.events[:2])
}

package cache

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), "redis://"+mr.Addr()+"/0", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestBookKey(t *testing.T) {
	key := BookKey("binance", "BTC-USDT")
	assert.Equal(t, "binance_BTC-USDT_orderBook", key)

	ex, pair, err := ParseBookKey(key)
	require.NoError(t, err)
	assert.Equal(t, "binance", ex)
	assert.Equal(t, "BTC-USDT", pair)

	for _, bad := range []string{"binance_BTC-USDT", "a_b_c", "_X-Y_orderBook", "a_b_c_orderBook"} {
		_, _, err := ParseBookKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetMissingKey(t *testing.T) {
	r, _ := newTestRedis(t)
	_, err := r.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSetAppliesTTL(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), 300*time.Second))
	got, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	assert.Equal(t, 300*time.Second, mr.TTL("k"))

	mr.FastForward(301 * time.Second)
	_, err = r.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotFound), "expired keys are absent")
}

func TestSetManyAndMultiGet(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	failed := r.SetMany(ctx, []Entry{
		{Key: BookKey("binance", "BTC-USDT"), Value: []byte(`{"bid":{},"offer":{}}`)},
		{Key: BookKey("coinbase", "BTC-USDT"), Value: []byte(`{"bid":{},"offer":{}}`)},
	}, time.Minute)
	assert.Empty(t, failed)
	assert.Equal(t, time.Minute, mr.TTL(BookKey("coinbase", "BTC-USDT")))

	vals, err := r.MultiGet(ctx, []string{BookKey("binance", "BTC-USDT"), "missing", BookKey("coinbase", "BTC-USDT")})
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.NotNil(t, vals[0])
	assert.Nil(t, vals[1])
	assert.NotNil(t, vals[2])

	assert.Empty(t, r.SetMany(ctx, nil, time.Minute))
}

func TestSetManyReportsFailures(t *testing.T) {
	r, mr := newTestRedis(t)
	mr.SetError("READONLY replica")
	defer mr.SetError("")

	failed := r.SetMany(context.Background(), []Entry{{Key: "a", Value: []byte("1")}, {Key: "b", Value: []byte("2")}}, time.Minute)
	assert.Len(t, failed, 2)
}

func TestScanKeys(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(BookKey("binance", "ETH-BTC"), "{}"))
	require.NoError(t, mr.Set(BookKey("coinbase", "ETH-BTC"), "{}"))
	require.NoError(t, mr.Set("unrelated", "x"))

	keys, err := r.ScanKeys(ctx, BookPattern)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"binance_ETH-BTC_orderBook", "coinbase_ETH-BTC_orderBook"}, keys)

	keys, err = r.ScanKeys(ctx, PairPattern("ETH-BTC"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestNewRedisBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "http://nope", time.Second)
	assert.Error(t, err)
}

// Package cache is the shared expiring key-value store between collectors and
// the scanner.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

const bookKeySuffix = "orderBook"

// BookPattern matches every persisted order book.
const BookPattern = "*_" + bookKeySuffix

// Entry is one key/value pair of a batch write.
type Entry struct {
	Key   string
	Value []byte
}

// Gateway is the cache surface used by collectors and the scanner.
type Gateway interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// MultiGet returns one slot per key; absent keys yield nil.
	MultiGet(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetMany attempts every entry and reports failures per key.
	SetMany(ctx context.Context, entries []Entry, ttl time.Duration) map[string]error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// BookKey builds the key of one exchange's book for pair.
func BookKey(exchange, pair string) string {
	return fmt.Sprintf("%s_%s_%s", exchange, pair, bookKeySuffix)
}

// ParseBookKey splits a key built by BookKey.
func ParseBookKey(key string) (exchange, pair string, err error) {
	parts := strings.Split(key, "_")
	if len(parts) != 3 || parts[2] != bookKeySuffix || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cache: %q is not an order book key", key)
	}
	return parts[0], parts[1], nil
}

// PairPattern matches every exchange's book for pair.
func PairPattern(pair string) string {
	return "*_" + pair + "_" + bookKeySuffix
}

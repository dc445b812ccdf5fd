package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"arbflow/logger"
)

const scanCount = 500

// Redis implements Gateway on a single Redis node.
type Redis struct {
	client *redis.Client
	log    *logger.Log
}

// NewRedis connects to url (redis://[user:pass@]host:port/db) and pings it.
func NewRedis(ctx context.Context, url string, dialTimeout time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if dialTimeout > 0 {
		opts.DialTimeout = dialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	log := logger.GetLogger()
	log.WithComponent("cache").WithFields(logger.Fields{"addr": opts.Addr, "db": opts.DB}).Info("redis connected")

	return &Redis{client: client, log: log}, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

func (r *Redis) MultiGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget %d keys: %w", len(keys), err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetMany sends every SET in one pipeline round trip. Redis pipelines are not
// transactional, so each key succeeds or fails on its own.
func (r *Redis) SetMany(ctx context.Context, entries []Entry, ttl time.Duration) map[string]error {
	failed := make(map[string]error)
	if len(entries) == 0 {
		return failed
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StatusCmd, len(entries))
	for i, e := range entries {
		cmds[i] = pipe.Set(ctx, e.Key, e.Value, ttl)
	}
	_, execErr := pipe.Exec(ctx)

	for i, cmd := range cmds {
		if err := cmd.Err(); err != nil {
			failed[entries[i].Key] = err
		} else if execErr != nil && cmd.Val() != "OK" {
			failed[entries[i].Key] = execErr
		}
	}
	return failed
}

// ScanKeys walks the keyspace with SCAN so large keyspaces do not block the
// server like KEYS would.
func (r *Redis) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Package redis provides a Redis-backed kvstore backend.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gezibash/arc-ledger/internal/kvstore/physical"
	"github.com/gezibash/arc-ledger/internal/storage"
)

const (
	KeyAddr         = "addr"
	KeyPassword     = "password"
	KeyDB           = "db"
	KeyMaxRetries   = "max_retries"
	KeyDialTimeout  = "dial_timeout"
	KeyReadTimeout  = "read_timeout"
	KeyWriteTimeout = "write_timeout"
	KeyPoolSize     = "pool_size"
	KeyKeyPrefix    = "key_prefix"

	defaultPrefix = "arc-ledger:"
)

func init() {
	physical.Register("redis", NewFactory, Defaults)
}

// Defaults returns the default configuration for the Redis backend.
func Defaults() storage.Options {
	return storage.Options{
		KeyAddr:         "localhost:6379",
		KeyPassword:     "",
		KeyDB:           "0",
		KeyMaxRetries:   "3",
		KeyDialTimeout:  "5s",
		KeyReadTimeout:  "3s",
		KeyWriteTimeout: "3s",
		KeyPoolSize:     "0",
		KeyKeyPrefix:    defaultPrefix,
	}
}

// NewFactory creates a new Redis backend from its options.
func NewFactory(ctx context.Context, opts storage.Options) (physical.Backend, error) {
	addr := opts.GetString(KeyAddr, "")
	if addr == "" {
		return nil, storage.NewConfigError("redis", KeyAddr, "cannot be empty")
	}

	db, err := opts.GetInt("redis", KeyDB, 0)
	if err != nil {
		return nil, err
	}
	if db < 0 {
		return nil, storage.NewConfigErrorWithValue("redis", KeyDB, opts[KeyDB], "must be non-negative")
	}
	maxRetries, err := opts.GetInt("redis", KeyMaxRetries, 3)
	if err != nil {
		return nil, err
	}
	dialTimeout, err := opts.GetDuration("redis", KeyDialTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	readTimeout, err := opts.GetDuration("redis", KeyReadTimeout, 3*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := opts.GetDuration("redis", KeyWriteTimeout, 3*time.Second)
	if err != nil {
		return nil, err
	}
	poolSize, err := opts.GetInt("redis", KeyPoolSize, 0)
	if err != nil {
		return nil, err
	}
	keyPrefix := opts.GetString(KeyKeyPrefix, defaultPrefix)

	ropts := &redis.Options{
		Addr:         addr,
		Password:     opts.GetString(KeyPassword, ""),
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	if poolSize > 0 {
		ropts.PoolSize = poolSize
	}

	client := redis.NewClient(ropts)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.NewConfigErrorWithCause("redis", KeyAddr, "failed to connect", err)
	}

	slog.Info("redis kvstore initialized", "addr", addr, "db", db, "key_prefix", keyPrefix)
	return NewWithClient(client, keyPrefix), nil
}

// Backend is a Redis implementation of physical.Backend. Records are plain
// string keys and queues are lists.
type Backend struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// NewWithClient creates a new backend with an existing Redis client.
func NewWithClient(client *redis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Backend{client: client, prefix: prefix}
}

func (b *Backend) recordKey(key string) string { return b.prefix + "kv:" + key }
func (b *Backend) queueKey(queue string) string { return b.prefix + "q:" + queue }

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	v, err := b.client.Get(ctx, b.recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

func (b *Backend) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	ok, err := b.client.SetNX(ctx, b.recordKey(key), value, 0).Result()
	if err != nil {
		return fmt.Errorf("redis put if absent: %w", err)
	}
	if !ok {
		return physical.ErrExists
	}
	return nil
}

func (b *Backend) Append(ctx context.Context, queue string, value []byte) error {
	if b.closed.Load() {
		return physical.ErrClosed
	}
	if err := b.client.RPush(ctx, b.queueKey(queue), value).Err(); err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (b *Backend) Drain(ctx context.Context, queue string) ([][]byte, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	key := b.queueKey(queue)

	var lrange *redis.StringSliceCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		lrange = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis drain: %w", err)
	}

	vals := lrange.Val()
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.client.Close()
}

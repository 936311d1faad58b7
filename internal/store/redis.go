package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 10

func redisOptions(addr string) *redis.Options {
	return &redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	}
}

// NewRedisClient connects to redis with short timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(redisOptions(addr))
}

// NewBlockingRedisClient is NewRedisClient for callers that issue blocking commands
// waiting up to block. Its read timeout outlasts the block.
func NewBlockingRedisClient(addr string, block time.Duration) *redis.Client {
	opts := redisOptions(addr)
	opts.ReadTimeout = block + 5*time.Second
	return redis.NewClient(opts)
}

// RedisMedium stores each collection as one string key under a prefix.
type RedisMedium struct {
	client *redis.Client
	prefix string
}

// NewRedisMedium wraps an existing client.
func NewRedisMedium(client *redis.Client, prefix string) *RedisMedium {
	return &RedisMedium{client: client, prefix: prefix}
}

func (m *RedisMedium) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := m.client.Get(ctx, m.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (m *RedisMedium) Save(ctx context.Context, key string, value []byte) error {
	return m.client.Set(ctx, m.prefix+key, value, 0).Err()
}

// Update is an optimistic WATCH/MULTI transaction, retried when another writer
// changes the key first.
func (m *RedisMedium) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := m.prefix + key
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil || next == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := m.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s: too much contention", key)
}

func (m *RedisMedium) Delete(ctx context.Context, key string) error {
	return m.client.Del(ctx, m.prefix+key).Err()
}

func (m *RedisMedium) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMedium) Close() error {
	return m.client.Close()
}

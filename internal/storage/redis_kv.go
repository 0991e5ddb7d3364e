// internal/storage/redis_kv.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisKV is a KVStore on redis. Expiry is delegated to redis key TTLs.
type RedisKV struct {
	rdb       *goredis.Client
	namespace string
}

// NewRedisKV connects to addr and verifies the connection. namespace is
// prepended to every key.
func NewRedisKV(ctx context.Context, addr, namespace string) (*RedisKV, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisKV{rdb: rdb, namespace: namespace}, nil
}

func (r *RedisKV) key(k string) string {
	return r.namespace + k
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.rdb.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrKeyNotFound
	}
	return val, err
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}

func (r *RedisKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	iter := r.rdb.Scan(ctx, 0, r.key(prefix)+"*", 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisKV) Close() error {
	return r.rdb.Close()
}

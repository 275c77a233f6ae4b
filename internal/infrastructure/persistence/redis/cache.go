// Package redis holds the optional Redis side of the tuition hub: a JSON
// cache for student records and the shared daily quota counters. The
// ledger itself never lives here.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campus-finance/tuition-hub/config"
)

// ErrCacheMiss means the key is absent or expired.
var ErrCacheMiss = errors.New("redis: cache miss")

const (
	studentPrefix   = "tuition-hub:student:"
	rateLimitPrefix = "tuition-hub:quota:"
)

func StudentKey(studentNo string) string {
	return studentPrefix + studentNo
}

// RateLimitKey names the counter of one (subject, endpoint, UTC day).
func RateLimitKey(subject, endpoint, day string) string {
	return rateLimitPrefix + subject + ":" + endpoint + ":" + day
}

// Cache is a thin JSON layer over a go-redis client.
type Cache struct {
	rdb *redis.Client
}

// Dial connects using the REDIS_* settings and fails if the server does
// not answer PING within DialTimeout.
func Dial(ctx context.Context, cfg config.RedisConfig) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", rdb.Options().Addr, err)
	}
	return &Cache{rdb: rdb}, nil
}

// Wrap uses an already configured client. Tests point it at fake addresses.
func Wrap(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

func (c *Cache) Client() *redis.Client { return c.rdb }

func (c *Cache) Close() error { return c.rdb.Close() }

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Set stores v as JSON. A zero ttl keeps the key forever.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Get decodes the JSON stored at key into dst, or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dst any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

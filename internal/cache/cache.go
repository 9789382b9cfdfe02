// Package cache holds read-through caching for public catalog reads.
//
// Entries are namespaced by a generation number. Any write that can change
// what the catalog shows bumps the generation, which orphans every cached
// entry at once; orphans age out with their TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix     = "rewear:catalog:"
	generationKey = keyPrefix + "gen"
)

// Ticket pins a lookup to the generation it observed. Set writes under that
// generation, so a value loaded before an invalidation lands in an orphaned
// namespace instead of the live one.
type Ticket struct {
	Key string
	Gen int64
}

// Cache stores JSON-encoded catalog responses.
type Cache interface {
	// Get decodes the entry for key into dst and reports whether it was found.
	// The ticket must be passed to Set when filling a miss.
	Get(ctx context.Context, key string, dst any) (Ticket, bool, error)
	Set(ctx context.Context, t Ticket, v any) error
	// Invalidate drops every entry. Call it after the write has committed.
	Invalidate(ctx context.Context) error
}

// redisClient is the subset of *redis.Client the cache uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Close() error
}

type RedisCache struct {
	client redisClient
	ttl    time.Duration
}

// NewRedis connects to the Redis server at url (redis://host:port/db) and
// checks it is reachable.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string, dst any) (Ticket, bool, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Ticket{}, false, fmt.Errorf("get generation: %w", err)
	}
	t := Ticket{Key: key, Gen: gen}

	data, err := c.client.Get(ctx, entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return t, false, nil
	}
	if err != nil {
		return t, false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return t, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return t, true, nil
}

func (c *RedisCache) Set(ctx context.Context, t Ticket, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", t.Key, err)
	}
	if err := c.client.Set(ctx, entryKey(t.Gen, t.Key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", t.Key, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("bump generation: %w", err)
	}
	return nil
}

func entryKey(gen int64, key string) string {
	return keyPrefix + strconv.FormatInt(gen, 10) + ":" + key
}

// Nop is used when no Redis server is configured. It never hits.
type Nop struct{}

func (Nop) Get(_ context.Context, key string, _ any) (Ticket, bool, error) {
	return Ticket{Key: key}, false, nil
}

func (Nop) Set(context.Context, Ticket, any) error { return nil }
func (Nop) Invalidate(context.Context) error      { return nil }

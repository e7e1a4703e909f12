// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package minifest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// Entry is a cached mini-manifest.
type Entry struct {
	Manifest string `json:"manifest"`
	ETag     string `json:"etag"`
}

// Cache stores mini-manifests by key.
type Cache interface {
	// Get returns the entry for key and whether it was present.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores an entry.
	Set(ctx context.Context, key string, entry Entry) error
	// Delete removes an entry.
	Delete(ctx context.Context, key string) error
	// Close releases the cache resources.
	Close() error
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	Address string        `help:"redis url of the shared mini-manifest cache, the in-process cache is used when empty" default:""`
	TTL     time.Duration `help:"how long a cached mini-manifest is kept in redis, 0 keeps it until invalidated" default:"0s"`
	Size    int           `help:"number of mini-manifests kept by the in-process cache" default:"1024"`
}

// OpenCache opens the configured cache.
func OpenCache(ctx context.Context, log *zap.Logger, config CacheConfig) (Cache, error) {
	if config.Address == "" {
		log.Info("mini-manifest cache is in process", zap.Int("size", config.Size))
		return NewLRUCache(config.Size)
	}
	log.Info("mini-manifest cache in redis", zap.String("address", config.Address))
	return OpenRedisCache(ctx, config.Address, config.TTL)
}

// RedisCache keeps mini-manifests in redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// OpenRedisCache connects to the redis server at address and checks the
// connection.
func OpenRedisCache(ctx context.Context, address string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(address)
	if err != nil {
		return nil, Error.New("invalid redis url: %v", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, Error.New("ping failed: %v", errs.Combine(err, client.Close()))
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// Get implements Cache.
func (cache *RedisCache) Get(ctx context.Context, key string) (_ Entry, _ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := cache.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, Error.Wrap(err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, Error.Wrap(err)
	}
	return entry, true, nil
}

// Set implements Cache.
func (cache *RedisCache) Set(ctx context.Context, key string, entry Entry) (err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := json.Marshal(entry)
	if err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(cache.client.Set(ctx, key, data, cache.ttl).Err())
}

// Delete implements Cache.
func (cache *RedisCache) Delete(ctx context.Context, key string) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(cache.client.Del(ctx, key).Err())
}

// Close implements Cache.
func (cache *RedisCache) Close() error {
	return Error.Wrap(cache.client.Close())
}

// LRUCache keeps the most recently used mini-manifests in memory.
type LRUCache struct {
	entries *lru.Cache
}

// NewLRUCache creates an in-process cache holding up to size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &LRUCache{entries: entries}, nil
}

// Get implements Cache.
func (cache *LRUCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	value, ok := cache.entries.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	return value.(Entry), true, nil
}

// Set implements Cache.
func (cache *LRUCache) Set(ctx context.Context, key string, entry Entry) error {
	cache.entries.Add(key, entry)
	return nil
}

// Delete implements Cache.
func (cache *LRUCache) Delete(ctx context.Context, key string) error {
	cache.entries.Remove(key)
	return nil
}

// Close implements Cache.
func (cache *LRUCache) Close() error {
	cache.entries.Purge()
	return nil
}

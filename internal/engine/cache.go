package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Search results per normalized query: a bounded, expiring LRU in memory,
// optionally backed by Redis so warm entries survive a restart.
// Audio is never cached.
var results atomic.Pointer[resultCache]

var (
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
)

type resultCache struct {
	mem *expirable.LRU[string, []Video]
	rdb *redis.Client // nil: memory only
	ttl time.Duration
}

// InitCache replaces the search result cache. An empty redisURL keeps it in
// memory; ttl <= 0 disables caching. maxEntries bounds the in-memory tier.
func InitCache(redisURL string, ttl time.Duration, maxEntries int) {
	if old := results.Swap(nil); old != nil && old.rdb != nil {
		old.rdb.Close()
	}
	if ttl <= 0 {
		slog.Info("cache: disabled")
		return
	}
	if maxEntries <= 0 {
		maxEntries = 500
	}
	c := &resultCache{
		mem: expirable.NewLRU[string, []Video](maxEntries, nil, ttl),
		ttl: ttl,
	}
	if redisURL != "" {
		c.rdb = dialRedis(redisURL)
	}
	results.Store(c)
	slog.Info("cache: initialized", slog.Duration("ttl", ttl),
		slog.Int("max_entries", maxEntries), slog.Bool("redis", c.rdb != nil))
}

func dialRedis(redisURL string) *redis.Client {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Warn("cache: invalid redis URL, memory only", slog.Any("error", err))
		return nil
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("cache: redis unreachable, memory only", slog.Any("error", err))
		rdb.Close()
		return nil
	}
	slog.Info("cache: redis connected", slog.String("addr", opts.Addr))
	return rdb
}

// NormalizeQuery folds case and collapses whitespace, so queries that differ
// only in spacing or capitalisation share one cache entry.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// SearchKey is the cache key for query.
func SearchKey(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return fmt.Sprintf("gt:search:%x", sum[:12])
}

// CacheGet returns the cached videos for query, consulting Redis on a memory
// miss and promoting what it finds.
func CacheGet(ctx context.Context, query string) ([]Video, bool) {
	c := results.Load()
	if c == nil {
		cacheMisses.Add(1)
		return nil, false
	}
	key := SearchKey(query)
	if videos, ok := c.mem.Get(key); ok {
		cacheHits.Add(1)
		return slices.Clone(videos), true
	}
	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var videos []Video
			if json.Unmarshal(data, &videos) == nil && len(videos) > 0 {
				slog.Debug("cache: redis hit", slog.String("key", key))
				c.mem.Add(key, videos)
				cacheHits.Add(1)
				return slices.Clone(videos), true
			}
		} else if !errors.Is(err, redis.Nil) {
			slog.Debug("cache: redis get failed", slog.Any("error", err))
		}
	}
	cacheMisses.Add(1)
	return nil, false
}

// CacheSet stores a non-empty result list for query.
func CacheSet(ctx context.Context, query string, videos []Video) {
	c := results.Load()
	if c == nil || len(videos) == 0 {
		return
	}
	key := SearchKey(query)
	videos = slices.Clone(videos)
	c.mem.Add(key, videos)

	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(videos)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Debug("cache: redis set failed", slog.Any("error", err))
	}
}

// CacheLen reports the number of in-memory entries.
func CacheLen() int {
	c := results.Load()
	if c == nil {
		return 0
	}
	return c.mem.Len()
}

// CacheStats returns current cache hit/miss counters.
func CacheStats() (hits, misses int64) {
	return cacheHits.Load(), cacheMisses.Load()
}

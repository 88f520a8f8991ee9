// Package suggestcache fronts the prefix index with a Redis cache, keyed by
// normalized prefix and query shape, with singleflight de-duplication so a
// thundering herd of identical cold queries computes the index lookup once.
// Invalidation walks the prefix chain of a changed phrase (every shorter
// prefix of it), since a count change at "weather forecast" can alter the
// cached top-K for "w", "we", "wea", and so on. This is modeled on
// Distributed-Search-Analytics-Platform's QueryCache, adapted from a
// hashed-query key to a prefix-chain key.
package suggestcache

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/evgenyvinnik/wordsuggest/internal/rank"
)

const keyPrefix = "sugg:"

// NumBuckets is the number of user buckets a userID hashes into for the
// purpose of cache-key cardinality (spec.md §9, "personalization vs. cache
// cardinality"): caching the fully personalized, ranked response per
// individual user would collapse the hit rate to near zero, so requests are
// grouped into a small number of buckets and the cached entry for a bucket
// reflects whichever user happened to populate it first until it expires.
const NumBuckets = 64

// Bucket maps a userID to one of NumBuckets buckets. The anonymous user
// (empty userID) always maps to bucket 0.
func Bucket(userID string) int {
	if userID == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % NumBuckets)
}

// Config controls cache TTL.
type Config struct {
	TTL time.Duration
}

// DefaultConfig mirrors spec.md §6's suggestion_ttl_s knob.
var DefaultConfig = Config{TTL: 60 * time.Second}

// Cache wraps a Redis client with singleflight de-duplication and hit/miss
// counters.
type Cache struct {
	rdb   *redis.Client
	cfg   Config
	group singleflight.Group
	log   *log.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New builds a Cache over the given Redis client.
func New(rdb *redis.Client, cfg Config, logger *log.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig.TTL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{rdb: rdb, cfg: cfg, log: logger}
}

func buildKey(prefix string, limit int, fuzzy bool, bucket int) string {
	return fmt.Sprintf("%s%s:%d:%t:%d", keyPrefix, prefix, limit, fuzzy, bucket)
}

// Get reads a cached, already-ranked suggestion list. Returns (nil, false)
// on miss or error.
func (c *Cache) Get(ctx context.Context, prefix string, limit int, fuzzy bool, bucket int) ([]rank.Scored, bool) {
	key := buildKey(prefix, limit, fuzzy, bucket)
	data, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		c.misses.Add(1)
		if err != redis.Nil {
			c.log.Warn("suggestcache get failed", "key", key, "err", err)
		}
		return nil, false
	}
	var scored []rank.Scored
	if err := json.Unmarshal([]byte(data), &scored); err != nil {
		c.log.Warn("suggestcache unmarshal failed", "key", key, "err", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return scored, true
}

// Set stores a ranked suggestion list under the cache's configured TTL.
func (c *Cache) Set(ctx context.Context, prefix string, limit int, fuzzy bool, bucket int, scored []rank.Scored) {
	key := buildKey(prefix, limit, fuzzy, bucket)
	data, err := json.Marshal(scored)
	if err != nil {
		c.log.Warn("suggestcache marshal failed", "key", key, "err", err)
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.cfg.TTL).Err(); err != nil {
		c.log.Warn("suggestcache set failed", "key", key, "err", err)
	}
}

// GetOrCompute returns a cached suggestion list if present; otherwise it
// calls computeFn exactly once per distinct (prefix, limit, fuzzy, bucket)
// key even under concurrent callers, caches the result, and returns it.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	prefix string,
	limit int,
	fuzzy bool,
	bucket int,
	computeFn func() ([]rank.Scored, error),
) ([]rank.Scored, error) {
	if scored, ok := c.Get(ctx, prefix, limit, fuzzy, bucket); ok {
		return scored, nil
	}
	key := buildKey(prefix, limit, fuzzy, bucket)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if scored, ok := c.Get(ctx, prefix, limit, fuzzy, bucket); ok {
			return scored, nil
		}
		scored, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, prefix, limit, fuzzy, bucket, scored)
		return scored, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]rank.Scored), nil
}

// InvalidatePrefixChain deletes every cached key for phrase's prefixes
// (phrase itself down to its first rune), across both fuzzy settings and
// any limit, since a single count change can shift top-K at any ancestor
// prefix. It scans key space by pattern rather than tracking limits
// explicitly, since callers may have cached the same prefix under several
// distinct limits.
func (c *Cache) InvalidatePrefixChain(ctx context.Context, phrase string) error {
	runes := []rune(phrase)
	var deleted int64
	for i := 1; i <= len(runes); i++ {
		prefix := string(runes[:i])
		pattern := keyPrefix + prefix + ":*"
		n, err := c.deleteByPattern(ctx, pattern)
		if err != nil {
			return fmt.Errorf("suggestcache: invalidating prefix %q: %w", prefix, err)
		}
		deleted += n
	}
	if deleted > 0 {
		c.log.Debug("suggestcache invalidated prefix chain", "phrase", phrase, "keys_deleted", deleted)
	}
	return nil
}

// InvalidatePrefixes deletes every cached key for each of the given exact
// prefixes (not their ancestors). Callers that already know precisely
// which node top-K lists changed — trie.Index.Increment/Insert/Remove
// return this set directly — use this instead of InvalidatePrefixChain to
// avoid re-deriving and re-deleting the whole ancestor chain.
func (c *Cache) InvalidatePrefixes(ctx context.Context, prefixes []string) error {
	var deleted int64
	for _, prefix := range prefixes {
		n, err := c.deleteByPattern(ctx, keyPrefix+prefix+":*")
		if err != nil {
			return fmt.Errorf("suggestcache: invalidating prefix %q: %w", prefix, err)
		}
		deleted += n
	}
	if deleted > 0 {
		c.log.Debug("suggestcache invalidated touched prefixes", "count", len(prefixes), "keys_deleted", deleted)
	}
	return nil
}

// InvalidateAll flushes every cached suggestion key, used after a full
// index rebuild.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	n, err := c.deleteByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("suggestcache: invalidating all: %w", err)
	}
	c.log.Info("suggestcache invalidated all", "keys_deleted", n)
	return nil
}

func (c *Cache) deleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var cursor uint64
	var deleted int64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// Stats returns the cumulative hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Package history maintains each user's personal search history as a
// capped, TTL'd Redis list, so the Ranker can boost phrases a specific user
// has searched before without keeping any of that state in the trie itself.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config controls how much history is kept and for how long.
type Config struct {
	Cap int           // max entries retained per user
	TTL time.Duration // history expires if the user goes quiet this long
}

// DefaultConfig mirrors spec.md §4.5.
var DefaultConfig = Config{
	Cap: 50,
	TTL: 30 * 24 * time.Hour,
}

// Store is the personal history tracker.
type Store struct {
	rdb *redis.Client
	cfg Config
}

// New builds a Store over the given Redis client.
func New(rdb *redis.Client, cfg Config) *Store {
	if cfg.Cap <= 0 {
		cfg.Cap = DefaultConfig.Cap
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig.TTL
	}
	return &Store{rdb: rdb, cfg: cfg}
}

func key(userID string) string {
	return fmt.Sprintf("history:%s", userID)
}

func countsKey(userID string) string {
	return fmt.Sprintf("history:counts:%s", userID)
}

// Record moves phrase to the front of userID's history, trims it to the
// configured cap, refreshes its TTL, and bumps the phrase's per-user
// occurrence count. Any existing occurrence of phrase is removed first, so
// a repeat search moves the entry to the front instead of leaving a stale
// duplicate slot behind (spec.md §4.5).
func (s *Store) Record(ctx context.Context, userID, phrase string, now time.Time) error {
	if userID == "" {
		return nil
	}
	k, ck := key(userID), countsKey(userID)

	pipe := s.rdb.TxPipeline()
	pipe.LRem(ctx, k, 0, phrase)
	pipe.LPush(ctx, k, phrase)
	pipe.LTrim(ctx, k, 0, int64(s.cfg.Cap-1))
	pipe.Expire(ctx, k, s.cfg.TTL)
	pipe.HIncrBy(ctx, ck, phrase, 1)
	pipe.Expire(ctx, ck, s.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("history: recording phrase: %w", err)
	}
	return nil
}

// Recent returns the user's most recent phrases, most recent first.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]string, error) {
	if userID == "" || limit <= 0 {
		return nil, nil
	}
	vals, err := s.rdb.LRange(ctx, key(userID), 0, int64(limit-1)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("history: reading recent phrases: %w", err)
	}
	return vals, nil
}

// Counts returns the user's per-phrase occurrence counts, for use as
// rank.Snapshot.PersonalCounts.
func (s *Store) Counts(ctx context.Context, userID string) (map[string]int64, error) {
	if userID == "" {
		return nil, nil
	}
	raw, err := s.rdb.HGetAll(ctx, countsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("history: reading counts: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for phrase, str := range raw {
		var n int64
		if _, scanErr := fmt.Sscanf(str, "%d", &n); scanErr == nil {
			out[phrase] = n
		}
	}
	return out, nil
}

// Clear removes all history for a user.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, key(userID), countsKey(userID)).Err(); err != nil {
		return fmt.Errorf("history: clearing user history: %w", err)
	}
	return nil
}

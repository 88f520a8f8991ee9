// Package trending maintains a Redis-backed trending window: a sorted set
// of phrase scores that decay exponentially toward zero, so that a burst of
// recent activity dominates the ranking without a background sweep ever
// having to touch every member. Decay is applied lazily, at the moment a
// member is read or written, the same trick WikiSurge's TrendingScorer uses
// for its Wikipedia edit-rate trending set.
package trending

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	scoreKey = "trending"
	tsKey    = "trending:ts"
	tsZKey   = "trending:ts_z"
)

// Config controls decay rate, the eviction window, and set size.
type Config struct {
	Tau      time.Duration // exp(-Δt/Tau) decay constant (spec.md §6 trending_tau_min)
	Window   time.Duration // entries with no bump in this long are evicted (trending_window_min)
	MaxItems int64         // sorted set is additionally pruned back to this size
}

// DefaultConfig mirrors spec.md §6: trending_window_min=60, trending_tau_min=10.
var DefaultConfig = Config{
	Tau:      10 * time.Minute,
	Window:   60 * time.Minute,
	MaxItems: 10000,
}

// Window is the trending score tracker.
type Window struct {
	rdb *redis.Client
	cfg Config
	log *log.Logger
}

// New builds a Window over the given Redis client.
func New(rdb *redis.Client, cfg Config, logger *log.Logger) *Window {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Tau <= 0 {
		cfg.Tau = DefaultConfig.Tau
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig.Window
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultConfig.MaxItems
	}
	return &Window{rdb: rdb, cfg: cfg, log: logger}
}

// decayFactor returns the multiplicative decay for a gap of elapsed time,
// per spec.md §4.4's exp(-Δt/τ) formula.
func (w *Window) decayFactor(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	return math.Exp(-elapsed.Seconds() / w.cfg.Tau.Seconds())
}

// Bump records an occurrence of phrase, decaying its prior score toward the
// current moment before adding delta. Safe for concurrent callers on
// distinct or identical phrases; Redis serializes the read-modify-write via
// the hash and sorted-set commands issued per call.
func (w *Window) Bump(ctx context.Context, phrase string, delta float64, now time.Time) error {
	prevScore, prevTs, err := w.readRaw(ctx, phrase)
	if err != nil {
		return fmt.Errorf("trending: reading prior score: %w", err)
	}

	elapsed := now.Sub(prevTs)
	decayed := prevScore * w.decayFactor(elapsed)
	next := decayed + delta

	pipe := w.rdb.TxPipeline()
	pipe.ZAdd(ctx, scoreKey, redis.Z{Score: next, Member: phrase})
	pipe.HSet(ctx, tsKey, phrase, now.Unix())
	pipe.ZAdd(ctx, tsZKey, redis.Z{Score: float64(now.Unix()), Member: phrase})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("trending: writing score: %w", err)
	}

	if err := w.pruneIfNeeded(ctx, now); err != nil {
		w.log.Warn("trending prune failed", "err", err)
	}
	return nil
}

func (w *Window) readRaw(ctx context.Context, phrase string) (score float64, ts time.Time, err error) {
	score, err = w.rdb.ZScore(ctx, scoreKey, phrase).Result()
	if err == redis.Nil {
		score = 0
	} else if err != nil {
		return 0, time.Time{}, err
	}

	tsStr, err := w.rdb.HGet(ctx, tsKey, phrase).Result()
	if err == redis.Nil {
		return score, time.Now(), nil
	} else if err != nil {
		return 0, time.Time{}, err
	}
	var unix int64
	if _, scanErr := fmt.Sscanf(tsStr, "%d", &unix); scanErr != nil {
		return score, time.Now(), nil
	}
	return score, time.Unix(unix, 0), nil
}

// pruneIfNeeded first evicts any entry whose last bump is older than the
// configured window (spec.md §4.4: "entries older than the window...are
// evicted"), then trims the remainder back to MaxItems by lowest score.
func (w *Window) pruneIfNeeded(ctx context.Context, now time.Time) error {
	if err := w.evictExpired(ctx, now); err != nil {
		return err
	}
	return w.trimToMaxItems(ctx)
}

// evictExpired removes every phrase whose last bump predates now-Window,
// using tsZKey (a sorted set keyed by bump timestamp) to find them without
// scanning the whole trending set.
func (w *Window) evictExpired(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-w.cfg.Window).Unix()
	stale, err := w.rdb.ZRangeByScore(ctx, tsZKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	anySlice := make([]interface{}, len(stale))
	for i, m := range stale {
		anySlice[i] = m
	}
	pipe := w.rdb.TxPipeline()
	pipe.ZRem(ctx, scoreKey, anySlice...)
	pipe.ZRem(ctx, tsZKey, anySlice...)
	pipe.HDel(ctx, tsKey, stale...)
	_, err = pipe.Exec(ctx)
	return err
}

func (w *Window) trimToMaxItems(ctx context.Context) error {
	count, err := w.rdb.ZCard(ctx, scoreKey).Result()
	if err != nil {
		return err
	}
	if count <= w.cfg.MaxItems {
		return nil
	}
	overflow := count - w.cfg.MaxItems
	members, err := w.rdb.ZRange(ctx, scoreKey, 0, overflow-1).Result()
	if err != nil {
		return err
	}
	pipe := w.rdb.TxPipeline()
	pipe.ZRemRangeByRank(ctx, scoreKey, 0, overflow-1)
	if len(members) > 0 {
		pipe.HDel(ctx, tsKey, members...)
		anySlice := make([]interface{}, len(members))
		for i, m := range members {
			anySlice[i] = m
		}
		pipe.ZRem(ctx, tsZKey, anySlice...)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Score returns phrase's current decayed score without mutating storage. A
// phrase whose last bump predates the eviction window reads as 0 even if it
// has not yet been swept by a concurrent Bump's prune pass.
func (w *Window) Score(ctx context.Context, phrase string, now time.Time) (float64, error) {
	score, ts, err := w.readRaw(ctx, phrase)
	if err != nil {
		return 0, fmt.Errorf("trending: reading score: %w", err)
	}
	elapsed := now.Sub(ts)
	if elapsed > w.cfg.Window {
		return 0, nil
	}
	return score * w.decayFactor(elapsed), nil
}

// Top returns the n highest decayed scores as a phrase->score map, suitable
// for feeding into rank.Snapshot.TrendingScores after normalization.
func (w *Window) Top(ctx context.Context, n int, now time.Time) (map[string]float64, error) {
	if n <= 0 {
		return map[string]float64{}, nil
	}
	// Oversample from the raw set since decay can reorder near the boundary.
	raw, err := w.rdb.ZRevRangeWithScores(ctx, scoreKey, 0, int64(n*3)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("trending: reading top set: %w", err)
	}
	if len(raw) == 0 {
		return map[string]float64{}, nil
	}

	members := make([]string, len(raw))
	for i, z := range raw {
		members[i] = z.Member.(string)
	}
	tsVals, err := w.rdb.HMGet(ctx, tsKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("trending: reading timestamps: %w", err)
	}

	decayed := make([]scoredPhrase, 0, len(raw))
	var maxScore float64
	for i, z := range raw {
		ts := now
		if s, ok := tsVals[i].(string); ok {
			var unix int64
			if _, scanErr := fmt.Sscanf(s, "%d", &unix); scanErr == nil {
				ts = time.Unix(unix, 0)
			}
		}
		elapsed := now.Sub(ts)
		if elapsed > w.cfg.Window {
			continue
		}
		val := z.Score * w.decayFactor(elapsed)
		decayed = append(decayed, scoredPhrase{phrase: members[i], score: val})
		if val > maxScore {
			maxScore = val
		}
	}

	sortDecayedDesc(decayed)
	if len(decayed) > n {
		decayed = decayed[:n]
	}

	out := make(map[string]float64, len(decayed))
	for _, d := range decayed {
		normalized := 0.0
		if maxScore > 0 {
			normalized = d.score / maxScore
		}
		out[d.phrase] = normalized
	}
	return out, nil
}

type scoredPhrase struct {
	phrase string
	score  float64
}

func sortDecayedDesc(s []scoredPhrase) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].score > s[j-1].score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// Package suggest is the computational core of the suggestion service: it
// composes the prefix index, Ranker, trending window, personal history,
// moderation filter, ingestion buffer, persistence store, and rebuilder
// into the eight operations the rest of the system calls. Every blocking
// operation here threads its caller's context.Context through to Redis and
// Postgres, and returns the internal/svcerr taxonomy rather than bare
// errors so callers (pkg/server, cmd/suggestd) can branch on cause.
//
// This supersedes the go-patricia-backed Completer that used to live here:
// internal/trie's arena trie and internal/suggestcache's Redis front
// already do what HotCache and patricia.Trie did, generalized to a
// concurrent, multi-generation index with real ranking behind it.
package suggest

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/wordsuggest/internal/history"
	"github.com/evgenyvinnik/wordsuggest/internal/ingest"
	"github.com/evgenyvinnik/wordsuggest/internal/metrics"
	"github.com/evgenyvinnik/wordsuggest/internal/moderate"
	"github.com/evgenyvinnik/wordsuggest/internal/normalize"
	"github.com/evgenyvinnik/wordsuggest/internal/rank"
	"github.com/evgenyvinnik/wordsuggest/internal/rebuild"
	"github.com/evgenyvinnik/wordsuggest/internal/store"
	"github.com/evgenyvinnik/wordsuggest/internal/suggestcache"
	"github.com/evgenyvinnik/wordsuggest/internal/trending"
	"github.com/evgenyvinnik/wordsuggest/internal/trie"
	"github.com/evgenyvinnik/wordsuggest/internal/svcerr"
)

// Config holds the tunables spec.md §6 names: limits, weights, and the
// sample size used to pull candidate trending scores per query.
type Config struct {
	MaxPhraseLen       int
	MinLimit           int
	MaxLimit           int
	TrendingSampleSize int
	Weights            rank.Weights
}

// DefaultConfig mirrors spec.md §6's configuration knobs.
var DefaultConfig = Config{
	MaxPhraseLen:       normalize.MaxLength,
	MinLimit:           1,
	MaxLimit:           20,
	TrendingSampleSize: 500,
	Weights:            rank.DefaultWeights,
}

// Suggestion is one ranked candidate as returned to a caller, matching
// spec.md §6's suggestion-request output shape.
type Suggestion struct {
	Phrase     string
	Count      int64
	Score      float64
	Components rank.Components
	IsFuzzy    bool
	Distance   int
}

// Result is a full suggestion response, including the §6 response meta.
type Result struct {
	Suggestions    []Suggestion
	ResponseTimeMs float64
	Cached         bool
}

// Service composes every component into the operations spec.md §6 names.
type Service struct {
	cfg Config

	index      *trie.Index
	cache      *suggestcache.Cache
	trending   *trending.Window
	history    *history.Store
	buffer     *ingest.Buffer
	store      *store.Store
	rebuilder  *rebuild.Rebuilder
	moderation *moderate.Filter
	metrics    *metrics.Metrics
	log        *log.Logger
}

// New composes a Service from its already-constructed dependencies. store
// and buffer may be nil in tests that exercise only the in-memory path.
func New(
	index *trie.Index,
	cache *suggestcache.Cache,
	trendingWindow *trending.Window,
	historyStore *history.Store,
	buffer *ingest.Buffer,
	persist *store.Store,
	rebuilder *rebuild.Rebuilder,
	moderation *moderate.Filter,
	m *metrics.Metrics,
	cfg Config,
	logger *log.Logger,
) *Service {
	if cfg.MinLimit <= 0 {
		cfg.MinLimit = DefaultConfig.MinLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultConfig.MaxLimit
	}
	if cfg.MaxPhraseLen <= 0 {
		cfg.MaxPhraseLen = DefaultConfig.MaxPhraseLen
	}
	if cfg.TrendingSampleSize <= 0 {
		cfg.TrendingSampleSize = DefaultConfig.TrendingSampleSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:        cfg,
		index:      index,
		cache:      cache,
		trending:   trendingWindow,
		history:    historyStore,
		buffer:     buffer,
		store:      persist,
		rebuilder:  rebuilder,
		moderation: moderation,
		metrics:    m,
		log:        logger,
	}
}

// Suggest returns ranked completions for prefix. Cache and trending
// outages degrade the response (scores fall back to 0 for the affected
// component, or the cache is bypassed) rather than failing the request;
// only an invalid prefix, a cancelled context, or an index-level failure
// returns an error.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int, userID string, fuzzy bool) (*Result, error) {
	start := time.Now()

	if limit < s.cfg.MinLimit || limit > s.cfg.MaxLimit {
		return nil, svcerr.New(svcerr.CodeInvalidInput, "limit out of range")
	}
	normalized, err := normalize.Normalize(prefix, s.cfg.MaxPhraseLen)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, svcerr.Wrap(svcerr.CodeCancelled, "request cancelled", err)
	}

	bucket := suggestcache.Bucket(userID)
	cached := true
	scored, err := s.cache.GetOrCompute(ctx, normalized, limit, fuzzy, bucket, func() ([]rank.Scored, error) {
		cached = false
		return s.computeRanked(ctx, normalized, limit, fuzzy, userID)
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, svcerr.Wrap(svcerr.CodeCancelled, "request cancelled", err)
		}
		return nil, err
	}

	if s.metrics != nil {
		if cached {
			s.metrics.RecordCacheHit()
		} else {
			s.metrics.RecordCacheMiss()
		}
	}

	out := make([]Suggestion, 0, len(scored))
	fuzzyHit := false
	for _, sc := range scored {
		isFuzzy := sc.EditDistance > 0
		fuzzyHit = fuzzyHit || isFuzzy
		out = append(out, Suggestion{
			Phrase:     sc.Phrase,
			Count:      sc.Count,
			Score:      sc.Score,
			Components: sc.Components,
			IsFuzzy:    isFuzzy,
			Distance:   sc.EditDistance,
		})
	}

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.RecordQuery(len(out), fuzzyHit, elapsed)
	}

	return &Result{
		Suggestions:    out,
		ResponseTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		Cached:         cached,
	}, nil
}

// computeRanked performs the uncached path: index lookup, snapshot
// assembly from trending/history (each fail-soft to a zero component on
// error), and ranking.
func (s *Service) computeRanked(ctx context.Context, prefix string, limit int, fuzzy bool, userID string) ([]rank.Scored, error) {
	entries := s.index.Lookup(prefix, limit, fuzzy)
	if len(entries) == 0 {
		return []rank.Scored{}, nil
	}

	now := time.Now()
	candidates := make([]rank.Candidate, len(entries))
	for i, e := range entries {
		candidates[i] = rank.Candidate{
			Phrase:         e.Phrase,
			Count:          e.Count,
			LastUpdatedSec: e.LastUpdated.Unix(),
			EditDistance:   e.Distance,
		}
	}

	snap := rank.Snapshot{
		MaxCount:   s.index.MaxCount(),
		NowUnixSec: now.Unix(),
		PrefixLen:  len([]rune(prefix)),
	}

	if s.history != nil && userID != "" {
		counts, err := s.history.Counts(ctx, userID)
		if err != nil {
			s.log.Warn("suggest: personal history unavailable, scoring personal component as 0", "err", err)
		} else {
			snap.PersonalCounts = counts
		}
	}

	if s.trending != nil {
		top, err := s.trending.Top(ctx, s.cfg.TrendingSampleSize, now)
		if err != nil {
			s.log.Warn("suggest: trending unavailable, scoring trending component as 0", "err", err)
		} else {
			snap.TrendingScores = top
		}
	}

	return rank.Rank(candidates, snap, s.cfg.Weights), nil
}

// LogSearch records that userID (if any) searched query: it enqueues a
// count delta into the ingestion buffer and, if the phrase passes
// moderation, records it in the user's personal history. It never returns
// an error for a full buffer; overflow is only counted (internal/metrics),
// matching spec.md §6's "never fails the caller" contract.
func (s *Service) LogSearch(ctx context.Context, query, userID, sessionID string) error {
	normalized, err := normalize.Normalize(query, s.cfg.MaxPhraseLen)
	if err != nil {
		return err
	}
	filtered := s.moderation != nil && s.moderation.IsFiltered(normalized)

	now := time.Now()
	if s.buffer != nil {
		if ok := s.buffer.Enqueue(normalized, 1, now); !ok && s.metrics != nil {
			s.metrics.RecordIngestDropped()
		} else if s.metrics != nil {
			s.metrics.RecordIngestEnqueued()
		}
	}
	if s.trending != nil {
		if err := s.trending.Bump(ctx, normalized, 1, now); err != nil {
			s.log.Warn("suggest: trending bump failed", "phrase", normalized, "err", err)
		}
	}
	if s.history != nil && userID != "" && !filtered {
		if err := s.history.Record(ctx, userID, normalized, now); err != nil {
			s.log.Warn("suggest: history record failed", "user", userID, "err", err)
		}
	}
	return nil
}

// Trending returns the top limit trending phrases, excluding filtered
// ones.
func (s *Service) Trending(ctx context.Context, limit int) ([]Suggestion, error) {
	if limit < 1 || limit > 50 {
		return nil, svcerr.New(svcerr.CodeInvalidInput, "limit out of range")
	}
	if s.trending == nil {
		return []Suggestion{}, nil
	}
	top, err := s.trending.Top(ctx, limit, time.Now())
	if err != nil {
		return nil, svcerr.Wrap(svcerr.CodeCacheUnavailable, "trending window unavailable", err)
	}

	out := make([]Suggestion, 0, len(top))
	for phrase, score := range top {
		if s.moderation != nil && s.moderation.IsFiltered(phrase) {
			continue
		}
		out = append(out, Suggestion{Phrase: phrase, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Phrase < out[j].Phrase
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Rebuild performs a synchronous full index rebuild from persistence and
// returns after the swap completes. Concurrent calls are rejected with
// svcerr.CodeRebuildInProgress.
func (s *Service) Rebuild(ctx context.Context) error {
	start := time.Now()
	err := s.rebuilder.Run(ctx)
	if s.metrics != nil {
		s.metrics.RecordRebuild(time.Since(start), err == nil)
	}
	if err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			s.log.Warn("suggest: cache invalidation after rebuild failed", "err", err)
		}
	}
	if s.metrics != nil {
		s.metrics.UpdateTrieSize(s.index.Stats()["phraseCount"])
	}
	return nil
}

// ClearCache drops every cached suggestion-cache entry.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateAll(ctx)
}

// AddPhrase normalizes phrase, inserts it into the live index at an
// absolute count, upserts it into persistence, and invalidates every
// affected cache key along its prefix chain.
func (s *Service) AddPhrase(ctx context.Context, phrase string, count int64) error {
	normalized, err := normalize.Normalize(phrase, s.cfg.MaxPhraseLen)
	if err != nil {
		return err
	}
	now := time.Now()
	if _, err := s.index.Insert(normalized, count, now); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordTrieInsert()
		s.metrics.UpdateTrieSize(s.index.Stats()["phraseCount"])
	}
	if s.store != nil {
		if err := s.store.Upsert(ctx, normalized, count, now); err != nil {
			return svcerr.Wrap(svcerr.CodePersistenceUnavailable, "upserting phrase", err)
		}
	}
	// Not tapped into an in-progress rebuild: rebuild.Tap replays deltas
	// onto the next generation's Builder, but this is an absolute set. If a
	// rebuild's source scan is concurrently in flight, it picks this row up
	// directly from persistence (either in this generation, if the scan
	// hasn't passed it yet, or the next one otherwise).
	if s.cache != nil {
		if err := s.cache.InvalidatePrefixChain(ctx, normalized); err != nil {
			s.log.Warn("suggest: cache invalidation after add-phrase failed", "phrase", normalized, "err", err)
		}
	}
	return nil
}

// FilterPhrase adds phrase to the moderation blocklist and invalidates its
// cached prefix chain so filtered results disappear from subsequent reads.
func (s *Service) FilterPhrase(ctx context.Context, phrase, reason string) error {
	normalized, err := normalize.Normalize(phrase, s.cfg.MaxPhraseLen)
	if err != nil {
		return err
	}
	if err := s.moderation.Block(ctx, normalized, reason); err != nil {
		return svcerr.Wrap(svcerr.CodePersistenceUnavailable, "blocking phrase", err)
	}
	if s.cache != nil {
		if err := s.cache.InvalidatePrefixChain(ctx, normalized); err != nil {
			s.log.Warn("suggest: cache invalidation after filter-phrase failed", "phrase", normalized, "err", err)
		}
	}
	return nil
}

// UnfilterPhrase removes phrase from the moderation blocklist and
// invalidates its cached prefix chain.
func (s *Service) UnfilterPhrase(ctx context.Context, phrase string) error {
	normalized, err := normalize.Normalize(phrase, s.cfg.MaxPhraseLen)
	if err != nil {
		return err
	}
	if err := s.moderation.Unblock(ctx, normalized); err != nil {
		return svcerr.Wrap(svcerr.CodePersistenceUnavailable, "unblocking phrase", err)
	}
	if s.cache != nil {
		if err := s.cache.InvalidatePrefixChain(ctx, normalized); err != nil {
			s.log.Warn("suggest: cache invalidation after unfilter-phrase failed", "phrase", normalized, "err", err)
		}
	}
	return nil
}

package suggest

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/wordsuggest/internal/ingest"
	"github.com/evgenyvinnik/wordsuggest/internal/metrics"
	"github.com/evgenyvinnik/wordsuggest/internal/rebuild"
	"github.com/evgenyvinnik/wordsuggest/internal/store"
	"github.com/evgenyvinnik/wordsuggest/internal/suggestcache"
	"github.com/evgenyvinnik/wordsuggest/internal/trie"
)

// indexSink applies a flushed ingestion batch to the live index, the
// persistence store, and any in-progress rebuild's shadow queue. It
// implements ingest.Sink and is handed to internal/ingest.New by the
// daemon that owns a Service's dependencies.
type indexSink struct {
	index     *trie.Index
	cache     *suggestcache.Cache
	store     *store.Store
	rebuilder *rebuild.Rebuilder
	metrics   *metrics.Metrics
	log       *log.Logger
}

// NewIndexSink builds the ingest.Sink a Service's ingestion buffer flushes
// into. persist may be nil to run without a persistence tier (index- and
// cache-only).
func NewIndexSink(index *trie.Index, cache *suggestcache.Cache, persist *store.Store, rebuilder *rebuild.Rebuilder, m *metrics.Metrics, logger *log.Logger) ingest.Sink {
	if logger == nil {
		logger = log.Default()
	}
	return &indexSink{index: index, cache: cache, store: persist, rebuilder: rebuilder, metrics: m, log: logger}
}

// Apply persists a flushed batch's net deltas first, then folds them into
// the live index, any in-progress rebuild's shadow queue, and the cache.
// Persistence runs first and the whole call returns its error unmutated
// otherwise: internal/ingest retries a failed Apply by resending the exact
// same batch, so mutating the in-memory index before a persistence failure
// would double-apply those deltas on retry. A batch that exhausts retries
// is dead-lettered by the caller and never reaches the index at all — an
// acceptable gap since a later rebuild repopulates the index from
// persistence, which remains the source of truth.
func (s *indexSink) Apply(ctx context.Context, batch []ingest.Event) error {
	if len(batch) == 0 {
		return nil
	}

	netDeltas := make(map[string]int64, len(batch))
	for _, ev := range batch {
		netDeltas[ev.Phrase] += ev.Delta
	}

	if s.store != nil {
		phrases := make([]string, 0, len(netDeltas))
		deltas := make([]int64, 0, len(netDeltas))
		now := time.Now()
		for phrase, delta := range netDeltas {
			phrases = append(phrases, phrase)
			deltas = append(deltas, delta)
		}
		if err := s.store.IncrementBatch(ctx, phrases, deltas, now); err != nil {
			return err
		}
	}

	var touched []string
	for _, ev := range batch {
		changed, err := s.index.Increment(ev.Phrase, ev.Delta, ev.At)
		if err != nil {
			s.log.Warn("ingest sink: index increment failed", "phrase", ev.Phrase, "err", err)
			continue
		}
		touched = append(touched, changed...)
		if s.rebuilder != nil {
			s.rebuilder.Tap(ev.Phrase, ev.Delta, ev.At)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordTrieInsert()
		s.metrics.UpdateTrieSize(s.index.Stats()["phraseCount"])
	}

	if s.cache != nil && len(touched) > 0 {
		if err := s.cache.InvalidatePrefixes(ctx, touched); err != nil {
			s.log.Warn("ingest sink: cache invalidation failed", "err", err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordIngestFlushed(len(batch))
	}
	return nil
}

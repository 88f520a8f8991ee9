// Package metrics exposes Prometheus counters and histograms for the
// suggestion service: index mutations, query latency, cache hit rate,
// ingestion throughput, and rebuild duration. The shape (a struct of
// pre-registered collectors with one Record* method per event) follows
// alexnthnz-search-autocomplete's internal/metrics.Metrics, which the
// trie there takes as an optional dependency the same way ours does.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the service emits to.
type Metrics struct {
	trieInserts  prometheus.Counter
	trieRemovals prometheus.Counter
	trieSize     prometheus.Gauge

	querySearches  prometheus.Counter
	queryResults   prometheus.Histogram
	queryLatency   prometheus.Histogram
	queryFuzzyHits prometheus.Counter

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	ingestEnqueued     prometheus.Counter
	ingestDropped      prometheus.Counter
	ingestFlushed      prometheus.Counter
	ingestFlushBatch   prometheus.Histogram
	ingestDeadLettered prometheus.Counter

	topKRecomputeDepth prometheus.Histogram

	rebuildDuration prometheus.Histogram
	rebuildTotal    prometheus.Counter
	rebuildFailures prometheus.Counter
}

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		trieInserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_trie_inserts_total",
			Help: "Total number of phrases inserted or incremented in the prefix index.",
		}),
		trieRemovals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_trie_removals_total",
			Help: "Total number of phrases removed from the prefix index.",
		}),
		trieSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "suggest_trie_size",
			Help: "Current number of distinct phrases held in the prefix index.",
		}),
		querySearches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_query_total",
			Help: "Total number of suggestion queries served.",
		}),
		queryResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "suggest_query_result_count",
			Help:    "Number of suggestions returned per query.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		queryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "suggest_query_duration_seconds",
			Help:    "Latency of suggestion queries.",
			Buckets: prometheus.DefBuckets,
		}),
		queryFuzzyHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_query_fuzzy_hits_total",
			Help: "Total number of queries whose result set included a fuzzy match.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_cache_hits_total",
			Help: "Total suggestion cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_cache_misses_total",
			Help: "Total suggestion cache misses.",
		}),
		ingestEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_ingest_enqueued_total",
			Help: "Total events accepted into the ingestion buffer.",
		}),
		ingestDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_ingest_dropped_total",
			Help: "Total events dropped because the ingestion buffer was full.",
		}),
		ingestFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_ingest_flushed_total",
			Help: "Total events successfully flushed from the ingestion buffer.",
		}),
		ingestFlushBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "suggest_ingest_flush_batch_size",
			Help:    "Number of events per ingestion buffer flush.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		ingestDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_ingest_dead_lettered_total",
			Help: "Total events that exhausted flush retries and were dead-lettered.",
		}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "suggest_rebuild_duration_seconds",
			Help:    "Duration of full index rebuilds.",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300},
		}),
		rebuildTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_rebuild_total",
			Help: "Total number of index rebuilds attempted.",
		}),
		rebuildFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suggest_rebuild_failures_total",
			Help: "Total number of index rebuilds that failed.",
		}),
		topKRecomputeDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "suggest_trie_topk_recompute_depth",
			Help:    "Number of trie nodes whose top-K cache was recomputed per mutation.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
		}),
	}

	reg.MustRegister(
		m.trieInserts, m.trieRemovals, m.trieSize,
		m.querySearches, m.queryResults, m.queryLatency, m.queryFuzzyHits,
		m.cacheHits, m.cacheMisses,
		m.ingestEnqueued, m.ingestDropped, m.ingestFlushed, m.ingestFlushBatch, m.ingestDeadLettered,
		m.rebuildDuration, m.rebuildTotal, m.rebuildFailures,
		m.topKRecomputeDepth,
	)
	return m
}

func (m *Metrics) RecordTrieInsert()  { m.trieInserts.Inc() }
func (m *Metrics) RecordTrieRemoval() { m.trieRemovals.Inc() }
func (m *Metrics) UpdateTrieSize(n int) { m.trieSize.Set(float64(n)) }

func (m *Metrics) RecordQuery(resultCount int, fuzzy bool, latency time.Duration) {
	m.querySearches.Inc()
	m.queryResults.Observe(float64(resultCount))
	m.queryLatency.Observe(latency.Seconds())
	if fuzzy {
		m.queryFuzzyHits.Inc()
	}
}

func (m *Metrics) RecordCacheHit()  { m.cacheHits.Inc() }
func (m *Metrics) RecordCacheMiss() { m.cacheMisses.Inc() }

func (m *Metrics) RecordIngestEnqueued() { m.ingestEnqueued.Inc() }
func (m *Metrics) RecordIngestDropped()  { m.ingestDropped.Inc() }
func (m *Metrics) RecordIngestFlushed(n int) {
	m.ingestFlushed.Add(float64(n))
	m.ingestFlushBatch.Observe(float64(n))
}
func (m *Metrics) RecordIngestDeadLettered(n int) {
	m.ingestDeadLettered.Add(float64(n))
}

// RecordTopKRecomputeDepth records how many trie nodes had their top-K
// cache recomputed by a single Increment/Insert/Remove call.
func (m *Metrics) RecordTopKRecomputeDepth(depth int) {
	m.topKRecomputeDepth.Observe(float64(depth))
}

func (m *Metrics) RecordRebuild(d time.Duration, ok bool) {
	m.rebuildTotal.Inc()
	m.rebuildDuration.Observe(d.Seconds())
	if !ok {
		m.rebuildFailures.Inc()
	}
}

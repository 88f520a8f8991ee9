package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTrieInsertIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTrieInsert()
	m.RecordTrieInsert()

	got := testutil.ToFloat64(m.trieInserts)
	if got != 2 {
		t.Errorf("expected 2 inserts recorded, got %v", got)
	}
}

func TestUpdateTrieSizeSetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.UpdateTrieSize(42)
	if got := testutil.ToFloat64(m.trieSize); got != 42 {
		t.Errorf("expected gauge 42, got %v", got)
	}
}

func TestRecordQueryObservesLatencyAndResultCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordQuery(5, true, 10*time.Millisecond)

	if got := testutil.ToFloat64(m.querySearches); got != 1 {
		t.Errorf("expected 1 query recorded, got %v", got)
	}
	if got := testutil.ToFloat64(m.queryFuzzyHits); got != 1 {
		t.Errorf("expected fuzzy hit recorded, got %v", got)
	}
}

func TestRecordCacheHitAndMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()

	if got := testutil.ToFloat64(m.cacheHits); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheMisses); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestRecordIngestFlushedObservesBatchSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordIngestFlushed(42)

	if got := testutil.ToFloat64(m.ingestFlushed); got != 42 {
		t.Errorf("expected 42 flushed events, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ingestFlushBatch); got != 1 {
		t.Errorf("expected 1 batch size observation, got %v", got)
	}
}

func TestRecordTopKRecomputeDepthObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTopKRecomputeDepth(5)
	m.RecordTopKRecomputeDepth(12)

	if got := testutil.CollectAndCount(m.topKRecomputeDepth); got != 1 {
		t.Errorf("expected 1 histogram registered, got %v", got)
	}
}

func TestRecordRebuildTracksFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordRebuild(time.Second, true)
	m.RecordRebuild(time.Second, false)

	if got := testutil.ToFloat64(m.rebuildTotal); got != 2 {
		t.Errorf("expected 2 rebuild attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.rebuildFailures); got != 1 {
		t.Errorf("expected 1 rebuild failure, got %v", got)
	}
}

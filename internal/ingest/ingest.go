// Package ingest buffers phrase-count deltas off the request path. A bounded
// channel absorbs bursts from concurrent query handlers; a single drainer
// goroutine batches them and flushes to a Sink on an interval or once a
// batch grows past a threshold, whichever comes first. This mirrors the
// dictionary Loader's loadingCh/backgroundLoader split: producers never
// block on disk or index-rebuild work, and a failed flush is retried with
// backoff before falling to a bounded dead-letter list instead of blocking
// forever or losing the batch silently.
package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Event is one recorded occurrence of a phrase.
type Event struct {
	Phrase string
	Delta  int64
	At     time.Time
}

// Sink applies a batch of events to whatever is authoritative for counts
// (the in-memory index, a write-behind store, or both).
type Sink interface {
	Apply(ctx context.Context, batch []Event) error
}

// Config controls batching and retry behavior.
type Config struct {
	Capacity       int           // channel buffer size
	FlushInterval  time.Duration // max time an event waits before a flush
	FlushThreshold int           // batch size that triggers an immediate flush
	MaxRetries     int           // per-batch retry attempts before dead-lettering
	DeadLetterCap  int           // bounded dead-letter list size
}

// DefaultConfig mirrors spec.md §4.7.
var DefaultConfig = Config{
	Capacity:       10000,
	FlushInterval:  5 * time.Second,
	FlushThreshold: 100,
	MaxRetries:     3,
	DeadLetterCap:  1000,
}

// Buffer is the ingestion write-behind queue.
type Buffer struct {
	cfg  Config
	sink Sink
	log  *log.Logger

	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	enqueued    atomic.Int64
	dropped     atomic.Int64
	flushed     atomic.Int64
	deadLettered atomic.Int64

	deadMu     sync.Mutex
	deadLetter []Event
}

// New builds a Buffer. Call Start to begin draining and Stop to flush any
// remainder and shut down the drainer goroutine.
func New(cfg Config, sink Sink, logger *log.Logger) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig.Capacity
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig.FlushInterval
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = DefaultConfig.FlushThreshold
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.DeadLetterCap <= 0 {
		cfg.DeadLetterCap = DefaultConfig.DeadLetterCap
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Buffer{
		cfg:  cfg,
		sink: sink,
		log:  logger,
		ch:   make(chan Event, cfg.Capacity),
		done: make(chan struct{}),
	}
}

// Enqueue submits an event without blocking. If the buffer is full, the
// oldest queued event is evicted to make room rather than rejecting the
// newest one — a fresher count is more useful than a stale one, and the
// eviction is counted in Stats. The retry can itself race a concurrent
// receive by the drainer goroutine, in which case the event is enqueued
// directly on the now-available slot.
func (b *Buffer) Enqueue(phrase string, delta int64, at time.Time) bool {
	ev := Event{Phrase: phrase, Delta: delta, At: at}
	select {
	case b.ch <- ev:
		b.enqueued.Add(1)
		return true
	default:
	}

	select {
	case <-b.ch:
		b.dropped.Add(1)
	default:
	}

	select {
	case b.ch <- ev:
		b.enqueued.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Start launches the drainer goroutine.
func (b *Buffer) Start() {
	b.wg.Add(1)
	go b.run()
}

// Stop signals the drainer to flush its remaining batch and exit, and
// blocks until it has done so.
func (b *Buffer) Stop() {
	close(b.done)
	b.wg.Wait()
}

func (b *Buffer) run() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, b.cfg.FlushThreshold)
	for {
		select {
		case ev := <-b.ch:
			batch = append(batch, ev)
			if len(batch) >= b.cfg.FlushThreshold {
				batch = b.flushWithRetry(batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				batch = b.flushWithRetry(batch)
			}
		case <-b.done:
			b.drain(&batch)
			if len(batch) > 0 {
				b.flushWithRetry(batch)
			}
			return
		}
	}
}

// drain empties any events still sitting in the channel into batch, for a
// clean shutdown flush.
func (b *Buffer) drain(batch *[]Event) {
	for {
		select {
		case ev := <-b.ch:
			*batch = append(*batch, ev)
		default:
			return
		}
	}
}

// flushWithRetry applies batch via the sink, retrying with linear backoff,
// and returns a fresh empty slice reusing the batch's capacity.
func (b *Buffer) flushWithRetry(batch []Event) []Event {
	ctx := context.Background()
	var err error
	for attempt := 1; attempt <= b.cfg.MaxRetries; attempt++ {
		if err = b.sink.Apply(ctx, batch); err == nil {
			b.flushed.Add(int64(len(batch)))
			return batch[:0]
		}
		b.log.Warn("ingest flush failed", "attempt", attempt, "size", len(batch), "err", err)
		if attempt < b.cfg.MaxRetries {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
	}
	b.log.Error("ingest flush exhausted retries, dead-lettering batch", "size", len(batch), "err", err)
	b.deadLetterBatch(batch)
	return batch[:0]
}

func (b *Buffer) deadLetterBatch(batch []Event) {
	b.deadMu.Lock()
	defer b.deadMu.Unlock()
	for _, ev := range batch {
		if len(b.deadLetter) >= b.cfg.DeadLetterCap {
			b.deadLetter = b.deadLetter[1:]
		}
		b.deadLetter = append(b.deadLetter, ev)
		b.deadLettered.Add(1)
	}
}

// DeadLetter returns a snapshot of events that exhausted their retries.
func (b *Buffer) DeadLetter() []Event {
	b.deadMu.Lock()
	defer b.deadMu.Unlock()
	out := make([]Event, len(b.deadLetter))
	copy(out, b.deadLetter)
	return out
}

// Stats reports cumulative counters.
func (b *Buffer) Stats() map[string]int64 {
	return map[string]int64{
		"enqueued":     b.enqueued.Load(),
		"dropped":      b.dropped.Load(),
		"flushed":      b.flushed.Load(),
		"deadLettered": b.deadLettered.Load(),
	}
}

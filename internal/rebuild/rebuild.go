// Package rebuild drives offline reconstruction of the prefix index: a full
// reload from internal/store into a fresh trie.Builder, followed by an
// atomic generation swap. While a rebuild is "building", live increments
// arriving from internal/ingest would otherwise be lost between the start
// of the table scan and the swap; rebuild.Rebuilder shadows them by
// replaying every increment seen during that window onto the in-progress
// Builder before it is swapped in, so no count is dropped across a
// rebuild. The explicit idle/building/swapping state machine follows
// pkg/server's small hand-rolled state handling (config reload vs. request
// handling) generalized to a three-state machine with a tap hook.
package rebuild

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/wordsuggest/internal/store"
	"github.com/evgenyvinnik/wordsuggest/internal/svcerr"
	"github.com/evgenyvinnik/wordsuggest/internal/trie"
)

// State is the rebuilder's current phase.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateSwapping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateSwapping:
		return "swapping"
	default:
		return "unknown"
	}
}

// Source provides the full phrase set to reload, paged. internal/store.Store
// satisfies this directly.
type Source interface {
	LoadAll(ctx context.Context, fn func(rows []store.PhraseRow) error) error
}

// OnSwap is called after a successful swap, typically to invalidate caches.
type OnSwap func()

// Rebuilder owns the idle/building/swapping state machine around a
// trie.Index.
type Rebuilder struct {
	index  *trie.Index
	source Source
	onSwap OnSwap
	log    *log.Logger
	k      int

	mu    sync.Mutex
	state State

	tapMu    sync.Mutex
	tapping  bool
	tapQueue []tapEvent
}

type tapEvent struct {
	phrase string
	delta  int64
	at     time.Time
}

// New builds a Rebuilder targeting index, reloading from source.
func New(index *trie.Index, source Source, k int, onSwap OnSwap, logger *log.Logger) *Rebuilder {
	if logger == nil {
		logger = log.Default()
	}
	return &Rebuilder{index: index, source: source, onSwap: onSwap, log: logger, k: k, state: StateIdle}
}

// State returns the rebuilder's current phase.
func (r *Rebuilder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Tap records a live increment so it is replayed onto the in-progress
// Builder if a rebuild is currently running. Call this from the same path
// that feeds internal/ingest's sink, before or after applying the
// increment to the live index — order between the two doesn't matter
// since the swap is atomic and this only affects the *next* generation.
//
// Taps are queued rather than applied to the Builder immediately: the
// source scan may not yet have reached a given phrase's row, and applying
// a tapped delta before the row's absolute Insert would have it silently
// overwritten. Run drains the queue onto the Builder only after the scan
// completes, so every tap is applied strictly after its phrase's base row.
func (r *Rebuilder) Tap(phrase string, delta int64, now time.Time) {
	r.tapMu.Lock()
	defer r.tapMu.Unlock()
	if r.tapping {
		r.tapQueue = append(r.tapQueue, tapEvent{phrase: phrase, delta: delta, at: now})
	}
}

// Run performs one full rebuild: idle -> building -> swapping -> idle.
// Returns svcerr.CodeRebuildInProgress if a rebuild is already running.
func (r *Rebuilder) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return svcerr.New(svcerr.CodeRebuildInProgress, "a rebuild is already running")
	}
	r.state = StateBuilding
	r.mu.Unlock()

	builder := trie.NewBuilder(r.k)
	r.tapMu.Lock()
	r.tapQueue = nil
	r.tapping = true
	r.tapMu.Unlock()

	aborted := true
	defer func() {
		if aborted {
			r.tapMu.Lock()
			r.tapping = false
			r.tapQueue = nil
			r.tapMu.Unlock()
		}
	}()

	err := r.source.LoadAll(ctx, func(rows []store.PhraseRow) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		for _, row := range rows {
			builder.Insert(row.Phrase, row.Count, row.LastUpdated)
		}
		return nil
	})
	if err != nil {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
		return fmt.Errorf("rebuild: loading source: %w", err)
	}

	r.tapMu.Lock()
	for _, ev := range r.tapQueue {
		builder.Increment(ev.phrase, ev.delta, ev.at)
	}
	r.tapQueue = nil
	r.tapping = false
	r.tapMu.Unlock()
	aborted = false

	r.mu.Lock()
	r.state = StateSwapping
	r.mu.Unlock()

	r.index.Swap(builder)

	if r.onSwap != nil {
		r.onSwap()
	}

	r.mu.Lock()
	r.state = StateIdle
	r.mu.Unlock()

	r.log.Info("rebuild complete", "phrases", builder.PhraseCount(), "maxCount", builder.MaxCount())
	return nil
}

package rebuild

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evgenyvinnik/wordsuggest/internal/store"
	"github.com/evgenyvinnik/wordsuggest/internal/trie"
)

type fakeSource struct {
	rows    []store.PhraseRow
	loadErr error
}

func (f *fakeSource) LoadAll(ctx context.Context, fn func([]store.PhraseRow) error) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	return fn(f.rows)
}

func TestRunReplacesIndexContents(t *testing.T) {
	ix := trie.New(10, 50, nil, nil)
	now := time.Now()
	if _, err := ix.Insert("stale", 1, now); err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{rows: []store.PhraseRow{
		{Phrase: "weather", Count: 10, LastUpdated: now},
		{Phrase: "weather forecast", Count: 5, LastUpdated: now},
	}}

	var swapped bool
	rb := New(ix, src, 10, func() { swapped = true }, nil)
	if err := rb.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !swapped {
		t.Error("expected onSwap callback to fire")
	}
	if got := ix.Lookup("stale", 5, false); len(got) != 0 {
		t.Errorf("expected stale data gone after rebuild, got %+v", got)
	}
	if got := ix.Lookup("weather", 5, false); len(got) != 2 {
		t.Errorf("expected 2 results for weather after rebuild, got %+v", got)
	}
	if rb.State() != StateIdle {
		t.Errorf("expected idle state after completion, got %v", rb.State())
	}
}

func TestRunRejectsConcurrentRebuild(t *testing.T) {
	ix := trie.New(10, 50, nil, nil)
	src := &fakeSource{}
	rb := New(ix, src, 10, nil, nil)

	rb.mu.Lock()
	rb.state = StateBuilding
	rb.mu.Unlock()

	err := rb.Run(context.Background())
	if err == nil {
		t.Fatal("expected error for concurrent rebuild")
	}
}

func TestRunPropagatesSourceError(t *testing.T) {
	ix := trie.New(10, 50, nil, nil)
	src := &fakeSource{loadErr: errors.New("db unavailable")}
	rb := New(ix, src, 10, nil, nil)

	if err := rb.Run(context.Background()); err == nil {
		t.Fatal("expected error to propagate")
	}
	if rb.State() != StateIdle {
		t.Errorf("expected state reset to idle after failed rebuild, got %v", rb.State())
	}
}

func TestTapBeforeRunIsNotCarriedOver(t *testing.T) {
	ix := trie.New(10, 50, nil, nil)
	now := time.Now()
	src := &fakeSource{rows: []store.PhraseRow{
		{Phrase: "weather", Count: 10, LastUpdated: now},
	}}
	rb := New(ix, src, 10, nil, nil)

	rb.mu.Lock()
	rb.state = StateBuilding
	rb.mu.Unlock()
	rb.tapMu.Lock()
	rb.tapping = true
	rb.tapMu.Unlock()
	rb.Tap("weather", 7, now)
	rb.tapMu.Lock()
	rb.tapping = false
	rb.mu.Lock()
	rb.state = StateIdle
	rb.mu.Unlock()
	rb.tapMu.Unlock()

	if err := rb.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := ix.Lookup("weather", 5, false)
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %+v", got)
	}
	// Since the tap above was applied before Run (and thus reset before
	// this Run's own tap window), it should not have carried over; this
	// exercises that Run starts each rebuild with an empty tap queue.
	if got[0].Count != 10 {
		t.Errorf("expected count 10 (no stale tap carried over), got %d", got[0].Count)
	}
}

func TestTapDuringRunIsApplied(t *testing.T) {
	ix := trie.New(10, 50, nil, nil)
	now := time.Now()
	rows := []store.PhraseRow{{Phrase: "weather", Count: 10, LastUpdated: now}}

	capturingSource := &capturingSource{rb: nil, rows: rows}
	rb := New(ix, capturingSource, 10, nil, nil)
	capturingSource.rb = rb

	if err := rb.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	got := ix.Lookup("weather", 5, false)
	if len(got) != 1 || got[0].Count != 13 {
		t.Fatalf("expected tapped delta folded in, got %+v", got)
	}
}

type capturingSource struct {
	rb   *Rebuilder
	rows []store.PhraseRow
}

func (c *capturingSource) LoadAll(ctx context.Context, fn func([]store.PhraseRow) error) error {
	if err := fn(c.rows); err != nil {
		return err
	}
	c.rb.Tap("weather", 3, time.Now())
	return nil
}

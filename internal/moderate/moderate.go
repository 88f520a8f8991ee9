// Package moderate maintains the set of phrases excluded from suggestion
// results: a persisted blocklist (internal/store's filtered_phrase table)
// mirrored into memory for a lock-protected O(1) membership check on every
// trie lookup. This generalizes the teacher's internal/utils/filter.go
// static-shape rejection (IsValidInput) into an explicit, admin-editable
// blocklist — a phrase is excluded only by an admin Block call, never by
// its shape; shape validation belongs to internal/normalize, upstream of
// ingestion.
package moderate

import (
	"context"
	"fmt"
	"sync"
)

// Persister is the subset of internal/store's API this package needs,
// kept narrow so tests can supply an in-memory fake.
type Persister interface {
	FilterPhrase(ctx context.Context, phrase, reason string) error
	UnfilterPhrase(ctx context.Context, phrase string) error
	ListFiltered(ctx context.Context) ([]string, error)
}

// Filter is the in-memory mirror of the persisted blocklist.
type Filter struct {
	mu      sync.RWMutex
	blocked map[string]string // phrase -> reason
	persist Persister
}

// New builds an empty Filter. Call Load to hydrate it from persistence.
func New(persist Persister) *Filter {
	return &Filter{blocked: make(map[string]string), persist: persist}
}

// Load replaces the in-memory set with whatever is currently persisted.
func (f *Filter) Load(ctx context.Context) error {
	phrases, err := f.persist.ListFiltered(ctx)
	if err != nil {
		return fmt.Errorf("moderate: loading blocklist: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked = make(map[string]string, len(phrases))
	for _, p := range phrases {
		f.blocked[p] = ""
	}
	return nil
}

// IsFiltered reports whether phrase is explicitly blocklisted. Passed
// directly as a trie.IsFilteredFunc.
func (f *Filter) IsFiltered(phrase string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, blocked := f.blocked[phrase]
	return blocked
}

// Block adds phrase to the blocklist, persisting it and updating the
// in-memory mirror so subsequent lookups exclude it immediately.
func (f *Filter) Block(ctx context.Context, phrase, reason string) error {
	if err := f.persist.FilterPhrase(ctx, phrase, reason); err != nil {
		return fmt.Errorf("moderate: blocking phrase: %w", err)
	}
	f.mu.Lock()
	f.blocked[phrase] = reason
	f.mu.Unlock()
	return nil
}

// Unblock removes phrase from the blocklist.
func (f *Filter) Unblock(ctx context.Context, phrase string) error {
	if err := f.persist.UnfilterPhrase(ctx, phrase); err != nil {
		return fmt.Errorf("moderate: unblocking phrase: %w", err)
	}
	f.mu.Lock()
	delete(f.blocked, phrase)
	f.mu.Unlock()
	return nil
}

// List returns every currently blocklisted phrase.
func (f *Filter) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.blocked))
	for p := range f.blocked {
		out = append(out, p)
	}
	return out
}

package moderate

import (
	"context"
	"testing"
)

type fakePersister struct {
	blocked map[string]string
}

func newFakePersister() *fakePersister {
	return &fakePersister{blocked: make(map[string]string)}
}

func (f *fakePersister) FilterPhrase(ctx context.Context, phrase, reason string) error {
	f.blocked[phrase] = reason
	return nil
}

func (f *fakePersister) UnfilterPhrase(ctx context.Context, phrase string) error {
	delete(f.blocked, phrase)
	return nil
}

func (f *fakePersister) ListFiltered(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(f.blocked))
	for p := range f.blocked {
		out = append(out, p)
	}
	return out, nil
}

func TestIsFilteredOnlyRejectsBlocklistedPhrases(t *testing.T) {
	f := New(newFakePersister())
	// None of these have any particular shape significance; IsFiltered must
	// only ever reject phrases an admin has explicitly blocked.
	cases := []string{"12345", "!!!", "aaaa", "weather", ""}
	for _, c := range cases {
		if f.IsFiltered(c) {
			t.Errorf("expected %q to pass before any Block call", c)
		}
	}
}

func TestBlockAndUnblock(t *testing.T) {
	ctx := context.Background()
	p := newFakePersister()
	f := New(p)

	if f.IsFiltered("badword") {
		t.Fatal("expected badword to be allowed before blocking")
	}
	if err := f.Block(ctx, "badword", "profanity"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if !f.IsFiltered("badword") {
		t.Error("expected badword to be filtered after blocking")
	}
	if p.blocked["badword"] != "profanity" {
		t.Errorf("expected persister to record reason, got %+v", p.blocked)
	}

	if err := f.Unblock(ctx, "badword"); err != nil {
		t.Fatalf("Unblock failed: %v", err)
	}
	if f.IsFiltered("badword") {
		t.Error("expected badword to be allowed after unblocking")
	}
}

func TestLoadHydratesFromPersistence(t *testing.T) {
	ctx := context.Background()
	p := newFakePersister()
	p.blocked["preexisting"] = "seeded"
	f := New(p)

	if f.IsFiltered("preexisting") {
		t.Fatal("expected filter to be empty before Load")
	}
	if err := f.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !f.IsFiltered("preexisting") {
		t.Error("expected preexisting blocklist entry to be loaded")
	}
}

func TestListReturnsAllBlocked(t *testing.T) {
	ctx := context.Background()
	f := New(newFakePersister())
	if err := f.Block(ctx, "a", ""); err != nil {
		t.Fatal(err)
	}
	if err := f.Block(ctx, "b", ""); err != nil {
		t.Fatal(err)
	}
	list := f.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 blocked phrases, got %+v", list)
	}
}

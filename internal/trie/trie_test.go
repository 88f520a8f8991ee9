package trie

import (
	"testing"
	"time"
)

func TestInsertLookupBasic(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()

	if _, err := ix.Insert("javascript", 5, now); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got := ix.Lookup("jav", 3, false)
	if len(got) != 1 || got[0].Phrase != "javascript" {
		t.Fatalf("Lookup(jav) = %+v, want [javascript]", got)
	}
	if got[0].Count != 5 {
		t.Errorf("Count = %d, want 5", got[0].Count)
	}
}

func TestLookupMissingPrefixIsEmpty(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()
	if _, err := ix.Insert("hello", 1, now); err != nil {
		t.Fatal(err)
	}
	got := ix.Lookup("xyz", 5, false)
	if len(got) != 0 {
		t.Errorf("expected empty result, got %+v", got)
	}
}

func TestTopKOrderingAndTieBreak(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()
	for _, p := range []struct {
		phrase string
		count  int64
	}{
		{"weather", 10},
		{"weather forecast", 10},
		{"weather radar", 10},
	} {
		if _, err := ix.Insert(p.phrase, p.count, now); err != nil {
			t.Fatal(err)
		}
	}

	got := ix.Lookup("weather", 2, false)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Phrase != "weather" {
		t.Errorf("expected shortest equal-score phrase first, got %q", got[0].Phrase)
	}
}

func TestLimitClampedToK(t *testing.T) {
	ix := New(3, 50, nil, nil)
	now := time.Now()
	for i, p := range []string{"cat", "car", "cap", "can", "cab"} {
		if _, err := ix.Insert(p, int64(10-i), now); err != nil {
			t.Fatal(err)
		}
	}
	got := ix.Lookup("ca", 100, false)
	if len(got) != 3 {
		t.Fatalf("expected clamp to K=3, got %d", len(got))
	}
}

func TestIncrementCreatesMissingPhrase(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()
	touched, err := ix.Increment("react", 50, now)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if len(touched) == 0 {
		t.Errorf("expected touched prefixes, got none")
	}
	got := ix.Lookup("re", 5, false)
	if len(got) != 1 || got[0].Count != 50 {
		t.Fatalf("Lookup(re) = %+v, want count 50", got)
	}
}

func TestSetRecomputeHookReportsPathDepth(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()

	var depths []int
	ix.SetRecomputeHook(func(depth int) { depths = append(depths, depth) })

	if _, err := ix.Increment("cat", 1, now); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	// root + 3 rune nodes
	if len(depths) != 1 || depths[0] != 4 {
		t.Fatalf("expected one depth-4 recompute, got %+v", depths)
	}

	if _, err := ix.Insert("cats", 1, now); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if len(depths) != 2 || depths[1] != 5 {
		t.Fatalf("expected second depth-5 recompute, got %+v", depths)
	}

	if _, err := ix.Remove("cats", now); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if len(depths) != 3 {
		t.Fatalf("expected a third recompute after Remove, got %+v", depths)
	}
}

func TestRemoveRestoresState(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()
	if _, err := ix.Insert("banana", 5, now); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Remove("banana", now); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	got := ix.Lookup("ban", 5, false)
	if len(got) != 0 {
		t.Errorf("expected empty after remove, got %+v", got)
	}
	stats := ix.Stats()
	if stats["phraseCount"] != 0 {
		t.Errorf("expected phraseCount 0 after remove, got %d", stats["phraseCount"])
	}
}

func TestRemoveUnknownPhraseNotFound(t *testing.T) {
	ix := New(10, 50, nil, nil)
	if _, err := ix.Remove("ghost", time.Now()); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestFilteredPhraseExcluded(t *testing.T) {
	filtered := map[string]bool{"badword": true}
	ix := New(10, 50, func(p string) bool { return filtered[p] }, nil)
	now := time.Now()
	if _, err := ix.Insert("badword", 100, now); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Insert("badge", 1, now); err != nil {
		t.Fatal(err)
	}
	got := ix.Lookup("bad", 5, false)
	for _, e := range got {
		if e.Phrase == "badword" {
			t.Errorf("filtered phrase leaked into results: %+v", got)
		}
	}
}

func TestFuzzyLookupFindsTranspositionAndDeletion(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()
	if _, err := ix.Insert("hello", 10, now); err != nil {
		t.Fatal(err)
	}

	exact := ix.Lookup("hell", 5, false)
	if len(exact) != 1 {
		t.Fatalf("expected exact match, got %+v", exact)
	}

	// "helo" has no exact path; dropping its trailing 'o' (deletion-class
	// edit) reaches "hel", whose top-K holds "hello".
	fuzzy := ix.Lookup("helo", 5, true)
	foundFuzzy := false
	for _, e := range fuzzy {
		if e.Phrase == "hello" && e.IsFuzzy {
			foundFuzzy = true
		}
	}
	if !foundFuzzy {
		t.Errorf("expected fuzzy match for hello, got %+v", fuzzy)
	}

	// "hle" swaps the last two runes of "hel": transposition-class edit.
	transposed := ix.Lookup("hle", 5, true)
	foundTransposed := false
	for _, e := range transposed {
		if e.Phrase == "hello" && e.IsFuzzy {
			foundTransposed = true
		}
	}
	if !foundTransposed {
		t.Errorf("expected transposition match for hello, got %+v", transposed)
	}
}

func TestStatsTracksMaxDepth(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()
	if _, err := ix.Insert("a", 1, now); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Insert("abcdef", 1, now); err != nil {
		t.Fatal(err)
	}
	stats := ix.Stats()
	if stats["maxDepth"] != 6 {
		t.Errorf("maxDepth = %d, want 6", stats["maxDepth"])
	}
}

func TestBuilderAndSwapAtomic(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()
	if _, err := ix.Insert("old", 1, now); err != nil {
		t.Fatal(err)
	}

	b := NewBuilder(10)
	b.Insert("new", 99, now)
	ix.Swap(b)

	if got := ix.Lookup("old", 5, false); len(got) != 0 {
		t.Errorf("expected old generation gone after swap, got %+v", got)
	}
	if got := ix.Lookup("new", 5, false); len(got) != 1 {
		t.Errorf("expected new generation visible after swap, got %+v", got)
	}
}

func TestInsertThenRemoveRoundTrip(t *testing.T) {
	ix := New(10, 50, nil, nil)
	now := time.Now()
	before := ix.Stats()
	if _, err := ix.Insert("ephemeral", 3, now); err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Remove("ephemeral", now); err != nil {
		t.Fatal(err)
	}
	after := ix.Stats()
	if before["nodeCount"] != 1 {
		t.Fatalf("sanity: expected empty trie to have just a root node")
	}
	if after["phraseCount"] != before["phraseCount"] {
		t.Errorf("phraseCount not restored: before=%d after=%d", before["phraseCount"], after["phraseCount"])
	}
}

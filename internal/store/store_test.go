package store

import (
	"context"
	"os"
	"testing"
	"time"
)

// testStore connects to a real Postgres instance via STORE_TEST_DSN. These
// tests are skipped when that variable isn't set, the usual shape for a
// database/sql-backed package where a fake driver would hide real SQL
// bugs (see php-workx-clai's own db-backed benchmarks, which spin up a
// real (if embedded) database rather than mocking the driver).
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("STORE_TEST_DSN")
	if dsn == "" {
		t.Skip("STORE_TEST_DSN not set, skipping Postgres-backed store tests")
	}
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		s.db.Exec("TRUNCATE phrase, filtered_phrase")
		s.Close()
	})
	return s
}

func TestUpsertAndLoadAll(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if err := s.Upsert(ctx, "weather", 10, now); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	var got []PhraseRow
	if err := s.LoadAll(ctx, func(rows []PhraseRow) error {
		got = append(got, rows...)
		return nil
	}); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(got) != 1 || got[0].Phrase != "weather" || got[0].Count != 10 {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestIncrementCreatesAndAccumulates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Increment(ctx, "react", 5, now); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := s.Increment(ctx, "react", 3, now); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	var got []PhraseRow
	if err := s.LoadAll(ctx, func(rows []PhraseRow) error {
		got = append(got, rows...)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Count != 8 {
		t.Fatalf("expected accumulated count 8, got %+v", got)
	}
}

func TestFilterExcludesFromLoadAll(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.Upsert(ctx, "badword", 100, now); err != nil {
		t.Fatal(err)
	}
	if err := s.FilterPhrase(ctx, "badword", "profanity"); err != nil {
		t.Fatalf("FilterPhrase failed: %v", err)
	}

	var got []PhraseRow
	if err := s.LoadAll(ctx, func(rows []PhraseRow) error {
		got = append(got, rows...)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	for _, r := range got {
		if r.Phrase == "badword" {
			t.Fatal("filtered phrase leaked into LoadAll")
		}
	}

	filtered, err := s.ListFiltered(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0] != "badword" {
		t.Fatalf("expected [badword], got %+v", filtered)
	}

	if err := s.UnfilterPhrase(ctx, "badword"); err != nil {
		t.Fatalf("UnfilterPhrase failed: %v", err)
	}
	filtered, err = s.ListFiltered(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected empty filtered list after unfilter, got %+v", filtered)
	}
}

func TestIncrementBatch(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	phrases := []string{"a", "b", "a"}
	deltas := []int64{1, 2, 3}
	if err := s.IncrementBatch(ctx, phrases, deltas, now); err != nil {
		t.Fatalf("IncrementBatch failed: %v", err)
	}

	counts := map[string]int64{}
	if err := s.LoadAll(ctx, func(rows []PhraseRow) error {
		for _, r := range rows {
			counts[r.Phrase] = r.Count
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if counts["a"] != 4 || counts["b"] != 2 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestRemoveDeletesRow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := s.Upsert(ctx, "ephemeral", 1, now); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, "ephemeral"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	var got []PhraseRow
	if err := s.LoadAll(ctx, func(rows []PhraseRow) error {
		got = append(got, rows...)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected row removed, got %+v", got)
	}
}

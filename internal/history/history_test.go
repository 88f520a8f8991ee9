package history

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, cfg)
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t, Config{Cap: 10, TTL: time.Hour})
	ctx := context.Background()
	now := time.Now()

	if err := s.Record(ctx, "user1", "weather", now); err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, "user1", "weather forecast", now); err != nil {
		t.Fatal(err)
	}

	recent, err := s.Recent(ctx, "user1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0] != "weather forecast" {
		t.Fatalf("expected most recent phrase first, got %+v", recent)
	}
}

func TestRecordTrimsToCap(t *testing.T) {
	s := newTestStore(t, Config{Cap: 2, TTL: time.Hour})
	ctx := context.Background()
	now := time.Now()
	for _, phrase := range []string{"a", "b", "c"} {
		if err := s.Record(ctx, "user1", phrase, now); err != nil {
			t.Fatal(err)
		}
	}
	recent, err := s.Recent(ctx, "user1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected history capped at 2, got %+v", recent)
	}
	if recent[0] != "c" || recent[1] != "b" {
		t.Fatalf("expected [c b], got %+v", recent)
	}
}

func TestCountsAccumulate(t *testing.T) {
	s := newTestStore(t, Config{Cap: 10, TTL: time.Hour})
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Record(ctx, "user1", "weather", now); err != nil {
			t.Fatal(err)
		}
	}
	counts, err := s.Counts(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if counts["weather"] != 3 {
		t.Errorf("expected count 3, got %d", counts["weather"])
	}
}

func TestRecordMovesRepeatPhraseToFront(t *testing.T) {
	s := newTestStore(t, Config{Cap: 10, TTL: time.Hour})
	ctx := context.Background()
	now := time.Now()
	for _, phrase := range []string{"weather", "news", "weather"} {
		if err := s.Record(ctx, "user1", phrase, now); err != nil {
			t.Fatal(err)
		}
	}
	recent, err := s.Recent(ctx, "user1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected repeat phrase to occupy a single slot, got %+v", recent)
	}
	if recent[0] != "weather" || recent[1] != "news" {
		t.Fatalf("expected [weather news], got %+v", recent)
	}
}

func TestClearRemovesHistory(t *testing.T) {
	s := newTestStore(t, Config{Cap: 10, TTL: time.Hour})
	ctx := context.Background()
	now := time.Now()
	if err := s.Record(ctx, "user1", "weather", now); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx, "user1"); err != nil {
		t.Fatal(err)
	}
	recent, err := s.Recent(ctx, "user1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("expected empty history after clear, got %+v", recent)
	}
}

func TestEmptyUserIDIsNoop(t *testing.T) {
	s := newTestStore(t, Config{Cap: 10, TTL: time.Hour})
	ctx := context.Background()
	if err := s.Record(ctx, "", "weather", time.Now()); err != nil {
		t.Fatal(err)
	}
	recent, err := s.Recent(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if recent != nil {
		t.Errorf("expected nil for empty user, got %+v", recent)
	}
}

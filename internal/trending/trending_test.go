package trending

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestWindow(t *testing.T) (*Window, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	w := New(client, Config{Tau: time.Minute, Window: time.Hour, MaxItems: 100}, nil)
	return w, mr
}

func TestBumpAndScore(t *testing.T) {
	w, _ := newTestWindow(t)
	ctx := context.Background()
	// Bump times are stored at whole-second resolution, so a sub-second now
	// would read back up to a second of decay.
	now := time.Now().Truncate(time.Second)

	if err := w.Bump(ctx, "weather", 10, now); err != nil {
		t.Fatalf("Bump failed: %v", err)
	}
	score, err := w.Score(ctx, "weather", now)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score < 9.9 || score > 10.1 {
		t.Errorf("expected score ~10 immediately after bump, got %f", score)
	}
}

func TestScoreDecaysOverOneTau(t *testing.T) {
	w, _ := newTestWindow(t)
	ctx := context.Background()
	now := time.Now()

	if err := w.Bump(ctx, "weather", 10, now); err != nil {
		t.Fatal(err)
	}
	later := now.Add(time.Minute) // exactly one tau
	score, err := w.Score(ctx, "weather", later)
	if err != nil {
		t.Fatal(err)
	}
	// exp(-Δt/τ) at Δt=τ is exp(-1) ≈ 0.3679, so 10 decays to ~3.68.
	if score < 3.4 || score > 3.9 {
		t.Errorf("expected score ~3.68 after one tau, got %f", score)
	}
}

func TestBumpAccumulatesWithDecay(t *testing.T) {
	w, _ := newTestWindow(t)
	ctx := context.Background()
	now := time.Now()

	if err := w.Bump(ctx, "weather", 10, now); err != nil {
		t.Fatal(err)
	}
	later := now.Add(time.Minute)
	if err := w.Bump(ctx, "weather", 10, later); err != nil {
		t.Fatal(err)
	}
	score, err := w.Score(ctx, "weather", later)
	if err != nil {
		t.Fatal(err)
	}
	// decayed 10 -> ~3.68, plus fresh 10 = ~13.68
	if score < 13 || score > 14.4 {
		t.Errorf("expected accumulated score ~13.68, got %f", score)
	}
}

func TestTopReturnsNormalizedScores(t *testing.T) {
	w, _ := newTestWindow(t)
	ctx := context.Background()
	now := time.Now()

	if err := w.Bump(ctx, "popular", 100, now); err != nil {
		t.Fatal(err)
	}
	if err := w.Bump(ctx, "rare", 1, now); err != nil {
		t.Fatal(err)
	}

	top, err := w.Top(ctx, 2, now)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if top["popular"] != 1.0 {
		t.Errorf("expected top phrase normalized to 1.0, got %f", top["popular"])
	}
	if top["rare"] <= 0 || top["rare"] >= 1 {
		t.Errorf("expected rare phrase normalized between 0 and 1, got %f", top["rare"])
	}
}

func TestTopEmptyWhenNoData(t *testing.T) {
	w, _ := newTestWindow(t)
	top, err := w.Top(context.Background(), 5, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 0 {
		t.Errorf("expected empty map, got %+v", top)
	}
}

func TestPruneKeepsSetWithinMaxItems(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	w := New(client, Config{Tau: time.Minute, Window: time.Hour, MaxItems: 3}, nil)
	ctx := context.Background()
	now := time.Now()

	for i, phrase := range []string{"a", "b", "c", "d", "e"} {
		if err := w.Bump(ctx, phrase, float64(i+1), now); err != nil {
			t.Fatal(err)
		}
	}
	count, err := client.ZCard(ctx, scoreKey).Result()
	if err != nil {
		t.Fatal(err)
	}
	if count > 3 {
		t.Errorf("expected pruned set size <= 3, got %d", count)
	}
}

func TestBumpEvictsEntriesOlderThanWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	w := New(client, Config{Tau: time.Minute, Window: 10 * time.Minute, MaxItems: 100}, nil)
	ctx := context.Background()
	now := time.Now()

	if err := w.Bump(ctx, "stale", 10, now); err != nil {
		t.Fatal(err)
	}
	// Bump a second phrase long after the window has elapsed for "stale";
	// this Bump's own prune pass should evict it.
	later := now.Add(11 * time.Minute)
	if err := w.Bump(ctx, "fresh", 5, later); err != nil {
		t.Fatal(err)
	}

	if score, err := client.ZScore(ctx, scoreKey, "stale").Result(); err != redis.Nil {
		t.Errorf("expected stale entry evicted from scoreKey, got score %v err %v", score, err)
	}
	if _, err := client.HGet(ctx, tsKey, "stale").Result(); err != redis.Nil {
		t.Errorf("expected stale entry evicted from tsKey, got err %v", err)
	}
}

func TestTopExcludesEntriesOlderThanWindow(t *testing.T) {
	w, _ := newTestWindow(t)
	ctx := context.Background()
	now := time.Now()
	w.cfg.Window = 10 * time.Minute

	if err := w.Bump(ctx, "stale", 10, now); err != nil {
		t.Fatal(err)
	}
	later := now.Add(11 * time.Minute)
	if err := w.Bump(ctx, "fresh", 5, later); err != nil {
		t.Fatal(err)
	}

	top, err := w.Top(ctx, 5, later)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := top["stale"]; ok {
		t.Errorf("expected stale entry excluded from Top, got %+v", top)
	}
	if _, ok := top["fresh"]; !ok {
		t.Errorf("expected fresh entry present in Top, got %+v", top)
	}
}

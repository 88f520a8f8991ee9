package rank

import "testing"

func TestRankOrdersByScoreDescending(t *testing.T) {
	snap := Snapshot{MaxCount: 100, NowUnixSec: 1000, PrefixLen: 3}
	cands := []Candidate{
		{Phrase: "cat", Count: 100, LastUpdatedSec: 1000},
		{Phrase: "car", Count: 1, LastUpdatedSec: 1000},
	}
	got := Rank(cands, snap, DefaultWeights)
	if got[0].Phrase != "cat" {
		t.Fatalf("expected cat first, got %+v", got)
	}
}

func TestRankTieBreakByCountThenLengthThenCodepoint(t *testing.T) {
	snap := Snapshot{MaxCount: 10, NowUnixSec: 1000, PrefixLen: 2}
	cands := []Candidate{
		{Phrase: "bb", Count: 10, LastUpdatedSec: 1000},
		{Phrase: "aa", Count: 10, LastUpdatedSec: 1000},
		{Phrase: "aaa", Count: 10, LastUpdatedSec: 1000},
	}
	got := Rank(cands, snap, DefaultWeights)
	if got[0].Phrase != "aa" || got[1].Phrase != "bb" || got[2].Phrase != "aaa" {
		t.Fatalf("unexpected tie-break order: %+v", got)
	}
}

func TestRankPersonalBoostsKnownPhrase(t *testing.T) {
	snap := Snapshot{
		MaxCount:       10,
		NowUnixSec:     1000,
		PrefixLen:      3,
		PersonalCounts: map[string]int64{"car": 5},
	}
	cands := []Candidate{
		{Phrase: "cat", Count: 10, LastUpdatedSec: 1000},
		{Phrase: "car", Count: 10, LastUpdatedSec: 1000},
	}
	got := Rank(cands, snap, DefaultWeights)
	if got[0].Phrase != "car" {
		t.Fatalf("expected personalized phrase to rank first, got %+v", got)
	}
}

func TestRankTrendingBoostsKnownPhrase(t *testing.T) {
	snap := Snapshot{
		MaxCount:       10,
		NowUnixSec:     1000,
		PrefixLen:      3,
		TrendingScores: map[string]float64{"car": 1.0},
	}
	cands := []Candidate{
		{Phrase: "cat", Count: 10, LastUpdatedSec: 1000},
		{Phrase: "car", Count: 10, LastUpdatedSec: 1000},
	}
	got := Rank(cands, snap, DefaultWeights)
	if got[0].Phrase != "car" {
		t.Fatalf("expected trending phrase to rank first, got %+v", got)
	}
}

func TestRankRecencyDecaysOverTime(t *testing.T) {
	snap := Snapshot{MaxCount: 10, NowUnixSec: 1_000_000, PrefixLen: 3}
	cands := []Candidate{
		{Phrase: "old", Count: 10, LastUpdatedSec: 0},
		{Phrase: "new", Count: 10, LastUpdatedSec: 999_999},
	}
	got := Rank(cands, snap, DefaultWeights)
	if got[0].Phrase != "new" {
		t.Fatalf("expected recently updated phrase to rank first, got %+v", got)
	}
}

func TestRankMatchPenalizesEditDistance(t *testing.T) {
	snap := Snapshot{MaxCount: 10, NowUnixSec: 1000, PrefixLen: 4}
	cands := []Candidate{
		{Phrase: "exact", Count: 10, LastUpdatedSec: 1000, EditDistance: 0},
		{Phrase: "fuzzy", Count: 10, LastUpdatedSec: 1000, EditDistance: 2},
	}
	got := Rank(cands, snap, DefaultWeights)
	if got[0].Phrase != "exact" {
		t.Fatalf("expected exact match to outrank fuzzy match, got %+v", got)
	}
}

func TestRankDeterministicAcrossRuns(t *testing.T) {
	snap := Snapshot{MaxCount: 50, NowUnixSec: 5000, PrefixLen: 3}
	cands := []Candidate{
		{Phrase: "dog", Count: 20, LastUpdatedSec: 4000},
		{Phrase: "doe", Count: 20, LastUpdatedSec: 4000},
		{Phrase: "doom", Count: 30, LastUpdatedSec: 4500},
	}
	first := Rank(cands, snap, DefaultWeights)
	second := Rank(cands, snap, DefaultWeights)
	for i := range first {
		if first[i].Phrase != second[i].Phrase {
			t.Fatalf("ranking not deterministic: %+v vs %+v", first, second)
		}
	}
}

func TestRankEmptyCandidates(t *testing.T) {
	got := Rank(nil, Snapshot{}, DefaultWeights)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}

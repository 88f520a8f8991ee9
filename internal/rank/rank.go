// Package rank implements the Ranker: a pure function over a candidate set
// that combines popularity, recency, personalization, trending, and match
// components into a final score. It touches no index, cache, or store —
// tests drive it directly with synthetic snapshots.
package rank

import (
	"math"
	"sort"
)

// Weights holds the five scoring coefficients. The zero value is invalid;
// use DefaultWeights.
type Weights struct {
	Popularity float64
	Recency    float64
	Personal   float64
	Trending   float64
	Match      float64
}

// DefaultWeights mirrors spec.md §4.3.
var DefaultWeights = Weights{
	Popularity: 0.35,
	Recency:    0.15,
	Personal:   0.20,
	Trending:   0.20,
	Match:      0.10,
}

// RecencyTauSeconds is the recency time constant (7 days).
const RecencyTauSeconds = 7 * 24 * 60 * 60

// Candidate is one phrase to be scored.
type Candidate struct {
	Phrase         string
	Count          int64
	LastUpdatedSec int64 // unix seconds
	EditDistance   int   // 0 for exact prefix hits
}

// Components are the five [0,1] inputs to the final score, surfaced to
// callers for the suggestion response's "components" field (spec.md §6).
type Components struct {
	Popularity float64
	Recency    float64
	Personal   float64
	Trending   float64
	Match      float64
}

// Scored is a candidate with its computed score and components.
type Scored struct {
	Candidate
	Score      float64
	Components Components
}

// Snapshot carries the dynamic, per-request context the static trie cache
// does not know about: the index-wide max count (for popularity
// normalization), the requesting user's personal history, and the current
// trending scores.
type Snapshot struct {
	MaxCount       int64
	NowUnixSec     int64
	PersonalCounts map[string]int64 // phrase -> user's recorded count; absent means 0
	TrendingScores map[string]float64 // phrase -> normalized [0,1] trending score
	PrefixLen      int
}

// Rank scores every candidate and returns them ordered by score descending,
// tie-broken by count descending, then phrase length ascending, then
// code-point order. The result is deterministic for identical inputs.
func Rank(candidates []Candidate, snap Snapshot, w Weights) []Scored {
	out := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		comp := componentsFor(c, snap)
		score := w.Popularity*comp.Popularity +
			w.Recency*comp.Recency +
			w.Personal*comp.Personal +
			w.Trending*comp.Trending +
			w.Match*comp.Match
		out = append(out, Scored{Candidate: c, Score: score, Components: comp})
	}
	sortScored(out)
	return out
}

func componentsFor(c Candidate, snap Snapshot) Components {
	popularity := 0.0
	if snap.MaxCount > 0 {
		popularity = math.Log(float64(c.Count)+1) / math.Log(float64(snap.MaxCount)+1)
	}

	dt := snap.NowUnixSec - c.LastUpdatedSec
	if dt < 0 {
		dt = 0
	}
	recency := math.Exp(-float64(dt) / RecencyTauSeconds)

	personal := 0.0
	if snap.PersonalCounts != nil {
		if cnt, ok := snap.PersonalCounts[c.Phrase]; ok {
			personal = 1.0
			if cnt > 1 {
				personal = math.Min(1.0, float64(cnt)/float64(cnt+1)+0.5)
			}
		}
	}

	trending := 0.0
	if snap.TrendingScores != nil {
		trending = snap.TrendingScores[c.Phrase]
	}

	match := 1.0
	if c.EditDistance > 0 {
		denom := snap.PrefixLen
		if denom < 1 {
			denom = 1
		}
		match = 1 - float64(c.EditDistance)/float64(denom)
		if match < 0 {
			match = 0
		}
	}

	return Components{
		Popularity: popularity,
		Recency:    recency,
		Personal:   personal,
		Trending:   trending,
		Match:      match,
	}
}

func sortScored(s []Scored) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if len(a.Phrase) != len(b.Phrase) {
			return len(a.Phrase) < len(b.Phrase)
		}
		return a.Phrase < b.Phrase
	})
}

// Package trie implements the prefix index: an in-memory, single-writer,
// many-reader trie keyed on the code points of normalized phrases. Each
// node caches the top-K highest-scoring phrases reachable through it so
// that lookup is O(|prefix| + K) instead of a subtree walk per query.
//
// The structure is a plain arena ([]node addressed by int32) rather than a
// pointer-linked tree: children are a small sorted slice searched with a
// linear/binary scan instead of a map, which keeps node allocation to one
// slice append per new code point and avoids pointer-chasing at the depths
// that matter for short prefixes. One *generation is live at a time; the
// Index swaps to a new one wholesale under its write lock, so every
// lookup observes either entirely the old generation or entirely the new
// one (never a mix of the two).
package trie

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/wordsuggest/internal/svcerr"
)

// DefaultK is the default per-node top-K cache size.
const DefaultK = 10

// DefaultFuzzyBudget bounds how many candidates a fuzzy lookup considers.
const DefaultFuzzyBudget = 50

// RecencyTau is the recency half-life-ish time constant used by the static
// surrogate score (spec: 7 days).
const RecencyTau = 7 * 24 * time.Hour

// Entry is a single scored phrase as returned from a node's top-K cache.
type Entry struct {
	Phrase      string
	Count       int64
	LastUpdated time.Time
	Score       float64
	IsFuzzy     bool
	Distance    int
}

type childEdge struct {
	r   rune
	idx int32
}

type node struct {
	children []childEdge
	terminal bool
	phrase   string
	count    int64
	lastSeen int64 // unix seconds of last update
	topK     []Entry
}

// generation is one immutable-from-readers' point of view snapshot of the
// trie. The Index holds exactly one live generation at a time.
type generation struct {
	nodes       []node
	root        int32
	maxCount    int64
	phraseCount int
	maxDepth    int
}

func newGeneration() *generation {
	g := &generation{nodes: make([]node, 1, 64)}
	g.root = 0
	return g
}

func (g *generation) nodeCount() int { return len(g.nodes) }

// findChild returns the child index for r, or -1.
func (n *node) findChild(r rune) int {
	lo, hi := 0, len(n.children)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.children[mid].r < r {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(n.children) && n.children[lo].r == r {
		return lo
	}
	return -1
}

func (n *node) insertChild(r rune, idx int32) {
	lo, hi := 0, len(n.children)
	for lo < hi {
		mid := (lo + hi) / 2
		if n.children[mid].r < r {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	n.children = append(n.children, childEdge{})
	copy(n.children[lo+1:], n.children[lo:])
	n.children[lo] = childEdge{r: r, idx: idx}
}

func (n *node) removeChild(r rune) {
	i := n.findChild(r)
	if i < 0 {
		return
	}
	n.children = append(n.children[:i], n.children[i+1:]...)
}

// IsFilteredFunc reports whether a phrase should be excluded from query
// results. It is consulted at lookup time so that moderation decisions do
// not require an immediate top-K recomputation (spec.md §4.10, §9 Open
// Questions — filtering is applied at query time, not baked into the
// cache).
type IsFilteredFunc func(phrase string) bool

// Index is the concurrent prefix index. Reads take a shared lock; the
// increment/insert/remove family and generation swap take the exclusive
// lock. Locks are held only over in-memory work, never across I/O.
type Index struct {
	mu            sync.RWMutex
	gen           *generation
	k             int
	fuzzyBudget   int
	log           *log.Logger
	isFiltered    IsFilteredFunc
	recomputeHook func(depth int)
}

// SetRecomputeHook registers fn to be called with the path depth (number of
// nodes from root to the mutated leaf, inclusive) recomputed by every
// Increment, Insert, or Remove call. Used to feed the top-K recomputation
// depth histogram (spec.md §4.11); nil disables it.
func (ix *Index) SetRecomputeHook(fn func(depth int)) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.recomputeHook = fn
}

// New creates an empty Index. k is the per-node top-K size (0 uses
// DefaultK); fuzzyBudget bounds fuzzy candidate exploration (0 uses
// DefaultFuzzyBudget).
func New(k, fuzzyBudget int, isFiltered IsFilteredFunc, logger *log.Logger) *Index {
	if k <= 0 {
		k = DefaultK
	}
	if fuzzyBudget <= 0 {
		fuzzyBudget = DefaultFuzzyBudget
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Index{
		gen:         newGeneration(),
		k:           k,
		fuzzyBudget: fuzzyBudget,
		isFiltered:  isFiltered,
		log:         logger,
	}
}

// Stats reports phrase count, node count, and max depth of the live
// generation.
func (ix *Index) Stats() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	g := ix.gen
	return map[string]int{
		"phraseCount": g.phraseCount,
		"nodeCount":   g.nodeCount(),
		"maxDepth":    g.maxDepth,
	}
}

// MaxCount returns the highest phrase count held by the live generation,
// used by the Ranker to normalize popularity across a candidate set.
func (ix *Index) MaxCount() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.gen.maxCount
}

// staticScore computes the popularity+recency surrogate used purely to
// order each node's top-K cache. It intentionally ignores personalization
// and trending so that node caches do not depend on per-request state.
func staticScore(count, maxCount int64, lastSeen int64, now time.Time) float64 {
	popularity := 0.0
	if maxCount > 0 {
		popularity = math.Log(float64(count)+1) / math.Log(float64(maxCount)+1)
	}
	dt := now.Sub(time.Unix(lastSeen, 0))
	if dt < 0 {
		dt = 0
	}
	recency := math.Exp(-dt.Seconds() / RecencyTau.Seconds())
	return 0.7*popularity + 0.3*recency
}

// lessEntry implements the tie-break order: score desc, length asc,
// code-point order asc.
func lessEntry(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if len(a.Phrase) != len(b.Phrase) {
		return len(a.Phrase) < len(b.Phrase)
	}
	return a.Phrase < b.Phrase
}

// mergeTopK merges a node's own terminal entry (if any) with its children's
// cached top-K lists, truncated to k.
func (g *generation) mergeTopK(idx int32, k int, now time.Time) []Entry {
	n := &g.nodes[idx]
	merged := make([]Entry, 0, k+1)
	if n.terminal {
		merged = append(merged, Entry{
			Phrase:      n.phrase,
			Count:       n.count,
			LastUpdated: time.Unix(n.lastSeen, 0),
			Score:       staticScore(n.count, g.maxCount, n.lastSeen, now),
		})
	}
	for _, ce := range n.children {
		merged = append(merged, g.nodes[ce.idx].topK...)
	}
	sort.Slice(merged, func(i, j int) bool { return lessEntry(merged[i], merged[j]) })
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

// walkOrCreate returns the path of node indices from root to the terminal
// for the phrase spelled out by runes, creating any missing nodes along
// the way.
func (g *generation) walkOrCreate(runes []rune) []int32 {
	path := make([]int32, 0, len(runes)+1)
	cur := g.root
	path = append(path, cur)
	for depth, r := range runes {
		ci := g.nodes[cur].findChild(r)
		if ci < 0 {
			g.nodes = append(g.nodes, node{})
			newIdx := int32(len(g.nodes) - 1)
			g.nodes[cur].insertChild(r, newIdx)
			cur = newIdx
		} else {
			cur = g.nodes[cur].children[ci].idx
		}
		path = append(path, cur)
		if depth+1 > g.maxDepth {
			g.maxDepth = depth + 1
		}
	}
	return path
}

// walk returns the path of node indices from root to the terminal spelled
// out by runes, or nil if the path does not fully exist.
func (g *generation) walk(runes []rune) []int32 {
	path := make([]int32, 0, len(runes)+1)
	cur := g.root
	path = append(path, cur)
	for _, r := range runes {
		ci := g.nodes[cur].findChild(r)
		if ci < 0 {
			return nil
		}
		cur = g.nodes[cur].children[ci].idx
		path = append(path, cur)
	}
	return path
}

// recomputeUpward recomputes topK for every node on path, from the tail
// (deepest) to the root (index 0 of path), and returns the prefixes whose
// topK lists actually changed, deepest-first.
func (g *generation) recomputeUpward(path []int32, runes []rune, k int, now time.Time) []string {
	var touched []string
	for i := len(path) - 1; i >= 0; i-- {
		idx := path[i]
		newTopK := g.mergeTopK(idx, k, now)
		if !equalTopK(g.nodes[idx].topK, newTopK) {
			touched = append(touched, string(runes[:i]))
		}
		g.nodes[idx].topK = newTopK
	}
	return touched
}

func equalTopK(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Phrase != b[i].Phrase || a[i].Score != b[i].Score {
			return false
		}
	}
	return true
}

// Increment updates (or creates) phrase's count by delta and recomputes the
// top-K cache along its path. It returns the set of prefixes whose top-K
// list changed, which the caller uses to drive cache invalidation.
func (ix *Index) Increment(phrase string, delta int64, now time.Time) ([]string, error) {
	if phrase == "" {
		return nil, svcerr.New(svcerr.CodeInvalidInput, "empty phrase")
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	g := ix.gen

	runes := []rune(phrase)
	path := g.walkOrCreate(runes)
	last := &g.nodes[path[len(path)-1]]
	wasTerminal := last.terminal
	last.terminal = true
	last.phrase = phrase
	last.count += delta
	last.lastSeen = now.Unix()
	if last.count > g.maxCount {
		g.maxCount = last.count
	}
	if !wasTerminal {
		g.phraseCount++
	}

	touched := g.recomputeUpward(path, runes, ix.k, now)
	if ix.recomputeHook != nil {
		ix.recomputeHook(len(path))
	}
	return touched, nil
}

// Insert sets phrase's count to an absolute value, creating any missing
// path nodes, and recomputes the top-K cache. Used by admin add-phrase and
// by bulk load during bootstrap/rebuild.
func (ix *Index) Insert(phrase string, count int64, now time.Time) ([]string, error) {
	if phrase == "" {
		return nil, svcerr.New(svcerr.CodeInvalidInput, "empty phrase")
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	g := ix.gen

	runes := []rune(phrase)
	path := g.walkOrCreate(runes)
	last := &g.nodes[path[len(path)-1]]
	wasTerminal := last.terminal
	last.terminal = true
	last.phrase = phrase
	last.count = count
	last.lastSeen = now.Unix()
	if count > g.maxCount {
		g.maxCount = count
	}
	if !wasTerminal {
		g.phraseCount++
	}

	touched := g.recomputeUpward(path, runes, ix.k, now)
	if ix.recomputeHook != nil {
		ix.recomputeHook(len(path))
	}
	return touched, nil
}

// Remove clears phrase's terminal flag, prunes now-empty path nodes, and
// recomputes top-K upward from the point of removal.
func (ix *Index) Remove(phrase string, now time.Time) ([]string, error) {
	if phrase == "" {
		return nil, svcerr.New(svcerr.CodeInvalidInput, "empty phrase")
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	g := ix.gen

	runes := []rune(phrase)
	path := g.walk(runes)
	if path == nil {
		return nil, svcerr.New(svcerr.CodeNotFound, "phrase not found")
	}
	last := &g.nodes[path[len(path)-1]]
	if !last.terminal {
		return nil, svcerr.New(svcerr.CodeNotFound, "phrase not found")
	}
	last.terminal = false
	last.phrase = ""
	last.count = 0
	g.phraseCount--

	// Prune empty leaf nodes walking back up from the tail.
	prunedTo := len(path) - 1
	for i := len(path) - 1; i > 0; i-- {
		n := &g.nodes[path[i]]
		if n.terminal || len(n.children) > 0 {
			break
		}
		parent := &g.nodes[path[i-1]]
		parent.removeChild(runes[i-1])
		prunedTo = i - 1
	}

	touched := g.recomputeUpward(path[:prunedTo+1], runes[:prunedTo], ix.k, now)
	if ix.recomputeHook != nil {
		ix.recomputeHook(prunedTo + 1)
	}
	return touched, nil
}

// Lookup returns up to limit candidates under prefix, drawn from the
// node's top-K cache, excluding filtered phrases. A missing prefix path
// returns an empty (not nil-error) list. When fuzzy is true, a bounded
// single-edit exploration around the tail of the prefix is appended after
// the exact candidates (spec: fuzzy candidates do not count toward the
// exact-match limit; see DESIGN.md Open Questions).
func (ix *Index) Lookup(prefix string, limit int, fuzzy bool) []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	g := ix.gen

	if limit <= 0 || limit > ix.k {
		limit = ix.k
	}

	runes := []rune(prefix)
	out := make([]Entry, 0, limit)
	seen := make(map[string]bool, limit)

	if path := g.walk(runes); path != nil {
		n := &g.nodes[path[len(path)-1]]
		for _, e := range n.topK {
			if ix.isFiltered != nil && ix.isFiltered(e.Phrase) {
				continue
			}
			out = append(out, e)
			seen[e.Phrase] = true
			if len(out) >= limit {
				break
			}
		}
	}

	if fuzzy {
		out = append(out, ix.fuzzyCandidates(g, runes, seen)...)
	}

	return out
}

// fuzzyCandidates explores single-edit variants of the tail of runes
// (deletion, substitution, transposition) and returns terminal/top-K
// entries reachable from each variant path, tagged as fuzzy and scored
// with a penalty proportional to edit distance. Bounded by fuzzyBudget.
func (ix *Index) fuzzyCandidates(g *generation, runes []rune, seen map[string]bool) []Entry {
	budget := ix.fuzzyBudget
	var out []Entry

	collect := func(path []int32, dist int) {
		if path == nil || budget <= 0 {
			return
		}
		n := &g.nodes[path[len(path)-1]]
		for _, e := range n.topK {
			if budget <= 0 {
				return
			}
			if seen[e.Phrase] || (ix.isFiltered != nil && ix.isFiltered(e.Phrase)) {
				continue
			}
			seen[e.Phrase] = true
			fe := e
			fe.IsFuzzy = true
			fe.Distance = dist
			penalty := float64(dist) / float64(max1(len(runes)))
			fe.Score = fe.Score * (1 - penalty)
			out = append(out, fe)
			budget--
		}
	}

	if len(runes) >= 1 {
		// Deletion: the user typed one extra trailing character.
		collect(g.walk(runes[:len(runes)-1]), 1)

		// Substitution: enumerate siblings of the last matched edge.
		parent := g.walk(runes[:len(runes)-1])
		if parent != nil {
			pn := &g.nodes[parent[len(parent)-1]]
			for _, ce := range pn.children {
				if ce.r == runes[len(runes)-1] {
					continue
				}
				collect([]int32{ce.idx}, 1)
			}
		}
	}

	if len(runes) >= 2 {
		swapped := append([]rune(nil), runes...)
		swapped[len(swapped)-1], swapped[len(swapped)-2] = swapped[len(swapped)-2], swapped[len(swapped)-1]
		collect(g.walk(swapped), 1)
	}

	sort.Slice(out, func(i, j int) bool { return lessEntry(out[i], out[j]) })
	return out
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// FuzzyBudget returns the configured fuzzy candidate budget.
func (ix *Index) FuzzyBudget() int { return ix.fuzzyBudget }

// K returns the configured per-node top-K size.
func (ix *Index) K() int { return ix.k }

// snapshotRoot exposes the root's top-K for diagnostics (e.g. CLI "stats").
func (ix *Index) snapshotRoot() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]Entry(nil), ix.gen.nodes[ix.gen.root].topK...)
}

// Builder constructs a fresh generation offline (no cache/trending side
// effects), used by the Index Rebuilder while the live generation keeps
// serving reads.
type Builder struct {
	g *generation
	k int
}

// NewBuilder creates a Builder targeting the given per-node top-K size.
func NewBuilder(k int) *Builder {
	if k <= 0 {
		k = DefaultK
	}
	return &Builder{g: newGeneration(), k: k}
}

// Insert seeds phrase with an absolute count and timestamp into the
// generation under construction.
func (b *Builder) Insert(phrase string, count int64, lastUpdated time.Time) {
	runes := []rune(phrase)
	path := b.g.walkOrCreate(runes)
	last := &b.g.nodes[path[len(path)-1]]
	wasTerminal := last.terminal
	last.terminal = true
	last.phrase = phrase
	last.count = count
	last.lastSeen = lastUpdated.Unix()
	if count > b.g.maxCount {
		b.g.maxCount = count
	}
	if !wasTerminal {
		b.g.phraseCount++
	}
	b.g.recomputeUpward(path, runes, b.k, lastUpdated)
}

// Increment applies a shadow-apply delta accumulated while the rebuild was
// in progress, so no ingestion is lost across the swap (spec.md §4.9).
func (b *Builder) Increment(phrase string, delta int64, now time.Time) {
	runes := []rune(phrase)
	path := b.g.walkOrCreate(runes)
	last := &b.g.nodes[path[len(path)-1]]
	wasTerminal := last.terminal
	last.terminal = true
	last.phrase = phrase
	last.count += delta
	last.lastSeen = now.Unix()
	if last.count > b.g.maxCount {
		b.g.maxCount = last.count
	}
	if !wasTerminal {
		b.g.phraseCount++
	}
	b.g.recomputeUpward(path, runes, b.k, now)
}

// MaxCount returns the highest phrase count observed so far in the
// generation under construction.
func (b *Builder) MaxCount() int64 { return b.g.maxCount }

// PhraseCount returns the number of terminal phrases inserted so far.
func (b *Builder) PhraseCount() int { return b.g.phraseCount }

// Swap atomically replaces the Index's live generation with the one built
// by b. Readers in flight continue to see the old generation to
// completion; the next lookup sees entirely the new one.
func (ix *Index) Swap(b *Builder) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.gen = b.g
}
